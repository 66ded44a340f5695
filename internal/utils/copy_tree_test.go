package utils_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/paperdigest/internal/utils"
)

func TestCopyTreeCopiesFilesAndHonorsSkip(testInstance *testing.T) {
	source := testInstance.TempDir()
	require.NoError(testInstance, os.MkdirAll(filepath.Join(source, "static", "js"), 0o755))
	require.NoError(testInstance, os.MkdirAll(filepath.Join(source, "node_modules", "pkg"), 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(source, "index.html"), []byte("<html></html>"), 0o644))
	require.NoError(testInstance, os.WriteFile(filepath.Join(source, "static", "js", "app.js"), []byte("console.log(1)"), 0o600))
	require.NoError(testInstance, os.WriteFile(filepath.Join(source, "node_modules", "pkg", "index.js"), []byte("skip"), 0o644))

	destination := filepath.Join(testInstance.TempDir(), "dist")
	copiedFiles, copyError := utils.CopyTree(source, destination, func(relativePath string, entry fs.DirEntry) bool {
		return entry.IsDir() && strings.HasPrefix(relativePath, "node_modules")
	})
	require.NoError(testInstance, copyError)
	require.Equal(testInstance, 2, copiedFiles)

	contents, readError := os.ReadFile(filepath.Join(destination, "static", "js", "app.js"))
	require.NoError(testInstance, readError)
	require.Equal(testInstance, "console.log(1)", string(contents))
	info, statError := os.Stat(filepath.Join(destination, "static", "js", "app.js"))
	require.NoError(testInstance, statError)
	require.Equal(testInstance, os.FileMode(0o600), info.Mode().Perm())
	require.NoDirExists(testInstance, filepath.Join(destination, "node_modules"))
}

func TestCopyTreeMissingSource(testInstance *testing.T) {
	_, copyError := utils.CopyTree(filepath.Join(testInstance.TempDir(), "missing"), testInstance.TempDir(), nil)
	require.ErrorIs(testInstance, copyError, fs.ErrNotExist)
}
