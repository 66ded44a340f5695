package staticbuild_test

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/paperdigest/internal/staticbuild"
)

func shortDigest(contents string) string {
	digest := md5.Sum([]byte(contents))
	return hex.EncodeToString(digest[:])[:8]
}

func TestRewriteReferences(testInstance *testing.T) {
	assetHashes := map[string]string{"app.js": "1a2b3c4d", "css/style.css": "deadbeef"}
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "double_quoted_script", input: `<script src="/static/app.js"></script>`, expected: `<script src="/static/app.js?v=1a2b3c4d"></script>`},
		{name: "single_quoted_stylesheet", input: `<link href='/static/css/style.css'>`, expected: `<link href='/static/css/style.css?v=deadbeef'>`},
		{name: "existing_version_replaced", input: `<script src="/static/app.js?v=00000000"></script>`, expected: `<script src="/static/app.js?v=1a2b3c4d"></script>`},
		{name: "unknown_asset_untouched", input: `<script src="/static/vendor.js"></script>`, expected: `<script src="/static/vendor.js"></script>`},
		{name: "outside_static_untouched", input: `<script src="https://cdn.example.com/app.js"></script>`, expected: `<script src="https://cdn.example.com/app.js"></script>`},
		{name: "other_attributes_untouched", input: `<a title="/static/app.js">x</a>`, expected: `<a title="/static/app.js">x</a>`},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expected, staticbuild.RewriteReferences(testCase.input, assetHashes))
		})
	}
}

func TestBuildCopiesAndVersionsAssets(testInstance *testing.T) {
	source := filepath.Join(testInstance.TempDir(), "frontend")
	require.NoError(testInstance, os.MkdirAll(filepath.Join(source, "css"), 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(source, "app.js"), []byte("console.log('app')"), 0o644))
	require.NoError(testInstance, os.WriteFile(filepath.Join(source, "css", "style.css"), []byte("body{}"), 0o644))
	require.NoError(testInstance, os.WriteFile(filepath.Join(source, "index.html"), []byte(`<link href="/static/css/style.css"><script src="/static/app.js"></script>`), 0o644))
	require.NoError(testInstance, os.WriteFile(filepath.Join(source, "about.html"), []byte(`<p>static</p>`), 0o644))

	destination := filepath.Join(testInstance.TempDir(), "frontend_dist")
	require.NoError(testInstance, os.MkdirAll(destination, 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(destination, "stale.html"), []byte("old"), 0o644))

	result, buildError := staticbuild.NewBuilder(nil).Build(source, destination)
	require.NoError(testInstance, buildError)

	appHash := shortDigest("console.log('app')")
	styleHash := shortDigest("body{}")
	require.Equal(testInstance, staticbuild.Result{
		Assets:       map[string]string{"app.js": appHash, "css/style.css": styleHash},
		HTMLFiles:    2,
		UpdatedFiles: 1,
	}, result)

	index, readError := os.ReadFile(filepath.Join(destination, "index.html"))
	require.NoError(testInstance, readError)
	require.Equal(testInstance, fmt.Sprintf(`<link href="/static/css/style.css?v=%s"><script src="/static/app.js?v=%s"></script>`, styleHash, appHash), string(index))
	require.NoFileExists(testInstance, filepath.Join(destination, "stale.html"))
	require.FileExists(testInstance, filepath.Join(destination, "css", "style.css"))

	sourceIndex, sourceReadError := os.ReadFile(filepath.Join(source, "index.html"))
	require.NoError(testInstance, sourceReadError)
	require.NotContains(testInstance, string(sourceIndex), "?v=")
}

func TestBuildRequiresSource(testInstance *testing.T) {
	_, buildError := staticbuild.NewBuilder(nil).Build(filepath.Join(testInstance.TempDir(), "missing"), testInstance.TempDir())
	require.ErrorIs(testInstance, buildError, staticbuild.ErrSourceNotFound)
}
