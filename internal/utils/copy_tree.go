package utils

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	copiedDirectoryPermissions = 0o755
	rootRelativePathConstant   = "."
)

// CopySkipFunc reports whether an entry below the copy root should be left out.
// Skipping a directory skips its whole subtree.
type CopySkipFunc func(relativePath string, entry fs.DirEntry) bool

// CopyTree copies the regular files under source into destination, creating directories as needed,
// and returns the number of files written. File modes are preserved; symlinks are ignored.
func CopyTree(source string, destination string, skip CopySkipFunc) (int, error) {
	copiedFiles := 0
	walkError := filepath.WalkDir(source, func(path string, entry fs.DirEntry, entryError error) error {
		if entryError != nil {
			return entryError
		}
		relativePath, relativeError := filepath.Rel(source, path)
		if relativeError != nil {
			return relativeError
		}
		if relativePath != rootRelativePathConstant && skip != nil && skip(relativePath, entry) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		targetPath := filepath.Join(destination, relativePath)
		if entry.IsDir() {
			return os.MkdirAll(targetPath, copiedDirectoryPermissions)
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		if copyError := copyFile(path, targetPath); copyError != nil {
			return copyError
		}
		copiedFiles++
		return nil
	})
	return copiedFiles, walkError
}

func copyFile(sourcePath string, targetPath string) error {
	sourceFile, openError := os.Open(sourcePath)
	if openError != nil {
		return openError
	}
	defer sourceFile.Close()

	sourceInfo, statError := sourceFile.Stat()
	if statError != nil {
		return statError
	}
	targetFile, createError := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, sourceInfo.Mode().Perm())
	if createError != nil {
		return createError
	}
	if _, copyError := io.Copy(targetFile, sourceFile); copyError != nil {
		_ = targetFile.Close()
		return copyError
	}
	return targetFile.Close()
}
