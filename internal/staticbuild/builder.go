package staticbuild

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/utils"
)

const (
	// DefaultSourceDirectory holds the hand-written frontend.
	DefaultSourceDirectory = "frontend"
	// DefaultDestinationDirectory receives the cache-busted copy served in production.
	DefaultDestinationDirectory = "frontend_dist"

	hashLengthConstant              = 8
	javaScriptExtensionConstant     = ".js"
	stylesheetExtensionConstant     = ".css"
	htmlExtensionConstant           = ".html"
	versionedReferenceTemplate      = `%s=%s%s?v=%s%s`
	sourceMissingTemplateConstant   = "%w: %s"
	sourceNotFoundMessageConstant   = "source directory not found"
	hashTemplateConstant            = "failed to hash %s: %w"
	cleanDestinationTemplate        = "failed to clean %s: %w"
	copyTemplateConstant            = "failed to copy %s to %s: %w"
	rewriteTemplateConstant         = "failed to update %s: %w"
	buildStartedLogMessageConstant  = "Building static assets"
	assetHashedLogMessageConstant   = "Asset hashed"
	noAssetsLogMessageConstant      = "No JS/CSS files found"
	htmlUpdatedLogMessageConstant   = "HTML references updated"
	htmlUnchangedLogMessageConstant = "No changes in HTML file"
	buildCompletedLogMessage        = "Static build completed"
	logFieldSourceConstant          = "source"
	logFieldDestinationConstant     = "destination"
	logFieldAssetConstant           = "asset"
	logFieldHashConstant            = "hash"
	logFieldFileConstant            = "file"
	logFieldAssetsConstant          = "assets"
	logFieldHTMLFilesConstant       = "html_files"
)

var (
	doubleQuotedReferencePattern = regexp.MustCompile(`(href|src)=(")([^"']*\.(?:js|css)[^"']*)"`)
	singleQuotedReferencePattern = regexp.MustCompile(`(href|src)=(')([^"']*\.(?:js|css)[^"']*)'`)
	staticResourcePattern        = regexp.MustCompile(`/static/(.+\.(?:js|css))`)
	versionParameterPattern      = regexp.MustCompile(`\?v=[a-f0-9]+`)
)

// ErrSourceNotFound indicates that the frontend source directory does not exist.
var ErrSourceNotFound = errors.New(sourceNotFoundMessageConstant)

// Result summarizes a build.
type Result struct {
	Assets       map[string]string `json:"assets"`
	HTMLFiles    int               `json:"html_files"`
	UpdatedFiles int               `json:"updated_files"`
}

// Builder produces a cache-busted copy of the frontend.
type Builder struct {
	logger *zap.Logger
}

// NewBuilder constructs a Builder.
func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{logger: logger}
}

// Build hashes every JS and CSS file under source, replaces destination with a copy of source and
// appends ?v=<hash> to href and src references pointing under /static/ in every copied HTML file.
func (builder *Builder) Build(source string, destination string) (Result, error) {
	sourceInfo, statError := os.Stat(source)
	if statError != nil || !sourceInfo.IsDir() {
		return Result{}, fmt.Errorf(sourceMissingTemplateConstant, ErrSourceNotFound, source)
	}
	builder.logger.Info(buildStartedLogMessageConstant, zap.String(logFieldSourceConstant, source), zap.String(logFieldDestinationConstant, destination))

	assetHashes, hashError := HashAssets(source)
	if hashError != nil {
		return Result{}, hashError
	}
	if len(assetHashes) == 0 {
		builder.logger.Warn(noAssetsLogMessageConstant, zap.String(logFieldSourceConstant, source))
	}
	for _, assetPath := range sortedKeys(assetHashes) {
		builder.logger.Debug(assetHashedLogMessageConstant, zap.String(logFieldAssetConstant, assetPath), zap.String(logFieldHashConstant, assetHashes[assetPath]))
	}

	if removeError := os.RemoveAll(destination); removeError != nil {
		return Result{}, fmt.Errorf(cleanDestinationTemplate, destination, removeError)
	}
	if _, copyError := utils.CopyTree(source, destination, nil); copyError != nil {
		return Result{}, fmt.Errorf(copyTemplateConstant, source, destination, copyError)
	}

	result := Result{Assets: assetHashes}
	walkError := filepath.WalkDir(destination, func(path string, entry fs.DirEntry, entryError error) error {
		if entryError != nil {
			return entryError
		}
		if entry.IsDir() || filepath.Ext(path) != htmlExtensionConstant {
			return nil
		}
		result.HTMLFiles++
		updated, rewriteError := rewriteHTMLFile(path, assetHashes)
		if rewriteError != nil {
			return fmt.Errorf(rewriteTemplateConstant, path, rewriteError)
		}
		if updated {
			result.UpdatedFiles++
			builder.logger.Info(htmlUpdatedLogMessageConstant, zap.String(logFieldFileConstant, path))
		} else {
			builder.logger.Debug(htmlUnchangedLogMessageConstant, zap.String(logFieldFileConstant, path))
		}
		return nil
	})
	if walkError != nil {
		return Result{}, walkError
	}

	builder.logger.Info(buildCompletedLogMessage, zap.Int(logFieldAssetsConstant, len(assetHashes)), zap.Int(logFieldHTMLFilesConstant, result.HTMLFiles))
	return result, nil
}

// HashAssets returns the first eight hex characters of the MD5 digest of every JS and CSS file,
// keyed by slash-separated path relative to source.
func HashAssets(source string) (map[string]string, error) {
	assetHashes := make(map[string]string)
	walkError := filepath.WalkDir(source, func(path string, entry fs.DirEntry, entryError error) error {
		if entryError != nil {
			return entryError
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		extension := filepath.Ext(path)
		if extension != javaScriptExtensionConstant && extension != stylesheetExtensionConstant {
			return nil
		}
		relativePath, relativeError := filepath.Rel(source, path)
		if relativeError != nil {
			return relativeError
		}
		digest, digestError := fileDigest(path)
		if digestError != nil {
			return fmt.Errorf(hashTemplateConstant, path, digestError)
		}
		assetHashes[filepath.ToSlash(relativePath)] = digest
		return nil
	})
	if walkError != nil {
		return nil, walkError
	}
	return assetHashes, nil
}

// RewriteReferences appends ?v=<hash> to href and src attributes whose /static/ path has a known hash.
// An existing version parameter is replaced.
func RewriteReferences(content string, assetHashes map[string]string) string {
	rewritten := doubleQuotedReferencePattern.ReplaceAllStringFunc(content, func(match string) string {
		return versionReference(doubleQuotedReferencePattern, match, assetHashes)
	})
	return singleQuotedReferencePattern.ReplaceAllStringFunc(rewritten, func(match string) string {
		return versionReference(singleQuotedReferencePattern, match, assetHashes)
	})
}

func versionReference(pattern *regexp.Regexp, match string, assetHashes map[string]string) string {
	groups := pattern.FindStringSubmatch(match)
	attribute, quote, path := groups[1], groups[2], groups[3]
	staticGroups := staticResourcePattern.FindStringSubmatch(path)
	if staticGroups == nil {
		return match
	}
	assetHash, known := assetHashes[staticGroups[1]]
	if !known {
		return match
	}
	cleanPath := versionParameterPattern.ReplaceAllString(path, "")
	return fmt.Sprintf(versionedReferenceTemplate, attribute, quote, cleanPath, assetHash, quote)
}

func rewriteHTMLFile(path string, assetHashes map[string]string) (bool, error) {
	contents, readError := os.ReadFile(path)
	if readError != nil {
		return false, readError
	}
	original := string(contents)
	rewritten := RewriteReferences(original, assetHashes)
	if rewritten == original {
		return false, nil
	}
	fileInfo, statError := os.Stat(path)
	if statError != nil {
		return false, statError
	}
	return true, os.WriteFile(path, []byte(rewritten), fileInfo.Mode().Perm())
}

func fileDigest(path string) (string, error) {
	file, openError := os.Open(path)
	if openError != nil {
		return "", openError
	}
	defer file.Close()

	hasher := md5.New()
	if _, copyError := io.Copy(hasher, file); copyError != nil {
		return "", copyError
	}
	return hex.EncodeToString(hasher.Sum(nil))[:hashLengthConstant], nil
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
