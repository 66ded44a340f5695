package papers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	paperFileExtensionConstant           = ".json"
	temporaryFilePatternConstant         = ".paper-*.tmp"
	legacyIdentifierSeparatorConstant    = "/"
	fileIdentifierSeparatorConstant      = "_"
	jsonIndentConstant                   = "  "
	storeDirectoryPermissionsConstant    = 0o755
	paperFilePermissionsConstant         = 0o644
	storeDirectoryRequiredMessage        = "paper store directory must be provided"
	paperNotFoundMessageConstant         = "paper not found"
	paperIdentifierRequiredMessage       = "paper identifier must be provided"
	storeDirectoryCreateTemplateConstant = "failed to create paper directory %s: %w"
	paperEncodeTemplateConstant          = "failed to encode paper %s: %w"
	paperWriteTemplateConstant           = "failed to write paper %s: %w"
	paperReadTemplateConstant            = "failed to read paper %s: %w"
	paperDecodeTemplateConstant          = "failed to decode paper %s: %w"
	paperListTemplateConstant            = "failed to list papers in %s: %w"
	paperNotFoundTemplateConstant        = "%w: %s"
	paperSkippedLogMessageConstant       = "Skipping unreadable paper file"
	paperDeleteFailedLogMessageConstant  = "Failed to delete paper file"
	papersCleanedLogMessageConstant      = "Cleaned up paper files"
	logFieldFileConstant                 = "file"
	logFieldCountConstant                = "count"
	logFieldDirectoryConstant            = "directory"
)

// ErrPaperNotFound indicates that no document exists for the requested identifier.
var ErrPaperNotFound = errors.New(paperNotFoundMessageConstant)

// ErrStoreDirectoryRequired indicates that NewStore received a blank directory.
var ErrStoreDirectoryRequired = errors.New(storeDirectoryRequiredMessage)

// ErrPaperIdentifierRequired indicates that a paper without an identifier was supplied.
var ErrPaperIdentifierRequired = errors.New(paperIdentifierRequiredMessage)

// Clock returns the current time.
type Clock func() time.Time

// Store keeps one JSON document per paper inside a directory.
type Store struct {
	directory   string
	logger      *zap.Logger
	clock       Clock
	updateGuard sync.Mutex
}

// NewStore creates the directory when needed and returns a store rooted at it.
func NewStore(directory string, logger *zap.Logger) (*Store, error) {
	trimmedDirectory := strings.TrimSpace(directory)
	if len(trimmedDirectory) == 0 {
		return nil, ErrStoreDirectoryRequired
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if mkdirError := os.MkdirAll(trimmedDirectory, storeDirectoryPermissionsConstant); mkdirError != nil {
		return nil, fmt.Errorf(storeDirectoryCreateTemplateConstant, trimmedDirectory, mkdirError)
	}
	return &Store{directory: trimmedDirectory, logger: logger, clock: time.Now}, nil
}

// WithClock overrides the clock used for update timestamps.
func (store *Store) WithClock(clock Clock) *Store {
	if clock != nil {
		store.clock = clock
	}
	return store
}

// Directory reports the directory backing the store.
func (store *Store) Directory() string {
	return store.directory
}

// Now reports the store clock time.
func (store *Store) Now() time.Time {
	return store.clock()
}

// Path returns the document path for identifier.
func (store *Store) Path(identifier string) string {
	fileName := strings.ReplaceAll(strings.TrimSpace(identifier), legacyIdentifierSeparatorConstant, fileIdentifierSeparatorConstant)
	return filepath.Join(store.directory, fileName+paperFileExtensionConstant)
}

// Exists reports whether a document for identifier is present.
func (store *Store) Exists(identifier string) bool {
	if len(strings.TrimSpace(identifier)) == 0 {
		return false
	}
	_, statError := os.Stat(store.Path(identifier))
	return statError == nil
}

// Save writes the paper atomically, replacing any previous document.
func (store *Store) Save(paper Paper) error {
	if len(strings.TrimSpace(paper.ID)) == 0 {
		return ErrPaperIdentifierRequired
	}

	var encoded bytes.Buffer
	encoder := json.NewEncoder(&encoded)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", jsonIndentConstant)
	if encodeError := encoder.Encode(paper.normalize()); encodeError != nil {
		return fmt.Errorf(paperEncodeTemplateConstant, paper.ID, encodeError)
	}

	if writeError := writeFileAtomically(store.directory, store.Path(paper.ID), encoded.Bytes()); writeError != nil {
		return fmt.Errorf(paperWriteTemplateConstant, paper.ID, writeError)
	}
	return nil
}

// Load reads the document for identifier.
func (store *Store) Load(identifier string) (Paper, error) {
	if len(strings.TrimSpace(identifier)) == 0 {
		return Paper{}, ErrPaperIdentifierRequired
	}
	return store.loadFile(store.Path(identifier), identifier)
}

// Update loads a paper, applies mutate and saves the result while holding the store update lock.
func (store *Store) Update(identifier string, mutate func(paper *Paper) error) (Paper, error) {
	store.updateGuard.Lock()
	defer store.updateGuard.Unlock()

	paper, loadError := store.Load(identifier)
	if loadError != nil {
		return Paper{}, loadError
	}
	if mutateError := mutate(&paper); mutateError != nil {
		return Paper{}, mutateError
	}
	if saveError := store.Save(paper); saveError != nil {
		return Paper{}, saveError
	}
	return paper, nil
}

// List returns papers ordered by most recent modification first.
// A non-positive limit returns every paper after skip. Unreadable documents are skipped.
func (store *Store) List(skip int, limit int) ([]Paper, error) {
	documentPaths, listError := store.documentPathsByModification()
	if listError != nil {
		return nil, listError
	}

	if skip < 0 {
		skip = 0
	}
	if skip >= len(documentPaths) {
		return []Paper{}, nil
	}
	selectedPaths := documentPaths[skip:]
	if limit > 0 && limit < len(selectedPaths) {
		selectedPaths = selectedPaths[:limit]
	}

	loadedPapers := make([]Paper, 0, len(selectedPaths))
	for _, documentPath := range selectedPaths {
		paper, loadError := store.loadFile(documentPath, filepath.Base(documentPath))
		if loadError != nil {
			store.logger.Warn(paperSkippedLogMessageConstant, zap.String(logFieldFileConstant, filepath.Base(documentPath)), zap.Error(loadError))
			continue
		}
		loadedPapers = append(loadedPapers, paper)
	}
	return loadedPapers, nil
}

// DeleteAll removes every paper document and returns how many were deleted.
func (store *Store) DeleteAll() (int, error) {
	documentPaths, listError := store.documentPathsByModification()
	if listError != nil {
		return 0, listError
	}

	deletedCount := 0
	for _, documentPath := range documentPaths {
		if removeError := os.Remove(documentPath); removeError != nil {
			store.logger.Warn(paperDeleteFailedLogMessageConstant, zap.String(logFieldFileConstant, filepath.Base(documentPath)), zap.Error(removeError))
			continue
		}
		deletedCount++
	}
	if deletedCount > 0 {
		store.logger.Info(papersCleanedLogMessageConstant, zap.Int(logFieldCountConstant, deletedCount), zap.String(logFieldDirectoryConstant, store.directory))
	}
	return deletedCount, nil
}

func (store *Store) loadFile(documentPath string, identifier string) (Paper, error) {
	contents, readError := os.ReadFile(documentPath)
	if readError != nil {
		if errors.Is(readError, fs.ErrNotExist) {
			return Paper{}, fmt.Errorf(paperNotFoundTemplateConstant, ErrPaperNotFound, identifier)
		}
		return Paper{}, fmt.Errorf(paperReadTemplateConstant, identifier, readError)
	}

	var paper Paper
	if decodeError := json.Unmarshal(contents, &paper); decodeError != nil {
		return Paper{}, fmt.Errorf(paperDecodeTemplateConstant, identifier, decodeError)
	}
	return paper.normalize(), nil
}

type documentEntry struct {
	path         string
	modification time.Time
}

func (store *Store) documentPathsByModification() ([]string, error) {
	directoryEntries, readError := os.ReadDir(store.directory)
	if readError != nil {
		if errors.Is(readError, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf(paperListTemplateConstant, store.directory, readError)
	}

	documents := make([]documentEntry, 0, len(directoryEntries))
	for _, directoryEntry := range directoryEntries {
		if directoryEntry.IsDir() || filepath.Ext(directoryEntry.Name()) != paperFileExtensionConstant {
			continue
		}
		entryInfo, infoError := directoryEntry.Info()
		if infoError != nil {
			continue
		}
		documents = append(documents, documentEntry{
			path:         filepath.Join(store.directory, directoryEntry.Name()),
			modification: entryInfo.ModTime(),
		})
	}

	sort.SliceStable(documents, func(leftIndex int, rightIndex int) bool {
		if documents[leftIndex].modification.Equal(documents[rightIndex].modification) {
			return documents[leftIndex].path > documents[rightIndex].path
		}
		return documents[leftIndex].modification.After(documents[rightIndex].modification)
	})

	documentPaths := make([]string, 0, len(documents))
	for _, document := range documents {
		documentPaths = append(documentPaths, document.path)
	}
	return documentPaths, nil
}

func writeFileAtomically(directory string, targetPath string, contents []byte) error {
	temporaryFile, createError := os.CreateTemp(directory, temporaryFilePatternConstant)
	if createError != nil {
		return createError
	}
	temporaryPath := temporaryFile.Name()

	if _, writeError := temporaryFile.Write(contents); writeError != nil {
		_ = temporaryFile.Close()
		_ = os.Remove(temporaryPath)
		return writeError
	}
	if closeError := temporaryFile.Close(); closeError != nil {
		_ = os.Remove(temporaryPath)
		return closeError
	}
	if chmodError := os.Chmod(temporaryPath, paperFilePermissionsConstant); chmodError != nil {
		_ = os.Remove(temporaryPath)
		return chmodError
	}
	if renameError := os.Rename(temporaryPath, targetPath); renameError != nil {
		_ = os.Remove(temporaryPath)
		return renameError
	}
	return nil
}
