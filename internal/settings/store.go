package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	settingsPathRequiredMessageConstant = "settings path must be provided"
	settingsReadTemplateConstant        = "failed to read settings %s: %w"
	settingsDecodeTemplateConstant      = "failed to decode settings %s: %w"
	settingsEncodeTemplateConstant      = "failed to encode settings: %w"
	settingsWriteTemplateConstant       = "failed to write settings %s: %w"
	settingsDirectoryPermissions        = 0o755
	settingsFilePermissions             = 0o644
	settingsTemporaryPatternConstant    = ".settings-*.tmp"
	settingsIndentConstant              = "  "
)

// ErrSettingsPathRequired indicates that NewStore received a blank path.
var ErrSettingsPathRequired = errors.New(settingsPathRequiredMessageConstant)

// Store reads and writes the settings document. Concurrent updates are serialized.
type Store struct {
	path  string
	guard sync.Mutex
}

// NewStore returns a store for the document at path.
func NewStore(path string) (*Store, error) {
	trimmedPath := strings.TrimSpace(path)
	if len(trimmedPath) == 0 {
		return nil, ErrSettingsPathRequired
	}
	return &Store{path: trimmedPath}, nil
}

// Path reports the settings document location.
func (store *Store) Path() string {
	return store.path
}

// Load reads the document. A missing document yields the defaults and missing keys keep their default values.
func (store *Store) Load() (Settings, error) {
	store.guard.Lock()
	defer store.guard.Unlock()
	return store.load()
}

// Save writes the document atomically.
func (store *Store) Save(settings Settings) error {
	store.guard.Lock()
	defer store.guard.Unlock()
	return store.save(settings)
}

// EnsureExists writes the defaults when no document exists and reports whether it did.
func (store *Store) EnsureExists() (bool, error) {
	store.guard.Lock()
	defer store.guard.Unlock()

	if _, statError := os.Stat(store.path); statError == nil {
		return false, nil
	} else if !errors.Is(statError, fs.ErrNotExist) {
		return false, fmt.Errorf(settingsReadTemplateConstant, store.path, statError)
	}
	if saveError := store.save(Default()); saveError != nil {
		return false, saveError
	}
	return true, nil
}

// Update applies request, persists the result and reports whether the negative keywords changed.
func (store *Store) Update(request UpdateRequest) (Settings, bool, error) {
	store.guard.Lock()
	defer store.guard.Unlock()

	current, loadError := store.load()
	if loadError != nil {
		return Settings{}, false, loadError
	}
	updated, negativeKeywordsChanged := current.Apply(request)
	if saveError := store.save(updated); saveError != nil {
		return Settings{}, false, saveError
	}
	return updated, negativeKeywordsChanged, nil
}

// RegenerateDateWindow moves the date window so it ends at reference and spans daysBack days.
func (store *Store) RegenerateDateWindow(reference time.Time, daysBack int) (Settings, error) {
	store.guard.Lock()
	defer store.guard.Unlock()

	current, loadError := store.load()
	if loadError != nil {
		return Settings{}, loadError
	}
	updated := current.WithDateWindow(reference, daysBack)
	if saveError := store.save(updated); saveError != nil {
		return Settings{}, saveError
	}
	return updated, nil
}

func (store *Store) load() (Settings, error) {
	contents, readError := os.ReadFile(store.path)
	if readError != nil {
		if errors.Is(readError, fs.ErrNotExist) {
			return Default(), nil
		}
		return Settings{}, fmt.Errorf(settingsReadTemplateConstant, store.path, readError)
	}

	loaded := Default()
	if decodeError := json.Unmarshal(contents, &loaded); decodeError != nil {
		return Settings{}, fmt.Errorf(settingsDecodeTemplateConstant, store.path, decodeError)
	}
	return loaded.Sanitize(), nil
}

func (store *Store) save(settings Settings) error {
	var encoded bytes.Buffer
	encoder := json.NewEncoder(&encoded)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", settingsIndentConstant)
	if encodeError := encoder.Encode(settings); encodeError != nil {
		return fmt.Errorf(settingsEncodeTemplateConstant, encodeError)
	}

	directory := filepath.Dir(store.path)
	if mkdirError := os.MkdirAll(directory, settingsDirectoryPermissions); mkdirError != nil {
		return fmt.Errorf(settingsWriteTemplateConstant, store.path, mkdirError)
	}

	temporaryFile, createError := os.CreateTemp(directory, settingsTemporaryPatternConstant)
	if createError != nil {
		return fmt.Errorf(settingsWriteTemplateConstant, store.path, createError)
	}
	temporaryPath := temporaryFile.Name()
	_, writeError := temporaryFile.Write(encoded.Bytes())
	closeError := temporaryFile.Close()
	if writeError == nil {
		writeError = closeError
	}
	if writeError == nil {
		writeError = os.Chmod(temporaryPath, settingsFilePermissions)
	}
	if writeError == nil {
		writeError = os.Rename(temporaryPath, store.path)
	}
	if writeError != nil {
		_ = os.Remove(temporaryPath)
		return fmt.Errorf(settingsWriteTemplateConstant, store.path, writeError)
	}
	return nil
}
