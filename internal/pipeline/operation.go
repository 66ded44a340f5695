package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/export"
	"github.com/temirov/paperdigest/internal/fetcher"
	"github.com/temirov/paperdigest/internal/papers"
	"github.com/temirov/paperdigest/internal/publish"
	"github.com/temirov/paperdigest/internal/settings"
)

// Operation performs a single pipeline step.
type Operation interface {
	Name() string
	Execute(executionContext context.Context, environment *Environment, state *State) error
}

// BestEffortOperation marks steps whose failures are logged without failing the run.
type BestEffortOperation interface {
	BestEffort() bool
}

// SettingsStore loads and moves the analysis settings.
type SettingsStore interface {
	Load() (settings.Settings, error)
	RegenerateDateWindow(reference time.Time, daysBack int) (settings.Settings, error)
}

// PaperFetcher downloads new papers.
type PaperFetcher interface {
	FetchLatest(executionContext context.Context, currentSettings settings.Settings, options fetcher.Options) ([]papers.Paper, error)
}

// PaperAnalyzer runs the relevance filter and deep analysis.
type PaperAnalyzer interface {
	ProcessPapers(executionContext context.Context, candidates []papers.Paper, currentSettings settings.Settings, skipFilter bool) ([]papers.Paper, error)
	AnalyzePending(executionContext context.Context, currentSettings settings.Settings) ([]papers.Paper, error)
}

// MarkdownExporter writes the Markdown digest.
type MarkdownExporter interface {
	Export(options export.Options) (export.Result, error)
}

// FolderPublisher pushes an exported folder.
type FolderPublisher interface {
	Publish(executionContext context.Context, folder string) (publish.Result, error)
}

// PaperCleaner removes stored paper documents.
type PaperCleaner interface {
	DeleteAll() (int, error)
}

// Environment exposes shared dependencies for pipeline operations.
// A nil Publisher disables the publish step.
type Environment struct {
	Settings        SettingsStore
	Fetcher         PaperFetcher
	Analyzer        PaperAnalyzer
	Exporter        MarkdownExporter
	Publisher       FolderPublisher
	Cleaner         PaperCleaner
	Clock           func() time.Time
	Logger          *zap.Logger
	ExportDirectory string
	CleanupEnabled  bool
}

// State carries results between the steps of one run.
type State struct {
	RunID        string
	Settings     settings.Settings
	Fetched      []papers.Paper
	Analyzed     []papers.Paper
	Export       *export.Result
	Publish      *publish.Result
	CleanedFiles int
	Failures     []StepFailure
}

// StepFailure records a best-effort step that failed.
type StepFailure struct {
	Operation string
	Error     error
}

func (environment *Environment) now() time.Time {
	if environment.Clock == nil {
		return time.Now()
	}
	return environment.Clock()
}
