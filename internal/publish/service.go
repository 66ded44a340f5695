package publish

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/utils"
)

const (
	// BackendGit publishes through the git executable.
	BackendGit = "git"
	// BackendGoGit publishes through the embedded go-git implementation.
	BackendGoGit = "go-git"
	// BackendNone disables publishing.
	BackendNone = "none"

	// DefaultBranch is the branch GitHub Pages serves by default.
	DefaultBranch = "main"
	// DefaultWorkDirectory holds the Pages checkout.
	DefaultWorkDirectory = "data/pages_checkout"
	// DefaultTargetDirectory is the folder inside the checkout that receives exports.
	DefaultTargetDirectory = "papers"
	// DefaultTokenSource names the environment variable holding the push token.
	DefaultTokenSource = "env:" + TokenEnvironmentVariable
	// DefaultCommitMessageTemplate receives the exported folder name.
	DefaultCommitMessageTemplate = "Update paper digest %s"
	// DefaultAuthorName signs publish commits.
	DefaultAuthorName = "paperdigest"
	// DefaultAuthorEmail signs publish commits.
	DefaultAuthorEmail = "paperdigest@users.noreply.github.com"

	// OutcomePushed reports a commit that reached the remote.
	OutcomePushed = "pushed"
	// OutcomeUnchanged reports that the checkout already matched the export.
	OutcomeUnchanged = "unchanged"
	// OutcomeDryRun reports a commit that was not pushed.
	OutcomeDryRun = "dry_run"
	// OutcomeFailed reports a publish error.
	OutcomeFailed = "failed"

	backendRequiredMessageConstant    = "publish backend must be provided"
	publishingDisabledMessageConstant = "publishing is disabled"
	unknownBackendTemplateConstant    = "unsupported publish backend %q"
	folderNotFoundTemplateConstant    = "export folder %s not found"
	prepareTemplateConstant           = "failed to prepare pages checkout: %w"
	copyTemplateConstant              = "failed to copy %s into %s: %w"
	hiddenEntryPrefixConstant         = "."
	publishStartedLogMessage          = "Publishing export"
	publishUnchangedLogMessage        = "Nothing to publish"
	publishDryRunLogMessage           = "Dry run, skipping push"
	publishCompletedLogMessage        = "Export published"
	pagesBuildFailedLogMessage        = "Pages build request failed"
	pagesBuildRequestedLogMessage     = "Pages build requested"
	logFieldFolderConstant            = "folder"
	logFieldDestinationConstant       = "destination"
	logFieldFilesConstant             = "files"
	logFieldRepositoryConstant        = "repository"
)

// ErrBackendRequired indicates that NewService received no backend.
var ErrBackendRequired = errors.New(backendRequiredMessageConstant)

// ErrPublishingDisabled indicates that the configured backend is "none".
var ErrPublishingDisabled = errors.New(publishingDisabledMessageConstant)

// Options configure where exports are published.
type Options struct {
	Backend               string `mapstructure:"backend"`
	RepositoryURL         string `mapstructure:"repository_url"`
	Branch                string `mapstructure:"branch"`
	WorkDirectory         string `mapstructure:"work_directory"`
	TargetDirectory       string `mapstructure:"target_directory"`
	TokenSource           string `mapstructure:"token_source"`
	AuthorName            string `mapstructure:"author_name"`
	AuthorEmail           string `mapstructure:"author_email"`
	CommitMessageTemplate string `mapstructure:"commit_message"`
	RequestPagesBuild     bool   `mapstructure:"request_pages_build"`
	GitHubAPIURL          string `mapstructure:"github_api_url"`
	DryRun                bool   `mapstructure:"dry_run"`
}

// Sanitize trims values and fills defaults.
func (options Options) Sanitize() Options {
	sanitized := options
	sanitized.Backend = strings.ToLower(strings.TrimSpace(options.Backend))
	if len(sanitized.Backend) == 0 {
		sanitized.Backend = BackendNone
	}
	sanitized.RepositoryURL = strings.TrimSpace(options.RepositoryURL)
	sanitized.Branch = defaultIfBlank(options.Branch, DefaultBranch)
	sanitized.WorkDirectory = defaultIfBlank(options.WorkDirectory, DefaultWorkDirectory)
	sanitized.TargetDirectory = strings.Trim(strings.TrimSpace(options.TargetDirectory), string(filepath.Separator))
	sanitized.TokenSource = defaultIfBlank(options.TokenSource, DefaultTokenSource)
	sanitized.AuthorName = defaultIfBlank(options.AuthorName, DefaultAuthorName)
	sanitized.AuthorEmail = defaultIfBlank(options.AuthorEmail, DefaultAuthorEmail)
	sanitized.CommitMessageTemplate = defaultIfBlank(options.CommitMessageTemplate, DefaultCommitMessageTemplate)
	sanitized.GitHubAPIURL = strings.TrimSpace(options.GitHubAPIURL)
	return sanitized
}

// Enabled reports whether a backend other than "none" is configured.
func (options Options) Enabled() bool {
	return options.Sanitize().Backend != BackendNone
}

// CommitDetails describe the publish commit.
type CommitDetails struct {
	Message     string
	AuthorName  string
	AuthorEmail string
}

// Backend maintains the Pages checkout.
type Backend interface {
	Prepare(executionContext context.Context, checkoutPath string) error
	Commit(executionContext context.Context, checkoutPath string, details CommitDetails) (bool, error)
	Push(executionContext context.Context, checkoutPath string) error
}

// NewBackend builds the backend named by options.Backend.
func NewBackend(options Options, executor GitExecutor, token string, logger *zap.Logger) (Backend, error) {
	sanitized := options.Sanitize()
	switch sanitized.Backend {
	case BackendGit:
		backend, backendError := NewGitCLIBackend(executor, sanitized.RepositoryURL, sanitized.Branch, token, logger)
		if backendError != nil {
			return nil, backendError
		}
		return backend, nil
	case BackendGoGit:
		backend, backendError := NewGoGitBackend(sanitized.RepositoryURL, sanitized.Branch, token, logger)
		if backendError != nil {
			return nil, backendError
		}
		return backend, nil
	case BackendNone:
		return nil, ErrPublishingDisabled
	default:
		return nil, fmt.Errorf(unknownBackendTemplateConstant, sanitized.Backend)
	}
}

// Recorder observes publish outcomes.
type Recorder interface {
	PublishFinished(outcome string)
}

// ServiceDependencies wires collaborators for the publish service.
type ServiceDependencies struct {
	Backend      Backend
	PagesBuilder PagesBuildRequester
	Logger       *zap.Logger
	Recorder     Recorder
}

// Result describes one publish run.
type Result struct {
	Folder              string `json:"folder"`
	Destination         string `json:"destination"`
	FilesCopied         int    `json:"files_copied"`
	Committed           bool   `json:"committed"`
	Pushed              bool   `json:"pushed"`
	PagesBuildRequested bool   `json:"pages_build_requested"`
	Outcome             string `json:"outcome"`
}

// Service copies export folders into the Pages checkout and pushes them.
type Service struct {
	options      Options
	backend      Backend
	pagesBuilder PagesBuildRequester
	logger       *zap.Logger
	recorder     Recorder
}

// NewService constructs a publish service.
func NewService(options Options, dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Backend == nil {
		return nil, ErrBackendRequired
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		options:      options.Sanitize(),
		backend:      dependencies.Backend,
		pagesBuilder: dependencies.PagesBuilder,
		logger:       logger,
		recorder:     dependencies.Recorder,
	}, nil
}

// Publish replaces <checkout>/<target>/<folder name> with the contents of folder, commits and pushes.
// A failed Pages build request is logged and does not fail the publish.
func (service *Service) Publish(executionContext context.Context, folder string) (Result, error) {
	result, publishError := service.publish(executionContext, folder)
	if publishError != nil {
		result.Outcome = OutcomeFailed
	}
	if service.recorder != nil {
		service.recorder.PublishFinished(result.Outcome)
	}
	return result, publishError
}

func (service *Service) publish(executionContext context.Context, folder string) (Result, error) {
	cleanFolder := filepath.Clean(strings.TrimSpace(folder))
	folderInfo, statError := os.Stat(cleanFolder)
	if statError != nil || !folderInfo.IsDir() {
		return Result{Folder: cleanFolder}, fmt.Errorf(folderNotFoundTemplateConstant, cleanFolder)
	}

	checkoutPath := service.options.WorkDirectory
	folderName := filepath.Base(cleanFolder)
	destination := filepath.Join(checkoutPath, service.options.TargetDirectory, folderName)
	result := Result{Folder: cleanFolder, Destination: destination}
	service.logger.Info(publishStartedLogMessage,
		zap.String(logFieldFolderConstant, cleanFolder),
		zap.String(logFieldDestinationConstant, destination),
		zap.String(logFieldRepositoryConstant, service.options.RepositoryURL),
	)

	if prepareError := service.backend.Prepare(executionContext, checkoutPath); prepareError != nil {
		return result, fmt.Errorf(prepareTemplateConstant, prepareError)
	}
	if removeError := os.RemoveAll(destination); removeError != nil {
		return result, fmt.Errorf(copyTemplateConstant, cleanFolder, destination, removeError)
	}
	copiedFiles, copyError := utils.CopyTree(cleanFolder, destination, skipHiddenEntries)
	if copyError != nil {
		return result, fmt.Errorf(copyTemplateConstant, cleanFolder, destination, copyError)
	}
	result.FilesCopied = copiedFiles

	committed, commitError := service.backend.Commit(executionContext, checkoutPath, CommitDetails{
		Message:     fmt.Sprintf(service.options.CommitMessageTemplate, folderName),
		AuthorName:  service.options.AuthorName,
		AuthorEmail: service.options.AuthorEmail,
	})
	if commitError != nil {
		return result, commitError
	}
	result.Committed = committed
	if !committed {
		result.Outcome = OutcomeUnchanged
		service.logger.Info(publishUnchangedLogMessage, zap.String(logFieldFolderConstant, cleanFolder))
		return result, nil
	}
	if service.options.DryRun {
		result.Outcome = OutcomeDryRun
		service.logger.Info(publishDryRunLogMessage, zap.String(logFieldFolderConstant, cleanFolder))
		return result, nil
	}

	if pushError := service.backend.Push(executionContext, checkoutPath); pushError != nil {
		return result, pushError
	}
	result.Pushed = true
	result.Outcome = OutcomePushed

	if service.pagesBuilder != nil {
		if buildError := service.pagesBuilder.RequestBuild(executionContext); buildError != nil {
			service.logger.Warn(pagesBuildFailedLogMessage, zap.Error(buildError))
		} else {
			result.PagesBuildRequested = true
			service.logger.Info(pagesBuildRequestedLogMessage)
		}
	}
	service.logger.Info(publishCompletedLogMessage,
		zap.String(logFieldFolderConstant, cleanFolder),
		zap.Int(logFieldFilesConstant, copiedFiles),
	)
	return result, nil
}

func skipHiddenEntries(_ string, entry fs.DirEntry) bool {
	return strings.HasPrefix(entry.Name(), hiddenEntryPrefixConstant)
}

func defaultIfBlank(value string, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) == 0 {
		return fallback
	}
	return trimmed
}
