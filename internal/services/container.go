package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/analysis"
	"github.com/temirov/paperdigest/internal/arxiv"
	"github.com/temirov/paperdigest/internal/credentials"
	"github.com/temirov/paperdigest/internal/execshell"
	"github.com/temirov/paperdigest/internal/export"
	"github.com/temirov/paperdigest/internal/fetcher"
	"github.com/temirov/paperdigest/internal/llm"
	"github.com/temirov/paperdigest/internal/metrics"
	"github.com/temirov/paperdigest/internal/papers"
	"github.com/temirov/paperdigest/internal/pipeline"
	"github.com/temirov/paperdigest/internal/publish"
	"github.com/temirov/paperdigest/internal/settings"
	"github.com/temirov/paperdigest/internal/ui"
)

const (
	paperStoreTemplateConstant         = "unable to open paper store: %w"
	settingsStoreTemplateConstant      = "unable to open settings store: %w"
	apiKeyTemplateConstant             = "unable to resolve chat API key: %w"
	chatClientTemplateConstant         = "unable to create chat client: %w"
	gitExecutorTemplateConstant        = "unable to create git executor: %w"
	publishBackendTemplateConstant     = "unable to create publish backend: %w"
	pagesBuilderTemplateConstant       = "unable to create pages builder: %w"
	pipelineOperationsTemplateConstant = "unable to build pipeline operations: %w"
	analyzerUnavailableLogMessage      = "Analyzer unavailable, analysis steps will fail"
	publisherUnavailableLogMessage     = "Publisher unavailable, publish step will be skipped"
	anonymousPagesLogMessage           = "No GitHub token resolved, skipping pages build requests"
)

// Dependencies override collaborators the container would otherwise build itself.
type Dependencies struct {
	Logger               *zap.Logger
	HumanReadableLogging bool
	EnvironmentLookup    credentials.EnvironmentLookup
	ChatClient           llm.Client
	GitExecutor          publish.GitExecutor
	Metrics              *metrics.Registry
	Clock                func() time.Time
}

// Container builds the application services on first use from one configuration.
type Container struct {
	configuration Configuration
	dependencies  Dependencies
	logger        *zap.Logger
	tokenResolver *credentials.TokenResolver

	mutex       sync.Mutex
	metrics     *metrics.Registry
	paperStore  *papers.Store
	settings    *settings.Store
	fetcher     *fetcher.Service
	chatClient  llm.Client
	analyzer    *analysis.Analyzer
	exporter    *export.Exporter
	gitExecutor publish.GitExecutor
}

// NewContainer constructs a container. A nil logger is replaced with a no-op logger.
func NewContainer(configuration Configuration, dependencies Dependencies) *Container {
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Container{
		configuration: configuration.Sanitize(),
		dependencies:  dependencies,
		logger:        logger,
		tokenResolver: credentials.NewTokenResolver(dependencies.EnvironmentLookup, nil),
		metrics:       dependencies.Metrics,
		chatClient:    dependencies.ChatClient,
		gitExecutor:   dependencies.GitExecutor,
	}
}

// Configuration returns the sanitized configuration.
func (container *Container) Configuration() Configuration {
	return container.configuration
}

// Logger returns the logger shared by every service.
func (container *Container) Logger() *zap.Logger {
	return container.logger
}

// Metrics returns the private Prometheus registry every service reports to.
func (container *Container) Metrics() *metrics.Registry {
	container.mutex.Lock()
	defer container.mutex.Unlock()
	return container.metricsLocked()
}

func (container *Container) metricsLocked() *metrics.Registry {
	if container.metrics == nil {
		container.metrics = metrics.NewRegistry()
	}
	return container.metrics
}

// Papers opens the paper store.
func (container *Container) Papers() (*papers.Store, error) {
	container.mutex.Lock()
	defer container.mutex.Unlock()
	return container.papersLocked()
}

func (container *Container) papersLocked() (*papers.Store, error) {
	if container.paperStore != nil {
		return container.paperStore, nil
	}
	store, storeError := papers.NewStore(container.configuration.Storage.PapersDirectory, container.logger)
	if storeError != nil {
		return nil, fmt.Errorf(paperStoreTemplateConstant, storeError)
	}
	if container.dependencies.Clock != nil {
		store = store.WithClock(container.dependencies.Clock)
	}
	container.paperStore = store
	return store, nil
}

// Settings opens the settings store.
func (container *Container) Settings() (*settings.Store, error) {
	container.mutex.Lock()
	defer container.mutex.Unlock()
	return container.settingsLocked()
}

func (container *Container) settingsLocked() (*settings.Store, error) {
	if container.settings != nil {
		return container.settings, nil
	}
	store, storeError := settings.NewStore(container.configuration.Storage.SettingsPath)
	if storeError != nil {
		return nil, fmt.Errorf(settingsStoreTemplateConstant, storeError)
	}
	container.settings = store
	return store, nil
}

// Fetcher builds the arXiv ingestion service.
func (container *Container) Fetcher() (*fetcher.Service, error) {
	container.mutex.Lock()
	defer container.mutex.Unlock()
	return container.fetcherLocked()
}

func (container *Container) fetcherLocked() (*fetcher.Service, error) {
	if container.fetcher != nil {
		return container.fetcher, nil
	}
	store, storeError := container.papersLocked()
	if storeError != nil {
		return nil, storeError
	}
	arxivConfiguration := container.configuration.Arxiv
	client := arxiv.NewClient(arxiv.Options{
		APIURL:         arxivConfiguration.APIURL,
		HTMLBaseURL:    arxivConfiguration.HTMLBaseURL,
		UserAgent:      arxivConfiguration.UserAgent,
		RequestTimeout: arxivConfiguration.RequestTimeout,
		QueryInterval:  arxivConfiguration.QueryInterval,
		HTMLInterval:   arxivConfiguration.HTMLInterval,
		Logger:         container.logger,
	})
	container.fetcher = fetcher.NewService(fetcher.ServiceDependencies{
		Source:   client,
		Store:    store,
		Logger:   container.logger,
		Recorder: container.metricsLocked(),
	})
	return container.fetcher, nil
}

// ChatClient builds the chat-completion client. The API key comes from llm.api_key_source.
func (container *Container) ChatClient() (llm.Client, error) {
	container.mutex.Lock()
	defer container.mutex.Unlock()
	return container.chatClientLocked()
}

func (container *Container) chatClientLocked() (llm.Client, error) {
	if container.chatClient != nil {
		return container.chatClient, nil
	}
	llmConfiguration := container.configuration.LLM
	apiKey, resolveError := container.tokenResolver.ResolveDeclaredToken(context.Background(), llmConfiguration.APIKeySource)
	if resolveError != nil {
		return nil, fmt.Errorf(apiKeyTemplateConstant, errors.Join(llm.ErrAPIKeyRequired, resolveError))
	}
	client, clientError := llm.NewLangChainClient(llm.LangChainOptions{
		BaseURL:        llmConfiguration.BaseURL,
		APIKey:         apiKey,
		Model:          llmConfiguration.Model,
		RequestTimeout: llmConfiguration.RequestTimeout,
		Logger:         container.logger,
		Observer:       container.metricsLocked(),
	})
	if clientError != nil {
		return nil, fmt.Errorf(chatClientTemplateConstant, clientError)
	}
	container.chatClient = client
	return client, nil
}

// Analyzer builds the two-stage analyzer.
func (container *Container) Analyzer() (*analysis.Analyzer, error) {
	container.mutex.Lock()
	defer container.mutex.Unlock()
	return container.analyzerLocked()
}

func (container *Container) analyzerLocked() (*analysis.Analyzer, error) {
	if container.analyzer != nil {
		return container.analyzer, nil
	}
	client, clientError := container.chatClientLocked()
	if clientError != nil {
		return nil, clientError
	}
	store, storeError := container.papersLocked()
	if storeError != nil {
		return nil, storeError
	}
	references, fetcherError := container.fetcherLocked()
	if fetcherError != nil {
		return nil, fetcherError
	}
	container.analyzer = analysis.NewAnalyzer(analysis.Dependencies{
		Client:         client,
		Store:          store,
		References:     references,
		Logger:         container.logger,
		Recorder:       container.metricsLocked(),
		ReasoningModel: container.configuration.LLM.ReasoningModel,
	})
	return container.analyzer, nil
}

// Exporter builds the Markdown exporter.
func (container *Container) Exporter() (*export.Exporter, error) {
	container.mutex.Lock()
	defer container.mutex.Unlock()
	return container.exporterLocked()
}

func (container *Container) exporterLocked() (*export.Exporter, error) {
	if container.exporter != nil {
		return container.exporter, nil
	}
	store, storeError := container.papersLocked()
	if storeError != nil {
		return nil, storeError
	}
	container.exporter = export.NewExporter(store, container.logger, container.metricsLocked())
	return container.exporter, nil
}

// Publisher builds the publish service. It returns publish.ErrPublishingDisabled when
// the configured backend is "none".
func (container *Container) Publisher(executionContext context.Context) (*publish.Service, error) {
	return container.PublisherWithOptions(executionContext, container.configuration.Publish)
}

// PublisherWithOptions builds a publish service from options instead of the configured ones.
func (container *Container) PublisherWithOptions(executionContext context.Context, options publish.Options) (*publish.Service, error) {
	container.mutex.Lock()
	defer container.mutex.Unlock()

	options = options.Sanitize()
	if !options.Enabled() {
		return nil, publish.ErrPublishingDisabled
	}
	token, _ := container.tokenResolver.ResolveGitHubToken(executionContext, options.TokenSource)

	var gitExecutor publish.GitExecutor
	if options.Backend == publish.BackendGit {
		resolvedExecutor, executorError := container.gitExecutorLocked()
		if executorError != nil {
			return nil, executorError
		}
		gitExecutor = resolvedExecutor
	}
	backend, backendError := publish.NewBackend(options, gitExecutor, token, container.logger)
	if backendError != nil {
		return nil, fmt.Errorf(publishBackendTemplateConstant, backendError)
	}

	dependencies := publish.ServiceDependencies{
		Backend:  backend,
		Logger:   container.logger,
		Recorder: container.metricsLocked(),
	}
	if options.RequestPagesBuild {
		if len(token) == 0 {
			container.logger.Warn(anonymousPagesLogMessage)
		} else {
			pagesBuilder, pagesError := publish.NewGitHubPagesBuilder(executionContext, token, options.RepositoryURL, options.GitHubAPIURL)
			if pagesError != nil {
				return nil, fmt.Errorf(pagesBuilderTemplateConstant, pagesError)
			}
			dependencies.PagesBuilder = pagesBuilder
		}
	}
	return publish.NewService(options, dependencies)
}

func (container *Container) gitExecutorLocked() (publish.GitExecutor, error) {
	if container.gitExecutor != nil {
		return container.gitExecutor, nil
	}
	observers := execshell.CommandEventObservers{}
	if container.dependencies.HumanReadableLogging {
		observers = append(observers, ui.NewPublishProgressLogger(container.logger))
	}
	if container.metrics != nil {
		observers = append(observers, container.metrics)
	}
	var observer execshell.CommandEventObserver = observers
	shellExecutor, executorError := execshell.NewShellExecutorWithObserver(container.logger, execshell.NewOSCommandRunner(), observer)
	if executorError != nil {
		return nil, fmt.Errorf(gitExecutorTemplateConstant, executorError)
	}
	container.gitExecutor = shellExecutor
	return shellExecutor, nil
}

// Executor assembles a pipeline executor for steps. Collaborators that cannot be built are
// left unset so that only the steps needing them fail.
func (container *Container) Executor(executionContext context.Context, steps pipeline.Configuration) (*pipeline.Executor, error) {
	operations, buildError := pipeline.BuildOperations(steps)
	if buildError != nil {
		return nil, fmt.Errorf(pipelineOperationsTemplateConstant, buildError)
	}
	environment, environmentError := container.environment(executionContext)
	if environmentError != nil {
		return nil, environmentError
	}
	return pipeline.NewExecutor(operations, environment, container.Metrics()), nil
}

func (container *Container) environment(executionContext context.Context) (pipeline.Environment, error) {
	settingsStore, settingsError := container.Settings()
	if settingsError != nil {
		return pipeline.Environment{}, settingsError
	}
	paperStore, papersError := container.Papers()
	if papersError != nil {
		return pipeline.Environment{}, papersError
	}
	paperFetcher, fetcherError := container.Fetcher()
	if fetcherError != nil {
		return pipeline.Environment{}, fetcherError
	}
	exporter, exporterError := container.Exporter()
	if exporterError != nil {
		return pipeline.Environment{}, exporterError
	}

	environment := pipeline.Environment{
		Settings:        settingsStore,
		Fetcher:         paperFetcher,
		Exporter:        exporter,
		Cleaner:         paperStore,
		Clock:           container.dependencies.Clock,
		Logger:          container.logger,
		ExportDirectory: container.configuration.Server.ExportDirectory,
		CleanupEnabled:  container.configuration.Pipeline.Cleanup,
	}

	if analyzer, analyzerError := container.Analyzer(); analyzerError == nil {
		environment.Analyzer = analyzer
	} else {
		container.logger.Warn(analyzerUnavailableLogMessage, zap.Error(analyzerError))
	}

	publisher, publisherError := container.Publisher(executionContext)
	switch {
	case publisherError == nil:
		environment.Publisher = publisher
	case errors.Is(publisherError, publish.ErrPublishingDisabled):
	default:
		container.logger.Warn(publisherUnavailableLogMessage, zap.Error(publisherError))
	}
	return environment, nil
}

// SchedulerInterval resolves how often the scheduled run repeats: pipeline.interval when set,
// otherwise the fetch_interval of the settings document.
func (container *Container) SchedulerInterval() time.Duration {
	if interval := container.configuration.Pipeline.Interval; interval > 0 {
		return interval
	}
	settingsStore, settingsError := container.Settings()
	if settingsError != nil {
		return pipeline.DefaultInterval
	}
	currentSettings, loadError := settingsStore.Load()
	if loadError != nil || currentSettings.FetchIntervalDuration() <= 0 {
		return pipeline.DefaultInterval
	}
	return currentSettings.FetchIntervalDuration()
}
