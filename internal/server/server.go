package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/analysis"
	"github.com/temirov/paperdigest/internal/export"
	"github.com/temirov/paperdigest/internal/papers"
	"github.com/temirov/paperdigest/internal/pipeline"
	"github.com/temirov/paperdigest/internal/settings"
)

const (
	readHeaderTimeoutConstant = 10 * time.Second
	idleTimeoutConstant       = 120 * time.Second

	serverListeningLogMessageConstant         = "HTTP server listening"
	serverStoppingLogMessageConstant          = "Shutting down HTTP server"
	serverStoppedLogMessageConstant           = "HTTP server stopped"
	backgroundFailedLogMessageConstant        = "Background task failed"
	backgroundFinishedLogMessageConstant      = "Background task finished"
	requestLogMessageConstant                 = "Request"
	serverFailedTemplateConstant              = "http server failed: %w"
	dependencyPapersRequiredMessageConstant   = "server requires a paper store"
	dependencySettingsRequiredMessageConstant = "server requires a settings store"
	logFieldAddressConstant                   = "address"
	logFieldTaskConstant                      = "task"
	logFieldMethodConstant                    = "method"
	logFieldPathConstant                      = "path"
	logFieldStatusConstant                    = "status"
	logFieldDurationConstant                  = "duration"
	logFieldRequestIDConstant                 = "request_id"
)

var (
	// ErrPaperStoreRequired indicates a server without paper storage.
	ErrPaperStoreRequired = errors.New(dependencyPapersRequiredMessageConstant)
	// ErrSettingsStoreRequired indicates a server without a settings store.
	ErrSettingsStoreRequired = errors.New(dependencySettingsRequiredMessageConstant)
)

// PaperStore reads and mutates stored papers.
type PaperStore interface {
	Load(identifier string) (papers.Paper, error)
	List(skip int, limit int) ([]papers.Paper, error)
	Hide(identifier string) (papers.Paper, error)
	Unhide(identifier string) (papers.Paper, error)
	ToggleStar(identifier string) (papers.Paper, error)
	UpdateRelevance(identifier string, relevant bool, score float64) (papers.Paper, error)
	DeleteAll() (int, error)
}

// SettingsStore reads and updates the analysis settings.
type SettingsStore interface {
	Load() (settings.Settings, error)
	Update(request settings.UpdateRequest) (settings.Settings, bool, error)
}

// PaperAnalyzer answers questions and analyzes papers on demand.
type PaperAnalyzer interface {
	Ask(executionContext context.Context, paper papers.Paper, request analysis.QuestionRequest, currentSettings settings.Settings) (analysis.Answer, error)
	AskStream(executionContext context.Context, paper papers.Paper, request analysis.QuestionRequest, currentSettings settings.Settings, emit analysis.EventEmitter) (analysis.Answer, error)
	ProcessPapers(executionContext context.Context, candidates []papers.Paper, currentSettings settings.Settings, skipFilter bool) ([]papers.Paper, error)
	RecheckNegativeKeywords(executionContext context.Context, currentSettings settings.Settings) (int, error)
}

// SingleFetcher loads or downloads one paper by identifier.
type SingleFetcher interface {
	FetchSingle(executionContext context.Context, identifier string) (papers.Paper, error)
}

// MarkdownExporter writes the Markdown digest.
type MarkdownExporter interface {
	Export(options export.Options) (export.Result, error)
}

// BackgroundScheduler repeats the pipeline while the server runs. Refresh is called after
// fetch_interval changes.
type BackgroundScheduler interface {
	Start(executionContext context.Context)
	Stop()
	Refresh() error
}

// ServiceDependencies enumerate collaborators used by the server.
// FetchRunner backs POST /fetch; StartupRunner runs once when Run starts; Metrics serves /metrics.
type ServiceDependencies struct {
	Papers        PaperStore
	Settings      SettingsStore
	Analyzer      PaperAnalyzer
	Fetcher       SingleFetcher
	Exporter      MarkdownExporter
	FetchRunner   pipeline.Runner
	StartupRunner pipeline.Runner
	Scheduler     BackgroundScheduler
	Metrics       http.Handler
	Logger        *zap.Logger
}

// Server hosts the REST API and the web UI.
type Server struct {
	options      Options
	dependencies ServiceDependencies
	logger       *zap.Logger
	router       chi.Router

	backgroundContext context.Context
	cancelBackground  context.CancelFunc
	backgroundTasks   sync.WaitGroup
}

// NewServer validates dependencies and builds the router.
func NewServer(options Options, dependencies ServiceDependencies) (*Server, error) {
	if dependencies.Papers == nil {
		return nil, ErrPaperStoreRequired
	}
	if dependencies.Settings == nil {
		return nil, ErrSettingsStoreRequired
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	backgroundContext, cancelBackground := context.WithCancel(context.Background())
	server := &Server{
		options:           options.Sanitize(),
		dependencies:      dependencies,
		logger:            logger,
		backgroundContext: backgroundContext,
		cancelBackground:  cancelBackground,
	}
	server.router = server.routes()
	return server, nil
}

// Handler exposes the router.
func (server *Server) Handler() http.Handler {
	return server.router
}

func (server *Server) routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(server.requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(allowAllOrigins)

	router.Get("/", server.handleIndex)
	if staticDirectory, found := server.staticDirectory(); found {
		router.Handle("/static/*", http.StripPrefix("/static", http.FileServer(http.Dir(staticDirectory))))
	}
	router.Get("/api/health", server.handleHealth)

	router.Route("/papers", func(papersRouter chi.Router) {
		papersRouter.Get("/", server.handleListPapers)
		papersRouter.Route("/{paperID}", func(paperRouter chi.Router) {
			paperRouter.Get("/", server.handleGetPaper)
			paperRouter.Post("/ask", server.handleAsk)
			paperRouter.Post("/ask_stream", server.handleAskStream)
			paperRouter.Post("/hide", server.handleHide)
			paperRouter.Post("/unhide", server.handleUnhide)
			paperRouter.Post("/star", server.handleStar)
			paperRouter.Post("/update_relevance", server.handleUpdateRelevance)
		})
	})
	router.Get("/config", server.handleGetConfig)
	router.Put("/config", server.handleUpdateConfig)
	router.Get("/search", server.handleSearch)
	router.Post("/fetch", server.handleFetch)
	router.Get("/stats", server.handleStats)
	router.Post("/export/markdown", server.handleExport)
	if server.dependencies.Metrics != nil {
		router.Handle("/metrics", server.dependencies.Metrics)
	}
	return router
}

// Run serves until executionContext is cancelled, then shuts the server down, stops the
// scheduler and waits for background tasks.
func (server *Server) Run(executionContext context.Context) error {
	httpServer := &http.Server{
		Addr:              server.options.ListenAddress,
		Handler:           server.router,
		ReadHeaderTimeout: readHeaderTimeoutConstant,
		IdleTimeout:       idleTimeoutConstant,
	}

	if server.options.PendingOnStartup && server.dependencies.StartupRunner != nil {
		server.runInBackground(string(pipeline.OperationTypePending), func(taskContext context.Context) error {
			_, runError := server.dependencies.StartupRunner.Execute(taskContext)
			return runError
		})
	}
	schedulerStarted := false
	if server.options.Scheduler && server.dependencies.Scheduler != nil {
		server.dependencies.Scheduler.Start(server.backgroundContext)
		schedulerStarted = true
	}

	serverErrors := make(chan error, 1)
	go func() {
		server.logger.Info(serverListeningLogMessageConstant, zap.String(logFieldAddressConstant, httpServer.Addr))
		serverErrors <- httpServer.ListenAndServe()
	}()

	var runError error
	select {
	case listenError := <-serverErrors:
		if listenError != nil && !errors.Is(listenError, http.ErrServerClosed) {
			runError = fmt.Errorf(serverFailedTemplateConstant, listenError)
		}
	case <-executionContext.Done():
		server.logger.Info(serverStoppingLogMessageConstant)
	}

	shutdownContext, cancelShutdown := context.WithTimeout(context.Background(), server.options.ShutdownTimeout)
	defer cancelShutdown()
	if shutdownError := httpServer.Shutdown(shutdownContext); shutdownError != nil && runError == nil {
		runError = shutdownError
	}
	if schedulerStarted {
		server.dependencies.Scheduler.Stop()
	}
	server.Close()
	server.logger.Info(serverStoppedLogMessageConstant)
	return runError
}

// Close cancels background tasks and waits for them to return.
func (server *Server) Close() {
	server.cancelBackground()
	server.backgroundTasks.Wait()
}

// WaitForBackground blocks until every background task started so far has returned.
func (server *Server) WaitForBackground() {
	server.backgroundTasks.Wait()
}

func (server *Server) runInBackground(task string, work func(taskContext context.Context) error) {
	server.backgroundTasks.Add(1)
	go func() {
		defer server.backgroundTasks.Done()
		if workError := work(server.backgroundContext); workError != nil {
			server.logger.Warn(backgroundFailedLogMessageConstant, zap.String(logFieldTaskConstant, task), zap.Error(workError))
			return
		}
		server.logger.Debug(backgroundFinishedLogMessageConstant, zap.String(logFieldTaskConstant, task))
	}()
}

func (server *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		startedAt := time.Now()
		wrapped := middleware.NewWrapResponseWriter(responseWriter, request.ProtoMajor)
		next.ServeHTTP(wrapped, request)
		server.logger.Debug(requestLogMessageConstant,
			zap.String(logFieldMethodConstant, request.Method),
			zap.String(logFieldPathConstant, request.URL.Path),
			zap.Int(logFieldStatusConstant, wrapped.Status()),
			zap.Duration(logFieldDurationConstant, time.Since(startedAt)),
			zap.String(logFieldRequestIDConstant, middleware.GetReqID(request.Context())),
		)
	})
}

func allowAllOrigins(next http.Handler) http.Handler {
	return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		headers := responseWriter.Header()
		origin := request.Header.Get(headerOriginConstant)
		if len(origin) == 0 {
			origin = corsAnyOriginConstant
		}
		headers.Set(headerAllowOriginConstant, origin)
		headers.Set(headerAllowCredentialsConstant, corsTrueConstant)
		headers.Set(headerAllowMethodsConstant, corsAllowedMethodsConstant)
		headers.Set(headerAllowHeadersConstant, corsAnyHeaderConstant)
		headers.Add(headerVaryConstant, headerOriginConstant)
		if request.Method == http.MethodOptions {
			responseWriter.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(responseWriter, request)
	})
}
