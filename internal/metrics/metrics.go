package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/temirov/paperdigest/internal/analysis"
	"github.com/temirov/paperdigest/internal/execshell"
)

const (
	namespaceConstant          = "paperdigest"
	labelCategoryConstant      = "category"
	labelStageConstant         = "stage"
	labelOutcomeConstant       = "outcome"
	labelModelConstant         = "model"
	labelStreamedConstant      = "streamed"
	labelStatusConstant        = "status"
	labelSubcommandConstant    = "subcommand"
	unknownSubcommandConstant  = "none"
	gitFailedOutcome           = "failed"
	unknownCategoryConstant    = "lookup"
	completionSucceededOutcome = "success"
	completionFailedOutcome    = "error"
)

// Registry owns the pipeline collectors and satisfies the recorder interfaces of the
// fetch, analysis, chat-completion, export, publish and pipeline components.
type Registry struct {
	registry            *prometheus.Registry
	papersFetched       *prometheus.CounterVec
	categoryFailures    *prometheus.CounterVec
	stageOutcomes       *prometheus.CounterVec
	completions         *prometheus.CounterVec
	completionDurations *prometheus.HistogramVec
	papersExported      prometheus.Counter
	publishOutcomes     *prometheus.CounterVec
	pipelineRuns        *prometheus.CounterVec
	pipelineDurations   prometheus.Histogram
	gitCommands         *prometheus.CounterVec
}

// NewRegistry creates collectors on a private registry together with the Go and process collectors.
func NewRegistry() *Registry {
	registry := prometheus.NewRegistry()
	metricsRegistry := &Registry{
		registry: registry,
		papersFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceConstant,
			Name:      "papers_fetched_total",
			Help:      "Papers downloaded from arXiv and stored.",
		}, []string{labelCategoryConstant}),
		categoryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceConstant,
			Name:      "category_fetch_failures_total",
			Help:      "Category queries that failed and were skipped.",
		}, []string{labelCategoryConstant}),
		stageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceConstant,
			Name:      "analysis_outcomes_total",
			Help:      "Analysis results by stage and outcome.",
		}, []string{labelStageConstant, labelOutcomeConstant}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceConstant,
			Name:      "llm_completions_total",
			Help:      "Chat completion calls by model and result.",
		}, []string{labelModelConstant, labelStreamedConstant, labelOutcomeConstant}),
		completionDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespaceConstant,
			Name:      "llm_completion_duration_seconds",
			Help:      "Chat completion latency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{labelModelConstant, labelStreamedConstant}),
		papersExported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceConstant,
			Name:      "papers_exported_total",
			Help:      "Markdown files written by the exporter.",
		}),
		publishOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceConstant,
			Name:      "publish_outcomes_total",
			Help:      "GitHub Pages publish attempts by outcome.",
		}, []string{labelOutcomeConstant}),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceConstant,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by final status.",
		}, []string{labelStatusConstant}),
		pipelineDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceConstant,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Wall time of pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		gitCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceConstant,
			Name:      "git_commands_total",
			Help:      "Git invocations made while publishing, by subcommand and outcome.",
		}, []string{labelSubcommandConstant, labelOutcomeConstant}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metricsRegistry.papersFetched,
		metricsRegistry.categoryFailures,
		metricsRegistry.stageOutcomes,
		metricsRegistry.completions,
		metricsRegistry.completionDurations,
		metricsRegistry.papersExported,
		metricsRegistry.publishOutcomes,
		metricsRegistry.pipelineRuns,
		metricsRegistry.pipelineDurations,
		metricsRegistry.gitCommands,
	)
	return metricsRegistry
}

// Gatherer exposes the underlying registry.
func (metricsRegistry *Registry) Gatherer() prometheus.Gatherer {
	return metricsRegistry.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (metricsRegistry *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(metricsRegistry.registry, promhttp.HandlerOpts{})
}

// PaperFetched counts a stored paper. Papers fetched by identifier carry the "lookup" category.
func (metricsRegistry *Registry) PaperFetched(category string) {
	metricsRegistry.papersFetched.WithLabelValues(categoryLabel(category)).Inc()
}

// CategoryFailed counts a failed category query.
func (metricsRegistry *Registry) CategoryFailed(category string) {
	metricsRegistry.categoryFailures.WithLabelValues(categoryLabel(category)).Inc()
}

// StageFinished counts an analysis outcome.
func (metricsRegistry *Registry) StageFinished(stage analysis.Stage, outcome analysis.Outcome) {
	metricsRegistry.stageOutcomes.WithLabelValues(string(stage), string(outcome)).Inc()
}

// CompletionFinished counts a chat completion and records its latency.
func (metricsRegistry *Registry) CompletionFinished(model string, streamed bool, duration time.Duration, err error) {
	streamedLabel := strconv.FormatBool(streamed)
	outcome := completionSucceededOutcome
	if err != nil {
		outcome = completionFailedOutcome
	}
	metricsRegistry.completions.WithLabelValues(model, streamedLabel, outcome).Inc()
	metricsRegistry.completionDurations.WithLabelValues(model, streamedLabel).Observe(duration.Seconds())
}

// PapersExported adds the number of written Markdown files.
func (metricsRegistry *Registry) PapersExported(count int) {
	if count > 0 {
		metricsRegistry.papersExported.Add(float64(count))
	}
}

// PublishFinished counts a publish outcome.
func (metricsRegistry *Registry) PublishFinished(outcome string) {
	metricsRegistry.publishOutcomes.WithLabelValues(outcome).Inc()
}

// RunFinished counts a pipeline run and records its duration.
func (metricsRegistry *Registry) RunFinished(status string, duration time.Duration) {
	metricsRegistry.pipelineRuns.WithLabelValues(status).Inc()
	metricsRegistry.pipelineDurations.Observe(duration.Seconds())
}

// CommandStarted implements execshell.CommandEventObserver.
func (metricsRegistry *Registry) CommandStarted(execshell.ShellCommand) {}

// CommandCompleted counts a git invocation by its exit status.
func (metricsRegistry *Registry) CommandCompleted(command execshell.ShellCommand, result execshell.ExecutionResult) {
	outcome := completionSucceededOutcome
	if result.ExitCode != 0 {
		outcome = completionFailedOutcome
	}
	metricsRegistry.gitCommands.WithLabelValues(subcommandLabel(command), outcome).Inc()
}

// CommandExecutionFailed counts a git invocation that never produced an exit status.
func (metricsRegistry *Registry) CommandExecutionFailed(command execshell.ShellCommand, failure error) {
	metricsRegistry.gitCommands.WithLabelValues(subcommandLabel(command), gitFailedOutcome).Inc()
}

func subcommandLabel(command execshell.ShellCommand) string {
	if len(command.Details.Arguments) == 0 {
		return unknownSubcommandConstant
	}
	return command.Details.Arguments[0]
}

func categoryLabel(category string) string {
	if len(category) == 0 {
		return unknownCategoryConstant
	}
	return category
}
