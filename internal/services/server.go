package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/pipeline"
	"github.com/temirov/paperdigest/internal/server"
)

const (
	schedulerTemplateConstant     = "unable to create scheduler: %w"
	analyzerOptionalLogMessage    = "Chat client unavailable, question answering disabled"
	logFieldIntervalConstant      = "interval"
	schedulerConfiguredLogMessage = "Scheduled pipeline configured"
)

// manualFetchSteps back POST /fetch.
var manualFetchSteps = pipeline.Configuration{Steps: []pipeline.StepConfiguration{
	{Operation: pipeline.OperationTypeFetch},
	{Operation: pipeline.OperationTypeAnalyze},
}}

// startupSteps finish deep analysis left over from a previous process, then export and publish it.
var startupSteps = pipeline.Configuration{Steps: []pipeline.StepConfiguration{
	{Operation: pipeline.OperationTypePending},
	{Operation: pipeline.OperationTypeExport},
	{Operation: pipeline.OperationTypePublish},
	{Operation: pipeline.OperationTypeCleanup},
}}

// Scheduler repeats the configured pipeline at SchedulerInterval. Without a pipeline.interval
// override the scheduler follows fetch_interval changes made while it runs.
func (container *Container) Scheduler(executionContext context.Context) (*pipeline.Scheduler, error) {
	executor, executorError := container.Executor(executionContext, container.configuration.Pipeline.StepConfiguration())
	if executorError != nil {
		return nil, executorError
	}
	interval := container.SchedulerInterval()
	var options []pipeline.SchedulerOption
	if container.configuration.Pipeline.Interval <= 0 {
		options = append(options, pipeline.WithIntervalSource(container.SchedulerInterval))
	}
	scheduler, schedulerError := pipeline.NewScheduler(executor, interval, container.logger, options...)
	if schedulerError != nil {
		return nil, fmt.Errorf(schedulerTemplateConstant, schedulerError)
	}
	container.logger.Info(schedulerConfiguredLogMessage, zap.Duration(logFieldIntervalConstant, interval))
	return scheduler, nil
}

// Server wires the REST API over the container services.
func (container *Container) Server(executionContext context.Context, options server.Options) (*server.Server, error) {
	paperStore, papersError := container.Papers()
	if papersError != nil {
		return nil, papersError
	}
	settingsStore, settingsError := container.Settings()
	if settingsError != nil {
		return nil, settingsError
	}
	paperFetcher, fetcherError := container.Fetcher()
	if fetcherError != nil {
		return nil, fetcherError
	}
	exporter, exporterError := container.Exporter()
	if exporterError != nil {
		return nil, exporterError
	}
	fetchRunner, fetchRunnerError := container.Executor(executionContext, manualFetchSteps)
	if fetchRunnerError != nil {
		return nil, fetchRunnerError
	}
	startupRunner, startupRunnerError := container.Executor(executionContext, startupSteps)
	if startupRunnerError != nil {
		return nil, startupRunnerError
	}

	dependencies := server.ServiceDependencies{
		Papers:        paperStore,
		Settings:      settingsStore,
		Fetcher:       paperFetcher,
		Exporter:      exporter,
		FetchRunner:   fetchRunner,
		StartupRunner: startupRunner,
		Metrics:       container.Metrics().Handler(),
		Logger:        container.logger,
	}
	if analyzer, analyzerError := container.Analyzer(); analyzerError == nil {
		dependencies.Analyzer = analyzer
	} else {
		container.logger.Warn(analyzerOptionalLogMessage, zap.Error(analyzerError))
	}
	if options.Scheduler {
		scheduler, schedulerError := container.Scheduler(executionContext)
		if schedulerError != nil {
			return nil, schedulerError
		}
		dependencies.Scheduler = scheduler
	}
	return server.NewServer(options, dependencies)
}
