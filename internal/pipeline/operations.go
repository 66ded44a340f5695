package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/export"
	"github.com/temirov/paperdigest/internal/fetcher"
)

const (
	// DefaultDaysBack is the width of the regenerated date window.
	DefaultDaysBack = 1

	regenerateTemplateConstant        = "failed to regenerate settings window: %w"
	fetchTemplateConstant             = "failed to fetch papers: %w"
	analyzeTemplateConstant           = "failed to analyze papers: %w"
	pendingTemplateConstant           = "failed to analyze pending papers: %w"
	exportTemplateConstant            = "failed to export papers: %w"
	cleanupTemplateConstant           = "failed to clean up papers: %w"
	dependencyMissingTemplateConstant = "%s step requires a configured %s"

	settingsRegeneratedLogMessage   = "Settings window regenerated"
	nothingToAnalyzeLogMessage      = "No new papers to analyze"
	analysisFinishedLogMessage      = "Analysis finished"
	pendingFinishedLogMessage       = "Pending deep analysis finished"
	exportFinishedLogMessage        = "Export finished"
	publishDisabledLogMessage       = "Publishing disabled, skipping"
	publishNoExportLogMessage       = "No export in this run, skipping publish"
	publishFinishedLogMessage       = "Publish finished"
	cleanupDisabledLogMessage       = "Cleanup disabled, skipping"
	cleanupNotPublishedLogMessage   = "Export was not published, keeping papers"
	cleanupFinishedLogMessage       = "Paper documents removed"
	logFieldStartDateConstant       = "start_date"
	logFieldEndDateConstant         = "end_date"
	logFieldPapersConstant          = "papers"
	logFieldExportedConstant        = "exported"
	logFieldFolderConstant          = "folder"
	logFieldOutcomeConstant         = "outcome"
	logFieldRemovedConstant         = "removed"
	dependencySettingsStoreConstant = "settings store"
	dependencyFetcherConstant       = "fetcher"
	dependencyAnalyzerConstant      = "analyzer"
	dependencyExporterConstant      = "exporter"
	dependencyCleanerConstant       = "paper store"
)

func missingDependency(operation OperationType, dependency string) error {
	return fmt.Errorf(dependencyMissingTemplateConstant, operation, dependency)
}

// RegenerateSettingsOperation moves the settings date window so it ends today.
type RegenerateSettingsOperation struct {
	DaysBack int
}

// Name identifies the operation.
func (operation *RegenerateSettingsOperation) Name() string {
	return string(OperationTypeRegenerateSettings)
}

// Execute persists the new window and makes it visible to later steps.
func (operation *RegenerateSettingsOperation) Execute(_ context.Context, environment *Environment, state *State) error {
	if environment.Settings == nil {
		return missingDependency(OperationTypeRegenerateSettings, dependencySettingsStoreConstant)
	}
	regenerated, regenerateError := environment.Settings.RegenerateDateWindow(environment.now(), operation.DaysBack)
	if regenerateError != nil {
		return fmt.Errorf(regenerateTemplateConstant, regenerateError)
	}
	state.Settings = regenerated
	environment.Logger.Info(settingsRegeneratedLogMessage,
		zap.String(logFieldStartDateConstant, regenerated.StartDate),
		zap.String(logFieldEndDateConstant, regenerated.EndDate),
	)
	return nil
}

// FetchOperation downloads papers from the configured categories.
type FetchOperation struct {
	MaxResults int
	Categories []string
}

// Name identifies the operation.
func (operation *FetchOperation) Name() string {
	return string(OperationTypeFetch)
}

// Execute stores newly fetched papers in the run state.
func (operation *FetchOperation) Execute(executionContext context.Context, environment *Environment, state *State) error {
	if environment.Fetcher == nil {
		return missingDependency(OperationTypeFetch, dependencyFetcherConstant)
	}
	fetched, fetchError := environment.Fetcher.FetchLatest(executionContext, state.Settings, fetcher.Options{
		MaxResults: operation.MaxResults,
		Categories: operation.Categories,
	})
	if fetchError != nil {
		return fmt.Errorf(fetchTemplateConstant, fetchError)
	}
	state.Fetched = append(state.Fetched, fetched...)
	return nil
}

// AnalyzeOperation runs both analysis stages over the papers fetched in this run.
type AnalyzeOperation struct{}

// Name identifies the operation.
func (operation *AnalyzeOperation) Name() string {
	return string(OperationTypeAnalyze)
}

// Execute analyzes state.Fetched.
func (operation *AnalyzeOperation) Execute(executionContext context.Context, environment *Environment, state *State) error {
	if environment.Analyzer == nil {
		return missingDependency(OperationTypeAnalyze, dependencyAnalyzerConstant)
	}
	if len(state.Fetched) == 0 {
		environment.Logger.Info(nothingToAnalyzeLogMessage)
		return nil
	}
	analyzed, analyzeError := environment.Analyzer.ProcessPapers(executionContext, state.Fetched, state.Settings, false)
	state.Analyzed = append(state.Analyzed, analyzed...)
	if analyzeError != nil {
		return fmt.Errorf(analyzeTemplateConstant, analyzeError)
	}
	environment.Logger.Info(analysisFinishedLogMessage, zap.Int(logFieldPapersConstant, len(analyzed)))
	return nil
}

// PendingOperation finishes deep analysis for relevant papers that lack it.
type PendingOperation struct{}

// Name identifies the operation.
func (operation *PendingOperation) Name() string {
	return string(OperationTypePending)
}

// Execute runs deep analysis over every pending paper in the store.
func (operation *PendingOperation) Execute(executionContext context.Context, environment *Environment, state *State) error {
	if environment.Analyzer == nil {
		return missingDependency(OperationTypePending, dependencyAnalyzerConstant)
	}
	analyzed, pendingError := environment.Analyzer.AnalyzePending(executionContext, state.Settings)
	state.Analyzed = append(state.Analyzed, analyzed...)
	if pendingError != nil {
		return fmt.Errorf(pendingTemplateConstant, pendingError)
	}
	environment.Logger.Info(pendingFinishedLogMessage, zap.Int(logFieldPapersConstant, len(analyzed)))
	return nil
}

// ExportOperation writes the Markdown digest for the settings window.
type ExportOperation struct {
	MinScore        float64
	OutputDirectory string
}

// Name identifies the operation.
func (operation *ExportOperation) Name() string {
	return string(OperationTypeExport)
}

// BestEffort reports that export failures do not fail the run.
func (operation *ExportOperation) BestEffort() bool {
	return true
}

// Execute exports and records the result for the publish step.
func (operation *ExportOperation) Execute(_ context.Context, environment *Environment, state *State) error {
	if environment.Exporter == nil {
		return missingDependency(OperationTypeExport, dependencyExporterConstant)
	}
	outputDirectory := operation.OutputDirectory
	if len(outputDirectory) == 0 {
		outputDirectory = environment.ExportDirectory
	}
	result, exportError := environment.Exporter.Export(export.Options{
		MinScore:        operation.MinScore,
		StartDate:       state.Settings.StartDate,
		EndDate:         state.Settings.EndDate,
		OutputDirectory: outputDirectory,
	})
	if exportError != nil {
		return fmt.Errorf(exportTemplateConstant, exportError)
	}
	state.Export = &result
	environment.Logger.Info(exportFinishedLogMessage,
		zap.Int(logFieldExportedConstant, result.ExportedPapers),
		zap.String(logFieldFolderConstant, result.OutputFolder),
	)
	return nil
}

// PublishOperation pushes the folder written by the export step.
type PublishOperation struct{}

// Name identifies the operation.
func (operation *PublishOperation) Name() string {
	return string(OperationTypePublish)
}

// BestEffort reports that publish failures do not fail the run.
func (operation *PublishOperation) BestEffort() bool {
	return true
}

// Execute publishes state.Export. Without a publisher or an export the step is skipped.
func (operation *PublishOperation) Execute(executionContext context.Context, environment *Environment, state *State) error {
	if environment.Publisher == nil {
		environment.Logger.Info(publishDisabledLogMessage)
		return nil
	}
	if state.Export == nil {
		environment.Logger.Info(publishNoExportLogMessage)
		return nil
	}
	result, publishError := environment.Publisher.Publish(executionContext, state.Export.OutputFolder)
	if publishError != nil {
		return publishError
	}
	state.Publish = &result
	environment.Logger.Info(publishFinishedLogMessage,
		zap.String(logFieldFolderConstant, result.Folder),
		zap.String(logFieldOutcomeConstant, result.Outcome),
	)
	return nil
}

// CleanupOperation removes paper documents once the digest is published.
type CleanupOperation struct {
	Enabled        *bool
	RequirePublish bool
}

// Name identifies the operation.
func (operation *CleanupOperation) Name() string {
	return string(OperationTypeCleanup)
}

// BestEffort reports that cleanup failures do not fail the run.
func (operation *CleanupOperation) BestEffort() bool {
	return true
}

// Execute deletes every stored paper when enabled and, if required, only after a successful publish.
func (operation *CleanupOperation) Execute(_ context.Context, environment *Environment, state *State) error {
	enabled := environment.CleanupEnabled
	if operation.Enabled != nil {
		enabled = *operation.Enabled
	}
	if !enabled {
		environment.Logger.Debug(cleanupDisabledLogMessage)
		return nil
	}
	if operation.RequirePublish && state.Publish == nil {
		environment.Logger.Info(cleanupNotPublishedLogMessage)
		return nil
	}
	if environment.Cleaner == nil {
		return missingDependency(OperationTypeCleanup, dependencyCleanerConstant)
	}
	removed, cleanupError := environment.Cleaner.DeleteAll()
	state.CleanedFiles += removed
	if cleanupError != nil {
		return fmt.Errorf(cleanupTemplateConstant, cleanupError)
	}
	environment.Logger.Info(cleanupFinishedLogMessage, zap.Int(logFieldRemovedConstant, removed))
	return nil
}

// ErrUnsupportedOperation indicates an unknown step name.
var ErrUnsupportedOperation = errors.New("unsupported pipeline operation")

// BuildOperations converts the declarative configuration into executable operations.
func BuildOperations(configuration Configuration) ([]Operation, error) {
	operations := make([]Operation, 0, len(configuration.Steps))
	for _, step := range configuration.Steps {
		operation, buildError := buildOperationFromStep(step)
		if buildError != nil {
			return nil, buildError
		}
		operations = append(operations, operation)
	}
	return operations, nil
}

func buildOperationFromStep(step StepConfiguration) (Operation, error) {
	switch step.Operation {
	case OperationTypeRegenerateSettings, OperationTypeFetch, OperationTypeAnalyze, OperationTypePending,
		OperationTypeExport, OperationTypePublish, OperationTypeCleanup:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, step.Operation)
	}

	options, optionsError := decodeStepOptions(step)
	if optionsError != nil {
		return nil, optionsError
	}

	switch step.Operation {
	case OperationTypeRegenerateSettings:
		daysBack := DefaultDaysBack
		if options.DaysBack != nil {
			daysBack = *options.DaysBack
		}
		return &RegenerateSettingsOperation{DaysBack: daysBack}, nil
	case OperationTypeFetch:
		return &FetchOperation{MaxResults: options.MaxResults, Categories: options.Categories}, nil
	case OperationTypeAnalyze:
		return &AnalyzeOperation{}, nil
	case OperationTypePending:
		return &PendingOperation{}, nil
	case OperationTypeExport:
		minScore := export.DefaultMinScore
		if options.MinScore != nil {
			minScore = *options.MinScore
		}
		return &ExportOperation{MinScore: minScore, OutputDirectory: options.OutputDirectory}, nil
	case OperationTypePublish:
		return &PublishOperation{}, nil
	default:
		operation := &CleanupOperation{RequirePublish: true, Enabled: options.Enabled}
		if options.RequirePublish != nil {
			operation.RequirePublish = *options.RequirePublish
		}
		return operation, nil
	}
}
