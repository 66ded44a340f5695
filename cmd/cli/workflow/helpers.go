package workflow

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/papers"
	"github.com/temirov/paperdigest/internal/pipeline"
	"github.com/temirov/paperdigest/internal/services"
)

const (
	servicesUnavailableMessageConstant = "application services are not configured"
	runHeaderTemplateConstant          = "Run %s\n"
	fetchedTemplateConstant            = "fetched: %d\n"
	analyzedTemplateConstant           = "analyzed: %d\n"
	exportedTemplateConstant           = "exported: %d of %d to %s\n"
	publishedTemplateConstant          = "published: %s (%s)\n"
	cleanedTemplateConstant            = "cleaned: %d\n"
	failureTemplateConstant            = "failed: %s: %v\n"
	paperLineTemplateConstant          = "%s\tscore=%s\trelevant=%t\t%s\n"
)

// LoggerProvider yields a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// ServicesProvider yields the service container built from the loaded configuration.
type ServicesProvider func() (*services.Container, error)

func resolveLogger(provider LoggerProvider) *zap.Logger {
	if provider == nil {
		return zap.NewNop()
	}
	logger := provider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func resolveServices(provider ServicesProvider) (*services.Container, error) {
	if provider == nil {
		return nil, errors.New(servicesUnavailableMessageConstant)
	}
	return provider()
}

func displayCommandHelp(command *cobra.Command) error {
	if command == nil {
		return nil
	}
	return command.Help()
}

// writeRunReport prints what a pipeline run did. Steps that did not run are omitted.
func writeRunReport(output io.Writer, state *pipeline.State) error {
	if state == nil {
		return nil
	}
	var report strings.Builder
	fmt.Fprintf(&report, runHeaderTemplateConstant, state.RunID)
	fmt.Fprintf(&report, fetchedTemplateConstant, len(state.Fetched))
	fmt.Fprintf(&report, analyzedTemplateConstant, len(state.Analyzed))
	if state.Export != nil {
		fmt.Fprintf(&report, exportedTemplateConstant, state.Export.ExportedPapers, state.Export.TotalPapers, state.Export.OutputFolder)
	}
	if state.Publish != nil {
		fmt.Fprintf(&report, publishedTemplateConstant, state.Publish.Folder, state.Publish.Outcome)
	}
	if state.CleanedFiles > 0 {
		fmt.Fprintf(&report, cleanedTemplateConstant, state.CleanedFiles)
	}
	for _, failure := range state.Failures {
		fmt.Fprintf(&report, failureTemplateConstant, failure.Operation, failure.Error)
	}
	_, writeError := io.WriteString(output, report.String())
	return writeError
}

func writePaperLines(output io.Writer, analyzed []papers.Paper) error {
	var lines strings.Builder
	for _, paper := range analyzed {
		fmt.Fprintf(&lines, paperLineTemplateConstant, paper.ID, papers.FormatScore(paper.RelevanceScore), paper.Relevant(), paper.Title)
	}
	_, writeError := io.WriteString(output, lines.String())
	return writeError
}
