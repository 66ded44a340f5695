package workflow

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/papers"
	"github.com/temirov/paperdigest/internal/utils"
)

const (
	analyzeUseConstant              = "analyze [paper-id...]"
	analyzeShortDescriptionConstant = "Analyze stored papers"
	analyzeLongDescriptionConstant  = "analyze runs the relevance filter and deep analysis over stored papers. Without identifiers it processes every paper that has no verdict yet; --pending instead finishes deep analysis for relevant papers that lack a summary."
	pendingFlagNameConstant         = "pending"
	pendingFlagUsageConstant        = "Only finish deep analysis for relevant papers without a summary"
	skipFilterFlagNameConstant      = "skip-filter"
	skipFilterFlagUsageConstant     = "Skip the relevance filter for the listed papers"
	analyzedSummaryTemplateConstant = "Analyzed %d papers\n"
	pendingWithIdentifiersMessage   = "--pending cannot be combined with paper identifiers"
	analyzeFinishedLogMessage       = "Analysis command finished"
	logFieldPapersConstant          = "papers"
)

// AnalyzeCommandBuilder assembles the analyze command.
type AnalyzeCommandBuilder struct {
	LoggerProvider   LoggerProvider
	ServicesProvider ServicesProvider
}

// Build constructs the analyze command.
func (builder *AnalyzeCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   analyzeUseConstant,
		Short: analyzeShortDescriptionConstant,
		Long:  analyzeLongDescriptionConstant,
		RunE:  builder.run,
	}
	command.Flags().Bool(pendingFlagNameConstant, false, pendingFlagUsageConstant)
	command.Flags().Bool(skipFilterFlagNameConstant, false, skipFilterFlagUsageConstant)
	return command, nil
}

func (builder *AnalyzeCommandBuilder) run(command *cobra.Command, arguments []string) error {
	pendingOnly, _ := command.Flags().GetBool(pendingFlagNameConstant)
	if pendingOnly && len(arguments) > 0 {
		if helpError := displayCommandHelp(command); helpError != nil {
			return helpError
		}
		return errors.New(pendingWithIdentifiersMessage)
	}

	container, servicesError := resolveServices(builder.ServicesProvider)
	if servicesError != nil {
		return servicesError
	}
	settingsStore, settingsError := container.Settings()
	if settingsError != nil {
		return settingsError
	}
	currentSettings, loadError := settingsStore.Load()
	if loadError != nil {
		return loadError
	}
	analyzer, analyzerError := container.Analyzer()
	if analyzerError != nil {
		return analyzerError
	}

	var (
		analyzed     []papers.Paper
		processError error
	)
	switch {
	case pendingOnly:
		analyzed, processError = analyzer.AnalyzePending(command.Context(), currentSettings)
	case len(arguments) == 0:
		analyzed, processError = analyzer.AnalyzeUnanalyzed(command.Context(), currentSettings)
	default:
		store, storeError := container.Papers()
		if storeError != nil {
			return storeError
		}
		candidates := make([]papers.Paper, 0, len(arguments))
		for _, identifier := range arguments {
			candidate, candidateError := store.Load(identifier)
			if candidateError != nil {
				return candidateError
			}
			candidates = append(candidates, candidate)
		}
		skipFilter, _ := command.Flags().GetBool(skipFilterFlagNameConstant)
		analyzed, processError = analyzer.ProcessPapers(command.Context(), candidates, currentSettings, skipFilter)
	}

	resolveLogger(builder.LoggerProvider).Info(analyzeFinishedLogMessage, zap.Int(logFieldPapersConstant, len(analyzed)))
	output := utils.NewFlushingWriter(command.OutOrStdout())
	if writeError := writePaperLines(output, analyzed); writeError != nil {
		return writeError
	}
	if _, writeError := fmt.Fprintf(output, analyzedSummaryTemplateConstant, len(analyzed)); writeError != nil {
		return writeError
	}
	return processError
}
