package workflow

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/temirov/paperdigest/internal/papers"
	"github.com/temirov/paperdigest/internal/pipeline"
	"github.com/temirov/paperdigest/internal/services"
	"github.com/temirov/paperdigest/internal/utils"
)

const (
	fetchUseConstant               = "fetch"
	fetchShortDescriptionConstant  = "Fetch and analyze papers from the settings window"
	fetchLongDescriptionConstant   = "fetch searches arXiv for the configured categories inside the settings date window, stores new papers and runs both analysis stages over them."
	maxResultsFlagNameConstant     = "max-results"
	maxResultsFlagUsageConstant    = "Maximum results requested per category (0 uses the settings value)"
	categoriesFlagNameConstant     = "categories"
	categoriesFlagUsageConstant    = "Categories to search instead of the configured ones"
	noAnalyzeFlagNameConstant      = "no-analyze"
	noAnalyzeFlagUsageConstant     = "Store fetched papers without analyzing them"
	identifierFlagNameConstant     = "id"
	identifierFlagUsageConstant    = "Fetch these arXiv identifiers instead of searching the window"
	fetchedSummaryTemplateConstant = "Fetched %d papers\n"
	fetchOptionMaxResultsConstant  = "max_results"
	fetchOptionCategoriesConstant  = "categories"
)

// FetchCommandBuilder assembles the fetch command.
type FetchCommandBuilder struct {
	LoggerProvider   LoggerProvider
	ServicesProvider ServicesProvider
}

// Build constructs the fetch command.
func (builder *FetchCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   fetchUseConstant,
		Short: fetchShortDescriptionConstant,
		Long:  fetchLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	command.Flags().Int(maxResultsFlagNameConstant, 0, maxResultsFlagUsageConstant)
	command.Flags().StringSlice(categoriesFlagNameConstant, nil, categoriesFlagUsageConstant)
	command.Flags().Bool(noAnalyzeFlagNameConstant, false, noAnalyzeFlagUsageConstant)
	command.Flags().StringSlice(identifierFlagNameConstant, nil, identifierFlagUsageConstant)
	bindRunIdentifierFlag(command)
	return command, nil
}

func (builder *FetchCommandBuilder) run(command *cobra.Command, _ []string) error {
	container, servicesError := resolveServices(builder.ServicesProvider)
	if servicesError != nil {
		return servicesError
	}
	maxResults, _ := command.Flags().GetInt(maxResultsFlagNameConstant)
	categories, _ := command.Flags().GetStringSlice(categoriesFlagNameConstant)
	noAnalyze, _ := command.Flags().GetBool(noAnalyzeFlagNameConstant)
	identifiers, _ := command.Flags().GetStringSlice(identifierFlagNameConstant)
	if len(identifiers) > 0 {
		return builder.fetchIdentifiers(command, container, identifiers, !noAnalyze)
	}
	return executeSteps(command, container, FetchSteps(maxResults, categories, !noAnalyze))
}

func (builder *FetchCommandBuilder) fetchIdentifiers(command *cobra.Command, container *services.Container, identifiers []string, analyze bool) error {
	paperFetcher, fetcherError := container.Fetcher()
	if fetcherError != nil {
		return fetcherError
	}
	fetched := make([]papers.Paper, 0, len(identifiers))
	for _, identifier := range identifiers {
		paper, fetchError := paperFetcher.FetchSingle(command.Context(), identifier)
		if fetchError != nil {
			return fetchError
		}
		fetched = append(fetched, paper)
	}

	var analyzeError error
	if analyze {
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
		var analyzed []papers.Paper
		analyzed, analyzeError = analyzer.ProcessPapers(command.Context(), fetched, currentSettings, false)
		if len(analyzed) > 0 {
			fetched = analyzed
		}
	}

	output := utils.NewFlushingWriter(command.OutOrStdout())
	if writeError := writePaperLines(output, fetched); writeError != nil {
		return writeError
	}
	if _, writeError := fmt.Fprintf(output, fetchedSummaryTemplateConstant, len(fetched)); writeError != nil {
		return writeError
	}
	return analyzeError
}

// FetchSteps builds the step list of a manual fetch.
func FetchSteps(maxResults int, categories []string, analyze bool) pipeline.Configuration {
	options := map[string]any{}
	if maxResults > 0 {
		options[fetchOptionMaxResultsConstant] = maxResults
	}
	if len(categories) > 0 {
		options[fetchOptionCategoriesConstant] = categories
	}
	steps := pipeline.Configuration{Steps: []pipeline.StepConfiguration{
		{Operation: pipeline.OperationTypeFetch, Options: options},
	}}
	if analyze {
		steps.Steps = append(steps.Steps, pipeline.StepConfiguration{Operation: pipeline.OperationTypeAnalyze})
	}
	return steps
}
