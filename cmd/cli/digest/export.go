package digest

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/temirov/paperdigest/internal/export"
	"github.com/temirov/paperdigest/internal/utils"
)

const (
	exportUseConstant                = "export"
	exportShortDescriptionConstant   = "Export the settings window as Markdown"
	exportLongDescriptionConstant    = "export writes one Markdown file per paper scoring at least --min-score and published inside the date window into <output-dir>/<start>_to_<end>."
	minScoreFlagNameConstant         = "min-score"
	minScoreFlagUsageConstant        = "Lowest relevance score to export"
	outputDirectoryFlagNameConstant  = "output-dir"
	outputDirectoryFlagUsageConstant = "Directory receiving the export folder"
	startDateFlagNameConstant        = "start-date"
	startDateFlagUsageConstant       = "First day of the window (YYYY-MM-DD), defaults to the settings window"
	endDateFlagNameConstant          = "end-date"
	endDateFlagUsageConstant         = "Last day of the window (YYYY-MM-DD), defaults to the settings window"
	publishFlagNameConstant          = "publish"
	publishFlagUsageConstant         = "Publish the export folder when it is written"
	exportedTemplateConstant         = "Exported %d of %d papers to %s\n"
	exportFailuresTemplateConstant   = "Failed to write %d papers\n"
)

// ExportCommandBuilder assembles the export command.
type ExportCommandBuilder struct {
	LoggerProvider   LoggerProvider
	ServicesProvider ServicesProvider
}

// Build constructs the export command.
func (builder *ExportCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   exportUseConstant,
		Short: exportShortDescriptionConstant,
		Long:  exportLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	command.Flags().Float64(minScoreFlagNameConstant, export.DefaultMinScore, minScoreFlagUsageConstant)
	command.Flags().String(outputDirectoryFlagNameConstant, "", outputDirectoryFlagUsageConstant)
	command.Flags().String(startDateFlagNameConstant, "", startDateFlagUsageConstant)
	command.Flags().String(endDateFlagNameConstant, "", endDateFlagUsageConstant)
	command.Flags().Bool(publishFlagNameConstant, false, publishFlagUsageConstant)
	return command, nil
}

func (builder *ExportCommandBuilder) run(command *cobra.Command, _ []string) error {
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
	exporter, exporterError := container.Exporter()
	if exporterError != nil {
		return exporterError
	}

	minScore, _ := command.Flags().GetFloat64(minScoreFlagNameConstant)
	outputDirectory, _ := command.Flags().GetString(outputDirectoryFlagNameConstant)
	startDate, _ := command.Flags().GetString(startDateFlagNameConstant)
	endDate, _ := command.Flags().GetString(endDateFlagNameConstant)
	result, exportError := exporter.Export(export.Options{
		MinScore:        minScore,
		StartDate:       firstNonBlank(startDate, currentSettings.StartDate),
		EndDate:         firstNonBlank(endDate, currentSettings.EndDate),
		OutputDirectory: firstNonBlank(outputDirectory, container.Configuration().Server.ExportDirectory),
	})
	if exportError != nil {
		return exportError
	}

	output := utils.NewFlushingWriter(command.OutOrStdout())
	if _, writeError := fmt.Fprintf(output, exportedTemplateConstant, result.ExportedPapers, result.TotalPapers, result.OutputFolder); writeError != nil {
		return writeError
	}
	if result.FailedPapers > 0 {
		if _, writeError := fmt.Fprintf(output, exportFailuresTemplateConstant, result.FailedPapers); writeError != nil {
			return writeError
		}
	}

	publishAfterExport, _ := command.Flags().GetBool(publishFlagNameConstant)
	if !publishAfterExport {
		return nil
	}
	publisher, publisherError := container.Publisher(command.Context())
	if publisherError != nil {
		return publisherError
	}
	publishResult, publishError := publisher.Publish(command.Context(), result.OutputFolder)
	if publishError != nil {
		return publishError
	}
	return writePublishResult(output, publishResult)
}
