package digest

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/publish"
)

const (
	publishUseConstant              = "publish <folder>"
	publishShortDescriptionConstant = "Publish an export folder to the Pages repository"
	publishLongDescriptionConstant  = "publish copies an export folder into the configured Pages repository, commits it and pushes the branch."
	dryRunFlagNameConstant          = "dry-run"
	dryRunFlagUsageConstant         = "Report what would be published without committing"
	folderRequiredMessageConstant   = "export folder required"
	publishedTemplateConstant       = "Published %s to %s (%s)\n"
	publishedDetailsTemplate        = "files: %d committed: %t pushed: %t pages build: %t\n"
	publishFinishedLogMessage       = "Publish command finished"
	logFieldOutcomeConstant         = "outcome"
)

// PublishCommandBuilder assembles the publish command.
type PublishCommandBuilder struct {
	LoggerProvider   LoggerProvider
	ServicesProvider ServicesProvider
}

// Build constructs the publish command.
func (builder *PublishCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   publishUseConstant,
		Short: publishShortDescriptionConstant,
		Long:  publishLongDescriptionConstant,
		Args:  cobra.MaximumNArgs(1),
		RunE:  builder.run,
	}
	command.Flags().Bool(dryRunFlagNameConstant, false, dryRunFlagUsageConstant)
	return command, nil
}

func (builder *PublishCommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) == 0 || len(strings.TrimSpace(arguments[0])) == 0 {
		_ = command.Help()
		return errors.New(folderRequiredMessageConstant)
	}
	container, servicesError := resolveServices(builder.ServicesProvider)
	if servicesError != nil {
		return servicesError
	}

	options := container.Configuration().Publish
	if command.Flags().Changed(dryRunFlagNameConstant) {
		options.DryRun, _ = command.Flags().GetBool(dryRunFlagNameConstant)
	}
	publisher, publisherError := container.PublisherWithOptions(command.Context(), options)
	if publisherError != nil {
		return publisherError
	}
	result, publishError := publisher.Publish(command.Context(), arguments[0])
	resolveLogger(builder.LoggerProvider).Info(publishFinishedLogMessage, zap.String(logFieldOutcomeConstant, result.Outcome))
	if publishError != nil {
		return publishError
	}
	return writePublishResult(command.OutOrStdout(), result)
}

func writePublishResult(output io.Writer, result publish.Result) error {
	if _, writeError := fmt.Fprintf(output, publishedTemplateConstant, result.Folder, result.Destination, result.Outcome); writeError != nil {
		return writeError
	}
	_, writeError := fmt.Fprintf(output, publishedDetailsTemplate, result.FilesCopied, result.Committed, result.Pushed, result.PagesBuildRequested)
	return writeError
}
