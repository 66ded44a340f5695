package digest

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/temirov/paperdigest/internal/staticbuild"
)

const (
	buildStaticUseConstant              = "build-static"
	buildStaticShortDescriptionConstant = "Build a cache-busted copy of the frontend"
	buildStaticLongDescriptionConstant  = "build-static copies the frontend directory and appends ?v=<hash> to every local script and stylesheet reference in its HTML files."
	sourceFlagNameConstant              = "source"
	sourceFlagUsageConstant             = "Frontend directory to copy"
	destinationFlagNameConstant         = "destination"
	destinationFlagUsageConstant        = "Directory receiving the built frontend (replaced)"
	builtTemplateConstant               = "Built %s: %d assets hashed, %d of %d HTML files updated\n"
)

// BuildStaticCommandBuilder assembles the build-static command.
type BuildStaticCommandBuilder struct {
	LoggerProvider   LoggerProvider
	ServicesProvider ServicesProvider
}

// Build constructs the build-static command.
func (builder *BuildStaticCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   buildStaticUseConstant,
		Short: buildStaticShortDescriptionConstant,
		Long:  buildStaticLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	command.Flags().String(sourceFlagNameConstant, "", sourceFlagUsageConstant)
	command.Flags().String(destinationFlagNameConstant, "", destinationFlagUsageConstant)
	return command, nil
}

func (builder *BuildStaticCommandBuilder) run(command *cobra.Command, _ []string) error {
	source, _ := command.Flags().GetString(sourceFlagNameConstant)
	destination, _ := command.Flags().GetString(destinationFlagNameConstant)
	if container, servicesError := resolveServices(builder.ServicesProvider); servicesError == nil {
		serverOptions := container.Configuration().Server
		source = firstNonBlank(source, serverOptions.FrontendDirectory)
		destination = firstNonBlank(destination, serverOptions.DistDirectory)
	}
	source      = firstNonBlank(source, staticbuild.DefaultSourceDirectory)
	destination = firstNonBlank(destination, staticbuild.DefaultDestinationDirectory)

	result, buildError := staticbuild.NewBuilder(resolveLogger(builder.LoggerProvider)).Build(source, destination)
	if buildError != nil {
		return buildError
	}
	_, writeError := fmt.Fprintf(command.OutOrStdout(), builtTemplateConstant, destination, len(result.Assets), result.UpdatedFiles, result.HTMLFiles)
	return writeError
}
