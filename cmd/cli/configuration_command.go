package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	configurationGroupUseConstant              = "config"
	configurationGroupShortDescriptionConstant = "Manage the paperdigest configuration file"
	configurationInitUseConstant               = "init"
	configurationInitShortDescriptionConstant  = "Write the default configuration to disk"
	configurationInitLongDescriptionConstant   = "init writes the embedded default configuration so it can be edited. Existing files are kept unless --force is given."
	configurationPathFlagNameConstant          = "path"
	configurationPathFlagUsageConstant         = "Destination of the configuration file"
	configurationForceFlagNameConstant         = "force"
	configurationForceFlagUsageConstant        = "Overwrite an existing configuration file"
	defaultConfigurationPathConstant           = configurationNameConstant + "." + configurationTypeConstant
	configurationWrittenTemplateConstant       = "Configuration written: %s\n"
	configurationWrittenLogMessageConstant     = "Configuration file written"
	logFieldPathConstant                       = "path"
)

type configurationCommandBuilder struct {
	application *Application
}

func (builder *configurationCommandBuilder) Build() (*cobra.Command, error) {
	groupCommand := &cobra.Command{
		Use:   configurationGroupUseConstant,
		Short: configurationGroupShortDescriptionConstant,
	}

	initCommand := &cobra.Command{
		Use:   configurationInitUseConstant,
		Short: configurationInitShortDescriptionConstant,
		Long:  configurationInitLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.runInit,
	}
	initCommand.Flags().String(configurationPathFlagNameConstant, defaultConfigurationPathConstant, configurationPathFlagUsageConstant)
	initCommand.Flags().Bool(configurationForceFlagNameConstant, false, configurationForceFlagUsageConstant)

	groupCommand.AddCommand(initCommand)
	return groupCommand, nil
}

func (builder *configurationCommandBuilder) runInit(command *cobra.Command, arguments []string) error {
	targetPath, _ := command.Flags().GetString(configurationPathFlagNameConstant)
	overwrite, _ := command.Flags().GetBool(configurationForceFlagNameConstant)

	writtenPath, writeError := builder.application.configurationLoader.WriteEmbeddedConfiguration(targetPath, overwrite)
	if writeError != nil {
		return writeError
	}

	builder.application.logger.Debug(configurationWrittenLogMessageConstant, zap.String(logFieldPathConstant, writtenPath))
	_, printError := fmt.Fprintf(command.OutOrStdout(), configurationWrittenTemplateConstant, writtenPath)
	return printError
}
