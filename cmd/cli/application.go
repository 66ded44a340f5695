package cli

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/temirov/paperdigest/cmd/cli/digest"
	paperscmd "github.com/temirov/paperdigest/cmd/cli/papers"
	"github.com/temirov/paperdigest/cmd/cli/serve"
	settingscmd "github.com/temirov/paperdigest/cmd/cli/settings"
	workflowcmd "github.com/temirov/paperdigest/cmd/cli/workflow"
	"github.com/temirov/paperdigest/internal/publish"
	"github.com/temirov/paperdigest/internal/server"
	"github.com/temirov/paperdigest/internal/services"
	"github.com/temirov/paperdigest/internal/utils"
)

const (
	applicationNameConstant                 = "paperdigest"
	applicationShortDescriptionConstant     = "Poll arXiv, analyze papers with an LLM and publish a digest"
	applicationLongDescriptionConstant      = "paperdigest fetches new arXiv papers for configured categories, filters and summarizes them with an OpenAI-compatible chat model, exports the relevant ones as Markdown and publishes the digest to a GitHub Pages repository."
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level."
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format (structured or console)."
	commonConfigurationKeyConstant          = "common"
	commonLogLevelConfigKeyConstant         = commonConfigurationKeyConstant + ".log_level"
	commonLogFormatConfigKeyConstant        = commonConfigurationKeyConstant + ".log_format"
	environmentPrefixConstant               = "PAPERDIGEST"
	configurationNameConstant               = "paperdigest"
	configurationTypeConstant               = "yaml"
	configurationInitializedMessageConstant = "configuration initialized"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	rootCommandInfoMessageConstant          = "paperdigest CLI executed"
	rootCommandDebugMessageConstant         = "paperdigest CLI diagnostics"
	logFieldCommandNameConstant             = "command_name"
	logFieldArgumentCountConstant           = "argument_count"
	logFieldArgumentsConstant               = "arguments"
	loggerNotInitializedMessageConstant     = "logger not initialized"
	defaultConfigurationSearchPathConstant  = "."
	userConfigurationSearchPathConstant     = "~/.config/paperdigest"
	versionTemplateConstant                 = "paperdigest version: {{.Version}}\n"
	developmentVersionConstant              = "dev"
	develBuildVersionConstant               = "(devel)"
)

// buildVersion is set at link time with -ldflags "-X github.com/temirov/paperdigest/cmd/cli.buildVersion=v1.2.3".
var buildVersion string

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common   ApplicationCommonConfiguration `mapstructure:"common"`
	Storage  services.StorageConfiguration  `mapstructure:"storage"`
	Arxiv    services.ArxivConfiguration    `mapstructure:"arxiv"`
	LLM      services.LLMConfiguration      `mapstructure:"llm"`
	Pipeline services.PipelineConfiguration `mapstructure:"pipeline"`
	Publish  publish.Options                `mapstructure:"publish"`
	Server   server.Options                 `mapstructure:"server"`
}

// ApplicationCommonConfiguration stores logging configuration shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Services returns the domain sections consumed by the service container.
func (configuration ApplicationConfiguration) Services() services.Configuration {
	return services.Configuration{
		Storage:  configuration.Storage,
		Arxiv:    configuration.Arxiv,
		LLM:      configuration.LLM,
		Publish:  configuration.Publish,
		Pipeline: configuration.Pipeline,
		Server:   configuration.Server,
	}
}

// Application wires the Cobra root command, configuration loader, and structured logger.
type Application struct {
	rootCommand            *cobra.Command
	configurationLoader    *utils.ConfigurationLoader
	loggerFactory          *utils.LoggerFactory
	logger                 *zap.Logger
	configuration          ApplicationConfiguration
	configurationMetadata  utils.LoadedConfiguration
	configurationFilePath  string
	logLevelFlagValue      string
	logFormatFlagValue     string
	commandContextAccessor utils.CommandContextAccessor
	serviceDependencies    services.Dependencies
	servicesOnce           sync.Once
	servicesContainer      *services.Container
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() *Application {
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		[]string{defaultConfigurationSearchPathConstant, userConfigurationSearchPathConstant},
	)
	configurationLoader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration())

	application := &Application{
		configurationLoader:    configurationLoader,
		loggerFactory:          utils.NewLoggerFactory(),
		logger:                 zap.NewNop(),
		commandContextAccessor: utils.NewCommandContextAccessor(),
	}

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		Version:       resolveVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.runRootCommand(command, arguments)
		},
	}

	cobraCommand.SetContext(context.Background())
	cobraCommand.SetVersionTemplate(versionTemplateConstant)
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)

	loggerProvider := func() *zap.Logger {
		return application.logger
	}

	commandBuilders := []interface {
		Build() (*cobra.Command, error)
	}{
		&workflowcmd.RunCommandBuilder{LoggerProvider: loggerProvider, ServicesProvider: application.services},
		&workflowcmd.WatchCommandBuilder{LoggerProvider: loggerProvider, ServicesProvider: application.services},
		&workflowcmd.FetchCommandBuilder{LoggerProvider: loggerProvider, ServicesProvider: application.services},
		&workflowcmd.AnalyzeCommandBuilder{LoggerProvider: loggerProvider, ServicesProvider: application.services},
		&paperscmd.CommandGroupBuilder{LoggerProvider: loggerProvider, ServicesProvider: application.services},
		&paperscmd.AskCommandBuilder{LoggerProvider: loggerProvider, ServicesProvider: application.services},
		&digest.ExportCommandBuilder{LoggerProvider: loggerProvider, ServicesProvider: application.services},
		&digest.PublishCommandBuilder{LoggerProvider: loggerProvider, ServicesProvider: application.services},
		&digest.BuildStaticCommandBuilder{LoggerProvider: loggerProvider, ServicesProvider: application.services},
		&serve.CommandBuilder{LoggerProvider: loggerProvider, ServicesProvider: application.services},
		&settingscmd.CommandGroupBuilder{LoggerProvider: loggerProvider, ServicesProvider: application.services},
		&configurationCommandBuilder{application: application},
	}
	for _, commandBuilder := range commandBuilders {
		subcommand, buildError := commandBuilder.Build()
		if buildError == nil {
			cobraCommand.AddCommand(subcommand)
		}
	}

	application.rootCommand = cobraCommand

	return application
}

// Execute runs the configured Cobra command hierarchy and ensures logger flushing.
func (application *Application) Execute() error {
	executionError := application.rootCommand.Execute()
	if syncError := application.flushLogger(); syncError != nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	return NewApplication().Execute()
}

// services builds the service container once, after configuration has been loaded.
func (application *Application) services() (*services.Container, error) {
	application.servicesOnce.Do(func() {
		dependencies := application.serviceDependencies
		dependencies.Logger = application.logger
		dependencies.HumanReadableLogging = application.humanReadableLoggingEnabled()
		application.servicesContainer = services.NewContainer(application.configuration.Services(), dependencies)
	})
	return application.servicesContainer, nil
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	defaultValues := map[string]any{
		commonLogLevelConfigKeyConstant:  string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant: string(utils.LogFormatStructured),
	}

	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, defaultValues, &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	application.configurationMetadata = loadedConfiguration

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}

	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	logger, loggerCreationError := application.loggerFactory.CreateLogger(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = logger

	application.logger.Info(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
	)

	if command != nil {
		updatedContext := application.commandContextAccessor.WithConfigurationFilePath(
			command.Context(),
			application.configurationMetadata.ConfigFileUsed,
		)
		command.SetContext(updatedContext)
		if rootCommand := command.Root(); rootCommand != nil {
			rootCommand.SetContext(updatedContext)
		}
	}

	return nil
}

func (application *Application) humanReadableLoggingEnabled() bool {
	logFormatValue := strings.TrimSpace(application.configuration.Common.LogFormat)
	return strings.EqualFold(logFormatValue, string(utils.LogFormatConsole))
}

func (application *Application) runRootCommand(command *cobra.Command, arguments []string) error {
	if application.logger == nil {
		return errors.New(loggerNotInitializedMessageConstant)
	}

	application.logger.Info(
		rootCommandInfoMessageConstant,
		zap.String(logFieldCommandNameConstant, command.Name()),
		zap.Int(logFieldArgumentCountConstant, len(arguments)),
	)

	application.logger.Debug(
		rootCommandDebugMessageConstant,
		zap.Strings(logFieldArgumentsConstant, arguments),
	)

	if len(arguments) == 0 {
		return command.Help()
	}

	return nil
}

func (application *Application) flushLogger() error {
	if syncError := application.syncLoggerInstance(application.logger); syncError != nil {
		return syncError
	}
	return nil
}

func (application *Application) syncLoggerInstance(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}

	syncError := logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	case errors.Is(syncError, syscall.ENOTTY):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	rootCommand := command.Root()
	if rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}

		if flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}

// resolveVersion prefers the link-time version, then the module version recorded by go install.
func resolveVersion() string {
	if trimmed := strings.TrimSpace(buildVersion); len(trimmed) > 0 {
		return trimmed
	}
	if buildInformation, available := debug.ReadBuildInfo(); available {
		moduleVersion := strings.TrimSpace(buildInformation.Main.Version)
		if len(moduleVersion) > 0 && moduleVersion != develBuildVersionConstant {
			return moduleVersion
		}
	}
	return developmentVersionConstant
}
