package serve

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/services"
)

const (
	commandUseConstant                 = "serve"
	commandShortDescriptionConstant    = "Serve the paper API and web interface"
	commandLongDescriptionConstant     = "serve starts the REST API and the frontend, finishes pending deep analysis in the background and, unless disabled, runs the pipeline on its schedule until interrupted."
	listenFlagNameConstant             = "listen"
	listenFlagUsageConstant            = "Address the HTTP server listens on"
	noSchedulerFlagNameConstant        = "no-scheduler"
	noSchedulerFlagUsageConstant       = "Do not run the pipeline on a schedule"
	noPendingFlagNameConstant          = "no-pending"
	noPendingFlagUsageConstant         = "Skip pending deep analysis at startup"
	servicesUnavailableMessageConstant = "application services are not configured"
	serveStartingLogMessageConstant    = "Starting server"
	logFieldAddressConstant            = "address"
	logFieldSchedulerConstant          = "scheduler"
)

// LoggerProvider yields a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// ServicesProvider yields the service container built from the loaded configuration.
type ServicesProvider func() (*services.Container, error)

// CommandBuilder assembles the serve command.
type CommandBuilder struct {
	LoggerProvider   LoggerProvider
	ServicesProvider ServicesProvider
}

// Build constructs the serve command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	command.Flags().String(listenFlagNameConstant, "", listenFlagUsageConstant)
	command.Flags().Bool(noSchedulerFlagNameConstant, false, noSchedulerFlagUsageConstant)
	command.Flags().Bool(noPendingFlagNameConstant, false, noPendingFlagUsageConstant)
	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, _ []string) error {
	if builder.ServicesProvider == nil {
		return errors.New(servicesUnavailableMessageConstant)
	}
	container, servicesError := builder.ServicesProvider()
	if servicesError != nil {
		return servicesError
	}

	options := container.Configuration().Server
	if listenAddress, _ := command.Flags().GetString(listenFlagNameConstant); len(listenAddress) > 0 {
		options.ListenAddress = listenAddress
	}
	if disabled, _ := command.Flags().GetBool(noSchedulerFlagNameConstant); disabled {
		options.Scheduler = false
	}
	if disabled, _ := command.Flags().GetBool(noPendingFlagNameConstant); disabled {
		options.PendingOnStartup = false
	}

	executionContext, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, serverError := container.Server(executionContext, options)
	if serverError != nil {
		return serverError
	}
	logger := container.Logger()
	if builder.LoggerProvider != nil {
		if provided := builder.LoggerProvider(); provided != nil {
			logger = provided
		}
	}
	logger.Info(serveStartingLogMessageConstant,
		zap.String(logFieldAddressConstant, options.ListenAddress),
		zap.Bool(logFieldSchedulerConstant, options.Scheduler),
	)
	return server.Run(executionContext)
}
