package papers

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/services"
)

const (
	servicesUnavailableMessageConstant = "application services are not configured"
	paperIdentifierRequiredMessage     = "paper identifier required"
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

func requireIdentifier(command *cobra.Command, arguments []string) (string, error) {
	if len(arguments) > 0 && len(arguments[0]) > 0 {
		return arguments[0], nil
	}
	if command != nil {
		_ = command.Help()
	}
	return "", errors.New(paperIdentifierRequiredMessage)
}
