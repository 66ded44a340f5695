package digest

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/services"
)

const servicesUnavailableMessageConstant = "application services are not configured"

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

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); len(trimmed) > 0 {
			return trimmed
		}
	}
	return ""
}
