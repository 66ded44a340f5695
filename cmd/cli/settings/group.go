package settings

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/services"
)

const (
	groupUseConstant                   = "settings"
	groupShortDescriptionConstant      = "Inspect and change the runtime settings document"
	groupLongDescriptionConstant       = "settings manages the JSON document that holds keywords, categories, the date window and model parameters. The web interface edits the same document."
	servicesUnavailableMessageConstant = "application services are not configured"
	jsonIndentConstant                 = "  "
)

// LoggerProvider yields a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// ServicesProvider yields the service container built from the loaded configuration.
type ServicesProvider func() (*services.Container, error)

// Clock reports the current time.
type Clock func() time.Time

// CommandGroupBuilder assembles the settings command group.
type CommandGroupBuilder struct {
	LoggerProvider   LoggerProvider
	ServicesProvider ServicesProvider
	Clock            Clock
}

// Build constructs the settings command hierarchy.
func (builder *CommandGroupBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   groupUseConstant,
		Short: groupShortDescriptionConstant,
		Long:  groupLongDescriptionConstant,
	}

	command.AddCommand(
		builder.showCommand(),
		builder.initCommand(),
		builder.updateCommand(),
		builder.windowCommand(),
		builder.recheckCommand(),
	)
	return command, nil
}

func (builder *CommandGroupBuilder) logger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func (builder *CommandGroupBuilder) services() (*services.Container, error) {
	if builder.ServicesProvider == nil {
		return nil, errors.New(servicesUnavailableMessageConstant)
	}
	return builder.ServicesProvider()
}

func (builder *CommandGroupBuilder) now() time.Time {
	if builder.Clock == nil {
		return time.Now()
	}
	return builder.Clock()
}

func writeJSON(output io.Writer, payload any) error {
	encoder := json.NewEncoder(output)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", jsonIndentConstant)
	return encoder.Encode(payload)
}
