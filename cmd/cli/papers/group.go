package papers

import "github.com/spf13/cobra"

const (
	groupUseConstant              = "papers"
	groupShortDescriptionConstant = "Browse and curate stored papers"
	groupLongDescriptionConstant  = "papers groups subcommands that list, search, render and curate the stored paper documents."
)

// CommandGroupBuilder assembles the papers command group.
type CommandGroupBuilder struct {
	LoggerProvider   LoggerProvider
	ServicesProvider ServicesProvider
}

// Build constructs the papers command hierarchy.
func (builder *CommandGroupBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   groupUseConstant,
		Short: groupShortDescriptionConstant,
		Long:  groupLongDescriptionConstant,
	}

	subcommandBuilders := []interface {
		Build() (*cobra.Command, error)
	}{
		&ListCommandBuilder{LoggerProvider: builder.LoggerProvider, ServicesProvider: builder.ServicesProvider},
		&ShowCommandBuilder{LoggerProvider: builder.LoggerProvider, ServicesProvider: builder.ServicesProvider},
		&SearchCommandBuilder{LoggerProvider: builder.LoggerProvider, ServicesProvider: builder.ServicesProvider},
		&StatsCommandBuilder{LoggerProvider: builder.LoggerProvider, ServicesProvider: builder.ServicesProvider},
		&CurateCommandBuilder{Action: ActionHide, LoggerProvider: builder.LoggerProvider, ServicesProvider: builder.ServicesProvider},
		&CurateCommandBuilder{Action: ActionUnhide, LoggerProvider: builder.LoggerProvider, ServicesProvider: builder.ServicesProvider},
		&CurateCommandBuilder{Action: ActionStar, LoggerProvider: builder.LoggerProvider, ServicesProvider: builder.ServicesProvider},
		&RelevanceCommandBuilder{LoggerProvider: builder.LoggerProvider, ServicesProvider: builder.ServicesProvider},
	}
	for _, subcommandBuilder := range subcommandBuilders {
		subcommand, buildError := subcommandBuilder.Build()
		if buildError == nil {
			command.AddCommand(subcommand)
		}
	}

	return command, nil
}
