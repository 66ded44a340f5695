package workflow

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/temirov/paperdigest/internal/pipeline"
	"github.com/temirov/paperdigest/internal/utils"
)

const (
	runUseConstant                 = "run"
	runShortDescriptionConstant    = "Run the paper pipeline once"
	runLongDescriptionConstant     = "run executes the configured pipeline steps once: move the date window, fetch, analyze, export, publish and clean up. Use --steps or --steps-file to run a different step list."
	stepsFlagNameConstant          = "steps"
	stepsFlagUsageConstant         = "Comma-separated step names (regenerate-settings, fetch, analyze, pending, export, publish, cleanup)"
	stepsFileFlagNameConstant      = "steps-file"
	stepsFileFlagUsageConstant     = "YAML file with a steps list"
	runIdentifierFlagNameConstant  = "run-id"
	runIdentifierFlagUsageConstant = "Identifier recorded in the run logs instead of a generated one"
)

// RunCommandBuilder assembles the run command.
type RunCommandBuilder struct {
	LoggerProvider   LoggerProvider
	ServicesProvider ServicesProvider
}

// Build constructs the run command.
func (builder *RunCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   runUseConstant,
		Short: runShortDescriptionConstant,
		Long:  runLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	command.Flags().StringSlice(stepsFlagNameConstant, nil, stepsFlagUsageConstant)
	command.Flags().String(stepsFileFlagNameConstant, "", stepsFileFlagUsageConstant)
	bindRunIdentifierFlag(command)
	return command, nil
}

func (builder *RunCommandBuilder) run(command *cobra.Command, _ []string) error {
	container, servicesError := resolveServices(builder.ServicesProvider)
	if servicesError != nil {
		return servicesError
	}

	stepNames, _ := command.Flags().GetStringSlice(stepsFlagNameConstant)
	stepsFilePath, _ := command.Flags().GetString(stepsFileFlagNameConstant)
	steps, stepsError := ResolveSteps(stepNames, stepsFilePath, container.Configuration().Pipeline.StepConfiguration())
	if stepsError != nil {
		if helpError := displayCommandHelp(command); helpError != nil {
			return helpError
		}
		return stepsError
	}
	return executeSteps(command, container, steps)
}

func bindRunIdentifierFlag(command *cobra.Command) {
	command.Flags().String(runIdentifierFlagNameConstant, "", runIdentifierFlagUsageConstant)
}

type executorFactory interface {
	Executor(executionContext context.Context, steps pipeline.Configuration) (*pipeline.Executor, error)
}

// executeSteps runs the steps and prints the report even when a required step failed.
func executeSteps(command *cobra.Command, factory executorFactory, steps pipeline.Configuration) error {
	executionContext := command.Context()
	runIdentifier, _ := command.Flags().GetString(runIdentifierFlagNameConstant)
	if trimmed := strings.TrimSpace(runIdentifier); len(trimmed) > 0 {
		executionContext = utils.NewCommandContextAccessor().WithRunIdentifier(executionContext, trimmed)
	}

	executor, executorError := factory.Executor(executionContext, steps)
	if executorError != nil {
		return executorError
	}
	state, runError := executor.Execute(executionContext)
	if reportError := writeRunReport(utils.NewFlushingWriter(command.OutOrStdout()), state); reportError != nil && runError == nil {
		return reportError
	}
	return runError
}
