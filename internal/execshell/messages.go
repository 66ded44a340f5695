package execshell

import (
	"fmt"
	"path/filepath"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	commandArgumentsJoinSeparatorConstant   = " "
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	defaultWorkingDirectoryLabelConstant    = "current directory"
	fallbackUnknownValueLabelConstant       = "unknown"
	gitConfigurationOptionConstant          = "-c"
	gitDirectoryOptionConstant              = "-C"
	gitOptionPrefixConstant                 = "-"
	gitBranchFlagConstant                   = "--branch"
	gitDepthFlagConstant                    = "--depth"
	gitCommitMessageFlagConstant            = "-m"
	gitCloneSubcommandConstant              = "clone"
	gitPullSubcommandConstant               = "pull"
	gitAddSubcommandConstant                = "add"
	gitStatusSubcommandConstant             = "status"
	gitCommitSubcommandConstant             = "commit"
	gitPushSubcommandConstant               = "push"
)

const (
	gitCloneStartTemplateConstant             = "Cloning %s into %s"
	gitCloneSuccessTemplateConstant           = "Cloned %s into %s"
	gitCloneFailureTemplateConstant           = "Failed to clone %s into %s (exit code %d%s)"
	gitCloneExecutionFailureTemplateConstant  = "Unable to clone %s into %s: %s"
	gitPullStartTemplateConstant              = "Pulling latest changes in %s"
	gitPullSuccessTemplateConstant            = "Pulled latest changes in %s"
	gitPullFailureTemplateConstant            = "Failed to pull latest changes in %s (exit code %d%s)"
	gitPullExecutionFailureTemplateConstant   = "Unable to pull latest changes in %s: %s"
	gitAddStartTemplateConstant               = "Staging %s in %s"
	gitAddSuccessTemplateConstant             = "Staged %s in %s"
	gitAddFailureTemplateConstant             = "Failed to stage %s in %s (exit code %d%s)"
	gitAddExecutionFailureTemplateConstant    = "Unable to stage %s in %s: %s"
	gitStatusStartTemplateConstant            = "Reviewing working tree status in %s"
	gitStatusSuccessTemplateConstant          = "Collected working tree status for %s"
	gitStatusFailureTemplateConstant          = "Failed to review working tree status in %s (exit code %d%s)"
	gitStatusExecutionFailureTemplateConstant = "Unable to review working tree status in %s: %s"
	gitCommitStartTemplateConstant            = "Creating commit in %s with message %q"
	gitCommitSuccessTemplateConstant          = "Created commit in %s with message %q"
	gitCommitFailureTemplateConstant          = "Failed to create commit in %s with message %q (exit code %d%s)"
	gitCommitExecutionFailureTemplateConstant = "Unable to create commit in %s with message %q: %s"
	gitPushStartTemplateConstant              = "Pushing %s to %s from %s"
	gitPushSuccessTemplateConstant            = "Pushed %s to %s from %s"
	gitPushFailureTemplateConstant            = "Failed to push %s to %s from %s (exit code %d%s)"
	gitPushExecutionFailureTemplateConstant   = "Unable to push %s to %s from %s: %s"
)

// stageTemplates holds the four message templates of one git subcommand.
type stageTemplates struct {
	start            string
	success          string
	failure          string
	executionFailure string
}

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	if command.Name != CommandGit {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	subcommand, subcommandArguments := splitGitSubcommand(command.Details.Arguments)
	workingDirectory := formatter.describeWorkingDirectory(command)

	switch subcommand {
	case gitCloneSubcommandConstant:
		positional := positionalArguments(subcommandArguments, gitBranchFlagConstant, gitDepthFlagConstant)
		source := ensureValue(argumentAtIndex(positional, 0))
		destination := ensureValue(argumentAtIndex(positional, 1))
		return formatter.render(stageTemplates{gitCloneStartTemplateConstant, gitCloneSuccessTemplateConstant, gitCloneFailureTemplateConstant, gitCloneExecutionFailureTemplateConstant}, stage, result, failure, source, destination)
	case gitPullSubcommandConstant:
		return formatter.render(stageTemplates{gitPullStartTemplateConstant, gitPullSuccessTemplateConstant, gitPullFailureTemplateConstant, gitPullExecutionFailureTemplateConstant}, stage, result, failure, workingDirectory)
	case gitAddSubcommandConstant:
		paths := strings.Join(positionalArguments(subcommandArguments), commandArgumentsJoinSeparatorConstant)
		return formatter.render(stageTemplates{gitAddStartTemplateConstant, gitAddSuccessTemplateConstant, gitAddFailureTemplateConstant, gitAddExecutionFailureTemplateConstant}, stage, result, failure, ensureValue(paths), workingDirectory)
	case gitStatusSubcommandConstant:
		return formatter.render(stageTemplates{gitStatusStartTemplateConstant, gitStatusSuccessTemplateConstant, gitStatusFailureTemplateConstant, gitStatusExecutionFailureTemplateConstant}, stage, result, failure, workingDirectory)
	case gitCommitSubcommandConstant:
		commitMessage := flagValue(subcommandArguments, gitCommitMessageFlagConstant)
		return formatter.render(stageTemplates{gitCommitStartTemplateConstant, gitCommitSuccessTemplateConstant, gitCommitFailureTemplateConstant, gitCommitExecutionFailureTemplateConstant}, stage, result, failure, workingDirectory, commitMessage)
	case gitPushSubcommandConstant:
		positional := positionalArguments(subcommandArguments)
		remote := ensureValue(argumentAtIndex(positional, 0))
		reference := ensureValue(argumentAtIndex(positional, 1))
		return formatter.render(stageTemplates{gitPushStartTemplateConstant, gitPushSuccessTemplateConstant, gitPushFailureTemplateConstant, gitPushExecutionFailureTemplateConstant}, stage, result, failure, reference, remote, workingDirectory)
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) render(templates stageTemplates, stage messageStage, result ExecutionResult, failure error, values ...any) string {
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(templates.start, values...)
	case messageStageSuccess:
		return fmt.Sprintf(templates.success, values...)
	case messageStageFailure:
		return fmt.Sprintf(templates.failure, append(values, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))...)
	default:
		return fmt.Sprintf(templates.executionFailure, append(values, formatter.describeFailure(failure))...)
	}
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := formatter.formatCommandLabel(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, commandLabel)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, commandLabel)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	_, visibleArguments := splitGitSubcommand(command.Details.Arguments)
	commandParts := []string{string(command.Name)}
	if subcommand, _ := splitGitSubcommand(command.Details.Arguments); len(subcommand) > 0 {
		commandParts = append(commandParts, subcommand)
	}
	commandParts = append(commandParts, visibleArguments...)
	commandLabel := strings.Join(commandParts, commandArgumentsJoinSeparatorConstant)
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return commandLabel
	}
	return commandLabel + fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return filepath.Clean(trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

// splitGitSubcommand skips global options such as "-c key=value" and "-C dir", which may carry
// credential helpers, and returns the subcommand with its own arguments.
func splitGitSubcommand(arguments []string) (string, []string) {
	for argumentIndex := 0; argumentIndex < len(arguments); argumentIndex++ {
		argument := strings.TrimSpace(arguments[argumentIndex])
		if argument == gitConfigurationOptionConstant || argument == gitDirectoryOptionConstant {
			argumentIndex++
			continue
		}
		if strings.HasPrefix(argument, gitOptionPrefixConstant) {
			continue
		}
		return argument, arguments[argumentIndex+1:]
	}
	return emptyStringConstant, nil
}

// positionalArguments drops flags and the values of flags listed in valueFlags.
func positionalArguments(arguments []string, valueFlags ...string) []string {
	positional := make([]string, 0, len(arguments))
	for argumentIndex := 0; argumentIndex < len(arguments); argumentIndex++ {
		argument := strings.TrimSpace(arguments[argumentIndex])
		if containsArgument(valueFlags, argument) {
			argumentIndex++
			continue
		}
		if strings.HasPrefix(argument, gitOptionPrefixConstant) {
			continue
		}
		positional = append(positional, argument)
	}
	return positional
}

func flagValue(arguments []string, flagName string) string {
	for argumentIndex := 0; argumentIndex+1 < len(arguments); argumentIndex++ {
		if strings.TrimSpace(arguments[argumentIndex]) == flagName {
			return arguments[argumentIndex+1]
		}
	}
	return emptyStringConstant
}

func argumentAtIndex(arguments []string, index int) string {
	if index < 0 || index >= len(arguments) {
		return emptyStringConstant
	}
	return arguments[index]
}

func ensureValue(value string) string {
	trimmedValue := strings.TrimSpace(value)
	if len(trimmedValue) == 0 {
		return fallbackUnknownValueLabelConstant
	}
	return trimmedValue
}

func containsArgument(arguments []string, target string) bool {
	for _, argument := range arguments {
		if strings.TrimSpace(argument) == target {
			return true
		}
	}
	return false
}
