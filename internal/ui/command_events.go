package ui

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/temirov/paperdigest/internal/execshell"
)

// quietGitSubcommands only inspect the checkout, so their progress lines stay at debug level.
var quietGitSubcommands = map[string]struct{}{
	"status":    {},
	"rev-parse": {},
	"config":    {},
	"remote":    {},
	"diff":      {},
}

// PublishProgressLogger prints one console line per git step of a publish.
type PublishProgressLogger struct {
	logger    *zap.Logger
	formatter execshell.CommandMessageFormatter
}

// NewPublishProgressLogger constructs a progress logger backed by a console zap logger.
func NewPublishProgressLogger(logger *zap.Logger) *PublishProgressLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishProgressLogger{logger: logger, formatter: execshell.CommandMessageFormatter{}}
}

// CommandStarted implements execshell.CommandEventObserver.
func (progressLogger *PublishProgressLogger) CommandStarted(command execshell.ShellCommand) {
	if progressLogger == nil {
		return
	}
	progressLogger.logger.Log(progressLevel(command), progressLogger.formatter.BuildStartedMessage(command))
}

// CommandCompleted implements execshell.CommandEventObserver. Non-zero exits are warnings
// because publishing is best effort.
func (progressLogger *PublishProgressLogger) CommandCompleted(command execshell.ShellCommand, result execshell.ExecutionResult) {
	if progressLogger == nil {
		return
	}
	if result.ExitCode != 0 {
		progressLogger.logger.Warn(progressLogger.formatter.BuildFailureMessage(command, result))
		return
	}
	progressLogger.logger.Log(progressLevel(command), progressLogger.formatter.BuildSuccessMessage(command))
}

// CommandExecutionFailed implements execshell.CommandEventObserver.
func (progressLogger *PublishProgressLogger) CommandExecutionFailed(command execshell.ShellCommand, failure error) {
	if progressLogger == nil {
		return
	}
	progressLogger.logger.Error(progressLogger.formatter.BuildExecutionFailureMessage(command, failure))
}

func progressLevel(command execshell.ShellCommand) zapcore.Level {
	if len(command.Details.Arguments) > 0 {
		if _, quiet := quietGitSubcommands[command.Details.Arguments[0]]; quiet {
			return zapcore.DebugLevel
		}
	}
	return zapcore.InfoLevel
}
