package execshell

// CommandEventObserver receives lifecycle notifications for git invocations made while publishing.
type CommandEventObserver interface {
	CommandStarted(command ShellCommand)
	CommandCompleted(command ShellCommand, result ExecutionResult)
	// CommandExecutionFailed reports failures that happened before a result existed, such as a missing git binary.
	CommandExecutionFailed(command ShellCommand, failure error)
}

// CommandEventObservers fans each event out to every non-nil observer in order.
type CommandEventObservers []CommandEventObserver

// CommandStarted implements CommandEventObserver.
func (observers CommandEventObservers) CommandStarted(command ShellCommand) {
	for _, observer := range observers {
		if observer != nil {
			observer.CommandStarted(command)
		}
	}
}

// CommandCompleted implements CommandEventObserver.
func (observers CommandEventObservers) CommandCompleted(command ShellCommand, result ExecutionResult) {
	for _, observer := range observers {
		if observer != nil {
			observer.CommandCompleted(command, result)
		}
	}
}

// CommandExecutionFailed implements CommandEventObserver.
func (observers CommandEventObservers) CommandExecutionFailed(command ShellCommand, failure error) {
	for _, observer := range observers {
		if observer != nil {
			observer.CommandExecutionFailed(command, failure)
		}
	}
}

type noopCommandEventObserver struct{}

func (noopCommandEventObserver) CommandStarted(ShellCommand) {}

func (noopCommandEventObserver) CommandCompleted(ShellCommand, ExecutionResult) {}

func (noopCommandEventObserver) CommandExecutionFailed(ShellCommand, error) {}
