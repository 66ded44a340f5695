package workflow

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/utils"
)

const (
	watchUseConstant               = "watch"
	watchShortDescriptionConstant  = "Run the pipeline on a schedule"
	watchLongDescriptionConstant   = "watch repeats the configured pipeline every pipeline.interval (or the settings fetch interval) until interrupted."
	runNowFlagNameConstant         = "run-now"
	runNowFlagUsageConstant        = "Run the pipeline once before waiting for the first tick"
	nextRunTemplateConstant        = "Next run at %s\n"
	watchStoppedLogMessageConstant = "Watch stopped"
	runFailedLogMessageConstant    = "Initial run failed, waiting for the schedule"
)

// WatchCommandBuilder assembles the watch command.
type WatchCommandBuilder struct {
	LoggerProvider   LoggerProvider
	ServicesProvider ServicesProvider
}

// Build constructs the watch command.
func (builder *WatchCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   watchUseConstant,
		Short: watchShortDescriptionConstant,
		Long:  watchLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	command.Flags().Bool(runNowFlagNameConstant, false, runNowFlagUsageConstant)
	return command, nil
}

func (builder *WatchCommandBuilder) run(command *cobra.Command, _ []string) error {
	container, servicesError := resolveServices(builder.ServicesProvider)
	if servicesError != nil {
		return servicesError
	}

	executionContext, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runNow, _ := command.Flags().GetBool(runNowFlagNameConstant)
	if runNow {
		steps := container.Configuration().Pipeline.StepConfiguration()
		executor, executorError := container.Executor(executionContext, steps)
		if executorError != nil {
			return executorError
		}
		state, runError := executor.Execute(executionContext)
		if reportError := writeRunReport(utils.NewFlushingWriter(command.OutOrStdout()), state); reportError != nil {
			return reportError
		}
		if runError != nil && executionContext.Err() == nil {
			resolveLogger(builder.LoggerProvider).Warn(runFailedLogMessageConstant, zap.Error(runError))
		}
	}

	scheduler, schedulerError := container.Scheduler(executionContext)
	if schedulerError != nil {
		return schedulerError
	}
	scheduler.Start(executionContext)
	if _, writeError := fmt.Fprintf(command.OutOrStdout(), nextRunTemplateConstant, scheduler.NextRun().Format(time.RFC3339)); writeError != nil {
		scheduler.Stop()
		return writeError
	}

	<-executionContext.Done()
	scheduler.Stop()
	resolveLogger(builder.LoggerProvider).Info(watchStoppedLogMessageConstant)
	return nil
}
