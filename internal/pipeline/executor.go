package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/utils"
)

const (
	// RunStatusSucceeded marks a run where every step completed.
	RunStatusSucceeded = "succeeded"
	// RunStatusDegraded marks a run where only best-effort steps failed.
	RunStatusDegraded = "degraded"
	// RunStatusFailed marks a run stopped by a required step.
	RunStatusFailed = "failed"

	executorSettingsRequiredMessageConstant = "pipeline requires a settings store"
	executorLoadSettingsTemplateConstant    = "failed to load settings: %w"
	executorStepFailedTemplateConstant      = "%s step failed: %w"
	runStartedLogMessageConstant            = "Pipeline run started"
	runFinishedLogMessageConstant           = "Pipeline run finished"
	stepStartedLogMessageConstant           = "Pipeline step started"
	bestEffortFailedLogMessageConstant      = "Best-effort step failed, continuing"
	logFieldRunIDConstant                   = "run_id"
	logFieldStepConstant                    = "step"
	logFieldStepsConstant                   = "steps"
	logFieldStatusConstant                  = "status"
	logFieldDurationConstant                = "duration"
)

// ErrSettingsStoreRequired indicates that the executor cannot load settings.
var ErrSettingsStoreRequired = errors.New(executorSettingsRequiredMessageConstant)

// RunRecorder observes finished runs.
type RunRecorder interface {
	RunFinished(status string, duration time.Duration)
}

// Executor runs an ordered list of operations against a shared environment.
type Executor struct {
	operations  []Operation
	environment Environment
	recorder    RunRecorder
}

// NewExecutor constructs an executor. A nil logger is replaced with a no-op logger.
func NewExecutor(operations []Operation, environment Environment, recorder RunRecorder) *Executor {
	if environment.Logger == nil {
		environment.Logger = zap.NewNop()
	}
	return &Executor{operations: operations, environment: environment, recorder: recorder}
}

// Execute loads the current settings and runs every operation in order. Required steps stop
// the run on failure; best-effort steps are recorded in State.Failures.
// A run identifier attached to the context is reused; otherwise a new one is generated.
func (executor *Executor) Execute(executionContext context.Context) (*State, error) {
	startedAt := time.Now()
	runIdentifier, provided := utils.NewCommandContextAccessor().RunIdentifier(executionContext)
	if !provided {
		runIdentifier = uuid.NewString()
	}
	state := &State{RunID: runIdentifier}
	runEnvironment := executor.environment
	runEnvironment.Logger = executor.environment.Logger.With(zap.String(logFieldRunIDConstant, state.RunID))

	runError := executor.run(executionContext, &runEnvironment, state)
	status := runStatus(state, runError)
	duration := time.Since(startedAt)
	if executor.recorder != nil {
		executor.recorder.RunFinished(status, duration)
	}
	runEnvironment.Logger.Info(runFinishedLogMessageConstant,
		zap.String(logFieldStatusConstant, status),
		zap.Duration(logFieldDurationConstant, duration),
	)
	return state, runError
}

func (executor *Executor) run(executionContext context.Context, environment *Environment, state *State) error {
	if environment.Settings == nil {
		return ErrSettingsStoreRequired
	}
	loaded, loadError := environment.Settings.Load()
	if loadError != nil {
		return fmt.Errorf(executorLoadSettingsTemplateConstant, loadError)
	}
	state.Settings = loaded
	environment.Logger.Info(runStartedLogMessageConstant, zap.Int(logFieldStepsConstant, len(executor.operations)))

	for _, operation := range executor.operations {
		if contextError := executionContext.Err(); contextError != nil {
			return contextError
		}
		environment.Logger.Debug(stepStartedLogMessageConstant, zap.String(logFieldStepConstant, operation.Name()))
		operationError := operation.Execute(executionContext, environment, state)
		if operationError == nil {
			continue
		}
		if isBestEffort(operation) && executionContext.Err() == nil {
			state.Failures = append(state.Failures, StepFailure{Operation: operation.Name(), Error: operationError})
			environment.Logger.Warn(bestEffortFailedLogMessageConstant,
				zap.String(logFieldStepConstant, operation.Name()),
				zap.Error(operationError),
			)
			continue
		}
		return fmt.Errorf(executorStepFailedTemplateConstant, operation.Name(), operationError)
	}
	return nil
}

func isBestEffort(operation Operation) bool {
	bestEffort, implements := operation.(BestEffortOperation)
	return implements && bestEffort.BestEffort()
}

func runStatus(state *State, runError error) string {
	switch {
	case runError != nil:
		return RunStatusFailed
	case len(state.Failures) > 0:
		return RunStatusDegraded
	default:
		return RunStatusSucceeded
	}
}
