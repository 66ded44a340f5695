package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	// DefaultInterval matches the default fetch_interval setting of 300 seconds.
	DefaultInterval = 5 * time.Minute

	scheduleTemplateConstant               = "@every %s"
	scheduleRegisterErrorTemplateConstant  = "failed to register pipeline schedule: %w"
	schedulerIntervalMessageConstant       = "scheduler interval must be positive"
	schedulerRunnerMessageConstant         = "scheduler requires a runner"
	schedulerStartedLogMessageConstant     = "Scheduler started"
	schedulerStoppedLogMessageConstant     = "Scheduler stopped"
	schedulerRescheduledLogMessageConstant = "Scheduler interval changed"
	scheduledRunSkippedLogMessageConstant  = "Scheduled run skipped, previous run still in progress"
	rescheduleFailedLogMessageConstant     = "Scheduler interval refresh failed"
	logFieldPreviousIntervalConstant       = "previous_interval"
	scheduledRunFailedLogMessageConstant   = "Scheduled run failed"
	logFieldIntervalConstant               = "interval"
	logFieldNextRunConstant                = "next_run"
	logFieldDetailsConstant                = "details"
)

var (
	// ErrInvalidInterval indicates a non-positive schedule interval.
	ErrInvalidInterval = errors.New(schedulerIntervalMessageConstant)
	// ErrRunnerRequired indicates a scheduler without work to run.
	ErrRunnerRequired = errors.New(schedulerRunnerMessageConstant)
)

// Runner executes one pipeline run.
type Runner interface {
	Execute(executionContext context.Context) (*State, error)
}

// IntervalSource reports the interval the scheduler should currently use.
type IntervalSource func() time.Duration

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithIntervalSource makes the scheduler re-read its interval after every run and on Refresh.
func WithIntervalSource(source IntervalSource) SchedulerOption {
	return func(scheduler *Scheduler) {
		scheduler.intervalSource = source
	}
}

// Scheduler triggers the pipeline on an interval. A run still in progress when the
// next tick fires causes that tick to be skipped.
type Scheduler struct {
	runner         Runner
	logger         *zap.Logger
	cron           *cron.Cron
	intervalSource IntervalSource
	running        atomic.Bool

	mutex      sync.Mutex
	interval   time.Duration
	entryID    cron.EntryID
	cancel     context.CancelFunc
	runContext context.Context
}

// NewScheduler validates the interval and registers the run with cron.
func NewScheduler(runner Runner, interval time.Duration, logger *zap.Logger, options ...SchedulerOption) (*Scheduler, error) {
	if runner == nil {
		return nil, ErrRunnerRequired
	}
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	scheduler := &Scheduler{runner: runner, interval: interval, logger: logger}
	for _, option := range options {
		option(scheduler)
	}
	scheduler.cron = cron.New(cron.WithChain(
		cron.Recover(cronLogger{logger: logger}),
		cron.SkipIfStillRunning(cronLogger{logger: logger}),
	))
	entryID, addError := scheduler.cron.AddFunc(fmt.Sprintf(scheduleTemplateConstant, interval), scheduler.runOnce)
	if addError != nil {
		return nil, fmt.Errorf(scheduleRegisterErrorTemplateConstant, addError)
	}
	scheduler.entryID = entryID
	return scheduler, nil
}

// Start begins ticking. Runs are bound to executionContext and stop with it.
func (scheduler *Scheduler) Start(executionContext context.Context) {
	runContext, cancel := context.WithCancel(executionContext)
	scheduler.mutex.Lock()
	scheduler.cancel = cancel
	scheduler.runContext = runContext
	scheduler.mutex.Unlock()

	go func() {
		<-runContext.Done()
		scheduler.Stop()
	}()

	scheduler.cron.Start()
	scheduler.logger.Info(schedulerStartedLogMessageConstant,
		zap.Duration(logFieldIntervalConstant, scheduler.Interval()),
		zap.Time(logFieldNextRunConstant, scheduler.NextRun()),
	)
}

// Stop prevents new runs and waits for a running one to return.
func (scheduler *Scheduler) Stop() {
	scheduler.mutex.Lock()
	cancel := scheduler.cancel
	scheduler.cancel = nil
	scheduler.mutex.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-scheduler.cron.Stop().Done()
	scheduler.logger.Info(schedulerStoppedLogMessageConstant)
}

// NextRun reports when the next tick fires, or the zero time before Start.
func (scheduler *Scheduler) NextRun() time.Time {
	scheduler.mutex.Lock()
	entryID := scheduler.entryID
	scheduler.mutex.Unlock()
	return scheduler.cron.Entry(entryID).Next
}

// Interval reports the interval currently registered with cron.
func (scheduler *Scheduler) Interval() time.Duration {
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()
	return scheduler.interval
}

// Refresh re-reads the interval source and reschedules when the interval changed.
// Without a source it does nothing.
func (scheduler *Scheduler) Refresh() error {
	if scheduler.intervalSource == nil {
		return nil
	}
	return scheduler.Reschedule(scheduler.intervalSource())
}

// Reschedule replaces the cron entry so the next tick fires one interval from now.
func (scheduler *Scheduler) Reschedule(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()
	previousInterval := scheduler.interval
	if interval == previousInterval {
		return nil
	}
	entryID, addError := scheduler.cron.AddFunc(fmt.Sprintf(scheduleTemplateConstant, interval), scheduler.runOnce)
	if addError != nil {
		return fmt.Errorf(scheduleRegisterErrorTemplateConstant, addError)
	}
	scheduler.cron.Remove(scheduler.entryID)
	scheduler.entryID = entryID
	scheduler.interval = interval
	scheduler.logger.Info(schedulerRescheduledLogMessageConstant,
		zap.Duration(logFieldIntervalConstant, interval),
		zap.Duration(logFieldPreviousIntervalConstant, previousInterval),
	)
	return nil
}

// runOnce executes one scheduled run. Ticks from a replaced cron entry can overlap a run
// started by its successor, so the running flag guards across entries.
func (scheduler *Scheduler) runOnce() {
	scheduler.mutex.Lock()
	runContext := scheduler.runContext
	scheduler.mutex.Unlock()
	if runContext == nil || runContext.Err() != nil {
		return
	}
	if !scheduler.running.CompareAndSwap(false, true) {
		scheduler.logger.Info(scheduledRunSkippedLogMessageConstant)
		return
	}
	defer scheduler.running.Store(false)

	if _, runError := scheduler.runner.Execute(runContext); runError != nil && runContext.Err() == nil {
		scheduler.logger.Warn(scheduledRunFailedLogMessageConstant, zap.Error(runError))
	}
	if refreshError := scheduler.Refresh(); refreshError != nil {
		scheduler.logger.Warn(rescheduleFailedLogMessageConstant, zap.Error(refreshError))
	}
}

// cronLogger adapts zap to the cron.Logger interface.
type cronLogger struct {
	logger *zap.Logger
}

func (adapter cronLogger) Info(message string, keysAndValues ...any) {
	adapter.logger.Debug(message, zap.Any(logFieldDetailsConstant, keysAndValues))
}

func (adapter cronLogger) Error(err error, message string, keysAndValues ...any) {
	adapter.logger.Error(message, zap.Error(err), zap.Any(logFieldDetailsConstant, keysAndValues))
}
