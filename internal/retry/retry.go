// Package retry runs operations with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultMaxAttemptsConstant    = 3
	defaultInitialDelayConstant   = time.Second
	defaultMultiplierConstant     = 2.0
	attemptsExhaustedTemplate     = "giving up after %d attempts: %w"
	operationMissingMessage       = "retry operation must be provided"
	permanentErrorMessageTemplate = "permanent failure: %v"
	steadyErrorMessageTemplate    = "retry without backoff: %v"
)

// ErrOperationMissing indicates that Do received a nil operation.
var ErrOperationMissing = errors.New(operationMissingMessage)

// Sleeper waits for the given duration or until the context ends.
type Sleeper func(waitContext context.Context, duration time.Duration) error

// Policy describes how many times an operation runs and how long to wait between runs.
// Delays grow as InitialDelay * Multiplier^attempt and are capped by MaxDelay when it is set.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	OnRetry      func(attempt int, wait time.Duration, failure error)
	Sleep        Sleeper
}

// DefaultPolicy returns three attempts starting at one second and doubling.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: defaultMaxAttemptsConstant, InitialDelay: defaultInitialDelayConstant, Multiplier: defaultMultiplierConstant}
}

// WithInitialDelay returns a copy of the policy using the provided first delay.
func (policy Policy) WithInitialDelay(initialDelay time.Duration) Policy {
	policy.InitialDelay = initialDelay
	return policy
}

// Delay reports the wait that follows the zero-based attempt.
func (policy Policy) Delay(attempt int) time.Duration {
	sanitized := policy.sanitize()
	delay := float64(sanitized.InitialDelay)
	for step := 0; step < attempt; step++ {
		delay *= sanitized.Multiplier
	}
	resolvedDelay := time.Duration(delay)
	if sanitized.MaxDelay > 0 && resolvedDelay > sanitized.MaxDelay {
		return sanitized.MaxDelay
	}
	return resolvedDelay
}

func (policy Policy) sanitize() Policy {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaultMaxAttemptsConstant
	}
	if policy.InitialDelay < 0 {
		policy.InitialDelay = 0
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = defaultMultiplierConstant
	}
	if policy.Sleep == nil {
		policy.Sleep = SleepContext
	}
	return policy
}

// PermanentError marks a failure that must not be retried.
type PermanentError struct {
	Cause error
}

// Error describes the permanent failure.
func (failure PermanentError) Error() string {
	return fmt.Sprintf(permanentErrorMessageTemplate, failure.Cause)
}

// Unwrap exposes the underlying cause.
func (failure PermanentError) Unwrap() error {
	return failure.Cause
}

// Permanent wraps err so Do stops immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return PermanentError{Cause: err}
}

// SteadyError marks a failure retried after InitialDelay without exponential growth.
type SteadyError struct {
	Cause error
}

// Error describes the failure.
func (failure SteadyError) Error() string {
	return fmt.Sprintf(steadyErrorMessageTemplate, failure.Cause)
}

// Unwrap exposes the underlying cause.
func (failure SteadyError) Unwrap() error {
	return failure.Cause
}

// Steady wraps err so Do waits InitialDelay before the next attempt instead of backing off.
func Steady(err error) error {
	if err == nil {
		return nil
	}
	return SteadyError{Cause: err}
}

// Do runs operation until it succeeds, returns a permanent error, the attempts run out, or the context ends.
// The zero-based attempt number is passed to operation.
func Do(executionContext context.Context, policy Policy, operation func(attemptContext context.Context, attempt int) error) error {
	if operation == nil {
		return ErrOperationMissing
	}
	sanitized := policy.sanitize()

	var lastError error
	for attempt := 0; attempt < sanitized.MaxAttempts; attempt++ {
		if contextError := executionContext.Err(); contextError != nil {
			return contextError
		}

		operationError := operation(executionContext, attempt)
		if operationError == nil {
			return nil
		}

		var permanentError PermanentError
		if errors.As(operationError, &permanentError) {
			return permanentError.Cause
		}
		wait := sanitized.Delay(attempt)
		var steadyError SteadyError
		if errors.As(operationError, &steadyError) {
			operationError = steadyError.Cause
			wait = sanitized.Delay(0)
		}
		lastError = operationError

		if attempt == sanitized.MaxAttempts-1 {
			break
		}

		if sanitized.OnRetry != nil {
			sanitized.OnRetry(attempt, wait, operationError)
		}
		if sleepError := sanitized.Sleep(executionContext, wait); sleepError != nil {
			return sleepError
		}
	}

	return fmt.Errorf(attemptsExhaustedTemplate, sanitized.MaxAttempts, lastError)
}

// SleepContext waits for duration unless the context ends first.
func SleepContext(waitContext context.Context, duration time.Duration) error {
	if duration <= 0 {
		return waitContext.Err()
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-waitContext.Done():
		return waitContext.Err()
	case <-timer.C:
		return nil
	}
}

// NoSleep returns immediately; tests use it to skip backoff waits.
func NoSleep(waitContext context.Context, _ time.Duration) error {
	return waitContext.Err()
}
