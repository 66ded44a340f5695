package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/paperdigest/internal/retry"
)

func TestDoRetriesUntilSuccess(testInstance *testing.T) {
	var recordedWaits []time.Duration
	policy := retry.Policy{
		MaxAttempts:  3,
		InitialDelay: 3 * time.Second,
		Multiplier:   2,
		Sleep:        retry.NoSleep,
		OnRetry: func(attempt int, wait time.Duration, failure error) {
			recordedWaits = append(recordedWaits, wait)
		},
	}

	invocations := 0
	doError := retry.Do(context.Background(), policy, func(context.Context, int) error {
		invocations++
		if invocations < 3 {
			return errors.New("rate limited")
		}
		return nil
	})

	require.NoError(testInstance, doError)
	require.Equal(testInstance, 3, invocations)
	require.Equal(testInstance, []time.Duration{3 * time.Second, 6 * time.Second}, recordedWaits)
}

func TestDoReturnsLastErrorWhenAttemptsExhausted(testInstance *testing.T) {
	invocations := 0
	doError := retry.Do(context.Background(), retry.Policy{MaxAttempts: 2, Sleep: retry.NoSleep}, func(context.Context, int) error {
		invocations++
		return errors.New("upstream unavailable")
	})

	require.Equal(testInstance, 2, invocations)
	require.ErrorContains(testInstance, doError, "giving up after 2 attempts: upstream unavailable")
}

func TestDoStopsOnPermanentError(testInstance *testing.T) {
	cause := errors.New("bad request")
	invocations := 0
	doError := retry.Do(context.Background(), retry.Policy{Sleep: retry.NoSleep}, func(context.Context, int) error {
		invocations++
		return retry.Permanent(cause)
	})

	require.Equal(testInstance, 1, invocations)
	require.ErrorIs(testInstance, doError, cause)
	require.NoError(testInstance, retry.Permanent(nil))
}

func TestDoHonorsContextCancellation(testInstance *testing.T) {
	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()

	doError := retry.Do(cancelledContext, retry.DefaultPolicy(), func(context.Context, int) error {
		return nil
	})
	require.ErrorIs(testInstance, doError, context.Canceled)

	require.ErrorIs(testInstance, retry.Do(context.Background(), retry.DefaultPolicy(), nil), retry.ErrOperationMissing)
}

func TestPolicyDelayIsCapped(testInstance *testing.T) {
	policy := retry.Policy{InitialDelay: time.Second, Multiplier: 2, MaxDelay: 3 * time.Second}
	require.Equal(testInstance, time.Second, policy.Delay(0))
	require.Equal(testInstance, 2*time.Second, policy.Delay(1))
	require.Equal(testInstance, 3*time.Second, policy.Delay(2))
	require.Equal(testInstance, 2*time.Second, retry.DefaultPolicy().WithInitialDelay(2*time.Second).Delay(0))
}

func TestDoSteadyErrorsSkipBackoff(testInstance *testing.T) {
	var recordedWaits []time.Duration
	policy := retry.Policy{
		MaxAttempts:  4,
		InitialDelay: 2 * time.Second,
		Multiplier:   2,
		Sleep:        retry.NoSleep,
		OnRetry: func(_ int, wait time.Duration, _ error) {
			recordedWaits = append(recordedWaits, wait)
		},
	}
	cause := errors.New("bad gateway")

	invocations := 0
	doError := retry.Do(context.Background(), policy, func(_ context.Context, attempt int) error {
		invocations++
		if attempt == 1 {
			return errors.New("rate limited")
		}
		return retry.Steady(cause)
	})

	require.Equal(testInstance, 4, invocations)
	require.Equal(testInstance, []time.Duration{2 * time.Second, 4 * time.Second, 2 * time.Second}, recordedWaits)
	require.ErrorIs(testInstance, doError, cause)
	require.ErrorContains(testInstance, doError, "giving up after 4 attempts: bad gateway")
	require.NoError(testInstance, retry.Steady(nil))
}
