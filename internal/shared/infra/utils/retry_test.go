package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errTransient = errors.New("transient")
var errPermanent = errors.New("permanent")

func TestRetryPolicy_SucceedsAfterRetries(t *testing.T) {
	policy := RetryPolicy{Attempts: 3, Backoff: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{Attempts: 3, Backoff: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_NonRetryableFailsFast(t *testing.T) {
	policy := RetryPolicy{
		Attempts:  3,
		Backoff:   time.Millisecond,
		Retryable: func(err error) bool { return errors.Is(err, errTransient) },
	}

	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		return errPermanent
	})

	assert.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 1, calls, "un error no reintentable no debe repetirse")
}

func TestRetryPolicy_ContextCanceled(t *testing.T) {
	policy := RetryPolicy{Attempts: 5, Backoff: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := policy.Do(ctx, func() error { return errTransient })
	assert.ErrorIs(t, err, context.Canceled)
}
