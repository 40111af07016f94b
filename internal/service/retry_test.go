package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"epic-engine/internal/service"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testPolicy(maxAttempts int) service.RetryPolicy {
	return service.RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := service.RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2.0,
	}

	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 400*time.Millisecond, p.Delay(3))
	// Capped at MaxDelay from attempt 5 on.
	assert.Equal(t, time.Second, p.Delay(5))
	assert.Equal(t, time.Second, p.Delay(12))
}

func TestRetryPolicyDelayJitter(t *testing.T) {
	p := service.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2.0,
		Jitter:      0.5,
	}

	for i := 0; i < 20; i++ {
		d := p.Delay(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestRetryPolicyDo(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	t.Run("First attempt succeeds", func(t *testing.T) {
		calls := 0
		attempts, err := testPolicy(3).Do(ctx, logger, "op", func() error {
			calls++
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 1, attempts)
		assert.Equal(t, 1, calls)
	})

	t.Run("Transient failure then success", func(t *testing.T) {
		calls := 0
		attempts, err := testPolicy(3).Do(ctx, logger, "op", func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 3, calls)
	})

	t.Run("Exhausted attempts return the last error", func(t *testing.T) {
		boom := errors.New("still down")
		calls := 0
		attempts, err := testPolicy(3).Do(ctx, logger, "op", func() error {
			calls++
			return boom
		})

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 3, calls)
	})

	t.Run("Cancellation stops further attempts", func(t *testing.T) {
		cancelledCtx, cancel := context.WithCancel(context.Background())

		boom := errors.New("transient")
		calls := 0
		_, err := testPolicy(5).Do(cancelledCtx, logger, "op", func() error {
			calls++
			cancel()
			return boom
		})

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("Error wrapping cancellation is not retried", func(t *testing.T) {
		calls := 0
		_, err := testPolicy(5).Do(ctx, logger, "op", func() error {
			calls++
			return context.Canceled
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
