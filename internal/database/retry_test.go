package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryer() *Retryer {
	return &Retryer{maxRetries: 3, baseDelay: time.Millisecond, maxDelay: 2 * time.Millisecond, multiplier: 2}
}

func TestRetryer(t *testing.T) {
	always := func(error) bool { return true }

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := fastRetryer().Retry(context.Background(), always, func() error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		err := fastRetryer().Retry(context.Background(), always, func() error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 4, calls)
	})

	t.Run("stops on non-retryable errors", func(t *testing.T) {
		calls := 0
		err := fastRetryer().Retry(context.Background(), isConnectionError, func() error {
			calls++
			return errors.New("failed to sign in: invalid credentials")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("honours context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := fastRetryer().Retry(ctx, always, func() error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDelayIsCapped(t *testing.T) {
	r := &Retryer{baseDelay: 100 * time.Millisecond, maxDelay: time.Second, multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, r.delay(0))
	assert.Equal(t, 400*time.Millisecond, r.delay(2))
	assert.Equal(t, time.Second, r.delay(10))
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, isConnectionError(nil))
	assert.True(t, isConnectionError(fmt.Errorf("dial: %w", context.DeadlineExceeded)))
	assert.True(t, isConnectionError(errors.New("dial tcp 127.0.0.1:8000: connect: Connection refused")))
	assert.False(t, isConnectionError(errors.New("There was a problem with authentication")))
}

func TestRedactDBURL(t *testing.T) {
	assert.Equal(t, "ws://root:xxxxx@localhost:8000/rpc", redactDBURL("ws://root:secret@localhost:8000/rpc"))
	assert.Equal(t, "ws://localhost:8000/rpc", redactDBURL("ws://localhost:8000/rpc"))
	assert.Equal(t, "invalid-url", redactDBURL("://bad"))
}

func TestHasLimitClause_RetryFile(t *testing.T) {
	assert.True(t, hasLimitClause("SELECT * FROM room LIMIT 5"))
	assert.False(t, hasLimitClause("SELECT * FROM room WHERE name = 'unlimited'"))
}
