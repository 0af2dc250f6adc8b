package ledger

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workmesh/marketmirror/internal/common"
	"github.com/workmesh/marketmirror/pkg/config"
)

// mockNetError implements net.Error for testing
type mockNetError struct {
	msg       string
	timeout   bool
	temporary bool
}

func (e *mockNetError) Error() string   { return e.msg }
func (e *mockNetError) Timeout() bool   { return e.timeout }
func (e *mockNetError) Temporary() bool { return e.temporary }

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "nil error", err: nil, retryable: false},
		{name: "network timeout error", err: &mockNetError{msg: "network timeout", timeout: true}, retryable: true},
		{name: "connection refused", err: syscall.ECONNREFUSED, retryable: true},
		{name: "connection reset", err: syscall.ECONNRESET, retryable: true},
		{name: "broken pipe", err: syscall.EPIPE, retryable: true},
		{name: "timeout string", err: errors.New("operation timeout"), retryable: true},
		{name: "deadline exceeded", err: context.DeadlineExceeded, retryable: true},
		{name: "rate limit 429", err: errors.New("ledger returned status 429: slow down"), retryable: true},
		{name: "503 service unavailable", err: errors.New("ledger returned status 503: maintenance"), retryable: true},
		{name: "wrapped connection refused", err: fmt.Errorf("ledger request failed: %w", syscall.ECONNREFUSED), retryable: true},
		{name: "malformed payload", err: errors.New("failed to decode payload of transaction 0xab: illegal base64 data"), retryable: false},
		{name: "not found", err: errors.New("ledger returned status 404: no such account"), retryable: false},
		{name: "bad request", err: errors.New("ledger returned status 400: bad after parameter"), retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, retryableError(tt.err))
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := &config.RetryConfig{
		InitialBackoff:    common.NewDuration(1 * time.Second),
		MaxBackoff:        common.NewDuration(30 * time.Second),
		BackoffMultiplier: 2.0,
	}

	tests := []struct {
		name        string
		attempt     int
		minExpected time.Duration
		maxExpected time.Duration
	}{
		{name: "attempt 1 - no backoff", attempt: 1, minExpected: 0, maxExpected: 0},
		{name: "attempt 2 - initial backoff with jitter", attempt: 2, minExpected: 750 * time.Millisecond, maxExpected: 1250 * time.Millisecond},
		{name: "attempt 3 - exponential backoff", attempt: 3, minExpected: 1500 * time.Millisecond, maxExpected: 2500 * time.Millisecond},
		{name: "attempt 4", attempt: 4, minExpected: 3 * time.Second, maxExpected: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Run multiple times to account for jitter randomness
			for i := 0; i < 10; i++ {
				backoff := calculateBackoff(tt.attempt, cfg)
				assert.GreaterOrEqual(t, backoff, tt.minExpected)
				assert.LessOrEqual(t, backoff, tt.maxExpected)
			}
		})
	}
}

func TestCalculateBackoff_CappedAtMax(t *testing.T) {
	cfg := &config.RetryConfig{
		InitialBackoff:    common.NewDuration(1 * time.Second),
		MaxBackoff:        common.NewDuration(5 * time.Second),
		BackoffMultiplier: 2.0,
	}

	backoff := calculateBackoff(10, cfg)
	assert.LessOrEqual(t, backoff, 6250*time.Millisecond, "backoff should be capped at max + 25% jitter")
}

func TestRetryWithBackoff_SuccessAfterRetries(t *testing.T) {
	ctx := context.Background()
	cfg := &config.RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    common.NewDuration(10 * time.Millisecond),
		MaxBackoff:        common.NewDuration(100 * time.Millisecond),
		BackoffMultiplier: 2.0,
	}

	callCount := 0
	fn := func() error {
		callCount++
		if callCount < 3 {
			return &mockNetError{msg: "temporary error", timeout: true}
		}
		return nil
	}

	err := retryWithBackoff(ctx, cfg, "test_operation", fn)
	require.NoError(t, err)
	assert.Equal(t, 3, callCount, "should succeed on third attempt")
}

func TestRetryWithBackoff_NonRetryableError(t *testing.T) {
	ctx := context.Background()
	cfg := &config.RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    common.NewDuration(10 * time.Millisecond),
		MaxBackoff:        common.NewDuration(100 * time.Millisecond),
		BackoffMultiplier: 2.0,
	}

	callCount := 0
	expectedErr := errors.New("invalid parameter")
	fn := func() error {
		callCount++
		return expectedErr
	}

	err := retryWithBackoff(ctx, cfg, "test_operation", fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-retryable error")
	assert.ErrorIs(t, err, expectedErr)
	assert.Equal(t, 1, callCount, "should not retry non-retryable error")
}

func TestRetryWithBackoff_ExhaustedRetries(t *testing.T) {
	ctx := context.Background()
	cfg := &config.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    common.NewDuration(10 * time.Millisecond),
		MaxBackoff:        common.NewDuration(100 * time.Millisecond),
		BackoffMultiplier: 2.0,
	}

	callCount := 0
	expectedErr := &mockNetError{msg: "persistent error", timeout: true}
	fn := func() error {
		callCount++
		return expectedErr
	}

	err := retryWithBackoff(ctx, cfg, "test_operation", fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
	assert.ErrorIs(t, err, expectedErr)
	assert.Equal(t, 3, callCount)
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &config.RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    common.NewDuration(10 * time.Millisecond),
		MaxBackoff:        common.NewDuration(100 * time.Millisecond),
		BackoffMultiplier: 2.0,
	}

	callCount := 0
	fn := func() error {
		callCount++
		if callCount == 2 {
			cancel()
		}
		return &mockNetError{msg: "temporary error", timeout: true}
	}

	err := retryWithBackoff(ctx, cfg, "test_operation", fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
	assert.Equal(t, 2, callCount, "should stop retrying after context cancelled")
}

func TestRetryWithBackoff_NilConfig(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), nil, "test_operation", func() error {
		callCount++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, callCount, "should execute once without retry config")
}
