package scrape

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelayDoubles(t *testing.T) {
	t.Parallel()

	p := NewBackoffPolicy()
	require.Equal(t, time.Second, p.Delay(0))
	require.Equal(t, 2*time.Second, p.Delay(1))
	require.Equal(t, 4*time.Second, p.Delay(2))
	require.Equal(t, time.Second, p.Delay(-1))
}

func TestBackoffDelayCapped(t *testing.T) {
	t.Parallel()

	p := NewBackoffPolicy()
	require.Equal(t, 30*time.Second, p.Delay(10))
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	p := NewBackoffPolicy()
	require.False(t, p.Retryable(nil))
	require.False(t, p.Retryable(context.Canceled))
	require.True(t, p.Retryable(context.DeadlineExceeded))
	require.True(t, p.Retryable(errors.New("connection refused")))
}

func TestFailureReason(t *testing.T) {
	t.Parallel()

	require.Empty(t, FailureReason(nil))
	require.Equal(t, "timeout", FailureReason(context.DeadlineExceeded))
	require.Equal(t, "network_error", FailureReason(errors.New("connection reset")))
}
