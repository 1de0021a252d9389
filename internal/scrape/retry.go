package scrape

import (
	"context"
	"errors"
	"math"
	"net"
	"time"
)

// BackoffPolicy implements exponential backoff for transient failures on
// the cheap fetch path: 2^attempt seconds, capped.
type BackoffPolicy struct {
	base     time.Duration
	maxDelay time.Duration
}

// NewBackoffPolicy builds the policy used across the run. One coherent
// policy is used everywhere; per-call overrides are intentionally absent.
func NewBackoffPolicy() *BackoffPolicy {
	return &BackoffPolicy{
		base:     time.Second,
		maxDelay: 30 * time.Second,
	}
}

// Retryable reports whether the error is worth another attempt. Context
// cancellation is never retried; deadline overruns and network timeouts
// and transport errors are transient.
func (p *BackoffPolicy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Transient reports whether the error is a timeout or transport-level
// fault, used to pick the failure reason string.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// Delay returns the wait before retrying after the given zero-based
// failed attempt: 1s, 2s, 4s, ...
func (p *BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := time.Duration(math.Pow(2, float64(attempt))) * p.base
	if d > p.maxDelay {
		d = p.maxDelay
	}
	return d
}

// FailureReason maps an error to the short reason string recorded in the
// verification record.
func FailureReason(err error) string {
	if err == nil {
		return ""
	}
	if Transient(err) {
		return "timeout"
	}
	return "network_error"
}
