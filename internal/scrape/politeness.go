package scrape

import (
	"context"
	"sync"
	"time"
)

// visitTracker provides thread-safe visited URL tracking so the orchestrator
// never reprocesses an already-terminal URL within one job run.
type visitTracker struct {
	seen sync.Map
}

func newVisitTracker() *visitTracker {
	return &visitTracker{}
}

// MarkIfNew stores the URL if it has not been seen before and returns true.
func (t *visitTracker) MarkIfNew(url string) bool {
	if url == "" {
		return false
	}
	_, loaded := t.seen.LoadOrStore(url, struct{}{})
	return !loaded
}

// pause sleeps for the given delay or until the context finishes. Backoff
// sleeps and rate-limit delays are the only intentional waits in the
// pipeline, so they all funnel through here.
func pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
