package scrape

import (
	"context"
	"time"
)

// CheapFetcher performs a plain HTTP fetch without script execution.
type CheapFetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (Page, error)
}

// Session is one live browser render session checked out of the pool. It is
// owned exclusively by the calling task until released or discarded.
type Session interface {
	// Render navigates with scripts enabled, scrolls to the bottom to
	// trigger lazy content, and returns the rendered DOM.
	Render(ctx context.Context, url string) (Page, error)
	// Close tears the session down. Used directly on faulted sessions.
	Close()
}

// SessionPool is a bounded set of reusable render sessions.
type SessionPool interface {
	// Acquire returns an idle session, creating one lazily below capacity,
	// or blocks until a session is returned.
	Acquire(ctx context.Context) (Session, error)
	// Release returns a healthy session to the pool.
	Release(s Session)
	// Discard destroys a faulted session and frees its capacity slot.
	// Faulted sessions are never recycled.
	Discard(s Session)
	// Drain tears down all idle sessions at job end.
	Drain()
}

// Extractor is the external extraction capability: deterministic field
// extraction over rendered or static HTML.
type Extractor interface {
	Extract(page Page) (Extraction, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
