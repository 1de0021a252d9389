package browser

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Kismat-adhikari/website-scrapper/internal/scrape"
)

// Pool is a bounded pool of render sessions. Sessions are created lazily up
// to the configured size; once at capacity, Acquire blocks until a session
// comes back. A session is owned by exactly one task between Acquire and
// Release or Discard.
type Pool struct {
	cfg    Config
	tokens chan struct{}
	logger *zap.Logger

	// newSession is swappable for tests.
	newSession func(Config, *zap.Logger) (scrape.Session, error)

	mu      sync.Mutex
	idle    []scrape.Session
	drained bool
}

// NewPool builds a pool with the given capacity.
func NewPool(size int, cfg Config, logger *zap.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be > 0, got %d", size)
	}
	return &Pool{
		cfg:    cfg,
		tokens: make(chan struct{}, size),
		logger: logger,
		newSession: func(c Config, l *zap.Logger) (scrape.Session, error) {
			return newSession(c, l)
		},
	}, nil
}

// Acquire returns an idle session or creates one below capacity. It blocks
// when all sessions are checked out.
func (p *Pool) Acquire(ctx context.Context) (scrape.Session, error) {
	select {
	case p.tokens <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("session wait canceled: %w", ctx.Err())
	}

	p.mu.Lock()
	if p.drained {
		p.mu.Unlock()
		<-p.tokens
		return nil, fmt.Errorf("session pool is drained")
	}
	if n := len(p.idle); n > 0 {
		s := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()

	s, err := p.newSession(p.cfg, p.logger)
	if err != nil {
		<-p.tokens
		return nil, fmt.Errorf("create session: %w", err)
	}
	p.logger.Debug("created browser session")
	return s, nil
}

// Release returns a healthy session for reuse.
func (p *Pool) Release(s scrape.Session) {
	if s == nil {
		return
	}
	p.mu.Lock()
	if p.drained {
		p.mu.Unlock()
		s.Close()
		<-p.tokens
		return
	}
	p.idle = append(p.idle, s)
	p.mu.Unlock()
	<-p.tokens
}

// Discard destroys a faulted session and frees its capacity slot so a fresh
// session can replace it. Faulted sessions are never recycled.
func (p *Pool) Discard(s scrape.Session) {
	if s == nil {
		return
	}
	s.Close()
	p.logger.Debug("discarded faulted browser session")
	<-p.tokens
}

// Drain tears down all idle sessions. Sessions still checked out are closed
// by their owners via Release after the drain.
func (p *Pool) Drain() {
	p.mu.Lock()
	sessions := p.idle
	p.idle = nil
	p.drained = true
	p.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	if len(sessions) > 0 {
		p.logger.Debug("drained browser pool", zap.Int("sessions", len(sessions)))
	}
}

// Idle reports the number of idle sessions, for stats and tests.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}
