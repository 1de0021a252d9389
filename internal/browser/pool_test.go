package browser

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kismat-adhikari/website-scrapper/internal/scrape"
)

type stubSession struct {
	id     int
	closed atomic.Bool
}

func (s *stubSession) Render(context.Context, string) (scrape.Page, error) {
	return scrape.Page{}, nil
}

func (s *stubSession) Close() { s.closed.Store(true) }

func newStubPool(t *testing.T, size int) (*Pool, *atomic.Int32) {
	t.Helper()
	pool, err := NewPool(size, Config{}, zap.NewNop())
	require.NoError(t, err)

	var created atomic.Int32
	pool.newSession = func(Config, *zap.Logger) (scrape.Session, error) {
		return &stubSession{id: int(created.Add(1))}, nil
	}
	return pool, &created
}

func TestPoolRejectsZeroSize(t *testing.T) {
	t.Parallel()

	_, err := NewPool(0, Config{}, zap.NewNop())
	require.Error(t, err)
}

func TestPoolCreatesLazilyAndReuses(t *testing.T) {
	t.Parallel()

	pool, created := newStubPool(t, 3)

	s1, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), created.Load())

	pool.Release(s1)
	s2, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.Same(t, s1, s2, "an idle session is reused before creating a new one")
	require.Equal(t, int32(1), created.Load())
	pool.Release(s2)
}

func TestPoolConcurrentAcquiresGetDistinctSessions(t *testing.T) {
	t.Parallel()

	pool, created := newStubPool(t, 3)

	var (
		mu       sync.Mutex
		sessions = map[scrape.Session]struct{}{}
		wg       sync.WaitGroup
	)
	held := make([]scrape.Session, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := pool.Acquire(context.Background())
			require.NoError(t, err)
			mu.Lock()
			sessions[s] = struct{}{}
			held[i] = s
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	require.Len(t, sessions, 3, "concurrent holders must not share a session")
	require.Equal(t, int32(3), created.Load())
	for _, s := range held {
		pool.Release(s)
	}
}

func TestPoolBlocksAtCapacity(t *testing.T) {
	t.Parallel()

	pool, _ := newStubPool(t, 1)

	s1, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	acquired := make(chan scrape.Session)
	go func() {
		s, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		acquired <- s
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while the pool is at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	pool.Release(s1)
	select {
	case s := <-acquired:
		pool.Release(s)
	case <-time.After(time.Second):
		t.Fatal("second acquire should proceed after a release")
	}
}

func TestPoolAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	pool, _ := newStubPool(t, 1)
	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer pool.Release(s)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPoolDiscardFreesSlotAndClosesSession(t *testing.T) {
	t.Parallel()

	pool, created := newStubPool(t, 1)

	s1, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Discard(s1)
	require.True(t, s1.(*stubSession).closed.Load())

	// The slot freed by the discard allows a fresh session.
	s2, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.NotSame(t, s1, s2)
	require.Equal(t, int32(2), created.Load())
	pool.Release(s2)
}

func TestPoolDrainClosesIdleSessions(t *testing.T) {
	t.Parallel()

	pool, _ := newStubPool(t, 2)

	s1, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	s2, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Release(s1)
	pool.Release(s2)
	require.Equal(t, 2, pool.Idle())

	pool.Drain()
	require.Zero(t, pool.Idle())
	require.True(t, s1.(*stubSession).closed.Load())
	require.True(t, s2.(*stubSession).closed.Load())

	_, err = pool.Acquire(context.Background())
	require.Error(t, err, "a drained pool refuses new sessions")
}
