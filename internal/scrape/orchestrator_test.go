package scrape

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kismat-adhikari/website-scrapper/internal/verify"
)

// staticBody passes the escalation detector: plenty of visible text and no
// framework markers.
var staticBody = []byte("<html><body><p>" +
	strings.Repeat("Family plumbing business serving the area since 1987. ", 10) +
	"Reach us at info@acme.test.</p></body></html>")

// spaBody triggers escalation via a framework marker.
var spaBody = []byte(`<html><body><div id="root" data-reactroot=""></div></body></html>`)

// renderedBody is what the fake browser returns for SPA pages.
var renderedBody = []byte("<html><body><p>" +
	strings.Repeat("Rendered contact info for the business. ", 10) +
	"Write to rendered@acme.test.</p></body></html>")

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(url string, call int) (Page, error)
}

func newFakeFetcher(fn func(url string, call int) (Page, error)) *fakeFetcher {
	return &fakeFetcher{calls: map[string]int{}, fn: fn}
}

func (f *fakeFetcher) Fetch(_ context.Context, req FetchRequest) (Page, error) {
	f.mu.Lock()
	call := f.calls[req.URL]
	f.calls[req.URL]++
	f.mu.Unlock()
	return f.fn(req.URL, call)
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type fakeSession struct {
	render func(url string) (Page, error)
	closed bool
}

func (s *fakeSession) Render(_ context.Context, url string) (Page, error) {
	return s.render(url)
}

func (s *fakeSession) Close() { s.closed = true }

type fakePool struct {
	mu        sync.Mutex
	render    func(url string) (Page, error)
	acquired  int
	released  int
	discarded int
	drained   bool
}

func (p *fakePool) Acquire(_ context.Context) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquired++
	return &fakeSession{render: p.render}, nil
}

func (p *fakePool) Release(Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released++
}

func (p *fakePool) Discard(s Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.Close()
	p.discarded++
}

func (p *fakePool) Drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drained = true
}

// fakeExtractor scans the body for the two test addresses and always reports
// every required data source as inspected.
type fakeExtractor struct {
	err error
}

func (e fakeExtractor) Extract(page Page) (Extraction, error) {
	if e.err != nil {
		return Extraction{}, e.err
	}
	var emails []string
	body := string(page.Body)
	for _, addr := range []string{"info@acme.test", "rendered@acme.test"} {
		if strings.Contains(body, addr) {
			emails = append(emails, addr)
		}
	}
	sources := make([]SourceFinding, 0, len(verify.RequiredDataSources))
	for _, name := range verify.RequiredDataSources {
		n := 0
		if name == "visible_text" {
			n = len(emails)
		}
		sources = append(sources, SourceFinding{Name: name, EmailsFound: n})
	}
	return Extraction{
		Fields:  FieldBag{Emails: emails},
		Sources: sources,
	}, nil
}

func newTestOrchestrator(t *testing.T, opts Options, fetcher CheapFetcher, pool SessionPool, extractor Extractor) *Orchestrator {
	t.Helper()
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = 2
	}
	if opts.MaxConcurrent == 0 {
		opts.MaxConcurrent = 4
	}
	if extractor == nil {
		extractor = fakeExtractor{}
	}
	orch, err := NewOrchestrator(opts, Deps{
		Fetcher:   fetcher,
		Pool:      pool,
		Extractor: extractor,
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	return orch
}

func singleJob(t *testing.T, res *RunResult) *JobResult {
	t.Helper()
	require.Len(t, res.Jobs, 1)
	return res.Jobs[0]
}

func TestCheapSuccessNeverTouchesBrowser(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(func(url string, _ int) (Page, error) {
		return Page{URL: url, StatusCode: 200, Body: staticBody}, nil
	})
	pool := &fakePool{}
	orch := newTestOrchestrator(t, Options{}, fetcher, pool, nil)

	res, err := orch.Run(context.Background(), []string{"https://static.example"})
	require.NoError(t, err)

	job := singleJob(t, res)
	require.Equal(t, OutcomeCheapSuccess, job.Outcome.Kind)
	require.Equal(t, []string{"info@acme.test"}, job.Emails)
	require.InDelta(t, 0.4, job.Confidence, 1e-9, "emails alone are worth 0.4")
	require.Equal(t, 1, fetcher.callCount("https://static.example"))
	require.Zero(t, pool.acquired, "cheap success must not consume a browser session")
	require.True(t, pool.drained)
}

func TestEscalatesToBrowserOnFrameworkMarker(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(func(url string, _ int) (Page, error) {
		return Page{URL: url, StatusCode: 200, Body: spaBody}, nil
	})
	pool := &fakePool{render: func(url string) (Page, error) {
		return Page{URL: url, StatusCode: 200, Body: renderedBody, UsedJS: true}, nil
	}}
	orch := newTestOrchestrator(t, Options{}, fetcher, pool, nil)

	res, err := orch.Run(context.Background(), []string{"https://spa.example"})
	require.NoError(t, err)

	job := singleJob(t, res)
	require.Equal(t, OutcomeBrowserSuccess, job.Outcome.Kind)
	require.Equal(t, []string{"rendered@acme.test"}, job.Emails)
	require.Equal(t, 1, pool.acquired)
	require.Equal(t, 1, pool.released)
	require.Zero(t, pool.discarded)
	require.True(t, job.Pages[0].UsedJS)
}

func TestSkipsDenylistedURLWithoutFetching(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(func(url string, _ int) (Page, error) {
		t.Errorf("fetcher called for denylisted url %s", url)
		return Page{}, errors.New("unreachable")
	})
	pool := &fakePool{}
	orch := newTestOrchestrator(t, Options{}, fetcher, pool, nil)

	res, err := orch.Run(context.Background(), []string{"https://facebook.com/somebusiness"})
	require.NoError(t, err)

	job := singleJob(t, res)
	require.Equal(t, OutcomeSkipped, job.Outcome.Kind)
	require.Equal(t, ErrorValidationRejected, job.Outcome.ErrKind)

	scans := job.Verification.PageScans()
	require.Equal(t, verify.ScanSkipped, scans["homepage"].Status)
	require.Equal(t, verify.VerdictIncomplete, job.Verification.CompletionStatus())
}

func TestExhaustedRetriesIsTerminal(t *testing.T) {
	t.Parallel()

	// The third attempt would succeed, but the budget is two attempts: the
	// failure must be terminal with no browser fallback.
	fetcher := newFakeFetcher(func(url string, call int) (Page, error) {
		if call < 2 {
			return Page{}, timeoutErr{}
		}
		return Page{URL: url, StatusCode: 200, Body: staticBody}, nil
	})
	pool := &fakePool{}
	orch := newTestOrchestrator(t, Options{RetryAttempts: 2}, fetcher, pool, nil)

	res, err := orch.Run(context.Background(), []string{"https://slow.example"})
	require.NoError(t, err)

	job := singleJob(t, res)
	require.Equal(t, OutcomeFailed, job.Outcome.Kind)
	require.Equal(t, ErrorExhaustedRetries, job.Outcome.ErrKind)
	require.Equal(t, "timeout", job.Outcome.Reason)
	require.Equal(t, 2, fetcher.callCount("https://slow.example"))
	require.Zero(t, pool.acquired, "network failures never escalate to the browser")
	require.Equal(t, 1, res.Stats.Retries)
}

func TestBrowserFaultDiscardsSession(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(func(url string, _ int) (Page, error) {
		return Page{URL: url, StatusCode: 200, Body: spaBody}, nil
	})
	pool := &fakePool{render: func(string) (Page, error) {
		return Page{}, errors.New("tab crashed")
	}}
	orch := newTestOrchestrator(t, Options{}, fetcher, pool, nil)

	res, err := orch.Run(context.Background(), []string{"https://spa.example"})
	require.NoError(t, err)

	job := singleJob(t, res)
	require.Equal(t, OutcomeFailed, job.Outcome.Kind)
	require.Equal(t, ErrorRenderFault, job.Outcome.ErrKind)
	require.Equal(t, 1, pool.discarded, "faulted sessions are discarded, never recycled")
	require.Zero(t, pool.released)
}

func TestExtractionFaultFailsThePage(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(func(url string, _ int) (Page, error) {
		return Page{URL: url, StatusCode: 200, Body: staticBody}, nil
	})
	orch := newTestOrchestrator(t, Options{}, fetcher, &fakePool{},
		fakeExtractor{err: errors.New("bad markup")})

	res, err := orch.Run(context.Background(), []string{"https://static.example"})
	require.NoError(t, err)

	job := singleJob(t, res)
	require.Equal(t, OutcomeFailed, job.Outcome.Kind)
	require.Equal(t, ErrorExtractionFault, job.Outcome.ErrKind)
}

func TestSubPageScanProducesCompleteVerdict(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(func(url string, _ int) (Page, error) {
		return Page{URL: url, StatusCode: 200, Body: staticBody}, nil
	})
	orch := newTestOrchestrator(t, Options{ScanSubPages: true}, fetcher, &fakePool{}, nil)

	res, err := orch.Run(context.Background(), []string{"https://acme.test"})
	require.NoError(t, err)

	job := singleJob(t, res)
	require.Equal(t, verify.VerdictComplete, job.Verification.CompletionStatus(),
		"incomplete steps: %v", job.Verification.IncompleteSteps())
	require.Len(t, job.Pages, len(verify.RequiredPages))
	require.Equal(t, []string{"info@acme.test"}, job.Emails)

	scans := job.Verification.PageScans()
	require.Equal(t, "https://acme.test/contact", scans["contact"].URL)
}

func TestHomepageFailureSkipsSubPages(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(func(string, int) (Page, error) {
		return Page{}, timeoutErr{}
	})
	orch := newTestOrchestrator(t, Options{ScanSubPages: true, RetryAttempts: 1}, fetcher, &fakePool{}, nil)

	res, err := orch.Run(context.Background(), []string{"https://down.example"})
	require.NoError(t, err)

	job := singleJob(t, res)
	require.Equal(t, OutcomeFailed, job.Outcome.Kind)
	require.Len(t, job.Pages, 1, "sub-pages must not be guessed when the homepage is unreachable")
	require.Equal(t, verify.VerdictIncomplete, job.Verification.CompletionStatus())
	require.Equal(t, 1, fetcher.callCount("https://down.example"))
}

func TestRunMixedBatch(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(func(url string, _ int) (Page, error) {
		switch {
		case strings.Contains(url, "static.example"):
			return Page{URL: url, StatusCode: 200, Body: staticBody}, nil
		case strings.Contains(url, "spa.example"):
			return Page{URL: url, StatusCode: 200, Body: spaBody}, nil
		default:
			return Page{}, timeoutErr{}
		}
	})
	pool := &fakePool{render: func(url string) (Page, error) {
		return Page{URL: url, StatusCode: 200, Body: renderedBody, UsedJS: true}, nil
	}}
	orch := newTestOrchestrator(t, Options{RetryAttempts: 2}, fetcher, pool, nil)

	res, err := orch.Run(context.Background(), []string{
		"https://static.example",
		"https://spa.example",
		"https://slow.example",
		"https://facebook.com/somebusiness",
	})
	require.NoError(t, err)

	require.Equal(t, 4, res.Stats.Total)
	require.Equal(t, 1, res.Stats.CheapSuccess)
	require.Equal(t, 1, res.Stats.BrowserSuccess)
	require.Equal(t, 1, res.Stats.Failed)
	require.Equal(t, 1, res.Stats.Skipped)
	require.Equal(t, 1, res.Stats.Retries)
	require.True(t, pool.drained)
}

func TestDuplicateURLsProcessedOnce(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(func(url string, _ int) (Page, error) {
		return Page{URL: url, StatusCode: 200, Body: staticBody}, nil
	})
	orch := newTestOrchestrator(t, Options{}, fetcher, &fakePool{}, nil)

	res, err := orch.Run(context.Background(), []string{
		"https://static.example",
		"https://static.example",
		"  https://static.example  ",
	})
	require.NoError(t, err)
	require.Len(t, res.Jobs, 1)
	require.Equal(t, 1, fetcher.callCount("https://static.example"))
}

func TestMaxConcurrentBoundsInFlightFetches(t *testing.T) {
	t.Parallel()

	// Sub-page fan-out spawns nine fetches per job; all of them must share
	// the run-wide fetch budget, not just the per-job goroutines.
	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	fetcher := newFakeFetcher(func(url string, _ int) (Page, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return Page{URL: url, StatusCode: 200, Body: staticBody}, nil
	})
	orch := newTestOrchestrator(t, Options{MaxConcurrent: 1, ScanSubPages: true}, fetcher, &fakePool{}, nil)

	res, err := orch.Run(context.Background(), []string{
		"https://one.example",
		"https://two.example",
	})
	require.NoError(t, err)
	require.Len(t, res.Jobs, 2)
	for _, job := range res.Jobs {
		require.Len(t, job.Pages, len(verify.RequiredPages))
	}

	mu.Lock()
	defer mu.Unlock()
	require.LessOrEqual(t, peak, 1, "max_concurrent must bound in-flight fetches across sub-page fan-out")
}

func TestCanceledRunReturnsPartialResults(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(func(url string, _ int) (Page, error) {
		return Page{URL: url, StatusCode: 200, Body: staticBody}, nil
	})
	pool := &fakePool{}
	orch := newTestOrchestrator(t, Options{}, fetcher, pool, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := orch.Run(ctx, []string{"https://static.example"})
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res, "finished jobs must be returned alongside the cancellation error")
	require.True(t, pool.drained, "the pool is drained even when the run is cut short")
	require.Zero(t, fetcher.callCount("https://static.example"))
}

func TestScoreConfidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		fields FieldBag
		want   float64
	}{
		{"nothing found", FieldBag{}, 0},
		{"emails only", FieldBag{Emails: []string{"a@b.test"}}, 0.4},
		{"emails and phones", FieldBag{Emails: []string{"a@b.test"}, Phones: []string{"+1 555"}}, 0.6},
		{"messaging counts as social presence", FieldBag{MessagingLinks: map[string]string{"whatsapp": "https://wa.me/1"}}, 0.15},
		{"everything", FieldBag{
			Emails:         []string{"a@b.test"},
			Phones:         []string{"+1 555"},
			Addresses:      []string{"1 Main St"},
			SocialLinks:    []string{"https://facebook.com/x"},
			HasContactForm: true,
		}, 1.0},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.InDelta(t, tc.want, scoreConfidence(tc.fields), 1e-9)
		})
	}
}

func TestForceBrowserBypassesCheapPath(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(func(url string, _ int) (Page, error) {
		t.Errorf("cheap fetcher called for %s despite force_browser", url)
		return Page{}, errors.New("unreachable")
	})
	pool := &fakePool{render: func(url string) (Page, error) {
		return Page{URL: url, StatusCode: 200, Body: renderedBody, UsedJS: true}, nil
	}}
	orch := newTestOrchestrator(t, Options{ForceBrowser: true}, fetcher, pool, nil)

	res, err := orch.Run(context.Background(), []string{"https://spa.example"})
	require.NoError(t, err)

	job := singleJob(t, res)
	require.Equal(t, OutcomeBrowserSuccess, job.Outcome.Kind)
	require.Equal(t, 1, pool.acquired)
}
