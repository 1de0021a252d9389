package scrape

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Kismat-adhikari/website-scrapper/internal/proxy"
	"github.com/Kismat-adhikari/website-scrapper/internal/verify"
)

// Options tune the orchestrator.
type Options struct {
	MaxConcurrent        int
	RetryAttempts        int
	BrowserRetryAttempts int
	CheapTimeout         time.Duration
	RateLimitDelay       time.Duration
	ForceBrowser         bool
	ScanSubPages         bool
	UserAgent            string
}

// Deps are the orchestrator's collaborators. All of them are required
// except Rotator, which may be nil when no proxies are configured.
type Deps struct {
	Fetcher   CheapFetcher
	Pool      SessionPool
	Extractor Extractor
	Detector  *EscalationDetector
	Denylist  *Denylist
	Rotator   *proxy.Rotator
	Logger    *zap.Logger
	Clock     Clock
}

// Orchestrator drives the per-URL strategy selection: validate, try the
// cheap HTTP path with retries, escalate to a pooled browser render when
// the static HTML shows client-side rendering, and record every terminal
// transition in the job's verification tracker.
type Orchestrator struct {
	opts    Options
	deps    Deps
	backoff *BackoffPolicy
	gate    *rate.Limiter
	slots   chan struct{}
	visited *visitTracker
}

// NewOrchestrator validates dependencies and builds the orchestrator.
func NewOrchestrator(opts Options, deps Deps) (*Orchestrator, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("orchestrator requires a cheap fetcher")
	}
	if deps.Pool == nil {
		return nil, errors.New("orchestrator requires a session pool")
	}
	if deps.Extractor == nil {
		return nil, errors.New("orchestrator requires an extractor")
	}
	if deps.Detector == nil {
		deps.Detector = NewEscalationDetector(0, nil)
	}
	if deps.Denylist == nil {
		deps.Denylist = NewDenylist()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 1
	}
	if opts.CheapTimeout <= 0 {
		opts.CheapTimeout = 10 * time.Second
	}

	gate := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimitDelay > 0 {
		gate = rate.NewLimiter(rate.Every(opts.RateLimitDelay), 1)
	}

	return &Orchestrator{
		opts:    opts,
		deps:    deps,
		backoff: NewBackoffPolicy(),
		gate:    gate,
		slots:   make(chan struct{}, opts.MaxConcurrent),
		visited: newVisitTracker(),
	}, nil
}

// acquireSlot takes one in-flight fetch slot. The semaphore bounds concurrent
// fetches across the whole run, including sub-page fan-out and browser
// renders, not merely the number of jobs.
func (o *Orchestrator) acquireSlot(ctx context.Context) error {
	select {
	case o.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("fetch slot wait canceled: %w", ctx.Err())
	}
}

func (o *Orchestrator) releaseSlot() {
	<-o.slots
}

// Run processes every base URL and returns the unordered job results plus
// aggregate stats. Duplicate URLs within the batch are processed once.
// Cancellation stops new submissions; jobs already in flight finish or time
// out, and their results are returned alongside the error.
func (o *Orchestrator) Run(ctx context.Context, urls []string) (*RunResult, error) {
	start := o.deps.Clock.Now()
	defer o.deps.Pool.Drain()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		jobs   []*JobResult
		runErr error
	)

	for _, raw := range urls {
		baseURL := strings.TrimSpace(raw)
		if baseURL == "" || !o.visited.MarkIfNew(baseURL) {
			continue
		}
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("run canceled: %w", err)
			break
		}

		wg.Add(1)
		go func(baseURL string) {
			defer wg.Done()
			job := o.runJob(ctx, baseURL)
			mu.Lock()
			jobs = append(jobs, job)
			mu.Unlock()
		}(baseURL)
	}
	wg.Wait()

	stats := buildStats(jobs, o.deps.Clock.Now().Sub(start))
	o.deps.Logger.Info("run finished",
		zap.Int("total", stats.Total),
		zap.Int("cheap_success", stats.CheapSuccess),
		zap.Int("browser_success", stats.BrowserSuccess),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("retries", stats.Retries),
		zap.Duration("elapsed", stats.Elapsed),
	)
	return &RunResult{Jobs: jobs, Stats: stats}, runErr
}

// runJob scrapes one base URL: homepage first, then the guessed contact
// sub-pages, writing the verification record as it goes.
func (o *Orchestrator) runJob(ctx context.Context, baseURL string) *JobResult {
	jobID := uuid.NewString()
	tracker := verify.NewTracker(jobID, baseURL)
	logger := o.deps.Logger.With(zap.String("job_id", jobID), zap.String("url", baseURL))

	job := &JobResult{
		JobID:        jobID,
		BaseURL:      baseURL,
		Verification: tracker,
		StartedAt:    o.deps.Clock.Now(),
	}
	defer func() { job.FinishedAt = o.deps.Clock.Now() }()

	if reason := o.deps.Denylist.Reject(baseURL); reason != "" {
		logger.Info("url rejected by policy", zap.String("reason", reason))
		TotalSkipped.Inc()
		tracker.MarkPageScanned("homepage", baseURL, verify.ScanSkipped, reason, 0, 0)
		tracker.SetNoEmailReason(reason)
		job.Outcome = Outcome{Kind: OutcomeSkipped, ErrKind: ErrorValidationRejected, Reason: reason}
		return job
	}

	homepage := o.scrapePage(ctx, tracker, "homepage", baseURL)
	job.Pages = append(job.Pages, homepage)
	job.Outcome = homepage.Outcome

	if !homepage.Outcome.Succeeded() {
		logger.Warn("homepage scan failed, skipping sub-pages",
			zap.String("reason", homepage.Outcome.Reason))
		return job
	}

	if o.opts.ScanSubPages {
		var (
			subWG sync.WaitGroup
			subMu sync.Mutex
		)
		base := strings.TrimRight(baseURL, "/")
		for _, name := range verify.RequiredPages {
			if name == "homepage" {
				continue
			}
			subWG.Add(1)
			go func(name string) {
				defer subWG.Done()
				res := o.scrapePage(ctx, tracker, name, base+"/"+name)
				subMu.Lock()
				job.Pages = append(job.Pages, res)
				subMu.Unlock()
			}(name)
		}
		subWG.Wait()
	}

	o.recordSources(tracker, job)
	o.recordEmails(tracker, job)
	job.Confidence = scoreConfidence(job.Fields)
	tracker.Finalize()

	logger.Info("job finished",
		zap.String("verdict", tracker.CompletionStatus()),
		zap.Int("emails", len(job.Emails)),
		zap.Int("pages", len(job.Pages)),
		zap.Float64("confidence", job.Confidence),
	)
	return job
}

// scrapePage runs the full per-page state machine and writes exactly one
// page entry to the tracker at the terminal transition.
func (o *Orchestrator) scrapePage(ctx context.Context, tracker *verify.Tracker, name, url string) Result {
	start := o.deps.Clock.Now()
	res := o.fetchAndExtract(ctx, name, url)
	res.PageName = name
	res.StartedAt = start
	res.FinishedAt = o.deps.Clock.Now()
	res.Elapsed = res.FinishedAt.Sub(start)

	status := verify.ScanCompleted
	reason := ""
	switch res.Outcome.Kind {
	case OutcomeCheapSuccess:
		TotalCheapSuccess.Inc()
	case OutcomeBrowserSuccess:
		TotalBrowserSuccess.Inc()
	case OutcomeFailed:
		TotalFailed.Inc()
		status = verify.ScanFailed
		reason = res.Outcome.Reason
	case OutcomeSkipped:
		TotalSkipped.Inc()
		status = verify.ScanSkipped
		reason = res.Outcome.Reason
	}
	tracker.MarkPageScanned(name, url, status, reason, len(res.Fields.Emails), res.Elapsed)
	return res
}

// fetchAndExtract picks the fetch strategy for one URL and runs extraction
// over the resulting document.
func (o *Orchestrator) fetchAndExtract(ctx context.Context, name, url string) Result {
	res := Result{URL: url}

	page, outcome, attempts, retries := o.fetch(ctx, url)
	res.Outcome = outcome
	res.Attempts = attempts
	res.Retries = retries
	res.UsedJS = page.UsedJS
	if !outcome.Succeeded() {
		return res
	}

	extraction, err := o.deps.Extractor.Extract(page)
	if err != nil {
		o.deps.Logger.Warn("extraction failed",
			zap.String("page", name), zap.String("url", url), zap.Error(err))
		res.Outcome = Outcome{
			Kind:    OutcomeFailed,
			ErrKind: ErrorExtractionFault,
			Reason:  "extraction failed: " + err.Error(),
		}
		return res
	}
	res.Fields = extraction.Fields
	res.Sources = extraction.Sources
	return res
}

// fetch runs the cheap path with retries, escalating to a browser render
// only when a cheap fetch succeeded but its static HTML signals client-side
// rendering. Exhausted cheap retries are terminal; the browser is not a
// fallback for network failures.
func (o *Orchestrator) fetch(ctx context.Context, url string) (Page, Outcome, int, int) {
	if o.opts.ForceBrowser {
		return o.renderWithBrowser(ctx, url, 0, 0)
	}

	var (
		lastErr     error
		attempts    int
		retries     int
		forceRotate bool
	)
	for attempt := 0; attempt < o.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			retries++
			TotalRetries.Inc()
			pause(ctx, o.backoff.Delay(attempt-1))
		}
		if err := o.gate.Wait(ctx); err != nil {
			return Page{}, canceledOutcome(err), attempts, retries
		}
		attempts++

		var ep *proxy.Endpoint
		if o.deps.Rotator != nil {
			ep = o.deps.Rotator.Next(forceRotate)
			forceRotate = false
		}

		if err := o.acquireSlot(ctx); err != nil {
			return Page{}, canceledOutcome(err), attempts, retries
		}
		fetchCtx, cancel := context.WithTimeout(ctx, o.opts.CheapTimeout)
		page, err := o.deps.Fetcher.Fetch(fetchCtx, FetchRequest{
			URL:       url,
			Attempt:   attempt,
			Proxy:     ep,
			UserAgent: o.opts.UserAgent,
		})
		cancel()
		o.releaseSlot()

		if err != nil {
			if !o.backoff.Retryable(err) {
				return Page{}, canceledOutcome(err), attempts, retries
			}
			o.deps.Logger.Debug("cheap fetch attempt failed",
				zap.String("url", url), zap.Int("attempt", attempt), zap.Error(err))
			lastErr = err
			forceRotate = ep != nil
			continue
		}

		if need, why := o.deps.Detector.NeedsBrowser(page.Body); need {
			o.deps.Logger.Debug("escalating to browser",
				zap.String("url", url), zap.String("signal", why))
			TotalEscalations.Inc()
			return o.renderWithBrowser(ctx, url, attempts, retries)
		}
		return page, Outcome{Kind: OutcomeCheapSuccess}, attempts, retries
	}

	return Page{}, Outcome{
		Kind:    OutcomeFailed,
		ErrKind: ErrorExhaustedRetries,
		Reason:  FailureReason(lastErr),
	}, attempts, retries
}

// renderWithBrowser runs the full-render path against the session pool.
// Faulted sessions are discarded, never recycled.
func (o *Orchestrator) renderWithBrowser(ctx context.Context, url string, attempts, retries int) (Page, Outcome, int, int) {
	var lastErr error
	for attempt := 0; attempt <= o.opts.BrowserRetryAttempts; attempt++ {
		if attempt > 0 {
			retries++
			TotalRetries.Inc()
			pause(ctx, o.backoff.Delay(attempt-1))
		}
		if err := o.gate.Wait(ctx); err != nil {
			return Page{}, canceledOutcome(err), attempts, retries
		}
		attempts++

		if err := o.acquireSlot(ctx); err != nil {
			return Page{}, canceledOutcome(err), attempts, retries
		}
		sess, err := o.deps.Pool.Acquire(ctx)
		if err != nil {
			o.releaseSlot()
			return Page{}, Outcome{
				Kind:    OutcomeFailed,
				ErrKind: ErrorRenderFault,
				Reason:  "browser unavailable: " + err.Error(),
			}, attempts, retries
		}

		page, err := sess.Render(ctx, url)
		if err != nil {
			o.deps.Pool.Discard(sess)
			o.releaseSlot()
			if !o.backoff.Retryable(err) {
				return Page{}, canceledOutcome(err), attempts, retries
			}
			o.deps.Logger.Debug("browser render failed",
				zap.String("url", url), zap.Int("attempt", attempt), zap.Error(err))
			lastErr = err
			continue
		}
		o.deps.Pool.Release(sess)
		o.releaseSlot()
		return page, Outcome{Kind: OutcomeBrowserSuccess}, attempts, retries
	}

	return Page{}, Outcome{
		Kind:    OutcomeFailed,
		ErrKind: ErrorRenderFault,
		Reason:  "render failed: " + lastErr.Error(),
	}, attempts, retries
}

// recordSources folds every page's source findings into the tracker,
// summing email counts per source across pages.
func (o *Orchestrator) recordSources(tracker *verify.Tracker, job *JobResult) {
	totals := make(map[string]int)
	for _, page := range job.Pages {
		for _, src := range page.Sources {
			totals[src.Name] += src.EmailsFound
		}
	}
	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		tracker.MarkDataSourceChecked(name, verify.ScanCompleted, totals[name], "")
	}
}

// recordEmails merges the per-page fields into the job, records the email
// set, and satisfies the results-consistency requirement either way.
func (o *Orchestrator) recordEmails(tracker *verify.Tracker, job *JobResult) {
	for _, page := range job.Pages {
		mergeFields(&job.Fields, page.Fields)
	}
	tracker.AddEmails(job.Fields.Emails)
	job.Emails = tracker.Emails()
	if len(job.Emails) > 0 {
		job.Fields.Emails = job.Emails
		tracker.MarkEmailsCleaned()
		return
	}
	tracker.SetNoEmailReason("no email addresses found on any scanned page")
}

// scoreConfidence grades how much usable contact data a job produced, on a
// 0..1 scale. Emails dominate the score; phones, a contact form, social or
// messaging links, and a postal address each add a smaller share.
func scoreConfidence(f FieldBag) float64 {
	score := 0.0
	if len(f.Emails) > 0 {
		score += 0.4
	}
	if len(f.Phones) > 0 {
		score += 0.2
	}
	if f.HasContactForm {
		score += 0.15
	}
	if len(f.SocialLinks) > 0 || len(f.MessagingLinks) > 0 {
		score += 0.15
	}
	if len(f.Addresses) > 0 {
		score += 0.1
	}
	return score
}

func canceledOutcome(err error) Outcome {
	return Outcome{
		Kind:    OutcomeFailed,
		ErrKind: ErrorTransientNetwork,
		Reason:  "canceled: " + err.Error(),
	}
}

func buildStats(jobs []*JobResult, elapsed time.Duration) Stats {
	stats := Stats{Total: len(jobs), Elapsed: elapsed}
	pages := 0
	for _, job := range jobs {
		switch job.Outcome.Kind {
		case OutcomeCheapSuccess:
			stats.CheapSuccess++
		case OutcomeBrowserSuccess:
			stats.BrowserSuccess++
		case OutcomeFailed:
			stats.Failed++
		case OutcomeSkipped:
			stats.Skipped++
		}
		for _, page := range job.Pages {
			stats.Retries += page.Retries
			pages++
		}
	}
	if secs := elapsed.Seconds(); secs > 0 {
		stats.PagesPerSecond = float64(pages) / secs
	}
	return stats
}

func mergeFields(dst *FieldBag, src FieldBag) {
	dst.Emails = mergeUnique(dst.Emails, src.Emails)
	dst.Phones = mergeUnique(dst.Phones, src.Phones)
	dst.Addresses = mergeUnique(dst.Addresses, src.Addresses)
	dst.SocialLinks = mergeUnique(dst.SocialLinks, src.SocialLinks)
	if len(src.MessagingLinks) > 0 {
		if dst.MessagingLinks == nil {
			dst.MessagingLinks = make(map[string]string, len(src.MessagingLinks))
		}
		for k, v := range src.MessagingLinks {
			if _, ok := dst.MessagingLinks[k]; !ok {
				dst.MessagingLinks[k] = v
			}
		}
	}
	if len(src.Metadata) > 0 {
		if dst.Metadata == nil {
			dst.Metadata = make(map[string]string, len(src.Metadata))
		}
		for k, v := range src.Metadata {
			if _, ok := dst.Metadata[k]; !ok {
				dst.Metadata[k] = v
			}
		}
	}
	if dst.IndustryGuess == "" {
		dst.IndustryGuess = src.IndustryGuess
	}
	dst.HasContactForm = dst.HasContactForm || src.HasContactForm
	dst.HasBlog = dst.HasBlog || src.HasBlog
	dst.HasProductsOrServices = dst.HasProductsOrServices || src.HasProductsOrServices
	dst.WordCount += src.WordCount
}

func mergeUnique(dst, src []string) []string {
	if len(src) == 0 {
		return dst
	}
	seen := make(map[string]struct{}, len(dst)+len(src))
	for _, v := range dst {
		seen[v] = struct{}{}
	}
	for _, v := range src {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			dst = append(dst, v)
		}
	}
	return dst
}
