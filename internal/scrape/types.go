// Package scrape implements the hybrid fetch orchestrator: per-URL strategy
// selection between a cheap HTTP fetch and a pooled full browser render,
// with retry, rate control, proxy rotation, and verification tracking.
package scrape

import (
	"net/http"
	"time"

	"github.com/Kismat-adhikari/website-scrapper/internal/proxy"
	"github.com/Kismat-adhikari/website-scrapper/internal/verify"
)

// OutcomeKind enumerates the variants a completed attempt can produce.
type OutcomeKind string

// Outcome variants. NeedsBrowser is attempt-level only; the other four are
// terminal for a URL.
const (
	OutcomeCheapSuccess   OutcomeKind = "cheap_success"
	OutcomeNeedsBrowser   OutcomeKind = "needs_browser"
	OutcomeBrowserSuccess OutcomeKind = "browser_success"
	OutcomeFailed         OutcomeKind = "failed"
	OutcomeSkipped        OutcomeKind = "skipped"
)

// ErrorKind classifies failures for reporting and retry decisions.
type ErrorKind string

// Error taxonomy.
const (
	ErrorNone               ErrorKind = ""
	ErrorValidationRejected ErrorKind = "validation_rejected"
	ErrorTransientNetwork   ErrorKind = "transient_network"
	ErrorRenderFault        ErrorKind = "render_fault"
	ErrorExtractionFault    ErrorKind = "extraction_fault"
	ErrorExhaustedRetries   ErrorKind = "exhausted_retries"
)

// FetchRequest captures everything needed for one fetch attempt. A new
// request is created for each retry or escalation; requests are never
// mutated after construction.
type FetchRequest struct {
	URL          string
	Attempt      int
	Proxy        *proxy.Endpoint
	ForceBrowser bool
	UserAgent    string
}

// Page is the raw result of a fetch or render.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	UsedJS     bool
}

// FieldBag holds everything the extraction capability pulled from a page.
type FieldBag struct {
	Emails                []string
	Phones                []string
	Addresses             []string
	SocialLinks           []string
	MessagingLinks        map[string]string
	Metadata              map[string]string
	IndustryGuess         string
	HasContactForm        bool
	WordCount             int
	HasBlog               bool
	HasProductsOrServices bool
}

// SourceFinding reports one inspected data source and what it yielded.
type SourceFinding struct {
	Name        string
	EmailsFound int
}

// Extraction is the full output of the extraction capability for one page.
type Extraction struct {
	Fields  FieldBag
	Sources []SourceFinding
}

// Outcome is the tagged result variant for one URL. Exactly one Outcome is
// produced per terminal state transition.
type Outcome struct {
	Kind    OutcomeKind
	ErrKind ErrorKind
	Reason  string
}

// Succeeded reports whether the outcome carries extracted fields.
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeCheapSuccess || o.Kind == OutcomeBrowserSuccess
}

// Result is the per-page record handed back to the caller.
type Result struct {
	URL        string
	PageName   string
	Outcome    Outcome
	Fields     FieldBag
	Sources    []SourceFinding
	Attempts   int
	Retries    int
	UsedJS     bool
	StartedAt  time.Time
	FinishedAt time.Time
	Elapsed    time.Duration
}

// JobResult aggregates everything for one base URL.
type JobResult struct {
	JobID        string
	BaseURL      string
	Outcome      Outcome
	Fields       FieldBag
	Emails       []string
	Pages        []Result
	Confidence   float64
	Verification *verify.Tracker
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Stats summarizes a whole run.
type Stats struct {
	Total          int
	CheapSuccess   int
	BrowserSuccess int
	Failed         int
	Skipped        int
	Retries        int
	Elapsed        time.Duration
	PagesPerSecond float64
}

// RunResult is the batch output: unordered job results plus aggregate stats.
type RunResult struct {
	Jobs  []*JobResult
	Stats Stats
}
