// Package verify tracks whether every required page and data source of a
// scrape job was actually inspected, and produces a completeness verdict.
// The tracker is a passive recorder: it never retries or cancels anything,
// and its mutators never fail.
package verify

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ScanStatus is the recorded status of a page or data-source check.
type ScanStatus string

// Recorded statuses.
const (
	ScanCompleted ScanStatus = "completed"
	ScanFailed    ScanStatus = "failed"
	ScanSkipped   ScanStatus = "skipped"
)

// Verdict values returned by CompletionStatus.
const (
	VerdictComplete   = "COMPLETE"
	VerdictIncomplete = "INCOMPLETE"
)

// RequiredPages is the fixed page set every job must cover.
var RequiredPages = []string{
	"homepage",
	"contact",
	"about",
	"support",
	"help",
	"legal",
	"team",
	"privacy",
	"terms",
}

// RequiredDataSources is the fixed data-source set every job must cover.
var RequiredDataSources = []string{
	"visible_text",
	"dom_text",
	"inline_javascript",
	"meta_tags",
	"schema_org_jsonld",
	"mailto_links",
	"contact_forms",
	"social_links",
}

// Thresholds for advisory diagnostics. They never affect the verdict.
const (
	slowOperationThreshold   = 10 * time.Second
	repeatedFailureThreshold = 3
	highFailureCount         = 5
	manySlowOperations       = 3
)

// PageScan records the outcome of scanning one page.
type PageScan struct {
	Name          string
	URL           string
	Status        ScanStatus
	FailureReason string
	EmailsFound   int
	Elapsed       time.Duration
	At            time.Time
}

// SourceCheck records the outcome of inspecting one data source.
type SourceCheck struct {
	Name          string
	Status        ScanStatus
	EmailsFound   int
	FailureReason string
	At            time.Time
}

// FailureEvent is one recorded failure, in arrival order.
type FailureEvent struct {
	Operation string
	Reason    string
	At        time.Time
}

// SlowOperation records an operation that exceeded the slow threshold.
type SlowOperation struct {
	Operation string
	URL       string
	Elapsed   time.Duration
}

// Tracker is the per-job verification record. One tracker exists per base
// URL; concurrent page-level tasks of that job share it, so every mutator
// and reader takes the tracker lock. Writes are last-write-wins per key.
type Tracker struct {
	mu sync.Mutex

	jobID   string
	baseURL string
	started time.Time

	pages   map[string]PageScan
	sources map[string]SourceCheck

	emails        map[string]struct{}
	emailsCleaned bool
	noEmailReason string

	failures []FailureEvent
	repeated map[string]int
	slowOps  []SlowOperation

	completed bool
	finished  time.Time
}

// NewTracker creates a verification record for one job.
func NewTracker(jobID, baseURL string) *Tracker {
	return &Tracker{
		jobID:    jobID,
		baseURL:  baseURL,
		started:  time.Now(),
		pages:    make(map[string]PageScan),
		sources:  make(map[string]SourceCheck),
		emails:   make(map[string]struct{}),
		repeated: make(map[string]int),
	}
}

// JobID returns the job identifier the tracker belongs to.
func (t *Tracker) JobID() string { return t.jobID }

// BaseURL returns the base URL the tracker audits.
func (t *Tracker) BaseURL() string { return t.baseURL }

// MarkPageScanned records the result of one page scan. Re-registering the
// same page overwrites the previous entry; the most recent write wins.
func (t *Tracker) MarkPageScanned(name, url string, status ScanStatus, failureReason string, emailsFound int, elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pages[name] = PageScan{
		Name:          name,
		URL:           url,
		Status:        status,
		FailureReason: failureReason,
		EmailsFound:   emailsFound,
		Elapsed:       elapsed,
		At:            time.Now(),
	}
	if status == ScanFailed {
		t.trackFailureLocked("scan_"+name, failureReason)
	}
	if elapsed > slowOperationThreshold {
		t.slowOps = append(t.slowOps, SlowOperation{
			Operation: "scan_" + name,
			URL:       url,
			Elapsed:   elapsed,
		})
	}
}

// MarkDataSourceChecked records the result of inspecting one data source.
func (t *Tracker) MarkDataSourceChecked(name string, status ScanStatus, emailsFound int, failureReason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sources[name] = SourceCheck{
		Name:          name,
		Status:        status,
		EmailsFound:   emailsFound,
		FailureReason: failureReason,
		At:            time.Now(),
	}
	if status == ScanFailed {
		t.trackFailureLocked("data_source_"+name, failureReason)
	}
}

// AddEmails records discovered addresses, case-normalized and deduplicated.
func (t *Tracker) AddEmails(emails []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			t.emails[e] = struct{}{}
		}
	}
}

// MarkEmailsCleaned records that found emails were normalized and formatted.
func (t *Tracker) MarkEmailsCleaned() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emailsCleaned = true
}

// SetNoEmailReason records why the job produced no email addresses.
func (t *Tracker) SetNoEmailReason(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.noEmailReason = reason
}

// Finalize marks the record as terminally complete. Completion is never
// inferred from map contents: an early-aborted job that skipped Finalize
// must stay visibly incomplete.
func (t *Tracker) Finalize() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed = true
	t.finished = time.Now()
}

func (t *Tracker) trackFailureLocked(operation, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	t.failures = append(t.failures, FailureEvent{
		Operation: operation,
		Reason:    reason,
		At:        time.Now(),
	})
	t.repeated[operation+"_"+reason]++
}

// Emails returns the sorted set of discovered addresses.
func (t *Tracker) Emails() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.emails))
	for e := range t.emails {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Failures returns the recorded failure events in arrival order.
func (t *Tracker) Failures() []FailureEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]FailureEvent(nil), t.failures...)
}

// CompletionStatus returns the conjunctive verdict: COMPLETE only when the
// job was finalized, every required page and data source has an entry, and
// the results are internally consistent. A single missing entry flips the
// verdict; there is no partial credit.
func (t *Tracker) CompletionStatus() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.completed {
		return VerdictIncomplete
	}
	for _, page := range RequiredPages {
		if _, ok := t.pages[page]; !ok {
			return VerdictIncomplete
		}
	}
	for _, source := range RequiredDataSources {
		if _, ok := t.sources[source]; !ok {
			return VerdictIncomplete
		}
	}
	if !t.resultsConsistentLocked() {
		return VerdictIncomplete
	}
	return VerdictComplete
}

func (t *Tracker) resultsConsistentLocked() bool {
	if len(t.emails) > 0 {
		return t.emailsCleaned
	}
	return t.noEmailReason != ""
}

// IncompleteSteps lists everything still blocking a COMPLETE verdict.
func (t *Tracker) IncompleteSteps() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var steps []string
	for _, page := range RequiredPages {
		if _, ok := t.pages[page]; !ok {
			steps = append(steps, fmt.Sprintf("page %q not scanned", page))
		}
	}
	for _, source := range RequiredDataSources {
		if _, ok := t.sources[source]; !ok {
			steps = append(steps, fmt.Sprintf("data source %q not checked", source))
		}
	}
	if len(t.emails) > 0 && !t.emailsCleaned {
		steps = append(steps, "emails found but not cleaned/formatted")
	}
	if len(t.emails) == 0 && t.noEmailReason == "" {
		steps = append(steps, "no emails found and no reason recorded")
	}
	if !t.completed {
		steps = append(steps, "job not finalized")
	}
	return steps
}

// StepFailure describes one failed page or data-source check.
type StepFailure struct {
	Type   string
	Name   string
	URL    string
	Reason string
}

// FailedSteps lists page and data-source checks that ended in failure.
func (t *Tracker) FailedSteps() []StepFailure {
	t.mu.Lock()
	defer t.mu.Unlock()

	var failed []StepFailure
	for _, name := range sortedKeys(t.pages) {
		page := t.pages[name]
		if page.Status == ScanFailed {
			failed = append(failed, StepFailure{
				Type:   "page_scan",
				Name:   page.Name,
				URL:    page.URL,
				Reason: orUnknown(page.FailureReason),
			})
		}
	}
	for _, name := range sortedKeys(t.sources) {
		source := t.sources[name]
		if source.Status == ScanFailed {
			failed = append(failed, StepFailure{
				Type:   "data_source",
				Name:   source.Name,
				Reason: orUnknown(source.FailureReason),
			})
		}
	}
	return failed
}

// Diagnostics summarizes internal counters and advisory recommendations.
type Diagnostics struct {
	PagesScanned       int
	DataSourcesChecked int
	EmailsFound        int
	TotalFailures      int
	SlowOperations     []SlowOperation
	RepeatedFailures   map[string]int
	Recommendations    []string
}

// Diagnostics produces advisory output. It never affects the verdict.
func (t *Tracker) Diagnostics() Diagnostics {
	t.mu.Lock()
	defer t.mu.Unlock()

	d := Diagnostics{
		PagesScanned:       len(t.pages),
		DataSourcesChecked: len(t.sources),
		EmailsFound:        len(t.emails),
		TotalFailures:      len(t.failures),
		SlowOperations:     append([]SlowOperation(nil), t.slowOps...),
		RepeatedFailures:   make(map[string]int, len(t.repeated)),
	}
	for k, v := range t.repeated {
		d.RepeatedFailures[k] = v
	}

	if len(t.failures) > highFailureCount {
		d.Recommendations = append(d.Recommendations, "high failure rate - check network and proxy health")
	}
	if len(t.slowOps) > manySlowOperations {
		d.Recommendations = append(d.Recommendations, "multiple slow operations - consider increasing timeouts")
	}
	for _, key := range sortedKeys(t.repeated) {
		if count := t.repeated[key]; count >= repeatedFailureThreshold {
			d.Recommendations = append(d.Recommendations,
				fmt.Sprintf("repeated failure %s (%d times) - needs investigation", key, count))
		}
	}
	return d
}

// PageScans returns a copy of the recorded page entries.
func (t *Tracker) PageScans() map[string]PageScan {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]PageScan, len(t.pages))
	for k, v := range t.pages {
		out[k] = v
	}
	return out
}

// SourceChecks returns a copy of the recorded data-source entries.
func (t *Tracker) SourceChecks() map[string]SourceCheck {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]SourceCheck, len(t.sources))
	for k, v := range t.sources {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orUnknown(reason string) string {
	if reason == "" {
		return "unknown"
	}
	return reason
}
