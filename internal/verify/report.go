package verify

import (
	"fmt"
	"strings"
	"time"
)

const reportRule = "================================================================================"

// Report renders the full verification report as human-readable text.
// The record should be finalized first; an unfinalized record renders with
// an INCOMPLETE verdict.
func (t *Tracker) Report() string {
	t.mu.Lock()
	finished := t.finished
	if finished.IsZero() {
		finished = time.Now()
	}
	started := t.started
	t.mu.Unlock()

	var b strings.Builder
	writeHeader := func(title string) {
		b.WriteString(reportRule + "\n")
		b.WriteString(title + "\n")
		b.WriteString(reportRule + "\n")
	}

	writeHeader("DISCOVERY VERIFICATION REPORT")
	fmt.Fprintf(&b, "URL: %s\n", t.BaseURL())
	fmt.Fprintf(&b, "Job ID: %s\n", t.JobID())
	fmt.Fprintf(&b, "Start Time: %s\n", started.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "End Time: %s\n", finished.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Duration: %.2f seconds\n\n", finished.Sub(started).Seconds())

	writeHeader("OVERALL STATUS")
	fmt.Fprintf(&b, "Status: %s\n\n", t.CompletionStatus())

	pages := t.PageScans()
	writeHeader("1. PAGE SCAN VERIFICATION")
	for _, name := range RequiredPages {
		scan, ok := pages[name]
		switch {
		case !ok:
			fmt.Fprintf(&b, "  [ ] %s: NOT CHECKED\n", name)
		case scan.Status == ScanFailed:
			fmt.Fprintf(&b, "  [!] %s: FAILED (%s)\n", name, orUnknown(scan.FailureReason))
		case scan.Status == ScanSkipped:
			fmt.Fprintf(&b, "  [-] %s: SKIPPED (%s)\n", name, orUnknown(scan.FailureReason))
		default:
			fmt.Fprintf(&b, "  [x] %s: CHECKED (%d emails, %.2fs)\n", name, scan.EmailsFound, scan.Elapsed.Seconds())
		}
	}
	b.WriteString("\n")

	sources := t.SourceChecks()
	writeHeader("2. DATA SOURCE VERIFICATION")
	for _, name := range RequiredDataSources {
		check, ok := sources[name]
		switch {
		case !ok:
			fmt.Fprintf(&b, "  [ ] %s: NOT CHECKED\n", name)
		case check.Status == ScanFailed:
			fmt.Fprintf(&b, "  [!] %s: FAILED (%s)\n", name, orUnknown(check.FailureReason))
		default:
			if check.EmailsFound > 0 {
				fmt.Fprintf(&b, "  [x] %s: CHECKED (%d emails found)\n", name, check.EmailsFound)
			} else {
				fmt.Fprintf(&b, "  [x] %s: CHECKED\n", name)
			}
		}
	}
	b.WriteString("\n")

	writeHeader("3. RESULTS VERIFICATION")
	emails := t.Emails()
	fmt.Fprintf(&b, "Emails Found: %d\n", len(emails))
	t.mu.Lock()
	cleaned := t.emailsCleaned
	noEmailReason := t.noEmailReason
	t.mu.Unlock()
	if len(emails) > 0 {
		fmt.Fprintf(&b, "Emails Cleaned/Formatted: %s\n", yesNo(cleaned))
		for _, e := range emails {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
	} else {
		fmt.Fprintf(&b, "No-Email Reason Provided: %s\n", yesNo(noEmailReason != ""))
		if noEmailReason != "" {
			fmt.Fprintf(&b, "  Reason: %s\n", noEmailReason)
		}
	}
	b.WriteString("\n")

	if failed := t.FailedSteps(); len(failed) > 0 {
		writeHeader("4. FAILURES TRACKED")
		for _, f := range failed {
			fmt.Fprintf(&b, "  [!] %s: %s\n", f.Type, f.Name)
			fmt.Fprintf(&b, "      Reason: %s\n", f.Reason)
			if f.URL != "" {
				fmt.Fprintf(&b, "      URL: %s\n", f.URL)
			}
		}
		b.WriteString("\n")
	}

	if incomplete := t.IncompleteSteps(); len(incomplete) > 0 {
		writeHeader("5. INCOMPLETE STEPS")
		for _, step := range incomplete {
			fmt.Fprintf(&b, "  - %s\n", step)
		}
		b.WriteString("\n")
	}

	diag := t.Diagnostics()
	writeHeader("6. DIAGNOSTICS")
	fmt.Fprintf(&b, "Pages Scanned: %d/%d\n", diag.PagesScanned, len(RequiredPages))
	fmt.Fprintf(&b, "Data Sources Checked: %d/%d\n", diag.DataSourcesChecked, len(RequiredDataSources))
	fmt.Fprintf(&b, "Emails Found: %d\n", diag.EmailsFound)
	fmt.Fprintf(&b, "Failures: %d\n", diag.TotalFailures)
	fmt.Fprintf(&b, "Slow Operations: %d\n", len(diag.SlowOperations))
	for _, op := range diag.SlowOperations {
		fmt.Fprintf(&b, "  - %s: %.2fs\n", op.Operation, op.Elapsed.Seconds())
	}
	if len(diag.Recommendations) > 0 {
		b.WriteString("Recommendations:\n")
		for _, rec := range diag.Recommendations {
			fmt.Fprintf(&b, "  -> %s\n", rec)
		}
	}
	b.WriteString(reportRule + "\n")

	return b.String()
}

func yesNo(ok bool) string {
	if ok {
		return "YES"
	}
	return "NO"
}
