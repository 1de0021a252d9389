package sink

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Kismat-adhikari/website-scrapper/internal/scrape"
)

// ReportWriter saves one verification report per job under the report
// directory, named after the job's host.
type ReportWriter struct {
	dir    string
	logger *zap.Logger
}

// NewReportWriter creates the report directory.
func NewReportWriter(dir string, logger *zap.Logger) (*ReportWriter, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create report dir %s: %w", dir, err)
	}
	return &ReportWriter{dir: dir, logger: logger}, nil
}

// WriteAll renders and saves every job's verification report.
func (w *ReportWriter) WriteAll(jobs []*scrape.JobResult) error {
	for _, job := range jobs {
		if job.Verification == nil {
			continue
		}
		target := filepath.Join(w.dir, reportFileName(job.BaseURL, job.JobID))
		report := job.Verification.Report()
		if err := os.WriteFile(target, []byte(report), 0o600); err != nil {
			return fmt.Errorf("write report %s: %w", target, err)
		}
		w.logger.Debug("report written",
			zap.String("url", job.BaseURL), zap.String("path", target))
	}
	return nil
}

// reportFileName derives a stable filesystem-safe name from the job's host,
// with the job id as a tiebreaker for repeated hosts.
func reportFileName(baseURL, jobID string) string {
	host := "job"
	if u, err := url.Parse(baseURL); err == nil && u.Hostname() != "" {
		host = strings.ReplaceAll(u.Hostname(), ".", "_")
	}
	suffix := jobID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return host + "_" + suffix + ".txt"
}
