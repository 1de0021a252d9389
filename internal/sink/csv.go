// Package sink persists scrape results: a CSV of per-site contact fields
// and one verification report per job.
package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Kismat-adhikari/website-scrapper/internal/scrape"
)

var csvHeader = []string{
	"url",
	"status",
	"emails",
	"phones",
	"addresses",
	"social_links",
	"messaging_links",
	"industry",
	"has_contact_form",
	"has_blog",
	"has_products_or_services",
	"word_count",
	"used_js",
	"confidence",
	"verification",
	"error",
}

// CSVWriter appends one row per job to a results file.
type CSVWriter struct {
	path   string
	logger *zap.Logger
}

// NewCSVWriter ensures the parent directory exists.
func NewCSVWriter(path string, logger *zap.Logger) (*CSVWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create results dir %s: %w", dir, err)
		}
	}
	return &CSVWriter{path: path, logger: logger}, nil
}

// WriteAll writes the header plus one row per job, overwriting any previous
// results file.
func (w *CSVWriter) WriteAll(jobs []*scrape.JobResult) error {
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("create results file %s: %w", w.path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, job := range jobs {
		if err := cw.Write(jobRow(job)); err != nil {
			return fmt.Errorf("write csv row for %s: %w", job.BaseURL, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush results csv: %w", err)
	}
	w.logger.Info("results written", zap.String("path", w.path), zap.Int("rows", len(jobs)))
	return nil
}

func jobRow(job *scrape.JobResult) []string {
	verdict := ""
	if job.Verification != nil {
		verdict = job.Verification.CompletionStatus()
	}
	errText := ""
	if !job.Outcome.Succeeded() {
		errText = job.Outcome.Reason
	}
	return []string{
		job.BaseURL,
		string(job.Outcome.Kind),
		strings.Join(job.Emails, "; "),
		strings.Join(job.Fields.Phones, "; "),
		strings.Join(job.Fields.Addresses, "; "),
		strings.Join(job.Fields.SocialLinks, "; "),
		messagingColumn(job.Fields.MessagingLinks),
		job.Fields.IndustryGuess,
		strconv.FormatBool(job.Fields.HasContactForm),
		strconv.FormatBool(job.Fields.HasBlog),
		strconv.FormatBool(job.Fields.HasProductsOrServices),
		strconv.Itoa(job.Fields.WordCount),
		strconv.FormatBool(usedJS(job)),
		strconv.FormatFloat(job.Confidence, 'f', 2, 64),
		verdict,
		errText,
	}
}

func messagingColumn(links map[string]string) string {
	if len(links) == 0 {
		return ""
	}
	channels := make([]string, 0, len(links))
	for channel := range links {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	parts := make([]string, 0, len(channels))
	for _, channel := range channels {
		parts = append(parts, channel+"="+links[channel])
	}
	return strings.Join(parts, "; ")
}

func usedJS(job *scrape.JobResult) bool {
	for _, page := range job.Pages {
		if page.UsedJS {
			return true
		}
	}
	return false
}
