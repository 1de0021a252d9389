package scrape

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// defaultFrameworkMarkers are substrings whose presence indicates a
// client-side rendered page.
var defaultFrameworkMarkers = []string{
	"react", "angular", "vue.js", "next.js",
	"__next_data__", "ng-app", "v-app",
	"data-reactroot", "data-react-helmet",
}

// defaultMinVisibleTextChars is the visible-text floor below which a page
// is assumed to render its content with JavaScript.
const defaultMinVisibleTextChars = 200

// EscalationDetector decides whether a cheap fetch result warrants a full
// browser render.
type EscalationDetector struct {
	minTextChars int
	markers      [][]byte
}

// NewEscalationDetector constructs a detector with the given thresholds.
// Zero or empty arguments fall back to the defaults.
func NewEscalationDetector(minTextChars int, markers []string) *EscalationDetector {
	if minTextChars <= 0 {
		minTextChars = defaultMinVisibleTextChars
	}
	if len(markers) == 0 {
		markers = defaultFrameworkMarkers
	}
	lowered := make([][]byte, 0, len(markers))
	for _, m := range markers {
		m = strings.TrimSpace(strings.ToLower(m))
		if m != "" {
			lowered = append(lowered, []byte(m))
		}
	}
	return &EscalationDetector{
		minTextChars: minTextChars,
		markers:      lowered,
	}
}

// NeedsBrowser inspects static HTML for signals that client-side rendering
// dominates the page. Either signal alone forces escalation. It returns the
// triggering reason alongside the decision.
func (d *EscalationDetector) NeedsBrowser(body []byte) (bool, string) {
	if len(body) == 0 {
		return true, "empty response body"
	}
	lower := bytes.ToLower(body)
	for _, marker := range d.markers {
		if bytes.Contains(lower, marker) {
			return true, "framework marker: " + string(marker)
		}
	}
	if d.visibleTextTooShort(body) {
		return true, "visible text below threshold"
	}
	return false, ""
}

func (d *EscalationDetector) visibleTextTooShort(body []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return true
	}
	doc.Find("script, style, noscript").Remove()
	text := strings.TrimSpace(doc.Text())
	return len(text) < d.minTextChars
}
