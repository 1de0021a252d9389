package scrape

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalCheapSuccess tracks URLs resolved by the plain HTTP path.
	TotalCheapSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_cheap_success_total",
		Help: "The total number of URLs resolved by the cheap HTTP fetch.",
	})
	// TotalBrowserSuccess tracks URLs resolved by the full render path.
	TotalBrowserSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_browser_success_total",
		Help: "The total number of URLs resolved by a full browser render.",
	})
	// TotalEscalations tracks cheap fetches promoted to a browser render.
	TotalEscalations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_escalations_total",
		Help: "The total number of cheap fetches escalated to the browser.",
	})
	// TotalFailed tracks URLs that ended in a hard failure.
	TotalFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_failed_total",
		Help: "The total number of URLs that failed all fetch strategies.",
	})
	// TotalSkipped tracks URLs rejected by policy before any attempt.
	TotalSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_skipped_total",
		Help: "The total number of URLs skipped by validation policy.",
	})
	// TotalRetries tracks retry attempts across all URLs.
	TotalRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_retries_total",
		Help: "The total number of fetch retries.",
	})
)
