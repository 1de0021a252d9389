package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Kismat-adhikari/website-scrapper/internal/api"
	"github.com/Kismat-adhikari/website-scrapper/internal/browser"
	"github.com/Kismat-adhikari/website-scrapper/internal/config"
	"github.com/Kismat-adhikari/website-scrapper/internal/extract"
	"github.com/Kismat-adhikari/website-scrapper/internal/proxy"
	"github.com/Kismat-adhikari/website-scrapper/internal/scrape"
	"github.com/Kismat-adhikari/website-scrapper/internal/sink"
)

func newScrapeCmd() *cobra.Command {
	var urlFile string

	cmd := &cobra.Command{
		Use:   "scrape [urls...]",
		Short: "Scrapes business contact details from the given websites",
		Long: `Scrapes each website for business contact details. URLs come from
the command line or from a file (one URL per line). Results are written
to a CSV file and each job gets a verification report.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrapeCommand(cmd, args, urlFile)
		},
	}

	cmd.Flags().StringVarP(&urlFile, "file", "f", "", "file with one URL per line")
	return cmd
}

func runScrapeCommand(cmd *cobra.Command, args []string, urlFile string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	urls, err := collectURLs(args, urlFile)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return errors.New("no URLs given: pass them as arguments or via --file")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, status, err := buildOrchestrator(cfg, logger)
	if err != nil {
		return err
	}

	var apiServer *http.Server
	if cfg.API.Enabled {
		apiServer = startAPIServer(cfg, status, logger)
		defer shutdownAPIServer(apiServer, logger)
	}

	logger.Info("starting scrape", zap.Int("urls", len(urls)))
	status.SetRunning()
	result, runErr := orch.Run(ctx, urls)
	status.SetFinished(result.Stats)

	// A canceled run still returns the jobs that finished; write those out
	// before reporting the error.
	if err := writeOutputs(cfg, result, logger); err != nil {
		return err
	}
	printSummary(cmd, result)
	if runErr != nil {
		return fmt.Errorf("run scraper: %w", runErr)
	}
	return nil
}

func buildOrchestrator(cfg config.Config, logger *zap.Logger) (*scrape.Orchestrator, *api.StatusStore, error) {
	eps, err := proxy.LoadFile(cfg.Proxy.File, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("load proxies: %w", err)
	}
	var rotator *proxy.Rotator
	var poolProxy *proxy.Endpoint
	if len(eps) > 0 {
		rotator = proxy.NewRotator(eps, cfg.Proxy.MaxUsesPerProxy, logger)
		poolProxy = rotator.Next(false)
	}

	pool, err := browser.NewPool(cfg.Browser.PoolSize, browser.Config{
		UserAgent:  cfg.Scraper.UserAgent,
		NavTimeout: cfg.NavTimeout(),
		Headless:   cfg.Browser.Headless,
		Proxy:      poolProxy,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init browser pool: %w", err)
	}

	orch, err := scrape.NewOrchestrator(scrape.Options{
		MaxConcurrent:        cfg.Scraper.MaxConcurrent,
		RetryAttempts:        cfg.Scraper.RetryAttempts,
		BrowserRetryAttempts: cfg.Browser.RetryAttempts,
		CheapTimeout:         cfg.CheapTimeout(),
		RateLimitDelay:       cfg.RateLimitDelay(),
		ForceBrowser:         cfg.Scraper.ForceBrowser,
		ScanSubPages:         cfg.Scraper.ScanSubPages,
		UserAgent:            cfg.Scraper.UserAgent,
	}, scrape.Deps{
		Fetcher:   scrape.NewCollyFetcher(cfg.Scraper.UserAgent, cfg.CheapTimeout(), logger),
		Pool:      pool,
		Extractor: extract.New(logger),
		Detector:  scrape.NewEscalationDetector(cfg.Detector.MinVisibleTextChars, cfg.Detector.FrameworkMarkers),
		Denylist:  scrape.NewDenylist(),
		Rotator:   rotator,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init orchestrator: %w", err)
	}
	return orch, api.NewStatusStore(), nil
}

func startAPIServer(cfg config.Config, status *api.StatusStore, logger *zap.Logger) *http.Server {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           api.NewServer(status, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("api server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", zap.Error(err))
		}
	}()
	return server
}

func shutdownAPIServer(server *http.Server, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("api server shutdown failed", zap.Error(err))
	}
}

func writeOutputs(cfg config.Config, result *scrape.RunResult, logger *zap.Logger) error {
	csvWriter, err := sink.NewCSVWriter(cfg.Output.ResultsCSV, logger)
	if err != nil {
		return fmt.Errorf("init results writer: %w", err)
	}
	if err := csvWriter.WriteAll(filterLowConfidence(result.Jobs, cfg.Scraper.MinConfidenceScore)); err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	reportWriter, err := sink.NewReportWriter(cfg.Output.ReportDir, logger)
	if err != nil {
		return fmt.Errorf("init report writer: %w", err)
	}
	if err := reportWriter.WriteAll(result.Jobs); err != nil {
		return fmt.Errorf("write reports: %w", err)
	}
	return nil
}

// filterLowConfidence drops successful jobs whose contact-data confidence
// falls below the configured floor. Failed and skipped jobs pass through so
// the CSV still records why they produced nothing. Verification reports are
// never filtered.
func filterLowConfidence(jobs []*scrape.JobResult, min float64) []*scrape.JobResult {
	if min <= 0 {
		return jobs
	}
	kept := make([]*scrape.JobResult, 0, len(jobs))
	for _, job := range jobs {
		if job.Outcome.Succeeded() && job.Confidence < min {
			continue
		}
		kept = append(kept, job)
	}
	return kept
}

func printSummary(cmd *cobra.Command, result *scrape.RunResult) {
	stats := result.Stats
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Scrape finished")
	fmt.Fprintf(out, "  total:           %d\n", stats.Total)
	fmt.Fprintf(out, "  cheap success:   %d\n", stats.CheapSuccess)
	fmt.Fprintf(out, "  browser success: %d\n", stats.BrowserSuccess)
	fmt.Fprintf(out, "  failed:          %d\n", stats.Failed)
	fmt.Fprintf(out, "  skipped:         %d\n", stats.Skipped)
	fmt.Fprintf(out, "  retries:         %d\n", stats.Retries)
	fmt.Fprintf(out, "  elapsed:         %s\n", stats.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "  pages/sec:       %.2f\n", stats.PagesPerSecond)
}

// collectURLs merges command-line URLs with the optional URL file.
func collectURLs(args []string, urlFile string) ([]string, error) {
	urls := append([]string(nil), args...)
	if urlFile == "" {
		return urls, nil
	}
	f, err := os.Open(urlFile)
	if err != nil {
		return nil, fmt.Errorf("open url file %s: %w", urlFile, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url file %s: %w", urlFile, err)
	}
	return urls, nil
}
