package scrape

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// CollyFetcher implements CheapFetcher using the Colly collector. Each
// Fetch clones the base collector so per-request proxy and timeout settings
// never leak between attempts.
type CollyFetcher struct {
	baseCollector *colly.Collector
	timeout       time.Duration
	logger        *zap.Logger
}

// NewCollyFetcher constructs a configured Colly-based fetcher.
func NewCollyFetcher(userAgent string, timeout time.Duration, logger *zap.Logger) *CollyFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := colly.NewCollector(
		colly.UserAgent(userAgent),
	)
	base.AllowURLRevisit = true
	base.IgnoreRobotsTxt = true
	base.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
	})
	base.SetRequestTimeout(timeout)

	return &CollyFetcher{
		baseCollector: base,
		timeout:       timeout,
		logger:        logger,
	}
}

// Fetch retrieves a page via a clone of the base collector.
func (f *CollyFetcher) Fetch(ctx context.Context, req FetchRequest) (Page, error) {
	collector := f.baseCollector.Clone()
	if req.UserAgent != "" {
		collector.UserAgent = req.UserAgent
	}
	if req.Proxy != nil {
		if err := collector.SetProxy(req.Proxy.URL()); err != nil {
			return Page{}, fmt.Errorf("set proxy: %w", err)
		}
	}
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Page{}, fmt.Errorf("cheap fetch: %w", context.DeadlineExceeded)
		}
		collector.SetRequestTimeout(remaining)
	}

	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			for k, v := range *r.Headers {
				cp := make([]string, len(v))
				copy(cp, v)
				headers[k] = cp
			}
		}
		send(fetchResult{page: Page{
			URL:        req.URL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
		}})
	})

	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		if r != nil && r.StatusCode != 0 {
			err = fmt.Errorf("http status %d: %w", r.StatusCode, err)
		}
		send(fetchResult{err: err})
	})

	done := make(chan error, 1)
	go func() {
		if err := collector.Visit(req.URL); err != nil {
			send(fetchResult{err: err})
		}
		collector.Wait()
		done <- nil
	}()

	select {
	case <-ctx.Done():
		return Page{}, fmt.Errorf("cheap fetch canceled: %w", ctx.Err())
	case res := <-resultCh:
		<-done
		if res.err != nil {
			return Page{}, fmt.Errorf("cheap fetch %s: %w", req.URL, res.err)
		}
		return res.page, nil
	}
}

type fetchResult struct {
	page Page
	err  error
}
