// Package browser manages pooled headless Chrome render sessions.
package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/Kismat-adhikari/website-scrapper/internal/proxy"
	"github.com/Kismat-adhikari/website-scrapper/internal/scrape"
)

// scrollToBottom walks the page down in steps so lazy-loaded content below
// the fold is triggered before the DOM snapshot.
const scrollToBottom = `(async () => {
	const step = Math.max(200, Math.floor(window.innerHeight * 0.8));
	let last = -1;
	for (let i = 0; i < 20; i++) {
		window.scrollBy(0, step);
		await new Promise(r => setTimeout(r, 150));
		const y = window.scrollY;
		if (y === last) break;
		last = y;
	}
	window.scrollTo(0, 0);
})()`

// Config controls session behavior.
type Config struct {
	UserAgent  string
	NavTimeout time.Duration
	Headless   bool
	Proxy      *proxy.Endpoint
}

// session is one long-lived Chrome process plus the tab used for renders.
// Sessions are single-owner: the pool hands each one to at most one task at
// a time.
type session struct {
	cfg           Config
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        *zap.Logger

	closeOnce sync.Once
}

// newSession launches a Chrome process. The proxy endpoint, when present,
// is fixed for the session's lifetime because Chrome takes it as a process
// flag.
func newSession(cfg Config, logger *zap.Logger) (*session, error) {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}

	// The allocator defaults include headless mode; a false bool flag
	// overrides the default and is dropped from the command line.
	headless := chromedp.Flag("headless", false)
	if cfg.Headless {
		headless = chromedp.Flag("headless", "new")
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		headless,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Proxy != nil {
		opts = append(opts, chromedp.ProxyServer(cfg.Proxy.Server))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &session{
		cfg:           cfg,
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		logger:        logger,
	}
	return s, nil
}

// Render navigates with scripts enabled and returns the rendered DOM.
func (s *session) Render(ctx context.Context, url string) (scrape.Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	defer tabCancel()

	tabCtx, cancel := context.WithTimeout(tabCtx, s.cfg.NavTimeout)
	defer cancel()

	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		s.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Evaluate(scrollToBottom, nil, awaitPromise),
		chromedp.KeyEvent(kb.Escape),
		chromedp.Sleep(250 * time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return scrape.Page{}, fmt.Errorf("chromedp run: %w", err)
	}

	status, headers, responseURL := meta.snapshotWithFallbacks(url, finalURL)
	if headers == nil {
		headers = http.Header{}
	}

	return scrape.Page{
		URL:        url,
		FinalURL:   responseURL,
		StatusCode: status,
		Headers:    headers,
		Body:       []byte(html),
		UsedJS:     true,
	}, nil
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func (s *session) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if s.cfg.Proxy != nil && s.cfg.Proxy.Username != "" {
			creds := base64.StdEncoding.EncodeToString(
				[]byte(s.cfg.Proxy.Username + ":" + s.cfg.Proxy.Password))
			headers := network.Headers{"Proxy-Authorization": "Basic " + creds}
			if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
				return fmt.Errorf("set proxy auth: %w", err)
			}
		}
		return nil
	})
}

// Close tears down the browser process. Safe to call more than once.
func (s *session) Close() {
	s.closeOnce.Do(func() {
		s.browserCancel()
		s.allocCancel()
	})
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	m.mu.RLock()
	status := m.status
	headers := cloneHeader(m.headers)
	url := m.url
	m.mu.RUnlock()

	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}

func cloneHeader(src http.Header) http.Header {
	if src == nil {
		return nil
	}
	dst := make(http.Header, len(src))
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
	return dst
}
