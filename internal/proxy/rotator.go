// Package proxy manages forward-proxy endpoints and their rotation.
package proxy

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Endpoint is a single forward proxy, immutable once parsed.
type Endpoint struct {
	Server   string // http://host:port
	Username string
	Password string
}

// URL renders the endpoint as a proxy URL, embedding credentials when present.
func (e Endpoint) URL() string {
	if e.Username == "" {
		return e.Server
	}
	u, err := url.Parse(e.Server)
	if err != nil {
		return e.Server
	}
	u.User = url.UserPassword(e.Username, e.Password)
	return u.String()
}

// Rotator hands out endpoints in order and advances after a usage quota.
// All state lives behind one mutex so callers never observe a torn
// index/counter pair.
type Rotator struct {
	mu      sync.Mutex
	eps     []Endpoint
	index   int
	uses    int
	maxUses int
	rotated int
	logger  *zap.Logger
}

// DefaultMaxUses is the per-endpoint quota before rotation.
const DefaultMaxUses = 7

// NewRotator builds a Rotator over the given endpoints.
func NewRotator(eps []Endpoint, maxUses int, logger *zap.Logger) *Rotator {
	if maxUses <= 0 {
		maxUses = DefaultMaxUses
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rotator{
		eps:     append([]Endpoint(nil), eps...),
		maxUses: maxUses,
		logger:  logger,
	}
}

// Len reports the number of configured endpoints.
func (r *Rotator) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.eps)
}

// Next returns the endpoint to use for the next request, or nil when no
// proxies are configured. It advances to the next endpoint (wrapping) when
// forceRotate is set or the current endpoint reached its quota. A
// single-endpoint list never rotates: one proxy is still better than none,
// so the quota is deliberately ignored there.
func (r *Rotator) Next(forceRotate bool) *Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.eps) == 0 {
		return nil
	}

	if (forceRotate || r.uses >= r.maxUses) && len(r.eps) > 1 {
		r.index = (r.index + 1) % len(r.eps)
		r.uses = 0
		r.rotated++
		r.logger.Debug("proxy rotated",
			zap.Int("index", r.index),
			zap.Bool("forced", forceRotate),
		)
	}

	ep := r.eps[r.index]
	r.uses++
	return &ep
}

// Reset clears the usage counter, typically at the start of a new session.
func (r *Rotator) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uses = 0
}

// Rotations reports how many times the rotator advanced.
func (r *Rotator) Rotations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rotated
}

// LoadFile reads proxy endpoints from a file, one per line. Blank lines and
// lines starting with '#' are ignored, malformed lines are skipped with a
// warning. A missing file is not an error: proxy use is opt-in.
func LoadFile(path string, logger *zap.Logger) ([]Endpoint, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("no proxy file found, continuing without proxy", zap.String("path", path))
			return nil, nil
		}
		return nil, fmt.Errorf("open proxy file %s: %w", path, err)
	}
	defer f.Close()

	var eps []Endpoint
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ep, err := ParseLine(line)
		if err != nil {
			logger.Warn("skipping invalid proxy line",
				zap.Int("line", lineNum),
				zap.String("entry", line),
				zap.Error(err),
			)
			continue
		}
		eps = append(eps, ep)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read proxy file %s: %w", path, err)
	}
	logger.Info("loaded proxy endpoints", zap.Int("count", len(eps)))
	return eps, nil
}

// ParseLine parses one proxy entry. Four formats are accepted:
//
//	ip:port
//	ip:port:user:pass
//	http://ip:port
//	http://user:pass@ip:port
func ParseLine(line string) (Endpoint, error) {
	line = strings.TrimSpace(line)

	if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
		u, err := url.Parse(line)
		if err != nil {
			return Endpoint{}, fmt.Errorf("parse proxy url: %w", err)
		}
		if u.Host == "" || u.Port() == "" {
			return Endpoint{}, fmt.Errorf("proxy url %q missing host or port", line)
		}
		ep := Endpoint{Server: fmt.Sprintf("%s://%s", u.Scheme, u.Host)}
		if u.User != nil {
			ep.Username = u.User.Username()
			ep.Password, _ = u.User.Password()
		}
		return ep, nil
	}

	parts := strings.Split(line, ":")
	switch len(parts) {
	case 2:
		return Endpoint{Server: fmt.Sprintf("http://%s:%s", parts[0], parts[1])}, nil
	case 4:
		return Endpoint{
			Server:   fmt.Sprintf("http://%s:%s", parts[0], parts[1]),
			Username: parts[2],
			Password: parts[3],
		}, nil
	default:
		return Endpoint{}, fmt.Errorf("unrecognized proxy format %q", line)
	}
}
