package scrape

import (
	"net/url"
	"strings"
)

// blockedPlatformDomains are social-media and platform hosts that are
// rejected by policy before any network attempt. Business contact data
// behind these hosts is not reachable by scraping their public pages.
var blockedPlatformDomains = []string{
	"facebook.com", "fb.com", "instagram.com", "twitter.com", "x.com",
	"linkedin.com", "youtube.com", "tiktok.com", "snapchat.com",
	"pinterest.com", "reddit.com", "tumblr.com", "whatsapp.com",
	"telegram.org", "t.me", "discord.com", "discord.gg",
	"twitch.tv", "vimeo.com", "flickr.com", "medium.com",
}

// Denylist rejects URLs by policy. Rejections are exclusions, not faults,
// and are reported distinctly from runtime failures.
type Denylist struct {
	suffixes []string
}

// NewDenylist builds a Denylist over the fixed platform set plus any extra
// host suffixes from configuration.
func NewDenylist(extra ...string) *Denylist {
	suffixes := make([]string, 0, len(blockedPlatformDomains)+len(extra))
	for _, d := range blockedPlatformDomains {
		suffixes = append(suffixes, strings.ToLower(d))
	}
	for _, d := range extra {
		d = strings.TrimSpace(strings.ToLower(d))
		if d != "" {
			suffixes = append(suffixes, d)
		}
	}
	return &Denylist{suffixes: suffixes}
}

// Reject returns a non-empty policy reason when the URL must not be
// fetched: unsupported scheme, malformed host, or a denylisted platform.
func (d *Denylist) Reject(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "invalid url"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "url must start with http:// or https://"
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || !strings.Contains(host, ".") {
		return "invalid url format (missing domain)"
	}
	for _, suffix := range d.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return "social media and platform urls are not supported"
		}
	}
	return ""
}
