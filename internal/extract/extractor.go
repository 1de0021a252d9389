// Package extract pulls business contact fields out of fetched documents.
// Extraction is deterministic: the same document always yields the same
// fields, and every required data source is inspected on every call.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/Kismat-adhikari/website-scrapper/internal/scrape"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\s\-().]{7,14}[0-9]`)
)

// junkEmailSuffixes are matches that look like addresses but are asset
// references or tracking artifacts.
var junkEmailSuffixes = []string{
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp",
	".css", ".js", ".woff", ".woff2",
}

var junkEmailDomains = []string{
	"sentry.io", "wixpress.com", "example.com", "domain.com",
	"email.com", "yourdomain.com", "company.com",
}

// socialPlatforms maps link host suffixes to a canonical platform name.
var socialPlatforms = map[string]string{
	"facebook.com":  "facebook",
	"instagram.com": "instagram",
	"twitter.com":   "twitter",
	"x.com":         "twitter",
	"linkedin.com":  "linkedin",
	"youtube.com":   "youtube",
	"tiktok.com":    "tiktok",
	"pinterest.com": "pinterest",
}

// messagingPlatforms maps link host suffixes to a messaging channel name.
var messagingPlatforms = map[string]string{
	"wa.me":            "whatsapp",
	"api.whatsapp.com": "whatsapp",
	"t.me":             "telegram",
	"telegram.me":      "telegram",
	"m.me":             "messenger",
	"signal.me":        "signal",
	"discord.gg":       "discord",
	"discord.com":      "discord",
	"skype.com":        "skype",
	"viber.com":        "viber",
}

// industryKeywords scores visible text against coarse industry buckets. The
// bucket with the highest hit count wins; ties go to the lexicographically
// first name so the guess stays deterministic.
var industryKeywords = map[string][]string{
	"automotive":   {"car", "vehicle", "auto repair", "dealership", "tires"},
	"beauty":       {"salon", "spa", "beauty", "barber", "skincare"},
	"construction": {"construction", "contractor", "renovation", "roofing", "plumbing"},
	"finance":      {"accounting", "tax", "insurance", "loans", "investment"},
	"food":         {"restaurant", "menu", "catering", "bakery", "cafe"},
	"healthcare":   {"clinic", "dental", "medical", "doctor", "patients"},
	"legal":        {"law firm", "attorney", "lawyer", "legal services"},
	"real estate":  {"real estate", "property", "listings", "realtor", "homes for sale"},
	"retail":       {"shop", "store", "products", "sale", "cart"},
	"technology":   {"software", "saas", "platform", "api", "cloud"},
}

// Extractor implements scrape.Extractor over static or rendered HTML.
type Extractor struct {
	logger *zap.Logger
}

// New builds the document extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract inspects every data source of the page and returns the merged
// field bag plus per-source findings.
func (e *Extractor) Extract(page scrape.Page) (scrape.Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return scrape.Extraction{}, fmt.Errorf("parse document: %w", err)
	}

	bag := scrape.FieldBag{
		MessagingLinks: map[string]string{},
		Metadata:       map[string]string{},
	}
	var sources []scrape.SourceFinding
	record := func(name string, emails []string) {
		bag.Emails = appendUnique(bag.Emails, emails)
		sources = append(sources, scrape.SourceFinding{Name: name, EmailsFound: len(emails)})
	}

	visible := visibleText(doc)
	record("visible_text", findEmails(visible))
	record("dom_text", findEmails(doc.Text()))
	record("inline_javascript", e.inlineScriptEmails(doc))
	record("meta_tags", e.metaTags(doc, &bag))
	record("schema_org_jsonld", e.jsonLDEmails(doc))
	record("mailto_links", e.mailtoEmails(doc))
	record("contact_forms", e.contactForms(doc, &bag))
	record("social_links", e.socialLinks(doc, &bag))

	bag.Phones = findPhones(visible)
	bag.Addresses = e.addresses(doc)
	bag.WordCount = len(strings.Fields(visible))
	bag.IndustryGuess = guessIndustry(strings.ToLower(visible))
	e.detectSiteTraits(doc, &bag)

	sort.Strings(bag.Emails)
	return scrape.Extraction{Fields: bag, Sources: sources}, nil
}

func (e *Extractor) inlineScriptEmails(doc *goquery.Document) []string {
	var emails []string
	doc.Find("script:not([src])").Each(func(_ int, s *goquery.Selection) {
		emails = appendUnique(emails, findEmails(s.Text()))
	})
	return emails
}

func (e *Extractor) metaTags(doc *goquery.Document, bag *scrape.FieldBag) []string {
	var emails []string
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok || content == "" {
			return
		}
		name, _ := s.Attr("name")
		if name == "" {
			name, _ = s.Attr("property")
		}
		switch name {
		case "description", "keywords", "author",
			"og:title", "og:description", "og:site_name", "og:type":
			bag.Metadata[name] = strings.TrimSpace(content)
		}
		emails = appendUnique(emails, findEmails(content))
	})
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		bag.Metadata["title"] = title
	}
	return emails
}

func (e *Extractor) jsonLDEmails(doc *goquery.Document) []string {
	var emails []string
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		emails = appendUnique(emails, findEmails(s.Text()))
	})
	return emails
}

func (e *Extractor) mailtoEmails(doc *goquery.Document) []string {
	var emails []string
	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.IndexAny(addr, "?&"); i >= 0 {
			addr = addr[:i]
		}
		if decoded, err := url.QueryUnescape(addr); err == nil {
			addr = decoded
		}
		emails = appendUnique(emails, findEmails(addr))
	})
	return emails
}

// contactForms marks the presence of a contact form and scans form markup
// for addresses embedded in actions or hidden fields.
func (e *Extractor) contactForms(doc *goquery.Document, bag *scrape.FieldBag) []string {
	var emails []string
	doc.Find("form").Each(func(_ int, s *goquery.Selection) {
		action, _ := s.Attr("action")
		hasEmailInput := s.Find(`input[type="email"], input[name*="email"]`).Length() > 0
		hasMessageBox := s.Find("textarea").Length() > 0
		if hasEmailInput || hasMessageBox || strings.Contains(strings.ToLower(action), "contact") {
			bag.HasContactForm = true
		}
		emails = appendUnique(emails, findEmails(action))
		html, err := goquery.OuterHtml(s)
		if err == nil {
			emails = appendUnique(emails, findEmails(html))
		}
	})
	return emails
}

func (e *Extractor) socialLinks(doc *goquery.Document, bag *scrape.FieldBag) []string {
	seen := map[string]struct{}{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, err := url.Parse(strings.TrimSpace(href))
		if err != nil || u.Host == "" {
			return
		}
		host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
		if platform := matchPlatform(host, socialPlatforms); platform != "" {
			if _, ok := seen[href]; !ok {
				seen[href] = struct{}{}
				bag.SocialLinks = append(bag.SocialLinks, href)
			}
		}
		if channel := matchPlatform(host, messagingPlatforms); channel != "" {
			if _, ok := bag.MessagingLinks[channel]; !ok {
				bag.MessagingLinks[channel] = href
			}
		}
	})
	sort.Strings(bag.SocialLinks)
	// Social profiles carry no addresses; the source is still inspected.
	return nil
}

func (e *Extractor) addresses(doc *goquery.Document) []string {
	var out []string
	doc.Find(`address, [itemprop="address"], [itemtype*="PostalAddress"]`).Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if len(text) >= 10 {
			out = appendUnique(out, []string{text})
		}
	})
	return out
}

func (e *Extractor) detectSiteTraits(doc *goquery.Document, bag *scrape.FieldBag) {
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		lower := strings.ToLower(href)
		if strings.Contains(lower, "/blog") || strings.Contains(lower, "/news") {
			bag.HasBlog = true
		}
		if strings.Contains(lower, "/product") || strings.Contains(lower, "/service") ||
			strings.Contains(lower, "/shop") || strings.Contains(lower, "/pricing") {
			bag.HasProductsOrServices = true
		}
		return !(bag.HasBlog && bag.HasProductsOrServices)
	})
}

func visibleText(doc *goquery.Document) string {
	clone := doc.Clone()
	clone.Find("script, style, noscript, template").Remove()
	return strings.TrimSpace(clone.Text())
}

func findEmails(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	seen := map[string]struct{}{}
	for _, match := range emailPattern.FindAllString(text, -1) {
		email := strings.ToLower(strings.Trim(match, "."))
		if junkEmail(email) {
			continue
		}
		if _, ok := seen[email]; !ok {
			seen[email] = struct{}{}
			out = append(out, email)
		}
	}
	return out
}

func junkEmail(email string) bool {
	for _, suffix := range junkEmailSuffixes {
		if strings.HasSuffix(email, suffix) {
			return true
		}
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return true
	}
	domain := email[at+1:]
	for _, junk := range junkEmailDomains {
		if domain == junk || strings.HasSuffix(domain, "."+junk) {
			return true
		}
	}
	return false
}

func findPhones(text string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, match := range phonePattern.FindAllString(text, -1) {
		digits := 0
		for _, r := range match {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits < 8 || digits > 15 {
			continue
		}
		phone := strings.Join(strings.Fields(match), " ")
		if _, ok := seen[phone]; !ok {
			seen[phone] = struct{}{}
			out = append(out, phone)
		}
	}
	return out
}

func guessIndustry(lowerText string) string {
	best := ""
	bestScore := 0
	names := make([]string, 0, len(industryKeywords))
	for name := range industryKeywords {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		score := 0
		for _, keyword := range industryKeywords[name] {
			score += strings.Count(lowerText, keyword)
		}
		if score > bestScore {
			best = name
			bestScore = score
		}
	}
	return best
}

func matchPlatform(host string, platforms map[string]string) string {
	for suffix, name := range platforms {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return name
		}
	}
	return ""
}

func appendUnique(dst, src []string) []string {
	if len(src) == 0 {
		return dst
	}
	seen := make(map[string]struct{}, len(dst)+len(src))
	for _, v := range dst {
		seen[v] = struct{}{}
	}
	for _, v := range src {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			dst = append(dst, v)
		}
	}
	return dst
}
