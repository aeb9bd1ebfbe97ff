// Package urlnorm canonicalizes and validates URLs for the crawl pipeline.
// The normalized form is the dedup and storage key: lowercase, https scheme,
// no trailing slash, no fragment, tracking parameters removed.
package urlnorm

import (
	"net/url"
	"regexp"
	"strings"
)

// DomainClass labels where a URL's host sits relative to the crawl scope.
type DomainClass string

// Domain classes returned by ClassifyDomain.
const (
	DomainPrimary     DomainClass = "primary"
	DomainAllowlisted DomainClass = "allowlisted"
	DomainExternal    DomainClass = "external"
)

// Rules is the immutable data driving normalization and validation.
// Precedence is explicit: block patterns are evaluated in slice order.
type Rules struct {
	// RootDomain is the bounded crawl domain, e.g. "dickinson.edu".
	// Any host equal to it or ending in "." + RootDomain is accepted.
	RootDomain string
	// AllowedHosts are external hosts admitted alongside the root domain.
	// Each entry exists for a declared purpose (see DefaultRules).
	AllowedHosts []string
	// TrackingParams are query keys stripped during normalization.
	TrackingParams []string
	// TrackingPrefixes strip any query key carrying one of these prefixes.
	TrackingPrefixes []string
	// BlockPatterns reject a normalized URL on first match.
	BlockPatterns []*regexp.Regexp
}

// DefaultRules returns the production rule set for the campus site.
func DefaultRules() Rules {
	return Rules{
		RootDomain: "dickinson.edu",
		AllowedHosts: []string{
			"dickinson.campuslabs.com", // club directory, updated weekly
			"dickinson.nutrislice.com", // dining menus, updated daily
		},
		TrackingParams:   []string{"gclid", "fbclid", "msclkid", "ref", "referrer"},
		TrackingPrefixes: []string{"utm_"},
		BlockPatterns:    compilePatterns(defaultBlockPatterns),
	}
}

// defaultBlockPatterns reject system pages, dynamic search endpoints, and
// file downloads. All are matched case-insensitively against the normalized
// URL, in order.
var defaultBlockPatterns = []string{
	`/login`,
	`/signin`,
	`/404`,
	`/error`,
	`/site/scripts/google_results\.php`,
	`/search\?`,
	`\?query=`,
	`\.pdf$`,
	`\.docx?$`,
	`\.xlsx?$`,
	`\.pptx?$`,
	`\.zip$`,
	`\.rar$`,
	`\.jpe?g$`,
	`\.png$`,
	`\.gif$`,
	`\.svg$`,
	`\.mp4$`,
	`\.mp3$`,
	`\.mov$`,
	`\.avi$`,
	`/gateway`,
}

func compilePatterns(raw []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// Normalizer canonicalizes URLs against an injected rule set.
type Normalizer struct {
	rules Rules
}

// New builds a Normalizer. The rules are treated as immutable.
func New(rules Rules) *Normalizer {
	return &Normalizer{rules: rules}
}

// Normalize canonicalizes rawURL and validates the result. The second return
// is false when the URL is malformed, off-domain, or blocklisted; callers
// treat rejection as "skip silently", never as an error.
func (n *Normalizer) Normalize(rawURL string) (string, bool) {
	raw := strings.ToLower(strings.TrimSpace(rawURL))
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}

	u.Scheme = "https"
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	if u.Path == "" {
		u.Path = "/"
	}
	u.RawQuery = n.filterQuery(u.RawQuery)

	normalized := u.String()
	if !n.valid(normalized, u.Host) {
		return "", false
	}
	return normalized, true
}

// filterQuery drops tracking parameters while preserving the relative order
// of the remaining pairs. Pairs are kept verbatim so that re-normalizing an
// already normalized URL is a no-op.
func (n *Normalizer) filterQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	pairs := strings.Split(rawQuery, "&")
	kept := pairs[:0]
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		key := pair
		if idx := strings.IndexByte(pair, '='); idx >= 0 {
			key = pair[:idx]
		}
		if n.isTrackingParam(key) {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}

func (n *Normalizer) isTrackingParam(key string) bool {
	for _, prefix := range n.rules.TrackingPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	for _, param := range n.rules.TrackingParams {
		if key == param {
			return true
		}
	}
	return false
}

func (n *Normalizer) valid(normalized, host string) bool {
	host = strings.TrimPrefix(host, "www.")
	if n.hostClass(host) == DomainExternal {
		return false
	}
	for _, pattern := range n.rules.BlockPatterns {
		if pattern.MatchString(normalized) {
			return false
		}
	}
	return true
}

// ClassifyDomain reports whether a URL belongs to the primary domain, an
// allow-listed external host, or neither. Exposed for diagnostics; malformed
// input classifies as external.
func (n *Normalizer) ClassifyDomain(rawURL string) DomainClass {
	u, err := url.Parse(strings.ToLower(strings.TrimSpace(rawURL)))
	if err != nil || u.Host == "" {
		return DomainExternal
	}
	return n.hostClass(strings.TrimPrefix(u.Host, "www."))
}

func (n *Normalizer) hostClass(host string) DomainClass {
	for _, allowed := range n.rules.AllowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return DomainAllowlisted
		}
	}
	if host == n.rules.RootDomain || strings.HasSuffix(host, "."+n.rules.RootDomain) {
		return DomainPrimary
	}
	return DomainExternal
}
