package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/aaronshin43/rush-crawler/internal/crawler"
)

// PathCategory maps URL path substrings to a category label.
type PathCategory struct {
	Label      string
	Substrings []string
}

// SubdomainCategory maps a host prefix to a category label.
type SubdomainCategory struct {
	Label  string
	Prefix string
}

// KeywordCategory maps a set of keyword fragments to a category label.
type KeywordCategory struct {
	Label    string
	Keywords []string
}

// ClassifierRules holds the immutable, ordered tables driving category and
// priority classification. Precedence is slice order, first match wins.
type ClassifierRules struct {
	RootDomain string
	// DailyExternalHosts are allow-listed external hosts whose content
	// changes daily (rule 1 of the priority ladder).
	DailyExternalHosts []string
	// ArchiveSubdomains mark archival subdomains as static content.
	ArchiveSubdomains []string
	// PathCategories is the tier-1 category table.
	PathCategories []PathCategory
	// SubdomainCategories is checked first in tier 2.
	SubdomainCategories []SubdomainCategory
	// NoiseWords are stripped from tier-2 keywords on word boundaries.
	NoiseWords []string
	// KeywordCategories is the ordered tier-2 keyword table.
	KeywordCategories []KeywordCategory
	// FallbackCategory is used when nothing else matches.
	FallbackCategory string
}

// DefaultClassifierRules returns the production tables for the campus site.
func DefaultClassifierRules() ClassifierRules {
	return ClassifierRules{
		RootDomain:         "dickinson.edu",
		DailyExternalHosts: []string{"nutrislice.com"},
		ArchiveSubdomains:  []string{"archives"},
		PathCategories: []PathCategory{
			{Label: "academics", Substrings: []string{"/academics"}},
			{Label: "admissions", Substrings: []string{"/admissions"}},
			{Label: "campus_life", Substrings: []string{"/campus-life", "/student-life"}},
			{Label: "about", Substrings: []string{"/about"}},
			{Label: "news", Substrings: []string{"/news"}},
			{Label: "events", Substrings: []string{"/events"}},
			{Label: "athletics", Substrings: []string{"/athletics", "/sports"}},
		},
		SubdomainCategories: []SubdomainCategory{
			{Label: "admissions", Prefix: "admissions"},
			{Label: "athletics", Prefix: "athletics"},
			{Label: "general_careers", Prefix: "jobs"},
			{Label: "general_campus_store", Prefix: "store"},
		},
		NoiseWords: []string{
			"office", "offices", "department", "departments", "program",
			"programs", "center", "centers", "college", "overview", "home",
			"homepage", "welcome", "main", "page", "index", "information",
			"services", "resources",
		},
		KeywordCategories: []KeywordCategory{
			{Label: "events", Keywords: []string{"event", "calendar"}},
			{Label: "news", Keywords: []string{"news", "announcement", "headline"}},
			{Label: "academics", Keywords: []string{
				"academic", "major", "minor", "course", "curriculum",
				"faculty", "registrar", "library", "research",
			}},
			{Label: "admissions", Keywords: []string{"admission", "apply", "enroll", "visit"}},
			{Label: "campus_life", Keywords: []string{
				"campus", "student", "housing", "residence", "dining",
				"club", "wellness", "recreation",
			}},
			{Label: "general_financial", Keywords: []string{
				"financial", "scholarship", "tuition", "bursar", "billing",
			}},
			{Label: "general_alumni_careers", Keywords: []string{"alumni", "career", "internship"}},
			{Label: "general_facilities", Keywords: []string{
				"facilities", "building", "map", "parking", "transportation",
			}},
			{Label: "general_giving", Keywords: []string{"giving", "donate", "gift", "advancement"}},
			{Label: "general_community", Keywords: []string{
				"community", "diversity", "inclusion", "engagement",
			}},
			{Label: "general_parents", Keywords: []string{"parent", "family"}},
			{Label: "general_arts", Keywords: []string{
				"arts", "art", "music", "theatre", "theater", "gallery", "museum",
			}},
			{Label: "general_administrative", Keywords: []string{
				"president", "trustees", "policy", "policies", "compliance", "governance",
			}},
			{Label: "general_campus_store", Keywords: []string{"store", "bookstore", "shop"}},
		},
		FallbackCategory: "general",
	}
}

var (
	yearSegment  = regexp.MustCompile(`/(\d{4})/`)
	digitsOnly   = regexp.MustCompile(`^\d+$`)
	sepCollapser = regexp.MustCompile(`[_\-\s]+`)
)

// Classifier derives category and update priority from URL shape alone.
// Classification is deterministic and recomputed on every fetch.
type Classifier struct {
	rules      ClassifierRules
	clock      crawler.Clock
	noiseWords *regexp.Regexp
}

// NewClassifier builds a Classifier over the given tables. The clock bounds
// the historical-year priority rule.
func NewClassifier(rules ClassifierRules, clock crawler.Clock) *Classifier {
	escaped := make([]string, 0, len(rules.NoiseWords))
	for _, w := range rules.NoiseWords {
		escaped = append(escaped, regexp.QuoteMeta(w))
	}
	var noise *regexp.Regexp
	if len(escaped) > 0 {
		noise = regexp.MustCompile(`\b(` + strings.Join(escaped, "|") + `)\b`)
	}
	return &Classifier{rules: rules, clock: clock, noiseWords: noise}
}

// Category assigns a flat category tag from the URL. Tier 1 matches path
// substrings in table order; tier 2 falls back to subdomain signals and
// keyword analysis of the path.
func (c *Classifier) Category(rawURL string) string {
	u, err := url.Parse(strings.ToLower(rawURL))
	if err != nil || u.Host == "" {
		return c.rules.FallbackCategory
	}

	for _, pc := range c.rules.PathCategories {
		for _, sub := range pc.Substrings {
			if strings.Contains(u.Path, sub) {
				return pc.Label
			}
		}
	}

	host := strings.TrimPrefix(u.Host, "www.")
	if label, ok := c.subdomainCategory(host); ok {
		return label
	}

	keyword := c.pathKeyword(u.Path)
	keyword = c.stripNoise(keyword)
	if keyword == "" {
		return c.rules.FallbackCategory
	}
	for _, kc := range c.rules.KeywordCategories {
		for _, kw := range kc.Keywords {
			if strings.Contains(keyword, kw) {
				return kc.Label
			}
		}
	}
	return c.rules.FallbackCategory
}

func (c *Classifier) subdomainCategory(host string) (string, bool) {
	if host == c.rules.RootDomain || !strings.HasSuffix(host, "."+c.rules.RootDomain) {
		return "", false
	}
	sub := strings.TrimSuffix(host, "."+c.rules.RootDomain)
	for _, sc := range c.rules.SubdomainCategories {
		if sub == sc.Prefix || strings.HasPrefix(sub, sc.Prefix+".") {
			return sc.Label, true
		}
	}
	return "", false
}

// pathKeyword extracts the classification keyword from the path: the third
// segment of the ID-bearing shapes /homepage/{id}/{keyword} and
// /info/{id}/{keyword}, else the first segment.
func (c *Classifier) pathKeyword(path string) string {
	segments := splitSegments(path)
	if len(segments) >= 3 &&
		(segments[0] == "homepage" || segments[0] == "info") &&
		digitsOnly.MatchString(segments[1]) {
		return segments[2]
	}
	if len(segments) > 0 {
		return segments[0]
	}
	return ""
}

func (c *Classifier) stripNoise(keyword string) string {
	if keyword == "" {
		return ""
	}
	// Separators become spaces so noise words match on word boundaries.
	cleaned := sepCollapser.ReplaceAllString(keyword, " ")
	if c.noiseWords != nil {
		cleaned = c.noiseWords.ReplaceAllString(cleaned, " ")
	}
	cleaned = sepCollapser.ReplaceAllString(strings.TrimSpace(cleaned), "_")
	return cleaned
}

// Priority assigns the update cadence from URL shape. The rules form an
// ordered ladder: domain and subdomain placement first, then important
// root-domain index pages, then individual-article demotions, with low as
// the default. The category argument is part of the classification contract
// but the current ladder is URL-driven only.
func (c *Classifier) Priority(rawURL string, category string) crawler.Priority {
	_ = category

	lower := strings.ToLower(rawURL)
	u, err := url.Parse(lower)
	if err != nil || u.Host == "" {
		return crawler.PriorityLow
	}

	host := strings.TrimPrefix(u.Host, "www.")
	segments := splitSegments(u.Path)
	depth := len(segments)

	// Rule 1: external hosts.
	if host != c.rules.RootDomain && !strings.HasSuffix(host, "."+c.rules.RootDomain) {
		for _, daily := range c.rules.DailyExternalHosts {
			if strings.HasSuffix(host, daily) {
				return crawler.PriorityHigh
			}
		}
		return crawler.PriorityLow
	}

	// Rule 2: non-root subdomains.
	if host != c.rules.RootDomain {
		sub := strings.TrimSuffix(host, "."+c.rules.RootDomain)
		for _, archive := range c.rules.ArchiveSubdomains {
			if strings.Contains(sub, archive) {
				return crawler.PriorityStatic
			}
		}
		return crawler.PriorityLow
	}

	// Rule 3: shallow news/announcement/event pages.
	if depth <= 1 && containsAny(segments, "news", "announcements", "events") {
		return crawler.PriorityHigh
	}

	// Rule 4: news/events main and category listing pages.
	if depth >= 1 && isOneOf(segments[0], "news", "events", "announcements") {
		if depth == 1 {
			return crawler.PriorityHigh
		}
		if depth == 2 && !isOneOf(segments[1], "article", "event", "story", "archive") {
			return crawler.PriorityHigh
		}
	}

	// Rule 5: admissions action pages.
	if depth >= 2 && segments[0] == "admissions" &&
		isOneOf(segments[1], "apply", "deadlines", "visit") {
		return crawler.PriorityHigh
	}

	// Rule 6: individual articles and events.
	if depth >= 3 && isOneOf(segments[0], "news", "events") &&
		isOneOf(segments[1], "article", "event", "story") {
		return crawler.PriorityStatic
	}

	// Rule 7: archival segments.
	if containsAny(segments, "stories", "archive", "newsletter") {
		return crawler.PriorityStatic
	}

	// Rule 8: faculty profiles and photo galleries.
	if strings.Contains(lower, "/dc_faculty_profile") || strings.Contains(lower, "/campusphotogallery") {
		return crawler.PriorityStatic
	}

	// Rule 9: past-year content, excluding the ID-bearing path shapes.
	if !c.isIDPath(segments) {
		if m := yearSegment.FindStringSubmatch("/" + strings.Trim(u.Path, "/") + "/"); m != nil {
			year := atoiSafe(m[1])
			if year >= 1900 && year < c.clock.Now().Year() {
				return crawler.PriorityStatic
			}
		}
	}

	return crawler.PriorityLow
}

func (c *Classifier) isIDPath(segments []string) bool {
	return len(segments) >= 2 &&
		(segments[0] == "info" || segments[0] == "homepage") &&
		digitsOnly.MatchString(segments[1])
}

func splitSegments(path string) []string {
	var out []string
	for _, s := range strings.Split(strings.Trim(path, "/"), "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isOneOf(s string, options ...string) bool {
	for _, o := range options {
		if s == o {
			return true
		}
	}
	return false
}

func containsAny(segments []string, targets ...string) bool {
	for _, s := range segments {
		if isOneOf(s, targets...) {
			return true
		}
	}
	return false
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
