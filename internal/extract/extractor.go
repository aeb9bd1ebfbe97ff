// Package extract turns fetched HTML into structured page payloads: main
// content, title, section metadata, category, priority, and content hash.
package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/markusmobius/go-trafilatura"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/aaronshin43/rush-crawler/internal/crawler"
)

const (
	// minExtractedSize and minOutputSize configure the main-content
	// extractor, matching the pipeline's quality thresholds.
	minExtractedSize = 500
	minOutputSize    = 300
	// fallbackThreshold switches to DOM-based extraction when the
	// main-content extractor yields less than this many characters.
	fallbackThreshold = 100

	untitledPlaceholder = "Untitled"
)

// Extractor produces crawler.Page payloads from raw HTML.
type Extractor struct {
	classifier *Classifier
	hasher     crawler.Hasher
	clock      crawler.Clock
	logger     *zap.Logger
}

// NewExtractor builds an Extractor.
func NewExtractor(classifier *Classifier, hasher crawler.Hasher, clock crawler.Clock, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		classifier: classifier,
		hasher:     hasher,
		clock:      clock,
		logger:     logger,
	}
}

// Extract parses rawHTML fetched from pageURL into a Page. A parse failure
// is an extraction failure for this URL only; callers skip and continue.
func (e *Extractor) Extract(rawHTML, pageURL string) (crawler.Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return crawler.Page{}, fmt.Errorf("parse html for %s: %w", pageURL, err)
	}

	content := e.mainContent(rawHTML, pageURL)
	if len(content) < fallbackThreshold {
		e.logger.Debug("main-content extraction thin, using DOM fallback",
			zap.String("url", pageURL))
		content = e.domFallback(doc)
	}

	page := crawler.Page{
		URL:         pageURL,
		Title:       extractTitle(doc),
		Content:     content,
		ContentHash: e.hasher.Hash(content),
		Sections:    extractSections(doc),
		Category:    e.classifier.Category(pageURL),
		WordCount:   len(strings.Fields(content)),
		FetchedAt:   e.clock.Now(),
	}
	page.Priority = e.classifier.Priority(pageURL, page.Category)
	return page, nil
}

// mainContent runs the readability-style extractor. Returns "" on failure so
// the caller falls through to the DOM heuristic.
func (e *Extractor) mainContent(rawHTML, pageURL string) string {
	opts := trafilatura.Options{
		ExcludeComments: true,
		Config: &trafilatura.Config{
			MinExtractedSize: minExtractedSize,
			MinOutputSize:    minOutputSize,
		},
	}
	if u, err := url.Parse(pageURL); err == nil {
		opts.OriginalURL = u
	}

	result, err := trafilatura.Extract(strings.NewReader(rawHTML), opts)
	if err != nil || result == nil {
		return ""
	}
	return strings.TrimSpace(result.ContentText)
}

// domFallback searches for a content container, strips chrome elements, and
// returns its visible text. Without a container the whole body is used.
func (e *Extractor) domFallback(doc *goquery.Document) string {
	container := doc.Find("main").First()
	if container.Length() == 0 {
		container = doc.Find("article").First()
	}
	if container.Length() == 0 {
		container = doc.Find("div.content").First()
	}
	if container.Length() == 0 {
		container = doc.Find("body").First()
	}
	if container.Length() == 0 {
		return ""
	}
	container.Find("nav, aside, footer, script, style").Remove()
	return visibleText(container)
}

// visibleText walks the selection's nodes collecting text node data joined
// by newlines, mirroring how block elements separate on screen.
func visibleText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				b.WriteString(text)
				b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, node := range sel.Nodes {
		walk(node)
	}
	return strings.TrimSpace(b.String())
}

// extractTitle prefers the document title's first "|" segment, then the
// first h1, then a fixed placeholder.
func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return strings.TrimSpace(strings.SplitN(title, "|", 2)[0])
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return untitledPlaceholder
}

// extractSections collects h1-h3 headings with non-empty text in document
// order. Body text is not duplicated; the headings are chunking metadata.
func extractSections(doc *goquery.Document) []crawler.Section {
	var sections []crawler.Section
	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Text())
		if title == "" {
			return
		}
		sections = append(sections, crawler.Section{
			Level: goquery.NodeName(s),
			Title: title,
		})
	})
	return sections
}
