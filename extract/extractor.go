package extract

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/exsmiley/langread/llm"
	"github.com/exsmiley/langread/retry"
	"github.com/exsmiley/langread/types"
)

const (
	fetchTimeout   = 15 * time.Second
	maxBodyBytes   = 4 << 20
	minParagraph   = 20
	placeholderMsg = "Content could not be extracted from this source."
)

// Browser-looking UA; several news sites reject default Go clients.
const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// containerSelectors locate the main article body, tried in order before
// falling back to readability extraction on the whole page.
var containerSelectors = []string{"main", "article", ".article", ".content", ".post", "#content", ".story"}

// Extractor downloads a page and turns it into a structured article.
type Extractor struct {
	client    *http.Client
	completer llm.Completer
	policy    retry.Policy
}

// NewExtractor builds an Extractor. completer may be nil; topic labeling then
// uses page metadata only.
func NewExtractor(completer llm.Completer) *Extractor {
	return &Extractor{
		client:    &http.Client{Timeout: fetchTimeout},
		completer: completer,
		policy:    retry.Default(),
	}
}

// Extract fetches rawURL and produces a structured article. Extraction never
// fails on parse quality: when both the structural and readability passes
// produce nothing, the article carries a single placeholder section. Only
// fetch failures return an error.
func (e *Extractor) Extract(ctx context.Context, rawURL, language string) (*types.ExtractedArticle, error) {
	body, err := e.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}

	title := pageTitle(doc)
	sections := structuralSections(doc, rawURL)
	if len(sections) == 0 {
		sections = readabilitySections(body, rawURL)
	}
	if len(sections) == 0 {
		log.Printf("No content extracted from %s, storing placeholder", rawURL)
		sections = []types.ContentSection{{Type: types.SectionText, Content: placeholderMsg, Order: 0}}
	}

	detected := detectLanguage(doc, rawURL)
	if detected == "" {
		detected = language
	}

	text := types.FlattenSections(sections)
	topics := e.topics(ctx, doc, title, text, detected)

	article := types.NewExtractedArticle(title, rawURL, "", detected, publishedTime(doc), sections, topics, text)
	return article, nil
}

// fetch downloads the page body, retrying transient network failures. A
// non-2xx status is permanent and not retried.
func (e *Extractor) fetch(ctx context.Context, rawURL string) (string, error) {
	var body string
	err := e.policy.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := e.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return err
		}
		body = string(data)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	return body, nil
}

// pageTitle prefers og:title over <title> over the first h1.
func pageTitle(doc *goquery.Document) string {
	if v, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// structuralSections walks the main content container in document order,
// keeping headings, substantial paragraphs and images. Navigation and
// scripting elements are dropped before the walk.
func structuralSections(doc *goquery.Document, rawURL string) []types.ContentSection {
	var container *goquery.Selection
	for _, sel := range containerSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			container = found
			break
		}
	}
	if container == nil {
		return nil
	}
	container.Find("nav, footer, aside, script, style").Remove()

	base, _ := url.Parse(rawURL)

	var sections []types.ContentSection
	order := 0
	container.Find("h1, h2, h3, h4, h5, h6, p, img").Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "p":
			text := strings.TrimSpace(s.Text())
			if len([]rune(text)) < minParagraph {
				return
			}
			sections = append(sections, types.ContentSection{Type: types.SectionText, Content: text, Order: order})
		case "img":
			src, ok := s.Attr("src")
			if !ok || src == "" || strings.HasPrefix(src, "data:") {
				return
			}
			sections = append(sections, types.ContentSection{
				Type:    types.SectionImage,
				Content: resolveURL(base, src),
				Caption: imageCaption(s),
				Order:   order,
			})
		default:
			text := strings.TrimSpace(s.Text())
			if text == "" {
				return
			}
			sections = append(sections, types.ContentSection{Type: types.SectionHeading, Content: text, Order: order})
		}
		order++
	})
	return sections
}

// resolveURL makes relative image references absolute against the page URL.
func resolveURL(base *url.URL, src string) string {
	if base == nil {
		return src
	}
	ref, err := url.Parse(src)
	if err != nil {
		return src
	}
	return base.ResolveReference(ref).String()
}

// imageCaption prefers the alt text, then an enclosing figure's figcaption.
func imageCaption(img *goquery.Selection) string {
	if alt, _ := img.Attr("alt"); strings.TrimSpace(alt) != "" {
		return strings.TrimSpace(alt)
	}
	return strings.TrimSpace(img.Closest("figure").Find("figcaption").First().Text())
}

// readabilitySections runs the whole page through readability extraction and
// splits the plain text on blank lines.
func readabilitySections(body, rawURL string) []types.ContentSection {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	article, err := readability.FromReader(strings.NewReader(body), pageURL)
	if err != nil {
		log.Printf("Readability extraction failed for %s: %v", rawURL, err)
		return nil
	}

	var sections []types.ContentSection
	order := 0
	for _, block := range strings.Split(article.TextContent, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		sections = append(sections, types.ContentSection{Type: types.SectionText, Content: block, Order: order})
		order++
	}
	return sections
}

// publishedTime reads the article:published_time meta tag when present.
func publishedTime(doc *goquery.Document) *time.Time {
	raw, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content")
	if !ok {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
			return &t
		}
	}
	return nil
}
