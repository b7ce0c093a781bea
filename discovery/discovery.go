package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/exsmiley/langread/config"
	"github.com/exsmiley/langread/llm"
	"github.com/exsmiley/langread/types"
)

const (
	// MaxResults caps the ranked list returned by one discovery call.
	MaxResults = 10
	// DefaultMinRelevance filters keyword-scored feed entries.
	DefaultMinRelevance = 0.25

	maxEntriesPerFeed = 20
	minBeforeSearch   = 5
	searchRelevance   = 0.75
	snippetLength     = 200
)

// techTerms triggers the secondary keyed search for technology queries,
// where general news feeds are usually thin.
var techTerms = []string{"기술", "테크", "tech", "technology", "트렌드", "trends", "it", "ai", "인공지능"}

// FeedParser parses one syndication feed. *gofeed.Parser satisfies it.
type FeedParser interface {
	ParseURLWithContext(feedURL string, ctx context.Context) (*gofeed.Feed, error)
}

// Searcher is the optional secondary keyed search service.
type Searcher interface {
	Search(ctx context.Context, query, language string) ([]types.SourceResult, error)
}

// Options tune one discovery call.
type Options struct {
	// MinRelevance drops keyword-scored entries at or below the
	// threshold. Zero means DefaultMinRelevance.
	MinRelevance float64
	// FetchAll disables relevance filtering of feed entries.
	FetchAll bool
}

// Scanner turns a (query, language) pair into a ranked list of candidate
// source references.
type Scanner struct {
	parser    FeedParser
	completer llm.Completer
	secondary Searcher
	feedsFor  func(language string) []string
}

// NewScanner builds a Scanner. completer and secondary may be nil; the
// scanner then relies on keyword scoring and feed results alone.
func NewScanner(completer llm.Completer, secondary Searcher) *Scanner {
	return &Scanner{
		parser:    gofeed.NewParser(),
		completer: completer,
		secondary: secondary,
		feedsFor:  config.FeedsFor,
	}
}

// Search returns up to MaxResults candidate sources for the query,
// deduplicated by URL and sorted by descending relevance. The result is
// never empty for a supported language: when feeds and the secondary search
// produce nothing, the configured default sources are returned.
func (s *Scanner) Search(ctx context.Context, query, language string, opts Options) []types.SourceResult {
	minRelevance := opts.MinRelevance
	if minRelevance == 0 {
		minRelevance = DefaultMinRelevance
	}

	results := s.scanFeeds(ctx, query, language, minRelevance, opts.FetchAll)

	if (len(results) < minBeforeSearch || isTechQuery(query)) && s.secondary != nil {
		found, err := s.secondary.Search(ctx, query, language)
		if err != nil {
			log.Printf("Secondary search failed for %q: %v", query, err)
		} else {
			for i := range found {
				found[i].Relevance = searchRelevance
			}
			results = append(results, found...)
		}
	}

	if len(results) == 0 {
		for _, site := range config.DefaultSourcesFor(language) {
			results = append(results, types.SourceResult{
				Title:   fmt.Sprintf("%s: %s", site.Name, query),
				URL:     site.URL,
				Snippet: fmt.Sprintf("Find articles about %s on %s", query, site.Name),
			})
		}
	}

	unique := dedupeByURL(results)

	if s.completer != nil && query != "" && len(unique) > 1 {
		s.rescoreWithLLM(ctx, query, language, unique)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Relevance > unique[j].Relevance
	})
	if len(unique) > MaxResults {
		unique = unique[:MaxResults]
	}
	return unique
}

// scanFeeds parses every configured feed for the language and keyword-scores
// its entries against the query. Per-feed parse errors are logged and
// skipped, never aborting the call.
func (s *Scanner) scanFeeds(ctx context.Context, query, language string, minRelevance float64, fetchAll bool) []types.SourceResult {
	terms := queryTerms(query)
	var results []types.SourceResult

	for _, feedURL := range s.feedsFor(language) {
		feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			log.Printf("Error parsing feed %s: %v", feedURL, err)
			continue
		}

		items := feed.Items
		if len(items) > maxEntriesPerFeed {
			items = items[:maxEntriesPerFeed]
		}
		for _, item := range items {
			if item.Link == "" {
				continue
			}
			body := item.Description
			if item.Content != "" {
				body += "\n" + item.Content
			}
			relevance := scoreEntry(terms, item.Title, body)
			if !fetchAll && relevance <= minRelevance {
				continue
			}
			results = append(results, types.SourceResult{
				Title:     item.Title,
				URL:       item.Link,
				Snippet:   makeSnippet(item.Description),
				Relevance: relevance,
			})
		}
	}
	return results
}

// rescoreWithLLM asks the completion service to rate every candidate against
// the query in a single call. Parse or call failures silently keep the
// keyword-based scores.
func (s *Scanner) rescoreWithLLM(ctx context.Context, query, language string, results []types.SourceResult) {
	type candidate struct {
		ID      int    `json:"id"`
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
	}
	candidates := make([]candidate, len(results))
	for i, r := range results {
		candidates[i] = candidate{ID: i, Title: r.Title, Snippet: r.Snippet}
	}
	encoded, err := json.Marshal(candidates)
	if err != nil {
		return
	}

	prompt := fmt.Sprintf(`You are evaluating the relevance of articles to a search query.

QUERY: %q (language: %s)

ARTICLES TO EVALUATE:
%s

Please rate the relevance of each article to the query on a scale of 0.0 to 1.0,
where 1.0 means extremely relevant and 0.0 means completely irrelevant.

Respond with ONLY a JSON array of objects with each object having the id and the relevance score.
Example: [{"id": 0, "relevance": 0.8}, {"id": 1, "relevance": 0.3}]`, query, language, encoded)

	raw, err := s.completer.Complete(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
	})
	if err != nil {
		log.Printf("LLM relevance scoring failed: %v", err)
		return
	}

	var scores []struct {
		ID        int     `json:"id"`
		Relevance float64 `json:"relevance"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &scores); err != nil {
		log.Printf("Could not parse LLM relevance scores, keeping keyword scores: %v", err)
		return
	}
	for _, sc := range scores {
		if sc.ID >= 0 && sc.ID < len(results) {
			results[sc.ID].Relevance = sc.Relevance
		}
	}
}

// scoreEntry computes keyword relevance: title hits weigh double body hits,
// normalized by twice the term count. An entry matching every term in both
// title and body scores 1.5.
func scoreEntry(terms []string, title, body string) float64 {
	if len(terms) == 0 {
		return 0
	}
	titleLower := strings.ToLower(title)
	bodyLower := strings.ToLower(body)

	score := 0
	for _, term := range terms {
		if strings.Contains(titleLower, term) {
			score += 2
		}
		if strings.Contains(bodyLower, term) {
			score++
		}
	}
	return float64(score) / float64(2*len(terms))
}

func queryTerms(query string) []string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		terms = append(terms, strings.ToLower(f))
	}
	return terms
}

func isTechQuery(query string) bool {
	q := strings.ToLower(query)
	for _, term := range techTerms {
		if strings.Contains(q, term) {
			return true
		}
	}
	return false
}

func dedupeByURL(results []types.SourceResult) []types.SourceResult {
	seen := make(map[string]bool, len(results))
	unique := make([]types.SourceResult, 0, len(results))
	for _, r := range results {
		if seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		unique = append(unique, r)
	}
	return unique
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// makeSnippet strips markup from a feed description and truncates it.
func makeSnippet(description string) string {
	clean := htmlTagRe.ReplaceAllString(description, "")
	clean = strings.Join(strings.Fields(clean), " ")
	runes := []rune(clean)
	if len(runes) > snippetLength {
		return string(runes[:snippetLength]) + "..."
	}
	return clean
}
