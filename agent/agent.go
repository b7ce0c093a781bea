package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/exsmiley/langread/cache"
	"github.com/exsmiley/langread/discovery"
	"github.com/exsmiley/langread/llm"
	"github.com/exsmiley/langread/store"
	"github.com/exsmiley/langread/types"
)

const maxSources = 5

// Searcher discovers candidate sources for a query.
type Searcher interface {
	Search(ctx context.Context, query, language string, opts discovery.Options) []types.SourceResult
}

// Extractor turns one URL into a structured article.
type Extractor interface {
	Extract(ctx context.Context, url, language string) (*types.ExtractedArticle, error)
}

// Synthesizer rewrites a source group into one leveled article.
type Synthesizer interface {
	Synthesize(ctx context.Context, sources []*types.ExtractedArticle, topic, language string, difficulty types.Difficulty) (*types.SynthesizedArticle, error)
}

// Tagger derives canonical tags for one article and associates them with it.
type Tagger interface {
	Apply(ctx context.Context, article *types.ExtractedArticle) ([]*types.Tag, error)
}

// Agent serves interactive queries: cache check, discovery, extraction,
// grouping, synthesis, then caching of the result.
type Agent struct {
	search    Searcher
	extract   Extractor
	synth     Synthesizer
	tagger    Tagger
	articles  store.ArticleStore
	cache     *cache.Cache
	completer llm.Completer
}

// New wires an Agent. tagger, cache and completer may each be nil; the
// corresponding step is then skipped (and grouping degrades to one group).
func New(search Searcher, extract Extractor, synth Synthesizer, tagger Tagger, articles store.ArticleStore, resultCache *cache.Cache, completer llm.Completer) *Agent {
	return &Agent{
		search:    search,
		extract:   extract,
		synth:     synth,
		tagger:    tagger,
		articles:  articles,
		cache:     resultCache,
		completer: completer,
	}
}

// GetArticles returns synthesized articles for the query at the requested
// difficulty, serving a cached result when one is fresh. forceRefresh
// bypasses the cache read but still refreshes the entry. The second return
// reports whether the result came from the cache.
func (a *Agent) GetArticles(ctx context.Context, query, language string, difficulty types.Difficulty, forceRefresh bool) ([]*types.SynthesizedArticle, bool, error) {
	cacheQuery := fmt.Sprintf("%s %s", query, difficulty)
	if a.cache != nil && !forceRefresh {
		var cached []*types.SynthesizedArticle
		if a.cache.Get(cacheQuery, language, &cached) && len(cached) > 0 {
			return cached, true, nil
		}
	}

	results := a.search.Search(ctx, query, language, discovery.Options{})
	pipelineLog := []string{fmt.Sprintf("discovered %d sources for %q (%s)", len(results), query, language)}

	extracted := a.extractSources(ctx, results, language)
	if len(extracted) == 0 {
		return nil, false, fmt.Errorf("no articles could be extracted for %q (%s)", query, language)
	}
	pipelineLog = append(pipelineLog, fmt.Sprintf("extracted %d articles", len(extracted)))

	groups := a.groupRelated(ctx, extracted)
	pipelineLog = append(pipelineLog, fmt.Sprintf("grouped into %d stories", len(groups)))

	var synthesized []*types.SynthesizedArticle
	for _, group := range groups {
		article, err := a.synth.Synthesize(ctx, group, query, language, difficulty)
		if err != nil {
			return nil, false, fmt.Errorf("synthesize %q: %w", query, err)
		}
		if a.articles != nil {
			if err := a.articles.SaveSynthesized(ctx, article); err != nil {
				log.Printf("Could not store synthesized article %q: %v", article.Title, err)
			}
		}
		synthesized = append(synthesized, article)
	}
	pipelineLog = append(pipelineLog, fmt.Sprintf("synthesized %d articles at %s", len(synthesized), difficulty))

	if a.cache != nil {
		if err := a.cache.Set(cacheQuery, language, synthesized, pipelineLog); err != nil {
			log.Printf("Could not cache result for %q: %v", query, err)
		}
	}
	return synthesized, false, nil
}

// extractSources extracts the top-ranked results one by one, skipping
// failures, storing and tagging what succeeds.
func (a *Agent) extractSources(ctx context.Context, results []types.SourceResult, language string) []*types.ExtractedArticle {
	if len(results) > maxSources {
		results = results[:maxSources]
	}

	var extracted []*types.ExtractedArticle
	for _, result := range results {
		article, err := a.extract.Extract(ctx, result.URL, language)
		if err != nil {
			log.Printf("Skipping %s: %v", result.URL, err)
			continue
		}
		if a.articles != nil {
			if _, err := a.articles.SaveExtracted(ctx, article); err != nil {
				log.Printf("Could not store article %s: %v", article.ID, err)
			}
		}
		if a.tagger != nil {
			if _, err := a.tagger.Apply(ctx, article); err != nil {
				log.Printf("Could not tag article %s: %v", article.ID, err)
			}
		}
		extracted = append(extracted, article)
	}
	return extracted
}

// groupRelated clusters the extracted articles into groups covering the same
// story, so each group synthesizes into one article. Without a completer, or
// when its output does not parse, everything lands in one group.
func (a *Agent) groupRelated(ctx context.Context, articles []*types.ExtractedArticle) [][]*types.ExtractedArticle {
	if a.completer == nil || len(articles) <= 1 {
		return [][]*types.ExtractedArticle{articles}
	}

	var b strings.Builder
	for i, article := range articles {
		fmt.Fprintf(&b, "[%d] %s\n", i, article.Title)
	}
	prompt := fmt.Sprintf(`Group these articles by story. Articles covering the same event belong in one group.

ARTICLES:
%s
Respond with ONLY a JSON array of arrays of article numbers, covering every article exactly once.
Example: [[0, 2], [1]]`, b.String())

	raw, err := a.completer.Complete(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
	})
	if err != nil {
		log.Printf("Article grouping failed, using one group: %v", err)
		return [][]*types.ExtractedArticle{articles}
	}

	var indexGroups [][]int
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &indexGroups); err != nil {
		log.Printf("Could not parse grouping response, using one group: %v", err)
		return [][]*types.ExtractedArticle{articles}
	}

	seen := make(map[int]bool, len(articles))
	var groups [][]*types.ExtractedArticle
	for _, indexes := range indexGroups {
		var group []*types.ExtractedArticle
		for _, i := range indexes {
			if i < 0 || i >= len(articles) || seen[i] {
				continue
			}
			seen[i] = true
			group = append(group, articles[i])
		}
		if len(group) > 0 {
			groups = append(groups, group)
		}
	}
	// Articles the model dropped still need a home.
	var leftover []*types.ExtractedArticle
	for i, article := range articles {
		if !seen[i] {
			leftover = append(leftover, article)
		}
	}
	if len(leftover) > 0 {
		groups = append(groups, leftover)
	}
	if len(groups) == 0 {
		return [][]*types.ExtractedArticle{articles}
	}
	return groups
}
