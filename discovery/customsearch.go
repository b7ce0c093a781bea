package discovery

import (
	"context"
	"fmt"

	customsearch "google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/exsmiley/langread/types"
)

const searchResultCount = 8

// GoogleSearch implements Searcher against the Programmable Search Engine
// API. It is the secondary path used when feed scanning comes up short.
type GoogleSearch struct {
	apiKey string
	cseID  string
}

// NewGoogleSearch builds a client. Both credentials are required; callers
// should leave the Scanner's secondary searcher nil when they are absent.
func NewGoogleSearch(apiKey, cseID string) *GoogleSearch {
	return &GoogleSearch{apiKey: apiKey, cseID: cseID}
}

// Search runs one keyed web search restricted to the given language.
func (g *GoogleSearch) Search(ctx context.Context, query, language string) ([]types.SourceResult, error) {
	svc, err := customsearch.NewService(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return nil, fmt.Errorf("create search service: %w", err)
	}

	call := svc.Cse.List().
		Q(query).
		Cx(g.cseID).
		Lr("lang_" + language).
		Num(searchResultCount).
		Context(ctx)
	if isTechQuery(query) {
		// Tech news goes stale fast; prefer recency over PageRank.
		call = call.Sort("date")
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("custom search %q: %w", query, err)
	}

	results := make([]types.SourceResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Link == "" {
			continue
		}
		results = append(results, types.SourceResult{
			Title:   item.Title,
			URL:     item.Link,
			Snippet: item.Snippet,
		})
	}
	return results, nil
}
