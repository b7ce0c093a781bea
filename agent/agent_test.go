package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/exsmiley/langread/cache"
	"github.com/exsmiley/langread/discovery"
	"github.com/exsmiley/langread/llm"
	"github.com/exsmiley/langread/store"
	"github.com/exsmiley/langread/types"
)

type fakeSearcher struct {
	results []types.SourceResult
	calls   int
}

func (f *fakeSearcher) Search(_ context.Context, _, _ string, _ discovery.Options) []types.SourceResult {
	f.calls++
	return f.results
}

type fakeExtractor struct {
	articles map[string]*types.ExtractedArticle
}

func (f *fakeExtractor) Extract(_ context.Context, url, _ string) (*types.ExtractedArticle, error) {
	article, ok := f.articles[url]
	if !ok {
		return nil, errors.New("unreachable")
	}
	copied := *article
	return &copied, nil
}

type fakeSynthesizer struct {
	calls [][]string
	err   error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, sources []*types.ExtractedArticle, topic, language string, difficulty types.Difficulty) (*types.SynthesizedArticle, error) {
	ids := make([]string, 0, len(sources))
	for _, src := range sources {
		ids = append(ids, src.ID)
	}
	f.calls = append(f.calls, ids)
	if f.err != nil {
		return nil, f.err
	}
	return &types.SynthesizedArticle{
		Title:             fmt.Sprintf("%s (%s)", topic, difficulty),
		Language:          language,
		Difficulty:        difficulty,
		Topics:            []string{topic},
		SourceArticleRefs: ids,
		DateCreated:       time.Now().UTC(),
	}, nil
}

type fakeCompleter struct {
	response string
	err      error
}

func (f *fakeCompleter) Complete(_ context.Context, _ llm.Request) (string, error) {
	return f.response, f.err
}

func testFixtures() (*fakeSearcher, *fakeExtractor) {
	search := &fakeSearcher{results: []types.SourceResult{
		{URL: "https://a.example/1", Relevance: 0.9},
		{URL: "https://a.example/2", Relevance: 0.8},
		{URL: "https://a.example/down", Relevance: 0.7},
	}}
	extract := &fakeExtractor{articles: map[string]*types.ExtractedArticle{
		"https://a.example/1": {ID: "id-1", Title: "one", Language: "ko", Topics: []string{"경제"}},
		"https://a.example/2": {ID: "id-2", Title: "two", Language: "ko", Topics: []string{"경제"}},
	}}
	return search, extract
}

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestGetArticlesRunsPipelineAndCaches(t *testing.T) {
	search, extract := testFixtures()
	synth := &fakeSynthesizer{}
	articles := store.NewMemory()
	a := New(search, extract, synth, nil, articles, newTestCache(t), nil)

	got, fromCache, err := a.GetArticles(context.Background(), "경제", "ko", types.DifficultyIntermediate, false)
	if err != nil {
		t.Fatalf("GetArticles: %v", err)
	}
	if fromCache {
		t.Fatal("first call must not come from cache")
	}
	if len(got) != 1 {
		t.Fatalf("got %d articles; want 1 group without a grouping model", len(got))
	}
	if len(synth.calls) != 1 || len(synth.calls[0]) != 2 {
		t.Fatalf("synth calls = %v; want one group of the 2 reachable sources", synth.calls)
	}

	stored, err := articles.FindSynthesized(context.Background(), store.SynthesizedFilter{Language: "ko"})
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored %d synthesized articles; want 1", len(stored))
	}

	// Second call is served from the cache without re-running the pipeline.
	got2, fromCache, err := a.GetArticles(context.Background(), "경제", "ko", types.DifficultyIntermediate, false)
	if err != nil {
		t.Fatal(err)
	}
	if !fromCache {
		t.Fatal("second call should hit the cache")
	}
	if search.calls != 1 {
		t.Fatalf("search called %d times; want 1", search.calls)
	}
	if got2[0].Title != got[0].Title {
		t.Fatalf("cached title = %q; want %q", got2[0].Title, got[0].Title)
	}
}

func TestGetArticlesForceRefreshBypassesCache(t *testing.T) {
	search, extract := testFixtures()
	a := New(search, extract, &fakeSynthesizer{}, nil, nil, newTestCache(t), nil)

	if _, _, err := a.GetArticles(context.Background(), "경제", "ko", types.DifficultyBeginner, false); err != nil {
		t.Fatal(err)
	}
	if _, fromCache, err := a.GetArticles(context.Background(), "경제", "ko", types.DifficultyBeginner, true); err != nil {
		t.Fatal(err)
	} else if fromCache {
		t.Fatal("force refresh must not serve the cache")
	}
	if search.calls != 2 {
		t.Fatalf("search called %d times; want 2", search.calls)
	}
}

func TestGetArticlesDifficultyIsPartOfCacheKey(t *testing.T) {
	search, extract := testFixtures()
	a := New(search, extract, &fakeSynthesizer{}, nil, nil, newTestCache(t), nil)

	if _, _, err := a.GetArticles(context.Background(), "경제", "ko", types.DifficultyBeginner, false); err != nil {
		t.Fatal(err)
	}
	_, fromCache, err := a.GetArticles(context.Background(), "경제", "ko", types.DifficultyAdvanced, false)
	if err != nil {
		t.Fatal(err)
	}
	if fromCache {
		t.Fatal("a different difficulty must not share the cache entry")
	}
}

func TestGetArticlesFailsWhenNothingExtracts(t *testing.T) {
	search := &fakeSearcher{results: []types.SourceResult{{URL: "https://a.example/down"}}}
	extract := &fakeExtractor{}
	a := New(search, extract, &fakeSynthesizer{}, nil, nil, nil, nil)

	if _, _, err := a.GetArticles(context.Background(), "경제", "ko", types.DifficultyBeginner, false); err == nil {
		t.Fatal("expected error when every extraction fails")
	}
}

func TestGroupRelatedUsesModelGroups(t *testing.T) {
	articles := []*types.ExtractedArticle{
		{ID: "id-0", Title: "zero"},
		{ID: "id-1", Title: "one"},
		{ID: "id-2", Title: "two"},
	}
	a := New(nil, nil, nil, nil, nil, nil, &fakeCompleter{response: `[[0, 2], [1]]`})

	groups := a.groupRelated(context.Background(), articles)
	if len(groups) != 2 {
		t.Fatalf("groups = %v; want 2", groups)
	}
	if len(groups[0]) != 2 || groups[0][0].ID != "id-0" || groups[0][1].ID != "id-2" {
		t.Fatalf("groups[0] = %v", groups[0])
	}
	if len(groups[1]) != 1 || groups[1][0].ID != "id-1" {
		t.Fatalf("groups[1] = %v", groups[1])
	}
}

func TestGroupRelatedRecoversDroppedArticles(t *testing.T) {
	articles := []*types.ExtractedArticle{
		{ID: "id-0", Title: "zero"},
		{ID: "id-1", Title: "one"},
	}
	a := New(nil, nil, nil, nil, nil, nil, &fakeCompleter{response: `[[0]]`})

	groups := a.groupRelated(context.Background(), articles)
	if len(groups) != 2 {
		t.Fatalf("groups = %v; dropped article must get its own group", groups)
	}
	if groups[1][0].ID != "id-1" {
		t.Fatalf("leftover group = %v", groups[1])
	}
}

func TestGroupRelatedFallsBackToOneGroup(t *testing.T) {
	articles := []*types.ExtractedArticle{
		{ID: "id-0", Title: "zero"},
		{ID: "id-1", Title: "one"},
	}

	for name, completer := range map[string]*fakeCompleter{
		"call error":   {err: errors.New("timeout")},
		"bad response": {response: "these all look unrelated to me"},
	} {
		t.Run(name, func(t *testing.T) {
			a := New(nil, nil, nil, nil, nil, nil, completer)
			groups := a.groupRelated(context.Background(), articles)
			if len(groups) != 1 || len(groups[0]) != 2 {
				t.Fatalf("groups = %v; want one group of all articles", groups)
			}
		})
	}
}
