package bulkops

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/exsmiley/langread/discovery"
	"github.com/exsmiley/langread/store"
	"github.com/exsmiley/langread/types"
)

const (
	fetchWorkers  = 5
	rewritePause  = 2 * time.Second
	maxPerFetch   = 30
	fallbackTopic = "news"

	// Quality gate thresholds, in runes of extracted text.
	minUsableText    = 100
	minUsableSection = 50
)

// Searcher discovers candidate sources for one language.
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

// Runner executes a bulk operation through its phases: fetch sources per
// language, aggregate the unrewritten backlog, then rewrite each article at
// every difficulty.
type Runner struct {
	search   Searcher
	extract  Extractor
	synth    Synthesizer
	tagger   Tagger
	articles store.ArticleStore
	ops      Store

	workers int
	pause   time.Duration
	sleep   func(time.Duration)
}

// NewRunner wires a Runner. tagger may be nil to skip tagging.
func NewRunner(search Searcher, extract Extractor, synth Synthesizer, tagger Tagger, articles store.ArticleStore, ops Store) *Runner {
	return &Runner{
		search:   search,
		extract:  extract,
		synth:    synth,
		tagger:   tagger,
		articles: articles,
		ops:      ops,
		workers:  fetchWorkers,
		pause:    rewritePause,
		sleep:    time.Sleep,
	}
}

// Start registers a new operation and runs it in the background, returning
// immediately so callers can poll its status by ID. phases selects the subset
// to execute; empty means a full run. fetchOnly trims the run to the fetch
// phase, leaving the articles unrewritten for a later full run to pick up.
func (r *Runner) Start(ctx context.Context, languages, phases []string, fetchOnly bool) *Operation {
	if fetchOnly {
		phases = []string{PhaseFetch}
	}
	op := NewOperation(languages, phases)
	r.ops.Put(op)
	go r.Run(ctx, op, languages)
	return op
}

// Run drives the operation through its requested phases. A phase error fails
// the whole operation; work persisted before the failure stays in the article
// store, and the next run picks those articles up again because they are
// still unrewritten.
func (r *Runner) Run(ctx context.Context, op *Operation, languages []string) {
	op.Logf("bulk operation started for languages %v, phases %v", languages, op.RequestedPhases())

	if op.HasPhase(PhaseFetch) {
		if err := r.fetchPhase(ctx, op, languages); err != nil {
			op.Fail(err)
			return
		}
	}

	var backlog map[string][]*types.ExtractedArticle
	if op.HasPhase(PhaseAggregate) {
		loaded, err := r.aggregatePhase(ctx, op, languages)
		if err != nil {
			op.Fail(err)
			return
		}
		backlog = loaded
	}

	if op.HasPhase(PhaseRewrite) {
		if backlog == nil {
			// Rewrite without aggregate still needs the backlog.
			loaded, err := r.loadBacklog(ctx, languages)
			if err != nil {
				op.Fail(err)
				return
			}
			backlog = loaded
		}
		if err := r.rewritePhase(ctx, op, backlog); err != nil {
			op.Fail(err)
			return
		}
	}
	op.Complete()
}

// fetchPhase discovers and extracts sources for every language with a small
// worker pool. Per-URL failures are skipped, never fatal.
func (r *Runner) fetchPhase(ctx context.Context, op *Operation, languages []string) error {
	op.SetPhase(PhaseFetch)

	for _, language := range languages {
		results := r.search.Search(ctx, "", language, discovery.Options{FetchAll: true})
		if len(results) > maxPerFetch {
			results = results[:maxPerFetch]
		}
		op.Logf("%s: %d candidate sources", language, len(results))

		urls := make(chan string)
		var wg sync.WaitGroup
		for i := 0; i < r.workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for url := range urls {
					article, err := r.extract.Extract(ctx, url, language)
					if err != nil {
						op.Logf("%s: extraction failed for %s: %v", language, url, err)
						op.AddSkipped(1)
						continue
					}
					if lowQuality(article) {
						op.Logf("%s: no usable content in %s", language, url)
						op.AddSkipped(1)
						continue
					}
					inserted, err := r.articles.SaveExtracted(ctx, article)
					if err != nil {
						op.Logf("%s: could not store %s: %v", language, url, err)
						op.AddSkipped(1)
						continue
					}
					if !inserted {
						op.AddCached(1)
						continue
					}
					op.AddFetched(1)
				}
			}()
		}
		for _, result := range results {
			urls <- result.URL
		}
		close(urls)
		wg.Wait()
	}
	return nil
}

// aggregatePhase loads each language's unrewritten backlog. It includes
// articles left over from earlier runs, which makes an interrupted operation
// resumable.
func (r *Runner) aggregatePhase(ctx context.Context, op *Operation, languages []string) (map[string][]*types.ExtractedArticle, error) {
	op.SetPhase(PhaseAggregate)
	backlog, err := r.loadBacklog(ctx, languages)
	if err != nil {
		return nil, err
	}
	for _, language := range sortedKeys(backlog) {
		op.Logf("%s: %d articles queued for rewriting", language, len(backlog[language]))
	}
	return backlog, nil
}

func (r *Runner) loadBacklog(ctx context.Context, languages []string) (map[string][]*types.ExtractedArticle, error) {
	byLanguage := make(map[string][]*types.ExtractedArticle, len(languages))
	unrewritten := false
	for _, language := range languages {
		backlog, err := r.articles.FindExtracted(ctx, store.ExtractedFilter{Language: language, Rewritten: &unrewritten})
		if err != nil {
			return nil, fmt.Errorf("load backlog for %s: %w", language, err)
		}
		byLanguage[language] = backlog
	}
	return byLanguage, nil
}

// rewritePhase processes the backlog one article at a time: tag the article,
// synthesize one leveled rewrite per difficulty carrying the article's tag
// set, then mark the article rewritten. The rewrite pause keeps the model
// calls sequential and spaced.
func (r *Runner) rewritePhase(ctx context.Context, op *Operation, backlog map[string][]*types.ExtractedArticle) error {
	op.SetPhase(PhaseRewrite)

	for _, language := range sortedKeys(backlog) {
		articles := backlog[language]
		sort.Slice(articles, func(i, j int) bool { return articles[i].ID < articles[j].ID })

		for _, article := range articles {
			var tagIDs []string
			if r.tagger != nil {
				applied, err := r.tagger.Apply(ctx, article)
				if err != nil {
					op.Logf("%s: tagging %s failed: %v", language, article.ID, err)
				} else {
					op.AddTags(len(applied))
					for _, tag := range applied {
						tagIDs = append(tagIDs, tag.ID)
					}
				}
			}

			topic := articleTopic(article)
			for _, difficulty := range types.Difficulties() {
				synthesized, err := r.synth.Synthesize(ctx, []*types.ExtractedArticle{article}, topic, language, difficulty)
				if err != nil {
					return fmt.Errorf("synthesize %s/%s: %w", article.ID, difficulty, err)
				}
				synthesized.TagIDs = tagIDs
				if err := r.articles.SaveSynthesized(ctx, synthesized); err != nil {
					return fmt.Errorf("store synthesized %s/%s: %w", article.ID, difficulty, err)
				}
				op.Logf("%s: synthesized %q (%s)", language, synthesized.Title, difficulty)
				r.sleep(r.pause)
			}

			if err := r.articles.MarkRewritten(ctx, []string{article.ID}); err != nil {
				return fmt.Errorf("mark rewritten %s: %w", article.ID, err)
			}
			op.AddRewritten(1)
		}
	}
	return nil
}

// lowQuality rejects articles that would only pollute the rewrite backlog:
// no title or URL, or so little text that no section carries real content.
// Placeholder-only extractions fall under the text threshold.
func lowQuality(article *types.ExtractedArticle) bool {
	if article.Title == "" || article.URL == "" {
		return true
	}
	if len([]rune(article.Text)) >= minUsableText {
		return false
	}
	for _, section := range article.Sections {
		if section.Type != types.SectionImage && len([]rune(section.Content)) > minUsableSection {
			return false
		}
	}
	return true
}

// articleTopic picks the rewrite topic for one article: its first extracted
// topic, or the fallback when extraction found none.
func articleTopic(article *types.ExtractedArticle) string {
	if len(article.Topics) > 0 {
		return article.Topics[0]
	}
	return fallbackTopic
}

func sortedKeys(m map[string][]*types.ExtractedArticle) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
