package tags

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/exsmiley/langread/llm"
	"github.com/exsmiley/langread/store"
	"github.com/exsmiley/langread/types"
)

// Service reconciles tag drafts against the tag store and keeps article
// associations consistent.
type Service struct {
	store     store.TagStore
	generator *Generator
}

// NewService builds a Service on the given store.
func NewService(tagStore store.TagStore, completer llm.Completer) *Service {
	return &Service{store: tagStore, generator: NewGenerator(completer)}
}

// maxHintTags bounds how many existing tags bias the generation prompt.
const maxHintTags = 30

// Apply tags the article and associates the resulting tags with it, creating
// tags that do not exist yet. Tag strings come from the model, prompted with
// the article's title and text and biased toward the most-used active tags;
// without a usable model response the article's extracted topics serve
// instead. A string that cleans to an existing canonical name is merged into
// that tag, never duplicated.
func (s *Service) Apply(ctx context.Context, article *types.ExtractedArticle) ([]*types.Tag, error) {
	raw := s.generator.Generate(ctx, article.Title, article.Text, article.Language, s.hintTags(ctx))
	if len(raw) == 0 {
		raw = article.Topics
	}
	drafts := s.generator.Drafts(ctx, raw, article.Language)

	applied := make([]*types.Tag, 0, len(drafts))
	for _, draft := range drafts {
		tag, err := s.ensureTag(ctx, draft)
		if err != nil {
			return applied, err
		}
		if article.ID != "" {
			if err := s.store.AddArticleRef(ctx, tag.ID, article.ID); err != nil {
				return applied, fmt.Errorf("associate tag %q: %w", tag.CanonicalName, err)
			}
		}
		applied = append(applied, tag)
	}
	return applied, nil
}

// hintTags returns the most-used active tags, for the generation prompt to
// prefer. Failures degrade to no hints.
func (s *Service) hintTags(ctx context.Context) []*types.Tag {
	active, err := s.store.List(ctx, true)
	if err != nil {
		log.Printf("Could not list active tags for hinting: %v", err)
		return nil
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].ArticleCount > active[j].ArticleCount })
	if len(active) > maxHintTags {
		active = active[:maxHintTags]
	}
	return active
}

// ensureTag returns the stored tag for the draft, inserting it on first
// sight. A lost insert race resolves by re-reading the winner.
func (s *Service) ensureTag(ctx context.Context, draft Draft) (*types.Tag, error) {
	existing, err := s.store.GetByName(ctx, draft.CanonicalName)
	if err == nil {
		return s.mergeTranslations(ctx, existing, draft)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	tag := &types.Tag{
		ID:               types.GenerateID("tag:" + draft.CanonicalName),
		CanonicalName:    draft.CanonicalName,
		Translations:     draft.Translations,
		OriginalLanguage: draft.OriginalLanguage,
		Active:           draft.AutoApproved,
		AutoApproved:     draft.AutoApproved,
	}
	if err := s.store.Insert(ctx, tag); err != nil {
		if winner, getErr := s.store.GetByName(ctx, draft.CanonicalName); getErr == nil {
			return winner, nil
		}
		return nil, fmt.Errorf("insert tag %q: %w", draft.CanonicalName, err)
	}
	return tag, nil
}

// mergeTranslations stores any translations the draft carries that the
// existing tag lacks. The same canonical tag can be reached from topics in
// different languages, each contributing its own translation.
func (s *Service) mergeTranslations(ctx context.Context, tag *types.Tag, draft Draft) (*types.Tag, error) {
	missing := map[string]string{}
	for lang, name := range draft.Translations {
		if _, ok := tag.Translations[lang]; !ok {
			missing[lang] = name
		}
	}
	if len(missing) == 0 {
		return tag, nil
	}
	if err := s.store.AddTranslations(ctx, tag.ID, missing); err != nil {
		return nil, fmt.Errorf("merge translations into tag %q: %w", tag.CanonicalName, err)
	}
	if tag.Translations == nil {
		tag.Translations = map[string]string{}
	}
	for lang, name := range missing {
		tag.Translations[lang] = name
	}
	return tag, nil
}

// Remove drops the association between a tag and an article, adjusting the
// tag's article count.
func (s *Service) Remove(ctx context.Context, tagID, articleID string) error {
	return s.store.RemoveArticleRef(ctx, tagID, articleID)
}

// SetActive flips a tag's review state.
func (s *Service) SetActive(ctx context.Context, tagID string, active bool) error {
	return s.store.SetActive(ctx, tagID, active)
}

// List returns stored tags, optionally only active ones.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]*types.Tag, error) {
	return s.store.List(ctx, activeOnly)
}

// RecalculateCounts resets every tag's article count to the length of its
// ref list and reports how many tags were corrected. Counts drift when
// association and counting race or a bulk run dies midway.
func (s *Service) RecalculateCounts(ctx context.Context) (int, error) {
	tags, err := s.store.List(ctx, false)
	if err != nil {
		return 0, err
	}

	corrected := 0
	for _, tag := range tags {
		actual := len(tag.ArticleRefs)
		if tag.ArticleCount == actual {
			continue
		}
		if err := s.store.SetArticleCount(ctx, tag.ID, actual); err != nil {
			return corrected, fmt.Errorf("recount tag %q: %w", tag.CanonicalName, err)
		}
		corrected++
	}
	return corrected, nil
}
