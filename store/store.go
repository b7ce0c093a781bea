package store

import (
	"context"
	"errors"

	"github.com/exsmiley/langread/types"
)

// ErrNotFound is returned by point lookups when no document matches.
var ErrNotFound = errors.New("not found")

// ExtractedFilter selects extracted source articles.
type ExtractedFilter struct {
	Language string
	// Rewritten filters on whether the article has already fed a
	// synthesis pass. Nil means both.
	Rewritten *bool
	Limit     int
}

// SynthesizedFilter selects generated learner articles.
type SynthesizedFilter struct {
	Language   string
	Difficulty types.Difficulty
	Topic      string
	Limit      int
}

// ArticleStore persists extracted source articles and synthesized learner
// articles.
type ArticleStore interface {
	// SaveExtracted inserts the article unless one with the same ID
	// already exists. It reports whether an insert happened.
	SaveExtracted(ctx context.Context, article *types.ExtractedArticle) (bool, error)
	GetExtracted(ctx context.Context, id string) (*types.ExtractedArticle, error)
	FindExtracted(ctx context.Context, filter ExtractedFilter) ([]*types.ExtractedArticle, error)
	// MarkRewritten flags the given extracted articles as consumed by a
	// synthesis pass.
	MarkRewritten(ctx context.Context, ids []string) error

	SaveSynthesized(ctx context.Context, article *types.SynthesizedArticle) error
	FindSynthesized(ctx context.Context, filter SynthesizedFilter) ([]*types.SynthesizedArticle, error)
	// DeleteSynthesized removes every generated article matching the
	// filter and reports how many were removed. The Limit field is
	// ignored.
	DeleteSynthesized(ctx context.Context, filter SynthesizedFilter) (int64, error)
}

// TagStore persists canonical tags.
type TagStore interface {
	// GetByName looks a tag up by canonical name.
	GetByName(ctx context.Context, canonicalName string) (*types.Tag, error)
	Insert(ctx context.Context, tag *types.Tag) error
	// AddArticleRef associates an article with the tag and bumps its
	// article count, once per article.
	AddArticleRef(ctx context.Context, tagID, articleID string) error
	// RemoveArticleRef drops the association again and decrements the
	// count, a no-op when the article was never associated.
	RemoveArticleRef(ctx context.Context, tagID, articleID string) error
	// AddTranslations merges the given translations into the tag without
	// overwriting languages that already have one.
	AddTranslations(ctx context.Context, tagID string, translations map[string]string) error
	SetActive(ctx context.Context, tagID string, active bool) error
	SetArticleCount(ctx context.Context, tagID string, count int) error
	List(ctx context.Context, activeOnly bool) ([]*types.Tag, error)
}
