package store

import (
	"context"
	"sort"
	"sync"

	"github.com/exsmiley/langread/types"
)

// Memory is an in-process implementation of ArticleStore and TagStore. It
// backs local runs without a database and the package tests.
type Memory struct {
	mu          sync.RWMutex
	extracted   map[string]*types.ExtractedArticle
	synthesized []*types.SynthesizedArticle
	tags        map[string]*types.Tag
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		extracted: make(map[string]*types.ExtractedArticle),
		tags:      make(map[string]*types.Tag),
	}
}

func (m *Memory) SaveExtracted(_ context.Context, article *types.ExtractedArticle) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.extracted[article.ID]; exists {
		return false, nil
	}
	copied := *article
	m.extracted[article.ID] = &copied
	return true, nil
}

func (m *Memory) GetExtracted(_ context.Context, id string) (*types.ExtractedArticle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	article, ok := m.extracted[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *article
	return &copied, nil
}

func (m *Memory) FindExtracted(_ context.Context, filter ExtractedFilter) ([]*types.ExtractedArticle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*types.ExtractedArticle
	for _, article := range m.extracted {
		if filter.Language != "" && article.Language != filter.Language {
			continue
		}
		if filter.Rewritten != nil && article.Rewritten != *filter.Rewritten {
			continue
		}
		copied := *article
		results = append(results, &copied)
	}
	// Map iteration order is random; keep results stable for callers.
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

func (m *Memory) MarkRewritten(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if article, ok := m.extracted[id]; ok {
			article.Rewritten = true
		}
	}
	return nil
}

func (m *Memory) SaveSynthesized(_ context.Context, article *types.SynthesizedArticle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *article
	m.synthesized = append(m.synthesized, &copied)
	return nil
}

func (m *Memory) FindSynthesized(_ context.Context, filter SynthesizedFilter) ([]*types.SynthesizedArticle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*types.SynthesizedArticle
	for _, article := range m.synthesized {
		if filter.Language != "" && article.Language != filter.Language {
			continue
		}
		if filter.Difficulty != "" && article.Difficulty != filter.Difficulty {
			continue
		}
		if filter.Topic != "" && !hasTopic(article.Topics, filter.Topic) {
			continue
		}
		copied := *article
		results = append(results, &copied)
	}
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

func (m *Memory) DeleteSynthesized(_ context.Context, filter SynthesizedFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []*types.SynthesizedArticle
	var removed int64
	for _, article := range m.synthesized {
		if (filter.Language == "" || article.Language == filter.Language) &&
			(filter.Difficulty == "" || article.Difficulty == filter.Difficulty) &&
			(filter.Topic == "" || hasTopic(article.Topics, filter.Topic)) {
			removed++
			continue
		}
		kept = append(kept, article)
	}
	m.synthesized = kept
	return removed, nil
}

func (m *Memory) GetByName(_ context.Context, canonicalName string) (*types.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, tag := range m.tags {
		if tag.CanonicalName == canonicalName {
			copied := copyTag(tag)
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) Insert(_ context.Context, tag *types.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := copyTag(tag)
	m.tags[tag.ID] = &copied
	return nil
}

func (m *Memory) AddArticleRef(_ context.Context, tagID, articleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tag, ok := m.tags[tagID]
	if !ok {
		return ErrNotFound
	}
	for _, ref := range tag.ArticleRefs {
		if ref == articleID {
			return nil
		}
	}
	tag.ArticleRefs = append(tag.ArticleRefs, articleID)
	tag.ArticleCount++
	return nil
}

func (m *Memory) RemoveArticleRef(_ context.Context, tagID, articleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tag, ok := m.tags[tagID]
	if !ok {
		return ErrNotFound
	}
	for i, ref := range tag.ArticleRefs {
		if ref == articleID {
			tag.ArticleRefs = append(tag.ArticleRefs[:i], tag.ArticleRefs[i+1:]...)
			tag.ArticleCount--
			return nil
		}
	}
	return nil
}

func (m *Memory) AddTranslations(_ context.Context, tagID string, translations map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tag, ok := m.tags[tagID]
	if !ok {
		return ErrNotFound
	}
	if tag.Translations == nil {
		tag.Translations = make(map[string]string, len(translations))
	}
	for lang, name := range translations {
		if _, exists := tag.Translations[lang]; !exists {
			tag.Translations[lang] = name
		}
	}
	return nil
}

func (m *Memory) SetActive(_ context.Context, tagID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tag, ok := m.tags[tagID]
	if !ok {
		return ErrNotFound
	}
	tag.Active = active
	return nil
}

func (m *Memory) SetArticleCount(_ context.Context, tagID string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tag, ok := m.tags[tagID]
	if !ok {
		return ErrNotFound
	}
	tag.ArticleCount = count
	return nil
}

func (m *Memory) List(_ context.Context, activeOnly bool) ([]*types.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*types.Tag
	for _, tag := range m.tags {
		if activeOnly && !tag.Active {
			continue
		}
		copied := copyTag(tag)
		results = append(results, &copied)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CanonicalName < results[j].CanonicalName })
	return results, nil
}

func hasTopic(topics []string, topic string) bool {
	for _, t := range topics {
		if t == topic {
			return true
		}
	}
	return false
}

func copyTag(tag *types.Tag) types.Tag {
	copied := *tag
	copied.ArticleRefs = append([]string(nil), tag.ArticleRefs...)
	if tag.Translations != nil {
		copied.Translations = make(map[string]string, len(tag.Translations))
		for k, v := range tag.Translations {
			copied.Translations[k] = v
		}
	}
	return copied
}
