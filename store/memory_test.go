package store

import (
	"context"
	"testing"

	"github.com/exsmiley/langread/types"
)

func TestSaveExtractedSkipsDuplicates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	article := &types.ExtractedArticle{ID: "abc", Title: "first", Language: "ko"}

	inserted, err := m.SaveExtracted(ctx, article)
	if err != nil || !inserted {
		t.Fatalf("first save: inserted=%v err=%v", inserted, err)
	}

	dup := &types.ExtractedArticle{ID: "abc", Title: "second", Language: "ko"}
	inserted, err = m.SaveExtracted(ctx, dup)
	if err != nil || inserted {
		t.Fatalf("duplicate save: inserted=%v err=%v", inserted, err)
	}

	got, err := m.GetExtracted(ctx, "abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "first" {
		t.Fatalf("title = %q; duplicate insert must not overwrite", got.Title)
	}
}

func TestFindExtractedFilters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, a := range []*types.ExtractedArticle{
		{ID: "a1", Language: "ko", Rewritten: false},
		{ID: "a2", Language: "ko", Rewritten: true},
		{ID: "a3", Language: "en", Rewritten: false},
	} {
		if _, err := m.SaveExtracted(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	unrewritten := false
	got, err := m.FindExtracted(ctx, ExtractedFilter{Language: "ko", Rewritten: &unrewritten})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "a1" {
		t.Fatalf("got %v; want only a1", got)
	}

	if err := m.MarkRewritten(ctx, []string{"a1"}); err != nil {
		t.Fatal(err)
	}
	got, err = m.FindExtracted(ctx, ExtractedFilter{Language: "ko", Rewritten: &unrewritten})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %v; want none after MarkRewritten", got)
	}
}

func TestAddArticleRefIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	tag := &types.Tag{ID: "t1", CanonicalName: "economy", Active: true}
	if err := m.Insert(ctx, tag); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := m.AddArticleRef(ctx, "t1", "article-1"); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.AddArticleRef(ctx, "t1", "article-2"); err != nil {
		t.Fatal(err)
	}

	got, err := m.GetByName(ctx, "economy")
	if err != nil {
		t.Fatal(err)
	}
	if got.ArticleCount != 2 {
		t.Fatalf("article count = %d; want 2", got.ArticleCount)
	}
	if len(got.ArticleRefs) != 2 {
		t.Fatalf("refs = %v; want 2 unique refs", got.ArticleRefs)
	}
}

func TestAddTranslationsKeepsExisting(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	tag := &types.Tag{ID: "t1", CanonicalName: "economy", Translations: map[string]string{"ko": "경제"}}
	if err := m.Insert(ctx, tag); err != nil {
		t.Fatal(err)
	}

	err := m.AddTranslations(ctx, "t1", map[string]string{"ko": "다른이름", "ja": "経済"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := m.GetByName(ctx, "economy")
	if err != nil {
		t.Fatal(err)
	}
	if got.Translations["ko"] != "경제" {
		t.Fatalf("ko translation = %q; existing value must win", got.Translations["ko"])
	}
	if got.Translations["ja"] != "経済" {
		t.Fatalf("ja translation = %q; want the new language added", got.Translations["ja"])
	}
}

func TestListTagsActiveOnly(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, tag := range []*types.Tag{
		{ID: "t1", CanonicalName: "economy", Active: true},
		{ID: "t2", CanonicalName: "politics", Active: false},
	} {
		if err := m.Insert(ctx, tag); err != nil {
			t.Fatal(err)
		}
	}

	active, err := m.List(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].CanonicalName != "economy" {
		t.Fatalf("active tags = %v", active)
	}

	all, err := m.List(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("all tags = %v; want 2", all)
	}
}
