package synthesis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/exsmiley/langread/llm"
	"github.com/exsmiley/langread/types"
)

type fakeCompleter struct {
	response string
	err      error
	requests []llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	f.requests = append(f.requests, req)
	return f.response, f.err
}

func sourceArticles() []*types.ExtractedArticle {
	return []*types.ExtractedArticle{
		{ID: "aaaa000011112222", Title: "금리 동결 발표", Text: "한국은행이 기준금리를 동결했다.\n\n시장은 이를 예상했다."},
		{ID: "bbbb000011112222", Title: "시장 반응", Text: "주식 시장은 소폭 상승했다."},
	}
}

const goodResponse = `TITLE: 금리와 시장

CONTENT:
한국은행이 금리를 그대로 두었습니다.

# 시장의 반응

사람들은 놀라지 않았습니다.

KEY_VOCABULARY:
금리: the interest rate
- 시장: the market
broken line without separator
`

func TestSynthesizeParsesModelResponse(t *testing.T) {
	completer := &fakeCompleter{response: goodResponse}
	s := NewSynthesizer(completer)
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	article, err := s.Synthesize(context.Background(), sourceArticles(), "경제", "ko", types.DifficultyBeginner)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if article.Title != "금리와 시장" {
		t.Fatalf("title = %q", article.Title)
	}
	if article.Difficulty != types.DifficultyBeginner || article.Language != "ko" {
		t.Fatalf("difficulty/language = %v/%v", article.Difficulty, article.Language)
	}
	if len(article.SourceArticleRefs) != 2 || article.SourceArticleRefs[0] != "aaaa000011112222" {
		t.Fatalf("source refs = %v", article.SourceArticleRefs)
	}
	if !article.DateCreated.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("date created = %v", article.DateCreated)
	}

	wantTypes := []string{types.SectionText, types.SectionHeading, types.SectionText}
	if len(article.Sections) != len(wantTypes) {
		t.Fatalf("sections = %+v; want %d", article.Sections, len(wantTypes))
	}
	for i, section := range article.Sections {
		if section.Type != wantTypes[i] || section.Order != i {
			t.Fatalf("section[%d] = %+v; want type %q order %d", i, section, wantTypes[i], i)
		}
	}
	if article.Sections[1].Content != "시장의 반응" {
		t.Fatalf("heading content = %q", article.Sections[1].Content)
	}

	if len(article.KeyVocabulary) != 2 {
		t.Fatalf("vocabulary = %+v; want 2 items", article.KeyVocabulary)
	}
	if article.KeyVocabulary[1].Word != "시장" || article.KeyVocabulary[1].Definition != "the market" {
		t.Fatalf("vocabulary[1] = %+v", article.KeyVocabulary[1])
	}

	req := completer.requests[0]
	if len(req.Messages) != 2 {
		t.Fatalf("messages = %d; want system+user", len(req.Messages))
	}
	if !strings.Contains(req.Messages[1].Content, "금리 동결 발표") {
		t.Fatal("user prompt missing source article title")
	}
	if !strings.Contains(req.Messages[1].Content, "300-500") {
		t.Fatal("user prompt missing beginner length guideline")
	}
}

func TestSynthesizeFallsBackOnCallError(t *testing.T) {
	s := NewSynthesizer(&fakeCompleter{err: errors.New("rate limited")})

	article, err := s.Synthesize(context.Background(), sourceArticles(), "경제", "ko", types.DifficultyAdvanced)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if article.Title != "경제 (advanced)" {
		t.Fatalf("fallback title = %q", article.Title)
	}
	if len(article.Sections) < 2 {
		t.Fatalf("fallback sections = %+v", article.Sections)
	}
	if article.Sections[0].Type != types.SectionText {
		t.Fatalf("fallback section[0] = %+v; want introductory text", article.Sections[0])
	}
	if article.Sections[1].Type != types.SectionHeading || article.Sections[1].Content != "금리 동결 발표" {
		t.Fatalf("fallback section[1] = %+v", article.Sections[1])
	}
	if len(article.Topics) == 0 || article.Topics[0] != "경제" {
		t.Fatalf("topics = %v; want the requested topic first", article.Topics)
	}
	if article.KeyVocabulary == nil || len(article.KeyVocabulary) != 0 {
		t.Fatalf("fallback vocabulary = %+v; want empty", article.KeyVocabulary)
	}
	if len(article.SourceArticleRefs) != 2 {
		t.Fatalf("source refs = %v", article.SourceArticleRefs)
	}
}

func TestSynthesizeFallsBackOnUnparseableResponse(t *testing.T) {
	s := NewSynthesizer(&fakeCompleter{response: "Sorry, I cannot help with that."})

	article, err := s.Synthesize(context.Background(), sourceArticles(), "경제", "ko", types.DifficultyIntermediate)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if article.Title != "경제 (intermediate)" {
		t.Fatalf("fallback title = %q", article.Title)
	}
}

func TestSynthesizeRejectsEmptySources(t *testing.T) {
	s := NewSynthesizer(nil)
	if _, err := s.Synthesize(context.Background(), nil, "경제", "ko", types.DifficultyBeginner); err == nil {
		t.Fatal("expected error for empty source group")
	}
}

func TestSectionsFromContentHeadingStyles(t *testing.T) {
	content := "시장의 반응\n===\n\n사람들은 놀라지 않았습니다.\n\n# 전망\n\n내년에도 비슷할 것입니다."

	sections := sectionsFromContent(content)
	wantTypes := []string{types.SectionHeading, types.SectionText, types.SectionHeading, types.SectionText}
	if len(sections) != len(wantTypes) {
		t.Fatalf("sections = %+v; want %d", sections, len(wantTypes))
	}
	for i, section := range sections {
		if section.Type != wantTypes[i] {
			t.Fatalf("section[%d] = %+v; want type %q", i, section, wantTypes[i])
		}
	}
	if sections[0].Content != "시장의 반응" {
		t.Fatalf("underlined heading = %q", sections[0].Content)
	}
}

func TestParsePartialResponse(t *testing.T) {
	cases := []struct {
		name     string
		response string
		wantOK   bool
	}{
		{"title on next line", "TITLE:\n제목\n\nCONTENT:\n본문입니다.", true},
		{"missing content", "TITLE: 제목\n\nKEY_VOCABULARY:\n단어: 정의", false},
		{"missing title", "CONTENT:\n본문입니다.", false},
		{"empty", "", false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Parse(c.response)
			if got.OK != c.wantOK {
				t.Fatalf("Parse(%q).OK = %v; want %v", c.response, got.OK, c.wantOK)
			}
		})
	}
}
