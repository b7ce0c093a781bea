package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/exsmiley/langread/llm"
	"github.com/exsmiley/langread/retry"
	"github.com/exsmiley/langread/types"
)

type fakeCompleter struct {
	response string
	err      error
}

func (f *fakeCompleter) Complete(_ context.Context, _ llm.Request) (string, error) {
	return f.response, f.err
}

func newTestExtractor(completer llm.Completer) *Extractor {
	e := NewExtractor(completer)
	e.policy.Sleep = func(_ time.Duration) {}
	return e
}

const articlePage = `<!DOCTYPE html>
<html lang="ko">
<head>
<title>fallback title</title>
<meta property="og:title" content="부동산 시장 전망">
<meta name="keywords" content="부동산, 경제, 금리">
<meta property="article:published_time" content="2025-03-14T09:30:00Z">
</head>
<body>
<article>
<h1>부동산 시장 전망</h1>
<p>올해 부동산 시장은 금리 변동의 영향을 크게 받을 것으로 전망됩니다.</p>
<img src="https://img.example/chart.png" alt="가격 추이 차트">
<h2>전문가 분석</h2>
<p>전문가들은 하반기 공급 물량 확대가 가격 안정에 기여할 것으로 내다봤습니다.</p>
<p>짧은 문단</p>
</article>
</body>
</html>`

func TestExtractStructuralSections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	e := newTestExtractor(nil)
	article, err := e.Extract(context.Background(), srv.URL+"/news/1", "ko")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if article.Title != "부동산 시장 전망" {
		t.Fatalf("title = %q; want og:title value", article.Title)
	}
	if article.Language != "ko" {
		t.Fatalf("language = %q; want ko", article.Language)
	}
	if article.ID == "" || len(article.ID) != 16 {
		t.Fatalf("ID = %q; want 16-char hash", article.ID)
	}
	if article.DatePublished == nil || article.DatePublished.Year() != 2025 {
		t.Fatalf("date = %v; want parsed published time", article.DatePublished)
	}

	wantTypes := []string{
		types.SectionHeading,
		types.SectionText,
		types.SectionImage,
		types.SectionHeading,
		types.SectionText,
	}
	if len(article.Sections) != len(wantTypes) {
		t.Fatalf("got %d sections %+v; want %d", len(article.Sections), article.Sections, len(wantTypes))
	}
	for i, section := range article.Sections {
		if section.Type != wantTypes[i] {
			t.Fatalf("section[%d].Type = %q; want %q", i, section.Type, wantTypes[i])
		}
		if section.Order != i {
			t.Fatalf("section[%d].Order = %d; want %d", i, section.Order, i)
		}
	}
	if article.Sections[2].Caption != "가격 추이 차트" {
		t.Fatalf("image caption = %q", article.Sections[2].Caption)
	}

	// No completer configured, so topics come from meta keywords.
	if len(article.Topics) != 3 || article.Topics[0] != "부동산" {
		t.Fatalf("topics = %v; want meta keywords", article.Topics)
	}
	if article.Text == "" || !strings.Contains(article.Text, "금리 변동") {
		t.Fatalf("flattened text missing paragraph content: %q", article.Text)
	}
}

func TestExtractPlaceholderWhenPageEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html><head><title>Empty</title></head><body></body></html>`))
	}))
	defer srv.Close()

	e := newTestExtractor(nil)
	article, err := e.Extract(context.Background(), srv.URL, "en")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(article.Sections) != 1 {
		t.Fatalf("got %d sections; want 1 placeholder", len(article.Sections))
	}
	if article.Sections[0].Type != types.SectionText || article.Sections[0].Content != placeholderMsg {
		t.Fatalf("placeholder section = %+v", article.Sections[0])
	}
}

func TestExtractStatusErrorIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	e := newTestExtractor(nil)
	_, err := e.Extract(context.Background(), srv.URL, "en")
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if calls != 1 {
		t.Fatalf("server hit %d times; want 1", calls)
	}
}

func TestExtractRetriesTransientFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// Close the connection mid-response to force a read error.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("response writer does not support hijacking")
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	e := newTestExtractor(nil)
	e.policy = retry.Policy{MaxAttempts: 3, Sleep: func(time.Duration) {}}

	article, err := e.Extract(context.Background(), srv.URL, "ko")
	if err != nil {
		t.Fatalf("Extract after retry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("server hit %d times; want 2", calls)
	}
	if article.Title == "" {
		t.Fatal("retried fetch produced empty article")
	}
}

func TestStructuralSectionsResolvesRelativeImages(t *testing.T) {
	page := `<html><body><article>
<p>이 문단은 이미지 주변의 본문 내용을 담고 있습니다.</p>
<figure><img src="/images/chart.png"><figcaption>분기별 추이</figcaption></figure>
<script>var tracker = 1;</script>
</article></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatal(err)
	}

	sections := structuralSections(doc, "https://news.example.co.kr/story/5")
	if len(sections) != 2 {
		t.Fatalf("sections = %+v; want text + image", sections)
	}
	img := sections[1]
	if img.Content != "https://news.example.co.kr/images/chart.png" {
		t.Fatalf("image URL = %q; want it resolved against the page", img.Content)
	}
	if img.Caption != "분기별 추이" {
		t.Fatalf("caption = %q; want the figcaption text", img.Caption)
	}
}

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		name string
		html string
		url  string
		want string
	}{
		{"og locale", `<html><head><meta property="og:locale" content="ko_KR"></head></html>`, "https://example.com/a", "ko"},
		{"html lang", `<html lang="en-US"><head></head></html>`, "https://example.com/a", "en"},
		{"tld fallback", `<html><head></head></html>`, "https://news.naver.kr/a", "ko"},
		{"nothing", `<html><head></head></html>`, "https://example.com/a", ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(c.html))
			if err != nil {
				t.Fatal(err)
			}
			if got := detectLanguage(doc, c.url); got != c.want {
				t.Fatalf("detectLanguage = %q; want %q", got, c.want)
			}
		})
	}
}

func TestTopicsFallbackChain(t *testing.T) {
	e := &Extractor{}
	emptyDoc, _ := goquery.NewDocumentFromReader(strings.NewReader("<html></html>"))

	got := e.topics(context.Background(), emptyDoc, "Global markets rally after rate decision", "", "en")
	want := []string{"global", "markets", "rally", "after", "rate"}
	if len(got) != len(want) {
		t.Fatalf("title-word topics = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("topics[%d] = %q; want %q", i, got[i], want[i])
		}
	}

	got = e.topics(context.Background(), emptyDoc, "", "", "en")
	if len(got) != 2 || got[0] != "news" || got[1] != "article" {
		t.Fatalf("generic topics = %v; want [news article]", got)
	}
}

func TestTopicsPrefersLLM(t *testing.T) {
	e := &Extractor{completer: &fakeCompleter{response: `["경제", "부동산"]`}}
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(`<html><head><meta name="keywords" content="a,b"></head></html>`))
	body := strings.Repeat("부동산 시장에 대한 기사 본문입니다. ", 10)

	got := e.topics(context.Background(), doc, "제목", body, "ko")
	if len(got) != 2 || got[0] != "경제" || got[1] != "부동산" {
		t.Fatalf("topics = %v; want the LLM labels", got)
	}
}

func TestTopicsSkipsLLMForShortText(t *testing.T) {
	completer := &fakeCompleter{response: `["should", "not", "be", "used"]`}
	e := &Extractor{completer: completer}
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(`<html><head><meta name="keywords" content="economy"></head></html>`))

	got := e.topics(context.Background(), doc, "제목", "짧은 본문", "ko")
	if len(got) != 1 || got[0] != "economy" {
		t.Fatalf("topics = %v; short text must skip the model", got)
	}
}

func TestTopicsLLMGarbageFallsBackToKeywords(t *testing.T) {
	e := &Extractor{completer: &fakeCompleter{response: "not json"}}
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(`<html><head><meta name="keywords" content="economy, housing"></head></html>`))
	body := strings.Repeat("long article body about housing markets. ", 10)

	got := e.topics(context.Background(), doc, "제목", body, "ko")
	if len(got) != 2 || got[0] != "economy" {
		t.Fatalf("topics = %v; want meta keywords", got)
	}
}
