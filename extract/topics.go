package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/exsmiley/langread/llm"
)

const (
	maxTopics       = 5
	topicExcerptLen = 1000
	minTextForLLM   = 100
)

// tldLanguages maps country-code domains to the language most likely served
// there. Used only when the page declares nothing.
var tldLanguages = map[string]string{
	".kr": "ko",
	".jp": "ja",
	".cn": "zh",
	".fr": "fr",
	".de": "de",
	".es": "es",
	".it": "it",
	".ru": "ru",
}

// detectLanguage resolves the page language from declared metadata first,
// then the html lang attribute, then the source domain. Returns "" when
// nothing is conclusive.
func detectLanguage(doc *goquery.Document, rawURL string) string {
	if v, ok := doc.Find(`meta[property="og:locale"]`).Attr("content"); ok {
		if code := normalizeLang(v); code != "" {
			return code
		}
	}
	if v, ok := doc.Find(`meta[http-equiv="content-language"]`).Attr("content"); ok {
		if code := normalizeLang(v); code != "" {
			return code
		}
	}
	if v, ok := doc.Find("html").Attr("lang"); ok {
		if code := normalizeLang(v); code != "" {
			return code
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		host := u.Hostname()
		for tld, lang := range tldLanguages {
			if strings.HasSuffix(host, tld) {
				return lang
			}
		}
	}
	return ""
}

// normalizeLang reduces locale strings like "ko_KR" or "en-US" to a
// two-letter code.
func normalizeLang(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return ""
	}
	for _, sep := range []string{"_", "-", ","} {
		if i := strings.Index(v, sep); i > 0 {
			v = v[:i]
		}
	}
	if len(v) < 2 {
		return ""
	}
	return v[:2]
}

// topics labels the article with up to maxTopics topic strings. The LLM path
// is preferred; failures fall back to meta keywords, then to significant
// title words, then to generic labels so the list is never empty.
func (e *Extractor) topics(ctx context.Context, doc *goquery.Document, title, text, language string) []string {
	if e.completer != nil && len([]rune(text)) > minTextForLLM {
		if found := e.llmTopics(ctx, title, text, language); len(found) > 0 {
			return found
		}
	}
	if found := metaKeywords(doc); len(found) > 0 {
		return found
	}
	if found := titleWords(title); len(found) > 0 {
		return found
	}
	return []string{"news", "article"}
}

func (e *Extractor) llmTopics(ctx context.Context, title, text, language string) []string {
	excerpt := text
	if runes := []rune(excerpt); len(runes) > topicExcerptLen {
		excerpt = string(runes[:topicExcerptLen])
	}
	prompt := fmt.Sprintf(`Identify the main topics of this article in its own language (%s).

TITLE: %s

CONTENT:
%s

Respond with ONLY a JSON array of 2 to %d short topic strings in %s.
Example: ["경제", "부동산"]`, language, title, excerpt, maxTopics, language)

	raw, err := e.completer.Complete(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0.2,
	})
	if err != nil {
		log.Printf("LLM topic labeling failed: %v", err)
		return nil
	}

	var topics []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &topics); err != nil {
		log.Printf("Could not parse LLM topics: %v", err)
		return nil
	}
	cleaned := make([]string, 0, len(topics))
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		cleaned = append(cleaned, topic)
		if len(cleaned) == maxTopics {
			break
		}
	}
	return cleaned
}

func metaKeywords(doc *goquery.Document) []string {
	raw, ok := doc.Find(`meta[name="keywords"]`).Attr("content")
	if !ok {
		return nil
	}
	var topics []string
	for _, kw := range strings.Split(raw, ",") {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		topics = append(topics, kw)
		if len(topics) == maxTopics {
			break
		}
	}
	return topics
}

// titleWords keeps words of four or more characters as crude topic labels.
func titleWords(title string) []string {
	var topics []string
	for _, word := range strings.Fields(title) {
		word = strings.Trim(word, `.,:;!?"'()[]`)
		if len([]rune(word)) < 4 {
			continue
		}
		topics = append(topics, strings.ToLower(word))
		if len(topics) == maxTopics {
			break
		}
	}
	return topics
}
