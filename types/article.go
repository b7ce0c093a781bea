package types

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
)

// Difficulty controls the vocabulary and sentence complexity of a
// synthesized article.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Difficulties returns all levels in rewriting order.
func Difficulties() []Difficulty {
	return []Difficulty{DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced}
}

// ParseDifficulty validates a difficulty string, defaulting empty input to
// intermediate.
func ParseDifficulty(s string) (Difficulty, bool) {
	switch Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case DifficultyBeginner:
		return DifficultyBeginner, true
	case DifficultyIntermediate, "":
		return DifficultyIntermediate, true
	case DifficultyAdvanced:
		return DifficultyAdvanced, true
	}
	return "", false
}

// Content section types.
const (
	SectionHeading = "heading"
	SectionText    = "text"
	SectionImage   = "image"
)

// SourceResult is a discovered candidate document with a relevance score,
// prior to extraction. Unique by URL within one discovery call.
type SourceResult struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Snippet   string  `json:"snippet"`
	Relevance float64 `json:"relevance"`
}

// ContentSection is one ordered unit of an article body. Order values are
// unique and strictly increasing from 0 within an article.
type ContentSection struct {
	Type    string `json:"type" bson:"type"`
	Content string `json:"content" bson:"content"`
	Caption string `json:"caption,omitempty" bson:"caption,omitempty"`
	Order   int    `json:"order" bson:"order"`
}

// ToPlain converts the section to a plain serializable map.
func (s ContentSection) ToPlain() map[string]any {
	m := map[string]any{
		"type":    s.Type,
		"content": s.Content,
		"order":   s.Order,
	}
	if s.Caption != "" {
		m["caption"] = s.Caption
	}
	return m
}

// ExtractedArticle is the structured representation of one fetched document.
// URL is the natural key; the record is immutable after creation except for
// the Rewritten flag, set once synthesis has consumed it.
type ExtractedArticle struct {
	ID            string           `json:"id" bson:"_id"`
	Title         string           `json:"title" bson:"title"`
	URL           string           `json:"url" bson:"url"`
	Source        string           `json:"source" bson:"source"`
	Language      string           `json:"language" bson:"language"`
	DatePublished *time.Time       `json:"date_published,omitempty" bson:"date_published,omitempty"`
	Sections      []ContentSection `json:"sections" bson:"sections"`
	Topics        []string         `json:"topics" bson:"topics"`
	Text          string           `json:"text" bson:"text"`
	Rewritten     bool             `json:"rewritten" bson:"rewritten"`
}

// NewExtractedArticle normalizes raw extraction output into a fully populated
// record: the ID is derived from the URL, the source falls back to the URL
// host, and Text is flattened from the sections when the extractor produced
// none.
func NewExtractedArticle(title, rawURL, source, language string, published *time.Time, sections []ContentSection, topics []string, text string) *ExtractedArticle {
	if source == "" {
		source = HostOf(rawURL)
	}
	if text == "" {
		text = FlattenSections(sections)
	}
	if topics == nil {
		topics = []string{}
	}
	if sections == nil {
		sections = []ContentSection{}
	}
	return &ExtractedArticle{
		ID:            GenerateID(rawURL),
		Title:         title,
		URL:           rawURL,
		Source:        source,
		Language:      language,
		DatePublished: published,
		Sections:      sections,
		Topics:        topics,
		Text:          text,
	}
}

// ToPlain converts the article to a plain serializable map.
func (a *ExtractedArticle) ToPlain() map[string]any {
	sections := make([]map[string]any, 0, len(a.Sections))
	for _, s := range a.Sections {
		sections = append(sections, s.ToPlain())
	}
	m := map[string]any{
		"id":       a.ID,
		"title":    a.Title,
		"url":      a.URL,
		"source":   a.Source,
		"language": a.Language,
		"sections": sections,
		"topics":   append([]string{}, a.Topics...),
		"text":     a.Text,
	}
	if a.DatePublished != nil {
		m["date_published"] = a.DatePublished.Format(time.RFC3339)
	}
	return m
}

// VocabularyItem is one highlighted word with its learner-facing definition.
type VocabularyItem struct {
	Word       string `json:"word" bson:"word"`
	Definition string `json:"definition" bson:"definition"`
}

// SynthesizedArticle is a difficulty-leveled article generated from one or
// more source articles. Immutable once created; never updated in place.
type SynthesizedArticle struct {
	Title             string           `json:"title" bson:"title"`
	Language          string           `json:"language" bson:"language"`
	Difficulty        Difficulty       `json:"difficulty" bson:"difficulty"`
	Sections          []ContentSection `json:"sections" bson:"sections"`
	Topics            []string         `json:"topics" bson:"topics"`
	SourceArticleRefs []string         `json:"source_articles" bson:"source_articles"`
	TagIDs            []string         `json:"tag_ids" bson:"tag_ids"`
	KeyVocabulary     []VocabularyItem `json:"key_vocabulary" bson:"key_vocabulary"`
	DateCreated       time.Time        `json:"date_created" bson:"date_created"`
}

// ToPlain converts the article to a plain serializable map.
func (a *SynthesizedArticle) ToPlain() map[string]any {
	sections := make([]map[string]any, 0, len(a.Sections))
	for _, s := range a.Sections {
		sections = append(sections, s.ToPlain())
	}
	vocab := make([]map[string]any, 0, len(a.KeyVocabulary))
	for _, v := range a.KeyVocabulary {
		vocab = append(vocab, map[string]any{"word": v.Word, "definition": v.Definition})
	}
	return map[string]any{
		"title":           a.Title,
		"language":        a.Language,
		"difficulty":      string(a.Difficulty),
		"sections":        sections,
		"topics":          append([]string{}, a.Topics...),
		"source_articles": append([]string{}, a.SourceArticleRefs...),
		"tag_ids":         append([]string{}, a.TagIDs...),
		"key_vocabulary":  vocab,
		"date_created":    a.DateCreated.Format(time.RFC3339),
	}
}

// GenerateID creates a short, stable ID by hashing the provided string input.
func GenerateID(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}

// HostOf returns the host of a URL without a leading "www.", or "" if the
// URL does not parse.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}

// FlattenSections joins the text of heading and text sections into one
// blank-line-separated string, skipping image references.
func FlattenSections(sections []ContentSection) string {
	var b strings.Builder
	for _, s := range sections {
		if s.Type == SectionImage || s.Content == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(s.Content)
	}
	return b.String()
}
