package synthesis

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/exsmiley/langread/llm"
	"github.com/exsmiley/langread/types"
)

const (
	maxSourceArticles = 5
	sourceExcerptLen  = 2000
	maxVocabulary     = 10
)

// difficultyGuidelines steer vocabulary and sentence complexity per tier.
var difficultyGuidelines = map[types.Difficulty]string{
	types.DifficultyBeginner:     "Use very simple vocabulary and short sentences. Prefer the present tense. Target 300-500 words.",
	types.DifficultyIntermediate: "Use moderate vocabulary with some varied sentence structure. Target 500-800 words.",
	types.DifficultyAdvanced:     "Use sophisticated, natural vocabulary and complex sentence structure. Target 800-1200 words.",
}

// Synthesizer rewrites a group of source articles into one original learner
// article at a requested difficulty.
type Synthesizer struct {
	completer llm.Completer
	now       func() time.Time
}

// NewSynthesizer builds a Synthesizer. completer may be nil; every call then
// takes the deterministic assembly path.
func NewSynthesizer(completer llm.Completer) *Synthesizer {
	return &Synthesizer{completer: completer, now: time.Now}
}

// Synthesize produces one article about topic at the given difficulty from
// the source group. It never returns an error for model failures: a failed
// call or unparseable response falls back to deterministic assembly from the
// source texts, so bulk runs always make progress.
func (s *Synthesizer) Synthesize(ctx context.Context, sources []*types.ExtractedArticle, topic, language string, difficulty types.Difficulty) (*types.SynthesizedArticle, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("synthesize %q: no source articles", topic)
	}
	if len(sources) > maxSourceArticles {
		sources = sources[:maxSourceArticles]
	}

	article := &types.SynthesizedArticle{
		Language:    language,
		Difficulty:  difficulty,
		Topics:      unionTopics(topic, sources),
		DateCreated: s.now().UTC(),
	}
	for _, src := range sources {
		article.SourceArticleRefs = append(article.SourceArticleRefs, src.ID)
	}

	if s.completer != nil {
		raw, err := s.completer.Complete(ctx, llm.Request{
			Messages: []llm.Message{
				{Role: "system", Content: systemPrompt(language, difficulty)},
				{Role: "user", Content: userPrompt(sources, topic, language, difficulty)},
			},
			Temperature: 0.7,
		})
		if err != nil {
			log.Printf("Synthesis call failed for %q (%s): %v", topic, difficulty, err)
		} else if parsed := Parse(raw); parsed.OK {
			article.Title = parsed.Title
			article.Sections = parsed.Sections
			if len(parsed.Vocabulary) > maxVocabulary {
				parsed.Vocabulary = parsed.Vocabulary[:maxVocabulary]
			}
			article.KeyVocabulary = parsed.Vocabulary
			return article, nil
		} else {
			log.Printf("Could not parse synthesis response for %q (%s), assembling fallback", topic, difficulty)
		}
	}

	title, sections := assembleFallback(sources, topic, difficulty)
	article.Title = title
	article.Sections = sections
	article.KeyVocabulary = []types.VocabularyItem{}
	return article, nil
}

func systemPrompt(language string, difficulty types.Difficulty) string {
	return fmt.Sprintf(`You are a language-learning content writer. You write original news articles in %s for learners at the %s level, synthesizing information from several source articles without copying their sentences.`, language, difficulty)
}

func userPrompt(sources []*types.ExtractedArticle, topic, language string, difficulty types.Difficulty) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write one original article in %s about %q for a %s-level learner.\n", language, topic, difficulty)
	fmt.Fprintf(&b, "%s\n\nSOURCE ARTICLES:\n", difficultyGuidelines[difficulty])

	for i, src := range sources {
		excerpt := src.Text
		if runes := []rune(excerpt); len(runes) > sourceExcerptLen {
			excerpt = string(runes[:sourceExcerptLen])
		}
		fmt.Fprintf(&b, "\n[%d] %s\n%s\n", i+1, src.Title, excerpt)
	}

	fmt.Fprintf(&b, `
Respond in EXACTLY this format:

TITLE: <article title in %s>

CONTENT:
<the article, paragraphs separated by blank lines>

KEY_VOCABULARY:
<up to %d lines of "word: short definition in %s">
`, language, maxVocabulary, language)
	return b.String()
}

// unionTopics merges the requested topic with every source's topics, deduped
// in first-seen order.
func unionTopics(topic string, sources []*types.ExtractedArticle) []string {
	seen := map[string]bool{}
	var topics []string
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		topics = append(topics, t)
	}
	add(topic)
	for _, src := range sources {
		for _, t := range src.Topics {
			add(t)
		}
	}
	return topics
}

// assembleFallback builds a readable article directly from the source texts,
// labeled per source, when no model output is usable.
func assembleFallback(sources []*types.ExtractedArticle, topic string, difficulty types.Difficulty) (string, []types.ContentSection) {
	title := fmt.Sprintf("%s (%s)", topic, difficulty)

	sections := []types.ContentSection{{
		Type:    types.SectionText,
		Content: "This article combines reporting from several sources.",
		Order:   0,
	}}
	order := 1
	for _, src := range sources {
		sections = append(sections, types.ContentSection{Type: types.SectionHeading, Content: src.Title, Order: order})
		order++
		paragraphs := strings.Split(src.Text, "\n\n")
		if len(paragraphs) > 3 {
			paragraphs = paragraphs[:3]
		}
		for _, p := range paragraphs {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			sections = append(sections, types.ContentSection{Type: types.SectionText, Content: p, Order: order})
			order++
		}
	}
	return title, sections
}
