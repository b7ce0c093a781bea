package tags

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"

	"github.com/exsmiley/langread/llm"
	"github.com/exsmiley/langread/types"
)

const (
	// MaxPerArticle bounds how many tags one article can produce.
	MaxPerArticle = 8
	maxNameLength = 50
	// contentExcerptLen caps how much article text the generation prompt
	// carries.
	contentExcerptLen = 1500
)

// approvedCategories are canonical names activated without review.
var approvedCategories = map[string]bool{
	"news": true, "politics": true, "economy": true, "business": true,
	"technology": true, "science": true, "health": true, "sports": true,
	"entertainment": true, "culture": true, "education": true,
	"environment": true, "travel": true, "food": true, "fashion": true,
	"art": true, "music": true, "history": true, "society": true,
	"world": true, "finance": true, "weather": true,
}

// languageNames are also activated without review, so language filters work
// out of the box.
var languageNames = map[string]bool{
	"korean": true, "english": true, "japanese": true, "chinese": true,
	"spanish": true, "french": true, "german": true, "italian": true,
	"russian": true, "portuguese": true,
}

// Draft is a normalized tag candidate before store reconciliation.
type Draft struct {
	CanonicalName    string
	OriginalLanguage string
	// Translations maps language code to the tag's name in that language.
	Translations map[string]string
	AutoApproved bool
}

// Generator normalizes raw topic strings into canonical tag drafts. The
// canonical name is always lowercase English; non-English topics are
// batch-translated.
type Generator struct {
	completer llm.Completer
}

// NewGenerator builds a Generator. completer may be nil; non-English topics
// then keep their cleaned original form as the canonical name.
func NewGenerator(completer llm.Completer) *Generator {
	return &Generator{completer: completer}
}

// Generate asks the model for up to MaxPerArticle short tag strings in the
// article's language, instructing it to prefer the hinted existing tags when
// they fit. Returns nil when no completer is configured or the call fails;
// callers fall back to the article's extracted topics.
func (g *Generator) Generate(ctx context.Context, title, content, language string, existing []*types.Tag) []string {
	if g.completer == nil {
		return nil
	}

	excerpt := content
	if runes := []rune(excerpt); len(runes) > contentExcerptLen {
		excerpt = string(runes[:contentExcerptLen])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Suggest up to %d short tags in %s for this article.\n", MaxPerArticle, language)
	if hints := hintNames(existing, language); len(hints) > 0 {
		fmt.Fprintf(&b, "Prefer these existing tags whenever they apply: %s\n", strings.Join(hints, ", "))
	}
	fmt.Fprintf(&b, "\nTITLE: %s\n\nCONTENT:\n%s\n", title, excerpt)
	b.WriteString("\nRespond with ONLY the tags, one per line, no numbering.")

	raw, err := g.completer.Complete(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: b.String()}},
		Temperature: 0.2,
	})
	if err != nil {
		log.Printf("Tag generation failed, falling back to extracted topics: %v", err)
		return nil
	}

	var generated []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line == "" {
			continue
		}
		generated = append(generated, line)
		if len(generated) == MaxPerArticle {
			break
		}
	}
	return generated
}

// hintNames renders existing tags for the prompt, preferring each tag's name
// in the article's language when a translation is stored.
func hintNames(existing []*types.Tag, language string) []string {
	var names []string
	for _, tag := range existing {
		name := tag.CanonicalName
		if t, ok := tag.Translations[language]; ok && t != "" {
			name = t
		}
		names = append(names, name)
	}
	return names
}

// Drafts turns up to MaxPerArticle topics into deduplicated tag drafts.
func (g *Generator) Drafts(ctx context.Context, topics []string, language string) []Draft {
	cleaned := make([]string, 0, MaxPerArticle)
	for _, topic := range topics {
		name := Clean(topic)
		if name == "" {
			continue
		}
		cleaned = append(cleaned, name)
		if len(cleaned) == MaxPerArticle {
			break
		}
	}
	if len(cleaned) == 0 {
		return nil
	}

	canonical := cleaned
	if language != "en" {
		canonical = g.translateBatch(ctx, cleaned, language)
	}

	seen := make(map[string]bool, len(cleaned))
	drafts := make([]Draft, 0, len(cleaned))
	for i, name := range canonical {
		name = Clean(name)
		if name == "" {
			name = cleaned[i]
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		draft := Draft{
			CanonicalName:    name,
			OriginalLanguage: language,
			AutoApproved:     approvedCategories[name] || languageNames[name],
		}
		if language != "en" {
			draft.Translations = map[string]string{language: cleaned[i]}
		}
		drafts = append(drafts, draft)
	}
	return drafts
}

// translateBatch translates all names to English in one call, one name per
// response line. On a count mismatch the response is truncated or padded
// with the untranslated names so indexes still line up.
func (g *Generator) translateBatch(ctx context.Context, names []string, language string) []string {
	if g.completer == nil {
		return names
	}

	prompt := fmt.Sprintf(`Translate each tag from %s to English.
Respond with ONLY the translations, one per line, in the same order, no numbering.

TAGS:
%s`, language, strings.Join(names, "\n"))

	raw, err := g.completer.Complete(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
	})
	if err != nil {
		log.Printf("Tag translation failed, keeping original names: %v", err)
		return names
	}

	var translated []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		translated = append(translated, line)
	}

	if len(translated) > len(names) {
		translated = translated[:len(names)]
	}
	for len(translated) < len(names) {
		translated = append(translated, names[len(translated)])
	}
	return translated
}

// Clean normalizes a tag name: lowercase, spaces to underscores, letters,
// digits and underscores only, at most maxNameLength runes.
func Clean(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))

	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-':
			b.WriteRune('_')
		}
	}

	cleaned := strings.Trim(b.String(), "_")
	for strings.Contains(cleaned, "__") {
		cleaned = strings.ReplaceAll(cleaned, "__", "_")
	}
	if runes := []rune(cleaned); len(runes) > maxNameLength {
		cleaned = string(runes[:maxNameLength])
	}
	return cleaned
}
