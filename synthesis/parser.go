package synthesis

import (
	"strings"

	"github.com/exsmiley/langread/types"
)

// Markers the model is instructed to emit. Parsing is line-oriented so a
// missing or reordered marker degrades to a partial result instead of an
// error.
const (
	markerTitle      = "TITLE:"
	markerContent    = "CONTENT:"
	markerVocabulary = "KEY_VOCABULARY:"
)

// ParseResult is the outcome of parsing one model response. OK is true only
// when a title and at least one content section were recovered; callers fall
// back to deterministic assembly otherwise.
type ParseResult struct {
	OK         bool
	Title      string
	Sections   []types.ContentSection
	Vocabulary []types.VocabularyItem
}

// Parse walks the response line by line through the marker sections.
func Parse(response string) ParseResult {
	var result ParseResult
	var contentLines []string

	state := ""
	for _, line := range strings.Split(response, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, markerTitle):
			state = "title"
			if rest := strings.TrimSpace(strings.TrimPrefix(trimmed, markerTitle)); rest != "" {
				result.Title = rest
				state = ""
			}
		case strings.HasPrefix(trimmed, markerContent):
			state = "content"
		case strings.HasPrefix(trimmed, markerVocabulary):
			state = "vocabulary"
		case state == "title":
			if trimmed != "" {
				result.Title = trimmed
				state = ""
			}
		case state == "content":
			contentLines = append(contentLines, line)
		case state == "vocabulary":
			if item, ok := parseVocabularyLine(trimmed); ok {
				result.Vocabulary = append(result.Vocabulary, item)
			}
		}
	}

	result.Sections = sectionsFromContent(strings.Join(contentLines, "\n"))
	result.OK = result.Title != "" && len(result.Sections) > 0
	return result
}

// sectionsFromContent splits content on blank lines into ordered sections.
// Markdown "#" lines and setext "===" underlines become heading sections.
func sectionsFromContent(content string) []types.ContentSection {
	var sections []types.ContentSection
	order := 0
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		sectionType := types.SectionText
		switch {
		case strings.HasPrefix(block, "#"):
			sectionType = types.SectionHeading
			block = strings.TrimSpace(strings.TrimLeft(block, "# "))
		case isUnderlinedHeading(block):
			sectionType = types.SectionHeading
			block = strings.TrimSpace(block[:strings.Index(block, "\n")])
		}
		if block == "" {
			continue
		}
		sections = append(sections, types.ContentSection{Type: sectionType, Content: block, Order: order})
		order++
	}
	return sections
}

// isUnderlinedHeading reports whether the block is a single line underlined
// with "===" or "---".
func isUnderlinedHeading(block string) bool {
	lines := strings.Split(block, "\n")
	if len(lines) != 2 {
		return false
	}
	underline := strings.TrimSpace(lines[1])
	if len(underline) < 3 {
		return false
	}
	for _, r := range underline {
		if r != '=' && r != '-' {
			return false
		}
	}
	return true
}

// parseVocabularyLine reads "word: definition" lines, tolerating leading
// list bullets. Lines without a definition are dropped.
func parseVocabularyLine(line string) (types.VocabularyItem, bool) {
	line = strings.TrimLeft(line, "-*0123456789. ")
	word, definition, found := strings.Cut(line, ":")
	if !found {
		return types.VocabularyItem{}, false
	}
	word = strings.TrimSpace(word)
	definition = strings.TrimSpace(definition)
	if word == "" || definition == "" {
		return types.VocabularyItem{}, false
	}
	return types.VocabularyItem{Word: word, Definition: definition}, true
}
