package types

// Tag is a canonical, cross-language category label associated with
// articles. CanonicalName (lowercase English) is the natural key; synonymous
// tags created later are merged into the existing record rather than
// duplicated.
type Tag struct {
	ID               string            `json:"id" bson:"_id"`
	CanonicalName    string            `json:"name" bson:"name"`
	Translations     map[string]string `json:"translations" bson:"translations"`
	OriginalLanguage string            `json:"original_language" bson:"original_language"`
	Active           bool              `json:"active" bson:"active"`
	AutoApproved     bool              `json:"auto_approved" bson:"auto_approved"`
	ArticleCount     int               `json:"article_count" bson:"article_count"`
	ArticleRefs      []string          `json:"article_refs,omitempty" bson:"article_refs,omitempty"`
}

// LocalizedName returns the tag's name in the given language when a
// translation exists, falling back to the canonical English name.
func (t *Tag) LocalizedName(language string) string {
	if language != "en" && t.Translations != nil {
		if name, ok := t.Translations[language]; ok && name != "" {
			return name
		}
	}
	return t.CanonicalName
}
