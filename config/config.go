package config

import "os"

// FeedRegistry maps language codes to the RSS/Atom feeds scanned during
// discovery. Korean technology sources come first so tech queries hit them
// before the general news feeds.
var FeedRegistry = map[string][]string{
	"ko": {
		"https://www.etnews.com/rss/rss.xml",
		"https://feeds.feedburner.com/bloter",
		"https://www.itworld.co.kr/rss/feed/idx/5",
		"https://rss.zdnet.co.kr/section/news.xml",
		"https://feeds.feedburner.com/venturesquare",
		"https://www.aitimes.com/rss/allArticle.xml",
		"https://www.chosun.com/arc/outboundfeeds/rss/?outputType=xml",
		"https://www.hani.co.kr/rss/",
		"https://www.khan.co.kr/rss/rssdata/total_news.xml",
		"https://www.ytn.co.kr/feed/index.php",
		"https://rss.donga.com/total.xml",
		"https://www.mk.co.kr/rss/40300001/",
	},
	"en": {
		"https://rss.nytimes.com/services/xml/rss/nyt/World.xml",
		"https://feeds.bbci.co.uk/news/world/rss.xml",
		"https://www.theguardian.com/world/rss",
		"https://feeds.washingtonpost.com/rss/world",
	},
}

// DefaultSource is a hard-coded landing page returned when discovery finds
// nothing, so a supported language never yields an empty result.
type DefaultSource struct {
	URL  string
	Name string
}

// DefaultSources maps language codes to fallback landing pages.
var DefaultSources = map[string][]DefaultSource{
	"ko": {
		{URL: "https://www.chosun.com", Name: "조선일보"},
		{URL: "https://www.hani.co.kr", Name: "한겨레"},
	},
	"en": {
		{URL: "https://www.bbc.com/news/world", Name: "BBC World News"},
		{URL: "https://www.nytimes.com/section/world", Name: "New York Times World News"},
	},
}

// FeedsFor resolves the feed list for a language, falling back to English.
func FeedsFor(language string) []string {
	if feeds, ok := FeedRegistry[language]; ok {
		return feeds
	}
	return FeedRegistry["en"]
}

// DefaultSourcesFor resolves the fallback sources for a language, falling
// back to English.
func DefaultSourcesFor(language string) []DefaultSource {
	if sources, ok := DefaultSources[language]; ok {
		return sources
	}
	return DefaultSources["en"]
}

// BulkLanguages returns the languages processed when a bulk operation is
// requested for "all".
func BulkLanguages() []string {
	return []string{"ko", "en"}
}

// DefaultModel is the completion model used when OPENAI_MODEL is not set.
const DefaultModel = "gpt-4.1-nano"

// GetEnvOrDefault returns the environment variable value or a fallback.
func GetEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
