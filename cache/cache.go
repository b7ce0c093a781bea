package cache

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"
)

// DefaultTTL is how long a cached query result stays servable.
const DefaultTTL = 24 * time.Hour

// indexFile holds per-entry metadata so stats never have to decode every
// entry payload.
const indexFile = "index.json"

// Cache is a file-backed result cache keyed by (query, language). One entry
// is one JSON file; expiry is checked on read and stale files are removed
// then.
type Cache struct {
	dir string
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	index  map[string]indexEntry
	hits   int
	misses int
}

type envelope struct {
	Query     string          `json:"query"`
	Language  string          `json:"language"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	// Logs records how the cached result was produced, for later inspection
	// of the entry file.
	Logs []string `json:"logs"`
}

type indexEntry struct {
	Query        string    `json:"query"`
	Language     string    `json:"language"`
	Timestamp    time.Time `json:"timestamp"`
	ArticleCount int       `json:"article_count"`
}

// New opens (and creates if needed) a cache directory.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	c := &Cache{dir: dir, ttl: DefaultTTL, now: time.Now, index: map[string]indexEntry{}}
	c.loadIndex()
	return c, nil
}

// Key normalizes a (query, language) pair into a filesystem-safe cache key.
// Case and surrounding whitespace never cause distinct entries.
func Key(query, language string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(query)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_':
			b.WriteRune('_')
		}
	}
	key := strings.Trim(b.String(), "_")
	if key == "" {
		key = "query"
	}
	return strings.ToLower(strings.TrimSpace(language)) + "_" + key
}

// Get loads a fresh entry into out and reports whether one was found. An
// expired entry is deleted and reported as a miss.
func (c *Cache) Get(query, language string, out any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(query, language)
	path := filepath.Join(c.dir, key+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		c.misses++
		return false
	}

	var entry envelope
	if err := json.Unmarshal(raw, &entry); err != nil {
		log.Printf("Removing unreadable cache file %s: %v", path, err)
		c.removeEntry(key, path)
		c.misses++
		return false
	}
	if c.now().Sub(entry.Timestamp) > c.ttl {
		c.removeEntry(key, path)
		c.misses++
		return false
	}
	if err := json.Unmarshal(entry.Data, out); err != nil {
		log.Printf("Cache entry %s does not decode: %v", path, err)
		c.misses++
		return false
	}
	c.hits++
	return true
}

// Set stores value for the (query, language) pair, replacing any previous
// entry. logs describes the pipeline run that produced the value and is
// stored alongside it.
func (c *Cache) Set(query, language string, value any, logs []string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	entry := envelope{
		Query:     query,
		Language:  language,
		Timestamp: c.now().UTC(),
		Data:      data,
		Logs:      append([]string{}, logs...),
	}
	raw, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	key := Key(query, language)
	path := filepath.Join(c.dir, key+".json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write cache entry %s: %w", path, err)
	}

	c.index[key] = indexEntry{
		Query:        query,
		Language:     language,
		Timestamp:    entry.Timestamp,
		ArticleCount: countArticles(data),
	}
	c.saveIndex()
	return nil
}

// Clear removes every entry and returns how many were removed.
func (c *Cache) Clear() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	paths, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, path := range paths {
		if filepath.Base(path) == indexFile {
			continue
		}
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("remove cache entry %s: %w", path, err)
		}
		removed++
	}
	c.index = map[string]indexEntry{}
	c.saveIndex()
	return removed, nil
}

// Stats summarizes the cache contents. Hit and miss counts cover this
// process's lifetime only.
type Stats struct {
	Entries       int        `json:"entries"`
	TotalArticles int        `json:"total_articles"`
	SizeBytes     int64      `json:"size_bytes"`
	Hits          int        `json:"hits"`
	Misses        int        `json:"misses"`
	Oldest        *time.Time `json:"oldest,omitempty"`
	Newest        *time.Time `json:"newest,omitempty"`
}

// Stats walks the cache directory. Unreadable files count toward entries and
// size but not toward the timestamp range.
func (c *Cache) Stats() (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	paths, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Hits: c.hits, Misses: c.misses}
	for _, path := range paths {
		if filepath.Base(path) == indexFile {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		stats.Entries++
		stats.SizeBytes += info.Size()

		key := strings.TrimSuffix(filepath.Base(path), ".json")
		if meta, ok := c.index[key]; ok {
			stats.TotalArticles += meta.ArticleCount
			ts := meta.Timestamp
			if stats.Oldest == nil || ts.Before(*stats.Oldest) {
				stats.Oldest = &ts
			}
			if stats.Newest == nil || ts.After(*stats.Newest) {
				stats.Newest = &ts
			}
			continue
		}

		// Entries written before the index existed are decoded directly.
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry envelope
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		stats.TotalArticles += countArticles(entry.Data)
		ts := entry.Timestamp
		if stats.Oldest == nil || ts.Before(*stats.Oldest) {
			stats.Oldest = &ts
		}
		if stats.Newest == nil || ts.After(*stats.Newest) {
			stats.Newest = &ts
		}
	}
	return stats, nil
}

// countArticles reports how many articles a cached payload holds: the array
// length for list payloads, 1 for anything else.
func countArticles(data json.RawMessage) int {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return 1
	}
	return len(items)
}

// removeEntry deletes an entry file and its index record. Callers hold the
// lock.
func (c *Cache) removeEntry(key, path string) {
	os.Remove(path)
	if _, ok := c.index[key]; ok {
		delete(c.index, key)
		c.saveIndex()
	}
}

func (c *Cache) loadIndex() {
	raw, err := os.ReadFile(filepath.Join(c.dir, indexFile))
	if err != nil {
		return
	}
	if err := json.Unmarshal(raw, &c.index); err != nil {
		log.Printf("Ignoring unreadable cache index: %v", err)
		c.index = map[string]indexEntry{}
	}
}

func (c *Cache) saveIndex() {
	raw, err := json.MarshalIndent(c.index, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(c.dir, indexFile), raw, 0o644); err != nil {
		log.Printf("Could not write cache index: %v", err)
	}
}
