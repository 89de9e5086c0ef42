// Package lastfm implements the time-bounded similar-artist lookup cache,
// ported from lastfm.py's SimilairArtists. The upstream HTTP/XML lookup
// itself is delegated to github.com/shkh/lastfm-go/lastfm, a real last.fm
// client pinned as a dependency of go-musicfox in the retrieval pack;
// this package retains the cache/TTL/persistence/retry behavior the
// original hand-rolled around its own urllib calls.
package lastfm

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shkh/lastfm-go/lastfm"
	log "github.com/sirupsen/logrus"
)

// TTL is how long a cached similar-artist list is considered fresh.
const TTL = 4 * 7 * 24 * time.Hour

const persistentFile = "lastfm.pickle"

// defaultAPIKey is used when NewCache is given no key. It is empty: no
// key is embedded here, so lookups carry no API key unless the caller
// passes one.
const defaultAPIKey = ""

type entry struct {
	Timestamp int64    `json:"timestamp"`
	Artists   []string `json:"artists"`
}

// Cache resolves artists to their similar artists, backed by a persistent
// on-disk table in persistentDir.
type Cache struct {
	api            *lastfm.Api
	persistentPath string

	mu    sync.Mutex
	known map[string]entry

	retries int
	backoff time.Duration
}

// NewCache constructs a Cache persisting to persistentDir/lastfm.pickle
// (still JSON on disk despite the filename, per the spec's "stable file"
// wording) and querying last.fm with apiKey/apiSecret.
func NewCache(persistentDir, apiKey, apiSecret string) *Cache {
	if apiKey == "" {
		apiKey = defaultAPIKey
	}
	c := &Cache{
		api:            lastfm.New(apiKey, apiSecret),
		persistentPath: filepath.Join(persistentDir, persistentFile),
		known:          map[string]entry{},
		retries:        3,
		backoff:        time.Second,
	}
	c.load()
	return c
}

func (c *Cache) load() {
	data, err := os.ReadFile(c.persistentPath)
	if err != nil {
		return
	}
	var known map[string]entry
	if err := json.Unmarshal(data, &known); err != nil {
		log.WithError(err).WithField("path", c.persistentPath).Warn("corrupt similar-artist cache, starting empty")
		os.Remove(c.persistentPath)
		return
	}
	c.known = known
}

func (c *Cache) store() {
	data, err := json.Marshal(c.known)
	if err != nil {
		log.WithError(err).Error("failed to marshal similar-artist cache")
		return
	}
	if err := os.WriteFile(c.persistentPath, data, 0o644); err != nil {
		log.WithError(err).WithField("path", c.persistentPath).Error("failed to persist similar-artist cache")
	}
}

// Similar returns the artists last.fm considers related to artist, in the
// order the upstream returned them. A fresh cache hit is returned
// immediately; otherwise the upstream is queried, with retries, and the
// cache refreshed and flushed to disk on success. On exhaustion, whatever
// (possibly stale) entry the cache holds is returned, or an empty list.
func (c *Cache) Similar(artist string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.known[artist]; ok && time.Since(time.Unix(e.Timestamp, 0)) < TTL {
		return e.Artists, nil
	}

	var names []string
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		result, err := c.api.Artist.GetSimilar(lastfm.P{"artist": artist, "format": "xml"})
		if err != nil {
			lastErr = err
			time.Sleep(c.backoff)
			continue
		}
		rawNames := make([]string, 0, len(result.Similars))
		for _, a := range result.Similars {
			rawNames = append(rawNames, a.Name)
		}
		names = cleanNames(rawNames)
		c.known[artist] = entry{Timestamp: time.Now().Unix(), Artists: names}
		c.store()
		lastErr = nil
		break
	}

	if lastErr != nil {
		if e, ok := c.known[artist]; ok {
			return e.Artists, nil
		}
		return nil, nil
	}
	return names, nil
}

// cleanNames applies the same normalization lastfm.py applied by hand
// after unescaping each <name> element: stray literal "&amp;" left over
// from double-escaped feeds is unescaped, and embedded newlines are
// stripped. The XML decoder already handles standard entity decoding.
// It takes plain names rather than the library's result type so it
// doesn't need to match the anonymous struct type ArtistGetSimilar.Similars
// elements carry.
func cleanNames(rawNames []string) []string {
	seen := map[string]struct{}{}
	names := make([]string, 0, len(rawNames))
	for _, raw := range rawNames {
		name := strings.ReplaceAll(raw, "&amp;", "&")
		name = strings.ReplaceAll(name, "\n", "")
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
