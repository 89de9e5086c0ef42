package rules

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Querier issues an MPD command and returns the values of the named
// key across the reply's "key: value" lines, in document order. It
// mirrors MPD.query() in the original cantatadyn.py.
type Querier interface {
	Query(command, key string) ([]string, error)
}

// SimilarArtistLookup resolves an artist to a list of related artist
// names, ordered as returned by the upstream service.
type SimilarArtistLookup interface {
	Similar(artist string) ([]string, error)
}

// Engine owns the active rule file and the last CompiledRules snapshot
// produced from it.
type Engine struct {
	Dir        string
	ActiveLink string
	Querier    Querier
	Similar    SimilarArtistLookup

	mu           sync.Mutex
	current      CompiledRules
	previous     CompiledRules
	changed      bool
	initialRead  bool
	lastMtime    time.Time
	lastTarget   string
}

// NewEngine constructs an Engine reading rule files from dir, following
// the activeLink symlink.
func NewEngine(dir, activeLink string, querier Querier, similar SimilarArtistLookup) *Engine {
	return &Engine{
		Dir:         dir,
		ActiveLink:  activeLink,
		Querier:     querier,
		Similar:     similar,
		current:     newCompiledRules(),
		previous:    newCompiledRules(),
		initialRead: true,
	}
}

// Current returns the last successfully compiled snapshot.
func (e *Engine) Current() CompiledRules {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// ConsumeChanged returns whether the rules changed since the last call to
// ConsumeChanged, resetting the flag. The Dynamizer calls this once per
// iteration to decide whether the candidate pool needs recomputing.
func (e *Engine) ConsumeChanged() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	changed := e.changed
	e.changed = false
	return changed
}

// Read re-parses the active rule file if its target or mtime changed
// since the last read. A missing file clears the pending "changed" signal
// (without touching the previously compiled rules) and is not an error.
func (e *Engine) Read() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := os.Stat(e.ActiveLink); err != nil {
		e.changed = false
		return nil
	}

	target, err := os.Readlink(e.ActiveLink)
	if err != nil {
		target = e.ActiveLink
	}
	info, err := os.Stat(e.ActiveLink)
	if err != nil {
		e.changed = false
		return nil
	}

	if !e.initialRead && info.ModTime().Equal(e.lastMtime) && target == e.lastTarget {
		e.changed = false
		return nil
	}
	e.initialRead = false
	e.lastMtime = info.ModTime()
	e.lastTarget = target

	f, err := os.Open(e.ActiveLink)
	if err != nil {
		e.changed = false
		return nil
	}
	defer f.Close()

	compiled, err := e.parse(f)
	if err != nil {
		return err
	}

	if !compiled.Equal(e.previous) {
		e.changed = true
		e.previous = compiled
	}
	e.current = compiled
	return nil
}

type ruleState struct {
	ruleMatch   string
	currentRule string
	dates       []int
	artists     []string
	genres      []string
	isInclude   bool
}

func freshRuleState() ruleState {
	return ruleState{ruleMatch: "find", isInclude: true}
}

func (s ruleState) hasContent() bool {
	return s.currentRule != "" || len(s.artists) > 0 || len(s.dates) > 0 || len(s.genres) > 0
}

type ruleSet struct {
	items []string
	seen  map[string]struct{}
}

func (r *ruleSet) add(s string) {
	if r.seen == nil {
		r.seen = map[string]struct{}{}
	}
	if _, ok := r.seen[s]; ok {
		return
	}
	r.seen[s] = struct{}{}
	r.items = append(r.items, s)
}

func (e *Engine) parse(f *os.File) (CompiledRules, error) {
	c := newCompiledRules()
	var include, exclude ruleSet
	var maxAge int64

	state := freshRuleState()

	flush := func(s ruleState) {
		if s.hasContent() {
			e.saveRule(&include, &exclude, s, maxAge)
		}
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(line, "#") {
			continue
		}
		key, val, hasVal := splitKeyVal(line)
		_ = hasVal

		switch {
		case strings.HasPrefix(key, "Rule"):
			flush(state)
			state = freshRuleState()

		case strings.HasPrefix(key, "Rating"):
			if r, ok := ParseRange(val); ok {
				if r.Min == 0 && r.Max == 10 {
					r.Max = 0
				}
				c.Rating = r
			}

		case strings.HasPrefix(key, "IncludeUnrated"):
			if val != "" {
				c.IncludeUnrated = val == "true"
			}

		case strings.HasPrefix(key, "Duration"):
			if r, ok := ParseRange(val); ok {
				c.Duration = r
			}

		case strings.HasPrefix(key, "NumTracks"):
			if n, err := strconv.Atoi(val); err == nil && QueueLengthRange.Contains(n) {
				if n%2 != 0 {
					n++
				}
				c.DesiredQueueLength = n
			}

		case strings.HasPrefix(key, "MaxAge"):
			if days, err := strconv.Atoi(val); err == nil && days > 0 {
				maxAge = time.Now().Unix() - int64(days)*86400
			}

		case key == "Date":
			state.dates = parseDates(val)

		case key == "Genre" && strings.Contains(val, "*"):
			stem := strings.ToLower(strings.ReplaceAll(val, "*", ""))
			var matched []string
			if e.Querier != nil {
				if genres, err := e.Querier.Query("list genre", "Genre"); err == nil {
					for _, g := range genres {
						if g != "" && strings.HasPrefix(strings.ToLower(g), stem) {
							matched = append(matched, g)
						}
					}
				}
			}
			if len(matched) == 0 {
				matched = []string{"XXXXXXXX"}
			}
			state.genres = append(state.genres, matched...)

		case isTagKey(key):
			state.currentRule = fmt.Sprintf(`%s %s "%s"`, state.currentRule, key, val)

		case key == "SimilarArtists":
			state.artists = append(state.artists, e.expandSimilarArtists(val)...)

		case key == "Exact" && val == "false":
			state.ruleMatch = "search"

		case key == "Exclude" && val == "true":
			state.isInclude = false
		}
	}
	if err := scanner.Err(); err != nil {
		return c, err
	}

	if state.hasContent() {
		e.saveRule(&include, &exclude, state, maxAge)
	} else if maxAge > 0 && len(include.items) == 0 {
		synthetic := freshRuleState()
		e.saveRule(&include, &exclude, synthetic, maxAge)
	}

	c.Include = include.items
	c.Exclude = exclude.items
	c.MaxAgeCutoff = maxAge
	return c, nil
}

func splitKeyVal(line string) (key, val string, hasVal bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return line, "", false
	}
	return line[:idx], line[idx+1:], true
}

func isTagKey(key string) bool {
	switch key {
	case "Artist", "Album", "AlbumArtist", "Composer", "Comment", "Title", "Genre", "File":
		return true
	}
	return false
}

func parseDates(val string) []int {
	parts := strings.SplitN(val, "-", 2)
	if len(parts) == 2 {
		from, err1 := strconv.Atoi(parts[0])
		to, err2 := strconv.Atoi(parts[1])
		if err1 == nil && err2 == nil {
			if from > to {
				from, to = to, from
			}
			dates := make([]int, 0, to-from+1)
			for d := from; d <= to; d++ {
				dates = append(dates, d)
			}
			return dates
		}
	}
	if n, err := strconv.Atoi(val); err == nil {
		return []int{n}
	}
	return nil
}

func (e *Engine) expandSimilarArtists(artist string) []string {
	var out ruleSet
	if e.Similar != nil {
		if found, err := e.Similar.Similar(artist); err == nil && len(found) > 1 && e.Querier != nil {
			if mpdArtists, err := e.Querier.Query("list artist", "Artist"); err == nil {
				for _, a := range found {
					for _, mpdArtist := range mpdArtists {
						if mpdArtist != "" && mpdArtist != artist &&
							strings.EqualFold(a, mpdArtist) {
							out.add(a)
						}
					}
				}
			}
		}
	}
	out.add(artist)
	return out.items
}

// saveRule emits one MPD query string per (date x artist x genre) and adds
// it to the include or exclude set.
func (e *Engine) saveRule(include, exclude *ruleSet, s ruleState, maxAge int64) {
	ref := include
	if !s.isInclude {
		ref = exclude
	}

	artists := s.artists
	if len(artists) == 0 {
		artists = []string{""}
	}
	genres := s.genres
	if len(genres) == 0 {
		genres = []string{""}
	}

	for _, genre := range genres {
		for _, artist := range artists {
			if len(s.dates) > 0 {
				for _, date := range s.dates {
					text := s.ruleMatch + s.currentRule
					text += fmt.Sprintf(` Date "%d"`, date)
					if artist != "" {
						text += fmt.Sprintf(` Artist "%s"`, artist)
					}
					if genre != "" {
						text += fmt.Sprintf(` Genre "%s"`, genre)
					}
					if s.isInclude && maxAge > 0 {
						text += fmt.Sprintf(" modified-since %d", maxAge)
					}
					ref.add(text)
				}
			} else if artist != "" || genre != "" || s.currentRule != "" || (s.isInclude && maxAge > 0) {
				text := s.ruleMatch + s.currentRule
				if artist != "" {
					text += fmt.Sprintf(` Artist "%s"`, artist)
				}
				if genre != "" {
					text += fmt.Sprintf(` Genre "%s"`, genre)
				}
				if s.isInclude && maxAge > 0 {
					text += fmt.Sprintf(" modified-since %d", maxAge)
				}
				ref.add(text)
			}
		}
	}
}

// ActiveFilePath returns the absolute path of the rule file a directory +
// name would resolve to.
func ActiveFilePath(dir, name string) string {
	return filepath.Join(dir, name+".rules")
}
