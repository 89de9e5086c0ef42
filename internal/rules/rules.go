// Package rules implements the declarative rule file format: parsing,
// wildcard/similar-artist expansion against live MPD metadata, and
// compilation into MPD search expressions.
//
// Grounded on the "Rules" class of the original cantatadyn.py (rules.py)
// and, for its cache-invalidation idiom, on trollibox's player/cache.go
// TrackCache (lazily reloaded, invalidated by an upstream event).
package rules

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Range is a closed numeric interval. max == 0 means "no upper bound";
// min == 0 means "no lower bound".
type Range struct {
	Min, Max int
}

// ParseRange parses a "lo-hi" string. If both ends are given and lo > hi,
// the ends are swapped.
func ParseRange(s string) (Range, bool) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return Range{}, false
	}
	lo, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	hi, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return Range{}, false
	}
	if lo > hi && hi > 0 {
		lo, hi = hi, lo
	}
	return Range{Min: lo, Max: hi}, true
}

// Contains reports whether value falls within the range, honoring the
// 0-means-unbounded convention on both ends.
func (r Range) Contains(value int) bool {
	if r.Min != 0 && value < r.Min {
		return false
	}
	if r.Max != 0 && value > r.Max {
		return false
	}
	return true
}

// LE reports whether both ends of the range are <= v. A disabled/no-op
// filter range satisfies LE(0), e.g. Range{0,0}.LE(0) == true.
func (r Range) LE(v int) bool {
	return r.Min <= v && r.Max <= v
}

// CompiledRules is an immutable snapshot produced by a single rule-file
// read.
type CompiledRules struct {
	Include            []string
	Exclude            []string
	Rating             Range
	Duration           Range
	IncludeUnrated     bool
	DesiredQueueLength int
	MaxAgeCutoff       int64
}

// DefaultDesiredQueueLength is used until a NumTracks directive is seen.
const DefaultDesiredQueueLength = 10

// QueueLengthRange bounds NumTracks per spec.md §3/§4.3.
var QueueLengthRange = Range{Min: 10, Max: 500}

func newCompiledRules() CompiledRules {
	return CompiledRules{
		DesiredQueueLength: DefaultDesiredQueueLength,
	}
}

// Equal compares two snapshots field by field, treating Include/Exclude as
// sets (order-insensitive).
func (c CompiledRules) Equal(o CompiledRules) bool {
	if c.Rating != o.Rating || c.Duration != o.Duration {
		return false
	}
	if c.IncludeUnrated != o.IncludeUnrated {
		return false
	}
	if c.DesiredQueueLength != o.DesiredQueueLength {
		return false
	}
	if c.MaxAgeCutoff != o.MaxAgeCutoff {
		return false
	}
	return sameSet(c.Include, o.Include) && sameSet(c.Exclude, o.Exclude)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		seen[s]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}

// ActiveName returns the basename (without extension) of the rule file the
// active symlink points at, or "" if activeLink isn't a symlink to a file.
func ActiveName(activeLink string) string {
	info, err := os.Lstat(activeLink)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return ""
	}
	if _, err := os.Stat(activeLink); err != nil {
		return ""
	}
	target, err := os.Readlink(activeLink)
	if err != nil {
		return ""
	}
	base := filepath.Base(target)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
