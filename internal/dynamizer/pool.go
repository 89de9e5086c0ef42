// Package dynamizer implements the main state machine: the nine-step
// iteration that observes player status, trims consumed queue entries,
// refills from a candidate pool, and suspends in idle, per spec.md
// §4.5. It is grounded on trollibox's player/mpd event/main loop split
// (src/player/mpd/mpd.go: eventLoop/mainLoop) for its "serialize
// everything on one connection, suspend in idle between passes" shape,
// generalized from track playback to rule-driven queue refilling.
package dynamizer

import (
	"strings"

	"github.com/kungpfui/cantatadyn/internal/rules"
)

// Querier is the subset of the MPD connection the pool builder needs.
type Querier interface {
	FindFiles(expr string) ([]string, error)
	ListArtists() ([]string, error)
	StickerFindRatings() (map[string]int, error)
}

// BuildPool computes the candidate pool per spec.md §4.5: inclusion
// (union of include rules, or rating-sticker search, or every artist)
// minus exclusion (union of exclude rules).
func BuildPool(q Querier, c rules.CompiledRules) ([]string, error) {
	include, err := buildInclusion(q, c)
	if err != nil {
		return nil, err
	}
	exclude := map[string]struct{}{}
	for _, rule := range c.Exclude {
		files, err := q.FindFiles(rule)
		if err != nil {
			continue
		}
		for _, f := range files {
			exclude[f] = struct{}{}
		}
	}

	pool := make([]string, 0, len(include))
	seen := map[string]struct{}{}
	for _, f := range include {
		if _, excluded := exclude[f]; excluded {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		pool = append(pool, f)
	}
	return pool, nil
}

func buildInclusion(q Querier, c rules.CompiledRules) ([]string, error) {
	if len(c.Include) > 0 {
		seen := map[string]struct{}{}
		var out []string
		for _, rule := range c.Include {
			files, err := q.FindFiles(rule)
			if err != nil {
				continue
			}
			for _, f := range files {
				if _, dup := seen[f]; dup {
					continue
				}
				seen[f] = struct{}{}
				out = append(out, f)
			}
		}
		return out, nil
	}

	if ratingActive(c.Rating) {
		ratings, err := q.StickerFindRatings()
		if err != nil {
			return nil, err
		}
		var out []string
		for file, rating := range ratings {
			if c.Rating.Contains(rating) {
				out = append(out, file)
			}
		}
		return out, nil
	}

	artists, err := q.ListArtists()
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var out []string
	for _, artist := range artists {
		if artist == "" {
			continue
		}
		rule := `find Artist "` + strings.ReplaceAll(strings.ReplaceAll(artist, `\`, `\\`), `"`, `\"`) + `"`
		files, err := q.FindFiles(rule)
		if err != nil {
			continue
		}
		for _, f := range files {
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out, nil
}

// ratingActive reports whether the rating range is an active filter
// rather than the disabled "0-0" sentinel.
func ratingActive(r rules.Range) bool {
	return r.Min != 0 || r.Max != 0
}
