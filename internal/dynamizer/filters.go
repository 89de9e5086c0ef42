package dynamizer

import "github.com/kungpfui/cantatadyn/internal/rules"

// RatingQuerier answers per-file rating sticker lookups for the
// post-filter.
type RatingQuerier interface {
	StickerGetRating(file string) (int, bool)
}

// DurationQuerier answers per-file duration lookups for the
// post-filter.
type DurationQuerier interface {
	LsinfoDuration(file string) (int, bool)
}

// passesRating implements spec.md §4.5's rating post-filter: disabled
// range or a non-empty include-rule set both pass unconditionally. Only
// the rating-only inclusion path (no include rules) selects by rating
// sticker, so candidates from include rules are not checked against the
// rating range at all — this mirrors check_song_rating_in_range's early
// return as-is, documented in DESIGN.md rather than corrected.
func passesRating(q RatingQuerier, c rules.CompiledRules, file string) bool {
	if !ratingActive(c.Rating) || len(c.Include) > 0 {
		return true
	}
	rating, ok := q.StickerGetRating(file)
	if !ok {
		return false
	}
	if rating == 0 {
		return c.IncludeUnrated
	}
	return c.Rating.Contains(rating)
}

// passesDuration implements spec.md §4.5's duration post-filter.
func passesDuration(q DurationQuerier, c rules.CompiledRules, file string) bool {
	if c.Duration == (rules.Range{}) {
		return true
	}
	seconds, ok := q.LsinfoDuration(file)
	if !ok {
		return false
	}
	return c.Duration.Contains(seconds)
}
