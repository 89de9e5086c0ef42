package dynamizer

import (
	"testing"

	"github.com/kungpfui/cantatadyn/internal/rules"
)

type fakeRatingDuration struct {
	ratings   map[string]int
	durations map[string]int
}

func (f *fakeRatingDuration) StickerGetRating(file string) (int, bool) {
	v, ok := f.ratings[file]
	return v, ok
}

func (f *fakeRatingDuration) LsinfoDuration(file string) (int, bool) {
	v, ok := f.durations[file]
	return v, ok
}

func TestPassesRatingSkippedWithIncludeRules(t *testing.T) {
	q := &fakeRatingDuration{}
	c := rules.CompiledRules{Rating: rules.Range{Min: 3, Max: 5}, Include: []string{"find Artist \"X\""}}
	if !passesRating(q, c, "missing-sticker.mp3") {
		t.Fatal("expected include-rule early return to pass regardless of rating data")
	}
}

func TestPassesRatingUnratedRespectsFlag(t *testing.T) {
	q := &fakeRatingDuration{ratings: map[string]int{"a": 0}}
	c := rules.CompiledRules{Rating: rules.Range{Min: 3, Max: 5}, IncludeUnrated: true}
	if !passesRating(q, c, "a") {
		t.Fatal("expected unrated track to pass when IncludeUnrated is set")
	}
	c.IncludeUnrated = false
	if passesRating(q, c, "a") {
		t.Fatal("expected unrated track to fail when IncludeUnrated is unset")
	}
}

func TestPassesDurationDisabledRange(t *testing.T) {
	q := &fakeRatingDuration{}
	c := rules.CompiledRules{}
	if !passesDuration(q, c, "anything") {
		t.Fatal("expected a zero-value duration range to pass everything")
	}
}

func TestPassesDurationRange(t *testing.T) {
	q := &fakeRatingDuration{durations: map[string]int{"a": 200, "b": 500}}
	c := rules.CompiledRules{Duration: rules.Range{Min: 100, Max: 300}}
	if !passesDuration(q, c, "a") {
		t.Fatal("expected 200s to pass [100,300]")
	}
	if passesDuration(q, c, "b") {
		t.Fatal("expected 500s to fail [100,300]")
	}
}
