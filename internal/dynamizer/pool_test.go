package dynamizer

import (
	"sort"
	"testing"

	"github.com/kungpfui/cantatadyn/internal/rules"
)

type fakeQuerier struct {
	files   map[string][]string
	artists []string
	ratings map[string]int
}

func (f *fakeQuerier) FindFiles(expr string) ([]string, error) {
	return f.files[expr], nil
}

func (f *fakeQuerier) ListArtists() ([]string, error) {
	return f.artists, nil
}

func (f *fakeQuerier) StickerFindRatings() (map[string]int, error) {
	return f.ratings, nil
}

func TestBuildPoolRatingOnly(t *testing.T) {
	q := &fakeQuerier{ratings: map[string]int{"A": 5, "B": 2, "C": 0}}
	c := rules.CompiledRules{Rating: rules.Range{Min: 3, Max: 5}}
	pool, err := BuildPool(q, c)
	if err != nil {
		t.Fatal(err)
	}
	if len(pool) != 1 || pool[0] != "A" {
		t.Fatalf("expected pool {A}, got %v", pool)
	}
}

func TestBuildPoolIncludeExclude(t *testing.T) {
	q := &fakeQuerier{files: map[string][]string{
		`find Artist "X"`: {"a", "b"},
		`find Artist "Y"`: {"c"},
	}}
	c := rules.CompiledRules{
		Include: []string{`find Artist "X"`, `find Artist "Y"`},
		Exclude: []string{`find Artist "Y"`},
	}
	pool, err := BuildPool(q, c)
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(pool)
	if len(pool) != 2 || pool[0] != "a" || pool[1] != "b" {
		t.Fatalf("expected {a, b} (c excluded), got %v", pool)
	}
}

func TestBuildPoolAllArtistsFallback(t *testing.T) {
	q := &fakeQuerier{
		artists: []string{"Foo", "Bar"},
		files: map[string][]string{
			`find Artist "Foo"`: {"f1"},
			`find Artist "Bar"`: {"b1"},
		},
	}
	c := rules.CompiledRules{}
	pool, err := BuildPool(q, c)
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(pool)
	if len(pool) != 2 || pool[0] != "b1" || pool[1] != "f1" {
		t.Fatalf("expected {b1, f1}, got %v", pool)
	}
}
