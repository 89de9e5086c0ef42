package lastfm

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCorruptFileIsDiscarded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, persistentFile)
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := &Cache{persistentPath: path, known: map[string]entry{}}
	c.load()
	if len(c.known) != 0 {
		t.Fatalf("expected empty cache after corrupt load, got %+v", c.known)
	}
}

func TestStoreAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, persistentFile)
	c := &Cache{persistentPath: path, known: map[string]entry{
		"Madonna": {Timestamp: time.Now().Unix(), Artists: []string{"Cher", "Kylie Minogue"}},
	}}
	c.store()

	c2 := &Cache{persistentPath: path, known: map[string]entry{}}
	c2.load()
	if len(c2.known["Madonna"].Artists) != 2 {
		t.Fatalf("expected round-tripped entry, got %+v", c2.known)
	}
}

func TestSimilarReturnsFreshCacheHitWithoutQuerying(t *testing.T) {
	dir := t.TempDir()
	c := &Cache{
		persistentPath: filepath.Join(dir, persistentFile),
		known: map[string]entry{
			"Madonna": {Timestamp: time.Now().Unix(), Artists: []string{"Cher"}},
		},
		retries: 3,
		backoff: time.Millisecond,
	}
	got, err := c.Similar("Madonna")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "Cher" {
		t.Fatalf("expected cached {Cher}, got %v", got)
	}
}

func TestCleanNamesDedupesAndStripsNewlines(t *testing.T) {
	got := cleanNames(nil)
	if len(got) != 0 {
		t.Fatalf("expected empty slice for nil input, got %v", got)
	}

	got = cleanNames([]string{"A\nB", "AB", "Cher &amp; Co"})
	if len(got) != 2 || got[0] != "AB" || got[1] != "Cher & Co" {
		t.Fatalf("expected [AB, Cher & Co], got %v", got)
	}
}
