package dynamizer

import (
	"os"
	"testing"

	"github.com/kungpfui/cantatadyn/internal/history"
	"github.com/kungpfui/cantatadyn/internal/mpd"
	"github.com/kungpfui/cantatadyn/internal/rules"
	"github.com/kungpfui/cantatadyn/internal/status"
)

type fakeConn struct {
	statusAttrs mpd.Attrs
	statsAttrs  mpd.Attrs
	playlist    []mpd.Attrs
	pool        map[string][]string
	artists     []string
	ratings     map[string]int
	durations   map[string]int

	deletes []int
	added   []string
	played  []int
}

func (f *fakeConn) Status() (mpd.Attrs, error) { return f.statusAttrs, nil }
func (f *fakeConn) Stats() (mpd.Attrs, error)  { return f.statsAttrs, nil }
func (f *fakeConn) Playlist() ([]mpd.Attrs, error) {
	return f.playlist, nil
}
func (f *fakeConn) Delete(idx int) error {
	f.deletes = append(f.deletes, idx)
	if len(f.playlist) > 0 {
		f.playlist = f.playlist[1:]
	}
	return nil
}
func (f *fakeConn) Add(uri string) error {
	f.added = append(f.added, uri)
	f.playlist = append(f.playlist, mpd.Attrs{"file": uri})
	return nil
}
func (f *fakeConn) Play(pos int) error { f.played = append(f.played, pos); return nil }
func (f *fakeConn) Idle(subsystems ...string) ([]string, error) {
	return nil, nil
}
func (f *fakeConn) ReadMessages() ([]mpd.Attrs, error) { return nil, nil }
func (f *fakeConn) SendMessage(channel, payload string) error { return nil }
func (f *fakeConn) FindFiles(expr string) ([]string, error)   { return f.pool[expr], nil }
func (f *fakeConn) ListArtists() ([]string, error)            { return f.artists, nil }
func (f *fakeConn) StickerFindRatings() (map[string]int, error) {
	return f.ratings, nil
}
func (f *fakeConn) StickerGetRating(file string) (int, bool) {
	v, ok := f.ratings[file]
	return v, ok
}
func (f *fakeConn) LsinfoDuration(file string) (int, bool) {
	v, ok := f.durations[file]
	return v, ok
}

// Query satisfies rules.Querier for genre/artist wildcard expansion in
// tests that exercise the rule engine through the same fake.
func (f *fakeConn) Query(command, key string) ([]string, error) {
	if key == "Artist" {
		return f.artists, nil
	}
	return nil, nil
}

func newTestLoop(t *testing.T, conn *fakeConn) (*Loop, string) {
	t.Helper()
	dir := t.TempDir()
	active := dir + "/active"
	engine := rules.NewEngine(dir, active, conn, nil)
	l := NewLoop(conn, engine, &history.Buffer{}, status.New(), false, dir, active, conn)
	return l, dir
}

func writeRule(t *testing.T, dir, active, content string) {
	t.Helper()
	path := dir + "/r1.rules"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	os.Remove(active)
	if err := os.Symlink(path, active); err != nil {
		t.Fatal(err)
	}
}

func TestLoopRefillsUpToDesiredLength(t *testing.T) {
	conn := &fakeConn{
		statusAttrs: mpd.Attrs{"song": "0", "state": "stop"},
		statsAttrs:  mpd.Attrs{"db_update": "1"},
		pool:        map[string][]string{`find Artist "X"`: {"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}},
	}
	l, dir := newTestLoop(t, conn)
	writeRule(t, dir, l.dispatcher.ActiveLink, "NumTracks:10\nRule\nArtist:X\n")
	l.SetDynamic(true)

	if err := l.RunOnce(); err != nil {
		t.Fatal(err)
	}
	if len(conn.added) != 10 {
		t.Fatalf("expected 10 tracks added, got %d: %v", len(conn.added), conn.added)
	}
	if len(conn.played) != 1 {
		t.Fatalf("expected play 0 to be issued once the queue filled from empty, got %v", conn.played)
	}
}

func TestLoopIdleWhenNotDynamic(t *testing.T) {
	conn := &fakeConn{}
	l, _ := newTestLoop(t, conn)
	if err := l.RunOnce(); err != nil {
		t.Fatal(err)
	}
	if len(conn.added) != 0 {
		t.Fatalf("expected no activity while dynamic=false, got %v", conn.added)
	}
}

