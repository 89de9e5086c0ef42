package control

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kungpfui/cantatadyn/internal/cantata"
	"github.com/kungpfui/cantatadyn/internal/status"
)

type fakeLoop struct {
	dynamic       bool
	invalidations int
}

func (f *fakeLoop) SetDynamic(on bool) { f.dynamic = on }
func (f *fakeLoop) InvalidatePool()    { f.invalidations++ }

func newTestDispatcher(t *testing.T) (*Dispatcher, string) {
	t.Helper()
	dir := t.TempDir()
	active := filepath.Join(dir, "active")
	d := &Dispatcher{
		RulesDir:   dir,
		ActiveLink: active,
		Status:     status.New(),
		Loop:       &fakeLoop{},
	}
	return d, dir
}

func TestDispatchSaveRoundTrip(t *testing.T) {
	d, dir := newTestDispatcher(t)
	payload := "save:abc:Myrules:" + cantata.Encode("Rating:1-5\nRule\nArtist:X")
	clientID, reply := d.Dispatch(payload)
	if clientID != "abc" {
		t.Fatalf("expected client id abc, got %s", clientID)
	}
	if reply != "0:Myrules" {
		t.Fatalf("expected 0:Myrules, got %s", reply)
	}
	data, err := os.ReadFile(filepath.Join(dir, "Myrules.rules"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "Rating:1-5\nRule\nArtist:X" {
		t.Fatalf("unexpected file contents: %q", data)
	}
}

func TestDispatchSaveIllegalName(t *testing.T) {
	d, _ := newTestDispatcher(t)
	_, reply := d.Dispatch("save:abc:bad/name:" + cantata.Encode("x"))
	if reply != "2:bad/name" {
		t.Fatalf("expected 2:bad/name, got %s", reply)
	}
}

func TestDispatchGetRoundTrip(t *testing.T) {
	d, dir := newTestDispatcher(t)
	if err := os.WriteFile(filepath.Join(dir, "r1.rules"), []byte("Rule\nArtist:Y"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, reply := d.Dispatch("get:abc:r1")
	want := "0:r1:" + cantata.Encode("Rule\nArtist:Y")
	if reply != want {
		t.Fatalf("expected %q, got %q", want, reply)
	}
}

func TestDispatchListSorted(t *testing.T) {
	d, dir := newTestDispatcher(t)
	os.WriteFile(filepath.Join(dir, "b.rules"), nil, 0o644)
	os.WriteFile(filepath.Join(dir, "a.rules"), nil, 0o644)
	_, reply := d.Dispatch("list:abc")
	if reply != "0:a:b" {
		t.Fatalf("expected 0:a:b, got %s", reply)
	}
}

func TestDispatchUnknownVerb(t *testing.T) {
	d, _ := newTestDispatcher(t)
	_, reply := d.Dispatch("frobnicate:abc:x")
	if reply != codeUnknownVerb {
		t.Fatalf("expected code 11, got %s", reply)
	}
}

func TestDispatchTooFewArgs(t *testing.T) {
	d, _ := newTestDispatcher(t)
	_, reply := d.Dispatch("save:abc")
	if reply != codeTooFewArgs {
		t.Fatalf("expected code 10, got %s", reply)
	}
}

func TestDispatchControlVerbs(t *testing.T) {
	d, _ := newTestDispatcher(t)
	fl := d.Loop.(*fakeLoop)

	if _, reply := d.Dispatch("control:abc:start"); reply != "0" {
		t.Fatalf("expected 0, got %s", reply)
	}
	if !fl.dynamic {
		t.Fatal("expected dynamic mode on after control:start")
	}

	if _, reply := d.Dispatch("control:abc:stop"); reply != "0" {
		t.Fatalf("expected 0, got %s", reply)
	}
	if fl.dynamic {
		t.Fatal("expected dynamic mode off after control:stop")
	}

	if _, reply := d.Dispatch("control:abc:bogus"); reply != codeUnknownControlVerb {
		t.Fatalf("expected code 5, got %s", reply)
	}
}

func TestDispatchSetActiveRetargetsSymlink(t *testing.T) {
	d, dir := newTestDispatcher(t)
	os.WriteFile(filepath.Join(dir, "r1.rules"), []byte("Rule\n"), 0o644)

	_, reply := d.Dispatch("setActive:abc:r1:1")
	if reply != "0:r1" {
		t.Fatalf("expected 0:r1, got %s", reply)
	}
	target, err := os.Readlink(d.ActiveLink)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(target, "r1.rules") {
		t.Fatalf("expected symlink to r1.rules, got %s", target)
	}
	snap := d.Status.Snapshot()
	if snap.ActiveName != "r1" {
		t.Fatalf("expected active name r1, got %s", snap.ActiveName)
	}
}

func TestDispatchSetActiveMissingTarget(t *testing.T) {
	d, _ := newTestDispatcher(t)
	_, reply := d.Dispatch("setActive:abc:ghost:1")
	if reply != codeTargetMissing+":ghost" {
		t.Fatalf("expected code 9, got %s", reply)
	}
}
