package status

import "testing"

func TestSnapshotIsolated(t *testing.T) {
	f := New()
	f.Touch("r1", true)
	snap := f.Snapshot()
	if snap.ActiveName != "r1" || !snap.Dynamic {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Timestamp == 0 {
		t.Fatal("expected Touch to set a nonzero timestamp")
	}
	f.Touch("r2", false)
	if snap.ActiveName != "r1" || !snap.Dynamic {
		t.Fatalf("earlier snapshot changed after a later Touch: %+v", snap)
	}
}

func TestSetStateLeavesTimestamp(t *testing.T) {
	f := New()
	f.Touch("r1", true)
	before := f.Snapshot().Timestamp
	f.SetState(HaveSongs)
	after := f.Snapshot()
	if after.State != HaveSongs {
		t.Fatalf("expected HAVE_SONGS, got %s", after.State)
	}
	if after.Timestamp != before {
		t.Fatal("SetState must not bump the timestamp")
	}
}

func TestEventsEmitOnTouch(t *testing.T) {
	f := New()
	ch := f.Events.Listen()
	defer f.Events.Unlisten(ch)
	f.Touch("r1", true)
	select {
	case ev := <-ch:
		snap, ok := ev.(Snapshot)
		if !ok || snap.ActiveName != "r1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected an emitted event")
	}
}
