package history

import "testing"

func TestCapacityLaw(t *testing.T) {
	cases := map[int]int{1: 1, 4: 2, 5: 4, 100: 75, 1000: 200}
	for pool, want := range cases {
		if got := CapacityFor(pool); got != want {
			t.Errorf("CapacityFor(%d) = %d, want %d", pool, got, want)
		}
	}
}

func TestCanAddRejectsRecent(t *testing.T) {
	var b Buffer
	if !b.CanAdd("a", 10) {
		t.Fatal("expected first add to be allowed")
	}
	b.StoreSong("a")
	if b.CanAdd("a", 10) {
		t.Fatal("expected recently stored song to be rejected")
	}
	if !b.CanAdd("b", 10) {
		t.Fatal("expected a different song to be allowed")
	}
}

func TestCanAddCapacityChangeClearsBuffer(t *testing.T) {
	var b Buffer
	b.CanAdd("x", 10) // sets limit to 8
	b.StoreSong("x")
	if b.CanAdd("x", 10) {
		t.Fatal("expected x to be rejected while capacity is unchanged")
	}
	if !b.CanAdd("x", 1000) {
		t.Fatal("capacity change must clear the buffer and allow re-adding")
	}
}

func TestStoreSongEvictsOldest(t *testing.T) {
	var b Buffer
	b.limit = 2
	b.StoreSong("a")
	b.StoreSong("b")
	b.StoreSong("c")
	if len(b.items) != 2 || b.items[0] != "b" || b.items[1] != "c" {
		t.Fatalf("unexpected buffer contents: %v", b.items)
	}
}

func TestStoreSongDefaultsLimit(t *testing.T) {
	var b Buffer
	b.StoreSong("a")
	if b.limit != 5 {
		t.Fatalf("expected default limit of 5, got %d", b.limit)
	}
}
