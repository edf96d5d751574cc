package replacer

import (
	"testing"

	"diskengine/pkg/common"
)

// TestLRUOrder is scenario S1: capacity 7, Unpin 1..6 then Unpin(1) again
// (a no-op, since 1 is already tracked), then Victim six times yields
// 1,2,3,4,5,6 in that order.
func TestLRUOrder(t *testing.T) {
	r := NewLRU(7)
	for _, id := range []common.FrameID{1, 2, 3, 4, 5, 6} {
		r.Unpin(id)
	}
	r.Unpin(1)

	want := []common.FrameID{1, 2, 3, 4, 5, 6}
	for _, w := range want {
		got, ok := r.Victim()
		if !ok {
			t.Fatalf("Victim: expected %d, got none", w)
		}
		if got != w {
			t.Fatalf("Victim: expected %d, got %d", w, got)
		}
	}
	if _, ok := r.Victim(); ok {
		t.Fatalf("Victim: expected none after draining tracked frames")
	}
}

func TestLRUPinRemovesFromTracking(t *testing.T) {
	r := NewLRU(4)
	r.Unpin(1)
	r.Unpin(2)
	r.Pin(1)

	got, ok := r.Victim()
	if !ok || got != 2 {
		t.Fatalf("Victim: expected 2, got %d (ok=%v)", got, ok)
	}
	if _, ok := r.Victim(); ok {
		t.Fatalf("Victim: expected none, frame 1 was pinned out of tracking")
	}
}

func TestLRUSize(t *testing.T) {
	r := NewLRU(4)
	if got := r.Size(); got != 0 {
		t.Fatalf("Size: expected 0, got %d", got)
	}
	r.Unpin(1)
	r.Unpin(2)
	if got := r.Size(); got != 2 {
		t.Fatalf("Size: expected 2, got %d", got)
	}
	r.Victim()
	if got := r.Size(); got != 1 {
		t.Fatalf("Size: expected 1, got %d", got)
	}
}
