package buffer

import (
	"sync"
	"testing"

	"diskengine/pkg/common"
	"diskengine/pkg/disk"
)

// memDisk is an in-memory disk.DiskManager fixture that records every
// WritePage call, so tests can assert exactly when a page is flushed.
type memDisk struct {
	mu      sync.Mutex
	pages   map[common.PageID][]byte
	writes  []common.PageID
	nextID  int32
}

func newMemDisk() *memDisk {
	return &memDisk{pages: make(map[common.PageID][]byte)}
}

func (d *memDisk) ReadPage(id common.PageID, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.pages[id]
	if !ok {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	copy(buf, data)
	return nil
}

func (d *memDisk) WritePage(id common.PageID, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	d.pages[id] = cp
	d.writes = append(d.writes, id)
	return nil
}

func (d *memDisk) AllocatePage() common.PageID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	return common.PageID(id)
}

func (d *memDisk) DeallocatePage(common.PageID) error { return nil }

func (d *memDisk) writeCount(id common.PageID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, w := range d.writes {
		if w == id {
			n++
		}
	}
	return n
}

// TestPoolEviction is scenario S2: pool size 10, 10 distinct NewPage calls
// all pinned, an 11th fails; unpinning one dirty page lets the next NewPage
// succeed only after the victim has been written back.
func TestPoolEviction(t *testing.T) {
	d := newMemDisk()
	bp := New(10, d, disk.NopLogManager{}, ReplacerLRU)

	var ids []common.PageID
	for i := 0; i < 10; i++ {
		pg, err := bp.NewPage()
		if err != nil {
			t.Fatalf("NewPage %d: %v", i, err)
		}
		ids = append(ids, pg.ID)
	}

	if _, err := bp.NewPage(); err == nil {
		t.Fatalf("NewPage: expected failure with all 10 frames pinned")
	}

	p4 := ids[4]
	if err := bp.UnpinPage(p4, true); err != nil {
		t.Fatalf("UnpinPage: %v", err)
	}

	pg, err := bp.NewPage()
	if err != nil {
		t.Fatalf("NewPage after unpin: %v", err)
	}
	if d.writeCount(p4) != 1 {
		t.Fatalf("expected exactly one WritePage for evicted page %d, got %d", p4, d.writeCount(p4))
	}
	bp.UnpinPage(pg.ID, false)
}

// TestDirtyPropagation is scenario S6: a page unpinned dirty=true is
// written back exactly once on eviction; a page unpinned dirty=false never
// triggers a write.
func TestDirtyPropagation(t *testing.T) {
	d := newMemDisk()
	bp := New(1, d, disk.NopLogManager{}, ReplacerClock)

	pg, err := bp.NewPage()
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	pg.Data[0] = 0xAB
	dirtyID := pg.ID
	if err := bp.UnpinPage(dirtyID, true); err != nil {
		t.Fatalf("UnpinPage: %v", err)
	}

	if _, err := bp.NewPage(); err != nil {
		t.Fatalf("NewPage (forces eviction): %v", err)
	}
	if got := d.writeCount(dirtyID); got != 1 {
		t.Fatalf("expected exactly one WritePage for dirty page, got %d", got)
	}
}

func TestDirtyPropagationSkipsCleanPage(t *testing.T) {
	d := newMemDisk()
	bp := New(1, d, disk.NopLogManager{}, ReplacerClock)

	pg, err := bp.NewPage()
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	cleanID := pg.ID
	if err := bp.UnpinPage(cleanID, false); err != nil {
		t.Fatalf("UnpinPage: %v", err)
	}

	if _, err := bp.NewPage(); err != nil {
		t.Fatalf("NewPage (forces eviction): %v", err)
	}
	if got := d.writeCount(cleanID); got != 0 {
		t.Fatalf("expected no WritePage for clean page, got %d", got)
	}
}

// TestParallelSharding is scenario S3: N=5, per-instance pool 2. Ten
// NewPage calls round-robin starting at instance 0, so page ids mod 5 read
// 0,1,2,3,4,0,1,2,3,4 in order.
func TestParallelSharding(t *testing.T) {
	d := newMemDisk()
	p := NewParallel(5, 2, d, disk.NopLogManager{}, ReplacerLRU)

	want := []int{0, 1, 2, 3, 4, 0, 1, 2, 3, 4}
	for i, w := range want {
		pg, err := p.NewPage()
		if err != nil {
			t.Fatalf("NewPage %d: %v", i, err)
		}
		if got := int(pg.ID) % 5; got != w {
			t.Fatalf("NewPage %d: page id %d mod 5 = %d, want %d", i, pg.ID, got, w)
		}
		p.UnpinPage(pg.ID, false)
	}
}
