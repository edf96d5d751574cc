package buffer

import (
	"fmt"
	"sync"

	"diskengine/pkg/common"
	"diskengine/pkg/disk"
	"diskengine/pkg/page"
)

// Parallel shards page ids across N Instances (owner(page_id) = page_id mod
// N) and round-robins NewPage across them so that a burst of allocations
// doesn't pile onto a single instance. Total capacity is N * poolSize.
type Parallel struct {
	mu        sync.Mutex
	instances []*Instance
	nextIndex int
}

// NewParallel constructs n Instances, each of the given poolSize and
// replacer kind, backed by the same disk manager and log manager.
func NewParallel(n int, poolSize int, dm disk.DiskManager, lm disk.LogManager, kind ReplacerKind) *Parallel {
	if n <= 0 {
		panic("buffer: n must be positive")
	}
	instances := make([]*Instance, n)
	for i := 0; i < n; i++ {
		instances[i] = NewSharded(poolSize, int32(n), int32(i), dm, lm, kind)
	}
	return &Parallel{instances: instances}
}

func (p *Parallel) instanceFor(id common.PageID) *Instance {
	n := len(p.instances)
	idx := int(id) % n
	if idx < 0 {
		idx += n
	}
	return p.instances[idx]
}

// NewPage round-robins across instances starting at the current cursor,
// trying each until one succeeds (has a free frame or an evictable one);
// the cursor advances past whichever instance served the request, so the
// next call starts somewhere else. Returns common.ErrCapacityExhausted if
// every instance is full.
func (p *Parallel) NewPage() (*page.Page, error) {
	p.mu.Lock()
	start := p.nextIndex
	n := len(p.instances)
	p.mu.Unlock()

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		pg, err := p.instances[idx].NewPage()
		if err == nil {
			p.mu.Lock()
			p.nextIndex = (idx + 1) % n
			p.mu.Unlock()
			return pg, nil
		}
	}
	return nil, fmt.Errorf("buffer: all %d instances exhausted: %w", n, common.ErrCapacityExhausted)
}

// FetchPage dispatches to the instance owning id mod N.
func (p *Parallel) FetchPage(id common.PageID) (*page.Page, error) {
	return p.instanceFor(id).FetchPage(id)
}

// UnpinPage dispatches to the instance owning id mod N.
func (p *Parallel) UnpinPage(id common.PageID, isDirty bool) error {
	return p.instanceFor(id).UnpinPage(id, isDirty)
}

// FlushPage dispatches to the instance owning id mod N.
func (p *Parallel) FlushPage(id common.PageID) error {
	return p.instanceFor(id).FlushPage(id)
}

// DeletePage dispatches to the instance owning id mod N.
func (p *Parallel) DeletePage(id common.PageID) error {
	return p.instanceFor(id).DeletePage(id)
}

// FlushAllPages fans out to every instance.
func (p *Parallel) FlushAllPages() error {
	for _, inst := range p.instances {
		if err := inst.FlushAllPages(); err != nil {
			return err
		}
	}
	return nil
}

// Stats aggregates Stats across every instance.
func (p *Parallel) Stats() Stats {
	var total Stats
	for _, inst := range p.instances {
		s := inst.Stats()
		total.Capacity += s.Capacity
		total.Resident += s.Resident
		total.PinnedPages += s.PinnedPages
		total.DirtyPages += s.DirtyPages
		total.FreeFrames += s.FreeFrames
	}
	return total
}
