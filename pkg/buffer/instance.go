// Package buffer implements the BufferPoolInstance and ParallelBufferPool:
// the frame-array page cache that mediates every access the two index
// implementations make to disk-resident pages.
package buffer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"diskengine/pkg/common"
	"diskengine/pkg/disk"
	"diskengine/pkg/page"
	"diskengine/pkg/replacer"
)

var log = logrus.WithField("component", "buffer")

// Instance is a single buffer pool: a fixed array of pool_size frames, a
// page-table mapping live page ids to frames, a free list of frames never
// yet assigned, a pluggable Replacer for victim selection among in-use
// frames, and a single mutex serializing all of the above.
//
// Page-id allocation is sharded: instance i of numInstances owns page ids
// congruent to i mod numInstances, and its own nextPageID counter starts at
// i and advances by numInstances per call to AllocatePage.
type Instance struct {
	mu sync.Mutex

	frames   []*page.Page
	pageTbl  map[common.PageID]common.FrameID
	freeList []common.FrameID
	replacer replacer.Replacer
	disk     disk.DiskManager
	log      disk.LogManager

	numInstances  int32
	instanceIndex int32
	nextPageID    int32
}

// ReplacerKind selects which victim-selection policy a new Instance uses.
type ReplacerKind int

const (
	ReplacerLRU ReplacerKind = iota
	ReplacerClock
)

// New constructs a single, unsharded buffer pool instance (numInstances=1,
// instanceIndex=0) backed by dm.
func New(poolSize int, dm disk.DiskManager, lm disk.LogManager, kind ReplacerKind) *Instance {
	return NewSharded(poolSize, 1, 0, dm, lm, kind)
}

// NewSharded constructs buffer pool instance instanceIndex of numInstances,
// as used by ParallelBufferPool. Every frame starts in the free list.
func NewSharded(poolSize int, numInstances, instanceIndex int32, dm disk.DiskManager, lm disk.LogManager, kind ReplacerKind) *Instance {
	if numInstances <= 0 {
		panic("buffer: numInstances must be positive")
	}
	if instanceIndex >= numInstances {
		panic("buffer: instanceIndex must be less than numInstances")
	}

	frames := make([]*page.Page, poolSize)
	free := make([]common.FrameID, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = page.New(common.InvalidPageID)
		free[i] = common.FrameID(i)
	}

	var rep replacer.Replacer
	switch kind {
	case ReplacerClock:
		rep = replacer.NewClock(poolSize)
	default:
		rep = replacer.NewLRU(poolSize)
	}

	return &Instance{
		frames:        frames,
		pageTbl:       make(map[common.PageID]common.FrameID, poolSize),
		freeList:      free,
		replacer:      rep,
		disk:          dm,
		log:           lm,
		numInstances:  numInstances,
		instanceIndex: instanceIndex,
		nextPageID:    instanceIndex,
	}
}

// PoolSize returns the number of frames this instance manages.
func (bp *Instance) PoolSize() int { return len(bp.frames) }

// allocatePageLocked returns the next sharded page id this instance owns,
// advancing its counter. Caller must hold bp.mu.
func (bp *Instance) allocatePageLocked() common.PageID {
	id := common.PageID(bp.nextPageID)
	bp.nextPageID += bp.numInstances
	return id
}

// victimFrameLocked picks a frame for a fresh page, preferring the free
// list; failing that, asking the replacer. A frame obtained from the
// replacer that currently holds a dirty page is written back before its
// old mapping is erased. Caller must hold bp.mu.
func (bp *Instance) victimFrameLocked() (common.FrameID, error) {
	if n := len(bp.freeList); n > 0 {
		id := bp.freeList[n-1]
		bp.freeList = bp.freeList[:n-1]
		return id, nil
	}

	frameID, ok := bp.replacer.Victim()
	if !ok {
		return 0, fmt.Errorf("buffer: all frames pinned: %w", common.ErrCapacityExhausted)
	}

	frame := bp.frames[frameID]
	frame.Lock()
	if frame.IsDirty {
		if err := bp.disk.WritePage(frame.ID, frame.Data); err != nil {
			frame.Unlock()
			return 0, fmt.Errorf("buffer: writeback of victim page %d: %w", frame.ID, err)
		}
		frame.IsDirty = false
	}
	oldID := frame.ID
	frame.Unlock()
	delete(bp.pageTbl, oldID)

	return frameID, nil
}

// NewPage allocates a fresh sharded page id, pins it into a frame, and
// returns the zeroed page. Returns common.ErrCapacityExhausted if every
// frame is pinned.
func (bp *Instance) NewPage() (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, err := bp.victimFrameLocked()
	if err != nil {
		return nil, err
	}

	id := bp.allocatePageLocked()
	bp.pageTbl[id] = frameID

	frame := bp.frames[frameID]
	frame.Lock()
	frame.ResetMemory()
	frame.ID = id
	frame.PinCount = 1
	frame.IsDirty = false
	frame.Unlock()

	bp.replacer.Pin(frameID)
	log.WithFields(logrus.Fields{"page_id": id, "frame_id": frameID}).Debug("new page")
	return frame, nil
}

// FetchPage pins and returns the page, reading it from disk on a cache
// miss. Returns common.ErrCapacityExhausted if the page is not resident and
// every frame is pinned.
func (bp *Instance) FetchPage(id common.PageID) (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if frameID, ok := bp.pageTbl[id]; ok {
		frame := bp.frames[frameID]
		frame.Lock()
		frame.PinCount++
		frame.Unlock()
		bp.replacer.Pin(frameID)
		return frame, nil
	}

	frameID, err := bp.victimFrameLocked()
	if err != nil {
		return nil, err
	}

	bp.pageTbl[id] = frameID
	frame := bp.frames[frameID]
	frame.Lock()
	frame.ID = id
	frame.PinCount = 1
	frame.IsDirty = false
	frame.Unlock()

	bp.replacer.Pin(frameID)

	if err := bp.disk.ReadPage(id, frame.Data); err != nil {
		return nil, fmt.Errorf("buffer: fetch page %d: %w", id, err)
	}
	log.WithFields(logrus.Fields{"page_id": id, "frame_id": frameID}).Debug("fetched page from disk")
	return frame, nil
}

// UnpinPage decrements the page's pin count and ORs is_dirty into the
// page's dirty flag: once dirty, a page stays dirty until flushed, even if
// a later unpin passes isDirty=false. Returns common.ErrNotFound if the
// page is not resident, or common.ErrConflict if it is not currently
// pinned.
func (bp *Instance) UnpinPage(id common.PageID, isDirty bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.pageTbl[id]
	if !ok {
		return fmt.Errorf("buffer: unpin unmapped page %d: %w", id, common.ErrNotFound)
	}
	frame := bp.frames[frameID]
	frame.Lock()
	defer frame.Unlock()

	if frame.PinCount <= 0 {
		return fmt.Errorf("buffer: unpin page %d with pin_count<=0: %w", id, common.ErrConflict)
	}
	frame.PinCount--
	if isDirty {
		frame.IsDirty = true
	}
	if frame.PinCount == 0 {
		bp.replacer.Unpin(frameID)
	}
	return nil
}

// FlushPage writes the page back to disk if it is dirty. It refuses to
// flush a pinned page — the same guard FlushAllPages applies, so the two
// stay consistent (see SPEC_FULL.md §4 on the reference's inconsistency
// here). Returns common.ErrNotFound if unmapped, common.ErrConflict if
// pinned.
func (bp *Instance) FlushPage(id common.PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.flushPageLocked(id)
}

func (bp *Instance) flushPageLocked(id common.PageID) error {
	frameID, ok := bp.pageTbl[id]
	if !ok {
		return fmt.Errorf("buffer: flush unmapped page %d: %w", id, common.ErrNotFound)
	}
	frame := bp.frames[frameID]
	frame.Lock()
	defer frame.Unlock()

	if frame.PinCount > 0 {
		return fmt.Errorf("buffer: flush pinned page %d: %w", id, common.ErrConflict)
	}
	if !frame.IsDirty {
		return nil
	}
	if err := bp.disk.WritePage(id, frame.Data); err != nil {
		return fmt.Errorf("buffer: flush page %d: %w", id, err)
	}
	frame.IsDirty = false
	log.WithField("page_id", id).Debug("flushed page")
	return nil
}

// FlushAllPages writes back every mapped, unpinned, dirty frame. Pages that
// are currently pinned are skipped, not errored — a caller that wants a
// guaranteed complete flush must first ensure nothing is pinned.
func (bp *Instance) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	var errs []error
	for id := range bp.pageTbl {
		if err := bp.flushPageLocked(id); err != nil && !errors.Is(err, common.ErrConflict) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// DeletePage removes a page from the pool entirely, flushing it first if
// dirty and returning its frame to the free list. Idempotent: deleting an
// unmapped page id succeeds. Returns common.ErrConflict if the page is
// currently pinned.
func (bp *Instance) DeletePage(id common.PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.pageTbl[id]
	if !ok {
		return nil
	}
	frame := bp.frames[frameID]
	frame.Lock()
	if frame.PinCount > 0 {
		frame.Unlock()
		return fmt.Errorf("buffer: delete pinned page %d: %w", id, common.ErrConflict)
	}
	if frame.IsDirty {
		if err := bp.disk.WritePage(id, frame.Data); err != nil {
			frame.Unlock()
			return fmt.Errorf("buffer: flush before delete of page %d: %w", id, err)
		}
		frame.IsDirty = false
	}
	frame.Unlock()

	if err := bp.disk.DeallocatePage(id); err != nil {
		return fmt.Errorf("buffer: deallocate page %d: %w", id, err)
	}

	delete(bp.pageTbl, id)
	frame.Lock()
	frame.ResetMemory()
	frame.ID = common.InvalidPageID
	frame.PinCount = 0
	frame.IsDirty = false
	frame.Unlock()
	bp.freeList = append(bp.freeList, frameID)

	log.WithField("page_id", id).Debug("deleted page")
	return nil
}

// Stats is a point-in-time snapshot of pool occupancy, used by the ambient
// logging layer to report pool health.
type Stats struct {
	Capacity    int
	Resident    int
	PinnedPages int
	DirtyPages  int
	FreeFrames  int
}

// Stats returns a snapshot of the instance's current occupancy.
func (bp *Instance) Stats() Stats {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	st := Stats{
		Capacity:   len(bp.frames),
		Resident:   len(bp.pageTbl),
		FreeFrames: len(bp.freeList),
	}
	for _, frameID := range bp.pageTbl {
		frame := bp.frames[frameID]
		frame.RLock()
		if frame.PinCount > 0 {
			st.PinnedPages++
		}
		if frame.IsDirty {
			st.DirtyPages++
		}
		frame.RUnlock()
	}
	return st
}

// String renders a human-readable summary, e.g. for a periodic health log
// line: "128 of 256 frames resident (524 kB), 12 pinned, 4 dirty".
func (s Stats) String() string {
	bytes := uint64(s.Resident) * common.PageSize
	return fmt.Sprintf("%s of %s frames resident (%s), %s pinned, %s dirty",
		humanize.Comma(int64(s.Resident)), humanize.Comma(int64(s.Capacity)), humanize.Bytes(bytes),
		humanize.Comma(int64(s.PinnedPages)), humanize.Comma(int64(s.DirtyPages)))
}
