package hash

import (
	"encoding/binary"
	"fmt"

	"diskengine/pkg/common"
	"diskengine/pkg/page"
)

// DirMax is the fixed maximum directory slot count, a power of two. At
// global_depth = log2(DirMax), the directory cannot grow further and
// SplitInsert reports common.ErrCapacityExhausted instead.
const DirMax = 512

const (
	dirPageIDOff      = 0
	dirLSNOff         = 4
	dirGlobalDepthOff = 8
	dirLocalDepthsOff = 12
	dirBucketIDsOff   = dirLocalDepthsOff + DirMax
)

func init() {
	if dirBucketIDsOff+DirMax*4 > common.PageSize {
		panic("hash: DirMax too large for common.PageSize")
	}
}

// DirectoryPage is a typed view over a page holding the extendible hash
// table's directory: global depth, and per-slot local depth and bucket
// page id.
type DirectoryPage struct {
	pg *page.Page
}

// NewDirectoryPage wraps pg as a directory view. Callers that just
// allocated pg via the buffer pool should call Init.
func NewDirectoryPage(pg *page.Page) *DirectoryPage {
	return &DirectoryPage{pg: pg}
}

// Init sets up a freshly allocated directory page: depth 0, a single
// active slot pointing at bucketPageID.
func (d *DirectoryPage) Init(selfID, bucketPageID common.PageID) {
	d.SetPageID(selfID)
	d.SetGlobalDepth(0)
	d.SetLocalDepth(0, 0)
	d.SetBucketPageID(0, bucketPageID)
}

func (d *DirectoryPage) PageID() common.PageID {
	return common.PageID(binary.LittleEndian.Uint32(d.pg.Data[dirPageIDOff:]))
}

func (d *DirectoryPage) SetPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(d.pg.Data[dirPageIDOff:], uint32(id))
}

func (d *DirectoryPage) GlobalDepth() uint32 {
	return binary.LittleEndian.Uint32(d.pg.Data[dirGlobalDepthOff:])
}

func (d *DirectoryPage) SetGlobalDepth(gd uint32) {
	binary.LittleEndian.PutUint32(d.pg.Data[dirGlobalDepthOff:], gd)
}

// GlobalDepthMask is (1 << global_depth) - 1.
func (d *DirectoryPage) GlobalDepthMask() uint32 {
	return (1 << d.GlobalDepth()) - 1
}

// Size is the number of active directory slots: 1 << global_depth.
func (d *DirectoryPage) Size() int {
	return 1 << d.GlobalDepth()
}

func (d *DirectoryPage) LocalDepth(idx int) uint8 {
	return d.pg.Data[dirLocalDepthsOff+idx]
}

func (d *DirectoryPage) SetLocalDepth(idx int, depth uint8) {
	d.pg.Data[dirLocalDepthsOff+idx] = depth
}

func (d *DirectoryPage) IncrLocalDepth(idx int) {
	d.pg.Data[dirLocalDepthsOff+idx]++
}

func (d *DirectoryPage) DecrLocalDepth(idx int) {
	d.pg.Data[dirLocalDepthsOff+idx]--
}

func (d *DirectoryPage) BucketPageID(idx int) common.PageID {
	off := dirBucketIDsOff + idx*4
	return common.PageID(int32(binary.LittleEndian.Uint32(d.pg.Data[off:])))
}

func (d *DirectoryPage) SetBucketPageID(idx int, id common.PageID) {
	off := dirBucketIDsOff + idx*4
	binary.LittleEndian.PutUint32(d.pg.Data[off:], uint32(int32(id)))
}

// GetSplitImageIndex is the directory slot obtained by flipping the top
// local-depth bit of idx: the sibling produced by a split, or consumed by
// a merge.
func (d *DirectoryPage) GetSplitImageIndex(idx int) int {
	ld := d.LocalDepth(idx)
	if ld == 0 {
		return idx
	}
	return idx ^ (1 << (ld - 1))
}

// IncrGlobalDepth doubles the active directory by mirroring the lower half
// into the upper half, then increments global depth. Returns
// common.ErrCapacityExhausted if doubling would exceed DirMax.
func (d *DirectoryPage) IncrGlobalDepth() error {
	oldSize := d.Size()
	if oldSize*2 > DirMax {
		return fmt.Errorf("hash: directory at DirMax=%d: %w", DirMax, common.ErrCapacityExhausted)
	}
	for i := 0; i < oldSize; i++ {
		d.SetBucketPageID(i+oldSize, d.BucketPageID(i))
		d.SetLocalDepth(i+oldSize, d.LocalDepth(i))
	}
	d.SetGlobalDepth(d.GlobalDepth() + 1)
	return nil
}

// DecrGlobalDepth halves the active directory.
func (d *DirectoryPage) DecrGlobalDepth() {
	d.SetGlobalDepth(d.GlobalDepth() - 1)
}

// CanShrink reports whether no active slot still needs the full global
// depth — i.e. every slot's local depth is strictly less than the global
// depth, so halving the directory loses no information.
func (d *DirectoryPage) CanShrink() bool {
	gd := d.GlobalDepth()
	for i := 0; i < d.Size(); i++ {
		if uint32(d.LocalDepth(i)) == gd {
			return false
		}
	}
	return true
}

// VerifyIntegrity checks spec invariant 2: every slot's local depth is in
// [0, global_depth], slots sharing a bucket id share their low local_depth
// bits, and at least one slot has local_depth == global_depth.
func (d *DirectoryPage) VerifyIntegrity() error {
	gd := d.GlobalDepth()
	sawMax := false
	for i := 0; i < d.Size(); i++ {
		ld := uint32(d.LocalDepth(i))
		if ld > gd {
			return fmt.Errorf("hash: slot %d has local_depth %d > global_depth %d: %w", i, ld, gd, common.ErrCorrupt)
		}
		if ld == gd {
			sawMax = true
		}
		mask := uint32(1<<ld) - 1
		for j := i + 1; j < d.Size(); j++ {
			if d.BucketPageID(i) == d.BucketPageID(j) && uint32(i)&mask != uint32(j)&mask {
				return fmt.Errorf("hash: slots %d,%d share bucket but not low %d bits: %w", i, j, ld, common.ErrCorrupt)
			}
		}
	}
	if !sawMax && d.Size() > 0 {
		return fmt.Errorf("hash: no slot at global_depth %d: %w", gd, common.ErrCorrupt)
	}
	return nil
}
