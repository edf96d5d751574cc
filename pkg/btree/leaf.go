package btree

import (
	"encoding/binary"

	"diskengine/pkg/common"
	"diskengine/pkg/page"
)

// LeafPage is a typed view over a page holding a sorted (key,value) array
// plus a next_page_id right-sibling pointer. Keys are strictly increasing;
// min_size <= size <= max_size-1 holds after every public operation (a
// leaf is split once size reaches max_size).
type LeafPage[K any, V any] struct {
	header
	keyCodec  common.Codec[K]
	valCodec  common.Codec[V]
	cmp       common.Comparator[K]
	slotWidth int
}

// NewLeafPage wraps pg as a leaf view.
func NewLeafPage[K any, V any](pg *page.Page, keyCodec common.Codec[K], valCodec common.Codec[V], cmp common.Comparator[K]) *LeafPage[K, V] {
	return &LeafPage[K, V]{
		header:    header{pg},
		keyCodec:  keyCodec,
		valCodec:  valCodec,
		cmp:       cmp,
		slotWidth: keyCodec.Size() + valCodec.Size(),
	}
}

// LeafPageBytes reports how many page bytes a leaf of maxSize slots with
// the given key/value widths needs.
func LeafPageBytes(maxSize int, keyWidth, valWidth int) int {
	return leafArrayOff + maxSize*(keyWidth+valWidth)
}

// Init sets up a freshly allocated leaf: empty, no right sibling.
func (l *LeafPage[K, V]) Init(pageID, parentID common.PageID, maxSize int32) {
	l.setKind(KindLeaf)
	l.setPageID(pageID)
	l.SetParentPageID(parentID)
	l.setMaxSize(maxSize)
	l.SetSize(0)
	l.SetNextPageID(common.InvalidPageID)
}

// MinSize is ceil(max_size/2).
func (l *LeafPage[K, V]) MinSize() int32 { return ceilDiv(l.MaxSize(), 2) }

func (l *LeafPage[K, V]) NextPageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(l.pg.Data[leafNextOff:])))
}

func (l *LeafPage[K, V]) SetNextPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(l.pg.Data[leafNextOff:], uint32(int32(id)))
}

func (l *LeafPage[K, V]) slotOffset(idx int) int { return leafArrayOff + idx*l.slotWidth }

func (l *LeafPage[K, V]) KeyAt(idx int) K {
	off := l.slotOffset(idx)
	return l.keyCodec.Decode(l.pg.Data[off : off+l.keyCodec.Size()])
}

func (l *LeafPage[K, V]) ValueAt(idx int) V {
	off := l.slotOffset(idx) + l.keyCodec.Size()
	return l.valCodec.Decode(l.pg.Data[off : off+l.valCodec.Size()])
}

func (l *LeafPage[K, V]) setSlot(idx int, k K, v V) {
	off := l.slotOffset(idx)
	copy(l.pg.Data[off:off+l.keyCodec.Size()], l.keyCodec.Encode(k))
	copy(l.pg.Data[off+l.keyCodec.Size():off+l.slotWidth], l.valCodec.Encode(v))
}

// KeyIndex is the first index i with array[i].key >= k (a standard
// lower-bound binary search).
func (l *LeafPage[K, V]) KeyIndex(k K) int {
	lo, hi := 0, int(l.Size())
	for lo < hi {
		mid := (lo + hi) / 2
		if l.cmp.Compare(l.KeyAt(mid), k) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Insert places (k,v) in sorted position. A no-op (returns the unchanged
// size) if k is already present.
func (l *LeafPage[K, V]) Insert(k K, v V) int32 {
	idx := l.KeyIndex(k)
	if idx < int(l.Size()) && l.cmp.Compare(l.KeyAt(idx), k) == 0 {
		return l.Size()
	}
	for i := int(l.Size()) - 1; i >= idx; i-- {
		l.setSlot(i+1, l.KeyAt(i), l.ValueAt(i))
	}
	l.setSlot(idx, k, v)
	l.IncreaseSize(1)
	return l.Size()
}

// Lookup reports the value stored under k, if present.
func (l *LeafPage[K, V]) Lookup(k K) (V, bool) {
	idx := l.KeyIndex(k)
	if idx < int(l.Size()) && l.cmp.Compare(l.KeyAt(idx), k) == 0 {
		return l.ValueAt(idx), true
	}
	var zero V
	return zero, false
}

// RemoveAndDeleteRecord removes k if present, shifting subsequent entries
// left to keep the array contiguous.
func (l *LeafPage[K, V]) RemoveAndDeleteRecord(k K) int32 {
	idx := l.KeyIndex(k)
	if idx < int(l.Size()) && l.cmp.Compare(l.KeyAt(idx), k) == 0 {
		for i := idx; i < int(l.Size())-1; i++ {
			l.setSlot(i, l.KeyAt(i+1), l.ValueAt(i+1))
		}
		l.IncreaseSize(-1)
	}
	return l.Size()
}

type leafEntry[K any, V any] struct {
	Key K
	Val V
}

func (l *LeafPage[K, V]) entries(start, n int) []leafEntry[K, V] {
	out := make([]leafEntry[K, V], n)
	for i := 0; i < n; i++ {
		out[i] = leafEntry[K, V]{l.KeyAt(start + i), l.ValueAt(start + i)}
	}
	return out
}

func (l *LeafPage[K, V]) appendEntries(entries []leafEntry[K, V]) {
	base := int(l.Size())
	for i, e := range entries {
		l.setSlot(base+i, e.Key, e.Val)
	}
	l.IncreaseSize(int32(len(entries)))
}

// MoveHalfTo moves the upper size-min_size entries to the tail of other.
// The caller is responsible for stitching next_page_id afterward.
func (l *LeafPage[K, V]) MoveHalfTo(other *LeafPage[K, V]) {
	minSize := int(l.MinSize())
	removeSize := int(l.Size()) - minSize
	other.appendEntries(l.entries(minSize, removeSize))
	l.IncreaseSize(int32(-removeSize))
}

// MoveAllTo appends all of l's entries to other. The caller is responsible
// for stitching next_page_id afterward.
func (l *LeafPage[K, V]) MoveAllTo(other *LeafPage[K, V]) {
	other.appendEntries(l.entries(0, int(l.Size())))
	l.SetSize(0)
}

// MoveFirstToEndOf moves l's first entry to the end of other's array.
func (l *LeafPage[K, V]) MoveFirstToEndOf(other *LeafPage[K, V]) {
	other.appendEntries(l.entries(0, 1))
	for i := 0; i < int(l.Size())-1; i++ {
		l.setSlot(i, l.KeyAt(i+1), l.ValueAt(i+1))
	}
	l.IncreaseSize(-1)
}

// MoveLastToFrontOf moves l's last entry to the front of other's array.
func (l *LeafPage[K, V]) MoveLastToFrontOf(other *LeafPage[K, V]) {
	last := l.entries(int(l.Size())-1, 1)[0]
	l.IncreaseSize(-1)
	for i := int(other.Size()); i > 0; i-- {
		other.setSlot(i, other.KeyAt(i-1), other.ValueAt(i-1))
	}
	other.setSlot(0, last.Key, last.Val)
	other.IncreaseSize(1)
}
