package btree

import (
	"encoding/binary"

	"diskengine/pkg/common"
	"diskengine/pkg/page"
)

// InternalPage is a typed view over a page holding size-1 keys and size
// child page ids, arranged so that array[0].key is an unused ghost value:
// array[i].child holds every key k with array[i].key <= k < array[i+1].key
// (array[0].child covers everything below array[1].key).
type InternalPage[K any] struct {
	header
	keyCodec  common.Codec[K]
	cmp       common.Comparator[K]
	slotWidth int
}

// NewInternalPage wraps pg as an internal view.
func NewInternalPage[K any](pg *page.Page, keyCodec common.Codec[K], cmp common.Comparator[K]) *InternalPage[K] {
	return &InternalPage[K]{
		header:    header{pg},
		keyCodec:  keyCodec,
		cmp:       cmp,
		slotWidth: keyCodec.Size() + 4,
	}
}

// InternalPageBytes reports how many page bytes an internal node of
// maxSize slots with the given key width needs.
func InternalPageBytes(maxSize int, keyWidth int) int {
	return internalArrayOff + maxSize*(keyWidth+4)
}

// Init sets up a freshly allocated, empty internal node.
func (n *InternalPage[K]) Init(pageID, parentID common.PageID, maxSize int32) {
	n.setKind(KindInternal)
	n.setPageID(pageID)
	n.SetParentPageID(parentID)
	n.setMaxSize(maxSize)
	n.SetSize(0)
}

// MinSize is ceil((max_size+1)/2).
func (n *InternalPage[K]) MinSize() int32 { return ceilDiv(n.MaxSize()+1, 2) }

func (n *InternalPage[K]) slotOffset(idx int) int { return internalArrayOff + idx*n.slotWidth }

func (n *InternalPage[K]) KeyAt(idx int) K {
	off := n.slotOffset(idx)
	return n.keyCodec.Decode(n.pg.Data[off : off+n.keyCodec.Size()])
}

func (n *InternalPage[K]) SetKeyAt(idx int, k K) {
	off := n.slotOffset(idx)
	copy(n.pg.Data[off:off+n.keyCodec.Size()], n.keyCodec.Encode(k))
}

func (n *InternalPage[K]) ValueAt(idx int) common.PageID {
	off := n.slotOffset(idx) + n.keyCodec.Size()
	return common.PageID(int32(binary.LittleEndian.Uint32(n.pg.Data[off:])))
}

func (n *InternalPage[K]) SetValueAt(idx int, id common.PageID) {
	off := n.slotOffset(idx) + n.keyCodec.Size()
	binary.LittleEndian.PutUint32(n.pg.Data[off:], uint32(int32(id)))
}

func (n *InternalPage[K]) setSlot(idx int, k K, id common.PageID) {
	n.SetKeyAt(idx, k)
	n.SetValueAt(idx, id)
}

// PopulateNewRoot sets up a brand new root with one separator key between
// two children. Slot 0's key is the unused ghost value.
func (n *InternalPage[K]) PopulateNewRoot(leftID common.PageID, key K, rightID common.PageID) {
	var ghost K
	n.setSlot(0, ghost, leftID)
	n.setSlot(1, key, rightID)
	n.SetSize(2)
}

// Lookup returns the index of the child page id that should be descended
// into for key k: the largest i with array[i].key <= k (slot 0 always
// qualifies, since its key is an unbounded lower sentinel).
func (n *InternalPage[K]) Lookup(k K) int {
	lo, hi := 1, int(n.Size())
	for lo < hi {
		mid := (lo + hi) / 2
		if n.cmp.Compare(n.KeyAt(mid), k) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - 1
}

// ValueIndex returns the slot index holding childID, or -1 if absent.
func (n *InternalPage[K]) ValueIndex(childID common.PageID) int {
	for i := 0; i < int(n.Size()); i++ {
		if n.ValueAt(i) == childID {
			return i
		}
	}
	return -1
}

// InsertNodeAfter inserts (key, newChildID) immediately after the slot
// holding oldChildID, shifting later slots right. Returns the new size.
func (n *InternalPage[K]) InsertNodeAfter(oldChildID common.PageID, key K, newChildID common.PageID) int32 {
	idx := n.ValueIndex(oldChildID)
	insertAt := idx + 1
	for i := int(n.Size()) - 1; i >= insertAt; i-- {
		n.setSlot(i+1, n.KeyAt(i), n.ValueAt(i))
	}
	n.setSlot(insertAt, key, newChildID)
	n.IncreaseSize(1)
	return n.Size()
}

// Remove deletes the slot at idx, shifting subsequent slots left.
func (n *InternalPage[K]) Remove(idx int) {
	for i := idx; i < int(n.Size())-1; i++ {
		n.setSlot(i, n.KeyAt(i+1), n.ValueAt(i+1))
	}
	n.IncreaseSize(-1)
}

type internalEntry[K any] struct {
	Key   K
	Child common.PageID
}

func (n *InternalPage[K]) entries(start, count int) []internalEntry[K] {
	out := make([]internalEntry[K], count)
	for i := 0; i < count; i++ {
		out[i] = internalEntry[K]{n.KeyAt(start + i), n.ValueAt(start + i)}
	}
	return out
}

func (n *InternalPage[K]) appendEntries(entries []internalEntry[K], reparent func(common.PageID)) {
	base := int(n.Size())
	for i, e := range entries {
		n.setSlot(base+i, e.Key, e.Child)
		reparent(e.Child)
	}
	n.IncreaseSize(int32(len(entries)))
}

// MoveHalfTo moves the upper size-min_size entries (including their slot-0
// ghost key, which becomes other's new slot-0 key) to the tail of other,
// calling reparent on each moved child so its parent_page_id stays correct.
func (n *InternalPage[K]) MoveHalfTo(other *InternalPage[K], reparent func(common.PageID)) {
	minSize := int(n.MinSize())
	removeSize := int(n.Size()) - minSize
	other.appendEntries(n.entries(minSize, removeSize), reparent)
	n.IncreaseSize(int32(-removeSize))
}

// MoveAllTo appends all of n's entries to other, reparenting each moved
// child.
func (n *InternalPage[K]) MoveAllTo(other *InternalPage[K], reparent func(common.PageID)) {
	other.appendEntries(n.entries(0, int(n.Size())), reparent)
	n.SetSize(0)
}

// MoveFirstToEndOf moves n's first entry to the end of other, replacing
// other's appended slot-0 ghost key with the separator key passed in by the
// caller (the B+-tree driver knows the parent's separator; this page type
// does not).
func (n *InternalPage[K]) MoveFirstToEndOf(other *InternalPage[K], newKeyForMoved K, reparent func(common.PageID)) {
	moved := n.entries(0, 1)[0]
	for i := 0; i < int(n.Size())-1; i++ {
		n.setSlot(i, n.KeyAt(i+1), n.ValueAt(i+1))
	}
	n.IncreaseSize(-1)
	other.setSlot(int(other.Size()), newKeyForMoved, moved.Child)
	other.IncreaseSize(1)
	reparent(moved.Child)
}

// MoveLastToFrontOf moves n's last entry to the front of other. The old
// slot-0 child shifts to slot 1 under separatorForSlot1, the separator key
// the caller pulled down from the parent; other's new slot-0 key is the
// unused ghost value.
func (n *InternalPage[K]) MoveLastToFrontOf(other *InternalPage[K], separatorForSlot1 K, reparent func(common.PageID)) {
	last := n.entries(int(n.Size())-1, 1)[0]
	n.IncreaseSize(-1)
	for i := int(other.Size()); i > 0; i-- {
		other.setSlot(i, other.KeyAt(i-1), other.ValueAt(i-1))
	}
	var ghost K
	other.setSlot(0, ghost, last.Child)
	other.SetKeyAt(1, separatorForSlot1)
	other.IncreaseSize(1)
	reparent(last.Child)
}
