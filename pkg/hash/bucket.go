// Package hash implements the on-disk extendible hash index: a directory
// page of global/local depths and bucket page ids, and bucket pages holding
// a slot array with occupied/readable bitmaps.
package hash

import (
	"diskengine/pkg/common"
	"diskengine/pkg/page"
)

// BucketPage is a typed view over a borrowed page buffer: three parallel
// regions packed into the page's raw bytes — an occupied bitmap, a readable
// bitmap, and a slot array of (key,value) pairs. Once a slot has been
// written it stays occupied until overwritten; readable flips off on
// removal, so readable is always a subset of occupied.
type BucketPage[K comparable, V comparable] struct {
	pg         *page.Page
	size       int
	keyCodec   common.Codec[K]
	valCodec   common.Codec[V]
	cmp        common.Comparator[K]
	occupiedAt int
	readableAt int
	arrayAt    int
	slotWidth  int
}

func bitmapBytes(n int) int { return (n + 7) / 8 }

// NewBucketPage wraps pg as a bucket of the given slot capacity. The caller
// is responsible for ensuring pg's PageSize buffer is large enough for
// size slots of keyCodec.Size()+valCodec.Size() bytes plus the two bitmaps.
func NewBucketPage[K comparable, V comparable](pg *page.Page, size int, keyCodec common.Codec[K], valCodec common.Codec[V], cmp common.Comparator[K]) *BucketPage[K, V] {
	bm := bitmapBytes(size)
	return &BucketPage[K, V]{
		pg:         pg,
		size:       size,
		keyCodec:   keyCodec,
		valCodec:   valCodec,
		cmp:        cmp,
		occupiedAt: 0,
		readableAt: bm,
		arrayAt:    2 * bm,
		slotWidth:  keyCodec.Size() + valCodec.Size(),
	}
}

// BucketPageBytes returns the number of page bytes a bucket of size slots
// with the given key/value widths needs — used to validate size against
// common.PageSize at construction time for a given key/value pair.
func BucketPageBytes(size, keyWidth, valWidth int) int {
	return 2*bitmapBytes(size) + size*(keyWidth+valWidth)
}

func (b *BucketPage[K, V]) getBit(base, idx int) bool {
	byteIdx := base + idx/8
	bit := uint(idx % 8)
	return b.pg.Data[byteIdx]&(1<<bit) != 0
}

func (b *BucketPage[K, V]) setBit(base, idx int) {
	byteIdx := base + idx/8
	bit := uint(idx % 8)
	b.pg.Data[byteIdx] |= 1 << bit
}

func (b *BucketPage[K, V]) clearBit(base, idx int) {
	byteIdx := base + idx/8
	bit := uint(idx % 8)
	b.pg.Data[byteIdx] &^= 1 << bit
}

func (b *BucketPage[K, V]) IsOccupied(idx int) bool { return b.getBit(b.occupiedAt, idx) }
func (b *BucketPage[K, V]) IsReadable(idx int) bool { return b.getBit(b.readableAt, idx) }

func (b *BucketPage[K, V]) setOccupied(idx int)   { b.setBit(b.occupiedAt, idx) }
func (b *BucketPage[K, V]) setReadable(idx int)   { b.setBit(b.readableAt, idx) }
func (b *BucketPage[K, V]) clearReadable(idx int) { b.clearBit(b.readableAt, idx) }
func (b *BucketPage[K, V]) clearOccupied(idx int) { b.clearBit(b.occupiedAt, idx) }

func (b *BucketPage[K, V]) slotOffset(idx int) int { return b.arrayAt + idx*b.slotWidth }

// KeyAt returns the key stored at idx, regardless of occupied/readable.
func (b *BucketPage[K, V]) KeyAt(idx int) K {
	off := b.slotOffset(idx)
	return b.keyCodec.Decode(b.pg.Data[off : off+b.keyCodec.Size()])
}

// ValueAt returns the value stored at idx, regardless of occupied/readable.
func (b *BucketPage[K, V]) ValueAt(idx int) V {
	off := b.slotOffset(idx) + b.keyCodec.Size()
	return b.valCodec.Decode(b.pg.Data[off : off+b.valCodec.Size()])
}

func (b *BucketPage[K, V]) setSlot(idx int, k K, v V) {
	off := b.slotOffset(idx)
	copy(b.pg.Data[off:off+b.keyCodec.Size()], b.keyCodec.Encode(k))
	copy(b.pg.Data[off+b.keyCodec.Size():off+b.slotWidth], b.valCodec.Encode(v))
}

// IsExist reports whether (k,v) is already present and readable.
func (b *BucketPage[K, V]) IsExist(k K, v V) bool {
	for i := 0; i < b.size; i++ {
		if b.IsOccupied(i) && b.IsReadable(i) && b.cmp.Compare(b.KeyAt(i), k) == 0 && b.ValueAt(i) == v {
			return true
		}
	}
	return false
}

// Insert places (k,v) in the first slot that is not occupied or not
// readable (reusing tombstones), setting both bits. Returns false only if
// every slot is occupied+readable — callers are expected to check IsFull
// first and route to a split instead of relying on this return value.
func (b *BucketPage[K, V]) Insert(k K, v V) bool {
	for i := 0; i < b.size; i++ {
		if !b.IsOccupied(i) || !b.IsReadable(i) {
			b.setSlot(i, k, v)
			b.setOccupied(i)
			b.setReadable(i)
			return true
		}
	}
	return false
}

// Remove clears the readable bit of the slot matching (k,v) exactly.
// Occupied is left set — the slot is a tombstone, eligible for reuse by a
// future Insert.
func (b *BucketPage[K, V]) Remove(k K, v V) bool {
	for i := 0; i < b.size; i++ {
		if b.IsOccupied(i) && b.IsReadable(i) && b.cmp.Compare(b.KeyAt(i), k) == 0 && b.ValueAt(i) == v {
			b.clearReadable(i)
			return true
		}
	}
	return false
}

// GetValue returns every readable value whose key matches k.
func (b *BucketPage[K, V]) GetValue(k K) []V {
	var out []V
	for i := 0; i < b.size; i++ {
		if b.IsOccupied(i) && b.IsReadable(i) && b.cmp.Compare(b.KeyAt(i), k) == 0 {
			out = append(out, b.ValueAt(i))
		}
	}
	return out
}

// NumReadable counts readable slots. Split rehashing clears arbitrary slots
// via ClearSlot, so occupied slots are not necessarily a contiguous prefix
// — every slot must be checked, not just a leading run.
func (b *BucketPage[K, V]) NumReadable() int {
	count := 0
	for i := 0; i < b.size; i++ {
		if b.IsReadable(i) {
			count++
		}
	}
	return count
}

func (b *BucketPage[K, V]) IsFull() bool { return b.NumReadable() == b.size }
func (b *BucketPage[K, V]) IsEmpty() bool { return b.NumReadable() == 0 }

// AllReadable returns every (key, value) pair currently readable, in slot
// order — used by SplitInsert to rehash a bucket's contents.
func (b *BucketPage[K, V]) AllReadable() []struct {
	Slot int
	Key  K
	Val  V
} {
	var out []struct {
		Slot int
		Key  K
		Val  V
	}
	for i := 0; i < b.size; i++ {
		if b.IsOccupied(i) && b.IsReadable(i) {
			out = append(out, struct {
				Slot int
				Key  K
				Val  V
			}{i, b.KeyAt(i), b.ValueAt(i)})
		}
	}
	return out
}

// ClearSlot clears both occupied and readable bits for idx — used when
// rehashing an entry out of this bucket during a split.
func (b *BucketPage[K, V]) ClearSlot(idx int) {
	b.clearOccupied(idx)
	b.clearReadable(idx)
}
