package common

// PageID identifies a page uniquely across the whole on-disk address space.
// Signed so InvalidPageID can be represented without a sentinel out of range.
type PageID int32

// InvalidPageID is returned wherever spec text says "none" for a page id.
const InvalidPageID PageID = -1

// FrameID identifies a slot within a single BufferPoolInstance's frame array.
type FrameID int32

// HeaderPageID is the reserved page that stores the index-name -> root-id
// mapping consulted by btree.Open and written whenever a tree's root changes.
const HeaderPageID PageID = 0

// PageSize is the fixed on-disk and in-memory size of every page, in bytes.
const PageSize = 4096

// Comparator performs a three-way compare over a key type, mirroring the
// BusTub GenericComparator the indexes are templated on.
type Comparator[K any] interface {
	Compare(a, b K) int
}

// HashFunction produces a deterministic 64-bit hash down-cast to 32 bits,
// as required by the extendible hash table's KeyToDirectoryIndex.
type HashFunction[K any] interface {
	Hash(key K) uint32
}

// Codec encodes and decodes a fixed-width value for on-disk page layouts.
// Size must be constant for a given Codec instance: every slot in a bucket
// or leaf array is exactly Size() bytes, computed once at construction.
type Codec[T any] interface {
	Encode(v T) []byte
	Decode(b []byte) T
	Size() int
}

// Transaction is an opaque handle threaded through index operations. This
// core never inspects it; it exists so callers above the core can pass
// transaction context through without this package depending on that
// caller's transaction manager.
type Transaction struct {
	ID int64
}
