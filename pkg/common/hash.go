package common

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Int64Key is the default fixed-width key type used by the demo wiring and
// the test suites, mirroring BusTub's GenericKey<8> instantiation.
type Int64Key int64

// Int64Comparator is the default Comparator[Int64Key].
type Int64Comparator struct{}

func (Int64Comparator) Compare(a, b Int64Key) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Int64KeyCodec encodes an Int64Key as 8 little-endian bytes.
type Int64KeyCodec struct{}

func (Int64KeyCodec) Size() int { return 8 }

func (Int64KeyCodec) Encode(v Int64Key) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

func (Int64KeyCodec) Decode(b []byte) Int64Key {
	return Int64Key(binary.LittleEndian.Uint64(b))
}

// RID ("record id") is the default value type: a page id plus a slot number
// within that page, mirroring BusTub's RID.
type RID struct {
	PageID  PageID
	SlotNum uint32
}

// RIDCodec encodes an RID as 8 little-endian bytes (4 for PageID, 4 for slot).
type RIDCodec struct{}

func (RIDCodec) Size() int { return 8 }

func (RIDCodec) Encode(v RID) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], uint32(v.PageID))
	binary.LittleEndian.PutUint32(b[4:8], v.SlotNum)
	return b
}

func (RIDCodec) Decode(b []byte) RID {
	return RID{
		PageID:  PageID(binary.LittleEndian.Uint32(b[0:4])),
		SlotNum: binary.LittleEndian.Uint32(b[4:8]),
	}
}

// XXHashFunction is the default HashFunction[Int64Key]: a deterministic
// 64-bit hash, down-cast to 32 bits, as spec'd for the extendible hash
// table's directory lookup.
type XXHashFunction struct{}

func (XXHashFunction) Hash(key Int64Key) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(key))
	sum := xxhash.Sum64(b[:])
	return uint32(sum)
}
