package hash

import (
	"encoding/binary"
	"testing"

	"diskengine/pkg/buffer"
	"diskengine/pkg/common"
	"diskengine/pkg/disk"
)

// identityHash hashes an Int64Key to its own low bits, so tests can choose
// exact directory slots by choosing key values.
type identityHash struct{}

func (identityHash) Hash(k common.Int64Key) uint32 { return uint32(k) }

// int32Codec is a minimal fixed-width Codec[int32] for test values.
type int32Codec struct{}

func (int32Codec) Size() int { return 4 }
func (int32Codec) Encode(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}
func (int32Codec) Decode(b []byte) int32 { return int32(binary.LittleEndian.Uint32(b)) }

func newTestPool(t *testing.T) *buffer.Instance {
	t.Helper()
	dir := t.TempDir()
	dm, err := disk.NewFileDiskManager(dir + "/hash.db")
	if err != nil {
		t.Fatalf("NewFileDiskManager: %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	return buffer.New(64, dm, disk.NopLogManager{}, buffer.ReplacerLRU)
}

// TestExtendibleSplit is scenario S4: BUCKET_ARRAY_SIZE=4. Directory
// indexing is hash(k) & global_mask (low bits), so keys 0,4,8,12,16 all
// share identical low bits at every depth up to 2 and keep colliding into
// the same bucket through repeated splits: {0,4,8,12} fills the bucket,
// and inserting 16 forces depth 0->1->2->3 before 0's low 3 bits (000)
// finally separate from 4's (100). The split peels 4 and 12 off into a
// sibling bucket, leaving 0,8,16 behind; both buckets end at local_depth=3.
func TestExtendibleSplit(t *testing.T) {
	pool := newTestPool(t)
	table, err := New[common.Int64Key, int32](pool, 4, common.Int64KeyCodec{}, int32Codec{}, common.Int64Comparator{}, identityHash{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	keys := []int64{0, 4, 8, 12, 16}
	for i, k := range keys {
		ok, err := table.Insert(common.Int64Key(k), int32(i))
		if err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
		if !ok {
			t.Fatalf("Insert(%d): expected success", k)
		}
	}

	dirPg, dir, err := table.fetchDirectory()
	if err != nil {
		t.Fatalf("fetchDirectory: %v", err)
	}
	defer pool.UnpinPage(dirPg.ID, false)

	if got := dir.GlobalDepth(); got != 3 {
		t.Fatalf("GlobalDepth: expected 3, got %d", got)
	}

	idx0 := int(identityHash{}.Hash(0)) & int(dir.GlobalDepthMask())
	idx4 := int(identityHash{}.Hash(4)) & int(dir.GlobalDepthMask())
	if got := dir.LocalDepth(idx0); got != 3 {
		t.Fatalf("LocalDepth(bucket for key 0): expected 3, got %d", got)
	}
	if got := dir.LocalDepth(idx4); got != 3 {
		t.Fatalf("LocalDepth(bucket for key 4): expected 3, got %d", got)
	}
}

func TestInsertGetValueRoundTrip(t *testing.T) {
	pool := newTestPool(t)
	table, err := New[common.Int64Key, int32](pool, 4, common.Int64KeyCodec{}, int32Codec{}, common.Int64Comparator{}, identityHash{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := int64(0); i < 20; i++ {
		if _, err := table.Insert(common.Int64Key(i), int32(i*10)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	for i := int64(0); i < 20; i++ {
		vals, err := table.GetValue(common.Int64Key(i))
		if err != nil {
			t.Fatalf("GetValue(%d): %v", i, err)
		}
		if len(vals) != 1 || vals[0] != int32(i*10) {
			t.Fatalf("GetValue(%d): expected [%d], got %v", i, i*10, vals)
		}
	}
}

func TestRemoveMissingKeyIsNoop(t *testing.T) {
	pool := newTestPool(t)
	table, err := New[common.Int64Key, int32](pool, 4, common.Int64KeyCodec{}, int32Codec{}, common.Int64Comparator{}, identityHash{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	removed, err := table.Remove(42, 0)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed {
		t.Fatalf("Remove: expected false for a key never inserted")
	}
}

func TestRemoveThenMerge(t *testing.T) {
	pool := newTestPool(t)
	table, err := New[common.Int64Key, int32](pool, 4, common.Int64KeyCodec{}, int32Codec{}, common.Int64Comparator{}, identityHash{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	keys := []int64{0b000, 0b001, 0b010, 0b011, 0b100}
	for i, k := range keys {
		if _, err := table.Insert(common.Int64Key(k), int32(i)); err != nil {
			t.Fatalf("Insert(%b): %v", k, err)
		}
	}
	for i, k := range keys {
		removed, err := table.Remove(common.Int64Key(k), int32(i))
		if err != nil {
			t.Fatalf("Remove(%b): %v", k, err)
		}
		if !removed {
			t.Fatalf("Remove(%b): expected true", k)
		}
	}

	for i, k := range keys {
		vals, err := table.GetValue(common.Int64Key(k))
		if err != nil {
			t.Fatalf("GetValue(%b): %v", k, err)
		}
		if len(vals) != 0 {
			t.Fatalf("GetValue(%b): expected empty after remove, got %v (i=%d)", k, vals, i)
		}
	}
}
