package btree

import (
	"testing"

	"diskengine/pkg/buffer"
	"diskengine/pkg/common"
	"diskengine/pkg/disk"
)

func newTestPool(t *testing.T) *buffer.Instance {
	t.Helper()
	dir := t.TempDir()
	dm, err := disk.NewFileDiskManager(dir + "/btree.db")
	if err != nil {
		t.Fatalf("NewFileDiskManager: %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	return buffer.New(64, dm, disk.NopLogManager{}, buffer.ReplacerLRU)
}

// reserveHeaderPage consumes page 0 as the header page, matching the
// allocation order cmd/demo relies on.
func reserveHeaderPage(t *testing.T, pool *buffer.Instance) {
	t.Helper()
	pg, err := pool.NewPage()
	if err != nil {
		t.Fatalf("reserve header page: %v", err)
	}
	if pg.ID != common.HeaderPageID {
		t.Fatalf("expected header page id %d, got %d", common.HeaderPageID, pg.ID)
	}
	NewHeaderPage(pg).Init()
	pool.UnpinPage(pg.ID, true)
}

// TestSplitAndMergeRoundTrip is scenario S5: leaf max_size=4, internal
// max_size=4. Inserting 10,20,30,40,5,15,25,35,45 splits leaves at
// {5,10} {15,20,25} {30,35} {40,45}, and the resulting internal node
// (holding leaf1,leaf3,leaf2's children plus the freshly split-off leaf4)
// itself overflows at size 4, producing a three-level tree whose single
// root separator is 40; removing every key in the given order leaves
// root_page_id == INVALID_PAGE_ID.
func TestSplitAndMergeRoundTrip(t *testing.T) {
	pool := newTestPool(t)
	reserveHeaderPage(t, pool)

	tree, err := Open[common.Int64Key, common.RID](pool, "s5", 4, 4, common.Int64KeyCodec{}, common.RIDCodec{}, common.Int64Comparator{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	insertKeys := []int64{10, 20, 30, 40, 5, 15, 25, 35, 45}
	for _, k := range insertKeys {
		ok, err := tree.Insert(common.Int64Key(k), common.RID{PageID: common.PageID(k)})
		if err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
		if !ok {
			t.Fatalf("Insert(%d): expected success", k)
		}
	}

	rootPg, err := pool.FetchPage(tree.rootPageID)
	if err != nil {
		t.Fatalf("fetch root: %v", err)
	}
	if PageKind(rootPg) != KindInternal {
		t.Fatalf("expected a multi-level tree (internal root), got kind %v", PageKind(rootPg))
	}
	root := tree.newInternal(rootPg)
	if root.Size() != 2 {
		t.Fatalf("expected a 3-level tree with a single root separator, got root size %d", root.Size())
	}
	separator := root.KeyAt(1)
	pool.UnpinPage(rootPg.ID, false)
	if separator != 40 {
		t.Fatalf("expected root separator 40, got %d", separator)
	}

	for _, k := range insertKeys {
		vals, err := tree.GetValue(common.Int64Key(k))
		if err != nil {
			t.Fatalf("GetValue(%d): %v", k, err)
		}
		if len(vals) != 1 || vals[0].PageID != common.PageID(k) {
			t.Fatalf("GetValue(%d): expected [%d], got %v", k, k, vals)
		}
	}

	removeKeys := []int64{5, 15, 25, 35, 45, 40, 30, 20, 10}
	for _, k := range removeKeys {
		ok, err := tree.Remove(common.Int64Key(k))
		if err != nil {
			t.Fatalf("Remove(%d): %v", k, err)
		}
		if !ok {
			t.Fatalf("Remove(%d): expected true", k)
		}
	}

	if tree.rootPageID != common.InvalidPageID {
		t.Fatalf("expected root_page_id == INVALID_PAGE_ID after removing everything, got %d", tree.rootPageID)
	}
	empty, err := tree.IsEmpty()
	if err != nil {
		t.Fatalf("IsEmpty: %v", err)
	}
	if !empty {
		t.Fatalf("expected IsEmpty() == true after removing everything")
	}
}

func TestRemoveMissingKeyIsNoop(t *testing.T) {
	pool := newTestPool(t)
	reserveHeaderPage(t, pool)

	tree, err := Open[common.Int64Key, common.RID](pool, "noop", 4, 4, common.Int64KeyCodec{}, common.RIDCodec{}, common.Int64Comparator{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := tree.Insert(1, common.RID{PageID: 1}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	ok, err := tree.Remove(999)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if ok {
		t.Fatalf("Remove: expected false for a key never inserted")
	}
}

func TestInsertDuplicateKeyFails(t *testing.T) {
	pool := newTestPool(t)
	reserveHeaderPage(t, pool)

	tree, err := Open[common.Int64Key, common.RID](pool, "dup", 4, 4, common.Int64KeyCodec{}, common.RIDCodec{}, common.Int64Comparator{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := tree.Insert(1, common.RID{PageID: 1}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	ok, err := tree.Insert(1, common.RID{PageID: 2})
	if err != nil {
		t.Fatalf("Insert duplicate: %v", err)
	}
	if ok {
		t.Fatalf("Insert duplicate: expected false")
	}
}
