package btree

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"diskengine/pkg/common"
	"diskengine/pkg/page"
)

var log = logrus.WithField("component", "btree")

// BufferPool is the subset of buffer.Instance/buffer.Parallel's API the
// B+-tree needs.
type BufferPool interface {
	FetchPage(id common.PageID) (*page.Page, error)
	NewPage() (*page.Page, error)
	UnpinPage(id common.PageID, isDirty bool) error
	DeletePage(id common.PageID) error
}

// Tree is the on-disk B+-tree index: a chain of sorted leaf pages under a
// tree of internal pages, rooted at a page id persisted by name in the
// header page at common.HeaderPageID.
//
// A single read-write latch protects all structural work (root changes,
// splits, merges), taken exactly once per public call; the unexported
// insert/remove helpers assume it is already held, the same restructuring
// used by pkg/hash to avoid the reentrant-latch pattern original_source's
// C++ relies on.
type Tree[K any, V any] struct {
	mu sync.RWMutex

	pool            BufferPool
	name            string
	leafMaxSize     int32
	internalMaxSize int32
	keyCodec        common.Codec[K]
	valCodec        common.Codec[V]
	cmp             common.Comparator[K]

	rootPageID common.PageID
}

// Open attaches to a named tree by reading its root page id from the header
// page. A name with no record there opens as an empty tree; Open writes
// nothing, and the record is created on the tree's first root change.
func Open[K any, V any](pool BufferPool, name string, leafMaxSize, internalMaxSize int32, keyCodec common.Codec[K], valCodec common.Codec[V], cmp common.Comparator[K]) (*Tree[K, V], error) {
	t := &Tree[K, V]{
		pool:            pool,
		name:            name,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		keyCodec:        keyCodec,
		valCodec:        valCodec,
		cmp:             cmp,
	}

	headerPg, err := pool.FetchPage(common.HeaderPageID)
	if err != nil {
		return nil, fmt.Errorf("btree: fetch header page: %w", err)
	}
	header := NewHeaderPage(headerPg)
	rootID, ok := header.GetRootID(name)
	pool.UnpinPage(headerPg.ID, false)
	if !ok {
		rootID = common.InvalidPageID
	}
	t.rootPageID = rootID
	return t, nil
}

func (t *Tree[K, V]) newLeaf(pg *page.Page) *LeafPage[K, V] {
	return NewLeafPage(pg, t.keyCodec, t.valCodec, t.cmp)
}

func (t *Tree[K, V]) newInternal(pg *page.Page) *InternalPage[K] {
	return NewInternalPage(pg, t.keyCodec, t.cmp)
}

// reparentTo returns a callback suitable for InternalPage's Move* methods:
// it fetches the child, rewrites its parent_page_id, and unpins it dirty.
func (t *Tree[K, V]) reparentTo(parentID common.PageID) func(common.PageID) {
	return func(childID common.PageID) {
		pg, err := t.pool.FetchPage(childID)
		if err != nil {
			log.WithError(err).WithField("child", childID).Warn("reparent: fetch failed")
			return
		}
		header{pg}.SetParentPageID(parentID)
		t.pool.UnpinPage(pg.ID, true)
	}
}

func (t *Tree[K, V]) updateRootPageIDLocked() error {
	headerPg, err := t.pool.FetchPage(common.HeaderPageID)
	if err != nil {
		return fmt.Errorf("btree: fetch header page: %w", err)
	}
	NewHeaderPage(headerPg).SetRootID(t.name, t.rootPageID)
	return t.pool.UnpinPage(headerPg.ID, true)
}

// IsEmpty reports whether the tree holds no keys: no root page, an empty
// leaf root, or a degenerate single-child internal root left behind by a
// remove sequence that has not yet run AdjustRoot.
func (t *Tree[K, V]) IsEmpty() (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isEmptyLocked()
}

func (t *Tree[K, V]) isEmptyLocked() (bool, error) {
	if t.rootPageID == common.InvalidPageID {
		return true, nil
	}
	pg, err := t.pool.FetchPage(t.rootPageID)
	if err != nil {
		return false, err
	}
	var empty bool
	switch PageKind(pg) {
	case KindLeaf:
		empty = t.newLeaf(pg).Size() == 0
	case KindInternal:
		empty = t.newInternal(pg).Size() <= 1
	}
	t.pool.UnpinPage(pg.ID, false)
	return empty, nil
}

// findLeafPageLocked descends from the root to the leaf that may contain k.
func (t *Tree[K, V]) findLeafPageLocked(k K) (common.PageID, error) {
	pageID := t.rootPageID
	for {
		pg, err := t.pool.FetchPage(pageID)
		if err != nil {
			return common.InvalidPageID, fmt.Errorf("btree: descend to leaf: %w", err)
		}
		if PageKind(pg) == KindLeaf {
			t.pool.UnpinPage(pg.ID, false)
			return pageID, nil
		}
		internal := t.newInternal(pg)
		childID := internal.ValueAt(internal.Lookup(k))
		t.pool.UnpinPage(pg.ID, false)
		pageID = childID
	}
}

// GetValue returns every value stored under k (unique by contract; the scan
// is written generically in case that contract is ever relaxed).
func (t *Tree[K, V]) GetValue(k K) ([]V, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	empty, err := t.isEmptyLocked()
	if err != nil || empty {
		return nil, err
	}

	leafID, err := t.findLeafPageLocked(k)
	if err != nil {
		return nil, err
	}
	pg, err := t.pool.FetchPage(leafID)
	if err != nil {
		return nil, err
	}
	leaf := t.newLeaf(pg)

	var out []V
	for i := leaf.KeyIndex(k); i < int(leaf.Size()) && t.cmp.Compare(leaf.KeyAt(i), k) == 0; i++ {
		out = append(out, leaf.ValueAt(i))
	}
	t.pool.UnpinPage(pg.ID, false)
	return out, nil
}

// Insert adds (k,v). Returns false if k is already present.
func (t *Tree[K, V]) Insert(k K, v V) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	empty, err := t.isEmptyLocked()
	if err != nil {
		return false, err
	}
	if empty {
		return t.startNewTree(k, v)
	}
	return t.insertIntoLeaf(k, v)
}

func (t *Tree[K, V]) startNewTree(k K, v V) (bool, error) {
	pg, err := t.pool.NewPage()
	if err != nil {
		return false, fmt.Errorf("btree: allocate root leaf: %w", err)
	}
	leaf := t.newLeaf(pg)
	leaf.Init(pg.ID, common.InvalidPageID, t.leafMaxSize)
	leaf.Insert(k, v)

	t.rootPageID = pg.ID
	t.pool.UnpinPage(pg.ID, true)

	if err := t.updateRootPageIDLocked(); err != nil {
		return false, err
	}
	log.WithFields(logrus.Fields{"tree": t.name, "root": pg.ID}).Debug("started new tree")
	return true, nil
}

func (t *Tree[K, V]) insertIntoLeaf(k K, v V) (bool, error) {
	leafID, err := t.findLeafPageLocked(k)
	if err != nil {
		return false, err
	}
	pg, err := t.pool.FetchPage(leafID)
	if err != nil {
		return false, err
	}
	leaf := t.newLeaf(pg)

	if _, ok := leaf.Lookup(k); ok {
		t.pool.UnpinPage(pg.ID, false)
		return false, nil
	}
	leaf.Insert(k, v)

	if leaf.Size() < t.leafMaxSize {
		t.pool.UnpinPage(pg.ID, true)
		return true, nil
	}

	newPg, err := t.pool.NewPage()
	if err != nil {
		t.pool.UnpinPage(pg.ID, true)
		return false, fmt.Errorf("btree: allocate split leaf: %w", err)
	}
	newLeaf := t.newLeaf(newPg)
	newLeaf.Init(newPg.ID, leaf.ParentPageID(), t.leafMaxSize)
	leaf.MoveHalfTo(newLeaf)
	newLeaf.SetNextPageID(leaf.NextPageID())
	leaf.SetNextPageID(newPg.ID)
	splitKey := newLeaf.KeyAt(0)

	oldID := pg.ID
	t.pool.UnpinPage(oldID, true)
	t.pool.UnpinPage(newPg.ID, true)

	if err := t.insertIntoParent(oldID, splitKey, newPg.ID); err != nil {
		return false, err
	}
	return true, nil
}

// insertIntoParent threads a freshly split child's separator key into its
// parent, growing a new root if old had none, recursing if the parent
// itself overflows.
func (t *Tree[K, V]) insertIntoParent(oldID common.PageID, key K, newID common.PageID) error {
	oldPg, err := t.pool.FetchPage(oldID)
	if err != nil {
		return err
	}
	parentID := header{oldPg}.ParentPageID()
	t.pool.UnpinPage(oldPg.ID, false)

	if parentID == common.InvalidPageID {
		rootPg, err := t.pool.NewPage()
		if err != nil {
			return fmt.Errorf("btree: allocate new root: %w", err)
		}
		root := t.newInternal(rootPg)
		root.Init(rootPg.ID, common.InvalidPageID, t.internalMaxSize)
		root.PopulateNewRoot(oldID, key, newID)
		t.pool.UnpinPage(rootPg.ID, true)

		t.reparentTo(rootPg.ID)(oldID)
		t.reparentTo(rootPg.ID)(newID)

		t.rootPageID = rootPg.ID
		log.WithFields(logrus.Fields{"tree": t.name, "root": rootPg.ID}).Debug("grew new root")
		return t.updateRootPageIDLocked()
	}

	parentPg, err := t.pool.FetchPage(parentID)
	if err != nil {
		return err
	}
	parent := t.newInternal(parentPg)
	parent.InsertNodeAfter(oldID, key, newID)
	t.reparentTo(parentID)(newID)

	if parent.Size() < t.internalMaxSize {
		t.pool.UnpinPage(parentPg.ID, true)
		return nil
	}

	newParentPg, err := t.pool.NewPage()
	if err != nil {
		t.pool.UnpinPage(parentPg.ID, true)
		return fmt.Errorf("btree: allocate split internal: %w", err)
	}
	newParent := t.newInternal(newParentPg)
	newParent.Init(newParentPg.ID, parent.ParentPageID(), t.internalMaxSize)
	parent.MoveHalfTo(newParent, t.reparentTo(newParentPg.ID))
	splitKey := newParent.KeyAt(0)

	oldParentID := parentPg.ID
	t.pool.UnpinPage(oldParentID, true)
	t.pool.UnpinPage(newParentPg.ID, true)

	return t.insertIntoParent(oldParentID, splitKey, newParentPg.ID)
}

// Remove deletes k, if present, cascading coalesce/redistribute up the tree
// if the owning leaf underflows.
func (t *Tree[K, V]) Remove(k K) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	empty, err := t.isEmptyLocked()
	if err != nil || empty {
		return false, err
	}

	leafID, err := t.findLeafPageLocked(k)
	if err != nil {
		return false, err
	}
	pg, err := t.pool.FetchPage(leafID)
	if err != nil {
		return false, err
	}
	leaf := t.newLeaf(pg)

	before := leaf.Size()
	leaf.RemoveAndDeleteRecord(k)
	if leaf.Size() == before {
		t.pool.UnpinPage(pg.ID, false)
		return false, nil
	}
	t.pool.UnpinPage(pg.ID, true)

	if err := t.coalesceOrRedistributeLeaf(leafID); err != nil {
		return true, err
	}
	return true, nil
}

func (t *Tree[K, V]) adjustRootLeaf(pg *page.Page, leaf *LeafPage[K, V]) error {
	if leaf.Size() != 0 {
		t.pool.UnpinPage(pg.ID, false)
		return nil
	}
	nodeID := pg.ID
	t.pool.UnpinPage(pg.ID, false)
	t.rootPageID = common.InvalidPageID
	if err := t.pool.DeletePage(nodeID); err != nil {
		return err
	}
	return t.updateRootPageIDLocked()
}

func (t *Tree[K, V]) adjustRootInternal(pg *page.Page, root *InternalPage[K]) error {
	if root.Size() != 1 {
		t.pool.UnpinPage(pg.ID, false)
		return nil
	}
	childID := root.ValueAt(0)
	nodeID := pg.ID
	t.pool.UnpinPage(pg.ID, false)

	childPg, err := t.pool.FetchPage(childID)
	if err != nil {
		return err
	}
	header{childPg}.SetParentPageID(common.InvalidPageID)
	t.pool.UnpinPage(childPg.ID, true)

	t.rootPageID = childID
	if err := t.pool.DeletePage(nodeID); err != nil {
		return err
	}
	return t.updateRootPageIDLocked()
}

func (t *Tree[K, V]) coalesceOrRedistributeLeaf(nodeID common.PageID) error {
	pg, err := t.pool.FetchPage(nodeID)
	if err != nil {
		return err
	}
	node := t.newLeaf(pg)
	parentID := node.ParentPageID()

	if parentID == common.InvalidPageID {
		return t.adjustRootLeaf(pg, node)
	}
	if node.Size() >= node.MinSize() {
		t.pool.UnpinPage(pg.ID, false)
		return nil
	}

	parentPg, err := t.pool.FetchPage(parentID)
	if err != nil {
		t.pool.UnpinPage(pg.ID, false)
		return err
	}
	parent := t.newInternal(parentPg)
	index := parent.ValueIndex(nodeID)

	var siblingID common.PageID
	if index == 0 {
		siblingID = parent.ValueAt(1)
	} else {
		siblingID = parent.ValueAt(index - 1)
	}
	siblingPg, err := t.pool.FetchPage(siblingID)
	if err != nil {
		t.pool.UnpinPage(pg.ID, false)
		t.pool.UnpinPage(parentPg.ID, false)
		return err
	}
	sibling := t.newLeaf(siblingPg)

	if sibling.Size()+node.Size() <= t.leafMaxSize-1 {
		var deletedID common.PageID
		if index == 0 {
			sibling.MoveAllTo(node)
			node.SetNextPageID(sibling.NextPageID())
			parent.Remove(1)
			deletedID = siblingID
		} else {
			node.MoveAllTo(sibling)
			sibling.SetNextPageID(node.NextPageID())
			parent.Remove(index)
			deletedID = nodeID
		}
		t.pool.UnpinPage(pg.ID, true)
		t.pool.UnpinPage(siblingPg.ID, true)
		t.pool.UnpinPage(parentPg.ID, true)
		if err := t.pool.DeletePage(deletedID); err != nil {
			return err
		}
		return t.coalesceOrRedistributeInternal(parentID)
	}

	if index == 0 {
		sibling.MoveFirstToEndOf(node)
		parent.SetKeyAt(1, sibling.KeyAt(0))
	} else {
		sibling.MoveLastToFrontOf(node)
		parent.SetKeyAt(index, node.KeyAt(0))
	}
	t.pool.UnpinPage(pg.ID, true)
	t.pool.UnpinPage(siblingPg.ID, true)
	t.pool.UnpinPage(parentPg.ID, true)
	return nil
}

func (t *Tree[K, V]) coalesceOrRedistributeInternal(nodeID common.PageID) error {
	pg, err := t.pool.FetchPage(nodeID)
	if err != nil {
		return err
	}
	node := t.newInternal(pg)
	parentID := node.ParentPageID()

	if parentID == common.InvalidPageID {
		return t.adjustRootInternal(pg, node)
	}
	if node.Size() >= node.MinSize() {
		t.pool.UnpinPage(pg.ID, false)
		return nil
	}

	parentPg, err := t.pool.FetchPage(parentID)
	if err != nil {
		t.pool.UnpinPage(pg.ID, false)
		return err
	}
	parent := t.newInternal(parentPg)
	index := parent.ValueIndex(nodeID)

	var siblingID common.PageID
	if index == 0 {
		siblingID = parent.ValueAt(1)
	} else {
		siblingID = parent.ValueAt(index - 1)
	}
	siblingPg, err := t.pool.FetchPage(siblingID)
	if err != nil {
		t.pool.UnpinPage(pg.ID, false)
		t.pool.UnpinPage(parentPg.ID, false)
		return err
	}
	sibling := t.newInternal(siblingPg)

	if sibling.Size()+node.Size() <= t.internalMaxSize {
		var deletedID common.PageID
		if index == 0 {
			separator := parent.KeyAt(1)
			sibling.SetKeyAt(0, separator)
			sibling.MoveAllTo(node, t.reparentTo(nodeID))
			parent.Remove(1)
			deletedID = siblingID
		} else {
			separator := parent.KeyAt(index)
			node.SetKeyAt(0, separator)
			node.MoveAllTo(sibling, t.reparentTo(siblingID))
			parent.Remove(index)
			deletedID = nodeID
		}
		t.pool.UnpinPage(pg.ID, true)
		t.pool.UnpinPage(siblingPg.ID, true)
		t.pool.UnpinPage(parentPg.ID, true)
		if err := t.pool.DeletePage(deletedID); err != nil {
			return err
		}
		return t.coalesceOrRedistributeInternal(parentID)
	}

	if index == 0 {
		separator := parent.KeyAt(1)
		sibling.MoveFirstToEndOf(node, separator, t.reparentTo(nodeID))
		parent.SetKeyAt(1, sibling.KeyAt(0))
	} else {
		separator := parent.KeyAt(index)
		newSeparator := sibling.KeyAt(int(sibling.Size()) - 1)
		sibling.MoveLastToFrontOf(node, separator, t.reparentTo(nodeID))
		parent.SetKeyAt(index, newSeparator)
	}
	t.pool.UnpinPage(pg.ID, true)
	t.pool.UnpinPage(siblingPg.ID, true)
	t.pool.UnpinPage(parentPg.ID, true)
	return nil
}
