package hash

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"diskengine/pkg/common"
	"diskengine/pkg/page"
)

var log = logrus.WithField("component", "hash")

// BufferPool is the subset of buffer.Instance/buffer.Parallel's API the
// hash table needs.
type BufferPool interface {
	FetchPage(id common.PageID) (*page.Page, error)
	NewPage() (*page.Page, error)
	UnpinPage(id common.PageID, isDirty bool) error
	DeletePage(id common.PageID) error
}

// Table is the on-disk extendible hash index: a directory page of
// global/local depths and bucket page ids, fronting bucket pages that hold
// the actual (key,value) slots.
//
// A single read-write latch protects all of the table's structural work
// (directory growth, bucket split/merge). original_source's Insert takes
// this latch and calls SplitInsert, which takes it again — a reentrant
// acquire that Go's sync.RWMutex does not support. Here the public
// GetValue/Insert/Remove take the latch exactly once; the unexported
// splitInsert/merge assume it is already held and are called directly by
// Insert/Remove without re-locking.
type Table[K comparable, V comparable] struct {
	mu sync.RWMutex

	pool       BufferPool
	dirPageID  common.PageID
	bucketSize int
	keyCodec   common.Codec[K]
	valCodec   common.Codec[V]
	cmp        common.Comparator[K]
	hashFn     common.HashFunction[K]
}

// New constructs a fresh extendible hash table: a directory page with a
// single bucket at global depth 0.
func New[K comparable, V comparable](pool BufferPool, bucketSize int, keyCodec common.Codec[K], valCodec common.Codec[V], cmp common.Comparator[K], hashFn common.HashFunction[K]) (*Table[K, V], error) {
	dirPg, err := pool.NewPage()
	if err != nil {
		return nil, fmt.Errorf("hash: allocate directory page: %w", err)
	}
	bucketPg, err := pool.NewPage()
	if err != nil {
		pool.UnpinPage(dirPg.ID, false)
		return nil, fmt.Errorf("hash: allocate initial bucket page: %w", err)
	}

	dir := NewDirectoryPage(dirPg)
	dir.Init(dirPg.ID, bucketPg.ID)

	pool.UnpinPage(dirPg.ID, true)
	pool.UnpinPage(bucketPg.ID, true)

	return &Table[K, V]{
		pool:       pool,
		dirPageID:  dirPg.ID,
		bucketSize: bucketSize,
		keyCodec:   keyCodec,
		valCodec:   valCodec,
		cmp:        cmp,
		hashFn:     hashFn,
	}, nil
}

// Open attaches to an existing directory page, e.g. after a restart.
func Open[K comparable, V comparable](pool BufferPool, dirPageID common.PageID, bucketSize int, keyCodec common.Codec[K], valCodec common.Codec[V], cmp common.Comparator[K], hashFn common.HashFunction[K]) *Table[K, V] {
	return &Table[K, V]{
		pool:       pool,
		dirPageID:  dirPageID,
		bucketSize: bucketSize,
		keyCodec:   keyCodec,
		valCodec:   valCodec,
		cmp:        cmp,
		hashFn:     hashFn,
	}
}

func (t *Table[K, V]) fetchDirectory() (*page.Page, *DirectoryPage, error) {
	pg, err := t.pool.FetchPage(t.dirPageID)
	if err != nil {
		return nil, nil, fmt.Errorf("hash: fetch directory: %w", err)
	}
	return pg, NewDirectoryPage(pg), nil
}

func (t *Table[K, V]) fetchBucket(id common.PageID) (*page.Page, *BucketPage[K, V], error) {
	pg, err := t.pool.FetchPage(id)
	if err != nil {
		return nil, nil, fmt.Errorf("hash: fetch bucket %d: %w", id, err)
	}
	return pg, NewBucketPage(pg, t.bucketSize, t.keyCodec, t.valCodec, t.cmp), nil
}

// KeyToDirectoryIndex is hash(k) & ((1 << global_depth) - 1).
func (t *Table[K, V]) keyToDirectoryIndex(k K, dir *DirectoryPage) int {
	return int(t.hashFn.Hash(k) & dir.GlobalDepthMask())
}

// KeyToPageId resolves k to the bucket page id it currently hashes to.
func (t *Table[K, V]) KeyToPageId(k K, dir *DirectoryPage) common.PageID {
	return dir.BucketPageID(t.keyToDirectoryIndex(k, dir))
}

// GetValue returns every value stored under k.
func (t *Table[K, V]) GetValue(k K) ([]V, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	dirPg, dir, err := t.fetchDirectory()
	if err != nil {
		return nil, err
	}
	bucketID := t.KeyToPageId(k, dir)
	bucketPg, bucket, err := t.fetchBucket(bucketID)
	if err != nil {
		t.pool.UnpinPage(dirPg.ID, false)
		return nil, err
	}

	vals := bucket.GetValue(k)

	t.pool.UnpinPage(bucketPg.ID, false)
	t.pool.UnpinPage(dirPg.ID, false)
	return vals, nil
}

// Insert adds (k,v). Returns false if (k,v) is already present.
func (t *Table[K, V]) Insert(k K, v V) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.insertLocked(k, v)
}

func (t *Table[K, V]) insertLocked(k K, v V) (bool, error) {
	dirPg, dir, err := t.fetchDirectory()
	if err != nil {
		return false, err
	}
	bucketID := t.KeyToPageId(k, dir)
	bucketPg, bucket, err := t.fetchBucket(bucketID)
	if err != nil {
		t.pool.UnpinPage(dirPg.ID, false)
		return false, err
	}

	if bucket.IsExist(k, v) {
		t.pool.UnpinPage(bucketPg.ID, false)
		t.pool.UnpinPage(dirPg.ID, false)
		return false, nil
	}

	if !bucket.IsFull() {
		bucket.Insert(k, v)
		t.pool.UnpinPage(bucketPg.ID, true)
		t.pool.UnpinPage(dirPg.ID, false)
		return true, nil
	}

	// Bucket full: release both pages (splitInsert re-fetches them) and grow.
	t.pool.UnpinPage(bucketPg.ID, false)
	t.pool.UnpinPage(dirPg.ID, false)
	return t.splitInsert(k, v)
}

// splitInsert grows the directory (if every slot pointing at the target
// bucket is already at global depth) or just the bucket's local depth,
// rehashes the old bucket's contents across the split, and re-attempts the
// insert. Assumes t.mu is held for writing.
func (t *Table[K, V]) splitInsert(k K, v V) (bool, error) {
	dirPg, dir, err := t.fetchDirectory()
	if err != nil {
		return false, err
	}

	idx := t.keyToDirectoryIndex(k, dir)
	ld := dir.LocalDepth(idx)
	gd := dir.GlobalDepth()

	if uint32(ld) == gd {
		if err := dir.IncrGlobalDepth(); err != nil {
			t.pool.UnpinPage(dirPg.ID, false)
			return false, err
		}
		// idx's low bits are unchanged by doubling; re-derive to be safe.
		idx = t.keyToDirectoryIndex(k, dir)
	}

	newBucketPg, err := t.pool.NewPage()
	if err != nil {
		t.pool.UnpinPage(dirPg.ID, true)
		return false, fmt.Errorf("hash: allocate split bucket: %w", err)
	}
	newBucket := NewBucketPage(newBucketPg, t.bucketSize, t.keyCodec, t.valCodec, t.cmp)

	oldBucketID := dir.BucketPageID(idx)
	oldBucketPg, oldBucket, err := t.fetchBucket(oldBucketID)
	if err != nil {
		t.pool.UnpinPage(newBucketPg.ID, false)
		t.pool.UnpinPage(dirPg.ID, true)
		return false, err
	}

	mask := uint32(1<<ld) - 1
	newLD := ld + 1
	for s := 0; s < dir.Size(); s++ {
		if uint32(s)&mask != uint32(idx)&mask {
			continue
		}
		dir.SetLocalDepth(s, newLD)
		if ((s >> ld) & 1) != ((idx >> ld) & 1) {
			dir.SetBucketPageID(s, newBucketPg.ID)
		}
	}

	for _, entry := range oldBucket.AllReadable() {
		if t.KeyToPageId(entry.Key, dir) == newBucketPg.ID {
			newBucket.Insert(entry.Key, entry.Val)
			oldBucket.ClearSlot(entry.Slot)
		}
	}

	log.WithFields(logrus.Fields{"directory_page": dirPg.ID, "old_bucket": oldBucketID, "new_bucket": newBucketPg.ID, "local_depth": newLD}).Debug("split bucket")

	t.pool.UnpinPage(oldBucketPg.ID, true)
	t.pool.UnpinPage(newBucketPg.ID, true)
	t.pool.UnpinPage(dirPg.ID, true)

	return t.insertLocked(k, v)
}

// Remove deletes (k,v) and merges the bucket's directory slots if it
// becomes empty.
func (t *Table[K, V]) Remove(k K, v V) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	dirPg, dir, err := t.fetchDirectory()
	if err != nil {
		return false, err
	}
	idx := t.keyToDirectoryIndex(k, dir)
	bucketID := dir.BucketPageID(idx)
	bucketPg, bucket, err := t.fetchBucket(bucketID)
	if err != nil {
		t.pool.UnpinPage(dirPg.ID, false)
		return false, err
	}

	removed := bucket.Remove(k, v)
	empty := bucket.IsEmpty()
	t.pool.UnpinPage(bucketPg.ID, removed)

	if !removed {
		t.pool.UnpinPage(dirPg.ID, false)
		return false, nil
	}
	if !empty {
		t.pool.UnpinPage(dirPg.ID, false)
		return true, nil
	}

	if err := t.merge(idx, dir); err != nil {
		t.pool.UnpinPage(dirPg.ID, true)
		return true, err
	}
	t.pool.UnpinPage(dirPg.ID, true)
	return true, nil
}

// merge implements spec §4.5 Merge: if slot idx's bucket is now empty,
// redirect every slot sharing that bucket (and its split image, which must
// already share the same local depth) to the image bucket, delete the now
// orphaned bucket page by its actual page id (not by directory index — see
// SPEC_FULL.md on the reference bug this corrects), shrink the directory
// if no slot still needs full depth, and recurse on any bucket the shrink
// just emptied out. Assumes t.mu is held for writing and dir reflects
// dirPageID's current contents.
func (t *Table[K, V]) merge(idx int, dir *DirectoryPage) error {
	ld := dir.LocalDepth(idx)
	if ld == 0 {
		return nil
	}
	img := dir.GetSplitImageIndex(idx)
	if dir.LocalDepth(img) != ld {
		return nil
	}
	emptyBucketID := dir.BucketPageID(idx)
	imgBucketID := dir.BucketPageID(img)
	if emptyBucketID == imgBucketID {
		return nil
	}

	for s := 0; s < dir.Size(); s++ {
		bid := dir.BucketPageID(s)
		if bid == emptyBucketID {
			dir.SetBucketPageID(s, imgBucketID)
			dir.DecrLocalDepth(s)
		} else if bid == imgBucketID {
			dir.DecrLocalDepth(s)
		}
	}

	if err := t.pool.DeletePage(emptyBucketID); err != nil {
		return fmt.Errorf("hash: delete merged bucket %d: %w", emptyBucketID, err)
	}
	log.WithFields(logrus.Fields{"emptied_bucket": emptyBucketID, "image_bucket": imgBucketID}).Debug("merged bucket")

	if !dir.CanShrink() {
		return nil
	}
	dir.DecrGlobalDepth()

	return t.mergeEmptyBuckets(dir)
}

// mergeEmptyBuckets re-scans the (just-shrunk) directory for any bucket
// that is now empty and still eligible to merge, repeating until a full
// scan finds nothing left to do.
func (t *Table[K, V]) mergeEmptyBuckets(dir *DirectoryPage) error {
	for {
		progressed := false
		seen := make(map[common.PageID]bool)
		for s := 0; s < dir.Size(); s++ {
			bid := dir.BucketPageID(s)
			if seen[bid] {
				continue
			}
			seen[bid] = true
			if dir.LocalDepth(s) == 0 {
				continue
			}

			bPg, bucket, err := t.fetchBucket(bid)
			if err != nil {
				return err
			}
			empty := bucket.IsEmpty()
			t.pool.UnpinPage(bPg.ID, false)
			if !empty {
				continue
			}

			if err := t.merge(s, dir); err != nil {
				return err
			}
			progressed = true
			break
		}
		if !progressed {
			return nil
		}
	}
}
