package replacer

import (
	"container/list"
	"sync"

	"diskengine/pkg/common"
)

// LRU tracks evictable frames in an ordered list, most-recently-unpinned at
// the front. Victim returns the back (least recently unpinned). Because the
// buffer pool only ever unpins a frame once it is done with it, no access
// timestamps are needed beyond this ordering.
//
// Unlike the BusTub reference this is based on, Pin and Unpin both take the
// mutex before checking whether the frame is tracked — the reference's
// early-exit check runs outside the lock and races with a concurrent
// mutator; re-checking under the lock closes that race.
type LRU struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	elems    map[common.FrameID]*list.Element
}

// NewLRU constructs an LRU replacer tracking at most capacity frames — the
// buffer pool's pool size.
func NewLRU(capacity int) *LRU {
	return &LRU{
		capacity: capacity,
		order:    list.New(),
		elems:    make(map[common.FrameID]*list.Element, capacity),
	}
}

func (r *LRU) Victim() (common.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	back := r.order.Back()
	if back == nil {
		return 0, false
	}
	id := back.Value.(common.FrameID)
	r.order.Remove(back)
	delete(r.elems, id)
	return id, true
}

func (r *LRU) Pin(id common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	elem, tracked := r.elems[id]
	if !tracked {
		return
	}
	r.order.Remove(elem)
	delete(r.elems, id)
}

func (r *LRU) Unpin(id common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, tracked := r.elems[id]; tracked {
		return
	}
	if r.order.Len() >= r.capacity {
		back := r.order.Back()
		if back != nil {
			evicted := back.Value.(common.FrameID)
			r.order.Remove(back)
			delete(r.elems, evicted)
		}
	}
	r.elems[id] = r.order.PushFront(id)
}

func (r *LRU) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}
