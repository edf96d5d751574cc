// Package page defines the in-memory Page: a fixed-size byte buffer plus
// the pin/dirty metadata a BufferPoolInstance needs to manage it, and the
// per-page read-write latch that lets callers hold a page across multiple
// field reads without re-taking the pool's own latch.
package page

import (
	"sync"

	"diskengine/pkg/common"
)

// Page is the unit of on-disk addressing and buffer-pool residency. The
// disk holds the last-flushed content; Data is authoritative while a frame
// holds the page in memory.
type Page struct {
	ID       common.PageID
	Data     []byte
	IsDirty  bool
	PinCount int32
	LSN      uint64

	mu sync.RWMutex
}

// New allocates a zeroed page buffer of common.PageSize bytes.
func New(id common.PageID) *Page {
	return &Page{
		ID:   id,
		Data: make([]byte, common.PageSize),
	}
}

func (p *Page) Lock()    { p.mu.Lock() }
func (p *Page) Unlock()  { p.mu.Unlock() }
func (p *Page) RLock()   { p.mu.RLock() }
func (p *Page) RUnlock() { p.mu.RUnlock() }

// ResetMemory zeroes the page's data buffer in place. Caller must hold the
// page's write lock (or own the frame exclusively, e.g. during NewPage/
// FetchPage victim selection, before the page is published in the page
// table).
func (p *Page) ResetMemory() {
	for i := range p.Data {
		p.Data[i] = 0
	}
}
