package buffer

import (
	"diskengine/pkg/common"
	"diskengine/pkg/page"
)

// Pool is the subset of Instance/Parallel's API a Guard needs. Both satisfy
// it, so callers can build one scoped guard helper regardless of whether
// they're running against a single instance or the sharded pool.
type Pool interface {
	FetchPage(id common.PageID) (*page.Page, error)
	NewPage() (*page.Page, error)
	UnpinPage(id common.PageID, isDirty bool) error
}

// Guard wraps a pinned page and releases it with the correct dirty flag on
// every exit path, including error paths — the scoped-acquisition pattern
// called for wherever a Fetch/New is paired with exactly one Unpin.
type Guard struct {
	pool  Pool
	pg    *page.Page
	dirty bool
}

// Fetch pins page id through pool and wraps it in a Guard.
func Fetch(pool Pool, id common.PageID) (*Guard, error) {
	pg, err := pool.FetchPage(id)
	if err != nil {
		return nil, err
	}
	return &Guard{pool: pool, pg: pg}, nil
}

// NewPageGuard allocates a fresh page through pool and wraps it in a Guard,
// pre-marked dirty since a brand-new page's contents are about to be
// written.
func NewPageGuard(pool Pool) (*Guard, error) {
	pg, err := pool.NewPage()
	if err != nil {
		return nil, err
	}
	return &Guard{pool: pool, pg: pg, dirty: true}, nil
}

// Page returns the underlying page.
func (g *Guard) Page() *page.Page { return g.pg }

// MarkDirty records that this call site mutated the page; Release will
// pass isDirty=true regardless of what prior calls on this guard recorded.
func (g *Guard) MarkDirty() { g.dirty = true }

// Release unpins the page with the dirty flag accumulated via MarkDirty.
// Safe to call via defer immediately after Fetch/NewPageGuard succeeds.
func (g *Guard) Release() error {
	return g.pool.UnpinPage(g.pg.ID, g.dirty)
}
