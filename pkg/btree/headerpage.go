package btree

import (
	"encoding/binary"

	"diskengine/pkg/common"
	"diskengine/pkg/page"
)

// HeaderPage lives at common.HeaderPageID and maps index names to their
// root page id, so a Tree can be reopened across restarts without any
// other bookkeeping. Layout: a 4-byte count, followed by that many
// (name-length-prefixed string, root page id) records.
type HeaderPage struct {
	pg *page.Page
}

func NewHeaderPage(pg *page.Page) *HeaderPage { return &HeaderPage{pg: pg} }

// Init zeroes the record count on a freshly allocated header page.
func (h *HeaderPage) Init() {
	binary.LittleEndian.PutUint32(h.pg.Data[0:], 0)
}

func (h *HeaderPage) count() int {
	return int(binary.LittleEndian.Uint32(h.pg.Data[0:]))
}

// GetRootID returns the root page id recorded for name, if present.
func (h *HeaderPage) GetRootID(name string) (common.PageID, bool) {
	off := 4
	n := h.count()
	for i := 0; i < n; i++ {
		nameLen := int(binary.LittleEndian.Uint32(h.pg.Data[off:]))
		off += 4
		entryName := string(h.pg.Data[off : off+nameLen])
		off += nameLen
		rootID := common.PageID(int32(binary.LittleEndian.Uint32(h.pg.Data[off:])))
		off += 4
		if entryName == name {
			return rootID, true
		}
	}
	return common.InvalidPageID, false
}

// SetRootID inserts or updates the root page id recorded for name.
func (h *HeaderPage) SetRootID(name string, rootID common.PageID) {
	off := 4
	n := h.count()
	for i := 0; i < n; i++ {
		nameLen := int(binary.LittleEndian.Uint32(h.pg.Data[off:]))
		nameOff := off + 4
		entryName := string(h.pg.Data[nameOff : nameOff+nameLen])
		idOff := nameOff + nameLen
		if entryName == name {
			binary.LittleEndian.PutUint32(h.pg.Data[idOff:], uint32(int32(rootID)))
			return
		}
		off = idOff + 4
	}
	binary.LittleEndian.PutUint32(h.pg.Data[off:], uint32(len(name)))
	off += 4
	copy(h.pg.Data[off:off+len(name)], name)
	off += len(name)
	binary.LittleEndian.PutUint32(h.pg.Data[off:], uint32(int32(rootID)))
	binary.LittleEndian.PutUint32(h.pg.Data[0:], uint32(n+1))
}
