// Package btree implements the on-disk B+-tree index: sorted leaf pages
// chained by next_page_id, internal pages of (key, child_page_id) pairs
// with an unused "ghost" key at slot 0, and the BPlusTree driver tying
// point lookup, split-on-insert, and merge/redistribute-on-remove together
// through the buffer pool.
package btree

import (
	"encoding/binary"

	"diskengine/pkg/common"
	"diskengine/pkg/page"
)

// Kind discriminates a B+-tree page's typed view: the first header word
// says whether the raw buffer should be read as a LeafPage or an
// InternalPage.
type Kind uint32

const (
	KindInvalid  Kind = 0
	KindLeaf     Kind = 1
	KindInternal Kind = 2
)

const (
	hdrKindOff   = 0
	hdrLSNOff    = 4
	hdrSizeOff   = 8
	hdrMaxOff    = 12
	hdrParentOff = 16
	hdrPageIDOff = 20
	hdrBaseLen   = 24
	leafNextOff  = hdrBaseLen
	leafArrayOff = leafNextOff + 4
	internalArrayOff = hdrBaseLen
)

// header is the common prefix every B+-tree page carries, shared by
// LeafPage and InternalPage via embedding.
type header struct {
	pg *page.Page
}

func (h header) Kind() Kind {
	return Kind(binary.LittleEndian.Uint32(h.pg.Data[hdrKindOff:]))
}

func (h header) setKind(k Kind) {
	binary.LittleEndian.PutUint32(h.pg.Data[hdrKindOff:], uint32(k))
}

func (h header) Size() int32 {
	return int32(binary.LittleEndian.Uint32(h.pg.Data[hdrSizeOff:]))
}

func (h header) SetSize(n int32) {
	binary.LittleEndian.PutUint32(h.pg.Data[hdrSizeOff:], uint32(n))
}

func (h header) IncreaseSize(delta int32) {
	h.SetSize(h.Size() + delta)
}

func (h header) MaxSize() int32 {
	return int32(binary.LittleEndian.Uint32(h.pg.Data[hdrMaxOff:]))
}

func (h header) setMaxSize(n int32) {
	binary.LittleEndian.PutUint32(h.pg.Data[hdrMaxOff:], uint32(n))
}

func (h header) ParentPageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(h.pg.Data[hdrParentOff:])))
}

func (h header) SetParentPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(h.pg.Data[hdrParentOff:], uint32(int32(id)))
}

func (h header) PageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(h.pg.Data[hdrPageIDOff:])))
}

func (h header) setPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(h.pg.Data[hdrPageIDOff:], uint32(int32(id)))
}

// PageKind reads pg's kind word, for callers that only hold a *page.Page
// and need to pick which typed view to construct.
func PageKind(pg *page.Page) Kind {
	return header{pg}.Kind()
}

func ceilDiv(a, b int32) int32 {
	return (a + b - 1) / b
}
