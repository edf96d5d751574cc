// Package common holds the abstract collaborator types (comparator, hash
// function, transaction handle) and the sentinel errors shared across the
// buffer pool and the two index implementations.
package common

import "errors"

// Sentinel errors mapping the four error kinds of the storage core onto Go's
// errors.Is/errors.As idiom. Callers that need the status-return shape the
// rest of the package favors (bool instead of error) check these only at
// the boundary where an error is actually returned.
var (
	// ErrCapacityExhausted covers: every buffer-pool frame pinned, the hash
	// directory at its maximum size, or a tree node at max_size with no
	// legal split remaining.
	ErrCapacityExhausted = errors.New("diskengine: capacity exhausted")

	// ErrNotFound covers: page id absent from a page table, key absent from
	// a leaf or bucket.
	ErrNotFound = errors.New("diskengine: not found")

	// ErrConflict covers: delete attempted on a pinned page, unpin attempted
	// with a non-positive pin count.
	ErrConflict = errors.New("diskengine: conflict")

	// ErrOutOfMemory names the kind "the buffer pool could not produce a page
	// for a structural mutation already in progress". No function in this
	// module returns it: the hash and btree packages abort such a mutation
	// by returning the buffer pool's own error, which wraps
	// ErrCapacityExhausted.
	ErrOutOfMemory = errors.New("diskengine: out of memory")

	// ErrCorrupt signals an on-disk layout invariant violated on decode.
	ErrCorrupt = errors.New("diskengine: corrupt page")
)
