// Package replacer implements the victim-selection capability shared by
// LRU and Clock: pick a frame to evict among the frames a buffer pool has
// marked evictable.
package replacer

import "diskengine/pkg/common"

// Replacer selects a victim frame among frames the buffer pool has marked
// unpinned (evictable). All operations are safe for concurrent use.
type Replacer interface {
	// Victim returns a frame to evict and removes it from the replacer.
	// The second return is false if no frame is currently evictable.
	Victim() (common.FrameID, bool)

	// Pin marks a frame as in use: if tracked, it is removed so it cannot
	// be chosen as a victim.
	Pin(id common.FrameID)

	// Unpin makes a frame evictable. A no-op if the frame is already
	// tracked.
	Unpin(id common.FrameID)

	// Size returns the number of frames currently evictable.
	Size() int
}
