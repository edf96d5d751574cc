// Package disk implements the DiskManager and LogManager external
// collaborators spec'd as opaque interfaces: the buffer pool reads/writes
// whole pages through DiskManager and never observes LogManager beyond
// holding a reference to one.
package disk

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"diskengine/pkg/common"
)

var log = logrus.WithField("component", "disk")

// DiskManager is the page-level I/O collaborator the buffer pool depends
// on. Implementations are assumed internally thread-safe for independent
// page ids — the buffer pool never issues concurrent I/O against the same
// page, because only one frame ever holds it at a time.
type DiskManager interface {
	ReadPage(id common.PageID, buf []byte) error
	WritePage(id common.PageID, buf []byte) error
	AllocatePage() common.PageID
	DeallocatePage(id common.PageID) error
}

// LogManager is accepted by constructors and never invoked by the storage
// core beyond being held. No methods are required of it by this core.
type LogManager interface{}

// NopLogManager is a LogManager that does nothing, for callers that have no
// WAL wired up yet.
type NopLogManager struct{}

// FileDiskManager is a single-file DiskManager: page id i lives at byte
// offset i*PageSize. The backing file is flock'd exclusively for the
// lifetime of the process holding it, since the buffer pool's "only one
// frame ever holds a page at a time" guarantee only holds if no other
// process is also writing the file underneath it.
type FileDiskManager struct {
	mu   sync.Mutex
	file *os.File
	path string

	nextPageID atomic.Int64
}

// NewFileDiskManager opens (creating if absent) the file at path and takes
// an advisory exclusive lock on it.
func NewFileDiskManager(path string) (*FileDiskManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("disk: open %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("disk: flock %s: %w", path, err)
	}
	dm := &FileDiskManager{file: f, path: path}
	log.WithField("path", path).Debug("opened and locked backing file")
	return dm, nil
}

// Close releases the advisory lock and closes the backing file.
func (dm *FileDiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	_ = unix.Flock(int(dm.file.Fd()), unix.LOCK_UN)
	return dm.file.Close()
}

func (dm *FileDiskManager) offset(id common.PageID) int64 {
	return int64(id) * common.PageSize
}

// ReadPage fills buf (which must be common.PageSize bytes) with the page's
// on-disk contents. Reading a page id never written before returns zeroed
// bytes, matching the convention that NewPage's frame starts zeroed.
func (dm *FileDiskManager) ReadPage(id common.PageID, buf []byte) error {
	if len(buf) != common.PageSize {
		return fmt.Errorf("disk: buffer must be %d bytes, got %d", common.PageSize, len(buf))
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()

	n, err := dm.file.ReadAt(buf, dm.offset(id))
	if err != nil {
		if n == 0 {
			for i := range buf {
				buf[i] = 0
			}
			return nil
		}
		return fmt.Errorf("disk: read page %d: %w", id, err)
	}
	return nil
}

// WritePage persists buf at page id's offset and fsyncs before returning,
// so a successful WritePage is durable by the time the caller clears dirty.
func (dm *FileDiskManager) WritePage(id common.PageID, buf []byte) error {
	if len(buf) != common.PageSize {
		return fmt.Errorf("disk: buffer must be %d bytes, got %d", common.PageSize, len(buf))
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if _, err := dm.file.WriteAt(buf, dm.offset(id)); err != nil {
		return fmt.Errorf("disk: write page %d: %w", id, err)
	}
	if err := dm.file.Sync(); err != nil {
		return fmt.Errorf("disk: fsync after writing page %d: %w", id, err)
	}
	log.WithField("page_id", id).Trace("wrote page")
	return nil
}

// AllocatePage returns a monotonically increasing page id. The buffer pool
// never calls this: every buffer.Instance, including the unsharded one that
// buffer.New builds, computes its own page ids. It exists for callers that
// want the disk manager's own allocator.
func (dm *FileDiskManager) AllocatePage() common.PageID {
	return common.PageID(dm.nextPageID.Add(1) - 1)
}

// DeallocatePage is a no-op on this implementation: pages are addressed by
// offset, and reclaiming file space for a freed page id is not worth the
// complexity for a teaching storage engine. The call is still honored (as
// the external interface the buffer pool depends on) so that DeletePage's
// contract — "call DeallocatePage on the disk manager" — has something real
// to call.
func (dm *FileDiskManager) DeallocatePage(id common.PageID) error {
	log.WithField("page_id", id).Trace("deallocate (no-op, offset-addressed file)")
	return nil
}
