package disk

import (
	"path/filepath"
	"testing"

	"diskengine/pkg/common"
)

func TestFileDiskManagerReadWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := NewFileDiskManager(path)
	if err != nil {
		t.Fatalf("NewFileDiskManager: %v", err)
	}
	defer dm.Close()

	buf := make([]byte, common.PageSize)
	for i := range buf {
		buf[i] = byte(i % 256)
	}
	if err := dm.WritePage(3, buf); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	readBuf := make([]byte, common.PageSize)
	if err := dm.ReadPage(3, readBuf); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	for i := range buf {
		if buf[i] != readBuf[i] {
			t.Fatalf("byte %d: wrote %d, read %d", i, buf[i], readBuf[i])
		}
	}
}

func TestFileDiskManagerReadUnwrittenPageIsZeroed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := NewFileDiskManager(path)
	if err != nil {
		t.Fatalf("NewFileDiskManager: %v", err)
	}
	defer dm.Close()

	buf := make([]byte, common.PageSize)
	if err := dm.ReadPage(7, buf); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d: expected 0, got %d", i, b)
		}
	}
}

func TestFileDiskManagerFlockRejectsSecondOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := NewFileDiskManager(path)
	if err != nil {
		t.Fatalf("NewFileDiskManager: %v", err)
	}
	defer dm.Close()

	if _, err := NewFileDiskManager(path); err == nil {
		t.Fatalf("expected second NewFileDiskManager on the same path to fail")
	}
}
