package memfs

import (
	"io"
	"testing"

	"github.com/mwantia/vfs"
	"github.com/mwantia/vfs/pool"
)

func newFile() *MemoryFile {
	return NewMemoryFile(pool.NewUnlimited(4096))
}

func TestMemoryFile_FirstOpenIsUnconstrained(t *testing.T) {
	f := newFile()
	h, err := f.Open(AccessRead|AccessWrite, ShareNone)
	if err != nil {
		t.Fatalf("first open should never be constrained: %v", err)
	}
	defer h.Close()
}

func TestMemoryFile_ConflictingShareIsRejected(t *testing.T) {
	f := newFile()
	h1, err := f.Open(AccessWrite, ShareNone)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := f.Open(AccessRead, ShareRead); err != vfs.ErrFileLocked {
		t.Fatalf("expected ErrFileLocked for a read under a ShareNone writer, got %v", err)
	}

	// Once the exclusive holder goes away, the same open is admitted.
	if err := h1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	h2, err := f.Open(AccessRead, ShareRead)
	if err != nil {
		t.Fatalf("expected the open to succeed after the exclusive handle closed: %v", err)
	}
	defer h2.Close()
}

func TestMemoryFile_CompatibleSharesAreAdmitted(t *testing.T) {
	f := newFile()
	h1, err := f.Open(AccessRead, ShareRead)
	if err != nil {
		t.Fatalf("Open h1: %v", err)
	}
	defer h1.Close()

	h2, err := f.Open(AccessRead, ShareRead)
	if err != nil {
		t.Fatalf("expected a second reader under ShareRead to be admitted: %v", err)
	}
	defer h2.Close()
}

func TestMemoryFile_NewAccessBeyondExistingShareIsRejected(t *testing.T) {
	f := newFile()
	h1, err := f.Open(AccessRead, ShareRead)
	if err != nil {
		t.Fatalf("Open h1: %v", err)
	}
	defer h1.Close()

	if _, err := f.Open(AccessWrite, ShareReadWrite); err != vfs.ErrFileLocked {
		t.Fatalf("expected ErrFileLocked: existing handle only shares read, got %v", err)
	}
}

func TestHandle_ReadWriteSeek(t *testing.T) {
	f := newFile()
	h, err := f.Open(AccessRead|AccessWrite, ShareReadWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	if _, err := h.Write([]byte("abcdef")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := h.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	buf := make([]byte, 3)
	n, err := h.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 3 || string(buf) != "abc" {
		t.Fatalf("expected to read 'abc', got %q (n=%d)", buf, n)
	}

	pos, err := h.Seek(-2, io.SeekEnd)
	if err != nil {
		t.Fatalf("Seek from end: %v", err)
	}
	if pos != 4 {
		t.Fatalf("expected seek-from-end position 4, got %d", pos)
	}
}

func TestHandle_SetLengthTruncates(t *testing.T) {
	f := newFile()
	h, err := f.Open(AccessRead|AccessWrite, ShareReadWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	if _, err := h.Write([]byte("0123456789")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := h.SetLength(4); err != nil {
		t.Fatalf("SetLength: %v", err)
	}
	if f.Length() != 4 {
		t.Fatalf("expected length 4 after truncate, got %d", f.Length())
	}
}

func TestMemoryFile_UnlinkWithOpenHandleDefersDisposal(t *testing.T) {
	f := newFile()
	h, err := f.Open(AccessRead, ShareRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	f.unlink()
	if _, err := h.Read(make([]byte, 1)); err != nil && err != io.EOF {
		t.Fatalf("handle should still be usable after unlink while open: %v", err)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := f.Open(AccessRead, ShareRead); err != vfs.ErrDisposed {
		t.Fatalf("expected ErrDisposed once unlinked file's last handle closed, got %v", err)
	}
}
