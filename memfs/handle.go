package memfs

import (
	"io"
	"sync"

	"github.com/mwantia/vfs"
)

// Handle is a stream opened against a MemoryFile. Its access must be
// consistent with the intersection of every other live handle's share
// grant for the lifetime of the open.
type Handle struct {
	file   *MemoryFile
	access AccessMode
	share  ShareMode

	mu       sync.Mutex
	pos      int64
	disposed bool
}

// Read reads from the current position, advancing it by the number of
// bytes read. Reading past end of file returns (0, io.EOF).
func (h *Handle) Read(buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.disposed {
		return 0, vfs.ErrDisposed
	}
	if !h.access.Has(AccessRead) {
		return 0, vfs.ErrAccessDenied
	}

	n, err := h.file.Read(buf, h.pos)
	h.pos += int64(n)
	if n == 0 && err == nil {
		return 0, io.EOF
	}
	return n, err
}

// Write writes at the current position, advancing it by the number of
// bytes written.
func (h *Handle) Write(buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.disposed {
		return 0, vfs.ErrDisposed
	}
	if !h.access.Has(AccessWrite) {
		return 0, vfs.ErrAccessDenied
	}

	n, err := h.file.Write(buf, h.pos)
	h.pos += int64(n)
	return n, err
}

// SetLength truncates or extends the underlying file.
func (h *Handle) SetLength(n int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.disposed {
		return vfs.ErrDisposed
	}
	if !h.access.Has(AccessWrite) {
		return vfs.ErrAccessDenied
	}

	if err := h.file.SetLength(n); err != nil {
		return err
	}
	if h.pos > n {
		h.pos = n
	}
	return nil
}

// Seek repositions the handle per io.Seeker semantics (whence:
// io.SeekStart, io.SeekCurrent, io.SeekEnd). Any non-negative position is
// allowed; reading past end of file returns (0, io.EOF).
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.disposed {
		return 0, vfs.ErrDisposed
	}

	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = h.pos
	case io.SeekEnd:
		base = h.file.Length()
	default:
		return 0, vfs.ErrInvalidPath
	}

	pos := base + offset
	if pos < 0 {
		return 0, vfs.ErrInvalidPath
	}
	h.pos = pos
	return pos, nil
}

// Close releases the handle. If the file is unlinked and this was the
// last open handle, the file's blocks are returned to the pool.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return vfs.ErrClosed
	}
	h.disposed = true
	h.mu.Unlock()

	h.file.closeHandle(h)
	return nil
}
