package memfs

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mwantia/vfs"
	"github.com/mwantia/vfs/pool"
)

// MemoryFile models one logical file's contents and concurrent-access
// discipline. Its identity is a UUIDv7 inode, not its path — a handle
// keeps a reference to the file itself, so unlinking the file from its
// directory does not invalidate handles already open on it.
type MemoryFile struct {
	ID uuid.UUID

	mu        sync.Mutex
	allocator pool.Allocator
	blocks    []pool.Block
	length    int64

	attributes   map[string]string
	lastModified time.Time

	handles  map[*Handle]struct{}
	linked   bool
	disposed bool

	subscribers []func(ChangeEvent)
}

// NewMemoryFile creates an empty file backed by allocator.
func NewMemoryFile(allocator pool.Allocator) *MemoryFile {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &MemoryFile{
		ID:           id,
		allocator:    allocator,
		attributes:   make(map[string]string),
		lastModified: time.Now(),
		handles:      make(map[*Handle]struct{}),
		linked:       true,
	}
}

// Length returns the current file length.
func (f *MemoryFile) Length() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.length
}

// LastModified returns the last modification time.
func (f *MemoryFile) LastModified() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastModified
}

// Attributes returns a copy of the file's attribute map.
func (f *MemoryFile) Attributes() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.attributes))
	for k, v := range f.attributes {
		out[k] = v
	}
	return out
}

// SetAttributes merges attrs into the file's attribute map.
func (f *MemoryFile) SetAttributes(attrs map[string]string) {
	f.mu.Lock()
	for k, v := range attrs {
		f.attributes[k] = v
	}
	f.mu.Unlock()
}

// Subscribe registers fn to receive ChangeEvents. The returned function
// unsubscribes.
func (f *MemoryFile) Subscribe(fn func(ChangeEvent)) func() {
	f.mu.Lock()
	f.subscribers = append(f.subscribers, fn)
	idx := len(f.subscribers) - 1
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		f.subscribers[idx] = nil
		f.mu.Unlock()
	}
}

func (f *MemoryFile) publish(newLength int64) {
	f.mu.Lock()
	subs := make([]func(ChangeEvent), 0, len(f.subscribers))
	for _, s := range f.subscribers {
		if s != nil {
			subs = append(subs, s)
		}
	}
	f.mu.Unlock()

	event := ChangeEvent{File: f, NewLength: newLength, Timestamp: time.Now()}
	for _, s := range subs {
		s(event)
	}
}

// Open admits a new handle under the access/share matrix: a new open is
// admitted only if its requested access is a subset of the share every
// live handle grants, and every live handle's access is a subset of the
// share the new handle grants. The very first open has no constraint.
func (f *MemoryFile) Open(access AccessMode, share ShareMode) (*Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.disposed {
		return nil, vfs.ErrDisposed
	}

	for h := range f.handles {
		if int(access)&^int(h.share) != 0 {
			return nil, vfs.ErrFileLocked
		}
		if int(h.access)&^int(share) != 0 {
			return nil, vfs.ErrFileLocked
		}
	}

	h := &Handle{file: f, access: access, share: share}
	f.handles[h] = struct{}{}
	return h, nil
}

func (f *MemoryFile) closeHandle(h *Handle) {
	f.mu.Lock()
	delete(f.handles, h)
	shouldDispose := !f.linked && len(f.handles) == 0 && !f.disposed
	if shouldDispose {
		f.disposed = true
	}
	blocks := f.blocks
	if shouldDispose {
		f.blocks = nil
	}
	f.mu.Unlock()

	if shouldDispose {
		for _, b := range blocks {
			f.allocator.Return(b)
		}
		f.complete()
	}
}

// complete delivers the change stream's completion signal (a negative
// length) and drops every subscriber; nothing is published after this.
func (f *MemoryFile) complete() {
	f.publish(-1)
	f.mu.Lock()
	f.subscribers = nil
	f.mu.Unlock()
}

// unlink marks the file as no longer present in its parent directory. If
// no handles are open it is disposed immediately; otherwise it survives
// until the last handle closes.
func (f *MemoryFile) unlink() {
	f.mu.Lock()
	f.linked = false
	shouldDispose := len(f.handles) == 0 && !f.disposed
	if shouldDispose {
		f.disposed = true
	}
	blocks := f.blocks
	if shouldDispose {
		f.blocks = nil
	}
	f.mu.Unlock()

	if shouldDispose {
		for _, b := range blocks {
			f.allocator.Return(b)
		}
		f.complete()
	}
}

func (f *MemoryFile) blockSize() int64 {
	return int64(f.allocator.BlockSize())
}

// readLocked reads into buf starting at off, under the caller's held lock.
func (f *MemoryFile) readLocked(buf []byte, off int64) int {
	if off >= f.length {
		return 0
	}
	n := int64(len(buf))
	if off+n > f.length {
		n = f.length - off
	}

	bs := f.blockSize()
	read := int64(0)
	for read < n {
		pos := off + read
		blockIdx := pos / bs
		blockOff := pos % bs
		chunk := bs - blockOff
		if chunk > n-read {
			chunk = n - read
		}
		copy(buf[read:read+chunk], f.blocks[blockIdx][blockOff:blockOff+chunk])
		read += chunk
	}
	return int(n)
}

// Read copies up to len(buf) bytes starting at off into buf, returning the
// number of bytes read. It never returns a short read unless EOF was hit.
func (f *MemoryFile) Read(buf []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readLocked(buf, off), nil
}

// Write writes buf at off, extending the file and allocating blocks from
// the pool as needed. Allocation is non-blocking: on rejection the write
// fails whole with ErrOutOfSpace and the file length is left unchanged.
func (f *MemoryFile) Write(buf []byte, off int64) (int, error) {
	f.mu.Lock()

	end := off + int64(len(buf))
	if end > f.length {
		if err := f.growLocked(end); err != nil {
			f.mu.Unlock()
			return 0, err
		}
	}

	bs := f.blockSize()
	written := int64(0)
	n := int64(len(buf))
	for written < n {
		pos := off + written
		blockIdx := pos / bs
		blockOff := pos % bs
		chunk := bs - blockOff
		if chunk > n-written {
			chunk = n - written
		}
		copy(f.blocks[blockIdx][blockOff:blockOff+chunk], buf[written:written+chunk])
		written += chunk
	}

	f.lastModified = time.Now()
	newLength := f.length
	f.mu.Unlock()

	f.publish(newLength)
	return int(written), nil
}

// growLocked extends the file to newLength, zero-filling new bytes and
// allocating blocks from the pool as needed. Must be called with f.mu held.
func (f *MemoryFile) growLocked(newLength int64) error {
	bs := f.blockSize()
	neededBlocks := int((newLength + bs - 1) / bs)
	if newLength == 0 {
		neededBlocks = 0
	}

	had := len(f.blocks)
	for len(f.blocks) < neededBlocks {
		b, ok := f.allocator.TryAllocate()
		if !ok {
			// Roll back so a rejected grow leaves neither the file nor
			// the pool's quota in a half-grown state.
			for len(f.blocks) > had {
				last := f.blocks[len(f.blocks)-1]
				f.blocks = f.blocks[:len(f.blocks)-1]
				f.allocator.Return(last)
			}
			return vfs.ErrOutOfSpace
		}
		for i := range b {
			b[i] = 0
		}
		f.blocks = append(f.blocks, b)
	}

	f.length = newLength
	return nil
}

// SetLength grows (zero-filling) or shrinks (releasing now-unused blocks)
// the file to n bytes.
func (f *MemoryFile) SetLength(n int64) error {
	f.mu.Lock()

	if n >= f.length {
		if err := f.growLocked(n); err != nil {
			f.mu.Unlock()
			return err
		}
	} else {
		bs := f.blockSize()
		keepBlocks := int((n + bs - 1) / bs)
		if n == 0 {
			keepBlocks = 0
		}
		for len(f.blocks) > keepBlocks {
			last := f.blocks[len(f.blocks)-1]
			f.blocks = f.blocks[:len(f.blocks)-1]
			f.allocator.Return(last)
		}
		f.length = n
	}

	f.lastModified = time.Now()
	newLength := f.length
	f.mu.Unlock()

	f.publish(newLength)
	return nil
}
