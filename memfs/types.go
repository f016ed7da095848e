// Package memfs implements the in-memory filesystem backend: a directory
// tree of MemoryDirectory/MemoryFile nodes backed by a pool.Allocator,
// with the open/share matrix, change notifications and the rest of an
// in-memory filesystem's contract.
package memfs

import (
	"time"

	"github.com/mwantia/vfs"
)

// AccessMode, ShareMode and OpenMode are the root package's mode types,
// aliased here so callers working only with memfs don't need a second
// import for them.
type (
	AccessMode = vfs.AccessMode
	ShareMode  = vfs.ShareMode
	OpenMode   = vfs.OpenMode
)

const (
	AccessRead  = vfs.AccessRead
	AccessWrite = vfs.AccessWrite

	ShareNone      = vfs.ShareNone
	ShareRead      = vfs.ShareRead
	ShareWrite     = vfs.ShareWrite
	ShareReadWrite = vfs.ShareReadWrite

	OpenExisting = vfs.OpenExisting
	OpenOrCreate = vfs.OpenOrCreate
	CreateNew    = vfs.CreateNew
	Create       = vfs.Create
)

// ChangeEvent is published to a MemoryFile's subscribers after every write
// or SetLength, and once more (with NewLength -1) when the file is finally
// disposed.
type ChangeEvent struct {
	File      *MemoryFile
	NewLength int64
	Timestamp time.Time
}
