package vfs

// AccessMode is a bitmask of the operations a stream handle may perform.
type AccessMode int

const (
	AccessRead AccessMode = 1 << iota
	AccessWrite
)

// Has reports whether bit is set in the mask.
func (a AccessMode) Has(bit AccessMode) bool { return a&bit != 0 }

// ShareMode is a bitmask of the access an open handle grants to other,
// concurrently open handles on the same file.
type ShareMode int

const (
	ShareNone  ShareMode = 0
	ShareRead  ShareMode = 1
	ShareWrite ShareMode = 2
)

// ShareReadWrite grants both read and write to concurrent handles.
const ShareReadWrite = ShareRead | ShareWrite

// Has reports whether bit is set in the mask.
func (s ShareMode) Has(bit ShareMode) bool { return s&bit != 0 }

// OpenMode selects the creation semantics of a backend's Open operation.
type OpenMode int

const (
	// OpenExisting requires the file to already exist.
	OpenExisting OpenMode = iota
	// OpenOrCreate opens the file if it exists, otherwise creates it.
	OpenOrCreate
	// CreateNew requires the file not to exist.
	CreateNew
	// Create replaces any existing file, unlinking it without
	// invalidating handles already open on it.
	Create
)
