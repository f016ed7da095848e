package vfs

// CaseSensitivity describes how a filesystem compares child names.
type CaseSensitivity int

const (
	CaseSensitivityUnknown CaseSensitivity = iota
	CaseSensitive
	CaseInsensitive
	CaseInconsistent
)

// EmptyDirectoryPolicy describes whether a filesystem allows an entry
// named with the empty string (relevant only at synthesized roots).
type EmptyDirectoryPolicy int

const (
	EmptyDirectoryForbidden EmptyDirectoryPolicy = iota
	EmptyDirectoryAllowed
)

// CapabilityOptions is a flat record of booleans describing what a
// filesystem (or a mounted subtree of one) can do. Two records compose by
// Intersect (AND of every capability bit) or Union (OR).
type CapabilityOptions struct {
	CanBrowse            bool
	CanGetEntry          bool
	CanObserve           bool
	CanOpen              bool
	CanRead              bool
	CanWrite             bool
	CanCreateFile        bool
	CanDelete            bool
	CanMove              bool
	CanSetFileAttribute  bool
	CanCreateDirectory   bool
	CanMount             bool
	CanUnmount           bool
	CanListMountPoints   bool
	CaseSensitivity      CaseSensitivity
	EmptyDirectoryPolicy EmptyDirectoryPolicy
	SubPath              string
}

// FullCapabilityOptions returns a record with every capability granted,
// case-sensitive comparison and no subpath offset. Intersecting with it
// leaves the other record's capability bits and SubPath unchanged;
// CaseSensitivity still goes through combineCaseSensitivity, so a
// case-insensitive record comes out as CaseInconsistent.
func FullCapabilityOptions() CapabilityOptions {
	return CapabilityOptions{
		CanBrowse:           true,
		CanGetEntry:         true,
		CanObserve:          true,
		CanOpen:             true,
		CanRead:             true,
		CanWrite:            true,
		CanCreateFile:       true,
		CanDelete:           true,
		CanMove:             true,
		CanSetFileAttribute: true,
		CanCreateDirectory:  true,
		CanMount:            true,
		CanUnmount:          true,
		CanListMountPoints:  true,
		CaseSensitivity:     CaseSensitive,
	}
}

// Intersect returns the AND of every capability bit and the concatenation
// of the two SubPath prefixes. Used to compute a decoration's effective
// mask from an option mask and an underlying backend's own capabilities.
func (c CapabilityOptions) Intersect(o CapabilityOptions) CapabilityOptions {
	return CapabilityOptions{
		CanBrowse:            c.CanBrowse && o.CanBrowse,
		CanGetEntry:          c.CanGetEntry && o.CanGetEntry,
		CanObserve:           c.CanObserve && o.CanObserve,
		CanOpen:              c.CanOpen && o.CanOpen,
		CanRead:              c.CanRead && o.CanRead,
		CanWrite:             c.CanWrite && o.CanWrite,
		CanCreateFile:        c.CanCreateFile && o.CanCreateFile,
		CanDelete:            c.CanDelete && o.CanDelete,
		CanMove:              c.CanMove && o.CanMove,
		CanSetFileAttribute:  c.CanSetFileAttribute && o.CanSetFileAttribute,
		CanCreateDirectory:   c.CanCreateDirectory && o.CanCreateDirectory,
		CanMount:             c.CanMount && o.CanMount,
		CanUnmount:           c.CanUnmount && o.CanUnmount,
		CanListMountPoints:   c.CanListMountPoints && o.CanListMountPoints,
		CaseSensitivity:      combineCaseSensitivity(c.CaseSensitivity, o.CaseSensitivity),
		EmptyDirectoryPolicy: c.EmptyDirectoryPolicy,
		SubPath:              c.SubPath + o.SubPath,
	}
}

// Union returns the OR of every capability bit. Used by FileSystemDecoration
// to advertise what the composite can do across all of its components.
func (c CapabilityOptions) Union(o CapabilityOptions) CapabilityOptions {
	return CapabilityOptions{
		CanBrowse:            c.CanBrowse || o.CanBrowse,
		CanGetEntry:          c.CanGetEntry || o.CanGetEntry,
		CanObserve:           c.CanObserve || o.CanObserve,
		CanOpen:              c.CanOpen || o.CanOpen,
		CanRead:              c.CanRead || o.CanRead,
		CanWrite:             c.CanWrite || o.CanWrite,
		CanCreateFile:        c.CanCreateFile || o.CanCreateFile,
		CanDelete:            c.CanDelete || o.CanDelete,
		CanMove:              c.CanMove || o.CanMove,
		CanSetFileAttribute:  c.CanSetFileAttribute || o.CanSetFileAttribute,
		CanCreateDirectory:   c.CanCreateDirectory || o.CanCreateDirectory,
		CanMount:             c.CanMount || o.CanMount,
		CanUnmount:           c.CanUnmount || o.CanUnmount,
		CanListMountPoints:   c.CanListMountPoints || o.CanListMountPoints,
		CaseSensitivity:      combineCaseSensitivity(c.CaseSensitivity, o.CaseSensitivity),
		EmptyDirectoryPolicy: c.EmptyDirectoryPolicy,
		SubPath:              c.SubPath,
	}
}

func combineCaseSensitivity(a, b CaseSensitivity) CaseSensitivity {
	if a == CaseSensitivityUnknown {
		return b
	}
	if b == CaseSensitivityUnknown {
		return a
	}
	if a != b {
		return CaseInconsistent
	}
	return a
}
