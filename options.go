package vfs

// AssignmentOption configures an Assignment at construction time.
type AssignmentOption func(*Assignment)

// NewAssignment builds an Assignment for backend with every capability
// granted and no subpath offset or sharing cap, then applies opts in order.
func NewAssignment(backend Backend, opts ...AssignmentOption) Assignment {
	a := Assignment{Backend: backend, Options: FullCapabilityOptions()}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// WithReadOnly clears every write-capable bit from the assignment's options
// mask, so the backend is exposed through this assignment but never
// mutated, regardless of what the backend itself would otherwise allow.
func WithReadOnly() AssignmentOption {
	return func(a *Assignment) {
		a.Options.CanWrite = false
		a.Options.CanCreateFile = false
		a.Options.CanCreateDirectory = false
		a.Options.CanDelete = false
		a.Options.CanMove = false
		a.Options.CanSetFileAttribute = false
	}
}

// WithSubPath offsets the assignment into a subdirectory of the backend:
// a path below the mount point is rewritten onto subPath before reaching
// the backend, and translated back on the way out.
func WithSubPath(subPath string) AssignmentOption {
	return func(a *Assignment) { a.SubPath = subPath }
}

// WithSharingMask caps the share mode every Open through this assignment
// may grant, regardless of what the caller requests: the effective share
// passed to the backend is the intersection of the two. Leaving this unset
// leaves the caller's requested share mode untouched.
func WithSharingMask(mask ShareMode) AssignmentOption {
	return func(a *Assignment) {
		m := mask
		a.SharingMask = &m
	}
}
