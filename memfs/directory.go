package memfs

import (
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/btree"
)

// direntKind tells whether a dirent wraps a directory or a file.
type direntKind int

const (
	direntDirectory direntKind = iota
	direntFile
)

// dirent is one named child of a MemoryDirectory: either a subdirectory or
// a file. Only one of Dir/File is set, matching kind.
type dirent struct {
	Name string
	Kind direntKind
	Dir  *MemoryDirectory
	File *MemoryFile
}

// MemoryDirectory is one directory node. It exclusively owns its children;
// Parent is a non-owning back-reference used only for upward traversal —
// the owning edge always runs parent to child, never the reverse.
type MemoryDirectory struct {
	ID     uuid.UUID
	Name   string
	Parent *MemoryDirectory

	children *btree.Map[string, *dirent]

	lastModified time.Time
	lastAccess   time.Time
	attributes   map[string]string
}

// newMemoryDirectory creates an empty directory named name under parent.
func newMemoryDirectory(name string, parent *MemoryDirectory) *MemoryDirectory {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	now := time.Now()
	return &MemoryDirectory{
		ID:           id,
		Name:         name,
		Parent:       parent,
		children:     btree.NewMap[string, *dirent](0), // degree 0 = auto-optimize
		lastModified: now,
		lastAccess:   now,
		attributes:   make(map[string]string),
	}
}

// get returns the child stored under key. It does no case folding itself:
// callers pass names already folded by the filesystem's case policy.
func (d *MemoryDirectory) get(key string) (*dirent, bool) {
	return d.children.Get(key)
}

// put links child under key, overwriting any existing entry with that key.
func (d *MemoryDirectory) put(key string, e *dirent) {
	d.children.Set(key, e)
	d.lastModified = time.Now()
}

// remove unlinks the child named key.
func (d *MemoryDirectory) remove(key string) (*dirent, bool) {
	e, ok := d.children.Delete(key)
	if ok {
		d.lastModified = time.Now()
	}
	return e, ok
}

// entries returns every child in sorted key order.
func (d *MemoryDirectory) entries() []*dirent {
	out := make([]*dirent, 0, d.children.Len())
	d.children.Scan(func(_ string, e *dirent) bool {
		out = append(out, e)
		return true
	})
	return out
}

func (d *MemoryDirectory) isEmpty() bool {
	return d.children.Len() == 0
}

// setAttributes merges attrs onto the directory's attribute map.
func (d *MemoryDirectory) setAttributes(attrs map[string]string) {
	for k, v := range attrs {
		d.attributes[k] = v
	}
	d.lastModified = time.Now()
}
