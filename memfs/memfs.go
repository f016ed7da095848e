package memfs

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mwantia/vfs"
	"github.com/mwantia/vfs/disposable"
	"github.com/mwantia/vfs/glob"
	"github.com/mwantia/vfs/log"
	"github.com/mwantia/vfs/pool"
)

// MemoryFileSystem is the in-memory backend: a directory tree of
// MemoryDirectory/MemoryFile nodes over a pool.Allocator. All structural
// operations (link/unlink/rename) serialize on structMu; this
// directory-structure lock is always taken before any individual file's
// own content mutex.
type MemoryFileSystem struct {
	name string
	log  *log.Logger

	allocator pool.Allocator
	caseFold  func(string) string
	caseKind  vfs.CaseSensitivity

	structMu sync.RWMutex
	root     *MemoryDirectory

	subMu         sync.Mutex
	subscriptions map[uuid.UUID]*subscription

	base *disposable.Base
}

type subscription struct {
	id         uuid.UUID
	filter     glob.Pattern
	observer   vfs.Observer
	dispatcher vfs.Dispatcher
}

// Option configures a MemoryFileSystem at construction time.
type Option func(*MemoryFileSystem)

// WithName sets the filesystem's name, used in logging and PathError.FS.
func WithName(name string) Option {
	return func(m *MemoryFileSystem) { m.name = name }
}

// WithLogger sets the logger used for operation tracing.
func WithLogger(l *log.Logger) Option {
	return func(m *MemoryFileSystem) { m.log = l }
}

// WithAllocator sets the block allocator backing every file. Defaults to
// an unlimited pool with a 4096-byte block size.
func WithAllocator(a pool.Allocator) Option {
	return func(m *MemoryFileSystem) { m.allocator = a }
}

// WithCaseSensitivity sets the case-comparison policy for child names.
func WithCaseSensitivity(c vfs.CaseSensitivity) Option {
	return func(m *MemoryFileSystem) { m.caseKind = c }
}

// New creates an empty MemoryFileSystem.
func New(opts ...Option) *MemoryFileSystem {
	m := &MemoryFileSystem{
		name:          "memfs",
		log:           log.NewLogger("memfs", log.Info, "", false),
		allocator:     pool.NewUnlimited(4096),
		caseKind:      vfs.CaseSensitive,
		subscriptions: make(map[uuid.UUID]*subscription),
		base:          disposable.NewBase(),
	}
	for _, o := range opts {
		o(m)
	}
	m.root = newMemoryDirectory("", nil)
	m.caseFold = caseFoldFor(m.caseKind)
	return m
}

func caseFoldFor(c vfs.CaseSensitivity) func(string) string {
	if c == vfs.CaseInsensitive {
		return strings.ToLower
	}
	return func(s string) string { return s }
}

// Capabilities reports this backend's full capability set.
func (m *MemoryFileSystem) Capabilities() vfs.CapabilityOptions {
	opts := vfs.FullCapabilityOptions()
	opts.CanMount = false
	opts.CanUnmount = false
	opts.CanListMountPoints = false
	opts.CaseSensitivity = m.caseKind
	return opts
}

// split breaks a clean path into its directory segments.
func split(path string) []string {
	path = strings.TrimSuffix(vfs.CleanPath(path), vfs.Separator)
	if path == "" {
		return nil
	}
	var segs []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			segs = append(segs, path[start:i])
			start = i + 1
		}
	}
	segs = append(segs, path[start:])
	return segs
}

// walk resolves segs from the root, returning the terminal directory and
// whether the full path was found. create, when true, creates missing
// intermediate directories (and returns newly created paths for event
// emission). Must be called with structMu held.
func (m *MemoryFileSystem) walk(segs []string, create bool) (*MemoryDirectory, []string, bool) {
	cur := m.root
	var created []string
	prefix := ""
	for _, seg := range segs {
		prefix = vfs.Join(prefix, seg)
		key := m.caseFold(seg)
		e, ok := cur.get(key)
		if ok {
			if e.Kind != direntDirectory {
				return nil, created, false
			}
			cur = e.Dir
			continue
		}
		if !create {
			return nil, created, false
		}
		child := newMemoryDirectory(seg, cur)
		cur.put(key, &dirent{Name: seg, Kind: direntDirectory, Dir: child})
		created = append(created, prefix)
		cur = child
	}
	return cur, created, true
}

// CreateDirectory creates path and any missing intermediate directories.
// Idempotent; fails with ErrInvalidPath if path escapes root.
func (m *MemoryFileSystem) CreateDirectory(path string) error {
	clean, err := vfs.CleanPathStrict(path)
	if err != nil {
		return vfs.NewPathError("CreateDirectory", m.name, path, err)
	}

	m.structMu.Lock()
	_, created, ok := m.walk(split(clean), true)
	m.structMu.Unlock()

	if !ok {
		// A path segment already exists as a file.
		return vfs.NewPathError("CreateDirectory", m.name, path, vfs.ErrAlreadyExists)
	}

	for _, p := range created {
		m.emit(vfs.Event{Kind: vfs.EventCreate, Path: dirPath(p)})
	}
	return nil
}

func dirPath(p string) string {
	if p == "" || strings.HasSuffix(p, vfs.Separator) {
		return p
	}
	return p + vfs.Separator
}

// watchFile adapts file's change stream into the observer fan-out: every
// write or truncation through any open handle surfaces as a change event
// on path. A negative length is the stream's completion signal — the file
// has been disposed and clears its own subscriber list, so the watch dies
// with the file.
func (m *MemoryFileSystem) watchFile(file *MemoryFile, path string) {
	file.Subscribe(func(ev ChangeEvent) {
		if ev.NewLength < 0 {
			return
		}
		m.emit(vfs.Event{Kind: vfs.EventChange, Path: path})
	})
}

// CreateFile creates path with content, creating parent directories as
// needed. A file already at path is replaced; the bytes land atomically
// from the caller's perspective, since blocks are allocated before the
// new file is linked.
func (m *MemoryFileSystem) CreateFile(path string, content []byte) error {
	clean, err := vfs.CleanPathStrict(path)
	if err != nil || clean == "" {
		return vfs.NewPathError("CreateFile", m.name, path, vfs.ErrInvalidPath)
	}

	parentSegs := split(vfs.Parent(clean))
	name := vfs.Base(clean)

	key := m.caseFold(name)

	m.structMu.Lock()
	parent, created, ok := m.walk(parentSegs, true)
	if !ok {
		m.structMu.Unlock()
		return vfs.NewPathError("CreateFile", m.name, path, vfs.ErrAlreadyExists)
	}
	existing, exists := parent.get(key)
	if exists && existing.Kind == direntDirectory {
		m.structMu.Unlock()
		return vfs.NewPathError("CreateFile", m.name, path, vfs.ErrAlreadyExists)
	}
	// Allocate and fill before touching the namespace, so a rejected
	// allocation leaves any file being replaced fully intact.
	file := NewMemoryFile(m.allocator)
	if _, err := file.Write(content, 0); err != nil {
		m.structMu.Unlock()
		return vfs.NewPathError("CreateFile", m.name, path, err)
	}
	if exists {
		existing.File.unlink()
	}
	parent.put(key, &dirent{Name: name, Kind: direntFile, File: file})
	m.structMu.Unlock()

	// The initial content write happened before this subscription, so the
	// explicit change event below is the only one observers see for it.
	m.watchFile(file, clean)

	m.log.Debug("create file %q (%d bytes)", clean, len(content))

	for _, p := range created {
		m.emit(vfs.Event{Kind: vfs.EventCreate, Path: dirPath(p)})
	}
	m.emit(vfs.Event{Kind: vfs.EventCreate, Path: clean})
	m.emit(vfs.Event{Kind: vfs.EventChange, Path: clean})
	return nil
}

// Open implements every OpenMode creation semantic.
func (m *MemoryFileSystem) Open(path string, mode OpenMode, access AccessMode, share ShareMode) (vfs.Stream, error) {
	clean, err := vfs.CleanPathStrict(path)
	if err != nil || clean == "" || vfs.IsDirPath(path) {
		return nil, vfs.NewPathError("Open", m.name, path, vfs.ErrInvalidPath)
	}

	parentSegs := split(vfs.Parent(clean))
	name := vfs.Base(clean)
	key := m.caseFold(name)

	m.structMu.Lock()
	parent, createdDirs, ok := m.walk(parentSegs, mode != OpenExisting)
	if !ok {
		m.structMu.Unlock()
		return nil, vfs.NewPathError("Open", m.name, path, vfs.ErrNotFound)
	}

	existing, exists := parent.get(key)
	if exists && existing.Kind == direntDirectory && mode != OpenExisting {
		m.structMu.Unlock()
		return nil, vfs.NewPathError("Open", m.name, path, vfs.ErrAlreadyExists)
	}

	var target *MemoryFile
	var createdEvent bool

	switch mode {
	case OpenExisting:
		if !exists || existing.Kind != direntFile {
			m.structMu.Unlock()
			return nil, vfs.NewPathError("Open", m.name, path, vfs.ErrNotFound)
		}
		target = existing.File
	case OpenOrCreate:
		if exists {
			target = existing.File
		} else {
			target = NewMemoryFile(m.allocator)
			parent.put(key, &dirent{Name: name, Kind: direntFile, File: target})
			createdEvent = true
		}
	case CreateNew:
		if exists {
			m.structMu.Unlock()
			return nil, vfs.NewPathError("Open", m.name, path, vfs.ErrAlreadyExists)
		}
		target = NewMemoryFile(m.allocator)
		parent.put(key, &dirent{Name: name, Kind: direntFile, File: target})
		createdEvent = true
	case Create:
		if exists {
			existing.File.unlink()
		}
		target = NewMemoryFile(m.allocator)
		parent.put(key, &dirent{Name: name, Kind: direntFile, File: target})
		createdEvent = true
	}
	m.structMu.Unlock()

	if createdEvent {
		m.watchFile(target, clean)
	}

	for _, p := range createdDirs {
		m.emit(vfs.Event{Kind: vfs.EventCreate, Path: dirPath(p)})
	}

	h, err := target.Open(access, share)
	if err != nil {
		return nil, vfs.NewPathError("Open", m.name, path, err)
	}

	if createdEvent {
		m.emit(vfs.Event{Kind: vfs.EventCreate, Path: clean})
		m.emit(vfs.Event{Kind: vfs.EventChange, Path: clean})
	}
	return h, nil
}

// Delete removes path. On a non-empty directory with recurse=false it
// fails with ErrDirectoryNotEmpty; with recurse=true it unlinks
// post-order, emitting one delete event per removed entry.
func (m *MemoryFileSystem) Delete(path string, recurse bool) error {
	clean, err := vfs.CleanPathStrict(path)
	if err != nil || clean == "" {
		return vfs.NewPathError("Delete", m.name, path, vfs.ErrInvalidPath)
	}

	parentSegs := split(vfs.Parent(clean))
	name := vfs.Base(clean)
	key := m.caseFold(name)

	m.structMu.Lock()
	parent, _, ok := m.walk(parentSegs, false)
	if !ok {
		m.structMu.Unlock()
		return vfs.NewPathError("Delete", m.name, path, vfs.ErrNotFound)
	}
	e, exists := parent.get(key)
	if !exists {
		m.structMu.Unlock()
		return vfs.NewPathError("Delete", m.name, path, vfs.ErrNotFound)
	}
	if e.Kind == direntDirectory && !e.Dir.isEmpty() && !recurse {
		m.structMu.Unlock()
		return vfs.NewPathError("Delete", m.name, path, vfs.ErrDirectoryNotEmpty)
	}

	var removed []string
	m.unlinkLocked(e, clean, recurse, &removed)
	parent.remove(key)
	m.structMu.Unlock()

	m.log.Debug("delete %q (%d entries)", clean, len(removed))
	for _, p := range removed {
		m.emit(vfs.Event{Kind: vfs.EventDelete, Path: p})
	}
	return nil
}

// unlinkLocked detaches e (and, recursively, its children) from the tree,
// appending every removed path to removed in post-order. Must be called
// with structMu held.
func (m *MemoryFileSystem) unlinkLocked(e *dirent, path string, recurse bool, removed *[]string) {
	if e.Kind == direntFile {
		e.File.unlink()
		*removed = append(*removed, path)
		return
	}
	if recurse {
		for _, child := range e.Dir.entries() {
			childPath := vfs.Join(path, child.Name)
			if child.Kind == direntDirectory {
				childPath = dirPath(childPath)
			}
			m.unlinkLocked(child, childPath, recurse, removed)
		}
	}
	*removed = append(*removed, dirPath(path))
}

// Move renames src to dst within this filesystem.
func (m *MemoryFileSystem) Move(src, dst string) error {
	cleanSrc, err := vfs.CleanPathStrict(src)
	if err != nil {
		return vfs.NewPathError("Move", m.name, src, vfs.ErrInvalidPath)
	}
	cleanDst, err := vfs.CleanPathStrict(dst)
	if err != nil {
		return vfs.NewPathError("Move", m.name, dst, vfs.ErrInvalidPath)
	}
	if cleanSrc == cleanDst {
		return nil
	}
	if vfs.HasPathPrefix(cleanDst, cleanSrc) {
		return vfs.NewPathError("Move", m.name, dst, vfs.ErrInvalidPath)
	}

	srcParentSegs := split(vfs.Parent(cleanSrc))
	srcName := vfs.Base(cleanSrc)
	dstParentSegs := split(vfs.Parent(cleanDst))
	dstName := vfs.Base(cleanDst)

	m.structMu.Lock()
	srcParent, _, ok := m.walk(srcParentSegs, false)
	if !ok {
		m.structMu.Unlock()
		return vfs.NewPathError("Move", m.name, src, vfs.ErrNotFound)
	}
	e, exists := srcParent.get(m.caseFold(srcName))
	if !exists {
		m.structMu.Unlock()
		return vfs.NewPathError("Move", m.name, src, vfs.ErrNotFound)
	}
	dstParent, _, ok := m.walk(dstParentSegs, false)
	if !ok {
		m.structMu.Unlock()
		return vfs.NewPathError("Move", m.name, dst, vfs.ErrNotFound)
	}
	if _, exists := dstParent.get(m.caseFold(dstName)); exists {
		m.structMu.Unlock()
		return vfs.NewPathError("Move", m.name, dst, vfs.ErrAlreadyExists)
	}

	srcParent.remove(m.caseFold(srcName))
	e.Name = dstName
	if e.Kind == direntDirectory {
		e.Dir.Name = dstName
		e.Dir.Parent = dstParent
	}
	dstParent.put(m.caseFold(dstName), e)
	m.structMu.Unlock()

	m.log.Debug("move %q -> %q", cleanSrc, cleanDst)
	m.emit(vfs.Event{Kind: vfs.EventRename, Path: cleanSrc, NewPath: cleanDst})
	return nil
}

// SetFileAttribute merges attrs onto the node at path.
func (m *MemoryFileSystem) SetFileAttribute(path string, attrs map[string]string) error {
	clean, err := vfs.CleanPathStrict(path)
	if err != nil {
		return vfs.NewPathError("SetFileAttribute", m.name, path, vfs.ErrInvalidPath)
	}

	m.structMu.Lock()
	if dir, _, ok := m.walk(split(clean), false); ok {
		dir.setAttributes(attrs)
		m.structMu.Unlock()
		m.emit(vfs.Event{Kind: vfs.EventChange, Path: dirPath(clean)})
		return nil
	}
	file, ok := m.lookupFileLocked(clean)
	m.structMu.Unlock()

	if !ok {
		return vfs.NewPathError("SetFileAttribute", m.name, path, vfs.ErrNotFound)
	}
	file.SetAttributes(attrs)
	m.emit(vfs.Event{Kind: vfs.EventChange, Path: clean})
	return nil
}

// Browse returns a snapshot of path's children. Fails with ErrNotFound if
// path does not exist; returns an empty, exists=false result for a file
// path.
func (m *MemoryFileSystem) Browse(path string) ([]vfs.Entry, error) {
	// Read-side call: ".." above the root resolves to the root.
	clean := vfs.CleanPath(path)

	m.structMu.RLock()
	defer m.structMu.RUnlock()

	dir, _, ok := m.walk(split(clean), false)
	if !ok {
		if _, fileOk := m.lookupFileLocked(clean); fileOk {
			return nil, nil
		}
		return nil, vfs.NewPathError("Browse", m.name, path, vfs.ErrNotFound)
	}

	entries := dir.entries()
	out := make([]vfs.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, m.entryFor(clean, e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryFileSystem) lookupFileLocked(clean string) (*MemoryFile, bool) {
	if clean == "" {
		return nil, false
	}
	parent, _, ok := m.walk(split(vfs.Parent(clean)), false)
	if !ok {
		return nil, false
	}
	e, exists := parent.get(m.caseFold(vfs.Base(clean)))
	if !exists || e.Kind != direntFile {
		return nil, false
	}
	return e.File, true
}

func (m *MemoryFileSystem) entryFor(parentPath string, e *dirent) vfs.Entry {
	path := vfs.Join(parentPath, e.Name)
	if e.Kind == direntDirectory {
		return vfs.Entry{
			Path:         dirPath(path),
			Name:         e.Name,
			Kind:         vfs.EntryDirectory,
			LastModified: e.Dir.lastModified,
			LastAccess:   e.Dir.lastAccess,
			Length:       -1,
			Options:      m.Capabilities(),
		}
	}
	return vfs.Entry{
		Path:           path,
		Name:           e.Name,
		Kind:           vfs.EntryFile,
		LastModified:   e.File.LastModified(),
		Length:         e.File.Length(),
		FileAttributes: e.File.Attributes(),
		Options:        m.Capabilities(),
	}
}

// GetEntry returns a snapshot of path, or nil if it does not exist.
func (m *MemoryFileSystem) GetEntry(path string) (*vfs.Entry, error) {
	clean := vfs.CleanPath(path)

	if clean == "" {
		m.structMu.RLock()
		entry := vfs.Entry{
			Path: "", Name: "", Kind: vfs.EntryDirectory, Length: -1,
			LastModified: m.root.lastModified, Options: m.Capabilities(),
		}
		m.structMu.RUnlock()
		return &entry, nil
	}

	m.structMu.RLock()
	defer m.structMu.RUnlock()

	parent, _, ok := m.walk(split(vfs.Parent(clean)), false)
	if !ok {
		return nil, nil
	}
	e, exists := parent.get(m.caseFold(vfs.Base(clean)))
	if !exists {
		return nil, nil
	}
	entry := m.entryFor(vfs.Parent(clean), e)
	return &entry, nil
}

// Observe registers observer to receive events whose path matches filter.
// Returns a Subscription whose Dispose unregisters it.
func (m *MemoryFileSystem) Observe(filter glob.Pattern, observer vfs.Observer, dispatcher vfs.Dispatcher) (vfs.Subscription, error) {
	filter = glob.Pattern(strings.TrimLeft(string(filter), vfs.Separator))
	if dispatcher == nil {
		dispatcher = vfs.InlineDispatcher{}
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	sub := &subscription{id: id, filter: filter, observer: observer, dispatcher: dispatcher}

	m.subMu.Lock()
	m.subscriptions[id] = sub
	m.subMu.Unlock()

	return &memfsSubscription{fs: m, id: id}, nil
}

type memfsSubscription struct {
	fs *MemoryFileSystem
	id uuid.UUID
}

func (s *memfsSubscription) Dispose() error {
	s.fs.subMu.Lock()
	sub, ok := s.fs.subscriptions[s.id]
	delete(s.fs.subscriptions, s.id)
	s.fs.subMu.Unlock()
	if ok {
		sub.dispatcher.Dispatch(func() { sub.observer.OnComplete() })
	}
	return nil
}

// emit fans event out to every subscription whose filter matches its path.
// A belate hold keeps disposal from completing while a delivery is in
// flight.
func (m *MemoryFileSystem) emit(event vfs.Event) {
	hold := m.base.Belate()
	defer hold.Release()

	event.EventTime = time.Now()

	m.subMu.Lock()
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, s := range m.subscriptions {
		subs = append(subs, s)
	}
	m.subMu.Unlock()

	for _, s := range subs {
		if !glob.Matches(s.filter, event.Path) {
			continue
		}
		ev := event
		ev.ObserverHandle = s.id.String()
		s.dispatcher.Dispatch(func() { s.observer.OnEvent(ev) })
	}
}

// Dispose completes every active subscription, calling each observer's
// OnComplete exactly once. The tree itself is left intact; Dispose only
// severs observers, matching the cascade a VirtualFileSystem performs when
// it tears down a mount built on this filesystem.
func (m *MemoryFileSystem) Dispose() error {
	m.subMu.Lock()
	subs := m.subscriptions
	m.subscriptions = make(map[uuid.UUID]*subscription)
	m.subMu.Unlock()

	for _, s := range subs {
		sub := s
		m.base.AddFunc(func() error {
			sub.dispatcher.Dispatch(func() { sub.observer.OnComplete() })
			return nil
		})
	}
	return m.base.Dispose()
}

var _ vfs.Backend = (*MemoryFileSystem)(nil)
var _ disposable.Disposable = (*MemoryFileSystem)(nil)

