package vfs

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mwantia/vfs/disposable"
	"github.com/mwantia/vfs/glob"
	"github.com/mwantia/vfs/log"
)

// MountInfo describes one backend assignment visible at a mount path, the
// wire-facing counterpart of a decoration's internal component.
type MountInfo struct {
	Path    string
	Options CapabilityOptions
}

// VirtualFileSystem is a mount table addressed by path: a flat map from
// cleaned mount path to the FileSystemDecoration composed there, rather
// than a dedicated trie type.
type VirtualFileSystem struct {
	mu     sync.RWMutex
	mounts map[string]*FileSystemDecoration
	infos  map[string][]MountInfo
	logger *log.Logger

	subMu         sync.Mutex
	subscriptions map[uuid.UUID]*vfsSubscription

	base *disposable.Base
}

// vfsSubscription is one Observe registration on the VirtualFileSystem.
// It holds a forwardee subscription per mount path so events from every
// mounted decoration — including ones mounted after the Observe call —
// reach the caller, plus the decorator that owns delivery ordering and
// the exactly-once OnComplete.
type vfsSubscription struct {
	v         *VirtualFileSystem
	id        uuid.UUID
	filter    glob.Pattern
	decorator *observerDecorator

	mu         sync.Mutex
	forwardees map[string]Subscription
}

// attach subscribes this subscription to the decoration mounted at
// mountPath, replacing (and disposing) any forwardee left over from a
// mount this one displaced.
func (s *vfsSubscription) attach(mountPath string, decoration *FileSystemDecoration) {
	childFilter, ok := mountChildFilter(mountPath, s.filter)
	if !ok {
		return
	}
	fwd, err := decoration.Observe(childFilter, &mountForwarder{sub: s, mountPath: mountPath}, InlineDispatcher{})
	if err != nil {
		return
	}

	s.mu.Lock()
	if s.forwardees == nil {
		s.mu.Unlock()
		fwd.Dispose()
		return
	}
	old := s.forwardees[mountPath]
	s.forwardees[mountPath] = fwd
	s.mu.Unlock()

	if old != nil {
		old.Dispose()
	}
}

// detach drops the forwardee for mountPath, if any.
func (s *vfsSubscription) detach(mountPath string) {
	s.mu.Lock()
	fwd := s.forwardees[mountPath]
	delete(s.forwardees, mountPath)
	s.mu.Unlock()

	if fwd != nil {
		fwd.Dispose()
	}
}

// Dispose unregisters the subscription, disposes every forwardee and
// completes the caller's observer exactly once.
func (s *vfsSubscription) Dispose() error {
	s.v.subMu.Lock()
	delete(s.v.subscriptions, s.id)
	s.v.subMu.Unlock()

	s.mu.Lock()
	fwd := s.forwardees
	s.forwardees = nil
	s.mu.Unlock()

	var agg AggregateError
	for _, f := range fwd {
		agg.Add(f.Dispose())
	}
	agg.Add(s.decorator.Dispose())
	return agg.Err()
}

// mountForwarder relays one mounted decoration's events into the
// subscription's namespace: paths gain the mount prefix and the original
// filter is re-applied, since the child filter may have been broadened.
// Start and complete signals are swallowed — the subscription has its own
// start event, and a mount going away is the VFS's decision to make, not
// a spontaneous completion of the whole subscription.
type mountForwarder struct {
	sub       *vfsSubscription
	mountPath string
}

func (f *mountForwarder) OnEvent(e Event) {
	if e.Kind == EventStart {
		return
	}
	e.Path = joinEventPath(f.mountPath, e.Path)
	if e.NewPath != "" {
		e.NewPath = joinEventPath(f.mountPath, e.NewPath)
	}
	if e.Kind != EventError && !glob.Matches(f.sub.filter, e.Path) {
		if e.Kind != EventRename || !glob.Matches(f.sub.filter, e.NewPath) {
			return
		}
	}
	f.sub.decorator.deliver(e)
}

func (f *mountForwarder) OnError(err error) {
	f.sub.decorator.deliver(Event{Kind: EventError, Err: err})
}

func (f *mountForwarder) OnComplete() {}

// joinEventPath prefixes a mount-relative event path with its mount path,
// preserving a trailing separator on directory paths.
func joinEventPath(mountPath, p string) string {
	abs := Join(mountPath, p)
	if strings.HasSuffix(p, Separator) {
		abs = dirPath(abs)
	}
	return abs
}

// mountChildFilter rewrites filter for the decoration mounted at
// mountPath. A filter whose literal prefix reaches into the mount has the
// prefix trimmed; one whose prefix stops at an ancestor of the mount could
// still match anything beneath it, so the decoration is subscribed broadly
// and the original filter is re-applied on delivery. ok is false when no
// path under mountPath can ever match.
func mountChildFilter(mountPath string, filter glob.Pattern) (glob.Pattern, bool) {
	if mountPath == "" {
		return filter, true
	}
	if child, ok := translateFilter(NewPathConverter(mountPath, ""), filter); ok {
		return child, true
	}
	info := glob.Parse(filter)
	prefix := CleanPath(strings.TrimSuffix(info.Prefix, Separator))
	if info.Suffix != "" && HasPathPrefix(mountPath, prefix) {
		return glob.Pattern("**"), true
	}
	return glob.Empty, false
}

// Option configures a VirtualFileSystem at construction time.
type Option func(*VirtualFileSystem)

// WithVFSLogger sets the logger used for mount/unmount tracing.
func WithVFSLogger(l *log.Logger) Option {
	return func(v *VirtualFileSystem) { v.logger = l }
}

// New creates an empty VirtualFileSystem.
func New(opts ...Option) *VirtualFileSystem {
	v := &VirtualFileSystem{
		mounts:        make(map[string]*FileSystemDecoration),
		infos:         make(map[string][]MountInfo),
		logger:        log.NewLogger("vfs", log.Info, "", false),
		subscriptions: make(map[uuid.UUID]*vfsSubscription),
		base:          disposable.NewBase(),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Mount composes assignments into the decoration at path, replacing any
// decoration already there. Emits create events for entries newly visible
// and delete events for entries that disappear.
func (v *VirtualFileSystem) Mount(path string, assignments ...Assignment) error {
	clean, err := CleanPathStrict(path)
	if err != nil {
		return NewPathError("Mount", "vfs", path, ErrInvalidPath)
	}

	v.mu.Lock()
	old, hadOld := v.mounts[clean]
	var before map[string]Entry
	if hadOld {
		before = v.snapshotLocked(clean, old)
	}

	decoration := NewFileSystemDecoration(v.logger.Named(clean), assignments...)
	v.mounts[clean] = decoration

	infos := make([]MountInfo, 0, len(assignments))
	for _, a := range assignments {
		infos = append(infos, MountInfo{Path: clean, Options: a.Options.Intersect(a.Backend.Capabilities())})
	}
	v.infos[clean] = infos

	after := v.snapshotLocked(clean, decoration)
	v.mu.Unlock()

	for _, s := range v.snapshotSubscriptions() {
		s.attach(clean, decoration)
	}

	v.logger.Debug("mounted %d assignment(s) at %q", len(assignments), clean)
	v.diffAndEmit(before, after)
	return nil
}

func (v *VirtualFileSystem) snapshotSubscriptions() []*vfsSubscription {
	v.subMu.Lock()
	defer v.subMu.Unlock()
	out := make([]*vfsSubscription, 0, len(v.subscriptions))
	for _, s := range v.subscriptions {
		out = append(out, s)
	}
	return out
}

// Unmount removes the decoration at path, emitting delete events for
// everything it previously exposed.
func (v *VirtualFileSystem) Unmount(path string) error {
	clean, err := CleanPathStrict(path)
	if err != nil {
		return NewPathError("Unmount", "vfs", path, ErrInvalidPath)
	}

	v.mu.Lock()
	old, ok := v.mounts[clean]
	if !ok {
		v.mu.Unlock()
		return NewPathError("Unmount", "vfs", path, ErrNotFound)
	}
	before := v.snapshotLocked(clean, old)
	delete(v.mounts, clean)
	delete(v.infos, clean)
	v.mu.Unlock()

	for _, s := range v.snapshotSubscriptions() {
		s.detach(clean)
	}

	v.logger.Debug("unmounted %q", clean)
	v.diffAndEmit(before, nil)
	return nil
}

// snapshotLocked walks every entry exposed by decoration (recursively),
// keyed by absolute path. Must be called with v.mu held.
func (v *VirtualFileSystem) snapshotLocked(mountPath string, decoration *FileSystemDecoration) map[string]Entry {
	out := make(map[string]Entry)
	var walk func(rel string)
	walk = func(rel string) {
		entries, err := decoration.Browse(rel)
		if err != nil {
			return
		}
		for _, e := range entries {
			abs := Join(mountPath, strings.TrimSuffix(e.Path, Separator))
			absPath := abs
			if e.IsDir() {
				absPath = dirPath(abs)
			}
			out[absPath] = e
			if e.IsDir() {
				walk(strings.TrimSuffix(e.Path, Separator))
			}
		}
	}
	walk("")
	return out
}

func dirPath(p string) string {
	if p == "" || strings.HasSuffix(p, Separator) {
		return p
	}
	return p + Separator
}

func (v *VirtualFileSystem) diffAndEmit(before, after map[string]Entry) {
	for path := range after {
		if _, existed := before[path]; !existed {
			v.emit(Event{Kind: EventCreate, Path: path})
		}
	}
	for path := range before {
		if _, stillThere := after[path]; !stillThere {
			v.emit(Event{Kind: EventDelete, Path: path})
		}
	}
}

// Capabilities returns the union of every mounted decoration's capabilities,
// plus mount-table management which only the VirtualFileSystem itself
// (not any individual backend) ever supports.
func (v *VirtualFileSystem) Capabilities() CapabilityOptions {
	v.mu.RLock()
	decorations := make([]*FileSystemDecoration, 0, len(v.mounts))
	for _, d := range v.mounts {
		decorations = append(decorations, d)
	}
	v.mu.RUnlock()

	out := CapabilityOptions{CanMount: true, CanUnmount: true, CanListMountPoints: true}
	for i, d := range decorations {
		caps := d.Capabilities()
		if i == 0 {
			caps.CanMount, caps.CanUnmount, caps.CanListMountPoints = true, true, true
			out = caps
		} else {
			out = out.Union(caps)
		}
	}
	return out
}

// ListMountPoints returns every mount path currently registered.
func (v *VirtualFileSystem) ListMountPoints() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.mounts))
	for p := range v.mounts {
		out = append(out, p)
	}
	return out
}

// resolve finds the longest registered mount path that is a prefix of (or
// equal to) p, returning its decoration and the remainder path relative to
// the mount. ok is false if no mount contains p.
func (v *VirtualFileSystem) resolve(p string) (decoration *FileSystemDecoration, mountPath, remainder string, ok bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	bestLen := -1
	for k, d := range v.mounts {
		if k != "" && !HasPathPrefix(p, k) {
			continue
		}
		if len(k) > bestLen {
			bestLen = len(k)
			decoration, mountPath = d, k
		}
	}
	if decoration == nil {
		return nil, "", "", false
	}
	return decoration, mountPath, TrimPathPrefix(p, mountPath), true
}

// childMountSegments returns the distinct immediate child segment names of
// every mount path that lies strictly beneath p (used to synthesize an
// intermediate directory between mount nodes).
func (v *VirtualFileSystem) childMountSegments(p string) []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for k := range v.mounts {
		if k == p || !HasPathPrefix(k, p) {
			continue
		}
		rel := TrimPathPrefix(k, p)
		seg := rel
		if idx := strings.IndexByte(rel, '/'); idx >= 0 {
			seg = rel[:idx]
		}
		if seg == "" || seen[seg] {
			continue
		}
		seen[seg] = true
		out = append(out, seg)
	}
	return out
}

// Browse lists the children of path: either delegated to the decoration at
// the longest enclosing mount, or synthesized from intermediate mount
// segments when path itself isn't (and isn't inside) a mount.
func (v *VirtualFileSystem) Browse(path string) ([]Entry, error) {
	// Read-side call: a ".." popping above the root resolves to the root
	// instead of failing.
	clean := CleanPath(path)

	if decoration, mountPath, remainder, ok := v.resolve(clean); ok {
		entries, err := decoration.Browse(remainder)
		if err != nil {
			// The enclosing mount may not hold this path even though a
			// deeper mount lies beneath it; synthesize those segments.
			if errors.Is(err, ErrNotFound) {
				if segs := v.childMountSegments(clean); len(segs) > 0 {
					out := make([]Entry, 0, len(segs))
					for _, seg := range segs {
						out = append(out, v.syntheticEntry(clean, seg))
					}
					return out, nil
				}
			}
			return nil, NewPathError("Browse", "vfs", path, err)
		}
		for i := range entries {
			rel := strings.TrimSuffix(entries[i].Path, Separator)
			abs := Join(mountPath, rel)
			if entries[i].IsDir() {
				abs = dirPath(abs)
			}
			entries[i].Path = abs
		}
		segs := v.childMountSegments(clean)
		for _, seg := range segs {
			entries = append(entries, v.syntheticEntry(clean, seg))
		}
		return entries, nil
	}

	segs := v.childMountSegments(clean)
	if segs == nil && clean != "" {
		return nil, NewPathError("Browse", "vfs", path, ErrNotFound)
	}
	out := make([]Entry, 0, len(segs))
	for _, seg := range segs {
		out = append(out, v.syntheticEntry(clean, seg))
	}
	return out, nil
}

func (v *VirtualFileSystem) syntheticEntry(parent, name string) Entry {
	full := Join(parent, name)
	v.mu.RLock()
	_, isMount := v.mounts[full]
	infos := v.infos[full]
	v.mu.RUnlock()
	return Entry{
		Path:         dirPath(full),
		Name:         name,
		Kind:         EntryDirectory,
		Length:       -1,
		IsMountPoint: isMount,
		Mounts:       infos,
		Options:      CapabilityOptions{CanBrowse: true, CanGetEntry: true},
	}
}

// GetEntry returns a snapshot of path, synthesizing an entry for
// intermediate mount-table nodes.
func (v *VirtualFileSystem) GetEntry(path string) (*Entry, error) {
	clean := CleanPath(path)

	if decoration, mountPath, remainder, ok := v.resolve(clean); ok {
		entry, err := decoration.GetEntry(remainder)
		if err != nil {
			return nil, NewPathError("GetEntry", "vfs", path, err)
		}
		if entry == nil {
			if segs := v.childMountSegments(clean); segs != nil || clean == mountPath {
				e := v.syntheticEntry(Parent(clean), Base(clean))
				return &e, nil
			}
			return nil, nil
		}
		rel := strings.TrimSuffix(entry.Path, Separator)
		abs := Join(mountPath, rel)
		if entry.IsDir() {
			abs = dirPath(abs)
		}
		entry.Path = abs
		if clean == mountPath {
			entry.IsMountPoint = true
			v.mu.RLock()
			entry.Mounts = v.infos[mountPath]
			v.mu.RUnlock()
		}
		return entry, nil
	}

	if segs := v.childMountSegments(clean); segs != nil || clean == "" {
		e := v.syntheticEntry(Parent(clean), Base(clean))
		if clean == "" {
			e.Path, e.Name = "", ""
		}
		return &e, nil
	}
	return nil, nil
}

// Open delegates to the decoration owning path.
func (v *VirtualFileSystem) Open(path string, mode OpenMode, access AccessMode, share ShareMode) (Stream, error) {
	clean, err := CleanPathStrict(path)
	if err != nil {
		return nil, NewPathError("Open", "vfs", path, ErrInvalidPath)
	}
	decoration, _, remainder, ok := v.resolve(clean)
	if !ok {
		return nil, NewPathError("Open", "vfs", path, ErrNotFound)
	}
	stream, err := decoration.Open(remainder, mode, access, share)
	if err != nil {
		return nil, NewPathError("Open", "vfs", path, err)
	}
	return stream, nil
}

// CreateDirectory delegates to the decoration owning path.
func (v *VirtualFileSystem) CreateDirectory(path string) error {
	clean, err := CleanPathStrict(path)
	if err != nil {
		return NewPathError("CreateDirectory", "vfs", path, ErrInvalidPath)
	}
	decoration, _, remainder, ok := v.resolve(clean)
	if !ok {
		return NewPathError("CreateDirectory", "vfs", path, ErrNotFound)
	}
	return NewPathError("CreateDirectory", "vfs", path, decoration.CreateDirectory(remainder))
}

// CreateFile delegates to the decoration owning path.
func (v *VirtualFileSystem) CreateFile(path string, content []byte) error {
	clean, err := CleanPathStrict(path)
	if err != nil {
		return NewPathError("CreateFile", "vfs", path, ErrInvalidPath)
	}
	decoration, _, remainder, ok := v.resolve(clean)
	if !ok {
		return NewPathError("CreateFile", "vfs", path, ErrNotFound)
	}
	return NewPathError("CreateFile", "vfs", path, decoration.CreateFile(remainder, content))
}

// Delete delegates to the decoration owning path.
func (v *VirtualFileSystem) Delete(path string, recurse bool) error {
	clean, err := CleanPathStrict(path)
	if err != nil {
		return NewPathError("Delete", "vfs", path, ErrInvalidPath)
	}
	decoration, _, remainder, ok := v.resolve(clean)
	if !ok {
		return NewPathError("Delete", "vfs", path, ErrNotFound)
	}
	return NewPathError("Delete", "vfs", path, decoration.Delete(remainder, recurse))
}

// SetFileAttribute delegates to the decoration owning path.
func (v *VirtualFileSystem) SetFileAttribute(path string, attrs map[string]string) error {
	clean, err := CleanPathStrict(path)
	if err != nil {
		return NewPathError("SetFileAttribute", "vfs", path, ErrInvalidPath)
	}
	decoration, _, remainder, ok := v.resolve(clean)
	if !ok {
		return NewPathError("SetFileAttribute", "vfs", path, ErrNotFound)
	}
	return NewPathError("SetFileAttribute", "vfs", path, decoration.SetFileAttribute(remainder, attrs))
}

// Move resolves both endpoints to their owning decorations. When both
// resolve to the same decoration, the move is native; otherwise it is a
// cross-mount transfer (read src fully, create dst, delete src), emitting
// a delete+create pair instead of a single rename event.
func (v *VirtualFileSystem) Move(src, dst string) error {
	cleanSrc, err := CleanPathStrict(src)
	if err != nil {
		return NewPathError("Move", "vfs", src, ErrInvalidPath)
	}
	cleanDst, err := CleanPathStrict(dst)
	if err != nil {
		return NewPathError("Move", "vfs", dst, ErrInvalidPath)
	}
	if HasPathPrefix(cleanDst, cleanSrc) && cleanDst != cleanSrc {
		return NewPathError("Move", "vfs", dst, ErrInvalidPath)
	}

	srcDecoration, _, srcRemainder, ok := v.resolve(cleanSrc)
	if !ok {
		return NewPathError("Move", "vfs", src, ErrNotFound)
	}
	dstDecoration, _, dstRemainder, ok := v.resolve(cleanDst)
	if !ok {
		return NewPathError("Move", "vfs", dst, ErrNotFound)
	}

	// Event emission is left to the backends: a native move surfaces as a
	// single rename through the mount's forwardees, a cross-mount transfer
	// as the destination's create plus the source's delete.
	if srcDecoration == dstDecoration {
		if err := srcDecoration.Move(srcRemainder, dstRemainder); err != nil {
			return NewPathError("Move", "vfs", src, err)
		}
		return nil
	}

	stream, err := srcDecoration.Open(srcRemainder, OpenExisting, AccessRead, ShareReadWrite)
	if err != nil {
		return NewPathError("Move", "vfs", src, err)
	}
	var content []byte
	buf := make([]byte, 32*1024)
	for {
		n, rerr := stream.Read(buf)
		if n > 0 {
			content = append(content, buf[:n]...)
		}
		if rerr != nil {
			break
		}
	}
	if cerr := stream.Close(); cerr != nil {
		return NewPathError("Move", "vfs", src, cerr)
	}

	if err := dstDecoration.CreateFile(dstRemainder, content); err != nil {
		return NewPathError("Move", "vfs", dst, err)
	}
	if err := srcDecoration.Delete(srcRemainder, false); err != nil {
		_ = dstDecoration.Delete(dstRemainder, false)
		return NewPathError("Move", "vfs", src, err)
	}
	return nil
}

// Observe subscribes filter across every mounted decoration. Decorations
// mounted after this call are picked up as they appear; unmounting drops
// their forwardees without completing the subscription.
func (v *VirtualFileSystem) Observe(filter glob.Pattern, observer Observer, dispatcher Dispatcher) (Subscription, error) {
	filter = normalizeFilter(filter)
	if dispatcher == nil {
		dispatcher = InlineDispatcher{}
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	sub := &vfsSubscription{
		v:          v,
		id:         id,
		filter:     filter,
		decorator:  newObserverDecorator(observer, dispatcher),
		forwardees: make(map[string]Subscription),
	}

	sub.decorator.start()

	// Register before attaching so a concurrent Mount can't slip between
	// the mount-table snapshot and the subscription becoming visible.
	v.subMu.Lock()
	v.subscriptions[id] = sub
	v.subMu.Unlock()

	v.mu.RLock()
	mounts := make(map[string]*FileSystemDecoration, len(v.mounts))
	for k, d := range v.mounts {
		mounts[k] = d
	}
	v.mu.RUnlock()

	for mountPath, decoration := range mounts {
		sub.attach(mountPath, decoration)
	}

	return sub, nil
}

// emit delivers a VFS-synthesized event (from Mount/Unmount diffing)
// directly to every subscription whose glob filter matches the event's
// path. Events that originate from a mounted backend instead flow through
// that mount's forwardee subscriptions; this path exists only for events
// the VirtualFileSystem itself manufactures.
func (v *VirtualFileSystem) emit(event Event) {
	hold := v.base.Belate()
	defer hold.Release()

	event.EventTime = time.Now()

	v.subMu.Lock()
	subs := make([]*vfsSubscription, 0, len(v.subscriptions))
	for _, s := range v.subscriptions {
		subs = append(subs, s)
	}
	v.subMu.Unlock()

	for _, s := range subs {
		if !glob.Matches(s.filter, event.Path) {
			continue
		}
		ev := event
		ev.ObserverHandle = s.id.String()
		s.decorator.deliver(ev)
	}
}

// Dispose tears down every mounted decoration (which in turn disposes any
// of its component backends that support it) and completes every active
// subscription.
func (v *VirtualFileSystem) Dispose() error {
	v.mu.Lock()
	mounts := v.mounts
	v.mounts = make(map[string]*FileSystemDecoration)
	v.mu.Unlock()

	v.subMu.Lock()
	subs := v.subscriptions
	v.subscriptions = make(map[uuid.UUID]*vfsSubscription)
	v.subMu.Unlock()

	for _, decoration := range mounts {
		v.base.Add(decoration)
	}
	for _, s := range subs {
		v.base.Add(s)
	}
	return v.base.Dispose()
}

var _ Backend = (*VirtualFileSystem)(nil)
