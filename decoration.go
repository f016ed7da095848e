package vfs

import (
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/mwantia/vfs/disposable"
	"github.com/mwantia/vfs/glob"
	"github.com/mwantia/vfs/log"
)

// Assignment pairs a backend with the options mask and subpath offset it
// was mounted under. SharingMask, when non-nil, caps the share mode every
// Open through this assignment may grant; nil leaves the caller's
// requested share mode untouched.
type Assignment struct {
	Backend     Backend
	Options     CapabilityOptions
	SubPath     string
	SharingMask *ShareMode
}

// component is one backend composed into a FileSystemDecoration, with its
// effective (already-intersected) capability mask and path converter.
type component struct {
	backend     Backend
	effective   CapabilityOptions
	converter   PathConverter
	sharingMask *ShareMode
}

// FileSystemDecoration composes N backends at one namespace node: Browse
// merges, GetEntry/Open/Delete/CreateDirectory/SetFileAttribute are
// first-match-wins, Move picks a source and destination component and
// transfers across them when they differ.
type FileSystemDecoration struct {
	mu         sync.RWMutex
	components []*component
	logger     *log.Logger
	base       *disposable.Base
}

// NewFileSystemDecoration composes assignments into one decoration. Each
// assignment's Options is intersected with its backend's own advertised
// capabilities to compute the effective mask checked before every op. Any
// component backend that itself supports disposal is registered so Dispose
// cascades to it.
func NewFileSystemDecoration(logger *log.Logger, assignments ...Assignment) *FileSystemDecoration {
	if logger == nil {
		logger = log.NewLogger("decoration", log.Info, "", false)
	}
	d := &FileSystemDecoration{logger: logger, base: disposable.NewBase()}
	for _, a := range assignments {
		d.components = append(d.components, &component{
			backend:     a.Backend,
			effective:   a.Options.Intersect(a.Backend.Capabilities()),
			converter:   NewPathConverter("", a.SubPath),
			sharingMask: a.SharingMask,
		})
		if disposer, ok := a.Backend.(disposable.Disposable); ok {
			d.base.Add(disposer)
		}
	}
	return d
}

// Dispose tears down every component backend that supports disposal.
// Idempotent; safe to call even if nothing it composes is disposable.
func (d *FileSystemDecoration) Dispose() error {
	return d.base.Dispose()
}

// Capabilities returns the union of every component's effective mask.
func (d *FileSystemDecoration) Capabilities() CapabilityOptions {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out CapabilityOptions
	for i, c := range d.components {
		if i == 0 {
			out = c.effective
		} else {
			out = out.Union(c.effective)
		}
	}
	return out
}

// Browse merges every component's children by name; the first component
// to report a given name wins.
func (d *FileSystemDecoration) Browse(path string) ([]Entry, error) {
	d.mu.RLock()
	comps := append([]*component(nil), d.components...)
	d.mu.RUnlock()

	var browsable bool
	var converted bool
	var sawNotFound bool
	seen := make(map[string]bool)
	var out []Entry

	for _, c := range comps {
		if !c.effective.CanBrowse {
			continue
		}
		browsable = true
		child, ok := c.converter.ParentToChild(path)
		if !ok {
			continue
		}
		converted = true
		entries, err := c.backend.Browse(child)
		if err != nil {
			if isNotFound(err) {
				sawNotFound = true
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			if seen[e.Name] {
				continue
			}
			seen[e.Name] = true
			if p, ok := c.converter.ChildToParent(e.Path); ok {
				e.Path = p
			}
			out = append(out, e)
		}
	}

	if !browsable {
		if len(comps) == 0 {
			return nil, nil
		}
		return nil, ErrNotSupported
	}
	if !converted {
		// Every component rejected on path conversion: the path lies
		// outside this node's namespace entirely.
		return nil, nil
	}
	if out == nil && sawNotFound {
		return nil, ErrNotFound
	}
	return out, nil
}

// GetEntry returns the first non-nil entry reported by any component.
func (d *FileSystemDecoration) GetEntry(path string) (*Entry, error) {
	if path == "" {
		caps := d.Capabilities()
		return &Entry{Path: "", Kind: EntryDirectory, Length: -1, Options: caps}, nil
	}

	d.mu.RLock()
	comps := append([]*component(nil), d.components...)
	d.mu.RUnlock()

	for _, c := range comps {
		if !c.effective.CanGetEntry {
			continue
		}
		child, ok := c.converter.ParentToChild(path)
		if !ok {
			continue
		}
		entry, err := c.backend.GetEntry(child)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			if p, ok := c.converter.ChildToParent(entry.Path); ok {
				entry.Path = p
			}
			return entry, nil
		}
	}
	return nil, nil
}

// Open tries each component whose effective mask satisfies the requested
// access bits, in order, until one succeeds.
func (d *FileSystemDecoration) Open(path string, mode OpenMode, access AccessMode, share ShareMode) (Stream, error) {
	d.mu.RLock()
	comps := append([]*component(nil), d.components...)
	d.mu.RUnlock()

	lastErr := error(ErrNotSupported)
	for _, c := range comps {
		if !c.effective.CanOpen {
			continue
		}
		if access.Has(AccessRead) && !c.effective.CanRead {
			continue
		}
		if access.Has(AccessWrite) && !c.effective.CanWrite {
			continue
		}
		if mode != OpenExisting && !c.effective.CanCreateFile {
			continue
		}
		child, ok := c.converter.ParentToChild(path)
		if !ok {
			continue
		}
		effectiveShare := share
		if c.sharingMask != nil {
			effectiveShare &= *c.sharingMask
		}
		stream, err := c.backend.Open(child, mode, access, effectiveShare)
		if err == nil {
			return stream, nil
		}
		if isNotFound(err) {
			lastErr = ErrNotFound
			continue
		}
		if isNotSupported(err) {
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// CreateDirectory delegates to the first component that accepts path.
func (d *FileSystemDecoration) CreateDirectory(path string) error {
	return d.firstMatch(path, func(c *component, child string) error {
		if !c.effective.CanCreateDirectory {
			return ErrNotSupported
		}
		return c.backend.CreateDirectory(child)
	})
}

// CreateFile delegates to the first component that accepts path.
func (d *FileSystemDecoration) CreateFile(path string, content []byte) error {
	return d.firstMatch(path, func(c *component, child string) error {
		if !c.effective.CanCreateFile {
			return ErrNotSupported
		}
		return c.backend.CreateFile(child, content)
	})
}

// Delete delegates to the first component that accepts path.
func (d *FileSystemDecoration) Delete(path string, recurse bool) error {
	return d.firstMatch(path, func(c *component, child string) error {
		if !c.effective.CanDelete {
			return ErrNotSupported
		}
		return c.backend.Delete(child, recurse)
	})
}

// SetFileAttribute delegates to the first component that accepts path.
func (d *FileSystemDecoration) SetFileAttribute(path string, attrs map[string]string) error {
	return d.firstMatch(path, func(c *component, child string) error {
		if !c.effective.CanSetFileAttribute {
			return ErrNotSupported
		}
		return c.backend.SetFileAttribute(child, attrs)
	})
}

// firstMatch calls fn against each component whose converter accepts path,
// in order, stopping at the first success. A notFound or notSupported
// result passes the component over and is remembered — a capability-
// reduced component (a read-only assignment, say) must not shadow a
// writable one behind it. Any other failure is terminal; with no success
// the last-seen status is returned.
func (d *FileSystemDecoration) firstMatch(path string, fn func(c *component, child string) error) error {
	d.mu.RLock()
	comps := append([]*component(nil), d.components...)
	d.mu.RUnlock()

	var lastErr error = ErrNotSupported
	for _, c := range comps {
		child, ok := c.converter.ParentToChild(path)
		if !ok {
			continue
		}
		err := fn(c, child)
		if err == nil {
			return nil
		}
		if isNotFound(err) || isNotSupported(err) {
			lastErr = err
			continue
		}
		return err
	}
	return lastErr
}

// Move attempts a same-component native move when a single component
// holds both endpoints; otherwise performs a cross-backend transfer: copy
// src to dst on the destination component, then delete src on the source
// component. Destination writes use fail-if-exists; on transfer failure
// the partial copy is removed best-effort.
func (d *FileSystemDecoration) Move(src, dst string) error {
	d.mu.RLock()
	comps := append([]*component(nil), d.components...)
	d.mu.RUnlock()

	srcComp, srcChild := d.findForExisting(comps, src)
	dstComp, dstChild := d.findForParent(comps, dst)
	if srcComp == nil {
		return ErrNotFound
	}
	if dstComp == nil {
		return ErrNotFound
	}

	if cleanSrc, cleanDst := strings.TrimSuffix(CleanPath(src), Separator), strings.TrimSuffix(CleanPath(dst), Separator); cleanSrc != cleanDst && HasPathPrefix(cleanDst, cleanSrc) {
		return ErrInvalidPath
	}

	if srcComp == dstComp {
		if !srcComp.effective.CanMove {
			return ErrNotSupported
		}
		return srcComp.backend.Move(srcChild, dstChild)
	}

	if !dstComp.effective.CanCreateFile || !srcComp.effective.CanRead || !srcComp.effective.CanDelete {
		return ErrNotSupported
	}

	d.logger.Debug("cross-backend transfer %q -> %q", src, dst)

	stream, err := srcComp.backend.Open(srcChild, OpenExisting, AccessRead, ShareReadWrite)
	if err != nil {
		return err
	}
	content, err := io.ReadAll(streamReader{stream})
	closeErr := stream.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}

	if existing, err := dstComp.backend.GetEntry(dstChild); err == nil && existing != nil {
		return ErrAlreadyExists
	}
	if err := dstComp.backend.CreateFile(dstChild, content); err != nil {
		return err
	}
	if err := srcComp.backend.Delete(srcChild, false); err != nil {
		_ = dstComp.backend.Delete(dstChild, false)
		return err
	}
	return nil
}

type streamReader struct{ s Stream }

func (r streamReader) Read(p []byte) (int, error) { return r.s.Read(p) }

func (d *FileSystemDecoration) findForExisting(comps []*component, path string) (*component, string) {
	for _, c := range comps {
		child, ok := c.converter.ParentToChild(path)
		if !ok {
			continue
		}
		entry, err := c.backend.GetEntry(child)
		if err == nil && entry != nil {
			return c, child
		}
	}
	return nil, ""
}

func (d *FileSystemDecoration) findForParent(comps []*component, path string) (*component, string) {
	parent := Parent(path)
	for _, c := range comps {
		child, ok := c.converter.ParentToChild(path)
		if !ok {
			continue
		}
		parentChild, _ := c.converter.ParentToChild(parent)
		entry, err := c.backend.GetEntry(parentChild)
		if parent == "" || (err == nil && entry != nil) {
			return c, child
		}
	}
	return nil, ""
}

// mounter is the optional surface Mount/Unmount delegation targets: a
// component backend that is itself a mount table (a nested
// VirtualFileSystem).
type mounter interface {
	Mount(path string, assignments ...Assignment) error
	Unmount(path string) error
}

// mountLister is the optional surface ListMountPoints delegation targets.
type mountLister interface {
	ListMountPoints() []string
}

// Mount delegates to the first component whose effective mask and path
// conversion admit a nested mount.
func (d *FileSystemDecoration) Mount(path string, assignments ...Assignment) error {
	return d.firstMatch(path, func(c *component, child string) error {
		if !c.effective.CanMount {
			return ErrNotSupported
		}
		m, ok := c.backend.(mounter)
		if !ok {
			return ErrNotSupported
		}
		return m.Mount(child, assignments...)
	})
}

// Unmount delegates to the first component holding a nested mount at path.
func (d *FileSystemDecoration) Unmount(path string) error {
	return d.firstMatch(path, func(c *component, child string) error {
		if !c.effective.CanUnmount {
			return ErrNotSupported
		}
		m, ok := c.backend.(mounter)
		if !ok {
			return ErrNotSupported
		}
		return m.Unmount(child)
	})
}

// ListMountPoints merges the unique mount paths reported by every
// component that supports mount-table listing.
func (d *FileSystemDecoration) ListMountPoints() []string {
	d.mu.RLock()
	comps := append([]*component(nil), d.components...)
	d.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, c := range comps {
		if !c.effective.CanListMountPoints {
			continue
		}
		lister, ok := c.backend.(mountLister)
		if !ok {
			continue
		}
		for _, p := range lister.ListMountPoints() {
			parent, ok := c.converter.ChildToParent(p)
			if !ok || seen[parent] {
				continue
			}
			seen[parent] = true
			out = append(out, parent)
		}
	}
	return out
}

// Observe subscribes filter across every component that allows it,
// translating each component's events back into this node's namespace.
func (d *FileSystemDecoration) Observe(filter glob.Pattern, observer Observer, dispatcher Dispatcher) (Subscription, error) {
	d.mu.RLock()
	comps := append([]*component(nil), d.components...)
	d.mu.RUnlock()

	filter = normalizeFilter(filter)
	dec := newObserverDecorator(observer, dispatcher)
	dec.start()
	for _, c := range comps {
		if !c.effective.CanObserve {
			continue
		}
		childFilter, ok := translateFilter(c.converter, filter)
		if !ok {
			continue
		}
		conv := c.converter
		childObserver := translatingObserver{dec: dec, toParent: conv.ChildToParent}
		sub, err := c.backend.Observe(childFilter, childObserver, InlineDispatcher{})
		if err == nil {
			dec.addForwardee(sub)
		}
	}
	return dec, nil
}

// translateFilter rewrites filter's literal directory prefix through conv
// so a component mounted at a SubPath offset sees the filter anchored in
// its own namespace instead of the parent's. The prefix may be empty (a
// pattern like "hello*.txt" is anchored at the node's root, which still
// maps to the component's SubPath). ok is false if the filter's prefix
// falls outside conv's namespace entirely, meaning this component can
// never produce a matching event.
func translateFilter(conv PathConverter, filter glob.Pattern) (glob.Pattern, bool) {
	if conv.identity() {
		return filter, true
	}
	info := glob.Parse(filter)
	prefix := strings.TrimSuffix(info.Prefix, Separator)
	child, ok := conv.ParentToChild(prefix)
	if !ok {
		return glob.Empty, false
	}
	if info.Suffix == "" {
		return glob.Pattern(child), true
	}
	if child != "" && !strings.HasSuffix(child, Separator) {
		child += Separator
	}
	return glob.Pattern(child + info.Suffix), true
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func isNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}

var _ Backend = (*FileSystemDecoration)(nil)
var _ disposable.Disposable = (*FileSystemDecoration)(nil)
