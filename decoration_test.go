package vfs_test

import (
	"io"
	"testing"

	"github.com/mwantia/vfs"
	"github.com/mwantia/vfs/memfs"
)

func readAll(t *testing.T, s vfs.Stream) []byte {
	t.Helper()
	defer s.Close()
	buf, err := io.ReadAll(streamReaderAdapter{s})
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return buf
}

type streamReaderAdapter struct{ s vfs.Stream }

func (a streamReaderAdapter) Read(p []byte) (int, error) { return a.s.Read(p) }

func TestFileSystemDecoration_BrowseMergesComponents(t *testing.T) {
	a := memfs.New(memfs.WithName("a"))
	b := memfs.New(memfs.WithName("b"))
	if err := a.CreateFile("/one.txt", []byte("1")); err != nil {
		t.Fatalf("CreateFile a: %v", err)
	}
	if err := b.CreateFile("/two.txt", []byte("2")); err != nil {
		t.Fatalf("CreateFile b: %v", err)
	}

	dec := vfs.NewFileSystemDecoration(nil,
		vfs.Assignment{Backend: a, Options: vfs.FullCapabilityOptions()},
		vfs.Assignment{Backend: b, Options: vfs.FullCapabilityOptions()},
	)

	entries, err := dec.Browse("")
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	if !names["one.txt"] || !names["two.txt"] {
		t.Fatalf("expected merged entries from both components, got %+v", entries)
	}
}

func TestFileSystemDecoration_FirstMatchWinsOnCreate(t *testing.T) {
	a := memfs.New(memfs.WithName("a"))
	b := memfs.New(memfs.WithName("b"))

	dec := vfs.NewFileSystemDecoration(nil,
		vfs.Assignment{Backend: a, Options: vfs.FullCapabilityOptions()},
		vfs.Assignment{Backend: b, Options: vfs.FullCapabilityOptions()},
	)

	if err := dec.CreateFile("/only-in-a.txt", []byte("x")); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if entry, _ := a.GetEntry("/only-in-a.txt"); entry == nil {
		t.Fatalf("expected first component (a) to receive the create")
	}
	if entry, _ := b.GetEntry("/only-in-a.txt"); entry != nil {
		t.Fatalf("second component (b) should not have received the create")
	}
}

func TestFileSystemDecoration_CrossBackendMoveTransfersContent(t *testing.T) {
	src := memfs.New(memfs.WithName("src"))
	dst := memfs.New(memfs.WithName("dst"))
	if err := src.CreateFile("/doc.txt", []byte("payload")); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	// A destination parent that exists only in dst forces findForParent past
	// the first (src) component, so the transfer genuinely crosses backends.
	if err := dst.CreateDirectory("/into"); err != nil {
		t.Fatalf("CreateDirectory: %v", err)
	}

	dec := vfs.NewFileSystemDecoration(nil,
		vfs.Assignment{Backend: src, Options: vfs.FullCapabilityOptions()},
		vfs.Assignment{Backend: dst, Options: vfs.FullCapabilityOptions()},
	)

	if err := dec.Move("/doc.txt", "/into/elsewhere.txt"); err != nil {
		t.Fatalf("Move: %v", err)
	}

	if entry, _ := src.GetEntry("/doc.txt"); entry != nil {
		t.Fatalf("expected source file to be gone after cross-backend move")
	}
	if entry, _ := dst.GetEntry("/into/elsewhere.txt"); entry == nil {
		t.Fatalf("expected destination component to contain the moved file")
	}
	moved, err := dst.Open("/into/elsewhere.txt", vfs.OpenExisting, vfs.AccessRead, vfs.ShareRead)
	if err != nil {
		t.Fatalf("Open moved file: %v", err)
	}
	if got := readAll(t, moved); string(got) != "payload" {
		t.Fatalf("expected moved content %q, got %q", "payload", got)
	}
}

func TestVirtualFileSystem_MountAndBrowse(t *testing.T) {
	v := vfs.New()
	a := memfs.New(memfs.WithName("a"))
	if err := a.CreateFile("/inside.txt", []byte("x")); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	if err := v.Mount("/mnt", vfs.Assignment{Backend: a, Options: vfs.FullCapabilityOptions()}); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	entry, err := v.GetEntry("/mnt/inside.txt")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if entry == nil {
		t.Fatalf("expected mounted file to be visible through the VFS")
	}

	entries, err := v.Browse("/mnt")
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "inside.txt" {
		t.Fatalf("expected Browse of the mount to list inside.txt, got %+v", entries)
	}

	stream, err := v.Open("/mnt/inside.txt", vfs.OpenExisting, vfs.AccessRead, vfs.ShareRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := readAll(t, stream); string(got) != "x" {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestVirtualFileSystem_UnmountHidesEntries(t *testing.T) {
	v := vfs.New()
	a := memfs.New(memfs.WithName("a"))
	if err := a.CreateFile("/f.txt", []byte("x")); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := v.Mount("/mnt", vfs.Assignment{Backend: a, Options: vfs.FullCapabilityOptions()}); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if err := v.Unmount("/mnt"); err != nil {
		t.Fatalf("Unmount: %v", err)
	}
	if entry, _ := v.GetEntry("/mnt/f.txt"); entry != nil {
		t.Fatalf("expected entries to disappear after unmount")
	}
}

func TestVirtualFileSystem_CrossMountMoveEmitsDeleteAndCreate(t *testing.T) {
	v := vfs.New()
	a := memfs.New(memfs.WithName("a"))
	b := memfs.New(memfs.WithName("b"))
	if err := a.CreateFile("/doc.txt", []byte("payload")); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := v.Mount("/a", vfs.Assignment{Backend: a, Options: vfs.FullCapabilityOptions()}); err != nil {
		t.Fatalf("Mount a: %v", err)
	}
	if err := v.Mount("/b", vfs.Assignment{Backend: b, Options: vfs.FullCapabilityOptions()}); err != nil {
		t.Fatalf("Mount b: %v", err)
	}

	var kinds []vfs.EventKind
	sub, err := v.Observe("**", vfs.ObserverFunc(func(e vfs.Event) { kinds = append(kinds, e.Kind) }), vfs.InlineDispatcher{})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	defer sub.Dispose()

	if err := v.Move("/a/doc.txt", "/b/doc.txt"); err != nil {
		t.Fatalf("Move: %v", err)
	}

	if entry, _ := v.GetEntry("/a/doc.txt"); entry != nil {
		t.Fatalf("expected source entry to be gone")
	}
	if entry, _ := v.GetEntry("/b/doc.txt"); entry == nil {
		t.Fatalf("expected destination entry to exist")
	}

	var sawDelete, sawCreate bool
	for _, k := range kinds {
		if k == vfs.EventDelete {
			sawDelete = true
		}
		if k == vfs.EventCreate {
			sawCreate = true
		}
	}
	if !sawDelete || !sawCreate {
		t.Fatalf("expected a delete+create pair for a cross-mount move, got %v", kinds)
	}
}

func TestVirtualFileSystem_MoveIntoOwnSubtreeRejected(t *testing.T) {
	v := vfs.New()
	a := memfs.New(memfs.WithName("a"))
	if err := a.CreateDirectory("/dir"); err != nil {
		t.Fatalf("CreateDirectory: %v", err)
	}
	if err := v.Mount("/mnt", vfs.Assignment{Backend: a, Options: vfs.FullCapabilityOptions()}); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if err := v.Move("/mnt/dir", "/mnt/dir/child"); err == nil {
		t.Fatalf("expected move into own subtree to be rejected")
	}
}
