package memfs

import (
	"bytes"
	"io"
	"testing"

	"github.com/mwantia/vfs"
	"github.com/mwantia/vfs/glob"
	"github.com/mwantia/vfs/pool"
)

func TestMemoryFileSystem_WriteReadRoundTrip(t *testing.T) {
	fs := New()
	content := []byte("hello composite filesystem")
	if err := fs.CreateFile("/greeting.txt", content); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	stream, err := fs.Open("/greeting.txt", OpenExisting, AccessRead, ShareRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	got, err := io.ReadAll(asReader{stream})
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("round trip mismatch: got %q want %q", got, content)
	}
}

type asReader struct{ s vfs.Stream }

func (r asReader) Read(p []byte) (int, error) { return r.s.Read(p) }

func TestMemoryFileSystem_CreateReplacePreservesOpenReaders(t *testing.T) {
	fs := New()
	if err := fs.CreateFile("/doc.txt", []byte("version one")); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	reader, err := fs.Open("/doc.txt", OpenExisting, AccessRead, ShareRead)
	if err != nil {
		t.Fatalf("Open existing: %v", err)
	}
	defer reader.Close()

	// Create replaces the linked file; the already-open handle keeps
	// reading the old (now unlinked) file's bytes.
	if _, err := fs.Open("/doc.txt", Create, AccessWrite, ShareNone); err != nil {
		t.Fatalf("Open Create: %v", err)
	}

	buf := make([]byte, len("version one"))
	n, err := reader.Read(buf)
	if err != nil && err != io.EOF {
		t.Fatalf("Read from stale handle: %v", err)
	}
	if string(buf[:n]) != "version one" {
		t.Fatalf("stale handle lost its content: got %q", buf[:n])
	}

	entry, err := fs.GetEntry("/doc.txt")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if entry == nil {
		t.Fatalf("expected replaced file to still be linked")
	}
}

func TestMemoryFileSystem_QuotaExhaustionAndRecovery(t *testing.T) {
	p := pool.New(pool.WithBlockSize(1024), pool.WithMaxBlocks(3))
	fs := New(WithAllocator(p))

	if err := fs.CreateFile("/big.bin", nil); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	h, err := fs.Open("/big.bin", OpenExisting, AccessRead|AccessWrite, ShareNone)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	block := bytes.Repeat([]byte{0xAB}, 1024)
	for i := 0; i < 3; i++ {
		if _, err := h.Write(block); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if avail := p.BytesAvailable(); avail != 0 {
		t.Fatalf("expected pool exhausted after three blocks, %d bytes left", avail)
	}

	if _, err := h.Write([]byte{1}); err == nil {
		t.Fatalf("expected the fourth block's write to fail with out-of-space")
	}
	if pos, err := h.Seek(0, io.SeekEnd); err != nil || pos != 3072 {
		t.Fatalf("file length must be unchanged by the failed write, got %d (%v)", pos, err)
	}

	if err := h.SetLength(0); err != nil {
		t.Fatalf("SetLength: %v", err)
	}
	if avail := p.BytesAvailable(); avail != 3*1024 {
		t.Fatalf("expected pool fully free after truncate, %d bytes left", avail)
	}

	if _, err := h.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := h.Write(block); err != nil {
			t.Fatalf("rewrite %d after recovery: %v", i, err)
		}
	}
}

func TestMemoryFileSystem_CreateFileOverDirectoryRejected(t *testing.T) {
	fs := New()
	if err := fs.CreateDirectory("/dir"); err != nil {
		t.Fatalf("CreateDirectory: %v", err)
	}
	if err := fs.CreateFile("/dir", []byte("x")); err == nil {
		t.Fatalf("expected CreateFile over an existing directory to fail")
	}
	if _, err := fs.Open("/dir", Create, AccessWrite, ShareNone); err == nil {
		t.Fatalf("expected Open(Create) over an existing directory to fail")
	}
}

func TestMemoryFileSystem_CaseSensitivity(t *testing.T) {
	sensitive := New(WithCaseSensitivity(vfs.CaseSensitive))
	if err := sensitive.CreateFile("/A.txt", []byte("a")); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	entry, err := sensitive.GetEntry("/a.txt")
	if err != nil {
		t.Fatalf("GetEntry should not error on a case-sensitive miss: %v", err)
	}
	if entry != nil {
		t.Fatalf("case-sensitive fs must not fold A.txt to a.txt")
	}

	insensitive := New(WithCaseSensitivity(vfs.CaseInsensitive))
	if err := insensitive.CreateFile("/A.txt", []byte("a")); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	folded, err := insensitive.GetEntry("/a.txt")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if folded == nil {
		t.Fatalf("case-insensitive fs must fold a.txt to A.txt")
	}
}

func TestMemoryFileSystem_DeleteNonEmptyDirectoryRequiresRecurse(t *testing.T) {
	fs := New()
	if err := fs.CreateFile("/dir/file.txt", []byte("x")); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	if err := fs.Delete("/dir/", false); err == nil {
		t.Fatalf("expected ErrDirectoryNotEmpty without recurse")
	}
	if err := fs.Delete("/dir/", true); err != nil {
		t.Fatalf("Delete recurse: %v", err)
	}
	if entry, _ := fs.GetEntry("/dir/"); entry != nil {
		t.Fatalf("directory should be gone after recursive delete")
	}
}

func TestMemoryFileSystem_MoveIntoOwnSubtreeRejected(t *testing.T) {
	fs := New()
	if err := fs.CreateDirectory("/a"); err != nil {
		t.Fatalf("CreateDirectory: %v", err)
	}
	if err := fs.Move("/a", "/a/b"); err == nil {
		t.Fatalf("expected move into own subtree to be rejected")
	}
}

func TestMemoryFileSystem_BrowseIsSortedByName(t *testing.T) {
	fs := New()
	for _, name := range []string{"c.txt", "a.txt", "b.txt"} {
		if err := fs.CreateFile("/"+name, []byte("x")); err != nil {
			t.Fatalf("CreateFile %s: %v", name, err)
		}
	}

	entries, err := fs.Browse("")
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Name > entries[i].Name {
			t.Fatalf("entries not sorted: %v", entries)
		}
	}
}

func TestMemoryFileSystem_ObserveDeliversCreateAndChange(t *testing.T) {
	fs := New()
	var kinds []vfs.EventKind
	observer := vfs.ObserverFunc(func(e vfs.Event) { kinds = append(kinds, e.Kind) })

	sub, err := fs.Observe(glob.Pattern("**"), observer, vfs.InlineDispatcher{})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	defer sub.Dispose()

	if err := fs.CreateFile("/new.txt", []byte("x")); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	foundCreate, foundChange := false, false
	for _, k := range kinds {
		if k == vfs.EventCreate {
			foundCreate = true
		}
		if k == vfs.EventChange {
			foundChange = true
		}
	}
	if !foundCreate || !foundChange {
		t.Fatalf("expected create and change events, got %v", kinds)
	}
}

func TestMemoryFileSystem_HandleWritesEmitChangeEvents(t *testing.T) {
	fs := New()
	if err := fs.CreateFile("/f.txt", nil); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	var changes []string
	sub, err := fs.Observe(glob.Pattern("**"), vfs.ObserverFunc(func(e vfs.Event) {
		if e.Kind == vfs.EventChange {
			changes = append(changes, e.Path)
		}
	}), vfs.InlineDispatcher{})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	defer sub.Dispose()

	h, err := fs.Open("/f.txt", OpenExisting, AccessWrite, ShareNone)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	if _, err := h.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(changes) != 1 || changes[0] != "f.txt" {
		t.Fatalf("expected one change event for f.txt after a handle write, got %v", changes)
	}

	if err := h.SetLength(0); err != nil {
		t.Fatalf("SetLength: %v", err)
	}
	if len(changes) != 2 || changes[1] != "f.txt" {
		t.Fatalf("expected a second change event after SetLength, got %v", changes)
	}
}

func TestMemoryFileSystem_ObserveFilterExcludesNonMatchingPaths(t *testing.T) {
	fs := New()
	var paths []string
	observer := vfs.ObserverFunc(func(e vfs.Event) { paths = append(paths, e.Path) })

	sub, err := fs.Observe(glob.Pattern("logs/*.log"), observer, vfs.InlineDispatcher{})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	defer sub.Dispose()

	if err := fs.CreateFile("/logs/a.log", []byte("x")); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := fs.CreateFile("/logs/b.txt", []byte("x")); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := fs.CreateFile("/other/c.txt", []byte("x")); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	for _, p := range paths {
		if p != "logs/a.log" {
			t.Fatalf("unexpected event for non-matching path: %s", p)
		}
	}
	if len(paths) == 0 {
		t.Fatalf("expected at least one event for logs/a.log")
	}
}
