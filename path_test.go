package vfs

import "testing"

func TestCleanPath_DotSegments(t *testing.T) {
	cases := map[string]string{
		"/a/./b":       "a/b",
		"/a/../b":      "b",
		"a//b///c":     "a/b/c",
		"":             "",
		"/":            "",
		"/a/b/":        "a/b/",
		"./a":          "a",
		"/a/b/../../c": "c",
	}
	for in, want := range cases {
		if got := CleanPath(in); got != want {
			t.Errorf("CleanPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanPath_Idempotent(t *testing.T) {
	inputs := []string{"/a/./b/../c", "x/y/z/", "//weird//path//", "../escape"}
	for _, in := range inputs {
		once := CleanPath(in)
		twice := CleanPath(once)
		if once != twice {
			t.Errorf("CleanPath not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestCleanPathStrict_RejectsEscape(t *testing.T) {
	if _, err := CleanPathStrict("/a/../../b"); err != ErrInvalidPath {
		t.Fatalf("expected ErrInvalidPath for root escape, got %v", err)
	}
	if _, err := CleanPathStrict("/a/../b"); err != nil {
		t.Fatalf("unexpected error for non-escaping .. : %v", err)
	}
}

func TestParent_TrailingSeparatorInvariant(t *testing.T) {
	if got := Parent("a/b/"); got != "a" {
		t.Fatalf("Parent(%q) = %q, want %q", "a/b/", got, "a")
	}
	if got := Parent("a/b"); got != "a" {
		t.Fatalf("Parent(%q) = %q, want %q", "a/b", got, "a")
	}
	if got := Parent("a"); got != "" {
		t.Fatalf("Parent(%q) = %q, want root", "a", got)
	}
}

func TestBase(t *testing.T) {
	if got := Base("a/b/c.txt"); got != "c.txt" {
		t.Fatalf("Base = %q, want c.txt", got)
	}
	if got := Base("a/b/"); got != "b" {
		t.Fatalf("Base(dir) = %q, want b", got)
	}
}

func TestHasPathPrefix(t *testing.T) {
	if !HasPathPrefix("a/b/c", "a/b") {
		t.Fatalf("expected a/b to be a prefix of a/b/c")
	}
	if HasPathPrefix("a/bc", "a/b") {
		t.Fatalf("a/b must not match a/bc as a path prefix")
	}
	if !HasPathPrefix("a/b", "a/b") {
		t.Fatalf("a path must be its own prefix")
	}
	if !HasPathPrefix("anything", "") {
		t.Fatalf("root must be a prefix of everything")
	}
}

func TestTrimPathPrefix(t *testing.T) {
	if got := TrimPathPrefix("a/b/c", "a/b"); got != "c" {
		t.Fatalf("TrimPathPrefix = %q, want c", got)
	}
	if got := TrimPathPrefix("a/b", "a/b"); got != "" {
		t.Fatalf("TrimPathPrefix of equal paths = %q, want empty", got)
	}
}

func TestJoin(t *testing.T) {
	if got := Join("a", "b", "c.txt"); got != "a/b/c.txt" {
		t.Fatalf("Join = %q, want a/b/c.txt", got)
	}
	if got := Join("", "a"); got != "a" {
		t.Fatalf("Join with empty root = %q, want a", got)
	}
}
