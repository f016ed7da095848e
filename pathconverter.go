package vfs

import "strings"

// PathConverter bidirectionally maps between a parent namespace (the path
// a client sees) and a child namespace (the path a backend consumes).
// When ParentStem equals ChildStem the conversion is the identity — the
// common case of a backend mounted without a subpath offset.
type PathConverter struct {
	ParentStem string
	ChildStem  string
}

// NewPathConverter returns a converter between parentStem and childStem.
// Both are cleaned so comparisons line up with the leading-slash-free paths
// backends actually exchange, regardless of how the caller wrote them.
func NewPathConverter(parentStem, childStem string) PathConverter {
	return PathConverter{ParentStem: CleanPath(parentStem), ChildStem: CleanPath(childStem)}
}

func (c PathConverter) identity() bool {
	return c.ParentStem == c.ChildStem
}

// ParentToChild rewrites a parent-namespace path into the child namespace.
// ok is false if p does not lie within ParentStem.
func (c PathConverter) ParentToChild(p string) (child string, ok bool) {
	if c.identity() {
		return p, true
	}
	if !HasPathPrefix(p, c.ParentStem) {
		return "", false
	}
	rel := strings.TrimPrefix(p, c.ParentStem)
	rel = strings.TrimPrefix(rel, Separator)
	return Join(c.ChildStem, rel), true
}

// ChildToParent rewrites a child-namespace path back into the parent
// namespace. ok is false if c does not lie within ChildStem.
func (c PathConverter) ChildToParent(childPath string) (parent string, ok bool) {
	if c.identity() {
		return childPath, true
	}
	if !HasPathPrefix(childPath, c.ChildStem) {
		return "", false
	}
	rel := strings.TrimPrefix(childPath, c.ChildStem)
	rel = strings.TrimPrefix(rel, Separator)
	return Join(c.ParentStem, rel), true
}
