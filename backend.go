package vfs

import "github.com/mwantia/vfs/glob"

// Backend is the contract every concrete filesystem implementation
// (memory, OS-native, read-only provider) satisfies, and the contract a
// FileSystemDecoration itself re-exposes so decorations compose. Only a
// memory-backed implementation lives in this module; an OS-native or
// read-only provider backend is an external collaborator that need only
// satisfy this interface.
type Backend interface {
	Capabilities() CapabilityOptions

	Browse(path string) ([]Entry, error)
	GetEntry(path string) (*Entry, error)
	Open(path string, mode OpenMode, access AccessMode, share ShareMode) (Stream, error)
	CreateDirectory(path string) error
	CreateFile(path string, content []byte) error
	Delete(path string, recurse bool) error
	Move(src, dst string) error
	SetFileAttribute(path string, attrs map[string]string) error

	Observe(filter glob.Pattern, observer Observer, dispatcher Dispatcher) (Subscription, error)
}
