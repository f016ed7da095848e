package pool

import "context"

// Allocator is the interface MemoryFile programs against, satisfied by
// both the quota-bound Pool and the Unlimited pseudo-pool.
type Allocator interface {
	BlockSize() int
	BytesAvailable() int64
	BytesAllocated() int64
	TryAllocate() (Block, bool)
	Allocate(ctx context.Context) (Block, error)
	Return(Block)
	Close()
}

var (
	_ Allocator = (*Pool)(nil)
	_ Allocator = (*Unlimited)(nil)
)
