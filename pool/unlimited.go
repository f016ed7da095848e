package pool

import (
	"context"
	"math"
)

// Unlimited is the pseudo-pool variant: allocation never blocks or fails,
// and Return is a no-op. It satisfies the same surface as Pool so a
// MemoryFileSystem can be configured without a quota for tests or for
// mounts that should never reject a write for space reasons.
type Unlimited struct {
	blockSize int
}

// NewUnlimited creates an Unlimited pool handing out blocks of the given
// size with no quota.
func NewUnlimited(blockSize int) *Unlimited {
	if blockSize <= 0 {
		blockSize = 4096
	}
	return &Unlimited{blockSize: blockSize}
}

func (u *Unlimited) BlockSize() int { return u.blockSize }

func (u *Unlimited) BytesAvailable() int64 { return math.MaxInt64 }

func (u *Unlimited) BytesAllocated() int64 { return 0 }

func (u *Unlimited) TryAllocate() (Block, bool) {
	return make(Block, u.blockSize), true
}

func (u *Unlimited) Allocate(ctx context.Context) (Block, error) {
	return make(Block, u.blockSize), nil
}

func (u *Unlimited) Return(Block) {}

func (u *Unlimited) Close() {}
