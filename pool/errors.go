package pool

import "errors"

// ErrPoolClosed is returned to every waiter in Allocate when the pool is
// disposed while they are blocked.
var ErrPoolClosed = errors.New("pool: closed")
