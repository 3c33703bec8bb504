package rc

import "github.com/cockroachdb/errors"

var (
	// ErrAllocation marks every failure to allocate a control block.
	// Ownership of the raw pointer is not transferred when it is returned.
	ErrAllocation = errors.New("rc: control block allocation failed")

	// ErrBlockLimit is the cause reported by a PoolAllocator at its live-block limit.
	ErrBlockLimit = errors.New("rc: control block limit reached")
)
