package pool

import "github.com/pkg/errors"

// Error taxonomy. All are sentinel values checked with errors.Is;
// ErrOutOfMemory is returned wrapped together with whatever the
// backing PageAllocator returned, so a caller can still reach the
// underlying failure with errors.Is/errors.As.
var (
	// ErrInvalid: argument violated a stated precondition. Not retryable.
	ErrInvalid = errors.New("tcps: invalid argument")
	// ErrNoSpace: request exceeds the largest class.
	ErrNoSpace = errors.New("tcps: requested size exceeds largest class")
	// ErrOutOfMemory: the page-frame allocator refused to grow the pool.
	ErrOutOfMemory = errors.New("tcps: page allocator out of memory")
	// ErrNoEvict: reclaim attempted without an evictor, or with
	// retries <= 0, or with no candidate page in any class.
	ErrNoEvict = errors.New("tcps: reclaim preconditions not met")
	// ErrExhausted: reclaim hit its retry budget without success.
	ErrExhausted = errors.New("tcps: reclaim retry budget exhausted")
)
