// Package pool implements a size-classed, host-page-backed allocator
// with a cooperative whole-page reclamation protocol driven by a
// user-supplied eviction callback.
//
// The architecture mirrors the Go runtime's small-object allocator: a
// fixed size-class table (sizeclass.Table), one free-set per class
// (chunkset.Set, playing the role of an mcentral's span lists), and a
// backing page-frame allocator (pageframe.Allocator, playing the role
// of the OS-facing page heap). What has no runtime analogue is the
// reclaim driver in reclaim.go: the Go runtime never gives memory back
// under eviction pressure from a user callback.
package pool

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/cloudfly/tcps/chunkset"
	"github.com/cloudfly/tcps/pageframe"
	"github.com/cloudfly/tcps/sizeclass"
)

// EvictFunc is the pool's reclamation collaborator: it must read the
// chunk's live payload out and call p.Free(handle) before returning
// nil. A non-nil return means the chunk was left untouched.
type EvictFunc func(p *Pool, handle uint64) error

// Config configures a new Pool.
type Config struct {
	// Classes is the size-class table, largest first. Defaults to
	// sizeclass.Default ({2048, 1024, 256} on a 4096-byte page).
	Classes []int
	// PageAllocator supplies and reclaims host pages. Defaults to a
	// freshly created *pageframe.Arena with no page cap.
	PageAllocator pageframe.Allocator
	// Evictor is the optional reclamation collaborator. A nil Evictor
	// disables reclamation: ReclaimOne always returns ErrNoEvict.
	Evictor EvictFunc
	// Logger receives structured diagnostics from alloc growth and
	// the reclaim driver. The zero value is a no-op logger.
	Logger zerolog.Logger
	// DefaultRetries is recorded on the pool as its default retry
	// budget (8 when zero or negative). ReclaimOne does not read it: it
	// always uses the budget passed to it, and the pool exposes no
	// accessor for the recorded value.
	DefaultRetries int
}

// Pool is the root allocator object.
type Pool struct {
	mu sync.Mutex

	classes   *sizeclass.Table
	pageAlloc pageframe.Allocator
	evictor   EvictFunc
	logger    zerolog.Logger
	retries   int

	free       []*chunkset.Set // per class
	pages      []*pageList     // per class
	reclaimSet *chunkset.Set   // pool-wide
	pageIndex  map[pageframe.Addr]*pageMeta

	bytes uint64

	metrics *Metrics
}

// Create allocates and initializes a Pool. A zero Config is valid: it
// yields the reference 3-class table, an in-process Arena, no evictor
// (reclamation disabled), and a no-op logger.
func Create(cfg Config) (*Pool, error) {
	classes := cfg.Classes
	if classes == nil {
		classes = sizeclass.Default
	}
	tbl, err := sizeclass.New(classes, 0)
	if err != nil {
		return nil, errors.Wrap(err, "tcps: create pool")
	}

	pa := cfg.PageAllocator
	if pa == nil {
		pa = pageframe.NewArena(256, 0)
	}

	retries := cfg.DefaultRetries
	if retries <= 0 {
		retries = 8
	}

	p := &Pool{
		classes:    tbl,
		pageAlloc:  pa,
		evictor:    cfg.Evictor,
		logger:     cfg.Logger,
		retries:    retries,
		free:       make([]*chunkset.Set, tbl.Count()),
		pages:      make([]*pageList, tbl.Count()),
		reclaimSet: chunkset.New(),
		pageIndex:  make(map[pageframe.Addr]*pageMeta),
	}
	for c := 0; c < tbl.Count(); c++ {
		p.free[c] = chunkset.New()
		p.pages[c] = &pageList{}
	}
	return p, nil
}

// Close tears the pool down: every page in every class is returned to
// the backing PageAllocator. Precondition: the reclaim-set is empty
// and every externally issued handle has already been returned via
// Free. Violating it is a programmer error and panics rather than
// silently leaking or corrupting state.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.reclaimSet.Len() != 0 {
		panic("tcps: pool destroyed with a non-empty reclaim set")
	}
	for c, fs := range p.free {
		n := p.classes.ChunksPerPage(c)
		for l := p.pages[c]; l.head != nil; {
			q := l.head
			qStart := uint64(q.addr)
			qEnd := qStart + pageframe.PageSize
			freed := fs.MoveRange(nil, qStart, qEnd)
			if freed != n {
				panic(fmt.Sprintf("tcps: pool destroyed with live handles outstanding in class %d", c))
			}
			l.remove(q)
			delete(p.pageIndex, q.addr)
			p.pageAlloc.Free(q.addr)
			p.bytes -= pageframe.PageSize
		}
	}
}

// Size returns the total host bytes currently carved into pages.
func (p *Pool) Size() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bytes
}

// Alloc reserves one chunk of at least size bytes and returns its
// handle. size must be in (0, largest class size]; hint must be a
// known pageframe.Hint.
func (p *Pool) Alloc(size int, hint pageframe.Hint) (uint64, error) {
	if hint != pageframe.HintDefault && hint != pageframe.HintNoHighMem {
		return 0, ErrInvalid
	}
	class, ok := p.classes.ClassOf(size)
	if !ok {
		if size <= 0 {
			return 0, ErrInvalid
		}
		return 0, ErrNoSpace
	}

	p.mu.Lock()
	if k, ok := p.free[class].TakeMin(); ok {
		p.observeAlloc(class)
		p.mu.Unlock()
		return k, nil
	}
	p.mu.Unlock()

	return p.growClassAndTake(class)
}

// growClassAndTake fetches one fresh host page from the backing
// allocator, carves it into chunks for class, inserts them all into
// the class's free-set and page list, then immediately takes one back
// out to satisfy the caller. The carve and the retake happen under one
// lock acquisition so a concurrent allocator on the same class can't
// drain the page out from under this call between the carve and the
// retake; the pool lock is released only around the (possibly
// blocking) backing allocator call itself.
func (p *Pool) growClassAndTake(class int) (uint64, error) {
	addr, bytes, err := p.pageAlloc.Alloc(pageframe.HintDefault)
	if err != nil {
		return 0, fmt.Errorf("tcps: class %d: %w: %w", class, ErrOutOfMemory, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	q := &pageMeta{addr: addr, bytes: bytes, class: class}
	p.pageIndex[addr] = q
	p.pages[class].pushFront(q)

	chunkSize := p.classes.Size(class)
	n := p.classes.ChunksPerPage(class)
	for i := 0; i < n; i++ {
		p.free[class].Insert(uint64(addr) + uint64(i*chunkSize))
	}
	p.bytes += pageframe.PageSize

	p.logger.Debug().
		Int("class", class).
		Uint64("page", uint64(addr)).
		Int("chunks", n).
		Msg("tcps: grew pool by one host page")
	p.observeGrow(class)

	k, ok := p.free[class].TakeMin()
	if !ok {
		panic("tcps: class grown but no free chunk available")
	}
	p.observeAlloc(class)
	return k, nil
}

// Free releases a handle previously returned by Alloc. Panics on an
// unknown or misaligned handle — a double free or a corrupted handle
// is a programmer error in this kernel-adjacent design, not a
// recoverable condition.
func (p *Pool) Free(handle uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pageAddr := pageframe.PageAddr(handle)
	q, ok := p.pageIndex[pageAddr]
	if !ok {
		panic(fmt.Sprintf("tcps: free of handle %#x in an unknown page", handle))
	}
	size := p.classes.Size(q.class)
	if (handle-uint64(pageAddr))%uint64(size) != 0 {
		panic(fmt.Sprintf("tcps: free of misaligned handle %#x for class %d", handle, q.class))
	}

	if q.reclaiming {
		p.reclaimSet.Insert(handle)
	} else {
		p.free[q.class].Insert(handle)
	}
	p.observeFree(q.class)
}

// Map returns a direct slice over the chunk's bytes. No copy, no
// pinning beyond the pool's own residency guarantee.
func (p *Pool) Map(handle uint64) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	pageAddr := pageframe.PageAddr(handle)
	q, ok := p.pageIndex[pageAddr]
	if !ok {
		panic(fmt.Sprintf("tcps: map of handle %#x in an unknown page", handle))
	}
	off := handle - uint64(pageAddr)
	size := uint64(p.classes.Size(q.class))
	return q.bytes[off : off+size]
}

// Unmap exists only to preserve the collaborator's expected API; it
// is a no-op.
func (p *Pool) Unmap(handle uint64) {}
