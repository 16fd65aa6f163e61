// Package sizeclass holds the fixed size-class table the pool carves
// host pages into, and the tightest-fit lookup from a requested size
// to a class.
//
// Modeled on the Go runtime's own small-object size classes: a
// compile-time table, chosen once, with no dynamic reclassification.
// Unlike the runtime's ~67-class table built from a waste-bound
// search, a handful of classes are fixed up front here, so the lookup
// is a plain reverse scan rather than precomputed division tables.
package sizeclass

import "fmt"

// PageSize is the host page size every class divides evenly.
const PageSize = 4096

// Default is the reference class table: three classes, largest
// first, each dividing PageSize.
var Default = []int{2048, 1024, 256}

// Table is a validated, immutable size-class table.
type Table struct {
	sizes []int
}

// New validates sizes (strictly decreasing, each dividing PageSize, each
// large enough to hold a chunkset tree node) and returns a Table.
// nodeSize is the minimum chunk size the caller's free-set
// implementation requires per entry; pass 0 to skip that check.
func New(sizes []int, nodeSize int) (*Table, error) {
	if len(sizes) == 0 {
		return nil, fmt.Errorf("sizeclass: empty class table")
	}
	for i, s := range sizes {
		if s <= 0 {
			return nil, fmt.Errorf("sizeclass: class %d has non-positive size %d", i, s)
		}
		if PageSize%s != 0 {
			return nil, fmt.Errorf("sizeclass: class %d size %d does not divide page size %d", i, s, PageSize)
		}
		if i > 0 && s >= sizes[i-1] {
			return nil, fmt.Errorf("sizeclass: class sizes must strictly decrease (class %d: %d >= class %d: %d)", i, s, i-1, sizes[i-1])
		}
		if nodeSize > 0 && s < nodeSize {
			return nil, fmt.Errorf("sizeclass: class %d size %d smaller than minimum node size %d", i, s, nodeSize)
		}
	}
	cp := make([]int, len(sizes))
	copy(cp, sizes)
	return &Table{sizes: cp}, nil
}

// Count returns the number of classes, C in the spec's notation.
func (t *Table) Count() int { return len(t.sizes) }

// Size returns the byte size of class c.
func (t *Table) Size(c int) int { return t.sizes[c] }

// Largest is the byte size of class 0, the ceiling on any single alloc.
func (t *Table) Largest() int { return t.sizes[0] }

// ChunksPerPage is the number of chunks a host page is carved into for
// class c.
func (t *Table) ChunksPerPage(c int) int { return PageSize / t.sizes[c] }

// ClassOf returns the smallest class whose size is >= size (tightest
// fit, per the spec's resolved open question in favor of the
// higher-density variant). ok is false if size is non-positive or
// exceeds the largest class.
func (t *Table) ClassOf(size int) (class int, ok bool) {
	if size <= 0 || size > t.sizes[0] {
		return 0, false
	}
	// Classes are stored largest-first; the tightest fit is the last
	// (smallest) class whose size still covers the request.
	best := 0
	for c := len(t.sizes) - 1; c >= 0; c-- {
		if t.sizes[c] >= size {
			best = c
			break
		}
	}
	return best, true
}
