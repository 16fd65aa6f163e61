package pool

import "github.com/cloudfly/tcps/pageframe"

// pageMeta is the per-host-page side metadata the pool keeps: class
// tag, reclaim flag, and a list hook into exactly one pageList while
// the page is a live allocation source.
type pageMeta struct {
	addr       pageframe.Addr
	bytes      []byte
	class      int
	reclaiming bool

	prev, next *pageMeta
	inList     bool
}

// pageList is an insertion-ordered doubly linked list of host pages
// for one size class: head is the newest page, tail is the oldest —
// the reclaim driver's candidate roster.
type pageList struct {
	head, tail *pageMeta
	len        int
}

// pushFront inserts q as the newest page in the list.
func (l *pageList) pushFront(q *pageMeta) {
	q.prev, q.next = nil, l.head
	if l.head != nil {
		l.head.prev = q
	}
	l.head = q
	if l.tail == nil {
		l.tail = q
	}
	l.len++
	q.inList = true
}

// remove detaches q from the list. Precondition: q is in this list.
func (l *pageList) remove(q *pageMeta) {
	if q.prev != nil {
		q.prev.next = q.next
	} else {
		l.head = q.next
	}
	if q.next != nil {
		q.next.prev = q.prev
	} else {
		l.tail = q.prev
	}
	q.prev, q.next = nil, nil
	q.inList = false
	l.len--
}

// moveToFront detaches q and reinserts it as the newest page, used by
// the reclaim driver to rotate candidates after a pick so a retry
// doesn't keep re-selecting the same tail page.
func (l *pageList) moveToFront(q *pageMeta) {
	if l.head == q {
		return
	}
	l.remove(q)
	l.pushFront(q)
}
