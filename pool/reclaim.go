package pool

import "github.com/cloudfly/tcps/pageframe"

// ReclaimOne attempts to return exactly one host page to the backing
// PageAllocator by evicting its still-live chunks through the pool's
// Evictor. It walks size classes largest-first (fewer live chunks per
// page to evict), quarantines a victim page's free chunks into the
// pool-wide reclaim-set, evicts each remaining live chunk, and either
// frees the page or reverses the quarantine and retries with the
// oldest candidate left in the same class (the same page again when it
// is its class's only page).
//
// Victim selection and quarantine run under the pool lock; eviction
// runs with the lock released so the Evictor can block on I/O.
func (p *Pool) ReclaimOne(retries int) error {
	if ok, err := p.reclaimPreconditions(retries); !ok {
		return err
	}

	curClass := 0
	for attempt := 0; attempt < retries; attempt++ {
		victim, victimClass, found := p.selectVictim(&curClass)
		if !found {
			p.observeReclaim("exhausted")
			return ErrExhausted
		}

		chunkSize := p.classes.Size(victimClass)
		n := p.classes.ChunksPerPage(victimClass)
		qStart := uint64(victim.addr)
		qEnd := qStart + pageframe.PageSize

		p.quarantine(victim, victimClass, qStart, qEnd)

		ok := p.evictAll(victim, qStart, chunkSize, n)

		if ok && p.verifyDrained(qStart, chunkSize, n) {
			p.completeReclaim(victim, victimClass, qStart, qEnd)
			return nil
		}

		p.reverseQuarantine(victim, victimClass, qStart, qEnd)
	}
	p.observeReclaim("exhausted")
	return ErrExhausted
}

func (p *Pool) reclaimPreconditions(retries int) (bool, error) {
	p.mu.Lock()
	if p.evictor == nil || retries <= 0 {
		p.mu.Unlock()
		p.observeReclaim("no_evict")
		return false, ErrNoEvict
	}
	anyCandidates := false
	for _, l := range p.pages {
		if l.len > 0 {
			anyCandidates = true
			break
		}
	}
	p.mu.Unlock()

	if !anyCandidates {
		p.observeReclaim("no_evict")
		return false, ErrNoEvict
	}
	return true, nil
}

// selectVictim walks classes from curClass (persisted across retries
// within one ReclaimOne call) toward the smallest, picking the oldest
// page in the first non-empty class and rotating it to the front of
// its list so a later retry in the same class (after a
// reverse-quarantine reattach) doesn't keep re-selecting a page whose
// list position didn't change. Quarantined pages are detached from
// every pages list, so this scan never observes a page already
// flagged for reclaim sitting in a class list.
func (p *Pool) selectVictim(curClass *int) (*pageMeta, int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for *curClass < len(p.pages) {
		l := p.pages[*curClass]
		if l.len == 0 {
			*curClass++
			continue
		}
		q := l.tail
		l.moveToFront(q)
		return q, *curClass, true
	}
	return nil, 0, false
}

// quarantine detaches the victim page from its class's page list and
// moves its still-free chunks into the pool-wide reclaim-set, marking
// it off limits to ordinary allocation while it's being drained.
func (p *Pool) quarantine(q *pageMeta, class int, qStart, qEnd uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	q.reclaiming = true
	p.pages[class].remove(q)
	p.free[class].MoveRange(p.reclaimSet, qStart, qEnd)

	p.logger.Debug().
		Int("class", class).
		Uint64("page", qStart).
		Msg("tcps: quarantined page for reclaim")
}

// evictAll walks every chunk in the victim page, skipping any chunk
// already in the reclaim-set (freed while still live, or freed during
// this very loop by a concurrent Free that observed reclaiming==true
// and landed in the reclaim-set instead of the class free-set), and
// invoking the Evictor on everything else. A non-nil Evictor error
// aborts the rest of the page's chunks immediately.
func (p *Pool) evictAll(q *pageMeta, qStart uint64, chunkSize, n int) bool {
	for i := 0; i < n; i++ {
		k := qStart + uint64(i*chunkSize)

		p.mu.Lock()
		already := p.reclaimSet.Contains(k)
		p.mu.Unlock()
		if already {
			continue
		}

		if err := p.evictor(p, k); err != nil {
			p.logger.Debug().
				Uint64("page", qStart).
				Uint64("chunk", k).
				Err(err).
				Msg("tcps: evict callback failed, aborting reclaim of this page")
			return false
		}
		// Contract: a successful evict must have called p.Free(k).
		// Because reclaiming is set, that free landed in the
		// reclaim-set, not the class free-set.
	}
	return true
}

// verifyDrained checks that every chunk address in the victim page is
// now a member of the reclaim-set.
func (p *Pool) verifyDrained(qStart uint64, chunkSize, n int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < n; i++ {
		k := qStart + uint64(i*chunkSize)
		if !p.reclaimSet.Contains(k) {
			return false
		}
	}
	return true
}

// completeReclaim discards the page's chunks from the reclaim-set,
// clears the flag, and hands the page back to the backing allocator.
func (p *Pool) completeReclaim(q *pageMeta, class int, qStart, qEnd uint64) {
	p.mu.Lock()
	p.reclaimSet.MoveRange(nil, qStart, qEnd)
	q.reclaiming = false
	delete(p.pageIndex, q.addr)
	p.pageAlloc.Free(q.addr)
	p.bytes -= pageframe.PageSize
	p.mu.Unlock()

	p.logger.Info().
		Int("class", class).
		Uint64("page", qStart).
		Msg("tcps: reclaimed host page")
	p.observeReclaim("ok")
}

// reverseQuarantine undoes quarantine when a victim page couldn't be
// fully drained this attempt: any chunks that did get evicted (now
// sitting in the reclaim-set) return to the class free-set, since the
// page isn't going to be freed after all, and the page is reattached
// to the head of its class's list, so the older pages at the tail are
// picked before it again.
func (p *Pool) reverseQuarantine(q *pageMeta, class int, qStart, qEnd uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	q.reclaiming = false
	p.reclaimSet.MoveRange(p.free[class], qStart, qEnd)
	p.pages[class].pushFront(q)

	p.logger.Debug().
		Int("class", class).
		Uint64("page", qStart).
		Msg("tcps: reversed quarantine, page reattached")
}
