package pagestore

import "github.com/paprikadb/paprika/internal/page"

// allocator implements spec.md §4.4's allocation policy: prefer a
// page freed by a batch far enough in the past to be outside any
// reader's reorg window, else bump the page-count watermark. Freed
// pages accumulate per batch in a chain of page.TypeAbandoned pages,
// grounded on freelist2.go's chained-page accumulation in build(),
// simplified from a binary min-heap (which orders by address, a
// property PagedDb never needs) to a plain append/pop chain.
type allocator struct {
	store          storage
	pageCount      uint64
	maxReorgDepth  uint32
	abandonedHeads map[uint32]page.Address
	// spare holds abandoned-chain pages emptied by a pop, available
	// for immediate reuse before bumping the watermark again.
	spare []page.Address
}

func newAllocator(store storage, pageCount uint64, maxReorgDepth uint32) *allocator {
	return &allocator{
		store:          store,
		pageCount:      pageCount,
		maxReorgDepth:  maxReorgDepth,
		abandonedHeads: make(map[uint32]page.Address),
	}
}

// newPage returns a fresh address, reusing a reclaimable page when
// one is available.
func (a *allocator) newPage(currentBatchID uint32) (page.Address, error) {
	if n := len(a.spare); n > 0 {
		addr := a.spare[n-1]
		a.spare = a.spare[:n-1]
		return addr, nil
	}
	for b, head := range a.abandonedHeads {
		if head == page.Null {
			continue
		}
		if uint64(currentBatchID)-uint64(b) <= uint64(a.maxReorgDepth) {
			continue
		}
		addr, ok := a.popAbandoned(b)
		if ok {
			return addr, nil
		}
	}
	addr := page.Address(a.pageCount)
	a.pageCount++
	if err := a.store.grow(a.pageCount); err != nil {
		return page.Null, err
	}
	return addr, nil
}

// popAbandoned removes and returns one address from batch b's
// abandoned chain, or (Null, false) if the chain is empty.
func (a *allocator) popAbandoned(b uint32) (page.Address, bool) {
	head := a.abandonedHeads[b]
	if head == page.Null {
		return page.Null, false
	}
	p := page.New(a.store.pageBytes(head))
	n := abandonedCount(p)
	if n == 0 {
		next := abandonedNext(p)
		a.abandonedHeads[b] = next
		if next == page.Null {
			delete(a.abandonedHeads, b)
		}
		a.spare = append(a.spare, head)
		return a.popAbandoned(b)
	}
	addr := abandonedEntry(p, n-1)
	setAbandonedCount(p, n-1)
	return addr, true
}

// pushAbandoned links addr into batchID's abandoned chain, allocating
// a fresh abandoned page (via a raw watermark bump, never via
// newPage/reclaim, to avoid a batch reclaiming its own in-flight
// frees) when the current head is absent or full.
func (a *allocator) pushAbandoned(batchID uint32, addr page.Address) error {
	head := a.abandonedHeads[batchID]
	if head == page.Null || abandonedCount(page.New(a.store.pageBytes(head))) >= abandonedCapacity {
		newHead := page.Address(a.pageCount)
		a.pageCount++
		if err := a.store.grow(a.pageCount); err != nil {
			return err
		}
		p := page.New(a.store.pageBytes(newHead))
		p.Init(batchID, page.TypeAbandoned, 0, 0)
		setAbandonedNext(p, head)
		a.abandonedHeads[batchID] = newHead
		head = newHead
	}
	p := page.New(a.store.pageBytes(head))
	n := abandonedCount(p)
	setAbandonedEntry(p, n, addr)
	setAbandonedCount(p, n+1)
	return nil
}

// count reports how many addresses are pinned across all tracked
// batches' abandoned chains, for PagedDb.AbandonedPageCount.
func (a *allocator) count() int {
	total := 0
	for _, head := range a.abandonedHeads {
		addr := head
		for addr != page.Null {
			p := page.New(a.store.pageBytes(addr))
			total += abandonedCount(p)
			addr = abandonedNext(p)
		}
	}
	return total
}
