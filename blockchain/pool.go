package blockchain

import (
	"sync"

	"github.com/paprikadb/paprika/internal/page"
)

// pool is the blockchain's process-private page pool, per spec.md
// §4.5: blocks rent page-sized buffers from here rather than from the
// paged store, so in-progress block state never touches PagedDb's
// allocator or its copy-on-write bookkeeping. Grounded on storage.go's
// pre-allocated buffer management, simplified to a fixed-capacity free
// list since this pool never grows: spec.md §4.5 describes it as
// "pre-allocated", and PoolExhausted (§7) is a defined, expected
// failure mode rather than something to paper over with dynamic growth.
type pool struct {
	mu   sync.Mutex
	free [][]byte
}

func newPool(capacity int) *pool {
	free := make([][]byte, capacity)
	for i := range free {
		free[i] = make([]byte, page.Size)
	}
	return &pool{free: free}
}

// get rents one page-sized buffer, or ErrPoolExhausted if none remain.
func (p *pool) get() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.free)
	if n == 0 {
		return nil, ErrPoolExhausted
	}
	buf := p.free[n-1]
	p.free = p.free[:n-1]
	return buf, nil
}

// put returns buf to the pool, zeroing it first so a reused page never
// leaks a previous block's data through an uninitialized slotted-array
// header.
func (p *pool) put(buf []byte) {
	clear(buf)
	p.mu.Lock()
	p.free = append(p.free, buf)
	p.mu.Unlock()
}

// outstanding reports how many of the pool's total pages are currently
// rented out, for diagnostics.
func (p *pool) outstanding(total int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return total - len(p.free)
}
