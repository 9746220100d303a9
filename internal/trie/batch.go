package trie

import "github.com/paprikadb/paprika/internal/page"

// ReadBatch is the minimal read-side view a trie lookup needs.
type ReadBatch interface {
	GetPage(addr page.Address) page.Page
}

// Batch is the write-side view PagedDb's write batch exposes to the
// trie layer: page fetch, copy-on-write, fresh allocation and
// retirement, all scoped to a single batch id.
type Batch interface {
	ReadBatch
	BatchID() uint32
	IsWritable(addr page.Address) bool
	// EnsureWritable returns a page guaranteed writable in this batch
	// at addr, copying addr into a fresh page first if necessary. The
	// returned address may differ from addr; callers must persist it
	// into whatever slot referenced the original address.
	EnsureWritable(addr page.Address) (page.Page, page.Address)
	NewPage(typ page.Type, level, metadata uint8) (page.Page, page.Address)
	RegisterForReuse(addr page.Address)
}

// ensureWritable resolves slot to a writable page, updating slot in
// place if copy-on-write produced a new address.
func ensureWritable(batch Batch, slot addrSlot) (page.Page, page.Address) {
	p, addr := batch.EnsureWritable(slot.get())
	slot.set(addr)
	return p, addr
}
