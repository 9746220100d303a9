package pagestore

import (
	"fmt"

	"github.com/paprikadb/paprika/internal/page"
)

// ReadBatch is a snapshot bound to the root committed at the moment
// it was opened; it is safe to use concurrently with the single
// in-progress WriteBatch and with other ReadBatch snapshots, since
// committed pages are never mutated in place (spec.md §8's CoW
// isolation property).
type ReadBatch struct {
	store       storage
	rootAddr    page.Address
	blockNumber uint32
	blockHash   [32]byte
}

func (r *ReadBatch) GetPage(addr page.Address) page.Page {
	return page.New(r.store.pageBytes(addr))
}

// Root returns the trie root this snapshot was opened against.
func (r *ReadBatch) Root() page.Address { return r.rootAddr }

// Metadata returns the block number and hash this snapshot was
// opened against, per spec.md §6's metadata().
func (r *ReadBatch) Metadata() (uint32, [32]byte) { return r.blockNumber, r.blockHash }

// CommitOptions controls fsync behavior at commit time, per spec.md
// §6's durability levels.
type CommitOptions uint8

const (
	// CommitDataOnly fsyncs data pages; the root slot is updated but
	// not fsynced. Atomic but the newest root may be lost on crash and
	// recovered as the prior batch.
	CommitDataOnly CommitOptions = iota
	// CommitDataAndRoot fsyncs data pages then the root page. Atomic
	// and durable.
	CommitDataAndRoot
	// CommitNoFlush skips every fsync. Debug-only; may corrupt on crash.
	CommitNoFlush
	// CommitNoWrite skips the root-slot write entirely, leaving the
	// batch's page mutations unreferenced by any committed root. A
	// supplemented debug mode (SPEC_FULL.md §12) for tests exercising
	// recovery from an interrupted batch.
	CommitNoWrite
)

// WriteBatch is the sole writer: obtained from PagedDb.BeginNext and
// released by exactly one call to Commit or Abort.
type WriteBatch struct {
	db          *PagedDb
	batchID     uint32
	rootAddr    page.Address
	blockNumber uint32
	blockHash   [32]byte
	alloc       *allocator

	freedThisBatch []page.Address
	done           bool
}

func (w *WriteBatch) GetPage(addr page.Address) page.Page {
	return page.New(w.db.store.pageBytes(addr))
}

func (w *WriteBatch) BatchID() uint32 { return w.batchID }

// IsWritable reports whether addr was already stamped with this
// batch's id, either by a fresh allocation or an earlier
// EnsureWritable in the same batch. Mirrors spec.md §3's invariant
// directly off the page header, no separate bookkeeping needed.
func (w *WriteBatch) IsWritable(addr page.Address) bool {
	if addr == page.Null {
		return false
	}
	return w.GetPage(addr).Header().BatchID == w.batchID
}

// EnsureWritable implements spec.md §4.4's ensure_writable_copy: if
// addr is already writable in this batch, return it as-is; otherwise
// copy it into a fresh page stamped with this batch's id and register
// the old address for future reuse.
func (w *WriteBatch) EnsureWritable(addr page.Address) (page.Page, page.Address) {
	p := w.GetPage(addr)
	if p.Header().BatchID == w.batchID {
		return p, addr
	}
	newAddr, err := w.alloc.newPage(w.batchID)
	if err != nil {
		panic(fmt.Errorf("pagestore: allocate page: %w", err))
	}
	newP := w.GetPage(newAddr)
	copy(newP.Bytes(), p.Bytes())
	h := newP.Header()
	h.BatchID = w.batchID
	newP.SetHeader(h)
	w.RegisterForReuse(addr)
	return newP, newAddr
}

func (w *WriteBatch) NewPage(typ page.Type, level, metadata uint8) (page.Page, page.Address) {
	addr, err := w.alloc.newPage(w.batchID)
	if err != nil {
		panic(fmt.Errorf("pagestore: allocate page: %w", err))
	}
	p := w.GetPage(addr)
	p.Init(w.batchID, typ, level, metadata)
	return p, addr
}

func (w *WriteBatch) RegisterForReuse(addr page.Address) {
	w.freedThisBatch = append(w.freedThisBatch, addr)
}

// Root returns a pointer to this batch's trie root address, for
// passing to trie.Set/trie.DeleteByPrefix/trie.TryGet.
func (w *WriteBatch) Root() *page.Address { return &w.rootAddr }

// SetMetadata stamps the block number and hash to be recorded in the
// root page at commit time.
func (w *WriteBatch) SetMetadata(blockNumber uint32, blockHash [32]byte) {
	w.blockNumber = blockNumber
	w.blockHash = blockHash
}

// Abort releases the writer without committing, mirroring tx.go's
// Rollback: every mutation already applied to the store stays in
// place as garbage, but since the root ring is never updated, no
// committed reader ever observes it.
func (w *WriteBatch) Abort() {
	if w.done {
		panic("pagestore: batch already closed")
	}
	w.done = true
	w.db.unlockWriter()
}

// Commit writes the batch's abandoned-page bookkeeping and the root
// ring slot for this batch, applying the fsync policy opts selects,
// then publishes the new snapshot to future ReadBatch/BeginNext
// callers.
func (w *WriteBatch) Commit(opts CommitOptions) error {
	if w.done {
		panic("pagestore: batch already closed")
	}
	w.done = true
	defer w.db.unlockWriter()

	for _, addr := range w.freedThisBatch {
		if err := w.alloc.pushAbandoned(w.batchID, addr); err != nil {
			return fmt.Errorf("pagestore: push abandoned page: %w", err)
		}
	}

	if opts == CommitNoWrite {
		return nil
	}

	if opts == CommitDataOnly || opts == CommitDataAndRoot {
		if err := w.db.store.sync(); err != nil {
			return fmt.Errorf("pagestore: sync data: %w", err)
		}
	}

	rp := rootPage{
		BlockNumber:   w.blockNumber,
		BlockHash:     w.blockHash,
		TrieRoot:      w.rootAddr,
		AbandonedHead: w.alloc.abandonedHeads[w.batchID],
		PageCount:     w.alloc.pageCount,
	}
	slot := page.Address(w.batchID % w.db.cfg.MaxReorgDepth)
	p := w.GetPage(slot)
	p.Init(w.batchID, page.TypeRoot, 0, 0)
	rp.encode(p)

	if opts == CommitDataAndRoot {
		if err := w.db.store.sync(); err != nil {
			return fmt.Errorf("pagestore: sync root: %w", err)
		}
	}

	w.db.metaMu.Lock()
	w.db.lastCommittedBatchID = w.batchID
	w.db.rootAddr = w.rootAddr
	w.db.blockNumber = w.blockNumber
	w.db.blockHash = w.blockHash
	w.db.metaMu.Unlock()
	return nil
}
