// Package pagestore implements PagedDb, the paged store described in
// spec.md §4.4: a fixed-size-page allocator with copy-on-write
// batching, a root/metadata ring for durable recovery, and
// abandoned-page reclamation bounded by a reorg-depth visibility
// window. Grounded on the teacher's storage.go (mmap + metadata page
// + grow) and tx.go's shadow-page commit protocol, generalized from a
// B-tree's record log to CoW page batches committed via a root ring.
package pagestore

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/paprikadb/paprika/internal/page"
)

// Config mirrors the teacher's Config struct for BTreeDisk, threading
// a zap.Logger and the engine's durability/capacity knobs through to
// PagedDb.
type Config struct {
	// Dir/Name select the backing file for a persistent store; unused
	// for OpenMemory.
	Dir  string
	Name string

	MaxReorgDepth uint32
	MaxSizeBytes  uint64

	DefaultCommitOptions CommitOptions
	Logger               *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxReorgDepth == 0 {
		c.MaxReorgDepth = 128
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// PagedDb is the paged store: it owns the backing storage, the
// allocator, and the last-committed root metadata. Exactly one
// WriteBatch may be open at a time; any number of ReadBatch snapshots
// may be open concurrently with it.
type PagedDb struct {
	cfg   Config
	store storage
	alloc *allocator

	// writeMu serializes write batches: spec.md §1's non-goal of
	// multi-writer concurrency on the same batch, enforced the way
	// tx.go's txMu guards BTreeDisk's write transactions.
	writeMu sync.Mutex

	// metaMu guards the last-committed snapshot fields below, the way
	// tx.go's rw guards read transactions against the writer.
	metaMu               sync.RWMutex
	lastCommittedBatchID uint32
	rootAddr             page.Address
	blockNumber          uint32
	blockHash            [32]byte
}

// OpenMemory opens an in-memory store, per spec.md §6's open_memory.
func OpenMemory(cfg Config) (*PagedDb, error) {
	cfg = cfg.withDefaults()
	store := newMemStorage(cfg.MaxSizeBytes)
	return newPagedDb(cfg, store)
}

// OpenPersistent opens (creating if absent) a memory-mapped store at
// cfg.Dir/cfg.Name, per spec.md §6's open_persistent.
func OpenPersistent(cfg Config) (*PagedDb, error) {
	cfg = cfg.withDefaults()
	path := cfg.Dir + "/" + cfg.Name
	store, err := openMMapStorage(path, cfg.MaxSizeBytes)
	if err != nil {
		return nil, err
	}
	return newPagedDb(cfg, store)
}

func newPagedDb(cfg Config, store storage) (*PagedDb, error) {
	if uint64(cfg.MaxReorgDepth) > store.pageCount() {
		if err := store.grow(uint64(cfg.MaxReorgDepth)); err != nil {
			return nil, err
		}
	}
	db := &PagedDb{
		cfg:   cfg,
		store: store,
	}

	recovered, pageCount, abandonedHeads, err := recoverRootRing(store, cfg.MaxReorgDepth)
	if err != nil {
		return nil, err
	}
	// pageCount is the watermark of pages actually handed out, not the
	// backing store's preallocated capacity: newPage bumps it lazily
	// and grows the store on demand, so starting it from the store's
	// full capacity would waste every preallocated page forever.
	if recovered == nil && pageCount < uint64(cfg.MaxReorgDepth) {
		pageCount = uint64(cfg.MaxReorgDepth)
	}
	db.alloc = newAllocator(store, pageCount, cfg.MaxReorgDepth)
	db.alloc.abandonedHeads = abandonedHeads

	if recovered != nil {
		db.lastCommittedBatchID = recovered.batchID
		db.rootAddr = recovered.root.TrieRoot
		db.blockNumber = recovered.root.BlockNumber
		db.blockHash = recovered.root.BlockHash
		cfg.Logger.Info("pagestore: recovered root ring",
			zap.Uint32("batchId", recovered.batchID),
			zap.Uint32("blockNumber", recovered.root.BlockNumber))
	} else {
		cfg.Logger.Info("pagestore: opened fresh store")
	}
	return db, nil
}

type recoveredRoot struct {
	batchID uint32
	root    rootPage
}

// recoverRootRing scans every root-ring slot and returns the one with
// the greatest valid batch id whose checksum verifies, per spec.md
// §6's recovery algorithm, plus every slot's own abandoned-chain head
// (each root page "stores... head of abandoned-list chain for this
// batch", so all still-addressable per-batch heads live in the ring
// itself, not in one aggregate structure).
func recoverRootRing(store storage, r uint32) (*recoveredRoot, uint64, map[uint32]page.Address, error) {
	var best *recoveredRoot
	heads := make(map[uint32]page.Address)
	var pageCount uint64

	for slot := uint32(0); slot < r && uint64(slot) < store.pageCount(); slot++ {
		p := page.New(store.pageBytes(page.Address(slot)))
		h := p.Header()
		if h.Type != page.TypeRoot {
			continue
		}
		rp, ok := decodeRootPage(p)
		if !ok {
			continue
		}
		if best == nil || h.BatchID > best.batchID {
			best = &recoveredRoot{batchID: h.BatchID, root: rp}
		}
		if rp.PageCount > pageCount {
			pageCount = rp.PageCount
		}
		if rp.AbandonedHead != page.Null {
			heads[h.BatchID] = rp.AbandonedHead
		}
	}
	return best, pageCount, heads, nil
}

// BeginReadOnly returns a snapshot bound to the most recently
// committed root, per spec.md §4.4.
func (db *PagedDb) BeginReadOnly() *ReadBatch {
	db.metaMu.RLock()
	defer db.metaMu.RUnlock()
	return &ReadBatch{
		store:       db.store,
		rootAddr:    db.rootAddr,
		blockNumber: db.blockNumber,
		blockHash:   db.blockHash,
	}
}

// BeginNext obtains the sole writer and returns a batch whose id is
// one past the last committed batch, per spec.md §4.4.
func (db *PagedDb) BeginNext() *WriteBatch {
	db.writeMu.Lock()
	db.metaMu.RLock()
	wb := &WriteBatch{
		db:          db,
		batchID:     db.lastCommittedBatchID + 1,
		rootAddr:    db.rootAddr,
		blockNumber: db.blockNumber,
		blockHash:   db.blockHash,
		alloc:       db.alloc,
	}
	db.metaMu.RUnlock()
	return wb
}

// unlockWriter is called exactly once by WriteBatch.Commit or Abort.
func (db *PagedDb) unlockWriter() {
	db.writeMu.Unlock()
}

// Close releases the backing storage.
func (db *PagedDb) Close() error {
	return db.store.close()
}

// AbandonedPageCount is a supplemented diagnostic (SPEC_FULL.md §12):
// how many page addresses are currently pinned across all of the root
// ring's still-addressable abandoned chains.
func (db *PagedDb) AbandonedPageCount() int {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	return db.alloc.count()
}

// Metadata returns the last committed block number and hash, per
// spec.md §6's metadata().
func (db *PagedDb) Metadata() (uint32, [32]byte) {
	db.metaMu.RLock()
	defer db.metaMu.RUnlock()
	return db.blockNumber, db.blockHash
}

func (db *PagedDb) String() string {
	return fmt.Sprintf("PagedDb{batch=%d root=%d}", db.lastCommittedBatchID, db.rootAddr)
}
