// Package blockchain implements the in-memory block-chain overlay
// described in spec.md §4.5: multiple concurrent in-progress block
// states chained from the last finalized database snapshot, bloom-
// filtered history reads walking parent chains, and asynchronous
// finalization of confirmed blocks into PagedDb.
package blockchain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paprikadb/paprika/internal/nibble"
	"github.com/paprikadb/paprika/internal/pagestore"
	"github.com/paprikadb/paprika/internal/trie"
)

// Config tunes the blockchain overlay. Grounded on the teacher's
// BTreeDisk Config shape (plain struct of knobs plus a *zap.Logger).
type Config struct {
	// PoolPages sizes the process-private page pool blocks rent from.
	PoolPages int

	// BloomMaxElements/BloomFalsePositiveRate size each block's bloom
	// filter, per spec.md §4.5's per-block bloom.
	BloomMaxElements       uint64
	BloomFalsePositiveRate float64

	// FlushBatchWindow bounds how long the flusher accumulates
	// finalized blocks into one PagedDb commit, per spec.md §5's
	// "soft time limit per batch (e.g., 2s)".
	FlushBatchWindow time.Duration

	// CommitOptions is the durability level the flusher commits with.
	CommitOptions pagestore.CommitOptions

	// FinalizedQueueDepth/FlushedQueueDepth size the SPSC finalized
	// channel and the flusher-to-caller already_flushed_to queue.
	FinalizedQueueDepth int
	FlushedQueueDepth   int

	Logger  *zap.Logger
	Metrics *Metrics
}

func (c Config) withDefaults() Config {
	if c.PoolPages == 0 {
		c.PoolPages = 1024
	}
	if c.BloomMaxElements == 0 {
		c.BloomMaxElements = 4096
	}
	if c.BloomFalsePositiveRate == 0 {
		c.BloomFalsePositiveRate = 0.01
	}
	if c.FlushBatchWindow == 0 {
		c.FlushBatchWindow = 2 * time.Second
	}
	if c.FinalizedQueueDepth == 0 {
		c.FinalizedQueueDepth = 256
	}
	if c.FlushedQueueDepth == 0 {
		c.FlushedQueueDepth = 16
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

type flushedBatch struct {
	reader  *pagestore.ReadBatch
	numbers []uint32
}

// Blockchain is the overlay itself: see spec.md §4.5 for the full
// state description. Scheduling follows spec.md §5: every method
// below except the flusher loop is meant to be called from a single
// caller goroutine; the flusher is the one background task.
type Blockchain struct {
	db   *pagestore.PagedDb
	cfg  Config
	pool *pool

	mu             sync.Mutex
	blocksByNumber map[uint32][]*Block
	blocksByHash   map[[32]byte]*Block
	lastFinalized  uint32
	closed         bool

	readerMu sync.RWMutex
	reader   *pagestore.ReadBatch

	finalizedCh chan *Block
	flushedCh   chan flushedBatch

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New builds a Blockchain over db, starting its reader snapshot from
// db's last committed root and its flusher task immediately.
func New(db *pagestore.PagedDb, cfg Config) *Blockchain {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	lastFinalized, _ := db.Metadata()
	bc := &Blockchain{
		db:             db,
		cfg:            cfg,
		pool:           newPool(cfg.PoolPages),
		blocksByNumber: make(map[uint32][]*Block),
		blocksByHash:   make(map[[32]byte]*Block),
		lastFinalized:  lastFinalized,
		reader:         db.BeginReadOnly(),
		finalizedCh:    make(chan *Block, cfg.FinalizedQueueDepth),
		flushedCh:      make(chan flushedBatch, cfg.FlushedQueueDepth),
		group:          group,
		cancel:         cancel,
	}
	group.Go(func() error { return bc.flushLoop(gctx) })
	return bc
}

func (bc *Blockchain) dbReader() *pagestore.ReadBatch {
	bc.readerMu.RLock()
	defer bc.readerMu.RUnlock()
	return bc.reader
}

func (bc *Blockchain) tryGetFromReader(rb *pagestore.ReadBatch, key nibble.Path) ([]byte, bool) {
	return trie.TryGet(rb, rb.Root(), key)
}

func (bc *Blockchain) lookupByHash(hash [32]byte) *Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.blocksByHash[hash]
}

// drainFlushed implements spec.md §4.5 step 1 of start_new: swap in
// every pending flushed snapshot and return the flushed blocks' pages,
// taking only a brief, non-suspending lock per spec.md §5.
func (bc *Blockchain) drainFlushed() {
	for {
		var fb flushedBatch
		select {
		case fb = <-bc.flushedCh:
		default:
			return
		}

		bc.readerMu.Lock()
		bc.reader = fb.reader
		bc.readerMu.Unlock()

		bc.mu.Lock()
		for _, num := range fb.numbers {
			for _, blk := range bc.blocksByNumber[num] {
				delete(bc.blocksByHash, blk.Hash)
				blk.dispose()
			}
			delete(bc.blocksByNumber, num)
		}
		bc.mu.Unlock()
	}
}

// StartNew drains any pending flush results, then returns a fresh
// block chained from parentHash (which may not resolve to any
// in-memory block, in which case its reads fall through to the
// database reader), per spec.md §4.5's start_new.
func (bc *Blockchain) StartNew(parentHash, blockHash [32]byte, blockNumber uint32) (*Block, error) {
	bc.mu.Lock()
	closed := bc.closed
	bc.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	bc.drainFlushed()
	return newBlock(bc, parentHash, blockHash, blockNumber)
}

// commit links blk into both indices without blocking on flushing.
func (bc *Blockchain) commit(blk *Block) {
	bc.mu.Lock()
	bc.blocksByHash[blk.Hash] = blk
	bc.blocksByNumber[blk.BlockNumber] = append(bc.blocksByNumber[blk.BlockNumber], blk)
	bc.mu.Unlock()
}

// Finalize walks blk's ancestor chain back to (but not including) the
// last finalized block and pushes each ancestor, oldest first, onto
// the flusher's queue, per spec.md §4.5's finalize().
func (bc *Blockchain) Finalize(blockHash [32]byte) error {
	bc.mu.Lock()
	blk, ok := bc.blocksByHash[blockHash]
	if !ok {
		bc.mu.Unlock()
		return ErrUnknownBlock
	}
	if blk.BlockNumber <= bc.lastFinalized {
		bc.mu.Unlock()
		return ErrAlreadyFinalized
	}

	var chain []*Block
	for cur := blk; cur != nil && cur.BlockNumber > bc.lastFinalized; cur = bc.blocksByHash[cur.ParentHash] {
		chain = append(chain, cur)
	}
	bc.lastFinalized = blk.BlockNumber
	bc.mu.Unlock()

	for i := len(chain) - 1; i >= 0; i-- {
		bc.finalizedCh <- chain[i]
	}
	return nil
}

// applyBlock replays every map blk accumulated into wb's trie, in the
// order the block wrote them so later writes to the same key win.
func (bc *Blockchain) applyBlock(wb *pagestore.WriteBatch, blk *Block) {
	wb.SetMetadata(blk.BlockNumber, blk.Hash)
	for _, arr := range blk.maps {
		arr.EnumerateAll(func(key nibble.Path, value []byte) bool {
			trie.Set(wb, wb.Root(), key, value)
			return true
		})
	}
}

// flushLoop is the single background task draining finalizedCh,
// fusing finalized blocks into bounded-window batches per spec.md §5,
// and publishing each commit's snapshot to flushedCh for the caller to
// pick up on its next StartNew.
func (bc *Blockchain) flushLoop(ctx context.Context) error {
	for {
		var first *Block
		select {
		case blk, ok := <-bc.finalizedCh:
			if !ok {
				return nil
			}
			first = blk
		case <-ctx.Done():
			return nil
		}

		more, err := bc.runOneBatch(ctx, first)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// runOneBatch commits one flusher batch, starting from first and
// pulling further finalized blocks for up to FlushBatchWindow. It
// recovers a panic from the trie/allocator layer and reports it as an
// error instead, aborting the batch without publishing a snapshot;
// flushLoop returns that error, which ends the flusher task, and Close
// reports it. The bool return reports whether the flusher should keep
// looping.
func (bc *Blockchain) runOneBatch(ctx context.Context, first *Block) (more bool, err error) {
	wb := bc.db.BeginNext()
	defer func() {
		if r := recover(); r != nil {
			wb.Abort()
			err = fmt.Errorf("blockchain: batch panicked: %v", r)
		}
	}()

	nums := []uint32{first.BlockNumber}
	bc.applyBlock(wb, first)

	deadline := time.Now().Add(bc.cfg.FlushBatchWindow)
	more = true
batchWindow:
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		select {
		case blk, ok := <-bc.finalizedCh:
			if !ok {
				more = false
				break batchWindow
			}
			bc.applyBlock(wb, blk)
			nums = append(nums, blk.BlockNumber)
		case <-time.After(remaining):
			break batchWindow
		case <-ctx.Done():
			more = false
			break batchWindow
		}
	}

	if commitErr := wb.Commit(bc.cfg.CommitOptions); commitErr != nil {
		bc.cfg.Logger.Error("blockchain: batch commit failed", zap.Error(commitErr), zap.Uint32s("blockNumbers", nums))
		return false, fmt.Errorf("blockchain: commit batch: %w", commitErr)
	}
	if m := bc.cfg.Metrics; m != nil {
		m.FlushQueueDepth.Set(float64(len(bc.finalizedCh)))
	}

	rb := bc.db.BeginReadOnly()
	select {
	case bc.flushedCh <- flushedBatch{reader: rb, numbers: nums}:
	case <-ctx.Done():
		return false, nil
	}
	return more, nil
}

// Close closes the finalized-block channel and awaits the flusher,
// then returns every still-held block's pool pages, per spec.md §4.5's
// disposal and §5's "disposing the blockchain closes the channel
// writer and awaits the flusher to drain".
func (bc *Blockchain) Close() error {
	bc.mu.Lock()
	if bc.closed {
		bc.mu.Unlock()
		return nil
	}
	bc.closed = true
	bc.mu.Unlock()

	close(bc.finalizedCh)
	err := bc.group.Wait()
	bc.cancel()

	bc.drainFlushed()

	bc.mu.Lock()
	for _, blk := range bc.blocksByHash {
		blk.dispose()
	}
	bc.blocksByHash = nil
	bc.blocksByNumber = nil
	bc.mu.Unlock()

	return err
}

// Stats is a supplemented diagnostic (SPEC_FULL.md §12) mirroring the
// teacher's ExportStat: a plain-struct snapshot of the same state the
// Prometheus collectors in Metrics track.
type Stats struct {
	BlocksInFlight  int
	FlushQueueDepth int
	PoolPagesInUse  int
}

// Stats returns a point-in-time snapshot of the blockchain's overlay
// state.
func (bc *Blockchain) Stats() Stats {
	bc.mu.Lock()
	inFlight := len(bc.blocksByHash)
	bc.mu.Unlock()
	return Stats{
		BlocksInFlight:  inFlight,
		FlushQueueDepth: len(bc.finalizedCh),
		PoolPagesInUse:  bc.pool.outstanding(bc.cfg.PoolPages),
	}
}
