package paprika

import (
	"time"

	"go.uber.org/zap"

	"github.com/paprikadb/paprika/blockchain"
	"github.com/paprikadb/paprika/internal/nibble"
)

// BlockchainConfig tunes the blockchain overlay, per SPEC_FULL.md
// §10.3.
type BlockchainConfig struct {
	PoolPages              int
	BloomMaxElements       uint64
	BloomFalsePositiveRate float64
	FlushBatchWindow       time.Duration
	CommitOptions          CommitOptions
	FinalizedQueueDepth    int
	FlushedQueueDepth      int
	Logger                 *zap.Logger
	Metrics                *Metrics
}

func (c BlockchainConfig) toBlockchain() blockchain.Config {
	return blockchain.Config{
		PoolPages:              c.PoolPages,
		BloomMaxElements:       c.BloomMaxElements,
		BloomFalsePositiveRate: c.BloomFalsePositiveRate,
		FlushBatchWindow:       c.FlushBatchWindow,
		CommitOptions:          c.CommitOptions,
		FinalizedQueueDepth:    c.FinalizedQueueDepth,
		FlushedQueueDepth:      c.FlushedQueueDepth,
		Logger:                 c.Logger,
		Metrics:                c.Metrics,
	}
}

// Blockchain is the in-memory block-chain overlay layered atop a DB,
// per spec.md §4.5/§6.
type Blockchain struct {
	inner *blockchain.Blockchain
}

// NewBlockchain builds a Blockchain over db, per spec.md §6's
// Blockchain::new(db).
func NewBlockchain(db *DB, cfg BlockchainConfig) *Blockchain {
	return &Blockchain{inner: blockchain.New(db.inner, cfg.toBlockchain())}
}

// StartNew returns a fresh block chained from parentHash, per spec.md
// §4.5's start_new.
func (bc *Blockchain) StartNew(parentHash, blockHash [32]byte, blockNumber uint32) (*Block, error) {
	blk, err := bc.inner.StartNew(parentHash, blockHash, blockNumber)
	if err != nil {
		return nil, wrapBlockchainErr(err)
	}
	return &Block{inner: blk}, nil
}

// Finalize pushes blockHash's ancestor chain, back to the last
// finalized block, onto the asynchronous flusher, per spec.md §4.5's
// finalize().
func (bc *Blockchain) Finalize(blockHash [32]byte) error {
	return wrapBlockchainErr(bc.inner.Finalize(blockHash))
}

// Close closes the finalized-block channel and awaits the flusher,
// per spec.md §5's disposal semantics. It is async only in the sense
// that the flusher is a background task; Close itself blocks until
// that task has drained.
func (bc *Blockchain) Close() error {
	return wrapBlockchainErr(bc.inner.Close())
}

// Stats returns a point-in-time snapshot of the overlay's state.
func (bc *Blockchain) Stats() blockchain.Stats {
	return bc.inner.Stats()
}

// Lease pins a block's pages in place while a caller holds a slice
// returned from one of Block's get methods.
type Lease struct {
	inner blockchain.Lease
}

// Dispose releases the lease.
func (l Lease) Dispose() { l.inner.Dispose() }

// Block is an in-progress, in-memory block state chained from its
// parent by hash, per spec.md §3/§4.5.
type Block struct {
	inner *blockchain.Block
}

// Hash, ParentHash, and BlockNumber identify this block and its
// position in the chain.
func (b *Block) Hash() [32]byte       { return b.inner.Hash }
func (b *Block) ParentHash() [32]byte { return b.inner.ParentHash }
func (b *Block) BlockNumber() uint32  { return b.inner.BlockNumber }

// SetAccount stores acc at addr.
func (b *Block) SetAccount(addr [32]byte, acc Account) error {
	return wrapBlockchainErr(b.inner.SetAccount(addressPath(addr), acc))
}

// GetAccount returns the account stored at addr, walking this
// block's own writes, then its ancestors, then the database.
func (b *Block) GetAccount(addr [32]byte) (Account, Lease, bool) {
	acc, lease, ok := b.inner.GetAccount(addressPath(addr))
	return acc, Lease{inner: lease}, ok
}

// SetStorage stores value at the storage cell (addr, slot).
func (b *Block) SetStorage(addr, slot [32]byte, value []byte) error {
	return wrapBlockchainErr(b.inner.SetStorage(addressPath(addr), addressPath(slot), value))
}

// GetStorage returns the value stored at (addr, slot), if any.
func (b *Block) GetStorage(addr, slot [32]byte) ([]byte, Lease, bool) {
	v, lease, ok := b.inner.GetStorage(addressPath(addr), addressPath(slot))
	return v, Lease{inner: lease}, ok
}

// SetRaw writes payload at a previously encoded key, per spec.md
// §6's generic set_raw(key, payload). key must be a nibble path as
// produced by nibble.Path.WriteTo (i.e. a length/odd-bit preamble
// followed by packed nibbles), matching the account/storage encoding
// the engine itself uses internally.
func (b *Block) SetRaw(key []byte, payload []byte) error {
	path, _, err := nibble.ReadFrom(key)
	if err != nil {
		return wrapBlockchainErr(err)
	}
	return wrapBlockchainErr(b.inner.SetRaw(path, payload))
}

// Commit links the block into the blockchain's indices without
// blocking on flushing.
func (b *Block) Commit() { b.inner.Commit() }
