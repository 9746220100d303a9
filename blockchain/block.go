package blockchain

import (
	"sync/atomic"

	bloomfilter "github.com/holiman/bloomfilter/v2"

	"github.com/paprikadb/paprika/internal/keyspace"
	"github.com/paprikadb/paprika/internal/nibble"
	"github.com/paprikadb/paprika/internal/slotted"
)

// Lease pins a block's pool pages in place while a caller still holds
// a slice returned from TryGet/GetAccount/GetStorage, per spec.md
// §4.5/§5's "each block exposes a read lease". Dispose releases it;
// a Block is only safe to hand its pages back to the pool once every
// lease taken against it has been disposed.
type Lease struct {
	block *Block
}

// Dispose releases the lease. Safe to call at most once.
func (l Lease) Dispose() {
	if l.block == nil {
		return
	}
	l.block.refcount.Add(-1)
}

// Block is an in-progress, in-memory overlay chained from its parent
// by hash, per spec.md §3/§4.5. Per DESIGN NOTES §9's guidance on weak
// parent pointers, Block stores parentHash and never a pointer to the
// parent: every ancestor walk re-resolves through the owning
// Blockchain's blocks_by_hash index, so a parent that has already been
// disposed resolves to "gone" rather than dangling.
type Block struct {
	chain *Blockchain

	Hash        [32]byte
	ParentHash  [32]byte
	BlockNumber uint32

	bloom *bloomfilter.Filter
	maps  []slotted.Array
	bufs  [][]byte

	refcount atomic.Int32
	disposed bool
}

func newBlock(chain *Blockchain, parentHash, hash [32]byte, blockNumber uint32) (*Block, error) {
	bf, err := bloomfilter.NewOptimal(chain.cfg.BloomMaxElements, chain.cfg.BloomFalsePositiveRate)
	if err != nil {
		return nil, err
	}
	return &Block{
		chain:       chain,
		Hash:        hash,
		ParentHash:  parentHash,
		BlockNumber: blockNumber,
		bloom:       bf,
	}, nil
}

// AcquireReadLease takes out a lease, preventing the block's pages
// from being returned to the pool until it is disposed.
func (b *Block) AcquireReadLease() Lease {
	b.refcount.Add(1)
	return Lease{block: b}
}

func (b *Block) currentMap() (slotted.Array, bool) {
	n := len(b.maps)
	if n == 0 {
		return slotted.Array{}, false
	}
	return b.maps[n-1], true
}

// SetRaw writes payload at key into this block's newest map, renting a
// fresh pool page and making it the current map if the existing one
// has no room, per spec.md §4.5's write algorithm.
func (b *Block) SetRaw(key nibble.Path, payload []byte) error {
	if arr, ok := b.currentMap(); ok && arr.TrySet(key, payload) {
		b.bloom.AddHash(key.Hash())
		return nil
	}

	buf, err := b.chain.pool.get()
	if err != nil {
		return err
	}
	arr := slotted.New(buf)
	if !arr.TrySet(key, payload) {
		b.chain.pool.put(buf)
		return ErrValueTooLarge
	}
	b.maps = append(b.maps, arr)
	b.bufs = append(b.bufs, buf)
	b.bloom.AddHash(key.Hash())
	return nil
}

// TryGet walks this block's own maps newest-to-oldest, then its
// ancestors by resolved parent hash, falling through to the database
// reader if the chain bottoms out, per spec.md §4.5's read algorithm.
// The returned Lease must be disposed once the caller is done with the
// returned slice if ok is true and the value came from a block (not
// the database reader, whose pages are never recycled while any
// ReadBatch referencing them lives).
func (b *Block) TryGet(key nibble.Path) (value []byte, lease Lease, ok bool) {
	hash := key.Hash()
	for cur := b; cur != nil; cur = cur.chain.lookupByHash(cur.ParentHash) {
		if !cur.bloom.ContainsHash(hash) {
			continue
		}
		for i := len(cur.maps) - 1; i >= 0; i-- {
			if v, found := cur.maps[i].TryGet(key); found {
				return v, cur.AcquireReadLease(), true
			}
		}
	}
	rb := b.chain.dbReader()
	v, found := b.chain.tryGetFromReader(rb, key)
	return v, Lease{}, found
}

// SetAccount stores acc at accountPath's account key.
func (b *Block) SetAccount(accountPath nibble.Path, acc Account) error {
	return b.SetRaw(encodeAccountKey(accountPath), acc.Encode())
}

// GetAccount decodes the account stored at accountPath, if any.
func (b *Block) GetAccount(accountPath nibble.Path) (Account, Lease, bool) {
	v, lease, ok := b.TryGet(encodeAccountKey(accountPath))
	if !ok {
		return Account{}, Lease{}, false
	}
	acc, valid := DecodeAccount(v)
	if !valid {
		lease.Dispose()
		return Account{}, Lease{}, false
	}
	return acc, lease, true
}

// SetStorage stores value at the storage cell (accountPath, slotPath).
func (b *Block) SetStorage(accountPath, slotPath nibble.Path, value []byte) error {
	return b.SetRaw(encodeStorageKey(accountPath, slotPath), value)
}

// GetStorage returns the value stored at (accountPath, slotPath), if any.
func (b *Block) GetStorage(accountPath, slotPath nibble.Path) ([]byte, Lease, bool) {
	return b.TryGet(encodeStorageKey(accountPath, slotPath))
}

// Commit links the block into the blockchain's indices. It does not
// block on flushing, per spec.md §4.5's commit().
func (b *Block) Commit() {
	b.chain.commit(b)
}

func encodeAccountKey(accountPath nibble.Path) nibble.Path {
	scratch := make([]byte, nibble.ScratchLen(keyspace.EncodeLen(accountPath.Len(), 0)))
	return keyspace.AccountKey(accountPath).Encode(scratch)
}

func encodeStorageKey(accountPath, slotPath nibble.Path) nibble.Path {
	scratch := make([]byte, nibble.ScratchLen(keyspace.EncodeLen(accountPath.Len(), slotPath.Len())))
	return keyspace.StorageKey(accountPath, slotPath).Encode(scratch)
}

// dispose returns the block's pool pages. The caller (Blockchain, once
// the block has been flushed and dropped from both indices) must
// guarantee no outstanding lease remains; dispose panics otherwise,
// since a page returned to the pool while still leased is a use-after-
// free waiting to happen — an invariant violation, not a recoverable
// condition.
func (b *Block) dispose() {
	if b.disposed {
		return
	}
	if n := b.refcount.Load(); n != 0 {
		panic("blockchain: dispose of block with outstanding lease")
	}
	for _, buf := range b.bufs {
		b.chain.pool.put(buf)
	}
	b.maps = nil
	b.bufs = nil
	b.disposed = true
}
