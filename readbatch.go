package paprika

import (
	"github.com/paprikadb/paprika/internal/keyspace"
	"github.com/paprikadb/paprika/internal/nibble"
	"github.com/paprikadb/paprika/internal/pagestore"
	"github.com/paprikadb/paprika/internal/trie"
)

// ReadBatch is an immutable snapshot bound to the root it was opened
// against, per spec.md §6's read_only_batch().
type ReadBatch struct {
	inner *pagestore.ReadBatch
}

func addressPath(addr [32]byte) nibble.Path {
	return nibble.FromBytes(addr[:], 0, 64)
}

func readAccountKey(addr [32]byte) nibble.Path {
	accountPath := addressPath(addr)
	scratch := make([]byte, nibble.ScratchLen(keyspace.EncodeLen(accountPath.Len(), 0)))
	return keyspace.AccountKey(accountPath).Encode(scratch)
}

func readStorageKey(addr, slot [32]byte) nibble.Path {
	accountPath, slotPath := addressPath(addr), addressPath(slot)
	scratch := make([]byte, nibble.ScratchLen(keyspace.EncodeLen(accountPath.Len(), slotPath.Len())))
	return keyspace.StorageKey(accountPath, slotPath).Encode(scratch)
}

// GetAccount returns the account stored at addr, if any.
func (rb *ReadBatch) GetAccount(addr [32]byte) (Account, bool) {
	v, ok := trie.TryGet(rb.inner, rb.inner.Root(), readAccountKey(addr))
	if !ok {
		return Account{}, false
	}
	return DecodeAccount(v)
}

// GetStorage returns the value stored at the storage cell
// (addr, slot), if any.
func (rb *ReadBatch) GetStorage(addr, slot [32]byte) ([]byte, bool) {
	return trie.TryGet(rb.inner, rb.inner.Root(), readStorageKey(addr, slot))
}

// Metadata returns the block number and hash this snapshot was opened
// against.
func (rb *ReadBatch) Metadata() (uint32, [32]byte) {
	return rb.inner.Metadata()
}
