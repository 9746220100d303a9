// Package keyspace encodes the engine's fixed account/storage/merkle
// key triples into the single canonical nibble path that the trie and
// slotted array actually index on.
package keyspace

import "github.com/paprikadb/paprika/internal/nibble"

// Type distinguishes the three key shapes the engine ever stores.
type Type uint8

const (
	Account Type = iota
	StorageCell
	Merkle
)

// Key is the triple (path, type, storage_path) described by the data
// model: path is the account-level nibble path (empty for the global
// Merkle root), storage_path is non-empty only for StorageCell keys
// and for Merkle nodes recorded inside an account's storage trie.
type Key struct {
	Type        Type
	Path        nibble.Path
	StoragePath nibble.Path
}

// AccountKey addresses an account's own record.
func AccountKey(accountPath nibble.Path) Key {
	return Key{Type: Account, Path: accountPath}
}

// StorageKey addresses a single storage cell under an account.
func StorageKey(accountPath, slotPath nibble.Path) Key {
	return Key{Type: StorageCell, Path: accountPath, StoragePath: slotPath}
}

// MerkleKey addresses a Merkle trie node. An empty accountPath denotes
// the global state root trie; a non-empty nodePath denotes a node
// inside that account's own storage trie.
func MerkleKey(accountPath, nodePath nibble.Path) Key {
	return Key{Type: Merkle, Path: accountPath, StoragePath: nodePath}
}

// EncodeLen returns the number of nibbles Encode will produce for a
// key with path length pathLen and storage-path length storageLen,
// for sizing a scratch buffer via nibble.ScratchLen.
func EncodeLen(pathLen, storageLen int) int {
	return 1 + pathLen + storageLen
}

// Encode packs k into a single nibble path: a one-nibble type tag
// followed by the account path then the storage path, so that keys of
// different types or accounts never alias each other in the slotted
// array even when their nibble suffixes coincide.
func (k Key) Encode(scratch []byte) nibble.Path {
	n := EncodeLen(k.Path.Len(), k.StoragePath.Len())
	nibbles := make([]byte, n)
	nibbles[0] = byte(k.Type)
	idx := 1
	for i := 0; i < k.Path.Len(); i++ {
		nibbles[idx] = k.Path.Get(i)
		idx++
	}
	for i := 0; i < k.StoragePath.Len(); i++ {
		nibbles[idx] = k.StoragePath.Get(i)
		idx++
	}
	return nibble.FromNibbles(nibbles, scratch)
}
