package paprika

import "github.com/paprikadb/paprika/internal/pagestore"

// DB is the paged store, opened either in-memory or against a
// persistent file, per spec.md §6's open_persistent/open_memory.
type DB struct {
	inner *pagestore.PagedDb
}

// OpenPersistent opens (creating if absent) a memory-mapped store at
// cfg.Dir/cfg.Name.
func OpenPersistent(cfg Config) (*DB, error) {
	inner, err := pagestore.OpenPersistent(cfg.toPagestore())
	if err != nil {
		return nil, err
	}
	return &DB{inner: inner}, nil
}

// OpenMemory opens a purely in-memory store, useful for tests and
// ephemeral nodes.
func OpenMemory(cfg Config) (*DB, error) {
	inner, err := pagestore.OpenMemory(cfg.toPagestore())
	if err != nil {
		return nil, err
	}
	return &DB{inner: inner}, nil
}

// ReadOnlyBatch returns a snapshot bound to the most recently
// committed root, per spec.md §6's read_only_batch().
func (db *DB) ReadOnlyBatch() *ReadBatch {
	return &ReadBatch{inner: db.inner.BeginReadOnly()}
}

// AbandonedPageCount reports how many pages are pinned by retained
// history within the reorg window, a supplemented diagnostic
// (SPEC_FULL.md §12).
func (db *DB) AbandonedPageCount() int {
	return db.inner.AbandonedPageCount()
}

// Metadata returns the block number and hash of the store's most
// recently committed root.
func (db *DB) Metadata() (uint32, [32]byte) {
	return db.inner.Metadata()
}

// Close releases the underlying storage.
func (db *DB) Close() error {
	return db.inner.Close()
}

func (db *DB) String() string {
	return db.inner.String()
}
