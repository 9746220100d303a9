package blockchain

import "errors"

// Sentinel errors surfaced by the blockchain overlay, per spec.md §7's
// error kinds. The top-level API package maps these onto its own
// taxonomy; within this package they are returned as-is.
var (
	// ErrPoolExhausted means no pool page was available to a block.
	// Fatal to the current block; the caller must wait for flushes to
	// return pages or grow the pool.
	ErrPoolExhausted = errors.New("blockchain: page pool exhausted")

	// ErrUnknownBlock means finalize (or any hash lookup) named a hash
	// not present in blocks_by_hash.
	ErrUnknownBlock = errors.New("blockchain: unknown block hash")

	// ErrAlreadyFinalized means finalize was called on a block whose
	// number is not strictly greater than last_finalized.
	ErrAlreadyFinalized = errors.New("blockchain: block number already finalized")

	// ErrClosed means an operation was attempted after Close.
	ErrClosed = errors.New("blockchain: closed")

	// ErrValueTooLarge means a single key/value pair cannot fit in an
	// otherwise-empty page; no amount of page rotation helps.
	ErrValueTooLarge = errors.New("blockchain: value too large for a page")
)
