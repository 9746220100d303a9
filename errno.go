package paprika

import (
	"errors"
	"fmt"

	"github.com/paprikadb/paprika/blockchain"
)

// Sentinel error taxonomy for the public API, per the error-kind
// classification in spec.md §7: Capacity never escapes as an error (it
// is always a try_set boolean deeper in the stack). wrapBlockchainErr
// maps the blockchain package's sentinels onto PoolExhausted,
// UnknownBlock, AlreadyFinalized and Closed, and a too-large value onto
// Invariant; any other error, including the plain error that
// blockchain.runOneBatch makes of a recovered panic, is returned
// unchanged. Errors from the paged store are returned as they are, so
// nothing in the package currently returns ErrCorruptPage or ErrIO.
var (
	ErrInvariant        = errors.New("paprika: invariant violated")
	ErrCorruptPage      = errors.New("paprika: corrupt page")
	ErrIO               = errors.New("paprika: io failure")
	ErrPoolExhausted    = errors.New("paprika: page pool exhausted")
	ErrUnknownBlock     = errors.New("paprika: unknown block hash")
	ErrAlreadyFinalized = errors.New("paprika: block number already finalized")
	ErrClosed           = errors.New("paprika: closed")
)

// wrapBlockchainErr maps the blockchain package's local sentinels onto
// the public taxonomy at the API boundary, per SPEC_FULL.md §10.2.
func wrapBlockchainErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, blockchain.ErrPoolExhausted):
		return fmt.Errorf("%w: %v", ErrPoolExhausted, err)
	case errors.Is(err, blockchain.ErrUnknownBlock):
		return fmt.Errorf("%w: %v", ErrUnknownBlock, err)
	case errors.Is(err, blockchain.ErrAlreadyFinalized):
		return fmt.Errorf("%w: %v", ErrAlreadyFinalized, err)
	case errors.Is(err, blockchain.ErrClosed):
		return fmt.Errorf("%w: %v", ErrClosed, err)
	case errors.Is(err, blockchain.ErrValueTooLarge):
		return fmt.Errorf("%w: %v", ErrInvariant, err)
	default:
		return err
	}
}
