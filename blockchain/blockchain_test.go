package blockchain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paprikadb/paprika/internal/pagestore"
)

func newEndToEndChain(t *testing.T) (*Blockchain, *pagestore.PagedDb) {
	t.Helper()
	db, err := pagestore.OpenMemory(pagestore.Config{MaxReorgDepth: 4, MaxSizeBytes: 1 << 20})
	require.NoError(t, err)
	bc := New(db, Config{PoolPages: 8, FlushBatchWindow: time.Nanosecond})
	t.Cleanup(func() { _ = bc.Close(); _ = db.Close() })
	return bc, db
}

func waitForBlockNumber(t *testing.T, db *pagestore.PagedDb, want uint32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if num, _ := db.Metadata(); num >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for block %d to flush", want)
}

// TestSingleAccountScenario mirrors spec.md §8 scenario 1.
func TestSingleAccountScenario(t *testing.T) {
	bc, db := newEndToEndChain(t)
	var genesis, h1 [32]byte
	h1[0] = 1

	acct := addressPath(t, 0x00)

	blk, err := bc.StartNew(genesis, h1, 1)
	require.NoError(t, err)
	require.NoError(t, blk.SetAccount(acct, Account{Balance: 1, Nonce: 1}))
	blk.Commit()

	got, lease, ok := blk.GetAccount(acct)
	require.True(t, ok)
	assert.Equal(t, Account{Balance: 1, Nonce: 1}, got)
	lease.Dispose()

	require.NoError(t, bc.Finalize(h1))
	waitForBlockNumber(t, db, 1)

	rb := db.BeginReadOnly()
	num, hash := rb.Metadata()
	assert.Equal(t, uint32(1), num)
	assert.Equal(t, h1, hash)

	v, ok := bc.tryGetFromReader(rb, encodeAccountKey(acct))
	require.True(t, ok)
	decoded, valid := DecodeAccount(v)
	require.True(t, valid)
	assert.Equal(t, Account{Balance: 1, Nonce: 1}, decoded)
}

// TestForkScenario mirrors spec.md §8 scenario 2.
func TestForkScenario(t *testing.T) {
	bc, _ := newEndToEndChain(t)
	var genesis, h1a, h1b, h2a [32]byte
	h1a[0], h1b[0], h2a[0] = 0x1A, 0x1B, 0x2A

	acct := addressPath(t, 0x00)

	blk1a, err := bc.StartNew(genesis, h1a, 1)
	require.NoError(t, err)
	require.NoError(t, blk1a.SetAccount(acct, Account{Balance: 1, Nonce: 1}))
	blk1a.Commit()

	blk1b, err := bc.StartNew(genesis, h1b, 1)
	require.NoError(t, err)
	require.NoError(t, blk1b.SetAccount(acct, Account{Balance: 2, Nonce: 2}))
	blk1b.Commit()

	blk2a, err := bc.StartNew(h1a, h2a, 2)
	require.NoError(t, err)

	got, lease, ok := blk2a.GetAccount(acct)
	require.True(t, ok)
	defer lease.Dispose()
	assert.Equal(t, Account{Balance: 1, Nonce: 1}, got, "2A must see its own parent 1A, not the sibling fork 1B")
}

// TestStorageRoundTripScenario mirrors spec.md §8 scenario 3.
func TestStorageRoundTripScenario(t *testing.T) {
	bc, db := newEndToEndChain(t)
	var genesis, h1 [32]byte
	h1[0] = 1

	acct := addressPath(t, 0x00)
	slot := addressPath(t, 0x01)
	otherSlot := addressPath(t, 0x02)

	blk, err := bc.StartNew(genesis, h1, 1)
	require.NoError(t, err)
	require.NoError(t, blk.SetStorage(acct, slot, []byte{0xDE, 0xAD, 0xBE, 0xEF}))
	blk.Commit()

	require.NoError(t, bc.Finalize(h1))
	waitForBlockNumber(t, db, 1)

	rb := db.BeginReadOnly()
	v, ok := bc.tryGetFromReader(rb, encodeStorageKey(acct, slot))
	require.True(t, ok)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, v)

	_, ok = bc.tryGetFromReader(rb, encodeStorageKey(acct, otherSlot))
	assert.False(t, ok)
}

func TestFinalizeRejectsUnknownHash(t *testing.T) {
	bc, _ := newEndToEndChain(t)
	var unknown [32]byte
	unknown[0] = 0xFF
	assert.ErrorIs(t, bc.Finalize(unknown), ErrUnknownBlock)
}

func TestFinalizeRejectsAlreadyFinalizedNumber(t *testing.T) {
	bc, db := newEndToEndChain(t)
	var genesis, h1 [32]byte
	h1[0] = 1

	blk, err := bc.StartNew(genesis, h1, 1)
	require.NoError(t, err)
	blk.Commit()
	require.NoError(t, bc.Finalize(h1))
	waitForBlockNumber(t, db, 1)

	assert.ErrorIs(t, bc.Finalize(h1), ErrAlreadyFinalized)
}

func TestFinalizationIsMonotonic(t *testing.T) {
	bc, db := newEndToEndChain(t)
	var genesis [32]byte
	var hashes [5][32]byte
	parent := genesis

	for i := 0; i < 5; i++ {
		hashes[i][0] = byte(i + 1)
		blk, err := bc.StartNew(parent, hashes[i], uint32(i+1))
		require.NoError(t, err)
		blk.Commit()
		require.NoError(t, bc.Finalize(hashes[i]))
		parent = hashes[i]
	}

	waitForBlockNumber(t, db, 5)
	num, _ := db.Metadata()
	assert.Equal(t, uint32(5), num)
}

func TestCloseDisposesRemainingBlocks(t *testing.T) {
	db, err := pagestore.OpenMemory(pagestore.Config{MaxReorgDepth: 4, MaxSizeBytes: 1 << 20})
	require.NoError(t, err)
	defer db.Close()

	bc := New(db, Config{PoolPages: 4, FlushBatchWindow: time.Nanosecond})
	var genesis, h1 [32]byte
	h1[0] = 1
	blk, err := bc.StartNew(genesis, h1, 1)
	require.NoError(t, err)
	require.NoError(t, blk.SetAccount(addressPath(t, 0x00), Account{Balance: 1}))
	blk.Commit()

	require.NoError(t, bc.Close())
	assert.Equal(t, 0, bc.pool.outstanding(4), "Close must return every block's rented pages")
}
