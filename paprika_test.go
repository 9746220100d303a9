package paprika

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMemorySingleAccountFinalizeAndReadBack(t *testing.T) {
	db, err := OpenMemory(Config{MaxReorgDepth: 2, MaxSizeBytes: 16 << 20})
	require.NoError(t, err)
	defer db.Close()

	chain := NewBlockchain(db, BlockchainConfig{FlushBatchWindow: time.Nanosecond})
	defer chain.Close()

	var genesis, h1, addr [32]byte
	h1[0] = 1
	addr[0] = 0xAB

	blk, err := chain.StartNew(genesis, h1, 1)
	require.NoError(t, err)
	require.NoError(t, blk.SetAccount(addr, Account{Balance: 1, Nonce: 1}))
	blk.Commit()

	acc, lease, ok := blk.GetAccount(addr)
	require.True(t, ok)
	assert.Equal(t, Account{Balance: 1, Nonce: 1}, acc)
	lease.Dispose()

	require.NoError(t, chain.Finalize(h1))

	deadline := time.Now().Add(2 * time.Second)
	for {
		if num, _ := db.Metadata(); num >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for block 1 to flush")
		}
		time.Sleep(time.Millisecond)
	}

	rb := db.ReadOnlyBatch()
	num, hash := rb.Metadata()
	assert.Equal(t, uint32(1), num)
	assert.Equal(t, h1, hash)

	got, ok := rb.GetAccount(addr)
	require.True(t, ok)
	assert.Equal(t, Account{Balance: 1, Nonce: 1}, got)
}

func TestOpenPersistentRecoversAfterClose(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir, Name: "quick_start", MaxReorgDepth: 4, MaxSizeBytes: 4 << 20}

	db, err := OpenPersistent(cfg)
	require.NoError(t, err)

	chain := NewBlockchain(db, BlockchainConfig{FlushBatchWindow: time.Nanosecond, CommitOptions: CommitDataAndRoot})

	var genesis, h1, addr [32]byte
	h1[0] = 1
	addr[0] = 0xCD

	blk, err := chain.StartNew(genesis, h1, 1)
	require.NoError(t, err)
	require.NoError(t, blk.SetAccount(addr, Account{Balance: 42, Nonce: 3}))
	blk.Commit()
	require.NoError(t, chain.Finalize(h1))

	deadline := time.Now().Add(2 * time.Second)
	for {
		if num, _ := db.Metadata(); num >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for block 1 to flush")
		}
		time.Sleep(time.Millisecond)
	}

	require.NoError(t, chain.Close())
	require.NoError(t, db.Close())

	reopened, err := OpenPersistent(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	num, hash := reopened.Metadata()
	assert.Equal(t, uint32(1), num)
	assert.Equal(t, h1, hash)

	rb := reopened.ReadOnlyBatch()
	got, ok := rb.GetAccount(addr)
	require.True(t, ok)
	assert.Equal(t, Account{Balance: 42, Nonce: 3}, got)
}

func TestFinalizeRejectsUnknownAndAlreadyFinalized(t *testing.T) {
	db, err := OpenMemory(Config{MaxReorgDepth: 2, MaxSizeBytes: 16 << 20})
	require.NoError(t, err)
	defer db.Close()

	chain := NewBlockchain(db, BlockchainConfig{FlushBatchWindow: time.Nanosecond})
	defer chain.Close()

	var unknown [32]byte
	unknown[0] = 0xFF
	assert.ErrorIs(t, chain.Finalize(unknown), ErrUnknownBlock)

	var genesis, h1 [32]byte
	h1[0] = 1
	blk, err := chain.StartNew(genesis, h1, 1)
	require.NoError(t, err)
	blk.Commit()
	require.NoError(t, chain.Finalize(h1))

	deadline := time.Now().Add(2 * time.Second)
	for {
		if num, _ := db.Metadata(); num >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for block 1 to flush")
		}
		time.Sleep(time.Millisecond)
	}
	assert.ErrorIs(t, chain.Finalize(h1), ErrAlreadyFinalized)
}
