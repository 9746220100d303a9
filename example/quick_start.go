package main

import (
	"fmt"

	"github.com/paprikadb/paprika"
)

func main() {
	db, err := paprika.OpenMemory(paprika.Config{
		MaxReorgDepth: 128,
		MaxSizeBytes:  16 << 20,
	})
	if err != nil {
		panic(err)
	}
	defer db.Close()

	chain := paprika.NewBlockchain(db, paprika.BlockchainConfig{})
	defer chain.Close()

	var genesis, h1 [32]byte
	h1[0] = 1

	var addr [32]byte
	addr[0] = 0xAB

	blk, err := chain.StartNew(genesis, h1, 1)
	if err != nil {
		panic(fmt.Errorf("start block 1: %w", err))
	}
	if err := blk.SetAccount(addr, paprika.Account{Balance: 1, Nonce: 1}); err != nil {
		panic(fmt.Errorf("set account: %w", err))
	}
	blk.Commit()

	acc, lease, ok := blk.GetAccount(addr)
	if !ok {
		panic("account not found on its own block")
	}
	lease.Dispose()
	fmt.Printf("block 1 sees balance=%d nonce=%d\n", acc.Balance, acc.Nonce)

	if err := chain.Finalize(h1); err != nil {
		panic(fmt.Errorf("finalize block 1: %w", err))
	}
}
