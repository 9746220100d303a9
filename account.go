package paprika

import "github.com/paprikadb/paprika/blockchain"

// Account mirrors Ethereum-style world-state account data, per
// spec.md §1/§3.
type Account = blockchain.Account

// DecodeAccount decodes b as an Account, reporting whether b had the
// expected fixed-size encoded layout.
func DecodeAccount(b []byte) (Account, bool) {
	return blockchain.DecodeAccount(b)
}
