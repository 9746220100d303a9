package blockchain

import "encoding/binary"

// Account is the fixed-shape value stored at an account key, per
// spec.md §1's "mapping from 32-byte account addresses to accounts".
// RLP encoding and Keccak-derived storage roots are out of scope
// (spec.md §1's "OUT OF SCOPE... RLP/Keccak cryptographic primitives");
// Account carries the fields a caller needs without committing to any
// particular hash-tree encoding of them.
type Account struct {
	Balance  uint64
	Nonce    uint64
	CodeHash [32]byte
}

const accountEncodedSize = 8 + 8 + 32

// Encode packs a into a fixed-layout byte slice, little-endian per
// spec.md §6's "Byte order is little-endian".
func (a Account) Encode() []byte {
	b := make([]byte, accountEncodedSize)
	binary.LittleEndian.PutUint64(b[0:8], a.Balance)
	binary.LittleEndian.PutUint64(b[8:16], a.Nonce)
	copy(b[16:48], a.CodeHash[:])
	return b
}

// DecodeAccount is the inverse of Encode.
func DecodeAccount(b []byte) (Account, bool) {
	if len(b) != accountEncodedSize {
		return Account{}, false
	}
	var a Account
	a.Balance = binary.LittleEndian.Uint64(b[0:8])
	a.Nonce = binary.LittleEndian.Uint64(b[8:16])
	copy(a.CodeHash[:], b[16:48])
	return a, true
}
