// Package trie implements the nibble-fan-out trie page: a recursive
// node that holds a local SlottedArray for entries whose residual key
// starts here, plus either 16 child addresses (fan-out mode) or one
// overflow page address (leaf mode, used while a subtree is still
// small enough to stay flat).
package trie

import (
	"encoding/binary"

	"github.com/paprikadb/paprika/internal/nibble"
	"github.com/paprikadb/paprika/internal/page"
	"github.com/paprikadb/paprika/internal/slotted"
)

// Mode selects a DataPage's payload interpretation.
type Mode uint8

const (
	ModeFanout Mode = 0
	ModeLeaf   Mode = 1
)

const (
	bucketCount     = 16
	bucketTableSize = bucketCount * 8
	overflowAddrSize = 8
)

// Node is a view over a DataPage or Bottom page's payload.
type Node struct {
	Page page.Page
}

func (n Node) Mode() Mode { return Mode(n.Page.Header().Metadata) }

func (n Node) setMode(m Mode) {
	h := n.Page.Header()
	h.Metadata = uint8(m)
	n.Page.SetHeader(h)
}

func (n Node) Level() uint8 { return n.Page.Header().Level }

// Local returns the slotted array holding entries rooted at this
// node, located after the child-address table (16 addresses in
// fan-out mode, 1 in leaf mode).
func (n Node) Local() slotted.Array {
	payload := n.Page.Payload()
	if n.Mode() == ModeFanout {
		return slotted.New(payload[bucketTableSize:])
	}
	return slotted.New(payload[overflowAddrSize:])
}

// Bucket returns the child address for nibble nib (fan-out mode only).
func (n Node) Bucket(nib byte) page.Address {
	off := int(nib) * 8
	return page.Address(binary.LittleEndian.Uint64(n.Page.Payload()[off : off+8]))
}

func (n Node) SetBucket(nib byte, addr page.Address) {
	off := int(nib) * 8
	binary.LittleEndian.PutUint64(n.Page.Payload()[off:off+8], uint64(addr))
}

// OverflowAddr returns the leaf's single overflow child (leaf mode only).
func (n Node) OverflowAddr() page.Address {
	return page.Address(binary.LittleEndian.Uint64(n.Page.Payload()[0:8]))
}

func (n Node) SetOverflowAddr(addr page.Address) {
	binary.LittleEndian.PutUint64(n.Page.Payload()[0:8], uint64(addr))
}

// Clear zeroes the slotted-array header and all child addresses,
// leaving the page header (and therefore its mode) untouched.
func (n Node) Clear() {
	payload := n.Page.Payload()
	for i := range payload {
		payload[i] = 0
	}
}

// addrSlot is a mutable reference to an Address stored either in a
// local Go variable (the caller's root pointer) or inline inside a
// page's payload (a bucket or the leaf overflow field), letting
// ensureWritable's copy-on-write rewrite whichever one it was handed.
type addrSlot struct {
	get func() page.Address
	set func(page.Address)
}

func varSlot(addr *page.Address) addrSlot {
	return addrSlot{
		get: func() page.Address { return *addr },
		set: func(v page.Address) { *addr = v },
	}
}

func (n Node) bucketSlot(nib byte) addrSlot {
	return addrSlot{
		get: func() page.Address { return n.Bucket(nib) },
		set: func(v page.Address) { n.SetBucket(nib, v) },
	}
}

func (n Node) overflowSlot() addrSlot {
	return addrSlot{get: n.OverflowAddr, set: n.SetOverflowAddr}
}

type kv struct {
	key   nibble.Path
	value []byte
}

// copyKV snapshots a slotted-array enumeration callback's (key, value)
// pair, which are only valid for the duration of the callback.
func copyKV(k nibble.Path, v []byte) kv {
	buf := append([]byte(nil), k.Bytes()...)
	return kv{key: nibble.FromBytes(buf, 0, k.Len()), value: append([]byte(nil), v...)}
}
