package pagestore

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/paprikadb/paprika/internal/page"
)

// rootPage is the interpretation of a root-ring page's payload, per
// spec.md §6: trie root address, last-committed block metadata, the
// head of this batch's abandoned-page chain, and a page-count
// watermark, closed off by a checksum that rejects torn writes.
// Grounded on the teacher's metaHeader/mmapPsMetadata, generalized
// from a single metadata page to a ring of R root pages (one per
// recent batch) as §4.4/§6 require.
type rootPage struct {
	BlockNumber   uint32
	BlockHash     [32]byte
	TrieRoot      page.Address
	AbandonedHead page.Address
	PageCount     uint64
}

const (
	rootChecksumOffset = page.HeaderSize + 4 + 32 + 8 + 8 + 8
	rootEncodedSize    = rootChecksumOffset + 4
)

func (r rootPage) encode(p page.Page) {
	b := p.Payload()
	off := 0
	binary.LittleEndian.PutUint32(b[off:], r.BlockNumber)
	off += 4
	copy(b[off:off+32], r.BlockHash[:])
	off += 32
	binary.LittleEndian.PutUint64(b[off:], uint64(r.TrieRoot))
	off += 8
	binary.LittleEndian.PutUint64(b[off:], uint64(r.AbandonedHead))
	off += 8
	binary.LittleEndian.PutUint64(b[off:], r.PageCount)
	off += 8

	sum := crc32.ChecksumIEEE(p.Bytes()[:rootChecksumOffset])
	binary.LittleEndian.PutUint32(b[off:], sum)
}

func decodeRootPage(p page.Page) (rootPage, bool) {
	b := p.Payload()
	off := 0
	var r rootPage
	r.BlockNumber = binary.LittleEndian.Uint32(b[off:])
	off += 4
	copy(r.BlockHash[:], b[off:off+32])
	off += 32
	r.TrieRoot = page.Address(binary.LittleEndian.Uint64(b[off:]))
	off += 8
	r.AbandonedHead = page.Address(binary.LittleEndian.Uint64(b[off:]))
	off += 8
	r.PageCount = binary.LittleEndian.Uint64(b[off:])
	off += 8
	wantSum := binary.LittleEndian.Uint32(b[off:])

	gotSum := crc32.ChecksumIEEE(p.Bytes()[:rootChecksumOffset])
	return r, gotSum == wantSum
}

// abandonedPage is the payload of a page.TypeAbandoned page: a chain
// link of addresses freed by one batch, chained via next when a
// single page's capacity (abandonedCapacity entries) is exceeded.
// Grounded on freelist2.go's chained-page accumulation in build(),
// generalized from a binary heap to a simple append-only chain since
// PagedDb never needs priority order, only FIFO-ish drain.
type abandonedPage struct{}

const (
	abandonedHeaderSize = 10 // count:u16 + next:Address(8)
	abandonedCapacity   = (page.Size - page.HeaderSize - abandonedHeaderSize) / 8
)

func abandonedCount(p page.Page) int {
	return int(binary.LittleEndian.Uint16(p.Payload()[0:2]))
}

func setAbandonedCount(p page.Page, n int) {
	binary.LittleEndian.PutUint16(p.Payload()[0:2], uint16(n))
}

func abandonedNext(p page.Page) page.Address {
	return page.Address(binary.LittleEndian.Uint64(p.Payload()[2:10]))
}

func setAbandonedNext(p page.Page, addr page.Address) {
	binary.LittleEndian.PutUint64(p.Payload()[2:10], uint64(addr))
}

func abandonedEntry(p page.Page, i int) page.Address {
	off := abandonedHeaderSize + i*8
	return page.Address(binary.LittleEndian.Uint64(p.Payload()[off : off+8]))
}

func setAbandonedEntry(p page.Page, i int, addr page.Address) {
	off := abandonedHeaderSize + i*8
	binary.LittleEndian.PutUint64(p.Payload()[off:off+8], uint64(addr))
}
