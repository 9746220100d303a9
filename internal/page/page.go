// Package page defines the fixed-size, typed storage unit that backs
// every structure in the engine: the page header shared by every page
// type, and the Page type itself as a thin view over a byte buffer.
package page

import "encoding/binary"

// Size is the fixed size, in bytes, of every page in the store.
const Size = 4096

// HeaderSize is the size of the common header every page begins with.
const HeaderSize = 8

// Address identifies a page by its index within the store. Null
// denotes the absence of a page; it is safe to use because address 0
// always belongs to the root ring and is therefore never a valid
// child pointer.
type Address uint64

// Null is the sentinel address meaning "no page".
const Null Address = 0

// Type tags the kind of payload a page carries.
type Type uint8

const (
	TypeRoot Type = iota + 1
	TypeAbandoned
	TypeDataPage
	TypeBottom
	TypeLeafOverflow
)

func (t Type) String() string {
	switch t {
	case TypeRoot:
		return "root"
	case TypeAbandoned:
		return "abandoned"
	case TypeDataPage:
		return "data"
	case TypeBottom:
		return "bottom"
	case TypeLeafOverflow:
		return "leaf-overflow"
	default:
		return "unknown"
	}
}

// Header is the 8-byte struct common to every page: batch id, a
// format version, the page's type tag, its depth in the trie (for
// trie pages; otherwise unused), and a small type-specific metadata
// byte (e.g. fan-out vs leaf mode for a data page).
type Header struct {
	BatchID  uint32
	Version  uint8
	Type     Type
	Level    uint8
	Metadata uint8
}

// CurrentVersion is stamped into every newly written page header.
const CurrentVersion = 1

// Page is a view over a Size-byte buffer: an 8-byte header followed
// by a type-specific payload. It never copies; all mutation happens
// directly on the caller-owned backing buffer.
type Page struct {
	buf []byte
}

// New wraps buf, which must be exactly Size bytes, as a Page.
func New(buf []byte) Page {
	if len(buf) != Size {
		panic("page: buffer is not a full page")
	}
	return Page{buf: buf}
}

// Bytes returns the page's full backing buffer.
func (p Page) Bytes() []byte { return p.buf }

// Header decodes the page's header.
func (p Page) Header() Header {
	b := p.buf
	return Header{
		BatchID:  binary.LittleEndian.Uint32(b[0:4]),
		Version:  b[4],
		Type:     Type(b[5]),
		Level:    b[6],
		Metadata: b[7],
	}
}

// SetHeader encodes h into the page's header bytes.
func (p Page) SetHeader(h Header) {
	b := p.buf
	binary.LittleEndian.PutUint32(b[0:4], h.BatchID)
	b[4] = h.Version
	b[5] = byte(h.Type)
	b[6] = h.Level
	b[7] = h.Metadata
}

// Payload returns the bytes following the header, for a type-specific
// view to interpret.
func (p Page) Payload() []byte { return p.buf[HeaderSize:] }

// Writable reports whether the page can be mutated in place without a
// copy-on-write step, i.e. whether it was already stamped for the
// given batch.
func (p Page) Writable(batchID uint32) bool {
	return p.Header().BatchID == batchID
}

// Reset zeroes the header and payload, leaving the page as if freshly
// allocated.
func (p Page) Reset() {
	for i := range p.buf {
		p.buf[i] = 0
	}
}

// Init stamps a freshly allocated or reused page with a fresh header,
// zeroing the payload.
func (p Page) Init(batchID uint32, typ Type, level uint8, metadata uint8) {
	p.Reset()
	p.SetHeader(Header{BatchID: batchID, Version: CurrentVersion, Type: typ, Level: level, Metadata: metadata})
}
