// Package nibble implements NibblePath, a packed sequence of 4-bit
// nibbles used to address positions in the trie-shaped key space.
//
// A path is a borrowed view over a byte slice plus a starting
// alignment bit: oddStart == false means the first nibble occupies
// the high half of buf[0]; oddStart == true means it occupies the low
// half. Slicing never copies; only Append/AppendNibble write into a
// caller-supplied scratch buffer.
package nibble

import "hash/crc32"

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Path is a read-only view over zero or more nibbles.
type Path struct {
	buf      []byte
	oddStart bool
	length   int
}

// Empty is the zero-length path, used as the Merkle root key's account path.
var Empty = Path{}

// FromBytes builds a Path over buf starting at the nibble index
// nibbleFrom (0 == high nibble of buf[0]) and running for length
// nibbles. buf must carry enough bytes to cover the range.
func FromBytes(buf []byte, nibbleFrom, length int) Path {
	byteOff := nibbleFrom / 2
	return Path{
		buf:      buf[byteOff:],
		oddStart: nibbleFrom%2 == 1,
		length:   length,
	}
}

// Len reports the number of nibbles in the path.
func (p Path) Len() int { return p.length }

func (p Path) startOffset() int {
	if p.oddStart {
		return 1
	}
	return 0
}

// Get returns the nibble at logical index i, i in [0, Len()).
func (p Path) Get(i int) byte {
	pos := p.startOffset() + i
	b := p.buf[pos/2]
	if pos%2 == 0 {
		return b >> 4
	}
	return b & 0x0F
}

// byteAt returns the raw byte holding nibbles i (high) and i+1 (low).
// The caller must guarantee that nibble i falls on a byte boundary,
// i.e. (startOffset()+i) is even.
func (p Path) byteAt(i int) byte {
	pos := p.startOffset() + i
	return p.buf[pos/2]
}

// SliceFrom drops the first n nibbles, returning a view over the
// remainder without copying.
func (p Path) SliceFrom(n int) Path {
	pos := p.startOffset() + n
	return Path{
		buf:      p.buf[pos/2:],
		oddStart: pos%2 == 1,
		length:   p.length - n,
	}
}

// SliceTo truncates the path to its first n nibbles.
func (p Path) SliceTo(n int) Path {
	return Path{buf: p.buf, oddStart: p.oddStart, length: n}
}

// FirstDifferent returns the index of the first nibble at which p and
// other disagree, or min(p.Len(), other.Len()) if one is a prefix of
// the other.
func (p Path) FirstDifferent(other Path) int {
	minLen := p.length
	if other.length < minLen {
		minLen = other.length
	}
	if p.oddStart != other.oddStart {
		for i := 0; i < minLen; i++ {
			if p.Get(i) != other.Get(i) {
				return i
			}
		}
		return minLen
	}
	i := 0
	if p.oddStart && minLen > 0 {
		if p.Get(0) != other.Get(0) {
			return 0
		}
		i = 1
	}
	for i < minLen {
		if i+1 < minLen {
			a, b := p.byteAt(i), other.byteAt(i)
			if a == b {
				i += 2
				continue
			}
			if (a >> 4) != (b >> 4) {
				return i
			}
			return i + 1
		}
		if p.Get(i) != other.Get(i) {
			return i
		}
		i++
	}
	return minLen
}

// Equals reports whether p and other denote the same nibble
// sequence, irrespective of their internal start alignment.
func (p Path) Equals(other Path) bool {
	return p.length == other.length && p.FirstDifferent(other) == p.length
}

func setNibble(dst []byte, i int, v byte) {
	byteIdx := i / 2
	if i%2 == 0 {
		dst[byteIdx] = (dst[byteIdx] & 0x0F) | (v << 4)
	} else {
		dst[byteIdx] = (dst[byteIdx] & 0xF0) | (v & 0x0F)
	}
}

func packInto(dst []byte, p Path) {
	for i := 0; i < p.length; i++ {
		setNibble(dst, i, p.Get(i))
	}
}

// ScratchLen returns the byte size a scratch buffer needs to hold a
// path of the given nibble length plus room for one more nibble.
func ScratchLen(length int) int {
	return length/2 + 2
}

// AppendNibble returns a new path equal to p with n appended, packed
// into the caller-provided scratch buffer (sized via ScratchLen).
func (p Path) AppendNibble(n byte, scratch []byte) Path {
	need := p.length/2 + 1
	clear(scratch[:need])
	packInto(scratch, p)
	setNibble(scratch, p.length, n)
	return Path{buf: scratch, oddStart: false, length: p.length + 1}
}

// Append returns a new path equal to p followed by other, packed into
// the caller-provided scratch buffer.
func (p Path) Append(other Path, scratch []byte) Path {
	total := p.length + other.length
	need := total/2 + 1
	clear(scratch[:need])
	packInto(scratch, p)
	for i := 0; i < other.length; i++ {
		setNibble(scratch, p.length+i, other.Get(i))
	}
	return Path{buf: scratch, oddStart: false, length: total}
}

// WriteTo serializes p as a one-byte preamble followed by the packed
// nibble payload, returning the number of bytes written. dst must be
// at least 1+ceil(Len()/2) bytes.
func (p Path) WriteTo(dst []byte) int {
	odd := byte(p.length & 1)
	dst[0] = byte(p.length<<1) | odd
	payloadLen := (p.length + 1) / 2
	clear(dst[1 : 1+payloadLen])
	packInto(dst[1:], p)
	return 1 + payloadLen
}

// ReadFrom parses a Path previously written by WriteTo, returning the
// path (a view over src, not copied) and the unconsumed remainder.
func ReadFrom(src []byte) (Path, []byte, error) {
	if len(src) == 0 {
		return Path{}, nil, errShortBuffer
	}
	preamble := src[0]
	length := int(preamble >> 1)
	odd := preamble & 1
	payloadLen := (length + 1) / 2
	if len(src) < 1+payloadLen {
		return Path{}, nil, errShortBuffer
	}
	payload := src[1 : 1+payloadLen]
	if odd == 1 && payloadLen > 0 {
		payload[payloadLen-1] &= 0xF0
	}
	return Path{buf: payload, oddStart: false, length: length}, src[1+payloadLen:], nil
}

// Hash combines the path's length with a checksum over its nibbles.
// Equal paths (per Equals) always hash equal, regardless of internal
// start alignment.
func (p Path) Hash() uint64 {
	if p.oddStart && p.length > 0 {
		// Repack into a byte-aligned copy so the checksum below sees the
		// same bytes as it would for an aligned path with equal nibbles.
		aligned := make([]byte, ScratchLen(p.length))
		packInto(aligned, p)
		p = Path{buf: aligned, oddStart: false, length: p.length}
	}
	h := uint64(p.length) * 1099511628211
	fullBytes := p.length / 2
	if fullBytes > 0 {
		h = h*31 + uint64(crc32.Checksum(p.buf[:fullBytes], castagnoli))
	}
	if p.length%2 == 1 {
		trail := p.buf[fullBytes] >> 4
		h = h*31 + uint64(trail) + 7
	}
	return h
}

// Bytes returns the minimal backing slice covering the path's
// nibbles, starting at a byte boundary; it is only valid when
// oddStart is false (e.g. after ReadFrom or AppendNibble/Append).
func (p Path) Bytes() []byte {
	n := (p.length + 1) / 2
	return p.buf[:n]
}

// OddStart reports whether the path's first nibble sits in the low
// half of its first backing byte.
func (p Path) OddStart() bool { return p.oddStart }

// PackNibbles writes p's nibbles into dst with no preamble byte,
// returning the number of bytes written (ceil(Len()/2)). Used where
// the nibble count is already known from other context, such as a
// slotted array entry carrying an explicit key length.
func PackNibbles(dst []byte, p Path) int {
	n := (p.length + 1) / 2
	clear(dst[:n])
	packInto(dst, p)
	return n
}

// FromNibbles builds a Path from a slice of individual nibble values,
// packing them into the caller-provided scratch buffer.
func FromNibbles(nibbles []byte, scratch []byte) Path {
	need := len(nibbles)/2 + 1
	clear(scratch[:need])
	for i, v := range nibbles {
		setNibble(scratch, i, v)
	}
	return Path{buf: scratch, oddStart: false, length: len(nibbles)}
}
