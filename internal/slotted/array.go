// Package slotted implements SlottedArray, the in-page dictionary that
// maps nibble-path keys to byte values inside a fixed-size buffer.
//
// The buffer is split into an 8-byte header followed by a data region.
// Slots grow from the low end of the data region upward in fixed
// 4-byte records; entry payloads grow from the high end downward.
// Deleted slots are tagged with a reserved preamble value rather than
// removed in place, and are reclaimed either eagerly (when they sit at
// the tail of the slot array) or by a full defragmentation pass.
package slotted

import (
	"encoding/binary"

	"github.com/paprikadb/paprika/internal/nibble"
)

const (
	headerSize = 8
	slotSize   = 4

	// lengthClass values packed into the low 2 bits of a slot's 3-bit preamble.
	classShort = 0 // key length < 4, fully packed into the hash plus its own length
	classFull  = 1 // key length == 4, fully packed into the hash
	classLong  = 2 // key length >= 5, outer 4 nibbles in the hash, rest in the payload

	// deletedPreamble is a preamble value no live entry can produce
	// (lengthClass only ever takes on 0, 1 or 2).
	deletedPreamble = 0x7
)

// Array is a view over a caller-owned buffer holding one slotted
// array's header, slots and payloads. TryGet and Delete never
// allocate; Defragment (and TrySet when it defragments), enumeration
// and MoveNonEmptyKeysTo allocate scratch space.
type Array struct {
	buf []byte
}

// New wraps buf, whose length must be at least headerSize, as a
// slotted array. The header is assumed to already be zeroed for a
// fresh page, or to carry a previously persisted array's state.
func New(buf []byte) Array {
	return Array{buf: buf}
}

// Clear resets the array to empty, discarding all entries.
func (a Array) Clear() {
	for i := 0; i < headerSize; i++ {
		a.buf[i] = 0
	}
}

func (a Array) low() int      { return int(binary.LittleEndian.Uint16(a.buf[0:2])) }
func (a Array) high() int     { return int(binary.LittleEndian.Uint16(a.buf[2:4])) }
func (a Array) deleted() int  { return int(binary.LittleEndian.Uint16(a.buf[4:6])) }
func (a Array) setLow(v int)  { binary.LittleEndian.PutUint16(a.buf[0:2], uint16(v)) }
func (a Array) setHigh(v int) { binary.LittleEndian.PutUint16(a.buf[2:4], uint16(v)) }
func (a Array) setDeleted(v int) {
	binary.LittleEndian.PutUint16(a.buf[4:6], uint16(v))
}

func (a Array) data() []byte { return a.buf[headerSize:] }
func (a Array) dataLen() int { return len(a.buf) - headerSize }

// Count reports the number of live entries.
func (a Array) Count() int { return a.low()/slotSize - a.deleted() }

// Taken reports the number of data-region bytes currently in use by
// slots and payloads combined.
func (a Array) Taken() int { return a.low() + a.high() }

func (a Array) slotCount() int { return a.low() / slotSize }

func (a Array) slotRaw(i int) uint16 {
	off := i * slotSize
	return binary.LittleEndian.Uint16(a.data()[off : off+2])
}

func (a Array) slotHash(i int) uint16 {
	off := i * slotSize
	return binary.LittleEndian.Uint16(a.data()[off+2 : off+4])
}

func (a Array) setSlot(i int, raw, hash uint16) {
	off := i * slotSize
	d := a.data()
	binary.LittleEndian.PutUint16(d[off:off+2], raw)
	binary.LittleEndian.PutUint16(d[off+2:off+4], hash)
}

func slotPreamble(raw uint16) byte    { return byte(raw >> 13) }
func slotItemAddress(raw uint16) int  { return int(raw & 0x1FFF) }
func packRaw(preamble byte, addr int) uint16 {
	return uint16(preamble)<<13 | uint16(addr&0x1FFF)
}

// encoded summarizes everything try_set/try_get need to know about a
// key before touching the buffer.
type encoded struct {
	hash     uint16
	preamble byte
	class    byte
	trimmed  nibble.Path
	hasTrim  bool
}

func encodeKey(key nibble.Path) encoded {
	l := key.Len()
	var h uint16
	var class byte
	var trimmed nibble.Path
	var hasTrim bool

	switch {
	case l < 4:
		class = classShort
		if l > 0 {
			h |= uint16(key.Get(0)) << 12
		}
		if l > 1 {
			h |= uint16(key.Get(1)) << 8
		}
		if l > 2 {
			h |= uint16(key.Get(2)) << 4
		}
		h |= uint16(l)
	case l == 4:
		class = classFull
		h = uint16(key.Get(0))<<12 | uint16(key.Get(1))<<8 | uint16(key.Get(2))<<4 | uint16(key.Get(3))
	default:
		class = classLong
		h = uint16(key.Get(0))<<12 | uint16(key.Get(1))<<8 | uint16(key.Get(2))<<4 | uint16(key.Get(3))
		trimmed = key.SliceFrom(4)
		hasTrim = true
	}

	// The preamble carries only the length class: key comparison must
	// stay invariant under a NibblePath's internal start alignment, so
	// the class is the only part of the key's shape worth indexing on.
	return encoded{hash: h, preamble: class, class: class, trimmed: trimmed, hasTrim: hasTrim}
}

// entry describes a decoded payload body, pointing back into the
// array's own buffer (no copies).
type entry struct {
	keyLen  int
	trimmed []byte
	value   []byte
	size    int // total bytes occupied starting at the entry's address
}

func (a Array) readEntry(addr int, class byte) entry {
	d := a.data()
	p := addr
	valueLen := int(binary.LittleEndian.Uint16(d[p : p+2]))
	p += 2
	var keyLen int
	var trimmed []byte
	if class == classLong {
		keyLen = int(d[p])
		p++
		trimmedLen := (keyLen - 4 + 1) / 2
		trimmed = d[p : p+trimmedLen]
		p += trimmedLen
	}
	value := d[p : p+valueLen]
	p += valueLen
	return entry{keyLen: keyLen, trimmed: trimmed, value: value, size: p - addr}
}

func bodySize(class byte, trimmedNibbleLen, valueLen int) int {
	size := 2 + valueLen
	if class == classLong {
		size += 1 + (trimmedNibbleLen+1)/2
	}
	return size
}

func (a Array) writeEntry(addr int, class byte, keyLen int, trimmed nibble.Path, value []byte) {
	d := a.data()
	p := addr
	binary.LittleEndian.PutUint16(d[p:p+2], uint16(len(value)))
	p += 2
	if class == classLong {
		d[p] = byte(keyLen)
		p++
		p += nibble.PackNibbles(d[p:], trimmed)
	}
	copy(d[p:], value)
}

// find locates the live slot holding key, if any.
func (a Array) find(key nibble.Path, enc encoded) (index, addr int, found bool) {
	n := a.slotCount()
	for i := 0; i < n; i++ {
		raw := a.slotRaw(i)
		pre := slotPreamble(raw)
		if pre == deletedPreamble || pre != enc.preamble {
			continue
		}
		if a.slotHash(i) != enc.hash {
			continue
		}
		addr := slotItemAddress(raw)
		if enc.class != classLong {
			return i, addr, true
		}
		ent := a.readEntry(addr, enc.class)
		if ent.keyLen != key.Len() {
			continue
		}
		stored := nibble.FromBytes(ent.trimmed, 0, ent.keyLen-4)
		if !stored.Equals(enc.trimmed) {
			continue
		}
		return i, addr, true
	}
	return 0, 0, false
}

// TryGet returns the value stored for key, if present.
func (a Array) TryGet(key nibble.Path) ([]byte, bool) {
	enc := encodeKey(key)
	_, addr, found := a.find(key, enc)
	if !found {
		return nil, false
	}
	return a.readEntry(addr, enc.class).value, true
}

// TrySet inserts or overwrites key's value, returning false only if
// no arrangement of the current buffer (even after defragmentation)
// can fit the new entry.
func (a Array) TrySet(key nibble.Path, value []byte) bool {
	enc := encodeKey(key)
	trimmedLen := 0
	if enc.hasTrim {
		trimmedLen = enc.trimmed.Len()
	}
	need := bodySize(enc.class, trimmedLen, len(value))

	if idx, addr, found := a.find(key, enc); found {
		existing := a.readEntry(addr, enc.class)
		if existing.size == need {
			a.writeEntry(addr, enc.class, key.Len(), enc.trimmed, value)
			return true
		}
		a.deleteAt(idx)
	}

	if a.Taken()+need+slotSize > a.dataLen() {
		if a.deleted() > 0 {
			a.Defragment()
		}
		if a.Taken()+need+slotSize > a.dataLen() {
			return false
		}
	}

	addr := a.dataLen() - a.high() - need
	a.writeEntry(addr, enc.class, key.Len(), enc.trimmed, value)

	slotIdx := a.slotCount()
	a.setSlot(slotIdx, packRaw(enc.preamble, addr), enc.hash)
	a.setLow(a.low() + slotSize)
	a.setHigh(a.high() + need)
	return true
}

func (a Array) deleteAt(index int) {
	raw := a.slotRaw(index)
	a.setSlot(index, packRaw(deletedPreamble, slotItemAddress(raw)), a.slotHash(index))
	a.setDeleted(a.deleted() + 1)

	for a.slotCount() > 0 {
		last := a.slotCount() - 1
		if slotPreamble(a.slotRaw(last)) != deletedPreamble {
			break
		}
		a.setLow(a.low() - slotSize)
		a.setDeleted(a.deleted() - 1)
		// Payloads are laid out in slot order from the high end, so the
		// reclaimed slot's payload sat just below the new last slot's.
		if n := a.slotCount(); n == 0 {
			a.setHigh(0)
		} else {
			a.setHigh(a.dataLen() - slotItemAddress(a.slotRaw(n-1)))
		}
	}
}

// Delete removes key, returning false if it was not present.
func (a Array) Delete(key nibble.Path) bool {
	enc := encodeKey(key)
	idx, _, found := a.find(key, enc)
	if !found {
		return false
	}
	a.deleteAt(idx)
	return true
}

// Defragment repacks all live slots and payloads, closing gaps left
// by deletions. After it returns, Count() == slot-array length.
func (a Array) Defragment() {
	scratch := make([]byte, a.dataLen())
	newLow, newHigh := 0, 0
	n := a.slotCount()
	dataLen := a.dataLen()

	for i := 0; i < n; i++ {
		raw := a.slotRaw(i)
		pre := slotPreamble(raw)
		if pre == deletedPreamble {
			continue
		}
		class := pre & 0x3
		addr := slotItemAddress(raw)
		ent := a.readEntry(addr, class)

		newAddr := dataLen - newHigh - ent.size
		copy(scratch[newAddr:newAddr+ent.size], a.data()[addr:addr+ent.size])

		binary.LittleEndian.PutUint16(scratch[newLow:newLow+2], packRaw(pre, newAddr))
		binary.LittleEndian.PutUint16(scratch[newLow+2:newLow+4], a.slotHash(i))

		newLow += slotSize
		newHigh += ent.size
	}

	copy(a.data(), scratch)
	a.setLow(newLow)
	a.setHigh(newHigh)
	a.setDeleted(0)
}

func firstNibbleOf(preamble byte, hash uint16) (nibble byte, hasOne bool) {
	class := preamble & 0x3
	if class == classShort && hash&0xF == 0 {
		return 0, false
	}
	return byte(hash >> 12), true
}

// GatherCountStatsFirstNibble increments stats[n] for every live
// entry whose key begins with nibble n and has at least one nibble.
func (a Array) GatherCountStatsFirstNibble(stats *[16]uint16) {
	n := a.slotCount()
	for i := 0; i < n; i++ {
		raw := a.slotRaw(i)
		pre := slotPreamble(raw)
		if pre == deletedPreamble {
			continue
		}
		if nib, ok := firstNibbleOf(pre, a.slotHash(i)); ok {
			stats[nib]++
		}
	}
}

func (a Array) reconstructKey(preamble byte, hash uint16, addr int, scratch4, scratchFull []byte) nibble.Path {
	class := preamble & 0x3
	switch class {
	case classShort:
		l := int(hash & 0xF)
		nibbles := [3]byte{byte(hash >> 12 & 0xF), byte(hash >> 8 & 0xF), byte(hash >> 4 & 0xF)}
		return nibble.FromNibbles(nibbles[:l], scratchFull)
	case classFull:
		nibbles := [4]byte{byte(hash >> 12 & 0xF), byte(hash >> 8 & 0xF), byte(hash >> 4 & 0xF), byte(hash & 0xF)}
		return nibble.FromNibbles(nibbles[:], scratchFull)
	default:
		outer := [4]byte{byte(hash >> 12 & 0xF), byte(hash >> 8 & 0xF), byte(hash >> 4 & 0xF), byte(hash & 0xF)}
		outerPath := nibble.FromNibbles(outer[:], scratch4)
		ent := a.readEntry(addr, class)
		trimmed := nibble.FromBytes(ent.trimmed, 0, ent.keyLen-4)
		return outerPath.Append(trimmed, scratchFull)
	}
}

// EnumerateAll calls fn for every live entry in slot order, stopping
// early if fn returns false. The key passed to fn is backed by a
// scratch buffer reused across calls; copy it before retaining it
// past the current callback invocation.
func (a Array) EnumerateAll(fn func(key nibble.Path, value []byte) bool) {
	a.enumerate(nil, fn)
}

// EnumerateNibble calls fn for every live entry whose key's first
// nibble is n. See EnumerateAll for the key buffer's lifetime.
func (a Array) EnumerateNibble(n byte, fn func(key nibble.Path, value []byte) bool) {
	target := n
	a.enumerate(&target, fn)
}

func (a Array) enumerate(filter *byte, fn func(key nibble.Path, value []byte) bool) {
	scratch4 := make([]byte, nibble.ScratchLen(4))
	scratchFull := make([]byte, nibble.ScratchLen(130))
	n := a.slotCount()
	for i := 0; i < n; i++ {
		raw := a.slotRaw(i)
		pre := slotPreamble(raw)
		if pre == deletedPreamble {
			continue
		}
		hash := a.slotHash(i)
		if filter != nil {
			nib, ok := firstNibbleOf(pre, hash)
			if !ok || nib != *filter {
				continue
			}
		}
		addr := slotItemAddress(raw)
		key := a.reconstructKey(pre, hash, addr, scratch4, scratchFull)
		value := a.readEntry(addr, pre&0x3).value
		if !fn(key, value) {
			return
		}
	}
}

// MoveNonEmptyKeysTo transfers entries from a into dst on a
// best-effort basis, removing from a each entry it moved; an entry
// that does not fit in dst stays in a. An entry with an empty value
// is never copied: when treatEmptyAsTombstone is set its key is
// deleted from dst, and either way it is removed from a.
func (a Array) MoveNonEmptyKeysTo(dst Array, treatEmptyAsTombstone bool) {
	// reconstructed keys from EnumerateAll are always byte-aligned
	// (oddStart == false), so a plain byte copy preserves them.
	var moved []nibble.Path
	a.EnumerateAll(func(key nibble.Path, value []byte) bool {
		buf := append([]byte(nil), key.Bytes()...)
		keyCopy := nibble.FromBytes(buf, 0, key.Len())

		if len(value) == 0 {
			if treatEmptyAsTombstone {
				dst.Delete(keyCopy)
			}
		} else if !dst.TrySet(keyCopy, append([]byte(nil), value...)) {
			return true // no room in dst: the entry stays in a
		}
		moved = append(moved, keyCopy)
		return true
	})
	for _, key := range moved {
		a.Delete(key)
	}
}
