package nibble

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func nibblesOf(t *testing.T, p Path) []byte {
	t.Helper()
	out := make([]byte, p.Len())
	for i := range out {
		out[i] = p.Get(i)
	}
	return out
}

func TestFromBytesGet(t *testing.T) {
	buf := []byte{0xAB, 0xCD, 0xEF}
	p := FromBytes(buf, 0, 6)
	require.Equal(t, []byte{0xA, 0xB, 0xC, 0xD, 0xE, 0xF}, nibblesOf(t, p))

	p2 := FromBytes(buf, 1, 4)
	require.Equal(t, []byte{0xB, 0xC, 0xD, 0xE}, nibblesOf(t, p2))
}

func TestSliceFromTo(t *testing.T) {
	buf := []byte{0xAB, 0xCD, 0xEF}
	p := FromBytes(buf, 0, 6)

	sub := p.SliceFrom(2)
	require.Equal(t, []byte{0xC, 0xD, 0xE, 0xF}, nibblesOf(t, sub))

	subOdd := p.SliceFrom(1)
	require.Equal(t, []byte{0xB, 0xC, 0xD, 0xE, 0xF}, nibblesOf(t, subOdd))

	head := p.SliceTo(3)
	require.Equal(t, []byte{0xA, 0xB, 0xC}, nibblesOf(t, head))
}

func TestEqualsIgnoresOddBit(t *testing.T) {
	bufA := []byte{0xAB, 0xCD}
	bufB := []byte{0x0A, 0xBC, 0xD0}
	a := FromBytes(bufA, 0, 4)       // A B C D
	b := FromBytes(bufB, 1, 4)       // A B C D, starting at low nibble
	require.True(t, a.Equals(b))
	require.True(t, b.Equals(a))

	c := FromBytes(bufA, 0, 3)
	require.False(t, a.Equals(c))
}

func TestFirstDifferent(t *testing.T) {
	a := FromBytes([]byte{0x12, 0x34}, 0, 4)
	b := FromBytes([]byte{0x12, 0x3F}, 0, 4)
	require.Equal(t, 3, a.FirstDifferent(b))

	c := FromBytes([]byte{0x12}, 0, 2)
	require.Equal(t, 2, a.FirstDifferent(c)) // c is a prefix of a

	// mismatched odd bits exercise the nibble-at-a-time fallback.
	d := FromBytes([]byte{0x01, 0x23}, 1, 3) // nibbles 1,2,3
	e := FromBytes([]byte{0x12, 0x30}, 0, 3) // nibbles 1,2,3
	require.Equal(t, 3, d.FirstDifferent(e))
}

func TestAppendNibbleAndAppend(t *testing.T) {
	base := FromBytes([]byte{0xAB}, 0, 2)
	scratch := make([]byte, ScratchLen(2))
	withOne := base.AppendNibble(0xC, scratch)
	require.Equal(t, []byte{0xA, 0xB, 0xC}, nibblesOf(t, withOne))

	tail := FromBytes([]byte{0xDE}, 0, 2)
	combinedScratch := make([]byte, ScratchLen(4))
	combined := withOne.Append(tail, combinedScratch)
	require.Equal(t, []byte{0xA, 0xB, 0xC, 0xD, 0xE}, nibblesOf(t, combined))
}

func TestWriteReadRoundTrip(t *testing.T) {
	cases := []struct {
		buf       []byte
		from, len int
	}{
		{[]byte{0xAB, 0xCD, 0xEF}, 0, 6},
		{[]byte{0xAB, 0xCD, 0xEF}, 1, 5},
		{[]byte{0xAB, 0xCD, 0xEF}, 0, 0},
		{[]byte{0xAB, 0xCD, 0xEF}, 0, 1},
		{[]byte{0xAB, 0xCD, 0xEF}, 1, 1},
	}
	for _, tc := range cases {
		p := FromBytes(tc.buf, tc.from, tc.len)
		out := make([]byte, 1+ScratchLen(tc.len))
		n := p.WriteTo(out)
		got, remaining, err := ReadFrom(out)
		require.NoError(t, err)
		require.True(t, p.Equals(got), "case from=%d len=%d", tc.from, tc.len)
		require.Equal(t, out[n:], remaining)
		require.True(t, got.Equals(got)) // hash stability check below
		require.Equal(t, p.Hash(), got.Hash())
	}
}

func TestEqualPathsHashEqual(t *testing.T) {
	a := FromBytes([]byte{0xAB, 0xCD}, 0, 4)
	b := FromBytes([]byte{0x0A, 0xBC, 0xD0}, 1, 4)
	require.True(t, a.Equals(b))
	require.Equal(t, a.Hash(), b.Hash())
}

func TestReadFromShortBuffer(t *testing.T) {
	_, _, err := ReadFrom(nil)
	require.Error(t, err)
	_, _, err = ReadFrom([]byte{0x0A}) // claims 5 nibbles, no payload
	require.Error(t, err)
}
