package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wtvlabs/bmdcastd/internal/bmderrors"
)

func TestWriteReadRoundTripU32(t *testing.T) {
	buf := make([]byte, 8)
	w := NewWriter(buf)
	w.WriteU32(0xdeadbeef)
	w.WriteU32(42)

	r := NewReader(buf)
	a, err := r.ReadU32()
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), a)
	b, err := r.ReadU32()
	require.NoError(t, err)
	require.Equal(t, uint32(42), b)
}

func TestReadU32ShortBufferIsRangeError(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	_, err := r.ReadU32()
	require.Error(t, err)
	require.True(t, bmderrors.Is(err, bmderrors.Range))
}

func TestReadU8ShortBufferIsRangeError(t *testing.T) {
	r := NewReader(nil)
	_, err := r.ReadU8()
	require.True(t, bmderrors.Is(err, bmderrors.Range))
}

func TestReadBytesRespectsEnd(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4, 5})
	r.End = 3
	_, err := r.ReadBytes(4)
	require.Error(t, err)

	b, err := r.ReadBytes(3)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, b)
}

func TestWriteBytesRawAdvancesCursor(t *testing.T) {
	buf := make([]byte, 4)
	w := NewWriter(buf)
	w.WriteBytesRaw([]byte("int\x00"))
	require.Equal(t, 4, w.P)
	require.Equal(t, []byte("int\x00"), buf)
}

func TestSkipBytesLeavesZeroedPadding(t *testing.T) {
	buf := make([]byte, 6)
	w := NewWriter(buf)
	w.WriteU16(7)
	w.SkipBytes(4)
	require.Equal(t, 6, w.P)
	require.Equal(t, []byte{7, 0, 0, 0, 0, 0}, buf)
}
