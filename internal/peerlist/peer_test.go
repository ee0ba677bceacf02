package peerlist

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeHeader(buf []byte) (uint32, uint32, error) {
	return binary.LittleEndian.Uint32(buf[0:4]), binary.LittleEndian.Uint32(buf[4:8]), nil
}

func TestPeerReadsHeaderThenPayload(t *testing.T) {
	p := NewPeer(-1)
	require.False(t, p.HeaderReady())

	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], 1) // SUBSCRIBE_AUDIO
	binary.LittleEndian.PutUint32(header[4:8], 9) // length = 8 + 1
	copy(p.ReadTarget(), header)
	require.NoError(t, p.FeedReadBytes(8))
	require.True(t, p.HeaderReady())

	require.NoError(t, p.AdvanceAfterHeader(decodeHeader))
	require.False(t, p.PayloadReady())

	copy(p.ReadTarget(), []byte{1})
	require.NoError(t, p.FeedReadBytes(1))
	require.True(t, p.PayloadReady())

	require.Equal(t, uint32(1), p.PDUCode())
	require.Equal(t, header[0:4], p.PayloadBytes()[0:4])

	p.ResetForNextHeader()
	require.False(t, p.HeaderReady())
}

func TestAdvanceAfterHeaderRejectsShortLength(t *testing.T) {
	p := NewPeer(-1)
	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], 3)
	binary.LittleEndian.PutUint32(header[4:8], 7) // < 8, invalid per spec.md boundary rule
	copy(p.ReadTarget(), header)
	require.NoError(t, p.FeedReadBytes(8))

	err := p.AdvanceAfterHeader(decodeHeader)
	require.Error(t, err)
}

func TestAdvanceAfterHeaderRejectsOversizeLength(t *testing.T) {
	p := NewPeer(-1)
	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], 2)
	binary.LittleEndian.PutUint32(header[4:8], uint32(InboundBufSize+1))
	copy(p.ReadTarget(), header)
	require.NoError(t, p.FeedReadBytes(8))

	err := p.AdvanceAfterHeader(decodeHeader)
	require.Error(t, err)
}

func TestFeedReadBytesRejectsOverflow(t *testing.T) {
	p := NewPeer(-1)
	err := p.FeedReadBytes(InboundBufSize + 1)
	require.Error(t, err)
}

func TestOutboundQueueFIFO(t *testing.T) {
	p := NewPeer(-1)
	require.False(t, p.HasOutbound())

	p.Enqueue(&BytesMessage{Buf: []byte{1, 2, 3}})
	p.Enqueue(&FDMessage{FD: 42})
	require.True(t, p.HasOutbound())
	require.Len(t, p.Outbound, 2)

	p.PopFront()
	require.Len(t, p.Outbound, 1)
	_, isFD := p.Outbound[0].(*FDMessage)
	require.True(t, isFD)
}

func TestBytesMessageDoneTracksStart(t *testing.T) {
	m := &BytesMessage{Buf: []byte{1, 2, 3}}
	require.False(t, m.Done())
	m.Start = 3
	require.True(t, m.Done())
}
