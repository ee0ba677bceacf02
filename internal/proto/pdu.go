// Package proto implements the wire protocol engine (spec.md §4.6): PDU
// codes, header framing, and encode/decode for every message the dispatch
// core exchanges with peers. All integers are little-endian; every PDU
// starts with an 8-byte header (code:u32, length:u32) where length counts
// from the first byte of code.
package proto

import (
	"github.com/wtvlabs/bmdcastd/internal/bmderrors"
	"github.com/wtvlabs/bmdcastd/internal/wire"
)

// Code identifies a PDU type.
type Code uint32

const (
	SubscribeAudio   Code = 1 // client -> daemon
	Audio            Code = 2 // daemon -> client
	RequestVideoFrame Code = 3 // client -> daemon
	Video            Code = 4 // daemon -> client, followed by an fd message
	Version          Code = 5 // daemon -> client, on connect
)

// HeaderLen is the fixed 8-byte code+length prefix every PDU carries.
const HeaderLen = 8

// VideoFDInbandPayload is the literal 4-byte in-band body sent on the
// sendmsg call that carries the VIDEO PDU's SCM_RIGHTS ancillary fd.
var VideoFDInbandPayload = [4]byte{'i', 'n', 't', 0}

// Header is a decoded 8-byte PDU header.
type Header struct {
	Code   Code
	Length uint32
}

// DecodeHeader parses the 8-byte header from the front of buf.
func DecodeHeader(buf []byte) (Header, error) {
	c := wire.NewReader(buf)
	code, err := c.ReadU32()
	if err != nil {
		return Header{}, bmderrors.New(bmderrors.Decode, "proto.decode_header", err)
	}
	length, err := c.ReadU32()
	if err != nil {
		return Header{}, bmderrors.New(bmderrors.Decode, "proto.decode_header", err)
	}
	return Header{Code: Code(code), Length: length}, nil
}

// EncodeVersion builds a VERSION PDU: 8-byte header + major, minor,
// audio_latency, and 12 reserved zero bytes (length=32).
func EncodeVersion(major, minor, audioLatency uint32) []byte {
	const length = 32
	buf := make([]byte, length)
	w := wire.NewWriter(buf)
	w.WriteU32(uint32(Version))
	w.WriteU32(length)
	w.WriteU32(major)
	w.WriteU32(minor)
	w.WriteU32(audioLatency)
	w.SkipBytes(12)
	return buf
}

// DecodeSubscribeAudio parses the single-byte SUBSCRIBE_AUDIO payload
// (everything after the 8-byte header). enabled is true iff the byte is
// nonzero.
func DecodeSubscribeAudio(payload []byte) (enabled bool, err error) {
	if len(payload) < 1 {
		return false, bmderrors.New(bmderrors.Range, "proto.decode_subscribe_audio", nil)
	}
	return payload[0] != 0, nil
}

// EncodeAudio builds an AUDIO PDU carrying pcm. length = 24 + len(pcm).
func EncodeAudio(ts, channels uint32, pcm []byte) []byte {
	length := 24 + len(pcm)
	buf := make([]byte, length)
	w := wire.NewWriter(buf)
	w.WriteU32(uint32(Audio))
	w.WriteU32(uint32(length))
	w.WriteU32(ts)
	w.WriteU32(0) // pad
	w.WriteU32(channels)
	w.WriteU32(uint32(len(pcm)))
	w.WriteBytesRaw(pcm)
	return buf
}

// DecodedAudio is the parsed form of an AUDIO PDU payload, used by tests
// exercising the round-trip property (spec.md §8 invariant 5).
type DecodedAudio struct {
	Timestamp uint32
	Channels  uint32
	PCM       []byte
}

// DecodeAudio parses a full AUDIO PDU (including its 8-byte header) back
// into its fields.
func DecodeAudio(buf []byte) (DecodedAudio, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return DecodedAudio{}, err
	}
	if h.Code != Audio {
		return DecodedAudio{}, bmderrors.New(bmderrors.Decode, "proto.decode_audio", nil)
	}
	c := wire.NewReader(buf)
	c.P = HeaderLen
	ts, err := c.ReadU32()
	if err != nil {
		return DecodedAudio{}, bmderrors.New(bmderrors.Decode, "proto.decode_audio", err)
	}
	if _, err := c.ReadU32(); err != nil { // pad
		return DecodedAudio{}, bmderrors.New(bmderrors.Decode, "proto.decode_audio", err)
	}
	channels, err := c.ReadU32()
	if err != nil {
		return DecodedAudio{}, bmderrors.New(bmderrors.Decode, "proto.decode_audio", err)
	}
	byteCount, err := c.ReadU32()
	if err != nil {
		return DecodedAudio{}, bmderrors.New(bmderrors.Decode, "proto.decode_audio", err)
	}
	pcm, err := c.ReadBytes(int(byteCount))
	if err != nil {
		return DecodedAudio{}, bmderrors.New(bmderrors.Decode, "proto.decode_audio", err)
	}
	return DecodedAudio{Timestamp: ts, Channels: channels, PCM: pcm}, nil
}

// VideoGeometry describes the exported DMA-BUF surface, mirrored on the
// wire by the VIDEO PDU's trailing fields.
type VideoGeometry struct {
	Width, Height, Stride, Size, Bpp uint32
}

// EncodeVideoHeader builds the 40-byte VIDEO PDU (without the fd message
// that must follow it). fd_placeholder is always 0 on the wire — the real
// fd travels out-of-band via the paired sendmsg/SCM_RIGHTS call.
func EncodeVideoHeader(ts uint32, geom VideoGeometry) []byte {
	const length = 40
	buf := make([]byte, length)
	w := wire.NewWriter(buf)
	w.WriteU32(uint32(Video))
	w.WriteU32(length)
	w.WriteU32(ts)
	w.WriteU32(0) // pad
	w.WriteU32(0) // fd_placeholder
	w.WriteU32(geom.Width)
	w.WriteU32(geom.Height)
	w.WriteU32(geom.Stride)
	w.WriteU32(geom.Size)
	w.WriteU32(geom.Bpp)
	return buf
}

// DecodedVideo is the parsed form of a VIDEO PDU, used by round-trip tests.
type DecodedVideo struct {
	Timestamp uint32
	Geometry  VideoGeometry
}

// DecodeVideo parses a full 40-byte VIDEO PDU.
func DecodeVideo(buf []byte) (DecodedVideo, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return DecodedVideo{}, err
	}
	if h.Code != Video || h.Length != 40 {
		return DecodedVideo{}, bmderrors.New(bmderrors.Decode, "proto.decode_video", nil)
	}
	c := wire.NewReader(buf)
	c.P = HeaderLen
	ts, err := c.ReadU32()
	if err != nil {
		return DecodedVideo{}, bmderrors.New(bmderrors.Decode, "proto.decode_video", err)
	}
	if _, err := c.ReadU32(); err != nil { // pad
		return DecodedVideo{}, bmderrors.New(bmderrors.Decode, "proto.decode_video", err)
	}
	if _, err := c.ReadU32(); err != nil { // fd_placeholder
		return DecodedVideo{}, bmderrors.New(bmderrors.Decode, "proto.decode_video", err)
	}
	var g VideoGeometry
	vals := []*uint32{&g.Width, &g.Height, &g.Stride, &g.Size, &g.Bpp}
	for _, v := range vals {
		x, err := c.ReadU32()
		if err != nil {
			return DecodedVideo{}, bmderrors.New(bmderrors.Decode, "proto.decode_video", err)
		}
		*v = x
	}
	return DecodedVideo{Timestamp: ts, Geometry: g}, nil
}

// DecodeVersion parses a full 32-byte VERSION PDU.
func DecodeVersion(buf []byte) (major, minor, audioLatency uint32, err error) {
	h, derr := DecodeHeader(buf)
	if derr != nil {
		return 0, 0, 0, derr
	}
	if h.Code != Version || h.Length != 32 {
		return 0, 0, 0, bmderrors.New(bmderrors.Decode, "proto.decode_version", nil)
	}
	c := wire.NewReader(buf)
	c.P = HeaderLen
	major, err = c.ReadU32()
	if err != nil {
		return 0, 0, 0, bmderrors.New(bmderrors.Decode, "proto.decode_version", err)
	}
	minor, err = c.ReadU32()
	if err != nil {
		return 0, 0, 0, bmderrors.New(bmderrors.Decode, "proto.decode_version", err)
	}
	audioLatency, err = c.ReadU32()
	if err != nil {
		return 0, 0, 0, bmderrors.New(bmderrors.Decode, "proto.decode_version", err)
	}
	return major, minor, audioLatency, nil
}
