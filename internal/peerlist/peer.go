// Package peerlist implements the peer connection record (C5): the inbound
// header/payload state machine, the outbound OutMessage queue, and the
// hand-rolled singly-linked peer list with removal-returns-successor
// semantics required by spec.md §4.5.
package peerlist

import (
	"github.com/google/uuid"

	"github.com/wtvlabs/bmdcastd/internal/bmderrors"
)

const (
	// InboundBufSize is the fixed 1 MiB inbound buffer every peer owns.
	InboundBufSize = 1 << 20
	// headerLen is the fixed 8-byte code+length PDU prefix.
	headerLen = 8
)

type inboundState int

const (
	stateHeader inboundState = iota
	statePayload
)

// OutMessage is the tagged union of outbound queue entries: either an owned
// byte buffer sent with successive writes, or a duplicated fd sent with a
// single sendmsg carrying an SCM_RIGHTS ancillary record.
type OutMessage interface {
	isOutMessage()
}

// BytesMessage is a plain byte payload (a PDU) with a start cursor (the end
// is len(Buf)) to track partial writes across multiple send calls.
type BytesMessage struct {
	Buf   []byte
	Start int
}

func (*BytesMessage) isOutMessage() {}

// Done reports whether the whole buffer has been sent.
func (m *BytesMessage) Done() bool { return m.Start >= len(m.Buf) }

// FDMessage carries a duplicated file descriptor sent via a single sendmsg
// with SCM_RIGHTS, plus its 4-byte in-band payload ("int\0" per spec.md
// §4.6). The message owns FD and must close it once sent or dropped.
type FDMessage struct {
	FD   int
	Sent bool
}

func (*FDMessage) isOutMessage() {}

// Peer is a single connected client: its socket, subscription state,
// inbound state machine, and outbound FIFO. Peers are linked into a List by
// their Next pointer; callers never construct Next directly.
type Peer struct {
	ID   string
	FD   int
	Next *Peer

	SubscribedAudio bool
	WantsNextVideo  bool
	LastFrame       uint64

	inState   inboundState
	inBuf     []byte
	inFilled  int
	wantLen   int // inFilled at which the current state completes (header=8, payload=the PDU's full length)
	pduCode   uint32
	pduLength uint32

	Outbound []OutMessage
}

// NewPeer wraps an accepted socket fd in a Peer, ready to read a header.
func NewPeer(fd int) *Peer {
	return &Peer{
		ID:      uuid.NewString(),
		FD:      fd,
		inState: stateHeader,
		inBuf:   make([]byte, InboundBufSize),
		wantLen: headerLen,
	}
}

// Enqueue appends an OutMessage to the peer's outbound FIFO.
func (p *Peer) Enqueue(m OutMessage) {
	p.Outbound = append(p.Outbound, m)
}

// HasOutbound reports whether the peer has pending writes.
func (p *Peer) HasOutbound() bool { return len(p.Outbound) > 0 }

// PopFront removes the head of the outbound queue. It does not close an
// FDMessage's fd; the caller closes it before popping.
func (p *Peer) PopFront() {
	if len(p.Outbound) == 0 {
		return
	}
	p.Outbound = p.Outbound[1:]
}

// FeedReadBytes records n freshly-read bytes in the inbound buffer, and
// returns a Range error if they would overflow it. Callers must check
// HeaderReady/PayloadReady afterward to decide the next action;
// FeedReadBytes never allocates.
func (p *Peer) FeedReadBytes(n int) error {
	if p.inFilled+n > len(p.inBuf) {
		return bmderrors.New(bmderrors.Range, "peer.feed_read_bytes", nil)
	}
	p.inFilled += n
	return nil
}

// ReadTarget returns the slice the next read(2) call should fill.
func (p *Peer) ReadTarget() []byte {
	return p.inBuf[p.inFilled:p.wantLen]
}

// HeaderReady reports whether all 8 header bytes have arrived.
func (p *Peer) HeaderReady() bool {
	return p.inState == stateHeader && p.inFilled >= headerLen
}

// PayloadReady reports whether the full payload for the current PDU has
// arrived.
func (p *Peer) PayloadReady() bool {
	return p.inState == statePayload && p.inFilled >= p.wantLen
}

// AdvanceAfterHeader parses the just-completed 8-byte header (code,
// length), validates length per spec.md §4.5 (< 8 or > buffer size closes
// the connection), and transitions to Payload state.
func (p *Peer) AdvanceAfterHeader(decodeHeader func([]byte) (code uint32, length uint32, err error)) error {
	code, length, err := decodeHeader(p.inBuf[:headerLen])
	if err != nil {
		return err
	}
	if length < headerLen || int(length) > len(p.inBuf) {
		return bmderrors.New(bmderrors.Range, "peer.advance_after_header", nil)
	}
	p.pduCode = code
	p.pduLength = length
	p.inState = statePayload
	p.wantLen = int(length)
	return nil
}

// PayloadBytes returns the full PDU (header+payload) accumulated so far.
func (p *Peer) PayloadBytes() []byte {
	return p.inBuf[:p.inFilled]
}

// PDUCode returns the code of the PDU currently completed in the buffer.
func (p *Peer) PDUCode() uint32 { return p.pduCode }

// ResetForNextHeader returns the peer's inbound state machine to Header,
// ready for the next PDU.
func (p *Peer) ResetForNextHeader() {
	p.inState = stateHeader
	p.inFilled = 0
	p.wantLen = headerLen
	p.pduCode = 0
	p.pduLength = 0
}
