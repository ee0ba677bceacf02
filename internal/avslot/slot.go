// Package avslot implements the single-slot A/V handoff mailbox between the
// capture callback (producer) and the dispatch loop (consumer): spec.md
// §4.2. It is deliberately a slot and not a queue — the downstream path does
// a GPU upload and fd export per video frame, so dropping a stale frame
// under backpressure is the correct policy for a live surface producer, not
// a queue depth problem to engineer around.
package avslot

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/wtvlabs/bmdcastd/internal/bmderrors"
	"github.com/wtvlabs/bmdcastd/internal/bufpool"
)

// VideoOut is a caller-owned snapshot of one consumed video frame.
type VideoOut struct {
	Format    string
	Width     int
	Height    int
	Stride    int
	TimestampMs int64
	Data      []byte
}

// AudioOut is a caller-owned snapshot of one consumed audio buffer.
type AudioOut struct {
	Format        string
	Channels      int
	BytesPerSample int
	Samples       int
	TimestampMs   int64
	Data          []byte
}

type videoSlot struct {
	got    bool
	format string
	width  int
	height int
	stride int
	tsMs   int64
	buf    []byte
	n      int // logical size currently in buf
}

type audioSlot struct {
	got            bool
	format         string
	channels       int
	bytesPerSample int
	samples        int
	tsMs           int64
	buf            []byte
	n              int
}

// Slot is the mutex-protected AV handoff mailbox with its self-pipe.
//
// The capture callback touches only a Slot and its self-pipe — it must
// never reach into dispatch state or peer state (spec.md §4.8 boundary).
type Slot struct {
	mu    sync.Mutex
	video videoSlot
	audio audioSlot

	pendingSignal atomic.Bool
	readFD        int
	writeFD       int
}

// New creates a Slot with its self-pipe opened via pipe2(O_NONBLOCK).
func New() (*Slot, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, bmderrors.New(bmderrors.Pipe, "avslot.new", err)
	}
	return &Slot{readFD: p[0], writeFD: p[1]}, nil
}

// SignalFD returns the self-pipe's read end for the dispatch loop to poll.
func (s *Slot) SignalFD() int { return s.readFD }

// TryPublishVideo copies frame into the video sub-slot if it is empty. It
// returns true if the frame was accepted, false if it was dropped because
// got_video was already set (spec.md §4.2 invariant: a slot must not be
// overwritten until the loop consumes it).
func (s *Slot) TryPublishVideo(frame []byte, width, height, stride int, format string, tsMs int64) bool {
	s.mu.Lock()
	if s.video.got {
		s.mu.Unlock()
		return false
	}
	s.video.buf = bufpool.Ensure(s.video.buf, len(frame))
	copy(s.video.buf, frame)
	s.video.n = len(frame)
	s.video.format = format
	s.video.width = width
	s.video.height = height
	s.video.stride = stride
	s.video.tsMs = tsMs
	s.video.got = true
	s.mu.Unlock()

	s.requestSignal()
	return true
}

// TryPublishAudio copies pcm into the audio sub-slot if it is empty,
// symmetric with TryPublishVideo.
func (s *Slot) TryPublishAudio(pcm []byte, channels, bytesPerSample, samples int, format string, tsMs int64) bool {
	s.mu.Lock()
	if s.audio.got {
		s.mu.Unlock()
		return false
	}
	s.audio.buf = bufpool.Ensure(s.audio.buf, len(pcm))
	copy(s.audio.buf, pcm)
	s.audio.n = len(pcm)
	s.audio.format = format
	s.audio.channels = channels
	s.audio.bytesPerSample = bytesPerSample
	s.audio.samples = samples
	s.audio.tsMs = tsMs
	s.audio.got = true
	s.mu.Unlock()

	s.requestSignal()
	return true
}

// requestSignal keeps at most one unread 4-byte token in the self-pipe: a
// publish writes a token only when none is pending, so two publishes before
// the loop drains produce a single token. Spec.md §4.8 describes a single vendor callback that can
// fill both sub-slots before signalling once; this daemon has two
// independent real capture goroutines (video and audio) instead of one
// unified callback, so the single-token-per-invocation rule is generalized
// to a CAS-guarded pending flag: whichever goroutine's publish wins the CAS
// performs the write, and any publishes that land while a token is still
// unread by the loop do not queue a second one.
func (s *Slot) requestSignal() {
	if !s.pendingSignal.CompareAndSwap(false, true) {
		return
	}
	var tok [4]byte
	for {
		_, err := unix.Write(s.writeFD, tok[:])
		if err == unix.EINTR {
			continue
		}
		break
	}
}

// Consume atomically transfers any set sub-slots into caller-owned outputs
// and clears their flags. A non-nil return indicates that stream was
// consumed; nil means its sub-slot was empty. Callers drain the self-pipe
// token with DrainSignal before calling Consume: draining afterwards would
// clear the pending flag for a publish that landed in between, leaving its
// data in the slot with no token to wake the loop.
func (s *Slot) Consume() (video *VideoOut, audio *AudioOut) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.video.got {
		data := make([]byte, s.video.n)
		copy(data, s.video.buf[:s.video.n])
		video = &VideoOut{
			Format:      s.video.format,
			Width:       s.video.width,
			Height:      s.video.height,
			Stride:      s.video.stride,
			TimestampMs: s.video.tsMs,
			Data:        data,
		}
		s.video.got = false
	}
	if s.audio.got {
		data := make([]byte, s.audio.n)
		copy(data, s.audio.buf[:s.audio.n])
		audio = &AudioOut{
			Format:         s.audio.format,
			Channels:       s.audio.channels,
			BytesPerSample: s.audio.bytesPerSample,
			Samples:        s.audio.samples,
			TimestampMs:    s.audio.tsMs,
			Data:           data,
		}
		s.audio.got = false
	}
	return video, audio
}

// DrainSignal reads and discards one pending token from the self-pipe, if
// any, and clears the pending flag so a future publish signals again.
func (s *Slot) DrainSignal() {
	var buf [64]byte
	for {
		_, err := unix.Read(s.readFD, buf[:])
		if err == unix.EINTR {
			continue
		}
		break
	}
	s.pendingSignal.Store(false)
}

// Close closes both ends of the self-pipe.
func (s *Slot) Close() error {
	err1 := unix.Close(s.readFD)
	err2 := unix.Close(s.writeFD)
	if err1 != nil {
		return bmderrors.New(bmderrors.Pipe, "avslot.close", err1)
	}
	if err2 != nil {
		return bmderrors.New(bmderrors.Pipe, "avslot.close", err2)
	}
	return nil
}
