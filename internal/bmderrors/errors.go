// Package bmderrors implements the closed error taxonomy the dispatch core
// and its collaborators use to classify failures. Every operation in the
// capture/dispatch pipeline returns one of these kinds (or nil); callers
// branch on Kind rather than on string matching or sentinel identity, which
// keeps the taxonomy exhaustive and makes logging uniform.
package bmderrors

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error classifications used throughout the
// daemon. The set is deliberately small and fixed: new failure modes should
// map onto an existing kind rather than grow this list.
type Kind int

const (
	None Kind = iota
	Memory
	Dup
	Param
	Range
	NoPtsDts
	Create
	Start
	GetTime
	NotReady
	Fd
	Decode
	PeerRemoved
	Log
	Term
	NotSupported
	Stop
	Capture
	Mutex
	Pipe
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Memory:
		return "memory"
	case Dup:
		return "dup"
	case Param:
		return "param"
	case Range:
		return "range"
	case NoPtsDts:
		return "no_pts_dts"
	case Create:
		return "create"
	case Start:
		return "start"
	case GetTime:
		return "get_time"
	case NotReady:
		return "not_ready"
	case Fd:
		return "fd"
	case Decode:
		return "decode"
	case PeerRemoved:
		return "peer_removed"
	case Log:
		return "log"
	case Term:
		return "term"
	case NotSupported:
		return "not_supported"
	case Stop:
		return "stop"
	case Capture:
		return "capture"
	case Mutex:
		return "mutex"
	case Pipe:
		return "pipe"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the single error type carrying a Kind, the operation that
// produced it, and an optional wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind.
func New(kind Kind, op string, cause error) error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err: None if err is nil, NotSupported if err
// is not (and does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return None
	}
	return NotSupported
}

// IsFatal reports whether err should be treated as a per-frame/per-peer
// recoverable condition (false) or something the caller should log and
// continue past without tearing down unrelated state (true, per spec.md §7
// policy: only Term ends the loop; PeerRemoved is handled by the peer
// lifecycle; everything else is logged and the operation is dropped).
func IsFatal(err error) bool {
	k := KindOf(err)
	return k != None && k != PeerRemoved && k != Term
}
