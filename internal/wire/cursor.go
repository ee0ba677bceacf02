// Package wire implements the sole binary-format contract surface used by
// the protocol engine (internal/proto): a bounds-checked little-endian
// cursor over a caller-owned buffer. It intentionally does not reach for
// encoding/binary's higher-level helpers (binary.Read/Write) because those
// operate through reflection on whole structs; the wire PDUs in this
// protocol are hand-packed fields of mixed size with explicit total-length
// accounting (spec.md §4.6), which a cursor expresses more directly than a
// struct tag would, and every read must fail fast on a short buffer rather
// than panic or silently zero-fill, which is what a bounds-checked cursor is
// for.
package wire

import (
	"encoding/binary"

	"github.com/wtvlabs/bmdcastd/internal/bmderrors"
)

// Cursor is a position over a caller-provided buffer. Writes never grow the
// buffer — callers size it up front — and reads never cross End.
type Cursor struct {
	Data []byte
	P    int // current position
	End  int // logical end (may be < len(Data) when reading a parsed sub-slice)
}

// NewReader builds a cursor over buf for reading, with End set to len(buf).
func NewReader(buf []byte) *Cursor {
	return &Cursor{Data: buf, P: 0, End: len(buf)}
}

// NewWriter builds a cursor over a pre-sized buffer for writing.
func NewWriter(buf []byte) *Cursor {
	return &Cursor{Data: buf, P: 0, End: len(buf)}
}

// Remaining returns the number of bytes left before End.
func (c *Cursor) Remaining() int {
	if c.End < c.P {
		return 0
	}
	return c.End - c.P
}

// CheckRemaining returns a Range error if fewer than n bytes remain.
func (c *Cursor) CheckRemaining(n int) error {
	if c.Remaining() < n {
		return bmderrors.New(bmderrors.Range, "cursor.check_remaining", nil)
	}
	return nil
}

// WriteU8 writes one byte and advances the cursor. Caller must have sized
// the buffer; out-of-range writes panic like a slice index would, since this
// is a programmer error (the byte helper is not defensive against misuse by
// its own package, only against malformed peer input on the read side).
func (c *Cursor) WriteU8(v uint8) {
	c.Data[c.P] = v
	c.P++
}

// WriteU16 writes a little-endian uint16.
func (c *Cursor) WriteU16(v uint16) {
	binary.LittleEndian.PutUint16(c.Data[c.P:], v)
	c.P += 2
}

// WriteU32 writes a little-endian uint32.
func (c *Cursor) WriteU32(v uint32) {
	binary.LittleEndian.PutUint32(c.Data[c.P:], v)
	c.P += 4
}

// WriteBytesRaw copies b into the buffer verbatim.
func (c *Cursor) WriteBytesRaw(b []byte) {
	copy(c.Data[c.P:], b)
	c.P += len(b)
}

// SkipBytes advances the cursor by n without writing (used for reserved/pad
// fields, e.g. VERSION's 12 trailing zero bytes when the backing buffer was
// already zeroed on allocation).
func (c *Cursor) SkipBytes(n int) {
	c.P += n
}

// ReadU8 reads one byte, failing with Range if none remains.
func (c *Cursor) ReadU8() (uint8, error) {
	if err := c.CheckRemaining(1); err != nil {
		return 0, err
	}
	v := c.Data[c.P]
	c.P++
	return v, nil
}

// ReadU32 reads a little-endian uint32, failing with Range if fewer than 4
// bytes remain.
func (c *Cursor) ReadU32() (uint32, error) {
	if err := c.CheckRemaining(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.Data[c.P:])
	c.P += 4
	return v, nil
}

// ReadBytes returns a sub-slice of the next n bytes without copying,
// advancing the cursor. Fails with Range if fewer than n bytes remain.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if err := c.CheckRemaining(n); err != nil {
		return nil, err
	}
	b := c.Data[c.P : c.P+n]
	c.P += n
	return b, nil
}
