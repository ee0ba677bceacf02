// Package gpusurface implements the GPU surface backend of the color/
// surface stage (spec.md §4.4): a DRM dumb-buffer-backed NV12 surface that
// can be uploaded into plane-by-plane and exported as a DMA-BUF fd for
// zero-copy handoff to peers.
package gpusurface

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/wtvlabs/bmdcastd/internal/bmderrors"
)

// DefaultDevicePath is the render node opened at startup per spec.md §6.
const DefaultDevicePath = "/dev/dri/renderD128"

// Geometry describes an exported surface, mirrored on the wire by the
// VIDEO PDU's trailing fields (spec.md §4.6).
type Geometry struct {
	Width, Height, Stride, Size uint32
	Bpp                         uint32
}

// Device owns the open DRM render node fd.
type Device struct {
	file *os.File
}

// OpenDevice opens the DRM render node at path.
func OpenDevice(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, bmderrors.New(bmderrors.Create, "gpusurface.open_device", err)
	}
	return &Device{file: f}, nil
}

// Close closes the underlying device fd.
func (d *Device) Close() error {
	if d == nil || d.file == nil {
		return nil
	}
	return d.file.Close()
}

// Surface is an NV12 dumb buffer: a single DRM allocation big enough to
// hold the full-resolution Y plane followed by the half-height interleaved
// UV plane, addressed by plane offset.
//
// NV12 is naturally described as a single 1.5x-height buffer for exactly
// this reason: one DRM object, one mmap, one PRIME export, with the UV
// plane simply living below the Y plane in the same allocation.
type Surface struct {
	mu sync.Mutex

	dev    *Device
	handle uint32
	mapped []byte

	width, height uint32
	yStride       uint32
	uvOffset      uint32
	size          uint64
}

// Create allocates a new NV12 dumb buffer sized for width x height and
// memory-maps it for CPU writes. Per spec.md §4.4, callers must Destroy any
// prior surface before creating a replacement of different dimensions.
func Create(dev *Device, width, height uint32) (*Surface, error) {
	// bpp=8: the dumb buffer is allocated as a single 8-bpp plane covering Y
	// (height rows) plus UV (height/2 rows), i.e. height*3/2 total rows.
	handle, pitch, size, err := createDumb(dev.file.Fd(), width, height*3/2, 8)
	if err != nil {
		return nil, err
	}

	offset, err := mapDumbOffset(dev.file.Fd(), handle)
	if err != nil {
		_ = destroyDumb(dev.file.Fd(), handle)
		return nil, err
	}

	mapped, err := unix.Mmap(int(dev.file.Fd()), offset, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = destroyDumb(dev.file.Fd(), handle)
		return nil, bmderrors.New(bmderrors.Fd, "gpusurface.create", err)
	}

	return &Surface{
		dev:      dev,
		handle:   handle,
		mapped:   mapped,
		width:    width,
		height:   height,
		yStride:  pitch,
		uvOffset: pitch * height,
		size:     size,
	}, nil
}

// WriteY copies src, row by row truncated to the surface's Y stride, into
// the Y plane starting at row 0.
func (s *Surface) WriteY(src []byte, srcStride int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rowBytes := min(int(s.yStride), srcStride)
	for r := 0; r < int(s.height); r++ {
		srcRow := src[r*srcStride : r*srcStride+rowBytes]
		dstOff := r * int(s.yStride)
		copy(s.mapped[dstOff:dstOff+rowBytes], srcRow)
	}
}

// WriteUV copies src (interleaved UV, height/2 rows), truncated to the
// surface's stride, into the UV plane immediately following Y.
func (s *Surface) WriteUV(src []byte, srcStride int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rowBytes := min(int(s.yStride), srcStride)
	uvRows := int(s.height) / 2
	for r := 0; r < uvRows; r++ {
		srcRow := src[r*srcStride : r*srcStride+rowBytes]
		dstOff := int(s.uvOffset) + r*int(s.yStride)
		copy(s.mapped[dstOff:dstOff+rowBytes], srcRow)
	}
}

// Geometry returns the surface's exported-fd geometry fields.
func (s *Surface) Geometry() Geometry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Geometry{
		Width:  s.width,
		Height: s.height,
		Stride: s.yStride,
		Size:   uint32(s.size),
		Bpp:    8,
	}
}

// ExportDMABuf exports the surface's backing dumb buffer as a fresh
// DMA-BUF fd. Each call produces a new fd the caller owns; it is the
// caller's responsibility to close the previously exported fd per
// DaemonState's ownership rule (spec.md §4.4, §5).
func (s *Surface) ExportDMABuf() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return primeHandleToFD(s.dev.file.Fd(), s.handle)
}

// Destroy unmaps and frees the surface's dumb buffer.
func (s *Surface) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mapped != nil {
		if err := unix.Munmap(s.mapped); err != nil {
			return bmderrors.New(bmderrors.Fd, "gpusurface.destroy", err)
		}
		s.mapped = nil
	}
	return destroyDumb(s.dev.file.Fd(), s.handle)
}
