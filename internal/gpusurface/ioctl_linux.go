package gpusurface

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/wtvlabs/bmdcastd/internal/bmderrors"
)

// DRM ioctl numbers, standard Linux ioctl encoding:
//
//	_IOWR('d', nr, size) = 0xC0000000 | (size << 16) | ('d' << 8) | nr
const (
	// DRM_IOCTL_MODE_CREATE_DUMB = _IOWR('d', 0xb2, struct drm_mode_create_dumb)
	ioctlModeCreateDumb = 0xc02064b2
	// DRM_IOCTL_MODE_MAP_DUMB = _IOWR('d', 0xb3, struct drm_mode_map_dumb)
	ioctlModeMapDumb = 0xc01064b3
	// DRM_IOCTL_MODE_DESTROY_DUMB = _IOWR('d', 0xb4, struct drm_mode_destroy_dumb)
	ioctlModeDestroyDumb = 0xc00464b4
	// DRM_IOCTL_PRIME_HANDLE_TO_FD = _IOWR('d', 0x2d, struct drm_prime_handle)
	ioctlPrimeHandleToFD = 0xc00c642d
)

// DRM_CLOEXEC (defined by the kernel as O_CLOEXEC), passed as the flags
// field of drm_prime_handle.
const drmCloexec = unix.O_CLOEXEC

// drmModeCreateDumb corresponds to struct drm_mode_create_dumb.
type drmModeCreateDumb struct {
	Height uint32
	Width  uint32
	Bpp    uint32
	Flags  uint32
	Handle uint32
	Pitch  uint32
	Size   uint64
}

// drmModeMapDumb corresponds to struct drm_mode_map_dumb.
type drmModeMapDumb struct {
	Handle uint32
	Pad    uint32
	Offset uint64
}

// drmModeDestroyDumb corresponds to struct drm_mode_destroy_dumb.
type drmModeDestroyDumb struct {
	Handle uint32
}

// drmPrimeHandle corresponds to struct drm_prime_handle.
type drmPrimeHandle struct {
	Handle uint32
	Flags  uint32
	FD     int32
}

func ioctl(fd uintptr, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// createDumb allocates a DRM dumb buffer of width x height at the given
// bits-per-pixel and returns its handle, row pitch, and total size.
func createDumb(devFD uintptr, width, height, bpp uint32) (handle, pitch uint32, size uint64, err error) {
	req := drmModeCreateDumb{Width: width, Height: height, Bpp: bpp}
	if ierr := ioctl(devFD, ioctlModeCreateDumb, unsafe.Pointer(&req)); ierr != nil {
		return 0, 0, 0, bmderrors.New(bmderrors.Create, "gpusurface.create_dumb", ierr)
	}
	return req.Handle, req.Pitch, req.Size, nil
}

// mapDumbOffset returns the mmap offset for a dumb buffer handle, to be
// passed to unix.Mmap as the offset argument.
func mapDumbOffset(devFD uintptr, handle uint32) (int64, error) {
	req := drmModeMapDumb{Handle: handle}
	if ierr := ioctl(devFD, ioctlModeMapDumb, unsafe.Pointer(&req)); ierr != nil {
		return 0, bmderrors.New(bmderrors.Fd, "gpusurface.map_dumb", ierr)
	}
	return int64(req.Offset), nil
}

// destroyDumb frees a dumb buffer handle.
func destroyDumb(devFD uintptr, handle uint32) error {
	req := drmModeDestroyDumb{Handle: handle}
	if ierr := ioctl(devFD, ioctlModeDestroyDumb, unsafe.Pointer(&req)); ierr != nil {
		return bmderrors.New(bmderrors.Fd, "gpusurface.destroy_dumb", ierr)
	}
	return nil
}

// primeHandleToFD exports a dumb buffer handle as a DMA-BUF fd.
func primeHandleToFD(devFD uintptr, handle uint32) (int, error) {
	req := drmPrimeHandle{Handle: handle, Flags: drmCloexec}
	if ierr := ioctl(devFD, ioctlPrimeHandleToFD, unsafe.Pointer(&req)); ierr != nil {
		return -1, bmderrors.New(bmderrors.Fd, "gpusurface.prime_handle_to_fd", ierr)
	}
	return int(req.FD), nil
}
