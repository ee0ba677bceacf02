package capture

import (
	"context"
	"sync"
	"time"

	"github.com/wtvlabs/bmdcastd/internal/avslot"
	"github.com/wtvlabs/bmdcastd/internal/bmderrors"
)

// Driver is the capture adapter contract (spec.md §4.3): create, start,
// stop, delete. create enumerates the first present device, selects the
// display mode named by modeIndex, enables 8-bit YUY2 video and 48kHz/
// 16-bit/2-channel audio, and installs a callback that publishes into
// slot. The callback runs on a driver-owned thread and touches only slot.
type Driver interface {
	Start(ctx context.Context) error
	Stop() error
	Delete() error
}

// Create enumerates the first present video capture device, resolves
// modeIndex against the display-mode table, and returns a Driver wired to
// publish captured frames into slot. A modeIndex outside the table is a
// Capture error. The device's own list of modes is not queried or matched
// against the table: the table entry's geometry and frame rate are
// requested from the device as they are.
func Create(modeIndex int, slot *avslot.Slot) (Driver, error) {
	mode, ok := ModeByIndex(modeIndex)
	if !ok {
		return nil, bmderrors.New(bmderrors.Capture, "capture.create", nil)
	}

	devices, err := VideoCaptureDevices()
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, bmderrors.New(bmderrors.Capture, "capture.create", nil)
	}

	video, err := newVideoInput(devices[0], mode, slot)
	if err != nil {
		return nil, err
	}

	audio, err := newAudioInput(slot)
	if err != nil {
		_ = video.close()
		return nil, err
	}

	return &combinedDriver{video: video, audio: audio}, nil
}

// combinedDriver runs the go4vl video reader and the portaudio audio
// callback as two independent goroutines sharing one avslot.Slot. Spec.md
// §4.3 describes a single vendor callback that can fill both sub-slots in
// one invocation; this daemon's real backends are two separate capture
// sources, so each publishes independently and the slot's CAS-guarded
// pending-signal flag (internal/avslot) coalesces concurrent wakeups.
type combinedDriver struct {
	mu    sync.Mutex
	video *videoInput
	audio *audioInput
}

func (d *combinedDriver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.video.start(ctx); err != nil {
		return bmderrors.New(bmderrors.Start, "capture.start", err)
	}
	if err := d.audio.start(); err != nil {
		_ = d.video.stop()
		return bmderrors.New(bmderrors.Start, "capture.start", err)
	}
	return nil
}

func (d *combinedDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	errV := d.video.stop()
	errA := d.audio.stop()
	if errV != nil {
		return bmderrors.New(bmderrors.Stop, "capture.stop", errV)
	}
	if errA != nil {
		return bmderrors.New(bmderrors.Stop, "capture.stop", errA)
	}
	return nil
}

func (d *combinedDriver) Delete() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	errV := d.video.close()
	errA := d.audio.close()
	if errV != nil {
		return bmderrors.New(bmderrors.Fd, "capture.delete", errV)
	}
	if errA != nil {
		return bmderrors.New(bmderrors.Fd, "capture.delete", errA)
	}
	return nil
}

// nowMs is the monotonic-ish capture timestamp source used by both
// backends: milliseconds since an arbitrary daemon-local epoch. Real wall
// time is irrelevant to the protocol, only monotonic ordering is.
var captureEpoch = time.Now()

func nowMs() int64 { return time.Since(captureEpoch).Milliseconds() }
