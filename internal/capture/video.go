package capture

import (
	"context"
	"sync"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"

	"github.com/wtvlabs/bmdcastd/internal/avslot"
	"github.com/wtvlabs/bmdcastd/internal/bmderrors"
)

// videoInput wraps a go4vl device.Device configured for 8-bit YUY2 capture
// at the resolved display mode, and forwards every frame into an avslot.
type videoInput struct {
	path string
	mode Mode
	slot *avslot.Slot

	mu     sync.Mutex
	dev    *device.Device
	cancel context.CancelFunc
	done   chan struct{}
}

func newVideoInput(path string, mode Mode, slot *avslot.Slot) (*videoInput, error) {
	dev, err := device.Open(path,
		device.WithPixFormat(v4l2.PixFormat{
			Width:       uint32(mode.Width),
			Height:      uint32(mode.Height),
			PixelFormat: v4l2.PixelFmtYUYV,
			Field:       v4l2.FieldNone,
		}),
		device.WithFPS(uint32(mode.FPSNum/max(mode.FPSDen, 1))),
		device.WithBufferSize(4),
	)
	if err != nil {
		return nil, bmderrors.New(bmderrors.Capture, "capture.video.open", err)
	}
	return &videoInput{path: path, mode: mode, slot: slot, dev: dev}, nil
}

func (v *videoInput) start(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	if err := v.dev.Start(runCtx); err != nil {
		cancel()
		return err
	}
	v.cancel = cancel
	v.done = make(chan struct{})

	stride := YUY2Stride(v.mode.Width)
	go func() {
		defer close(v.done)
		for frame := range v.dev.GetOutput() {
			v.slot.TryPublishVideo(frame, v.mode.Width, v.mode.Height, stride, "YUY2", nowMs())
		}
	}()
	return nil
}

// YUY2Stride mirrors colorconv.YUY2Stride without importing that package,
// since capture only needs it to compute the row pitch it hands to avslot.
func YUY2Stride(width int) int { return width * 2 }

func (v *videoInput) stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancel == nil {
		return nil
	}
	v.cancel()
	if err := v.dev.Stop(); err != nil {
		return err
	}
	<-v.done
	v.cancel = nil
	return nil
}

func (v *videoInput) close() error {
	return v.dev.Close()
}
