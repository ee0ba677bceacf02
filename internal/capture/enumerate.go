package capture

import (
	"strings"

	"github.com/jochenvg/go-udev"

	"github.com/wtvlabs/bmdcastd/internal/bmderrors"
)

// VideoCaptureDevices scans the video4linux subsystem and returns the
// device node paths (e.g. "/dev/video0") of devices that advertise capture
// capability, in udev enumeration order. Per spec.md §4.3, create() selects
// "the first present device" — callers take element 0 of this slice.
func VideoCaptureDevices() ([]string, error) {
	u := udev.Udev{}
	e := u.NewEnumerate()
	if err := e.AddMatchSubsystem("video4linux"); err != nil {
		return nil, bmderrors.New(bmderrors.Capture, "capture.enumerate", err)
	}

	devices, err := e.Devices()
	if err != nil {
		return nil, bmderrors.New(bmderrors.Capture, "capture.enumerate", err)
	}

	var paths []string
	for _, d := range devices {
		caps := d.PropertyValue("ID_V4L_CAPABILITIES")
		if !strings.Contains(caps, ":capture:") {
			continue
		}
		if node := d.Devnode(); node != "" {
			paths = append(paths, node)
		}
	}
	return paths, nil
}
