package capture

import (
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/wtvlabs/bmdcastd/internal/avslot"
	"github.com/wtvlabs/bmdcastd/internal/bmderrors"
)

const (
	audioSampleRate     = 48000
	audioChannels       = 2
	audioBytesPerSample = 2 // 16-bit
	audioFramesPerBuf   = 960 // 20ms at 48kHz
)

// audioInput wraps a portaudio input stream configured for 48kHz/16-bit/
// 2-channel capture and forwards every buffer into an avslot.
type audioInput struct {
	slot *avslot.Slot

	mu     sync.Mutex
	stream *portaudio.Stream
}

func newAudioInput(slot *avslot.Slot) (*audioInput, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, bmderrors.New(bmderrors.Capture, "capture.audio.init", err)
	}
	a := &audioInput{slot: slot}

	stream, err := portaudio.OpenDefaultStream(
		audioChannels, 0, float64(audioSampleRate), audioFramesPerBuf,
		a.onSamples,
	)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, bmderrors.New(bmderrors.Capture, "capture.audio.open", err)
	}
	a.stream = stream
	return a, nil
}

// onSamples is the portaudio callback: it runs on the library's own audio
// thread and, per spec.md §5, must never block on socket I/O. It only
// touches the avslot and its self-pipe.
func (a *audioInput) onSamples(in []int16) {
	pcm := make([]byte, len(in)*2)
	for i, s := range in {
		pcm[2*i] = byte(s)
		pcm[2*i+1] = byte(s >> 8)
	}
	samples := len(in) / audioChannels
	a.slot.TryPublishAudio(pcm, audioChannels, audioBytesPerSample, samples, "PCM16", nowMs())
}

func (a *audioInput) start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream.Start()
}

func (a *audioInput) stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stream == nil {
		return nil
	}
	return a.stream.Stop()
}

func (a *audioInput) close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.stream.Close()
	_ = portaudio.Terminate()
	return err
}
