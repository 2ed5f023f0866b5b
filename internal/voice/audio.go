package voice

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"
)

// Capture format. WebRTC Opus runs at 48 kHz; frames are 20 ms.
const (
	micSampleRate = 48000
	micChannels   = 1
	frameDuration = 20 * time.Millisecond
	frameSamples  = micSampleRate / 1000 * int(frameDuration/time.Millisecond) * micChannels

	// maxPacketSize is the largest Opus packet the encoder may produce.
	maxPacketSize = 4000
	// frameBacklog is how many captured frames may wait for the encoder
	// before new ones are dropped.
	frameBacklog = 25
)

// ErrMicrophone wraps failures to open the capture device.
var ErrMicrophone = errors.New("microphone unavailable")

// Microphone is a running capture device delivering mono 16-bit PCM frames
// of frameSamples samples.
type Microphone interface {
	Frames() <-chan []int16
	Close()
}

// OpenMicrophone starts the default capture device.
func OpenMicrophone() (Microphone, error) {
	actx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init audio context: %v", ErrMicrophone, err)
	}

	m := &malgoMic{actx: actx, frames: make(chan []int16, frameBacklog)}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = micChannels
	cfg.SampleRate = micSampleRate
	cfg.PeriodSizeInMilliseconds = uint32(frameDuration / time.Millisecond)

	var asm frameAssembler
	device, err := malgo.InitDevice(actx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) { asm.push(in, m.deliver) },
	})
	if err != nil {
		m.freeContext()
		return nil, fmt.Errorf("%w: init capture device: %v", ErrMicrophone, err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		m.freeContext()
		return nil, fmt.Errorf("%w: start capture device: %v", ErrMicrophone, err)
	}
	return m, nil
}

type malgoMic struct {
	actx   *malgo.AllocatedContext
	device *malgo.Device
	frames chan []int16

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func (m *malgoMic) Frames() <-chan []int16 { return m.frames }

// deliver runs on the audio thread and never blocks it.
func (m *malgoMic) deliver(frame []int16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.frames <- frame:
	default:
	}
}

func (m *malgoMic) Close() {
	m.once.Do(func() {
		_ = m.device.Stop()
		m.device.Uninit()
		m.freeContext()

		m.mu.Lock()
		m.closed = true
		close(m.frames)
		m.mu.Unlock()
	})
}

func (m *malgoMic) freeContext() {
	_ = m.actx.Uninit()
	m.actx.Free()
}

// frameAssembler turns little-endian S16 byte chunks of any size into
// fixed-size sample frames.
type frameAssembler struct {
	buf []int16
}

func (f *frameAssembler) push(pcm []byte, emit func([]int16)) {
	for i := 0; i+1 < len(pcm); i += 2 {
		if f.buf == nil {
			f.buf = make([]int16, 0, frameSamples)
		}
		f.buf = append(f.buf, int16(binary.LittleEndian.Uint16(pcm[i:])))
		if len(f.buf) == frameSamples {
			emit(f.buf)
			f.buf = nil
		}
	}
}

type frameEncoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

type sampleWriter interface {
	WriteSample(sample media.Sample, opts *lksdk.SampleWriteOptions) error
}

func newOpusEncoder() (frameEncoder, error) {
	enc, err := opus.NewEncoder(micSampleRate, micChannels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	return enc, nil
}

// pumpAudio encodes frames and writes them to w until frames is closed or
// stop fires. It returns the first encode or write error.
func pumpAudio(frames <-chan []int16, enc frameEncoder, w sampleWriter, stop <-chan struct{}) error {
	packet := make([]byte, maxPacketSize)
	for {
		select {
		case <-stop:
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			n, err := enc.Encode(frame, packet)
			if err != nil {
				return fmt.Errorf("encode audio: %w", err)
			}
			data := make([]byte, n)
			copy(data, packet[:n])
			if err := w.WriteSample(media.Sample{Data: data, Duration: frameDuration}, nil); err != nil {
				return fmt.Errorf("write audio sample: %w", err)
			}
		}
	}
}
