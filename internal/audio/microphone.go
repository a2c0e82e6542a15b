package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/loqalabs/loqa-wayfinder/internal/config"
)

// Microphone captures from a PortAudio input device through a stream
// callback.
type Microphone struct {
	cfg    config.AudioConfig
	mu     sync.Mutex
	stream *portaudio.Stream
	active atomic.Bool
	closed bool
}

func NewMicrophone(cfg config.AudioConfig) *Microphone {
	return &Microphone{cfg: cfg}
}

func (m *Microphone) Start(consumer ChunkConsumer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		return errors.New("microphone already started")
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}

	callback := func(in []int16) {
		consumer.ConsumeChunk(in)
	}

	stream, err := m.open(callback)
	if err != nil {
		_ = portaudio.Terminate()
		return err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("start input stream: %w", err)
	}
	m.stream = stream
	m.active.Store(true)
	return nil
}

func (m *Microphone) open(callback func([]int16)) (*portaudio.Stream, error) {
	rate := float64(m.cfg.SampleRate)
	if m.cfg.Device == "" {
		stream, err := portaudio.OpenDefaultStream(m.cfg.Channels, 0, rate, m.cfg.ChunkSize, callback)
		if err != nil {
			return nil, fmt.Errorf("open default input stream: %w", err)
		}
		return stream, nil
	}

	device, err := findInputDevice(m.cfg.Device)
	if err != nil {
		return nil, err
	}
	params := portaudio.LowLatencyParameters(device, nil)
	params.Input.Channels = m.cfg.Channels
	params.SampleRate = rate
	params.FramesPerBuffer = m.cfg.ChunkSize
	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return nil, fmt.Errorf("open input stream on %q: %w", device.Name, err)
	}
	return stream, nil
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}
	for _, device := range devices {
		if device.Name == name && device.MaxInputChannels > 0 {
			return device, nil
		}
	}
	return nil, fmt.Errorf("audio input device %q not found", name)
}

func (m *Microphone) Active() bool {
	return m.active.Load()
}

func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.stream == nil {
		return nil
	}
	m.closed = true
	m.active.Store(false)

	var errs []error
	if err := m.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop input stream: %w", err))
	}
	if err := m.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close input stream: %w", err))
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("terminate portaudio: %w", err))
	}
	return errors.Join(errs...)
}
