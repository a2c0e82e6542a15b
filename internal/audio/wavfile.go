package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/loqalabs/loqa-wayfinder/internal/config"
)

// WAVFile replays a 16-bit mono WAV recording through a ChunkConsumer, as if
// it were captured live. It becomes inactive once the file is exhausted.
type WAVFile struct {
	cfg    config.AudioConfig
	mu     sync.Mutex
	file   *os.File
	active atomic.Bool
	stop   chan struct{}
	done   chan struct{}
	err    error
}

func NewWAVFile(cfg config.AudioConfig) *WAVFile {
	return &WAVFile{cfg: cfg}
}

func (w *WAVFile) Start(consumer ChunkConsumer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		return errors.New("wav source already started")
	}

	file, err := os.Open(w.cfg.WAVPath)
	if err != nil {
		return fmt.Errorf("open wav: %w", err)
	}
	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		file.Close()
		return fmt.Errorf("%s is not a valid wav file", w.cfg.WAVPath)
	}
	if int(dec.SampleRate) != w.cfg.SampleRate || int(dec.NumChans) != w.cfg.Channels || dec.BitDepth != 16 {
		file.Close()
		return fmt.Errorf("wav format %dHz/%dch/%dbit does not match %dHz/%dch/16bit",
			dec.SampleRate, dec.NumChans, dec.BitDepth, w.cfg.SampleRate, w.cfg.Channels)
	}

	w.file = file
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.active.Store(true)
	go w.run(dec, consumer)
	return nil
}

func (w *WAVFile) run(dec *wav.Decoder, consumer ChunkConsumer) {
	defer close(w.done)
	defer w.active.Store(false)

	var pace *time.Ticker
	if w.cfg.Realtime {
		pace = time.NewTicker(time.Duration(w.cfg.ChunkSize) * time.Second / time.Duration(w.cfg.SampleRate))
		defer pace.Stop()
	}

	buf := &goaudio.IntBuffer{
		Format: dec.Format(),
		Data:   make([]int, w.cfg.ChunkSize*w.cfg.Channels),
	}
	chunk := make([]int16, len(buf.Data))
	for {
		select {
		case <-w.stop:
			return
		default:
		}

		n, err := dec.PCMBuffer(buf)
		if n > 0 {
			for i := 0; i < n; i++ {
				chunk[i] = int16(buf.Data[i])
			}
			consumer.ConsumeChunk(chunk[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				w.err = fmt.Errorf("decode wav: %w", err)
			}
			return
		}
		if n == 0 {
			return
		}

		if pace != nil {
			select {
			case <-w.stop:
				return
			case <-pace.C:
			}
		}
	}
}

func (w *WAVFile) Active() bool {
	return w.active.Load()
}

// Err reports a decode failure that ended playback early.
func (w *WAVFile) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done == nil {
		return nil
	}
	select {
	case <-w.done:
		return w.err
	default:
		return nil
	}
}

func (w *WAVFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil || w.stop == nil {
		return nil
	}
	select {
	case <-w.stop:
		return nil
	default:
	}
	close(w.stop)
	<-w.done
	return w.file.Close()
}
