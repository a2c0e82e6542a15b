package audio

import (
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/loqalabs/loqa-wayfinder/internal/config"
)

type recordingConsumer struct {
	mu     sync.Mutex
	chunks [][]int16
}

func (r *recordingConsumer) ConsumeChunk(samples []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, append([]int16(nil), samples...))
}

func (r *recordingConsumer) snapshot() [][]int16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]int16(nil), r.chunks...)
}

func writeWAV(t *testing.T, samples []int, sampleRate, channels int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.wav")
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{Format: &goaudio.Format{NumChannels: channels, SampleRate: sampleRate}, Data: samples}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav: %v", err)
	}
	return path
}

func waitInactive(t *testing.T, src Source) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for src.Active() {
		if time.Now().After(deadline) {
			t.Fatal("source did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPCMRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	pcm := PCMBytes(samples)
	if len(pcm) != 10 {
		t.Fatalf("expected 10 bytes, got %d", len(pcm))
	}
	got, err := Samples(pcm)
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	if !reflect.DeepEqual(got, samples) {
		t.Fatalf("expected %v, got %v", samples, got)
	}
	if _, err := Samples([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected alignment error")
	}
}

func TestWAVFileDeliversFixedChunks(t *testing.T) {
	samples := make([]int, 10)
	for i := range samples {
		samples[i] = i * 100
	}
	path := writeWAV(t, samples, 16000, 1)
	cfg := config.AudioConfig{Source: "wav", WAVPath: path, SampleRate: 16000, Channels: 1, ChunkSize: 4}

	src := NewWAVFile(cfg)
	consumer := &recordingConsumer{}
	if err := src.Start(consumer); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitInactive(t, src)
	if err := src.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := src.Err(); err != nil {
		t.Fatalf("unexpected playback error: %v", err)
	}

	chunks := consumer.snapshot()
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 4 || len(chunks[1]) != 4 || len(chunks[2]) != 2 {
		t.Fatalf("unexpected chunk sizes: %v", chunks)
	}
	if chunks[2][1] != 900 {
		t.Fatalf("expected last sample 900, got %d", chunks[2][1])
	}
}

func TestWAVFileRejectsFormatMismatch(t *testing.T) {
	path := writeWAV(t, []int{1, 2, 3, 4}, 8000, 1)
	src := NewWAVFile(config.AudioConfig{WAVPath: path, SampleRate: 16000, Channels: 1, ChunkSize: 4})
	if err := src.Start(ChunkConsumerFunc(func([]int16) {})); err == nil {
		t.Fatal("expected sample rate mismatch error")
	}
	if src.Active() {
		t.Fatal("source should not be active after failed start")
	}
}

func TestWAVFileCloseStopsRealtimePlayback(t *testing.T) {
	path := writeWAV(t, make([]int, 16000), 16000, 1)
	src := NewWAVFile(config.AudioConfig{WAVPath: path, SampleRate: 16000, Channels: 1, ChunkSize: 160, Realtime: true})
	if err := src.Start(ChunkConsumerFunc(func([]int16) {})); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !src.Active() {
		t.Fatal("expected active source")
	}
	if err := src.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if src.Active() {
		t.Fatal("expected inactive source after close")
	}
}

func TestNewSource(t *testing.T) {
	if _, err := NewSource(config.AudioConfig{Source: "line-in"}); err == nil {
		t.Fatal("expected error for unknown source")
	}
	src, err := NewSource(config.AudioConfig{Source: "wav"})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if _, ok := src.(*WAVFile); !ok {
		t.Fatalf("expected *WAVFile, got %T", src)
	}
}
