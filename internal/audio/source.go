// Package audio produces fixed-size chunks of signed 16-bit mono PCM and hands
// them to a ChunkConsumer.
package audio

import (
	"encoding/binary"
	"fmt"

	"github.com/loqalabs/loqa-wayfinder/internal/config"
)

// ChunkConsumer receives captured audio. Implementations are invoked from the
// capture thread and must return quickly. The samples slice is only valid for
// the duration of the call.
type ChunkConsumer interface {
	ConsumeChunk(samples []int16)
}

// ChunkConsumerFunc adapts a function to ChunkConsumer.
type ChunkConsumerFunc func(samples []int16)

func (f ChunkConsumerFunc) ConsumeChunk(samples []int16) { f(samples) }

// Source is a continuous input stream.
type Source interface {
	// Start begins delivering chunks to consumer.
	Start(consumer ChunkConsumer) error
	// Active reports whether the stream is still delivering audio.
	Active() bool
	// Close stops the stream and releases the device.
	Close() error
}

// NewSource builds the source selected by cfg.Source.
func NewSource(cfg config.AudioConfig) (Source, error) {
	switch cfg.Source {
	case "microphone":
		return NewMicrophone(cfg), nil
	case "wav":
		return NewWAVFile(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported audio source %q", cfg.Source)
	}
}

// PCMBytes encodes samples as little-endian 16-bit PCM.
func PCMBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Samples decodes little-endian 16-bit PCM. A trailing odd byte is an error.
func Samples(pcm []byte) ([]int16, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not aligned")
	}
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out, nil
}
