package stt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-wayfinder/internal/config"
)

// TranscriptResult captures recognizer output.
type TranscriptResult struct {
	Text       string
	Confidence float64
}

// Engine abstracts STT backends. An engine holds loaded model artifacts and
// hands out one decode stream per capture session.
type Engine interface {
	NewStream(ctx context.Context) (Stream, error)
	Close() error
}

// Stream is a push-based streaming decode. Feed and Intermediate are called
// from the capture path and must not block on decoding for long; Finish
// flushes buffered audio and returns the final transcript. A stream is not
// usable after Finish.
type Stream interface {
	Feed(pcm []byte) error
	Intermediate() (string, error)
	Finish(ctx context.Context) (string, error)
}

// NewEngine builds the backend selected by cfg.Mode.
func NewEngine(cfg config.STTConfig, audio config.AudioConfig, logger *slog.Logger) (Engine, error) {
	switch cfg.Mode {
	case "vosk":
		return NewVoskEngine(cfg, audio.SampleRate)
	case "exec":
		engine, err := NewExecEngine(cfg, audio.SampleRate, audio.Channels, logger)
		if err != nil {
			return nil, err
		}
		return engine, nil
	case "mock":
		return NewMockEngine(cfg.MockTranscript), nil
	default:
		return nil, fmt.Errorf("unsupported stt mode %q", cfg.Mode)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
