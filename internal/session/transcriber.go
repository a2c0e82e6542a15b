package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/loqalabs/loqa-wayfinder/internal/audio"
	"github.com/loqalabs/loqa-wayfinder/internal/stt"
)

// Transcriber is the capture callback: it feeds each chunk to the decode
// stream and prints the interim transcript whenever it changes. The stream and
// the last printed text are only touched with mu held.
type Transcriber struct {
	mu        sync.Mutex
	stream    stt.Stream
	lastText  string
	err       error
	finished  bool
	out       io.Writer
	onInterim func(string)
	logger    *slog.Logger
	metrics   *instruments
}

var _ audio.ChunkConsumer = (*Transcriber)(nil)

func newTranscriber(stream stt.Stream, out io.Writer, onInterim func(string), logger *slog.Logger, m *instruments) *Transcriber {
	return &Transcriber{
		stream:    stream,
		out:       out,
		onInterim: onInterim,
		logger:    logger,
		metrics:   m,
	}
}

// ConsumeChunk never panics and never blocks on anything but the decode
// stream. The first decode error is kept and later chunks are dropped.
func (t *Transcriber) ConsumeChunk(samples []int16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished || t.err != nil {
		return
	}

	t.metrics.addChunk()
	if err := t.stream.Feed(audio.PCMBytes(samples)); err != nil {
		t.fail(fmt.Errorf("feed audio: %w", err))
		return
	}
	text, err := t.stream.Intermediate()
	if err != nil {
		t.fail(fmt.Errorf("intermediate decode: %w", err))
		return
	}
	if text == t.lastText {
		return
	}
	t.lastText = text
	t.metrics.addInterim()
	fmt.Fprintf(t.out, "Interim text = %s\n", text)
	if t.onInterim != nil {
		t.onInterim(text)
	}
}

// fail must be called with t.mu held.
func (t *Transcriber) fail(err error) {
	t.err = err
	t.logger.Error("decode failed during capture", slog.String("error", err.Error()))
}

// LastText returns the most recently printed interim transcript.
func (t *Transcriber) LastText() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastText
}

// Err returns the first decode error seen during capture.
func (t *Transcriber) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Transcriber) finish(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finished = true
	return t.stream.Finish(ctx)
}
