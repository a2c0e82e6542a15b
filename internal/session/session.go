// Package session drives one capture: audio flows from a source into a
// streaming decoder until the source stops or the context is cancelled, then
// the decoder is flushed for the final transcript.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-wayfinder/internal/audio"
	"github.com/loqalabs/loqa-wayfinder/internal/stt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// State is the lifecycle position of a session.
type State int32

const (
	NotStarted State = iota
	Recording
	Finished
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Recording:
		return "recording"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrAlreadyStarted is returned by Run on a session that has already run.
var ErrAlreadyStarted = errors.New("session already started")

const defaultPollInterval = 100 * time.Millisecond

// Options configures a Session. Zero values fall back to sensible defaults.
type Options struct {
	// ID identifies the session in logs and traces. A random UUID is used
	// when empty.
	ID           string
	PollInterval time.Duration
	// Out receives the console transcript lines. Defaults to io.Discard.
	Out io.Writer
	// OnInterim is called on the capture path after each changed interim
	// transcript has been printed. It must not block.
	OnInterim func(text string)
	Logger    *slog.Logger
}

// Session owns the capture of a single utterance.
type Session struct {
	id      string
	engine  stt.Engine
	source  audio.Source
	poll    time.Duration
	out     io.Writer
	onInt   func(string)
	logger  *slog.Logger
	state   atomic.Int32
	metrics *instruments
}

// New prepares a session; nothing is opened until Run.
func New(engine stt.Engine, source audio.Source, opts Options) *Session {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	logger := opts.Logger.With(slog.String("component", "session"), slog.String("session_id", opts.ID))
	return &Session{
		id:      opts.ID,
		engine:  engine,
		source:  source,
		poll:    opts.PollInterval,
		out:     opts.Out,
		onInt:   opts.OnInterim,
		logger:  logger,
		metrics: newInstruments(logger),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return State(s.state.Load()) }

// Run records until the source goes inactive or ctx is done, then finalizes
// and returns the final transcript. Cancelling ctx is the normal way to end a
// microphone session and is not reported as an error.
func (s *Session) Run(ctx context.Context) (string, error) {
	if !s.state.CompareAndSwap(int32(NotStarted), int32(Recording)) {
		return "", ErrAlreadyStarted
	}
	defer s.state.Store(int32(Finished))

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "session.run",
		trace.WithAttributes(attribute.String("wayfinder.session_id", s.id)))
	defer span.End()

	stream, err := s.engine.NewStream(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open stream")
		return "", fmt.Errorf("open decode stream: %w", err)
	}
	tr := newTranscriber(stream, s.out, s.onInt, s.logger, s.metrics)

	if err := s.source.Start(tr); err != nil {
		_, _ = stream.Finish(context.WithoutCancel(ctx))
		span.RecordError(err)
		span.SetStatus(codes.Error, "start audio")
		return "", fmt.Errorf("start audio source: %w", err)
	}
	fmt.Fprintln(s.out, "Please start speaking, when done press Ctrl-C ...")
	s.logger.Info("recording started")

	s.wait(ctx)

	if err := s.source.Close(); err != nil {
		s.logger.Warn("failed to close audio source", slog.String("error", err.Error()))
	}
	fmt.Fprintln(s.out, "Finished recording.")

	// The capture context is usually already cancelled here.
	start := time.Now()
	text, err := tr.finish(context.WithoutCancel(ctx))
	s.metrics.recordFinalize(ctx, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "finalize")
		return "", fmt.Errorf("finalize transcript: %w", err)
	}
	fmt.Fprintf(s.out, "Final text = %s\n", text)
	s.logger.Info("recording finished", slog.Int("final_chars", len(text)))

	if err := tr.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "capture")
		return text, err
	}
	if src, ok := s.source.(interface{ Err() error }); ok {
		if err := src.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "audio source")
			return text, fmt.Errorf("audio source: %w", err)
		}
	}
	return text, nil
}

func (s *Session) wait(ctx context.Context) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for s.source.Active() {
		select {
		case <-ctx.Done():
			s.logger.Info("capture interrupted")
			return
		case <-ticker.C:
		}
	}
	s.logger.Info("audio source stopped")
}
