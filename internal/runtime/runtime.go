package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-wayfinder/internal/audio"
	"github.com/loqalabs/loqa-wayfinder/internal/bus"
	"github.com/loqalabs/loqa-wayfinder/internal/config"
	"github.com/loqalabs/loqa-wayfinder/internal/eventstore"
	"github.com/loqalabs/loqa-wayfinder/internal/index"
	"github.com/loqalabs/loqa-wayfinder/internal/natsserver"
	"github.com/loqalabs/loqa-wayfinder/internal/protocol"
	"github.com/loqalabs/loqa-wayfinder/internal/recommend"
	"github.com/loqalabs/loqa-wayfinder/internal/session"
	"github.com/loqalabs/loqa-wayfinder/internal/stt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Runtime wires configuration to one capture session: it loads the index,
// opens the engine and audio source, runs the session and prints the
// recommendation for the final transcript.
type Runtime struct {
	cfg            config.Config
	logger         *slog.Logger
	out            io.Writer
	httpServer     *http.Server
	telemetryClose func(context.Context) error
	ready          atomic.Bool
	wg             sync.WaitGroup
}

// New returns a runtime that prints console output to out.
func New(cfg config.Config, logger *slog.Logger, out io.Writer) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
		out:    out,
	}
}

// Start records a single session and prints the recommendation. It returns
// when the session has finished, either because the audio source ran dry or
// because ctx was cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.startTelemetry(); err != nil {
		return err
	}
	defer r.shutdown()

	idx, err := r.loadIndex()
	if err != nil {
		return err
	}

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			r.logger.Warn("failed to close event store", slogError(err))
		}
	}()

	busClient, closeBus, err := r.connectBus(ctx)
	if err != nil {
		return err
	}
	defer closeBus()

	engine, err := stt.NewEngine(r.cfg.STT, r.cfg.Audio, r.logger.With(slog.String("component", "stt")))
	if err != nil {
		return fmt.Errorf("create stt engine: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			r.logger.Warn("failed to close stt engine", slogError(err))
		}
	}()

	source, err := audio.NewSource(r.cfg.Audio)
	if err != nil {
		return fmt.Errorf("create audio source: %w", err)
	}

	sessionID := uuid.NewString()
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "wayfinder.session")
	defer span.End()
	span.SetAttributes(
		attribute.String("wayfinder.session_id", sessionID),
		attribute.String("wayfinder.audio_source", r.cfg.Audio.Source),
		attribute.String("wayfinder.stt_mode", r.cfg.STT.Mode),
	)

	metrics := newRuntimeMetrics(r.logger)
	rec := newRecorder(sessionID, span.SpanContext().TraceID().String(), busClient, store, r.logger, metrics)
	defer rec.Close()

	if err := store.AppendSession(ctx, eventstore.Session{ID: sessionID, Source: r.cfg.Audio.Source, Engine: r.cfg.STT.Mode}); err != nil {
		r.logger.Warn("failed to record session", slogError(err))
	}
	rec.Enqueue(record{
		eventType: protocol.EventSessionStarted,
		payload: protocol.SessionStarted{
			SessionID: sessionID,
			Source:    r.cfg.Audio.Source,
			Engine:    r.cfg.STT.Mode,
			Timestamp: time.Now().UTC(),
		},
	})

	sess := session.New(engine, source, session.Options{
		ID:           sessionID,
		PollInterval: time.Duration(r.cfg.Audio.PollIntervalMS) * time.Millisecond,
		Out:          r.out,
		Logger:       r.logger,
		OnInterim: func(text string) {
			rec.Enqueue(record{
				subject:   protocol.SubjectTranscriptPartial,
				eventType: protocol.EventTranscriptPartial,
				payload:   protocol.Transcript{SessionID: sessionID, Text: text, Partial: true, Timestamp: time.Now().UTC()},
			})
		},
	})

	r.ready.Store(true)
	text, runErr := sess.Run(ctx)
	r.ready.Store(false)
	if runErr != nil && text == "" {
		return fmt.Errorf("session %s: %w", sessionID, runErr)
	}
	rec.Enqueue(record{
		subject:   protocol.SubjectTranscriptFinal,
		eventType: protocol.EventTranscriptFinal,
		payload:   protocol.Transcript{SessionID: sessionID, Text: text, Timestamp: time.Now().UTC()},
	})
	if runErr != nil {
		return fmt.Errorf("session %s: %w", sessionID, runErr)
	}

	recommendation := r.recommend(ctx, idx, sessionID, text, metrics)
	rec.Enqueue(record{
		subject:   protocol.SubjectRecommendation,
		eventType: protocol.EventRecommendation,
		payload:   recommendation,
	})
	return nil
}

// Match skips capture and prints the recommendation for text.
func (r *Runtime) Match(ctx context.Context, text string) (protocol.Recommendation, error) {
	idx, err := r.loadIndex()
	if err != nil {
		return protocol.Recommendation{}, err
	}
	return r.recommend(ctx, idx, "", text, newRuntimeMetrics(r.logger)), nil
}

func (r *Runtime) recommend(ctx context.Context, idx *index.Index, sessionID, text string, metrics runtimeMetrics) protocol.Recommendation {
	result := idx.Search(text)
	picker := recommend.NewPicker(r.cfg.Recommend.SampleSize, r.cfg.Recommend.Seed)
	choices := picker.Pick(result.Locations)
	fmt.Fprintf(r.out, "Choose one of the following %s\n", formatChoices(choices))

	metrics.recordRecommendation(ctx, result.Fallback)
	r.logger.Info("recommendation ready",
		slog.String("session_id", sessionID),
		slog.Int("keywords", len(result.Keywords)),
		slog.Int("matched", len(result.Locations)),
		slog.Bool("fallback", result.Fallback),
	)
	return protocol.Recommendation{
		SessionID:  sessionID,
		Transcript: text,
		Keywords:   result.Keywords,
		Matched:    len(result.Locations),
		Fallback:   result.Fallback,
		Locations:  choices,
		Timestamp:  time.Now().UTC(),
	}
}

// formatChoices renders locations as a quoted, comma-separated list so
// multi-word names stay distinguishable.
func formatChoices(choices []string) string {
	quoted := make([]string, len(choices))
	for i, choice := range choices {
		quoted[i] = strconv.Quote(choice)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func (r *Runtime) loadIndex() (*index.Index, error) {
	idx, err := index.LoadFile(r.cfg.Index.Path, index.WithPunctuation(r.cfg.Index.Punctuation))
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	r.logger.Info("index loaded", slog.String("path", r.cfg.Index.Path), slog.Int("keywords", idx.Len()))
	return idx, nil
}

// connectBus starts the embedded broker when configured and dials the bus.
// The returned cleanup is always safe to call.
func (r *Runtime) connectBus(ctx context.Context) (*bus.Client, func(), error) {
	if !r.cfg.Bus.Enabled {
		return nil, func() {}, nil
	}
	busCfg := r.cfg.Bus
	embedded, err := natsserver.Start(busCfg, r.logger.With(slog.String("component", "nats")))
	if err != nil {
		return nil, nil, fmt.Errorf("start embedded nats: %w", err)
	}
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}
	client, err := bus.Connect(ctx, busCfg, r.cfg.RuntimeName, r.logger.With(slog.String("component", "bus")))
	if err != nil {
		embedded.Shutdown()
		return nil, nil, fmt.Errorf("connect bus: %w", err)
	}
	return client, func() {
		client.Close()
		embedded.Shutdown()
	}, nil
}

func (r *Runtime) startTelemetry() error {
	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetryClose = shutdownTelemetry

	if !r.cfg.HTTP.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slogError(err))
		}
	}()
	r.logger.Info("http server started", slog.String("addr", addr))
	return nil
}

func (r *Runtime) shutdown() {
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slogError(err))
		}
		r.wg.Wait()
	}

	if r.telemetryClose != nil {
		if err := r.telemetryClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
