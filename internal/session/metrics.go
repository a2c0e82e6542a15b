package session

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/loqalabs/loqa-wayfinder/session"

type instruments struct {
	chunks   metric.Int64Counter
	interim  metric.Int64Counter
	finalize metric.Float64Histogram
}

func newInstruments(log *slog.Logger) *instruments {
	meter := otel.Meter(instrumentationName)
	m := &instruments{}
	var err error
	if m.chunks, err = meter.Int64Counter("wayfinder.audio.chunks", metric.WithDescription("Audio chunks fed to the decoder")); err != nil {
		log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	if m.interim, err = meter.Int64Counter("wayfinder.stt.interim_updates", metric.WithDescription("Interim transcript changes")); err != nil {
		log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	if m.finalize, err = meter.Float64Histogram("wayfinder.stt.finalize.duration", metric.WithUnit("s"), metric.WithDescription("Time spent flushing the final decode")); err != nil {
		log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return m
}

func (m *instruments) addChunk() {
	if m != nil && m.chunks != nil {
		m.chunks.Add(context.Background(), 1)
	}
}

func (m *instruments) addInterim() {
	if m != nil && m.interim != nil {
		m.interim.Add(context.Background(), 1)
	}
}

func (m *instruments) recordFinalize(ctx context.Context, d time.Duration) {
	if m != nil && m.finalize != nil {
		m.finalize.Record(ctx, d.Seconds())
	}
}
