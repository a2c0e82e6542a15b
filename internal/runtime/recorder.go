package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/loqalabs/loqa-wayfinder/internal/bus"
	"github.com/loqalabs/loqa-wayfinder/internal/eventstore"
)

const recorderQueueSize = 64

type record struct {
	subject   string
	eventType string
	payload   any
}

// recorder moves session events off the capture path. Enqueue never blocks:
// a full queue drops the event with a warning.
type recorder struct {
	sessionID string
	traceID   string
	bus       *bus.Client
	store     *eventstore.Store
	logger    *slog.Logger
	metrics   runtimeMetrics

	mu     sync.Mutex
	closed bool
	queue  chan record
	done   chan struct{}
}

func newRecorder(sessionID, traceID string, busClient *bus.Client, store *eventstore.Store, logger *slog.Logger, metrics runtimeMetrics) *recorder {
	r := &recorder{
		sessionID: sessionID,
		traceID:   traceID,
		bus:       busClient,
		store:     store,
		logger:    logger.With(slog.String("component", "recorder")),
		metrics:   metrics,
		queue:     make(chan record, recorderQueueSize),
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *recorder) Enqueue(rec record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- rec:
	default:
		r.metrics.recordDropped(context.Background())
		r.logger.Warn("recorder queue full; dropping event", slog.String("type", rec.eventType))
	}
}

// Close drains queued events and stops the worker.
func (r *recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	<-r.done
}

func (r *recorder) run() {
	defer close(r.done)
	ctx := context.Background()
	for rec := range r.queue {
		data, err := json.Marshal(rec.payload)
		if err != nil {
			r.logger.Error("failed to encode event", slog.String("type", rec.eventType), slogError(err))
			continue
		}
		if r.bus != nil && rec.subject != "" {
			if err := r.bus.Publish(rec.subject, data); err != nil {
				r.logger.Warn("failed to publish event", slog.String("subject", rec.subject), slogError(err))
			}
		}
		if r.store != nil {
			evt := eventstore.Event{SessionID: r.sessionID, TraceID: r.traceID, Type: rec.eventType, Payload: data}
			if err := r.store.AppendEvent(ctx, evt); err != nil {
				r.logger.Warn("failed to store event", slog.String("type", rec.eventType), slogError(err))
			}
		}
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
