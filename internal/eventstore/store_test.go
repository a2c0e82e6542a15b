package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-wayfinder/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if es.Persistent() {
		t.Fatal("ephemeral store should not persist")
	}
	if err := es.AppendEvent(ctx, Event{SessionID: "s", Type: "transcript.final"}); err != nil {
		t.Fatalf("append on ephemeral store: %v", err)
	}
	events, err := es.ListSessionEvents(ctx, "s", 10)
	if err != nil || len(events) != 0 {
		t.Fatalf("expected no events, got %v (%v)", events, err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "events.db"), RetentionMode: "session"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	sessionID := "session-123"
	if err := es.AppendSession(context.Background(), Session{ID: sessionID, Source: "wav", Engine: "mock"}); err != nil {
		t.Fatalf("append session: %v", err)
	}
	for _, evt := range []Event{
		{SessionID: sessionID, Type: "transcript.partial", Payload: []byte("visit")},
		{SessionID: sessionID, Type: "transcript.final", Payload: []byte("visit the park"), TraceID: "abc"},
	} {
		if err := es.AppendEvent(context.Background(), evt); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}

	events, err := es.ListSessionEvents(context.Background(), sessionID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if string(events[1].Payload) != "visit the park" || events[1].TraceID != "abc" {
		t.Fatalf("unexpected event: %+v", events[1])
	}
	if events[0].CreatedAt.IsZero() {
		t.Fatal("expected created_at to be parsed")
	}

	sessions, err := es.ListSessions(context.Background(), 5)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != sessionID || sessions[0].Engine != "mock" {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "events.db"), RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendSession(context.Background(), Session{ID: "old-session", Source: "microphone"}); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.AppendEvent(context.Background(), Event{SessionID: "old-session", Type: "transcript.final"}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendSession(context.Background(), Session{ID: "new-session", Source: "microphone"}); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.ListSessionEvents(context.Background(), "old-session", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old session pruned")
	}
	sessions, err := es.ListSessions(context.Background(), 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "new-session" {
		t.Fatalf("expected only new session, got %+v", sessions)
	}
}
