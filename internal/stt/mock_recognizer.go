package stt

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type mockEngine struct {
	transcript string
}

// NewMockEngine returns an engine that needs no model. With a transcript, each
// fed chunk reveals one more word of it; without one it reports the amount of
// audio received.
func NewMockEngine(transcript string) Engine {
	return &mockEngine{transcript: transcript}
}

func (m *mockEngine) NewStream(context.Context) (Stream, error) {
	return &mockStream{words: strings.Fields(m.transcript), transcript: m.transcript}, nil
}

func (m *mockEngine) Close() error { return nil }

type mockStream struct {
	mu         sync.Mutex
	words      []string
	transcript string
	chunks     int
	bytes      int
	finished   bool
}

func (s *mockStream) Feed(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return fmt.Errorf("stream already finished")
	}
	s.chunks++
	s.bytes += len(pcm)
	return nil
}

func (s *mockStream) Intermediate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chunks == 0 {
		return "", nil
	}
	if len(s.words) == 0 {
		return fmt.Sprintf("[partial transcript length=%d]", s.bytes), nil
	}
	return strings.Join(s.words[:min(s.chunks, len(s.words))], " "), nil
}

func (s *mockStream) Finish(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return "", fmt.Errorf("stream already finished")
	}
	s.finished = true
	if s.transcript != "" {
		return s.transcript, nil
	}
	return fmt.Sprintf("[final transcript length=%d]", s.bytes), nil
}
