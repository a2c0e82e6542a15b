//go:build vosk

package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"
	"github.com/loqalabs/loqa-wayfinder/internal/config"
)

// VoskAvailable reports whether the binary was built with the vosk tag.
const VoskAvailable = true

type voskEngine struct {
	model      *vosk.VoskModel
	grammar    string
	sampleRate float64
}

// NewVoskEngine loads the model directory from cfg.ModelPath. When
// cfg.ScorerPath is set it must hold a JSON array of phrases; recognition is
// then restricted to that vocabulary.
func NewVoskEngine(cfg config.STTConfig, sampleRate int) (Engine, error) {
	vosk.SetLogLevel(-1)

	var grammar string
	if cfg.ScorerPath != "" {
		data, err := os.ReadFile(cfg.ScorerPath)
		if err != nil {
			return nil, fmt.Errorf("read vocabulary: %w", err)
		}
		var phrases []string
		if err := json.Unmarshal(data, &phrases); err != nil {
			return nil, fmt.Errorf("parse vocabulary %s: %w", cfg.ScorerPath, err)
		}
		grammar = string(data)
	}

	model, err := vosk.NewModel(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load vosk model %s: %w", cfg.ModelPath, err)
	}
	return &voskEngine{model: model, grammar: grammar, sampleRate: float64(sampleRate)}, nil
}

func (e *voskEngine) NewStream(context.Context) (Stream, error) {
	var (
		rec *vosk.VoskRecognizer
		err error
	)
	if e.grammar != "" {
		rec, err = vosk.NewRecognizerGrm(e.model, e.sampleRate, e.grammar)
	} else {
		rec, err = vosk.NewRecognizer(e.model, e.sampleRate)
	}
	if err != nil {
		return nil, fmt.Errorf("create vosk recognizer: %w", err)
	}
	return &voskStream{rec: rec}, nil
}

func (e *voskEngine) Close() error {
	e.model.Free()
	return nil
}

// voskStream keeps the text of completed utterances so the transcript grows
// across pauses the way a single long decode would.
type voskStream struct {
	mu        sync.Mutex
	rec       *vosk.VoskRecognizer
	committed []string
	finished  bool
}

type voskResult struct {
	Text    string `json:"text"`
	Partial string `json:"partial"`
}

func (s *voskStream) Feed(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return fmt.Errorf("stream already finished")
	}
	switch s.rec.AcceptWaveform(pcm) {
	case -1:
		return fmt.Errorf("vosk rejected %d bytes of audio", len(pcm))
	case 1:
		res, err := parseVosk(s.rec.Result())
		if err != nil {
			return err
		}
		if res.Text != "" {
			s.committed = append(s.committed, res.Text)
		}
	}
	return nil
}

func (s *voskStream) Intermediate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return "", fmt.Errorf("stream already finished")
	}
	res, err := parseVosk(s.rec.PartialResult())
	if err != nil {
		return "", err
	}
	return s.join(res.Partial), nil
}

func (s *voskStream) Finish(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return "", fmt.Errorf("stream already finished")
	}
	s.finished = true
	defer s.rec.Free()

	res, err := parseVosk(s.rec.FinalResult())
	if err != nil {
		return "", err
	}
	return s.join(res.Text), nil
}

func (s *voskStream) join(tail string) string {
	parts := append([]string(nil), s.committed...)
	if tail != "" {
		parts = append(parts, tail)
	}
	return strings.Join(parts, " ")
}

func parseVosk(raw string) (voskResult, error) {
	var res voskResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return voskResult{}, fmt.Errorf("decode vosk result: %w", err)
	}
	return res, nil
}
