package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/loqalabs/loqa-wayfinder/internal/config"
	"github.com/mattn/go-shellwords"
)

// ExecEngine shells out to an external recognizer. The command receives the
// buffered audio as a WAV file and prints {"text": ..., "confidence": ...}.
type ExecEngine struct {
	cmd        []string
	cfg        config.STTConfig
	sampleRate int
	channels   int
	logger     *slog.Logger
	mu         sync.Mutex
}

type execResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func NewExecEngine(cfg config.STTConfig, sampleRate, channels int, logger *slog.Logger) (*ExecEngine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return &ExecEngine{
		cmd:        args,
		cfg:        cfg,
		sampleRate: sampleRate,
		channels:   channels,
		logger:     logger.With(slog.String("component", "stt-exec")),
	}, nil
}

func (e *ExecEngine) NewStream(parent context.Context) (Stream, error) {
	ctx, cancel := context.WithCancel(parent)
	return &execStream{engine: e, ctx: ctx, cancel: cancel}, nil
}

func (e *ExecEngine) Close() error { return nil }

// Transcribe runs the command once over pcm. Runs are serialized.
func (e *ExecEngine) Transcribe(ctx context.Context, pcm []byte, final bool) (TranscriptResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	file, err := os.CreateTemp(os.TempDir(), "wayfinder_stt_*.wav")
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writePCMToWav(file, pcm, e.sampleRate, e.channels); err != nil {
		return TranscriptResult{}, err
	}

	base := e.cmd[0]
	cmdArgs := append([]string{}, e.cmd[1:]...)
	cmdArgs = append(cmdArgs, "--audio", file.Name())
	if e.cfg.ModelPath != "" {
		cmdArgs = append(cmdArgs, "--model", e.cfg.ModelPath)
	}
	if e.cfg.ScorerPath != "" {
		cmdArgs = append(cmdArgs, "--scorer", e.cfg.ScorerPath)
	}
	if e.cfg.Language != "" {
		cmdArgs = append(cmdArgs, "--language", e.cfg.Language)
	}
	if !final {
		cmdArgs = append(cmdArgs, "--partial")
	}

	command := exec.CommandContext(ctx, base, cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return TranscriptResult{}, fmt.Errorf("stt command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return TranscriptResult{}, fmt.Errorf("decode stt response: %w", err)
	}
	return TranscriptResult{Text: resp.Text, Confidence: resp.Confidence}, nil
}

// execStream buffers fed audio. Interim decodes are scheduled in the
// background at most every PartialEveryMS, so Feed and Intermediate never
// wait on the command.
type execStream struct {
	engine *ExecEngine
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	buffer      []byte
	lastPartial time.Time
	inflight    bool
	partial     string
	finished    bool
}

func (s *execStream) Feed(pcm []byte) error {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return fmt.Errorf("stream already finished")
	}
	s.buffer = append(s.buffer, pcm...)
	schedule := s.shouldSchedulePartial()
	var snapshot []byte
	if schedule {
		snapshot = append([]byte(nil), s.buffer...)
		s.inflight = true
	}
	s.mu.Unlock()

	if schedule {
		s.wg.Add(1)
		go s.runPartial(snapshot)
	}
	return nil
}

// shouldSchedulePartial must be called with s.mu held.
func (s *execStream) shouldSchedulePartial() bool {
	interval := time.Duration(s.engine.cfg.PartialEveryMS) * time.Millisecond
	if interval <= 0 || s.inflight {
		return false
	}
	if s.lastPartial.IsZero() {
		s.lastPartial = time.Now()
		return true
	}
	if time.Since(s.lastPartial) >= interval {
		s.lastPartial = time.Now()
		return true
	}
	return false
}

func (s *execStream) runPartial(pcm []byte) {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(s.ctx, 45*time.Second)
	defer cancel()

	result, err := s.engine.Transcribe(ctx, pcm, false)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight = false
	s.lastPartial = time.Now()
	if err != nil {
		if s.ctx.Err() == nil {
			s.engine.logger.Warn("stt partial transcription failed", slogError(err))
		}
		return
	}
	if result.Text != "" {
		s.partial = result.Text
	}
}

func (s *execStream) Intermediate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partial, nil
}

func (s *execStream) Finish(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return "", fmt.Errorf("stream already finished")
	}
	s.finished = true
	pcm := append([]byte(nil), s.buffer...)
	s.mu.Unlock()

	// A partial still running holds the engine lock; drop it.
	s.cancel()
	s.wg.Wait()

	result, err := s.engine.Transcribe(ctx, pcm, true)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

func writePCMToWav(w io.WriteSeeker, pcm []byte, sampleRate int, channels int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	buffer := &audio.IntBuffer{Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate}}
	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		sample := int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		samples[i] = sample
	}
	buffer.Data = samples

	enc := wav.NewEncoder(w, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
