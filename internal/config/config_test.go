package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.ChunkSize != 1024 {
		t.Fatalf("unexpected audio defaults: %+v", cfg.Audio)
	}
	if cfg.Index.Path != "inverted-index.csv" {
		t.Fatalf("expected default index path, got %q", cfg.Index.Path)
	}
	if cfg.Recommend.SampleSize != 3 {
		t.Fatalf("expected sample size 3, got %d", cfg.Recommend.SampleSize)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wayfinder.yaml")
	data := []byte(`stt:
  mode: mock
  mock_transcript: take me to the park
audio:
  source: wav
  wav_path: ./sample.wav
recommend:
  sample_size: 5
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.STT.Mode != "mock" || cfg.STT.MockTranscript != "take me to the park" {
		t.Fatalf("unexpected stt config: %+v", cfg.STT)
	}
	if cfg.Audio.Source != "wav" || cfg.Audio.WAVPath != "./sample.wav" {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("expected unset fields to keep defaults")
	}
	if cfg.Recommend.SampleSize != 5 {
		t.Fatalf("expected sample size 5, got %d", cfg.Recommend.SampleSize)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WAYFINDER_BUS_ENABLED", "true")
	t.Setenv("WAYFINDER_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("WAYFINDER_BUS_USERNAME", "alice")
	t.Setenv("WAYFINDER_BUS_PASSWORD", "secret")
	t.Setenv("WAYFINDER_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("WAYFINDER_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("WAYFINDER_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("WAYFINDER_EVENT_STORE_MAX_SESSIONS", "123")
	t.Setenv("WAYFINDER_AUDIO_CHUNK_SIZE", "512")
	t.Setenv("WAYFINDER_STT_MODE", "exec")
	t.Setenv("WAYFINDER_STT_COMMAND", "transcribe --json")
	t.Setenv("WAYFINDER_STT_SCORER_PATH", "./vocab.json")
	t.Setenv("WAYFINDER_INDEX_PATH", "/srv/index.csv")
	t.Setenv("WAYFINDER_RECOMMEND_SEED", "42")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !cfg.Bus.Enabled {
		t.Fatal("expected bus enabled override")
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.EventStore.Path != "./tmp.db" || cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store overrides, got %+v", cfg.EventStore)
	}
	if cfg.EventStore.MaxSessions != 123 {
		t.Fatalf("expected event store max sessions override")
	}
	if cfg.Audio.ChunkSize != 512 {
		t.Fatalf("expected chunk size override, got %d", cfg.Audio.ChunkSize)
	}
	if cfg.STT.Mode != "exec" || cfg.STT.Command != "transcribe --json" || cfg.STT.ScorerPath != "./vocab.json" {
		t.Fatalf("expected stt overrides, got %+v", cfg.STT)
	}
	if cfg.Index.Path != "/srv/index.csv" {
		t.Fatalf("expected index path override")
	}
	if cfg.Recommend.Seed != 42 {
		t.Fatalf("expected seed override, got %d", cfg.Recommend.Seed)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown stt mode":    func(c *Config) { c.STT.Mode = "deepspeech" },
		"exec without cmd":    func(c *Config) { c.STT.Mode = "exec"; c.STT.Command = "" },
		"wav without path":    func(c *Config) { c.Audio.Source = "wav" },
		"stereo":              func(c *Config) { c.Audio.Channels = 2 },
		"zero chunk":          func(c *Config) { c.Audio.ChunkSize = 0 },
		"zero sample size":    func(c *Config) { c.Recommend.SampleSize = 0 },
		"empty index path":    func(c *Config) { c.Index.Path = "" },
		"bad retention":       func(c *Config) { c.EventStore.RetentionMode = "forever" },
		"bad log format":      func(c *Config) { c.Telemetry.LogFormat = "xml" },
		"bus without servers": func(c *Config) { c.Bus.Enabled = true; c.Bus.Servers = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
