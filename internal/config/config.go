package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	StdoutTraces bool   `yaml:"stdout_traces"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Audio       AudioConfig      `yaml:"audio"`
	STT         STTConfig        `yaml:"stt"`
	Index       IndexConfig      `yaml:"index"`
	Recommend   RecommendConfig  `yaml:"recommend"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// AudioConfig describes where PCM comes from. Samples are always signed
// 16-bit; Channels is kept for validation and WAV rendering.
type AudioConfig struct {
	Source         string `yaml:"source"` // microphone, wav
	Device         string `yaml:"device"`
	WAVPath        string `yaml:"wav_path"`
	Realtime       bool   `yaml:"realtime"`
	SampleRate     int    `yaml:"sample_rate"`
	Channels       int    `yaml:"channels"`
	ChunkSize      int    `yaml:"chunk_size"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`
}

type STTConfig struct {
	Mode           string `yaml:"mode"` // vosk, exec, mock
	Command        string `yaml:"command"`
	ModelPath      string `yaml:"model_path"`
	ScorerPath     string `yaml:"scorer_path"`
	Language       string `yaml:"language"`
	PartialEveryMS int    `yaml:"partial_every_ms"`
	MockTranscript string `yaml:"mock_transcript"`
}

type IndexConfig struct {
	Path        string `yaml:"path"`
	Punctuation string `yaml:"punctuation"`
}

type RecommendConfig struct {
	SampleSize int   `yaml:"sample_size"`
	Seed       int64 `yaml:"seed"`
}

func Default() Config {
	return Config{
		RuntimeName: "wayfinder",
		Environment: "development",
		HTTP: HTTPConfig{
			Enabled: false,
			Bind:    "127.0.0.1",
			Port:    8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			LogFormat:    "json",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       false,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/wayfinder-events.db",
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxSessions:   1000,
		},
		Audio: AudioConfig{
			Source:         "microphone",
			SampleRate:     16000,
			Channels:       1,
			ChunkSize:      1024,
			PollIntervalMS: 100,
		},
		STT: STTConfig{
			Mode:           "vosk",
			ModelPath:      "./models/vosk-model-small-en-us-0.15",
			Language:       "en-US",
			PartialEveryMS: 800,
		},
		Index: IndexConfig{
			Path: "inverted-index.csv",
		},
		Recommend: RecommendConfig{
			SampleSize: 3,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "WAYFINDER_RUNTIME_NAME")
	overrideString(&cfg.Environment, "WAYFINDER_RUNTIME_ENVIRONMENT")
	overrideBool(&cfg.HTTP.Enabled, "WAYFINDER_HTTP_ENABLED")
	overrideString(&cfg.HTTP.Bind, "WAYFINDER_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "WAYFINDER_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "WAYFINDER_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFormat, "WAYFINDER_TELEMETRY_LOG_FORMAT")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "WAYFINDER_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "WAYFINDER_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.StdoutTraces, "WAYFINDER_TELEMETRY_STDOUT_TRACES")
	overrideBool(&cfg.Bus.Enabled, "WAYFINDER_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "WAYFINDER_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "WAYFINDER_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "WAYFINDER_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "WAYFINDER_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "WAYFINDER_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "WAYFINDER_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "WAYFINDER_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "WAYFINDER_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "WAYFINDER_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "WAYFINDER_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "WAYFINDER_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "WAYFINDER_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "WAYFINDER_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "WAYFINDER_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Audio.Source, "WAYFINDER_AUDIO_SOURCE")
	overrideString(&cfg.Audio.Device, "WAYFINDER_AUDIO_DEVICE")
	overrideString(&cfg.Audio.WAVPath, "WAYFINDER_AUDIO_WAV_PATH")
	overrideBool(&cfg.Audio.Realtime, "WAYFINDER_AUDIO_REALTIME")
	overrideInt(&cfg.Audio.SampleRate, "WAYFINDER_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "WAYFINDER_AUDIO_CHANNELS")
	overrideInt(&cfg.Audio.ChunkSize, "WAYFINDER_AUDIO_CHUNK_SIZE")
	overrideInt(&cfg.Audio.PollIntervalMS, "WAYFINDER_AUDIO_POLL_INTERVAL_MS")
	overrideString(&cfg.STT.Mode, "WAYFINDER_STT_MODE")
	overrideString(&cfg.STT.Command, "WAYFINDER_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "WAYFINDER_STT_MODEL_PATH")
	overrideString(&cfg.STT.ScorerPath, "WAYFINDER_STT_SCORER_PATH")
	overrideString(&cfg.STT.Language, "WAYFINDER_STT_LANGUAGE")
	overrideInt(&cfg.STT.PartialEveryMS, "WAYFINDER_STT_PARTIAL_EVERY_MS")
	overrideString(&cfg.STT.MockTranscript, "WAYFINDER_STT_MOCK_TRANSCRIPT")
	overrideString(&cfg.Index.Path, "WAYFINDER_INDEX_PATH")
	overrideString(&cfg.Index.Punctuation, "WAYFINDER_INDEX_PUNCTUATION")
	overrideInt(&cfg.Recommend.SampleSize, "WAYFINDER_RECOMMEND_SAMPLE_SIZE")
	overrideInt64(&cfg.Recommend.Seed, "WAYFINDER_RECOMMEND_SEED")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Enabled && (cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535) {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch cfg.Telemetry.LogFormat {
	case "json", "text":
	default:
		return errors.New("telemetry.log_format must be one of json|text")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionMode != "ephemeral" && cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	switch cfg.Audio.Source {
	case "microphone":
	case "wav":
		if cfg.Audio.WAVPath == "" {
			return errors.New("audio.wav_path must be set when source=wav")
		}
	default:
		return errors.New("audio.source must be one of microphone|wav")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels != 1 {
		return errors.New("audio.channels must be 1")
	}
	if cfg.Audio.ChunkSize <= 0 {
		return errors.New("audio.chunk_size must be positive")
	}
	if cfg.Audio.PollIntervalMS <= 0 {
		return errors.New("audio.poll_interval_ms must be positive")
	}
	switch cfg.STT.Mode {
	case "vosk":
		if cfg.STT.ModelPath == "" {
			return errors.New("stt.model_path must be set when mode=vosk")
		}
	case "exec":
		if cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	case "mock":
	default:
		return errors.New("stt.mode must be one of vosk|exec|mock")
	}
	if cfg.Index.Path == "" {
		return errors.New("index.path must not be empty")
	}
	if cfg.Recommend.SampleSize <= 0 {
		return errors.New("recommend.sample_size must be >= 1")
	}
	return nil
}
