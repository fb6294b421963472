// Package config provides the configuration structure for the speech gateway.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Supported model backends.
const (
	BACKEND_HTTP    = "http"
	BACKEND_COMMAND = "command"
)

var (
	// ErrInvalidConfig indicates a value outside its allowed range.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	Enabled                bool   `toml:"enabled"                  env:"NATS_ENABLED"`
	URL                    string `toml:"url"                      env:"NATS_URL"`
	SpeechRequestedSubject string `toml:"speech_requested_subject"`
	SpeechCreatedSubject   string `toml:"speech_created_subject"`
	SpeechFailedSubject    string `toml:"speech_failed_subject"`
	QueueGroup             string `toml:"queue_group"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
	JobTimeoutSeconds      int    `toml:"job_timeout_seconds"`
}

// TTSServiceConfig holds the model backend and generation defaults.
type TTSServiceConfig struct {
	Backend          string  `toml:"backend"            env:"TTS_BACKEND"`
	ServiceURL       string  `toml:"service_url"        env:"TTS_SERVICE_URL"`
	BinaryPath       string  `toml:"binary_path"        env:"TTS_BINARY_PATH"`
	ModelPath        string  `toml:"model_path"         env:"TTS_MODEL_PATH"`
	ModelName        string  `toml:"model_name"`
	Device           string  `toml:"device"             env:"TTS_DEVICE"`
	TimeoutSeconds   int     `toml:"timeout_seconds"`
	InitRetrySeconds int     `toml:"init_retry_seconds"`
	Workers          int     `toml:"workers"`
	FFmpegPath       string  `toml:"ffmpeg_path"        env:"FFMPEG_PATH"`
	NormalizeText    bool    `toml:"normalize_text"`
	Temperature      float64 `toml:"temperature"        env:"CHATTERBOX_TEMPERATURE"`
	CFGWeight        float64 `toml:"cfg_weight"         env:"CHATTERBOX_CFG_WEIGHT"`
	Exaggeration     float64 `toml:"exaggeration"       env:"CHATTERBOX_EXAGGERATION"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host                   string `toml:"host"                     env:"HOST"`
	Port                   int    `toml:"port"                     env:"PORT"`
	ReadTimeoutSeconds     int    `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `toml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds"`
	MaxBodyBytes           int64  `toml:"max_body_bytes"`
	MetricsEnabled         bool   `toml:"metrics_enabled"`
}

// VoicesConfig holds the voice sample directory settings.
type VoicesConfig struct {
	Dir             string `toml:"dir"               env:"VOICE_SAMPLES_DIR"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds" env:"VOICE_CACHE_TTL"`
	Extension       string `toml:"extension"`
}

// AudioConfig holds the silence trimming policy.
type AudioConfig struct {
	MinSilenceMs       int     `toml:"min_silence_ms"`
	SilenceThresholdDB float64 `toml:"silence_threshold_db"`
	KeepSilenceMs      int     `toml:"keep_silence_ms"`
	ShortTextThreshold int     `toml:"short_text_threshold"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir" env:"LOGS_DIR"`
}

// Config is the root configuration structure.
type Config struct {
	NATS   NATSConfig       `toml:"nats"`
	TTS    TTSServiceConfig `toml:"tts_service"`
	Server ServerConfig     `toml:"server"`
	Voices VoicesConfig     `toml:"voices"`
	Audio  AudioConfig      `toml:"audio"`
	Paths  PathsConfig      `toml:"paths"`
}

// Default returns the compiled-in configuration. Loaded values are decoded
// on top of it, so omitted keys keep these values.
func Default() Config {
	return Config{
		NATS: NATSConfig{
			URL:                    "nats://127.0.0.1:4222",
			SpeechRequestedSubject: "speech.requested",
			SpeechCreatedSubject:   "speech.created",
			SpeechFailedSubject:    "speech.failed",
			QueueGroup:             "speech-workers",
			AudioObjectStoreBucket: "SPEECH_AUDIO",
			JobTimeoutSeconds:      300,
		},
		TTS: TTSServiceConfig{
			Backend:          BACKEND_HTTP,
			ServiceURL:       "http://127.0.0.1:8001",
			ModelName:        "chatterbox-multilingual",
			Device:           "cpu",
			TimeoutSeconds:   300,
			InitRetrySeconds: 10,
			Workers:          1,
			Temperature:      0.5,
			CFGWeight:        0.35,
			Exaggeration:     1.0,
		},
		Server: ServerConfig{
			Host:                   "0.0.0.0",
			Port:                   8000,
			ReadTimeoutSeconds:     30,
			WriteTimeoutSeconds:    300,
			ShutdownTimeoutSeconds: 10,
			MaxBodyBytes:           1 << 20,
			MetricsEnabled:         true,
		},
		Voices: VoicesConfig{
			Dir:             "voice-samples",
			CacheTTLSeconds: 60,
			Extension:       ".mp3",
		},
		Audio: AudioConfig{
			MinSilenceMs:       200,
			SilenceThresholdDB: -40,
			KeepSilenceMs:      0,
			ShortTextThreshold: 50,
		},
		Paths: PathsConfig{
			BaseLogsDir: "logs",
		},
	}
}

// Load reads the project configuration through configurator, then overlays
// an optional .env file and the process environment.
func Load(log *logger.Logger) (*Config, error) {
	cfg := Default()

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	dotenvErr := godotenv.Load()
	if dotenvErr != nil && !errors.Is(dotenvErr, fs.ErrNotExist) {
		log.Warn("Failed to load .env file: %v", dotenvErr)
	}

	err = finish(&cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Parse decodes TOML data on top of the defaults and applies the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	err := toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	err = finish(&cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func finish(cfg *Config) error {
	err := env.Parse(cfg)
	if err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.TTS.Backend = strings.ToLower(strings.TrimSpace(cfg.TTS.Backend))

	return cfg.Validate()
}

// Validate checks ranges and backend requirements.
func (c *Config) Validate() error {
	var problems []string

	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	switch c.TTS.Backend {
	case BACKEND_HTTP:
		check(c.TTS.ServiceURL != "", "tts_service.service_url is required for the http backend")
	case BACKEND_COMMAND:
		check(c.TTS.BinaryPath != "", "tts_service.binary_path is required for the command backend")
	default:
		check(false, "tts_service.backend must be %q or %q, got %q", BACKEND_HTTP, BACKEND_COMMAND, c.TTS.Backend)
	}

	check(c.TTS.Workers > 0, "tts_service.workers must be positive, got %d", c.TTS.Workers)
	check(c.TTS.TimeoutSeconds > 0, "tts_service.timeout_seconds must be positive, got %d", c.TTS.TimeoutSeconds)
	check(c.TTS.Temperature >= 0 && c.TTS.Temperature <= 2, "tts_service.temperature must be in [0, 2], got %g", c.TTS.Temperature)
	check(c.TTS.CFGWeight >= 0 && c.TTS.CFGWeight <= 1, "tts_service.cfg_weight must be in [0, 1], got %g", c.TTS.CFGWeight)
	check(c.TTS.Exaggeration >= 0 && c.TTS.Exaggeration <= 2, "tts_service.exaggeration must be in [0, 2], got %g", c.TTS.Exaggeration)
	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port must be in [1, 65535], got %d", c.Server.Port)
	check(c.Voices.CacheTTLSeconds >= 0, "voices.cache_ttl_seconds must not be negative, got %d", c.Voices.CacheTTLSeconds)
	check(c.Audio.MinSilenceMs > 0, "audio.min_silence_ms must be positive, got %d", c.Audio.MinSilenceMs)
	check(c.Audio.SilenceThresholdDB < 0, "audio.silence_threshold_db must be negative, got %g", c.Audio.SilenceThresholdDB)
	check(c.Audio.KeepSilenceMs >= 0, "audio.keep_silence_ms must not be negative, got %d", c.Audio.KeepSilenceMs)
	check(c.Audio.ShortTextThreshold >= 0, "audio.short_text_threshold must not be negative, got %d", c.Audio.ShortTextThreshold)

	if c.NATS.Enabled {
		check(c.NATS.URL != "", "nats.url is required when nats is enabled")
		check(c.NATS.SpeechRequestedSubject != "", "nats.speech_requested_subject is required when nats is enabled")
		check(c.NATS.AudioObjectStoreBucket != "", "nats.audio_object_store_bucket is required when nats is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	return nil
}

// Seconds converts a whole-second setting to a duration.
func Seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

// Milliseconds converts a whole-millisecond setting to a duration.
func Milliseconds(value int) time.Duration {
	return time.Duration(value) * time.Millisecond
}
