// Package config_test tests the configuration loading for the speech gateway.
package config_test

import (
	"testing"
	"time"

	"github.com/book-expert/speech-gateway/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
[nats]
enabled = true
url = "nats://127.0.0.1:4222"
speech_requested_subject = "speech.requested"
speech_created_subject = "speech.created"
speech_failed_subject = "speech.failed"
queue_group = "speech-workers"
audio_object_store_bucket = "SPEECH_AUDIO"
job_timeout_seconds = 120

[tts_service]
backend = "command"
binary_path = "/opt/chatterbox/bin/chatterbox-infer"
model_path = "/opt/chatterbox/models/multilingual.safetensors"
model_name = "chatterbox-multilingual"
device = "cuda"
timeout_seconds = 600
workers = 2
ffmpeg_path = "/usr/bin/ffmpeg"
normalize_text = true
temperature = 0.7
cfg_weight = 0.5
exaggeration = 1.2

[server]
host = "127.0.0.1"
port = 8080
metrics_enabled = false

[voices]
dir = "/srv/voices"
cache_ttl_seconds = 30
extension = "wav"

[audio]
min_silence_ms = 250
silence_threshold_db = -45.0
keep_silence_ms = 20
short_text_threshold = 40

[paths]
base_logs_dir = "/var/log/speech"
`

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	err := toml.Unmarshal([]byte(fullConfig), &cfg)
	require.NoError(t, err)

	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "speech.requested", cfg.NATS.SpeechRequestedSubject)
	assert.Equal(t, "SPEECH_AUDIO", cfg.NATS.AudioObjectStoreBucket)
	assert.Equal(t, 120, cfg.NATS.JobTimeoutSeconds)
	assert.Equal(t, "command", cfg.TTS.Backend)
	assert.Equal(t, "/opt/chatterbox/bin/chatterbox-infer", cfg.TTS.BinaryPath)
	assert.Equal(t, 2, cfg.TTS.Workers)
	assert.True(t, cfg.TTS.NormalizeText)
	assert.InEpsilon(t, 0.7, cfg.TTS.Temperature, 0.001)
	assert.InEpsilon(t, 1.2, cfg.TTS.Exaggeration, 0.001)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Server.MetricsEnabled)
	assert.Equal(t, "/srv/voices", cfg.Voices.Dir)
	assert.Equal(t, 30, cfg.Voices.CacheTTLSeconds)
	assert.InEpsilon(t, -45.0, cfg.Audio.SilenceThresholdDB, 0.001)
	assert.Equal(t, 40, cfg.Audio.ShortTextThreshold)
	assert.Equal(t, "/var/log/speech", cfg.Paths.BaseLogsDir)
}

func TestParse_KeepsDefaultsForOmittedKeys(t *testing.T) {
	cfg, err := config.Parse([]byte(`
[server]
port = 9000
`))
	require.NoError(t, err)

	defaults := config.Default()
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, defaults.Server.Host, cfg.Server.Host)
	assert.Equal(t, config.BACKEND_HTTP, cfg.TTS.Backend)
	assert.InEpsilon(t, 0.5, cfg.TTS.Temperature, 0.001)
	assert.InEpsilon(t, 0.35, cfg.TTS.CFGWeight, 0.001)
	assert.InEpsilon(t, 1.0, cfg.TTS.Exaggeration, 0.001)
	assert.Equal(t, 60, cfg.Voices.CacheTTLSeconds)
	assert.Equal(t, 50, cfg.Audio.ShortTextThreshold)
	assert.False(t, cfg.NATS.Enabled)
}

func TestParse_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CHATTERBOX_TEMPERATURE", "0.9")
	t.Setenv("CHATTERBOX_CFG_WEIGHT", "0.2")
	t.Setenv("CHATTERBOX_EXAGGERATION", "1.5")
	t.Setenv("VOICE_SAMPLES_DIR", "/data/voices")
	t.Setenv("VOICE_CACHE_TTL", "5")
	t.Setenv("TTS_BACKEND", " HTTP ")

	cfg, err := config.Parse([]byte(fullConfig))
	require.NoError(t, err)

	assert.InEpsilon(t, 0.9, cfg.TTS.Temperature, 0.001)
	assert.InEpsilon(t, 0.2, cfg.TTS.CFGWeight, 0.001)
	assert.InEpsilon(t, 1.5, cfg.TTS.Exaggeration, 0.001)
	assert.Equal(t, "/data/voices", cfg.Voices.Dir)
	assert.Equal(t, 5, cfg.Voices.CacheTTLSeconds)
	assert.Equal(t, config.BACKEND_HTTP, cfg.TTS.Backend)
}

func TestParse_RejectsMalformedEnvironment(t *testing.T) {
	t.Setenv("VOICE_CACHE_TTL", "one minute")

	_, err := config.Parse(nil)
	require.Error(t, err)
}

func TestParse_RejectsMalformedTOML(t *testing.T) {
	t.Parallel()

	_, err := config.Parse([]byte("[server\nport = "))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantMsg string
	}{
		{name: "defaults", mutate: func(*config.Config) {}},
		{
			name:    "unknown backend",
			mutate:  func(c *config.Config) { c.TTS.Backend = "grpc" },
			wantMsg: "tts_service.backend",
		},
		{
			name: "command backend without binary",
			mutate: func(c *config.Config) {
				c.TTS.Backend = config.BACKEND_COMMAND
				c.TTS.BinaryPath = ""
			},
			wantMsg: "binary_path",
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *config.Config) { c.TTS.Temperature = 2.5 },
			wantMsg: "temperature",
		},
		{
			name:    "cfg weight out of range",
			mutate:  func(c *config.Config) { c.TTS.CFGWeight = -0.1 },
			wantMsg: "cfg_weight",
		},
		{
			name:    "no workers",
			mutate:  func(c *config.Config) { c.TTS.Workers = 0 },
			wantMsg: "workers",
		},
		{
			name:    "positive silence threshold",
			mutate:  func(c *config.Config) { c.Audio.SilenceThresholdDB = 3 },
			wantMsg: "silence_threshold_db",
		},
		{
			name:    "bad port",
			mutate:  func(c *config.Config) { c.Server.Port = 70000 },
			wantMsg: "server.port",
		},
		{
			name: "nats without bucket",
			mutate: func(c *config.Config) {
				c.NATS.Enabled = true
				c.NATS.AudioObjectStoreBucket = ""
			},
			wantMsg: "audio_object_store_bucket",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Default()
			testCase.mutate(&cfg)

			err := cfg.Validate()
			if testCase.wantMsg == "" {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, config.ErrInvalidConfig)
			assert.Contains(t, err.Error(), testCase.wantMsg)
		})
	}
}

func TestDurations(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 30*time.Second, config.Seconds(30))
	assert.Equal(t, 200*time.Millisecond, config.Milliseconds(200))
}
