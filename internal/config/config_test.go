package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.Audio.RecordDuration)
	assert.Equal(t, 44100, cfg.Audio.SampleRate)
	assert.Equal(t, 300, cfg.LLM.MaxTokens)
	assert.Equal(t, filepath.Join("models", "ggml-base.bin"), filepath.Clean(cfg.WhisperModelPath()))
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "talk2code.yaml")
	data := `
models_dir: /opt/models
whisper:
  tier: small
llm:
  backend: ollama
  model: qwen2.5-coder:1.5b
audio:
  record_duration: 3s
http:
  addr: ":9000"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/opt/models/ggml-small.bin", cfg.WhisperModelPath())
	assert.Equal(t, "ollama", cfg.LLM.Backend)
	assert.Equal(t, 3*time.Second, cfg.Audio.RecordDuration)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	// untouched keys keep their defaults
	assert.Equal(t, 44100, cfg.Audio.SampleRate)
	assert.Equal(t, "/tmp/talk2code.sock", cfg.IPC.Socket)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TALK2CODE_LLM_BACKEND":    "openai",
		"TALK2CODE_LLM_MODEL":      "gpt4all-j",
		"TALK2CODE_LLM_BASE_URL":   "http://localhost:4891/v1",
		"TALK2CODE_LLM_MAX_TOKENS": "128",
		"TALK2CODE_AUDIO_CHIME":    "true",
		"TALK2CODE_WHISPER_MODEL":  "/w/ggml-base.en.bin",
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(func(k string) string { return env[k] }))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "openai", cfg.LLM.Backend)
	assert.Equal(t, "http://localhost:4891/v1", cfg.LLM.BaseURL)
	assert.Equal(t, 128, cfg.LLM.MaxTokens)
	assert.True(t, cfg.Audio.Chime)
	assert.Equal(t, "/w/ggml-base.en.bin", cfg.WhisperModelPath())
}

func TestApplyEnvTimingAndLimits(t *testing.T) {
	env := map[string]string{
		"TALK2CODE_WHISPER_THREADS":        "4",
		"TALK2CODE_WHISPER_TIMEOUT":        "30s",
		"TALK2CODE_LLM_TIMEOUT":            "2m",
		"TALK2CODE_AUDIO_RECORD_DURATION":  "8s",
		"TALK2CODE_AUDIO_SAMPLE_RATE":      "16000",
		"TALK2CODE_AUDIO_MAX_UPLOAD_BYTES": "1048576",
		"TALK2CODE_LOG_LEVEL":              "debug",
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(func(k string) string { return env[k] }))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 4, cfg.Whisper.Threads)
	assert.Equal(t, 30*time.Second, cfg.Whisper.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.LLM.Timeout)
	assert.Equal(t, 8*time.Second, cfg.Audio.RecordDuration)
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.EqualValues(t, 1<<20, cfg.Audio.MaxUploadBytes)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestApplyEnvBadDuration(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) string {
		if k == "TALK2CODE_LLM_TIMEOUT" {
			return "soon"
		}
		return ""
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TALK2CODE_LLM_TIMEOUT")
	assert.Zero(t, cfg.LLM.Timeout)
}

func TestApplyEnvBadNumber(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) string {
		if k == "TALK2CODE_LLM_MAX_TOKENS" {
			return "lots"
		}
		return ""
	})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown tier", func(c *Config) { c.Whisper.Tier = "huge" }},
		{"unknown backend", func(c *Config) { c.LLM.Backend = "gpt4all" }},
		{"llama without weights", func(c *Config) { c.LLM.ModelPath = "" }},
		{"ollama without model", func(c *Config) { c.LLM.Backend = "ollama" }},
		{"zero tokens", func(c *Config) { c.LLM.MaxTokens = 0 }},
		{"zero duration", func(c *Config) { c.Audio.RecordDuration = 0 }},
		{"low sample rate", func(c *Config) { c.Audio.SampleRate = 100 }},
		{"no upload budget", func(c *Config) { c.Audio.MaxUploadBytes = 0 }},
		{"no surface", func(c *Config) { c.HTTP.Addr = ""; c.IPC.Socket = "" }},
		{"unknown log level", func(c *Config) { c.Log.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestExplicitWhisperPathSkipsTierCheck(t *testing.T) {
	cfg := Default()
	cfg.Whisper.Tier = "custom"
	cfg.Whisper.ModelPath = "/w/model.bin"
	assert.NoError(t, cfg.Validate())
}
