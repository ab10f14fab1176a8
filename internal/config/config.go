package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const EnvPrefix = "TALK2CODE_"

type Config struct {
	ModelsDir string        `yaml:"models_dir"`
	Whisper   WhisperConfig `yaml:"whisper"`
	LLM       LLMConfig     `yaml:"llm"`
	Audio     AudioConfig   `yaml:"audio"`
	HTTP      HTTPConfig    `yaml:"http"`
	IPC       IPCConfig     `yaml:"ipc"`
	Log       LogConfig     `yaml:"log"`
}

type WhisperConfig struct {
	Tier      string        `yaml:"tier"`       // tiny, base, small, medium, large
	ModelPath string        `yaml:"model_path"` // overrides tier
	Language  string        `yaml:"language"`
	Threads   int           `yaml:"threads"`
	FFmpeg    string        `yaml:"ffmpeg"`  // converter for m4a uploads
	Timeout   time.Duration `yaml:"timeout"` // 0 = none
}

type LLMConfig struct {
	Backend   string        `yaml:"backend"`    // llama, openai, ollama
	ModelPath string        `yaml:"model_path"` // GGUF weights for llama
	LibDir    string        `yaml:"lib_dir"`    // llama.cpp shared libs for llama
	BaseURL   string        `yaml:"base_url"`   // openai, ollama
	Model     string        `yaml:"model"`      // openai, ollama
	APIKey    string        `yaml:"api_key"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"` // 0 = none
	Proxy     string        `yaml:"proxy"`   // socks5 host:port for HTTP backends
}

type AudioConfig struct {
	RecordDuration time.Duration `yaml:"record_duration"`
	SampleRate     int           `yaml:"sample_rate"`
	TempDir        string        `yaml:"temp_dir"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	Chime          bool          `yaml:"chime"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type IPCConfig struct {
	Socket string `yaml:"socket"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

var WhisperTiers = []string{"tiny", "base", "small", "medium", "large"}

var Backends = []string{"llama", "openai", "ollama"}

var LogLevels = []string{"debug", "info", "warn", "error"}

func Default() Config {
	return Config{
		ModelsDir: "./models",
		Whisper: WhisperConfig{
			Tier:     "base",
			Language: "auto",
		},
		LLM: LLMConfig{
			Backend:   "llama",
			ModelPath: "./models/orca-mini-3b-gguf2-q4_0.gguf",
			LibDir:    "./lib",
			MaxTokens: 300,
		},
		Audio: AudioConfig{
			RecordDuration: 5 * time.Second,
			SampleRate:     44100,
			MaxUploadBytes: 25 << 20,
		},
		HTTP: HTTPConfig{Addr: "127.0.0.1:8501"},
		IPC:  IPCConfig{Socket: "/tmp/talk2code.sock"},
		Log:  LogConfig{Level: "info"},
	}
}

// Load returns defaults overlaid with the YAML file at path. An empty path
// yields plain defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from TALK2CODE_* variables. Malformed numbers,
// durations and booleans are reported with the variable name.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	var errs []error
	lookup := func(key string) (string, bool) {
		v := getenv(EnvPrefix + key)
		return v, v != ""
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	num64 := func(key string, dst *int64) {
		if v, ok := lookup(key); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("MODELS_DIR", &c.ModelsDir)

	str("WHISPER_TIER", &c.Whisper.Tier)
	str("WHISPER_MODEL", &c.Whisper.ModelPath)
	str("WHISPER_LANGUAGE", &c.Whisper.Language)
	num("WHISPER_THREADS", &c.Whisper.Threads)
	str("WHISPER_FFMPEG", &c.Whisper.FFmpeg)
	dur("WHISPER_TIMEOUT", &c.Whisper.Timeout)

	str("LLM_BACKEND", &c.LLM.Backend)
	str("LLM_MODEL_PATH", &c.LLM.ModelPath)
	str("LLM_LIB_DIR", &c.LLM.LibDir)
	str("LLM_BASE_URL", &c.LLM.BaseURL)
	str("LLM_MODEL", &c.LLM.Model)
	str("LLM_API_KEY", &c.LLM.APIKey)
	num("LLM_MAX_TOKENS", &c.LLM.MaxTokens)
	dur("LLM_TIMEOUT", &c.LLM.Timeout)
	str("LLM_PROXY", &c.LLM.Proxy)

	dur("AUDIO_RECORD_DURATION", &c.Audio.RecordDuration)
	num("AUDIO_SAMPLE_RATE", &c.Audio.SampleRate)
	str("AUDIO_TEMP_DIR", &c.Audio.TempDir)
	num64("AUDIO_MAX_UPLOAD_BYTES", &c.Audio.MaxUploadBytes)
	flag("AUDIO_CHIME", &c.Audio.Chime)

	str("HTTP_ADDR", &c.HTTP.Addr)
	str("IPC_SOCKET", &c.IPC.Socket)
	str("LOG_LEVEL", &c.Log.Level)

	return errors.Join(errs...)
}

// WhisperModelPath resolves the whisper weights file from the tier unless
// an explicit path is set.
func (c *Config) WhisperModelPath() string {
	if c.Whisper.ModelPath != "" {
		return c.Whisper.ModelPath
	}
	return filepath.Join(c.ModelsDir, "ggml-"+c.Whisper.Tier+".bin")
}

func (c *Config) Validate() error {
	if c.Whisper.ModelPath == "" && !oneOf(c.Whisper.Tier, WhisperTiers) {
		return fmt.Errorf("whisper.tier %q: want one of %s", c.Whisper.Tier, strings.Join(WhisperTiers, ", "))
	}
	if c.Whisper.Threads < 0 {
		return fmt.Errorf("whisper.threads must be >= 0, got %d", c.Whisper.Threads)
	}

	if !oneOf(c.LLM.Backend, Backends) {
		return fmt.Errorf("llm.backend %q: want one of %s", c.LLM.Backend, strings.Join(Backends, ", "))
	}
	switch c.LLM.Backend {
	case "llama":
		if c.LLM.ModelPath == "" {
			return errors.New("llm.model_path is required for the llama backend")
		}
	case "openai", "ollama":
		if c.LLM.Model == "" {
			return fmt.Errorf("llm.model is required for the %s backend", c.LLM.Backend)
		}
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}

	if c.Audio.RecordDuration <= 0 {
		return fmt.Errorf("audio.record_duration must be positive, got %s", c.Audio.RecordDuration)
	}
	if c.Audio.SampleRate < 8000 {
		return fmt.Errorf("audio.sample_rate must be at least 8000, got %d", c.Audio.SampleRate)
	}
	if c.Audio.MaxUploadBytes <= 0 {
		return fmt.Errorf("audio.max_upload_bytes must be positive, got %d", c.Audio.MaxUploadBytes)
	}

	if !oneOf(c.Log.Level, LogLevels) {
		return fmt.Errorf("log.level %q: want one of %s", c.Log.Level, strings.Join(LogLevels, ", "))
	}

	if c.HTTP.Addr == "" && c.IPC.Socket == "" {
		return errors.New("at least one of http.addr or ipc.socket must be set")
	}

	return nil
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}
