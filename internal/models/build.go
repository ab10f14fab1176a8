package models

import (
	"fmt"
	"net/http"

	"talk2code/internal/codegen"
	"talk2code/internal/config"
	"talk2code/pkg/stt"
)

// FromConfig wires the whisper.cpp speech model and the configured
// generation backend. httpClient is used by the HTTP backends.
func FromConfig(cfg config.Config, httpClient *http.Client) *Loader {
	speechPath := cfg.WhisperModelPath()

	spec := Spec{
		SpeechPath: speechPath,
		NewSpeech: func() (Speech, error) {
			t, err := stt.NewTranscriber(speechPath, stt.Options{
				Language: cfg.Whisper.Language,
				Threads:  cfg.Whisper.Threads,
				FFmpeg:   cfg.Whisper.FFmpeg,
			})
			if err != nil {
				return nil, err
			}
			return t, nil
		},
		NewGenerator: func() (Generator, error) {
			b, err := NewBackend(cfg.LLM, httpClient)
			if err != nil {
				return nil, err
			}
			return codegen.NewGenerator(b, cfg.LLM.MaxTokens), nil
		},
	}

	// only the in-process backend is backed by a local weights file
	if cfg.LLM.Backend == "llama" {
		spec.GeneratorPath = cfg.LLM.ModelPath
	}

	return NewLoader(spec)
}

func NewBackend(cfg config.LLMConfig, httpClient *http.Client) (codegen.Backend, error) {
	switch cfg.Backend {
	case "llama":
		b, err := codegen.NewLlamaBackend(cfg.LibDir, cfg.ModelPath)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "openai":
		return codegen.NewOpenAIBackend(cfg.BaseURL, cfg.APIKey, cfg.Model, httpClient), nil
	case "ollama":
		b, err := codegen.NewOllamaBackend(cfg.BaseURL, cfg.Model, httpClient)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
	}
}
