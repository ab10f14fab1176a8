package codegen

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaBackend generates through a local Ollama daemon.
type OllamaBackend struct {
	client *api.Client
	model  string
}

func NewOllamaBackend(baseURL, model string, httpClient *http.Client) (*OllamaBackend, error) {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &OllamaBackend{
		client: api.NewClient(u, httpClient),
		model:  model,
	}, nil
}

func (b *OllamaBackend) Name() string { return "ollama" }

func (b *OllamaBackend) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  b.model,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]any{
			"num_predict": maxTokens,
		},
	}

	var out strings.Builder
	err := b.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	return out.String(), nil
}

func (b *OllamaBackend) Close() error { return nil }
