// Package codegen turns a transcript into Python source with a local
// language model.
package codegen

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"time"
)

const (
	InstructionPrefix = "Write a Python script for: "
	DefaultMaxTokens  = 300

	ArtifactName = "generated_code.py"
	ArtifactMIME = "text/x-python"
)

// Backend is a text-generation model that completes a prompt.
type Backend interface {
	Name() string
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
	Close() error
}

type Generator struct {
	backend   Backend
	maxTokens int
}

func NewGenerator(b Backend, maxTokens int) *Generator {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Generator{backend: b, maxTokens: maxTokens}
}

func Instruction(transcript string) string {
	return InstructionPrefix + transcript
}

// Generate asks the backend for a script and returns its output verbatim.
func (g *Generator) Generate(ctx context.Context, transcript string) (string, error) {
	if g.backend == nil {
		return "", errors.New("no generation backend")
	}

	instruction := Instruction(transcript)
	start := time.Now()

	out, err := g.backend.Complete(ctx, instruction, g.maxTokens)
	if err != nil {
		return "", fmt.Errorf("%s: %w", g.backend.Name(), err)
	}

	log.Debug("Generated", "backend", g.backend.Name(), "chars", len(out), "took", time.Since(start))
	return out, nil
}

func (g *Generator) Backend() string {
	if g.backend == nil {
		return ""
	}
	return g.backend.Name()
}

func (g *Generator) Close() error {
	if g.backend == nil {
		return nil
	}
	return g.backend.Close()
}

// Artifact is the downloadable form of generated code.
type Artifact struct {
	Name string
	MIME string
	Data []byte
}

func NewArtifact(code string) Artifact {
	return Artifact{Name: ArtifactName, MIME: ArtifactMIME, Data: []byte(code)}
}
