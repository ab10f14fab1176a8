// Package models owns the two expensive model handles. Each one is
// constructed at most once per process and shared by every interaction.
package models

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"sync"
)

var ErrModelMissing = errors.New("model file not found")

type MissingModelError struct {
	Kind string
	Path string
}

func (e *MissingModelError) Error() string {
	return fmt.Sprintf("%s model not found at: %s", e.Kind, e.Path)
}

func (e *MissingModelError) Unwrap() error { return ErrModelMissing }

// Speech maps an audio file to a transcript.
type Speech interface {
	Transcribe(ctx context.Context, path string) (string, error)
	Close() error
}

// Generator maps a transcript to generated code.
type Generator interface {
	Generate(ctx context.Context, transcript string) (string, error)
	Close() error
}

type Spec struct {
	// SpeechPath and GeneratorPath are checked for existence before the
	// matching constructor runs. An empty path skips the check.
	SpeechPath    string
	GeneratorPath string

	NewSpeech    func() (Speech, error)
	NewGenerator func() (Generator, error)
}

type Loader struct {
	spec Spec

	speechOnce sync.Once
	speech     Speech
	speechErr  error

	genOnce sync.Once
	gen     Generator
	genErr  error
}

func NewLoader(spec Spec) *Loader {
	return &Loader{spec: spec}
}

// Load returns both handles, constructing them on first use. The generator
// goes first so a missing weights file fails before anything is built. The
// file checks run once, inside construction; failures are memoized and
// never retried.
func (l *Loader) Load(ctx context.Context) (Speech, Generator, error) {
	gen, err := l.Generator(ctx)
	if err != nil {
		return nil, nil, err
	}
	sp, err := l.Speech(ctx)
	if err != nil {
		return nil, nil, err
	}
	return sp, gen, nil
}

func (l *Loader) Speech(_ context.Context) (Speech, error) {
	l.speechOnce.Do(func() {
		if err := checkFile("speech", l.spec.SpeechPath); err != nil {
			l.speechErr = err
			return
		}
		if l.spec.NewSpeech == nil {
			l.speechErr = errors.New("no speech constructor")
			return
		}

		log.Info("Loading speech model", "path", l.spec.SpeechPath)
		s, err := l.spec.NewSpeech()
		if err != nil {
			l.speechErr = fmt.Errorf("load speech model: %w", err)
			return
		}
		l.speech = s
	})
	return l.speech, l.speechErr
}

func (l *Loader) Generator(_ context.Context) (Generator, error) {
	l.genOnce.Do(func() {
		if err := checkFile("generation", l.spec.GeneratorPath); err != nil {
			l.genErr = err
			return
		}
		if l.spec.NewGenerator == nil {
			l.genErr = errors.New("no generator constructor")
			return
		}

		log.Info("Loading generation model", "path", l.spec.GeneratorPath)
		g, err := l.spec.NewGenerator()
		if err != nil {
			l.genErr = fmt.Errorf("load generation model: %w", err)
			return
		}
		l.gen = g
	})
	return l.gen, l.genErr
}

// Close releases whatever handles were built.
func (l *Loader) Close() error {
	var errs []error

	l.speechOnce.Do(func() {})
	if l.speech != nil {
		errs = append(errs, l.speech.Close())
	}
	l.genOnce.Do(func() {})
	if l.gen != nil {
		errs = append(errs, l.gen.Close())
	}

	return errors.Join(errs...)
}

func checkFile(kind, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &MissingModelError{Kind: kind, Path: path}
		}
		return fmt.Errorf("stat %s model: %w", kind, err)
	}
	return nil
}
