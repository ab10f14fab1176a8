// Package stt turns local audio files into text with a whisper.cpp model.
package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"talk2code/pkg/audioconv"
)

var ErrNoAudio = errors.New("no audio samples")

type Options struct {
	Language  string // "auto" when empty
	Threads   int    // NumCPU when <= 0
	Translate bool   // translate to English
	Prompt    string // optional decoding hint
	FFmpeg    string // converter for m4a/aac, "" = "ffmpeg" on PATH
}

type Segment struct {
	Text       string
	Start, End time.Duration
}

type Result struct {
	Text     string
	Segments []Segment
	Language string
}

// Transcriber owns one whisper.cpp model. Calls are serialised; the model
// is not safe for concurrent contexts.
type Transcriber struct {
	opt Options

	mu    sync.Mutex
	model whisper.Model
}

func NewTranscriber(modelPath string, opt Options) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("empty whisper model path")
	}
	if opt.Language == "" {
		opt.Language = "auto"
	}
	if opt.Threads <= 0 {
		opt.Threads = runtime.NumCPU()
	}

	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model %s: %w", modelPath, err)
	}
	return &Transcriber{opt: opt, model: m}, nil
}

// Transcribe returns the trimmed transcript of the audio file at path.
func (t *Transcriber) Transcribe(ctx context.Context, path string) (string, error) {
	res, err := t.TranscribeFile(ctx, path)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (t *Transcriber) TranscribeFile(ctx context.Context, path string) (Result, error) {
	pcm, err := audioconv.DecodeFile(ctx, path, audioconv.Options{
		SampleRate: audioconv.DefaultSampleRate,
		FFmpeg:     t.opt.FFmpeg,
	})
	if err != nil {
		return Result{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return t.TranscribePCM(ctx, pcm)
}

// TranscribePCM expects mono float32 at audioconv.DefaultSampleRate.
func (t *Transcriber) TranscribePCM(ctx context.Context, pcm []float32) (Result, error) {
	if len(pcm) == 0 {
		return Result{}, ErrNoAudio
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.model == nil {
		return Result{}, errors.New("whisper model closed")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("new whisper context: %w", err)
	}
	if err := t.configure(wctx); err != nil {
		return Result{}, err
	}

	start := time.Now()
	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("whisper process: %w", err)
	}

	res, err := collect(ctx, wctx)
	if err != nil {
		return Result{}, err
	}

	log.Debug("Whisper done", "segments", len(res.Segments), "lang", res.Language, "took", time.Since(start))
	return res, nil
}

func (t *Transcriber) configure(wctx whisper.Context) error {
	if err := wctx.SetLanguage(t.opt.Language); err != nil {
		return fmt.Errorf("set language %q: %w", t.opt.Language, err)
	}
	wctx.SetTranslate(t.opt.Translate)
	wctx.SetThreads(uint(t.opt.Threads))
	if t.opt.Prompt != "" {
		wctx.SetInitialPrompt(t.opt.Prompt)
	}
	return nil
}

func collect(ctx context.Context, wctx whisper.Context) (Result, error) {
	var (
		res   Result
		parts []string
	)

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		s, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("next segment: %w", err)
		}

		res.Segments = append(res.Segments, Segment{Text: s.Text, Start: s.Start, End: s.End})
		if txt := strings.TrimSpace(s.Text); txt != "" {
			parts = append(parts, txt)
		}
	}

	res.Text = strings.Join(parts, " ")
	if res.Language = wctx.DetectedLanguage(); res.Language == "" {
		res.Language = wctx.Language()
	}
	return res, nil
}

func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.model == nil {
		return nil
	}
	err := t.model.Close()
	t.model = nil
	return err
}
