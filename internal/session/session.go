// Package session drives one interaction at a time through
// record/upload → transcribe → generate, as an explicit state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"talk2code/internal/audio"
	"talk2code/internal/codegen"
	"talk2code/internal/metrics"
	"talk2code/internal/models"
)

var (
	ErrBusy     = errors.New("an interaction is already in progress")
	ErrNoSample = errors.New("no audio sample")
	ErrNoCode   = errors.New("no generated code")
)

type Acquirer interface {
	Record(ctx context.Context) (*audio.Sample, error)
	Upload(name, contentType string, r io.Reader) (*audio.Sample, error)
}

type Models interface {
	Load(ctx context.Context) (models.Speech, models.Generator, error)
}

type Options struct {
	TranscribeTimeout time.Duration // 0 = none
	GenerateTimeout   time.Duration // 0 = none
	Chime             func()        // played before recording
	Metrics           *metrics.Metrics
}

type Session struct {
	acq    Acquirer
	models Models
	opt    Options

	mu    sync.Mutex
	busy  bool
	stage Stage // running stage, for panic attribution
	cur   Interaction
	audio []byte

	subsMu sync.Mutex
	subs   map[chan Event]struct{}
}

func New(acq Acquirer, m Models, opt Options) *Session {
	return &Session{
		acq:    acq,
		models: m,
		opt:    opt,
		cur:    Interaction{State: StateIdle},
		subs:   make(map[chan Event]struct{}),
	}
}

// Record captures a clip from the microphone and runs the pipeline on it.
// The returned error is only ErrBusy; stage failures live in the
// Interaction.
func (s *Session) Record(ctx context.Context) (in Interaction, err error) {
	if err := s.begin(audio.SourceRecord); err != nil {
		return Interaction{}, err
	}
	defer s.guard(&in)

	s.enter(StageRecord)
	s.transition(StateRecording, "", "Recording... speak now")
	if s.opt.Chime != nil {
		s.opt.Chime()
	}

	start := time.Now()
	sample, err := s.acq.Record(ctx)
	s.timed(StageRecord, start)
	if err != nil {
		return s.fail(StageRecord, err), nil
	}

	return s.run(ctx, sample), nil
}

// Upload stores the uploaded bytes and runs the pipeline on them.
func (s *Session) Upload(ctx context.Context, name, contentType string, r io.Reader) (in Interaction, err error) {
	if err := s.begin(audio.SourceUpload); err != nil {
		return Interaction{}, err
	}
	defer s.guard(&in)

	s.enter(StageUpload)
	start := time.Now()
	sample, err := s.acq.Upload(name, contentType, r)
	s.timed(StageUpload, start)
	if err != nil {
		return s.fail(StageUpload, err), nil
	}
	s.opt.Metrics.Upload(sample.Size)

	return s.run(ctx, sample), nil
}

func (s *Session) run(ctx context.Context, sample *audio.Sample) Interaction {
	defer func() {
		if err := sample.Remove(); err != nil {
			log.Warn("Failed to remove temp audio", "path", sample.Path, "err", err)
		}
	}()

	s.keepAudio(sample)
	s.transition(StateRecorded, "", "Audio ready")

	s.enter(StageLoad)
	speech, gen, err := s.models.Load(ctx)
	if err != nil {
		return s.fail(StageLoad, err)
	}

	s.enter(StageTranscribe)
	start := time.Now()
	tctx, cancel := withTimeout(ctx, s.opt.TranscribeTimeout)
	transcript, err := speech.Transcribe(tctx, sample.Path)
	cancel()
	s.timed(StageTranscribe, start)
	if err != nil {
		return s.fail(StageTranscribe, err)
	}

	s.update(func(in *Interaction) { in.Transcript = transcript })
	s.transition(StateTranscribed, "", "Transcribed")
	log.Info("Transcribed", "text", transcript)

	s.enter(StageGenerate)
	start = time.Now()
	gctx, cancel := withTimeout(ctx, s.opt.GenerateTimeout)
	code, err := gen.Generate(gctx, transcript)
	cancel()
	s.timed(StageGenerate, start)
	if err != nil {
		return s.fail(StageGenerate, err)
	}

	s.update(func(in *Interaction) { in.Code = code })
	s.transition(StateGenerated, "", "Code generated")

	return s.finish()
}

func (s *Session) begin(src audio.Source) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.busy = true
	s.stage = ""
	s.audio = nil
	s.cur = Interaction{
		ID:        uuid.NewString(),
		Source:    src,
		State:     StateIdle,
		StartedAt: time.Now(),
		Timings:   make(map[Stage]time.Duration),
	}
	id := s.cur.ID
	s.mu.Unlock()

	log.Info("Interaction started", "id", id, "source", src)
	return nil
}

func (s *Session) keepAudio(sample *audio.Sample) {
	data, err := os.ReadFile(sample.Path)
	if err != nil {
		log.Warn("Audio not available for playback", "path", sample.Path, "err", err)
		return
	}

	s.mu.Lock()
	s.audio = data
	s.cur.AudioMIME = sample.MIME
	s.cur.AudioSize = int64(len(data))
	s.mu.Unlock()
}

func (s *Session) enter(stage Stage) {
	s.mu.Lock()
	s.stage = stage
	s.mu.Unlock()
}

// guard turns a panic inside a stage into a failed interaction so the
// session is released. It must be deferred directly.
func (s *Session) guard(in *Interaction) {
	r := recover()
	if r == nil {
		return
	}

	s.mu.Lock()
	stage := s.stage
	s.mu.Unlock()

	log.Error("Panic in interaction", "stage", stage, "panic", r, "stack", string(debug.Stack()))
	*in = s.fail(stage, fmt.Errorf("panic: %v", r))
}

func (s *Session) fail(stage Stage, err error) Interaction {
	serr := &StageError{Stage: stage, Err: err}
	log.Error("Interaction failed", "stage", stage, "err", err)

	s.update(func(in *Interaction) {
		in.err = serr
		in.Error = serr.Error()
		in.FailedStage = stage
	})
	s.transition(StateFailed, stage, serr.Error())

	return s.finish()
}

func (s *Session) finish() Interaction {
	s.mu.Lock()
	s.cur.FinishedAt = time.Now()
	s.busy = false
	snap := s.cur.clone()
	s.mu.Unlock()

	s.opt.Metrics.Interaction(string(snap.Source), string(snap.State))
	log.Info("Interaction finished", "id", snap.ID, "state", snap.State, "took", snap.FinishedAt.Sub(snap.StartedAt))
	return snap
}

func (s *Session) transition(to State, stage Stage, msg string) {
	s.mu.Lock()
	s.cur.State = to
	ev := Event{ID: s.cur.ID, State: to, Stage: stage, Message: msg, Time: time.Now()}
	s.mu.Unlock()

	s.publish(ev)
}

func (s *Session) update(f func(*Interaction)) {
	s.mu.Lock()
	f(&s.cur)
	s.mu.Unlock()
}

func (s *Session) timed(stage Stage, start time.Time) {
	d := time.Since(start)
	s.update(func(in *Interaction) { in.Timings[stage] = d })
	s.opt.Metrics.Stage(string(stage), d)
}

// Current returns a snapshot of the latest interaction.
func (s *Session) Current() Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.clone()
}

func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Artifact returns the latest generated code as a download.
func (s *Session) Artifact() (codegen.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur.State != StateGenerated {
		return codegen.Artifact{}, ErrNoCode
	}
	return codegen.NewArtifact(s.cur.Code), nil
}

// Audio returns the latest clip for playback.
func (s *Session) Audio() ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.audio == nil {
		return nil, "", ErrNoSample
	}
	return s.audio, s.cur.AudioMIME, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
