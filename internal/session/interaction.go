package session

import (
	"maps"
	"time"

	"talk2code/internal/audio"
)

type State string

const (
	StateIdle        State = "idle"
	StateRecording   State = "recording"
	StateRecorded    State = "recorded"
	StateTranscribed State = "transcribed"
	StateGenerated   State = "generated"
	StateFailed      State = "failed"
)

type Stage string

const (
	StageRecord     Stage = "record"
	StageUpload     Stage = "upload"
	StageLoad       Stage = "load"
	StageTranscribe Stage = "transcribe"
	StageGenerate   Stage = "generate"
)

// Interaction is one pass through the pipeline.
type Interaction struct {
	ID          string                  `json:"id,omitempty"`
	Source      audio.Source            `json:"source,omitempty"`
	State       State                   `json:"state"`
	AudioMIME   string                  `json:"audio_mime,omitempty"`
	AudioSize   int64                   `json:"audio_size,omitempty"`
	Transcript  string                  `json:"transcript,omitempty"`
	Code        string                  `json:"code,omitempty"`
	Error       string                  `json:"error,omitempty"`
	FailedStage Stage                   `json:"failed_stage,omitempty"`
	StartedAt   time.Time               `json:"started_at,omitzero"`
	FinishedAt  time.Time               `json:"finished_at,omitzero"`
	Timings     map[Stage]time.Duration `json:"timings,omitempty"`

	err error
}

func (in Interaction) Err() error { return in.err }

func (in Interaction) Done() bool {
	return in.State == StateGenerated || in.State == StateFailed
}

func (in Interaction) clone() Interaction {
	out := in
	out.Timings = maps.Clone(in.Timings)
	return out
}

// Event is a state transition pushed to subscribers.
type Event struct {
	ID      string    `json:"id"`
	State   State     `json:"state"`
	Stage   Stage     `json:"stage,omitempty"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}
