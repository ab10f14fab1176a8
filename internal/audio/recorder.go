package audio

import (
	"context"
	"errors"
	"time"

	"github.com/gordonklaus/portaudio"
)

// Capturer reads a fixed amount of mono audio from an input device.
type Capturer interface {
	Record(ctx context.Context, dur time.Duration, sampleRate int) ([]float32, error)
}

type Recorder struct {
	frameSize int
}

func NewRecorder() *Recorder { return &Recorder{frameSize: 1024} }

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// Record blocks until dur worth of mono samples at sampleRate have been read
// from the default input device.
func (r *Recorder) Record(ctx context.Context, dur time.Duration, sampleRate int) ([]float32, error) {
	if dur <= 0 || sampleRate <= 0 {
		return nil, errors.New("invalid record duration or sample rate")
	}

	total := FrameCount(dur, sampleRate)
	buf := make([]float32, r.frameSize)

	stream, err := portaudio.OpenDefaultStream(
		1, // in
		0, // no out
		float64(sampleRate),
		len(buf),
		buf,
	)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	out := make([]float32, 0, total)
	for len(out) < total {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, err
		}

		need := total - len(out)
		if need < len(buf) {
			out = append(out, buf[:need]...)
		} else {
			out = append(out, buf...)
		}
	}

	return out, nil
}

// FrameCount is the number of mono frames in dur at sampleRate.
func FrameCount(dur time.Duration, sampleRate int) int {
	return int(dur.Seconds() * float64(sampleRate))
}
