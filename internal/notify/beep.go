package notify

import (
	log "log/slog"
	"math"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

const chimeRate = beep.SampleRate(44100)

var (
	speakerOnce sync.Once
	speakerErr  error
)

// Chime plays a short two-note cue and blocks until it has finished.
func Chime() error {
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(chimeRate, chimeRate.N(time.Second/10))
	})
	if speakerErr != nil {
		return speakerErr
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(
		tone(660, 90*time.Millisecond),
		tone(880, 120*time.Millisecond),
		beep.Callback(func() { close(done) }),
	))
	<-done
	return nil
}

// ChimeOrLog is Chime for callers that cannot act on a failure.
func ChimeOrLog() {
	if err := Chime(); err != nil {
		log.Warn("Failed to play chime", "err", err)
	}
}

// tone is a sine at freq with a linear fade-out so it does not click.
func tone(freq float64, d time.Duration) beep.Streamer {
	n := chimeRate.N(d)
	pos := 0

	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= n {
			return 0, false
		}
		i := 0
		for ; i < len(samples) && pos < n; i++ {
			fade := 1 - float64(pos)/float64(n)
			v := 0.3 * fade * math.Sin(2*math.Pi*freq*float64(pos)/float64(chimeRate))
			samples[i][0] = v
			samples[i][1] = v
			pos++
		}
		return i, true
	})
}
