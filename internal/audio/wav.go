package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavBitDepth = 16

type WAVInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int
}

func (i WAVInfo) Seconds() float64 {
	if i.SampleRate == 0 {
		return 0
	}
	return float64(i.Frames) / float64(i.SampleRate)
}

// WriteWAV encodes mono float32 samples in [-1, 1] as 16-bit PCM.
func WriteWAV(w io.WriteSeeker, pcm []float32, sampleRate int) error {
	if len(pcm) == 0 {
		return errors.New("no samples to encode")
	}

	enc := wav.NewEncoder(w, sampleRate, wavBitDepth, 1, 1)

	data := make([]int, len(pcm))
	for i, x := range pcm {
		data[i] = int(math.Round(float64(clamp(x)) * math.MaxInt16))
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write pcm: %w", err)
	}

	return enc.Close()
}

func ReadWAVInfo(path string) (WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVInfo{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return WAVInfo{}, errors.New("invalid wav")
	}

	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return WAVInfo{}, fmt.Errorf("read pcm: %w", err)
	}

	ch := int(dec.NumChans)
	if ch == 0 {
		ch = 1
	}

	return WAVInfo{
		SampleRate: int(dec.SampleRate),
		Channels:   ch,
		BitDepth:   int(dec.BitDepth),
		Frames:     len(pb.Data) / ch,
	}, nil
}

func clamp(x float32) float32 {
	if x < -1 {
		return -1
	}
	if x > 1 {
		return 1
	}
	return x
}
