package audioconv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

const DefaultSampleRate = 16000

var ErrUnsupported = errors.New("unsupported audio format")

type Options struct {
	SampleRate int    // output rate; 0 = 16 kHz
	MaxSamples int    // 0 = no limit
	FFmpeg     string // binary used for containers without a native decoder; "" = "ffmpeg"
}

// pcm is interleaved float32 audio before normalisation.
type pcm struct {
	data     []float32
	rate     int
	channels int
}

type decodeFunc func(ctx context.Context, f *os.File, opt Options) (pcm, error)

var byExt = map[string]decodeFunc{
	".wav":  decodeWAV,
	".mp3":  decodeMP3,
	".ogg":  decodeOgg,
	".oga":  decodeOgg,
	".opus": decodeOgg,
	".m4a":  decodeFFmpeg,
	".mp4":  decodeFFmpeg,
	".aac":  decodeFFmpeg,
}

// DecodeFile reads an audio file and returns mono float32 samples in [-1, 1]
// at opt.SampleRate.
func DecodeFile(ctx context.Context, path string, opt Options) ([]float32, error) {
	if opt.SampleRate <= 0 {
		opt.SampleRate = DefaultSampleRate
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, ok := byExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		dec, err = sniff(f)
		if err != nil {
			return nil, err
		}
	}

	p, err := dec(ctx, f, opt)
	if err != nil {
		return nil, err
	}
	if len(p.data) == 0 {
		return nil, errors.New("no audio samples decoded")
	}

	x := downmixInterleaved(p.data, p.channels)
	x = resampleLinear(x, p.rate, opt.SampleRate)
	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		x = x[:opt.MaxSamples]
	}
	return x, nil
}

func sniff(f *os.File) (decodeFunc, error) {
	magic, _ := bufio.NewReader(f).Peek(12)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	switch {
	case bytes.HasPrefix(magic, []byte("RIFF")):
		return decodeWAV, nil
	case bytes.HasPrefix(magic, []byte("OggS")):
		return decodeOgg, nil
	case bytes.HasPrefix(magic, []byte("ID3")),
		len(magic) >= 2 && magic[0] == 0xFF && magic[1]&0xE0 == 0xE0:
		return decodeMP3, nil
	case len(magic) >= 8 && string(magic[4:8]) == "ftyp":
		return decodeFFmpeg, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(f.Name()))
}

func decodeWAV(_ context.Context, f *os.File, _ Options) (pcm, error) {
	return wavFrom(f)
}

func wavFrom(r io.ReadSeeker) (pcm, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return pcm{}, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil || pb == nil || pb.Data == nil {
		if err == nil {
			err = errors.New("empty wav")
		}
		return pcm{}, err
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}

	p := pcm{data: intSliceToFloat32(pb.Data, bd), rate: 44100, channels: 1}
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			p.channels = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			p.rate = pb.Format.SampleRate
		}
	}
	return p, nil
}

func decodeMP3(_ context.Context, f *os.File, _ Options) (pcm, error) {
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return pcm{}, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return pcm{}, err
	}
	ints, err := s16le(raw.Bytes())
	if err != nil {
		return pcm{}, err
	}

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	// go-mp3 always yields 16-bit stereo
	return pcm{data: int16SliceToFloat32(ints), rate: sr, channels: 2}, nil
}

func decodeOgg(_ context.Context, f *os.File, _ Options) (pcm, error) {
	p, verr := decodeOggVorbis(f)
	if verr == nil {
		return p, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return pcm{}, err
	}
	p, oerr := decodeOggOpus(f)
	if oerr == nil {
		return p, nil
	}
	return pcm{}, fmt.Errorf("cannot decode ogg as vorbis (%v) or opus (%w)", verr, oerr)
}

func decodeOggVorbis(r io.Reader) (pcm, error) {
	data, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return pcm{}, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return pcm{}, errors.New("invalid ogg/vorbis stream")
	}
	return pcm{data: data, rate: format.SampleRate, channels: format.Channels}, nil
}

func decodeOggOpus(rs io.ReadSeeker) (pcm, error) {
	dec, err := popus.NewDecoder(rs)
	if err != nil {
		return pcm{}, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	// opus always decodes at 48 kHz
	var (
		out []float32
		buf = make([]int16, 48_000*ch/2)
	)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			out = append(out, int16SliceToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return pcm{}, err
		}
	}

	return pcm{data: out, rate: 48000, channels: ch}, nil
}

// decodeFFmpeg converts containers we cannot parse natively (m4a/aac) to
// raw mono s16le at the target rate through an external ffmpeg. A WAV
// written to a pipe carries no chunk sizes, so raw samples are requested.
func decodeFFmpeg(ctx context.Context, f *os.File, opt Options) (pcm, error) {
	bin := opt.FFmpeg
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, bin,
		"-nostdin", "-loglevel", "error",
		"-i", f.Name(),
		"-f", "s16le", "-acodec", "pcm_s16le", "-ac", "1", "-ar", strconv.Itoa(opt.SampleRate),
		"-",
	)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return pcm{}, fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return pcm{}, fmt.Errorf("ffmpeg: %w", err)
	}

	ints, err := s16le(out.Bytes())
	if err != nil {
		return pcm{}, fmt.Errorf("ffmpeg output: %w", err)
	}
	return pcm{data: int16SliceToFloat32(ints), rate: opt.SampleRate, channels: 1}, nil
}

// s16le reads little-endian 16-bit samples; a trailing odd byte is dropped.
func s16le(raw []byte) ([]int16, error) {
	ints := make([]int16, len(raw)/2)
	if len(ints) == 0 {
		return ints, nil
	}
	if err := binary.Read(bytes.NewReader(raw[:2*len(ints)]), binary.LittleEndian, &ints); err != nil {
		return nil, err
	}
	return ints, nil
}
