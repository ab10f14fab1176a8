package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrUnsupportedType = errors.New("unsupported audio type (allowed: mp3, wav, m4a)")
	ErrUploadTooLarge  = errors.New("upload too large")
)

// AllowedExtensions is the upload allow-list.
var AllowedExtensions = []string{".mp3", ".wav", ".m4a"}

var mimeToExt = map[string]string{
	"audio/mpeg":     ".mp3",
	"audio/mp3":      ".mp3",
	"audio/wav":      ".wav",
	"audio/wave":     ".wav",
	"audio/x-wav":    ".wav",
	"audio/vnd.wave": ".wav",
	"audio/mp4":      ".m4a",
	"audio/m4a":      ".m4a",
	"audio/x-m4a":    ".m4a",
}

var extToMIME = map[string]string{
	".mp3": "audio/mpeg",
	".wav": "audio/wav",
	".m4a": "audio/mp4",
}

type Options struct {
	Duration       time.Duration
	SampleRate     int
	TempDir        string // "" = os.TempDir()
	MaxUploadBytes int64
}

// Acquirer turns a microphone capture or an upload into a temporary file.
type Acquirer struct {
	capture Capturer
	opt     Options
}

func NewAcquirer(c Capturer, opt Options) *Acquirer {
	return &Acquirer{capture: c, opt: opt}
}

func (a *Acquirer) Options() Options { return a.opt }

// Record captures a fixed-length mono clip and stores it as a temp WAV.
func (a *Acquirer) Record(ctx context.Context) (*Sample, error) {
	if a.capture == nil {
		return nil, errors.New("no capture device")
	}

	log.Info("Recording", "duration", a.opt.Duration, "rate", a.opt.SampleRate)

	pcm, err := a.capture.Record(ctx, a.opt.Duration, a.opt.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}

	f, err := os.CreateTemp(a.opt.TempDir, "talk2code-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}

	s := &Sample{Path: f.Name(), Source: SourceRecord, MIME: extToMIME[".wav"]}

	if err := WriteWAV(f, pcm, a.opt.SampleRate); err != nil {
		f.Close()
		s.Remove()
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := f.Close(); err != nil {
		s.Remove()
		return nil, err
	}

	if st, err := os.Stat(s.Path); err == nil {
		s.Size = st.Size()
	}

	log.Debug("Recorded", "samples", len(pcm), "path", s.Path)
	return s, nil
}

// Upload stores the raw uploaded bytes in a temp file whose suffix matches
// the declared type.
func (a *Acquirer) Upload(name, contentType string, r io.Reader) (*Sample, error) {
	ext, err := UploadExtension(name, contentType)
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(a.opt.TempDir, "talk2code-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}

	s := &Sample{Path: f.Name(), Source: SourceUpload, MIME: extToMIME[ext]}

	src := r
	if a.opt.MaxUploadBytes > 0 {
		src = io.LimitReader(r, a.opt.MaxUploadBytes+1)
	}

	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.Remove()
		return nil, fmt.Errorf("write upload: %w", err)
	}
	if a.opt.MaxUploadBytes > 0 && n > a.opt.MaxUploadBytes {
		s.Remove()
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, a.opt.MaxUploadBytes)
	}
	if n == 0 {
		s.Remove()
		return nil, errors.New("empty upload")
	}

	s.Size = n
	log.Debug("Uploaded", "name", name, "bytes", n, "path", s.Path)
	return s, nil
}

// UploadExtension picks the temp-file suffix from the declared MIME type,
// falling back to the file name's extension.
func UploadExtension(name, contentType string) (string, error) {
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			if ext, ok := mimeToExt[strings.ToLower(mt)]; ok {
				return ext, nil
			}
		}
	}

	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return ext, nil
		}
	}

	return "", fmt.Errorf("%w: %q (%s)", ErrUnsupportedType, name, contentType)
}
