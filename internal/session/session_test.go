package session

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talk2code/internal/audio"
	"talk2code/internal/metrics"
	"talk2code/internal/models"
)

type silentMic struct {
	err   error
	block chan struct{}
	panic string
}

func (m *silentMic) Record(_ context.Context, dur time.Duration, rate int) ([]float32, error) {
	if m.panic != "" {
		panic(m.panic)
	}
	if m.block != nil {
		<-m.block
	}
	if m.err != nil {
		return nil, m.err
	}
	return make([]float32, audio.FrameCount(dur, rate)), nil
}

type fakeSpeech struct {
	text  string
	err   error
	paths []string
}

func (f *fakeSpeech) Transcribe(_ context.Context, path string) (string, error) {
	f.paths = append(f.paths, path)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return f.text, f.err
}
func (f *fakeSpeech) Close() error { return nil }

type fakeGen struct {
	code  string
	err   error
	panic string
	input []string
}

func (f *fakeGen) Generate(_ context.Context, transcript string) (string, error) {
	f.input = append(f.input, transcript)
	if f.panic != "" {
		panic(f.panic)
	}
	return f.code, f.err
}
func (f *fakeGen) Close() error { return nil }

type fakeModels struct {
	speech *fakeSpeech
	gen    *fakeGen
	err    error
}

func (f *fakeModels) Load(context.Context) (models.Speech, models.Generator, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.speech, f.gen, nil
}

type fixture struct {
	dir    string
	mic    *silentMic
	models *fakeModels
	sess   *Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dir: t.TempDir(),
		mic: &silentMic{},
		models: &fakeModels{
			speech: &fakeSpeech{text: "print hello world"},
			gen:    &fakeGen{code: "print('hello world')\n"},
		},
	}
	acq := audio.NewAcquirer(f.mic, audio.Options{
		Duration:       100 * time.Millisecond,
		SampleRate:     16000,
		TempDir:        f.dir,
		MaxUploadBytes: 1 << 20,
	})
	f.sess = New(acq, f.models, Options{Metrics: metrics.New()})
	return f
}

func (f *fixture) assertNoTempFiles(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp audio must be removed")
}

func TestRecordHappyPath(t *testing.T) {
	f := newFixture(t)

	in, err := f.sess.Record(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateGenerated, in.State)
	assert.Equal(t, audio.SourceRecord, in.Source)
	assert.Equal(t, "print hello world", in.Transcript)
	assert.Equal(t, "print('hello world')\n", in.Code)
	assert.Empty(t, in.Error)
	assert.NotEmpty(t, in.ID)
	assert.Contains(t, in.Timings, StageTranscribe)
	assert.Equal(t, []string{"print hello world"}, f.models.gen.input)

	f.assertNoTempFiles(t)

	// playback survives the temp file
	data, mime, err := f.sess.Audio()
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", mime)
	assert.True(t, strings.HasPrefix(string(data), "RIFF"))
}

func TestRecordDeletesFileOnFailure(t *testing.T) {
	f := newFixture(t)
	f.models.speech.err = errors.New("bad audio")

	in, err := f.sess.Record(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateFailed, in.State)
	assert.Equal(t, StageTranscribe, in.FailedStage)
	assert.Contains(t, in.Error, "bad audio")

	var serr *StageError
	require.ErrorAs(t, in.Err(), &serr)
	assert.Equal(t, StageTranscribe, serr.Stage)

	f.assertNoTempFiles(t)
	assert.Empty(t, f.models.gen.input, "generation must not run")
}

func TestUploadDeletesFile(t *testing.T) {
	f := newFixture(t)

	in, err := f.sess.Upload(context.Background(), "clip.mp3", "audio/mpeg", strings.NewReader("ID3fake"))
	require.NoError(t, err)

	assert.Equal(t, StateGenerated, in.State)
	assert.Equal(t, audio.SourceUpload, in.Source)
	require.Len(t, f.models.speech.paths, 1)
	assert.True(t, strings.HasSuffix(f.models.speech.paths[0], ".mp3"))

	f.assertNoTempFiles(t)
}

func TestUploadRejected(t *testing.T) {
	f := newFixture(t)

	in, err := f.sess.Upload(context.Background(), "notes.txt", "text/plain", strings.NewReader("hi"))
	require.NoError(t, err)

	assert.Equal(t, StateFailed, in.State)
	assert.Equal(t, StageUpload, in.FailedStage)
	assert.ErrorIs(t, in.Err(), audio.ErrUnsupportedType)
	assert.Empty(t, f.models.speech.paths)
}

func TestMissingModelStopsBeforeTranscription(t *testing.T) {
	f := newFixture(t)
	f.models.err = &models.MissingModelError{Kind: "generation", Path: "./models/x.gguf"}

	in, err := f.sess.Record(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateFailed, in.State)
	assert.Equal(t, StageLoad, in.FailedStage)
	assert.ErrorIs(t, in.Err(), models.ErrModelMissing)
	assert.Empty(t, f.models.speech.paths)
	f.assertNoTempFiles(t)
}

func TestGenerationFailureIsRecovered(t *testing.T) {
	f := newFixture(t)
	f.models.gen.err = errors.New("context overflow")

	in, err := f.sess.Record(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateFailed, in.State)
	assert.Equal(t, StageGenerate, in.FailedStage)
	assert.Equal(t, "print hello world", in.Transcript)

	_, err = f.sess.Artifact()
	require.ErrorIs(t, err, ErrNoCode)

	// the loop keeps serving
	f.models.gen.err = nil
	in, err = f.sess.Record(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateGenerated, in.State)
}

func TestGeneratorPanicReleasesSession(t *testing.T) {
	f := newFixture(t)
	f.models.gen.panic = "nil model"

	in, err := f.sess.Record(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateFailed, in.State)
	assert.Equal(t, StageGenerate, in.FailedStage)
	assert.Contains(t, in.Error, "panic: nil model")
	assert.Equal(t, "print hello world", in.Transcript)
	assert.False(t, f.sess.Busy())
	f.assertNoTempFiles(t)

	f.models.gen.panic = ""
	in, err = f.sess.Record(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateGenerated, in.State)
}

func TestCapturePanicReleasesSession(t *testing.T) {
	f := newFixture(t)
	f.mic.panic = "device gone"

	in, err := f.sess.Record(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StageRecord, in.FailedStage)
	assert.Equal(t, StateFailed, f.sess.Current().State)
	assert.False(t, f.sess.Busy())

	_, err = f.sess.Upload(context.Background(), "a.wav", "audio/wav", strings.NewReader("RIFF"))
	require.NoError(t, err)
}

func TestRecordFailure(t *testing.T) {
	f := newFixture(t)
	f.mic.err = errors.New("no input device")

	in, err := f.sess.Record(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StageRecord, in.FailedStage)
	assert.False(t, f.sess.Busy())

	_, _, err = f.sess.Audio()
	require.ErrorIs(t, err, ErrNoSample)
}

func TestBusy(t *testing.T) {
	f := newFixture(t)
	f.mic.block = make(chan struct{})

	done := make(chan Interaction)
	go func() {
		in, _ := f.sess.Record(context.Background())
		done <- in
	}()

	require.Eventually(t, f.sess.Busy, time.Second, 5*time.Millisecond)

	_, err := f.sess.Upload(context.Background(), "a.wav", "audio/wav", strings.NewReader("RIFF"))
	require.ErrorIs(t, err, ErrBusy)
	_, err = f.sess.Record(context.Background())
	require.ErrorIs(t, err, ErrBusy)

	close(f.mic.block)
	in := <-done
	assert.Equal(t, StateGenerated, in.State)
}

func TestArtifact(t *testing.T) {
	f := newFixture(t)

	_, err := f.sess.Artifact()
	require.ErrorIs(t, err, ErrNoCode)

	_, err = f.sess.Record(context.Background())
	require.NoError(t, err)

	a, err := f.sess.Artifact()
	require.NoError(t, err)
	assert.Equal(t, "generated_code.py", a.Name)
	assert.Equal(t, "text/x-python", a.MIME)
	assert.Equal(t, "print('hello world')\n", string(a.Data))
}

func TestEvents(t *testing.T) {
	f := newFixture(t)

	events, unsubscribe := f.sess.Subscribe()

	var (
		mu     sync.Mutex
		states []State
		wg     sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			mu.Lock()
			states = append(states, ev.State)
			mu.Unlock()
		}
	}()

	_, err := f.sess.Record(context.Background())
	require.NoError(t, err)
	unsubscribe()
	wg.Wait()

	assert.Equal(t, []State{StateRecording, StateRecorded, StateTranscribed, StateGenerated}, states)

	// unsubscribing twice is harmless
	unsubscribe()
}
