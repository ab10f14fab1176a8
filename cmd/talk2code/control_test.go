package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talk2code/internal/ipc"
	"talk2code/internal/session"
)

type fakeSession struct {
	busy     bool
	name     string
	ctype    string
	body     []byte
	recorded bool
}

func (f *fakeSession) Record(context.Context) (session.Interaction, error) {
	if f.busy {
		return session.Interaction{}, session.ErrBusy
	}
	f.recorded = true
	return session.Interaction{State: session.StateGenerated, Transcript: "hi", Code: "print('hi')"}, nil
}

func (f *fakeSession) Upload(_ context.Context, name, ctype string, r io.Reader) (session.Interaction, error) {
	f.name, f.ctype = name, ctype
	f.body, _ = io.ReadAll(r)
	return session.Interaction{State: session.StateFailed, Error: "transcribe: boom"}, nil
}

func (f *fakeSession) Current() session.Interaction {
	return session.Interaction{State: session.StateIdle}
}

func TestControlRecord(t *testing.T) {
	fs := &fakeSession{}
	res := handleControl(fs)(context.Background(), ipc.ControlMessage{Cmd: ipc.CmdRecord})

	assert.True(t, fs.recorded)
	assert.True(t, res.OK)
	require.NotNil(t, res.Interaction)
	assert.Equal(t, "print('hi')", res.Interaction.Code)
}

func TestControlBusy(t *testing.T) {
	res := handleControl(&fakeSession{busy: true})(context.Background(), ipc.ControlMessage{Cmd: ipc.CmdRecord})

	assert.False(t, res.OK)
	assert.Equal(t, session.ErrBusy.Error(), res.Error)
	assert.Nil(t, res.Interaction)
}

func TestControlUploadFailureIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))

	fs := &fakeSession{}
	res := handleControl(fs)(context.Background(), ipc.ControlMessage{Cmd: ipc.CmdUpload, Path: path})

	assert.Equal(t, "clip.wav", fs.name)
	assert.Equal(t, []byte("RIFF"), fs.body)
	assert.False(t, res.OK)
	assert.Equal(t, "transcribe: boom", res.Error)
	require.NotNil(t, res.Interaction)
	assert.Equal(t, session.StateFailed, res.Interaction.State)
}

func TestControlUploadMissingFile(t *testing.T) {
	res := handleControl(&fakeSession{})(context.Background(), ipc.ControlMessage{
		Cmd:  ipc.CmdUpload,
		Path: filepath.Join(t.TempDir(), "nope.mp3"),
	})

	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Error)
}

func TestControlStatusAndUnknown(t *testing.T) {
	h := handleControl(&fakeSession{})

	res := h(context.Background(), ipc.ControlMessage{Cmd: ipc.CmdStatus})
	assert.True(t, res.OK)
	require.NotNil(t, res.Interaction)
	assert.Equal(t, session.StateIdle, res.Interaction.State)

	res = h(context.Background(), ipc.ControlMessage{Cmd: "dance"})
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "dance")
}
