package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talk2code/internal/ipc"
)

func TestParseArgs(t *testing.T) {
	msg, err := parseArgs([]string{"record"})
	require.NoError(t, err)
	assert.Equal(t, ipc.ControlMessage{Cmd: ipc.CmdRecord}, msg)

	msg, err = parseArgs([]string{"upload", "clip.mp3"})
	require.NoError(t, err)
	assert.Equal(t, ipc.CmdUpload, msg.Cmd)
	assert.True(t, filepath.IsAbs(msg.Path))
	assert.Equal(t, "clip.mp3", filepath.Base(msg.Path))

	_, err = parseArgs(nil)
	assert.Error(t, err)
	_, err = parseArgs([]string{"upload"})
	assert.Error(t, err)
	_, err = parseArgs([]string{"sing"})
	assert.Error(t, err)
}
