package main

import (
	"context"
	"io"
	log "log/slog"
	"mime"
	"os"
	"path/filepath"

	"talk2code/internal/ipc"
	"talk2code/internal/session"
)

type controlSession interface {
	Record(ctx context.Context) (session.Interaction, error)
	Upload(ctx context.Context, name, contentType string, r io.Reader) (session.Interaction, error)
	Current() session.Interaction
}

func handleControl(sess controlSession) ipc.Handler {
	return func(ctx context.Context, msg ipc.ControlMessage) ipc.ControlReply {
		switch msg.Cmd {
		case ipc.CmdRecord:
			return reply(sess.Record(ctx))

		case ipc.CmdUpload:
			f, err := os.Open(msg.Path)
			if err != nil {
				return ipc.ControlReply{Error: err.Error()}
			}
			defer f.Close()

			name := filepath.Base(msg.Path)
			return reply(sess.Upload(ctx, name, mime.TypeByExtension(filepath.Ext(name)), f))

		case ipc.CmdStatus:
			in := sess.Current()
			return ipc.ControlReply{OK: true, Interaction: &in}

		default:
			log.Warn("Unknown command", "cmd", msg.Cmd)
			return ipc.ControlReply{Error: "unknown command: " + msg.Cmd}
		}
	}
}

func reply(in session.Interaction, err error) ipc.ControlReply {
	if err != nil {
		return ipc.ControlReply{Error: err.Error()}
	}
	return ipc.ControlReply{
		OK:          in.State == session.StateGenerated,
		Error:       in.Error,
		Interaction: &in,
	}
}
