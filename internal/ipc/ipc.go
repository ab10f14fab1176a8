package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"net"
	"os"
	"time"

	"talk2code/internal/session"
)

const DefaultSocketPath = "/tmp/talk2code.sock"

const (
	CmdRecord = "record"
	CmdUpload = "upload"
	CmdStatus = "status"
)

type ControlMessage struct {
	Cmd  string `json:"cmd"`
	Path string `json:"path,omitempty"` // audio file for upload
}

type ControlReply struct {
	OK          bool                 `json:"ok"`
	Error       string               `json:"error,omitempty"`
	Interaction *session.Interaction `json:"interaction,omitempty"`
}

type Handler func(ctx context.Context, msg ControlMessage) ControlReply

type Server struct {
	ln     net.Listener
	path   string
	cancel context.CancelFunc
}

// StartServer listens on a unix socket and serves each connection with
// handler in its own goroutine.
func StartServer(path string, handler Handler) (*Server, error) {
	os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{ln: ln, path: path, cancel: cancel}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				continue
			}
			go handleConn(ctx, conn, handler)
		}
	}()

	return s, nil
}

func (s *Server) Close() error {
	s.cancel()
	err := s.ln.Close()
	os.Remove(s.path)
	return err
}

// handleConn serves one request. The handler's context ends when the server
// closes or the client hangs up.
func handleConn(parent context.Context, conn net.Conn, handler Handler) {
	defer conn.Close()

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		log.Debug("Bad control message", "err", err)
		return
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// clients send one message and then only read; any further read
	// returning means the peer is gone
	go func() {
		io.Copy(io.Discard, conn)
		cancel()
	}()

	reply := handler(ctx, msg)
	if ctx.Err() != nil && parent.Err() == nil {
		log.Info("Control client went away", "cmd", msg.Cmd)
		return
	}
	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		log.Debug("Failed to write control reply", "err", err)
	}
}

// SendCommand sends one message and waits for the reply. timeout bounds the
// whole exchange; 0 waits forever.
func SendCommand(path string, msg ControlMessage, timeout time.Duration) (ControlReply, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return ControlReply{}, err
	}
	defer conn.Close()

	if timeout > 0 {
		conn.SetDeadline(time.Now().Add(timeout))
	}

	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return ControlReply{}, fmt.Errorf("send: %w", err)
	}

	var reply ControlReply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return ControlReply{}, fmt.Errorf("read reply: %w", err)
	}
	return reply, nil
}
