package main

import (
	"fmt"
	"os"
	"path/filepath"

	cli "github.com/spf13/pflag"

	"talk2code/internal/ipc"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [flags] record | upload FILE | status\n", filepath.Base(os.Args[0]))
	cli.PrintDefaults()
}

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Daemon control socket")
	out := cli.StringP("out", "o", "", "Write generated code to this file")
	cli.Usage = usage
	cli.Parse()

	msg, err := parseArgs(cli.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
		os.Exit(2)
	}

	res, err := ipc.SendCommand(*socket, msg, 0)
	if err != nil {
		fmt.Println("talk2code daemon not running:", err)
		os.Exit(1)
	}

	if in := res.Interaction; in != nil {
		fmt.Println("state:     ", in.State)
		if in.Transcript != "" {
			fmt.Println("transcript:", in.Transcript)
		}
		if in.Code != "" {
			fmt.Println("──────── generated_code.py ────────")
			fmt.Println(in.Code)
			fmt.Println("───────────────────────────────────")
		}
		if *out != "" && in.Code != "" {
			if err := os.WriteFile(*out, []byte(in.Code), 0o644); err != nil {
				fmt.Fprintln(os.Stderr, "write:", err)
				os.Exit(1)
			}
			fmt.Println("saved to", *out)
		}
	}

	if res.Error != "" {
		fmt.Fprintln(os.Stderr, "error:", res.Error)
	}
	if !res.OK {
		os.Exit(1)
	}
}

func parseArgs(args []string) (ipc.ControlMessage, error) {
	if len(args) == 0 {
		return ipc.ControlMessage{}, fmt.Errorf("missing command")
	}

	switch args[0] {
	case ipc.CmdRecord, ipc.CmdStatus:
		return ipc.ControlMessage{Cmd: args[0]}, nil
	case ipc.CmdUpload:
		if len(args) < 2 {
			return ipc.ControlMessage{}, fmt.Errorf("upload needs a file")
		}
		path, err := filepath.Abs(args[1])
		if err != nil {
			return ipc.ControlMessage{}, err
		}
		return ipc.ControlMessage{Cmd: ipc.CmdUpload, Path: path}, nil
	default:
		return ipc.ControlMessage{}, fmt.Errorf("unknown command %q", args[0])
	}
}
