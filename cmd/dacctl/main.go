// Command dacctl drives a PCM179x DAC board: stream setup, mixer controls
// and raw register access, from an interactive console or one-shot
// commands.
//
// Usage:
//
//	dacctl [flags] [command args...]
//
// Flags:
//
//	-board string      Embedded board description (default "giotto")
//	-config string     Board description file, overrides -board
//	-sim               Use simulated buses instead of the host's
//	-log-level string  Override the board's log level
//
// Examples:
//
//	# Interactive console against simulated hardware
//	dacctl -sim
//
//	# Set the digital attenuators on a real board
//	dacctl -board giotto set "DAC Playback Volume" 200 200
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"codecctl-go/cmd/dacctl/interactive"
	"codecctl-go/services/config"
)

func main() {
	var (
		boardName  = flag.String("board", "giotto", "Embedded board description")
		configFile = flag.String("config", "", "Board description file, overrides -board")
		sim        = flag.Bool("sim", false, "Use simulated buses instead of the host's")
		logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	if err := run(*boardName, *configFile, *sim, *logLevel, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "dacctl:", err)
		os.Exit(1)
	}
}

func run(boardName, configFile string, sim bool, logLevel string, args []string) error {
	var (
		b   *config.Board
		err error
	)
	if configFile != "" {
		b, err = config.LoadFile(configFile)
	} else {
		b, err = config.Load(boardName)
	}
	if err != nil {
		return err
	}
	if logLevel != "" {
		b.Log.Level = logLevel
	}

	var plat platform
	if sim {
		plat = &simPlatform{board: b}
	} else {
		hp, err := newHostPlatform()
		if err != nil {
			return err
		}
		plat = hp
	}
	defer plat.Close()

	// One-shot commands log to stderr; the console routes logs through
	// readline so they do not clobber the prompt.
	lvl := b.LogLevel()
	if len(args) > 0 {
		lg := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
		sys, err := assemble(b, plat, lg)
		if err != nil {
			return err
		}
		_, err = interactive.NewBatch(sys, os.Stdout).ExecArgs(args)
		return err
	}

	logOut := &lazyWriter{w: os.Stderr}
	lg := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: lvl}))
	sys, err := assemble(b, plat, lg)
	if err != nil {
		return err
	}
	con, err := interactive.New(sys)
	if err != nil {
		return err
	}
	logOut.w = con.Stdout()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	con.Run(ctx)
	return nil
}

// lazyWriter lets the logger be built before the console exists.
type lazyWriter struct {
	w io.Writer
}

func (l *lazyWriter) Write(p []byte) (int, error) { return l.w.Write(p) }
