// aexpect-helper is the Helper supervisor binary: given a session id on its
// own stdin bootstrap lines, it allocates a PTY, forks the requested
// command onto it, and fans output out to the session directory's FIFOs
// and output file until the command exits.
//
// Usage:
//
//	aexpect-helper
//
// It is never invoked by hand; the aexpect client package execs it and
// writes the bootstrap protocol (id, echo, consumers, command) to its
// stdin.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"

	"github.com/ianremillard/aexpect/internal/ptyhelper"
	"github.com/ianremillard/aexpect/internal/session"
)

func main() {
	flag.Parse()

	bootstrap, err := session.ReadBootstrap(os.Stdin)
	if err != nil {
		log.Fatalf("aexpect-helper: read bootstrap: %v", err)
	}

	dir := session.NewDir(bootstrap.ID)
	if err := dir.Init(); err != nil {
		log.Fatalf("aexpect-helper: init session dir: %v", err)
	}

	logFile, err := os.OpenFile(dir.ServerLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("aexpect-helper: open server-log: %v", err)
	}
	defer logFile.Close()

	logger := slog.New(tint.NewHandler(logFile, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "15:04:05.000",
		NoColor:    true,
	})).With("session", bootstrap.ID)

	logger.Info("helper starting", "command", bootstrap.Command, "echo", bootstrap.Echo, "consumers", bootstrap.Consumers)

	if err := ptyhelper.Run(ptyhelper.Options{
		Dir:       dir,
		Bootstrap: bootstrap,
		Logger:    logger,
	}); err != nil {
		logger.Error("helper exiting with error", "err", err)
		os.Exit(1)
	}

	logger.Info("helper exited cleanly")
}
