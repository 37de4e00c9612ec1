// Cabload flashes firmware images into cabinet controllers over a serial
// line or a raw TCP link.
//
// It speaks the framed stop-and-wait bootloader protocol: a Ping to check
// the controller is listening, an Init describing the image, then one Data
// frame per block, each acknowledged before the next is sent.
//
// Usage:
//
//	cabload [command] [flags]
//
// Connection settings come from named profiles in the config file and can
// be overridden per run with flags. See 'cabload --help'.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"

	"github.com/muurk/cabload/internal/logging"
	"github.com/muurk/cabload/internal/sender"
	"github.com/muurk/cabload/internal/version"
)

// Exit codes
const (
	exitOK        = 0
	exitFailed    = 1
	exitCancelled = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := fang.Execute(ctx, rootCmd, fang.WithVersion(version.Full()))
	stop()
	logging.Sync()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch sender.OutcomeOf(err) {
	case sender.Success:
		return exitOK
	case sender.Cancelled:
		return exitCancelled
	}
	if errors.Is(err, context.Canceled) {
		return exitCancelled
	}
	return exitFailed
}
