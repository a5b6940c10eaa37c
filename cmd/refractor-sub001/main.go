// This file is derived from cmd/kcn/main.go.
// Modified for the refractor-sub001 finalization core.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/urfave/cli.v1"

	"github.com/blocktimefinancial/refractor-sub001/app"
	"github.com/blocktimefinancial/refractor-sub001/config"
	"github.com/blocktimefinancial/refractor-sub001/log"
)

var logger = log.NewModuleLogger("cmd")

const hardShutdownTimeout = 10 * time.Second

var cliApp = newApp()

func newApp() *cli.App {
	a := cli.NewApp()
	a.Name = filepath.Base(os.Args[0])
	a.Usage = "finalization core for pending multisig transactions"
	a.Flags = config.Flags
	a.Action = run
	return a
}

func main() {
	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run is the cli.App's sole Action: build the Config from flags, wire the
// App, and block until an interrupt initiates graceful shutdown (§5, §6
// exit codes).
func run(ctx *cli.Context) error {
	cfg := config.FromContext(ctx)

	a, err := app.New(cfg, nil)
	if err != nil {
		logger.Crit("failed to wire application", "err", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run() }()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("application exited with error", "err", err)
			os.Exit(1)
		}
		return nil
	case <-sigc:
		logger.Info("got interrupt, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), hardShutdownTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Shutdown(shutdownCtx) }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("graceful shutdown failed", "err", err)
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logger.Crit("shutdown timed out, forcing exit", "timeout", hardShutdownTimeout)
		os.Exit(-1)
	case <-sigc:
		logger.Crit("second interrupt received, forcing exit")
		os.Exit(-1)
	}
	return nil
}
