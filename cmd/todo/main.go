package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"dreamflow/internal/cli"
	"dreamflow/internal/logging"
	"dreamflow/internal/repositories"
	"dreamflow/internal/services"
)

type options struct {
	Owner    uint   `long:"owner" description:"user id that owns the tasks" default:"1"`
	LogLevel string `long:"log-level" description:"log level (debug, info, warn, error)" default:"warn"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	log, err := logging.NewLogger(opts.LogLevel, false)
	if err != nil {
		os.Stderr.WriteString("failed to create logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	if opts.Owner == 0 {
		log.Fatal("owner must be a positive integer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tasks := services.NewTaskService(repositories.NewMemoryTaskStore())
	shell := cli.NewShell(tasks, opts.Owner, os.Stdout, log)
	if err := shell.Run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("shell stopped", zap.Error(err))
		os.Exit(1)
	}
}
