package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"regioncd/app/internal/config"
)

const (
	exitOK         = 0
	exitFailure    = 1
	exitNoCodes    = 2
	exitMissingKey = 3
	exitAmbiguous  = 4
)

// exitError carries the process exit status alongside the message printed to stderr.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func withExitCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// cli holds the process level dependencies of the commands.
type cli struct {
	stdout     io.Writer
	stderr     io.Writer
	loadConfig func() (*config.Config, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	app := &cli{stdout: os.Stdout, stderr: os.Stderr, loadConfig: config.Load}
	code := app.execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func (c *cli) execute(ctx context.Context, args []string) int {
	root := c.newRootCommand()
	root.SetArgs(args)
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			fmt.Fprintf(c.stderr, "ERROR: %v\n", exitErr.err)
		}
		return exitErr.code
	}

	fmt.Fprintf(c.stderr, "ERROR: %v\n", err)
	return exitFailure
}
