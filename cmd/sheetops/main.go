// Command sheetops runs spreadsheet cleanup operations against a tabular
// store: combining tables, merging and deduplicating leads, repairing geo
// fields and categorizing titles and company sizes.
//
// Exit codes: 0 on success, 2 when a required table or column cannot be
// resolved or the config is invalid, 1 on any other failure.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"sheetops/internal/table"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUser    = 2
)

// errInvalidConfig is returned when config.Validate reports errors.
var errInvalidConfig = errors.New("invalid configuration")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "sheetops: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case table.IsUserError(err), errors.Is(err, errInvalidConfig):
		return exitUser
	default:
		return exitFailure
	}
}
