// Package main provides the ndarchive CLI entrypoint.
//
// Usage:
//
//	ndarchive [options] [archive]
//	ndarchive history [options] [archive]
//	ndarchive version
//
// Exit codes:
//   - 0: success, already up to date, or successful repair
//   - 1: any fatal error
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/ndarchive/cli/cmd"
	"github.com/justapithecus/ndarchive/cli/tui"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := cmd.NewApp(commit)
	app.ExitErrHandler = exitErrHandler

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	code := reportError(os.Stderr, isTTY(os.Stderr), err)
	os.Exit(code)
}

// reportError writes err to w and returns the process exit code.
func reportError(w io.Writer, styled bool, err error) int {
	code := 1
	msg := err.Error()

	// Check for ExitCoder (from cli.Exit), handles wrapped errors
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code = exitCoder.ExitCode()
		msg = exitCoder.Error()
		// cli.Exit("", N).Error() returns "exit status N", so skip those
		if msg == fmt.Sprintf("exit status %d", code) {
			msg = ""
		}
	}

	if msg == "" {
		return code
	}
	if styled {
		fmt.Fprintln(w, tui.RenderError(msg))
	} else {
		fmt.Fprintf(w, "Error: %s\n", msg)
	}
	return code
}

func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
