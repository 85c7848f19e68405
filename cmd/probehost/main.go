package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command tree and maps the result to a process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRoot()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var exit ExitResult
	if errors.As(err, &exit) {
		if exit.Message != "" {
			w := stdout
			if exit.ToStderr {
				w = stderr
			}
			fmt.Fprintln(w, exit.Message)
		}
		return exit.Code
	}
	fmt.Fprintln(stderr, Styles.Error.Render("error:"), err.Error())
	return 1
}
