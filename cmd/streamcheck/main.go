package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// Exit codes.
const (
	exitPass  = 0
	exitFail  = 1
	exitError = 2
)

// exitCode carries a specific process exit status out of a command.
type exitCode struct {
	code int
	err  error
}

func (e *exitCode) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitCode) Unwrap() error { return e.err }

func withCode(code int, err error) error { return &exitCode{code: code, err: err} }

func main() {
	os.Exit(execute())
}

func execute() int {
	root := newRootCmd()
	err := root.Execute()
	if err == nil {
		return exitPass
	}

	var ec *exitCode
	if errors.As(err, &ec) {
		if ec.err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", ec.err)
		}
		return ec.code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return exitError
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "streamcheck",
		Short: "Streaming load acceptance check for inference services",
		Long: `streamcheck drives closed-loop concurrent streaming completions against an
inference endpoint, measures time to first token, throughput, error and stream
completion rates, and renders a pass/fail verdict.

Examples:
  streamcheck run --url http://localhost:8000 -c 8 -d 60s
  streamcheck run --config streamcheck.yaml -o s3://runs/nightly.json.zst
  streamcheck mock --addr :8000 --fail-every 20`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newMockCmd())
	return root
}
