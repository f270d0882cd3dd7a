// File: cmd/e2e/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/demoqa-e2e/cmd"
	"github.com/xkilldash9x/demoqa-e2e/internal/observability"
)

const panicLogFile = "panic.log"

// Exit codes.
const (
	exitOK          = 0
	exitFailed      = 1
	exitError       = 2
	exitInterrupted = 130
)

// Function variables for mocking in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
)

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if code := exitCode(cmd.Execute(ctx)); code != exitOK {
		stop()
		osExit(code)
	}
}

// exitCode maps the result of a command onto the process exit status. Failing
// scenarios and broken setups are told apart so CI can distinguish them.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	case cmd.IsScenarioFailure(err):
		return exitFailed
	default:
		return exitError
	}
}

// handlePanic writes the panic and its stack to panic.log and exits with exitError.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
		osExit(exitError)
		return
	}
	fmt.Fprintf(os.Stderr, "CRASH DETECTED. Details logged to %s\n", panicLogFile)
	osExit(exitError)
}
