// Command shuttercam fires a camera from a BLE shutter button.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/shuttercam/shuttercam/internal/debug"
	"github.com/shuttercam/shuttercam/internal/logic/session"
)

const envConfig = "SHUTTERCAM_CONFIG"

func main() {
	// Optional; the environment wins over .env.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, &app{}, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	_ = debug.Close()
	os.Exit(code)
}

func run(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

// usageError marks bad invocations (flags, arguments, profile contents).
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

// exitCode maps an error to the process status: 0 ok, 2 usage or
// configuration, 1 anything else.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ue usageError
	if errors.As(err, &ue) || session.IsUsageError(err) || strings.HasPrefix(err.Error(), "unknown command") {
		return 2
	}
	return 1
}
