package commands

import (
	"context"
	"errors"
	"io"

	"github.com/vulntor/fwid/cmd/fwid/internal/bind"
	"github.com/vulntor/fwid/cmd/fwid/internal/format"
	"github.com/vulntor/fwid/pkg/scanexec"
)

// ExitPartialFailure is returned when a scan finished but some targets
// could not be evaluated.
const ExitPartialFailure = 8

// ErrPartialFailure reports that observations were missing for some targets.
var ErrPartialFailure = errors.New("some targets could not be evaluated")

// reportedError marks an error that has already been shown to the user.
type reportedError struct {
	err  error
	code int
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var reported *reportedError
	if errors.As(err, &reported) {
		return reported.code
	}
	return exitCodeFor(err)
}

// IsReported reports whether err was already printed by the command.
func IsReported(err error) bool {
	var reported *reportedError
	return errors.As(err, &reported)
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, ErrPartialFailure):
		return ExitPartialFailure
	case errors.Is(err, bind.ErrSpecRequired):
		return 2
	default:
		return scanexec.ExitCode(err)
	}
}

// fail prints a failure summary with hints and returns err marked as reported.
func fail(f format.Formatter, operation string, err error) error {
	_ = f.PrintTotalFailureSummary(operation, err, scanexec.ErrorCode(err), scanexec.Suggestions(err))
	return &reportedError{err: err, code: exitCodeFor(err)}
}

// Execute runs the fwid command line with args and returns the process exit
// code. Errors a command did not report itself are printed through the
// formatter of the command that failed.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return 0
	}
	if !IsReported(err) {
		if cmd == nil {
			cmd = root
		}
		_ = format.FromCommand(cmd).PrintError(err)
	}
	return ExitCode(err)
}
