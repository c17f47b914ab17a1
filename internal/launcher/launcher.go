// Package launcher runs the project's entry point inside the activated
// environment and reports its exit status.
package launcher

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/shinji-kodama/envboot/internal/model"
	"github.com/shinji-kodama/envboot/internal/proc"
)

// Launcher starts the entry point with the user's terminal attached.
type Launcher struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Logger receives debug lines describing the commands run.
	Logger *log.Logger
}

// New creates a Launcher connected to the process's own stdio.
func New(logger *log.Logger) *Launcher {
	return &Launcher{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Logger: logger,
	}
}

// Target is the program to launch.
type Target struct {
	// Python is the environment's interpreter.
	Python string

	// EntryPoint is the script, absolute or relative to WorkDir.
	EntryPoint string

	// WorkDir is the working directory of the entry point.
	WorkDir string

	// Env is the activated environment.
	Env []string
}

// Launch runs "<python> <entry point>" with no further arguments and blocks
// until it exits.
//
// The returned ExitCode is the entry point's own status, including non-zero
// ones; those are not errors. A process killed by a signal reports
// 128+signal. An error is returned only when the interpreter could not be
// started at all, as a model.CLIError with ExitLaunchFailed.
//
// A missing entry point file is left to the interpreter, which reports it
// and exits with its own status.
func (l *Launcher) Launch(ctx context.Context, target Target) (model.ExitCode, error) {
	cmd := proc.Command{
		Name:   target.Python,
		Args:   []string{target.EntryPoint},
		Dir:    target.WorkDir,
		Env:    target.Env,
		Stdin:  l.Stdin,
		Stdout: l.Stdout,
		Stderr: l.Stderr,
	}
	if l.Logger != nil {
		l.Logger.Debug("running", "cmd", cmd.String())
	}

	res, err := proc.Run(ctx, cmd)
	if err != nil {
		return model.ExitLaunchFailed, model.WrapCLIError(
			model.ExitLaunchFailed,
			fmt.Sprintf("failed to start %s", target.EntryPoint),
			err,
		)
	}
	return model.ExitCode(res.ExitCode), nil
}
