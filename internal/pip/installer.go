// Package pip installs a project's dependencies into a virtual environment
// by running the environment's own "python -m pip".
//
// Installation runs on every bootstrap. pip itself skips requirements that
// are already satisfied, so an unchanged manifest costs a resolver pass and
// nothing more, while an edited manifest is picked up on the next run.
package pip

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/shinji-kodama/envboot/internal/model"
	"github.com/shinji-kodama/envboot/internal/proc"
)

// Installer runs pip inside an activated environment.
type Installer struct {
	// Stdout and Stderr receive pip's output.
	Stdout io.Writer
	Stderr io.Writer

	// Logger receives debug lines describing the commands run.
	Logger *log.Logger
}

// NewInstaller creates an Installer that writes to the process's own
// stdout/stderr.
func NewInstaller(logger *log.Logger) *Installer {
	return &Installer{Stdout: os.Stdout, Stderr: os.Stderr, Logger: logger}
}

// Request describes one installation.
type Request struct {
	// Python is the environment's interpreter.
	Python string

	// Manifest is the requirements file, absolute or relative to WorkDir.
	Manifest string

	// WorkDir is the directory pip runs in, so that relative paths inside
	// the manifest ("-r other.txt", "./libs/pkg") resolve the way they do
	// when the user runs pip by hand.
	WorkDir string

	// Env is the activated environment (see venv.Activate).
	Env []string

	// ExtraArgs are appended after "-r <manifest>".
	ExtraArgs []string
}

// Args returns the interpreter arguments for req.
func (req Request) Args() []string {
	args := []string{"-m", "pip", "install", "-r", req.Manifest}
	return append(args, req.ExtraArgs...)
}

// Install runs "<python> -m pip install -r <manifest> [extra args...]".
//
// Any failure (interpreter missing, unreadable manifest, unresolvable
// package, network error) returns a model.CLIError with ExitInstallFailed
// and pip's last diagnostic line.
func (i *Installer) Install(ctx context.Context, req Request) error {
	cmd := proc.Command{
		Name:   req.Python,
		Args:   req.Args(),
		Dir:    req.WorkDir,
		Env:    req.Env,
		Stdout: i.Stdout,
		Stderr: i.Stderr,
	}
	if i.Logger != nil {
		i.Logger.Debug("running", "cmd", cmd.String())
	}

	res, err := proc.Run(ctx, cmd)
	if err != nil {
		return model.WrapCLIError(
			model.ExitInstallFailed,
			"failed to run pip in the environment",
			err,
		)
	}
	if !res.Success() {
		message := fmt.Sprintf("pip install -r %s failed with exit status %d", req.Manifest, res.ExitCode)
		if diag := res.Diagnostic(); diag != "" {
			message = fmt.Sprintf("%s: %s", message, diag)
		}
		return model.NewCLIError(model.ExitInstallFailed, message)
	}
	return nil
}
