package venv

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/shinji-kodama/envboot/internal/model"
	"github.com/shinji-kodama/envboot/internal/proc"
)

// Manager creates virtual environments by invoking the host interpreter.
//
// Tool output is streamed to Stdout/Stderr so the user sees the
// interpreter's own diagnostics, and the tail of stderr is also folded into
// the returned error.
type Manager struct {
	// Python is the interpreter used to create environments
	// (e.g. "python3" or an absolute path).
	Python string

	// Stdout and Stderr receive the tool's output.
	Stdout io.Writer
	Stderr io.Writer

	// Logger receives debug lines describing the commands run.
	Logger *log.Logger
}

// NewManager creates a Manager that uses the given interpreter and the
// process's own stdout/stderr.
func NewManager(python string, logger *log.Logger) *Manager {
	return &Manager{
		Python: python,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Logger: logger,
	}
}

// Create creates a new environment at layout.Dir with
// "<python> -m venv <dir>".
//
// There is no fallback: if the interpreter is missing, venv is not
// available, or the directory cannot be written, Create returns a
// model.CLIError with ExitEnvCreateFailed. Whatever the tool left on disk is
// not removed.
func (m *Manager) Create(ctx context.Context, layout Layout) error {
	cmd := proc.Command{
		Name:   m.Python,
		Args:   []string{"-m", "venv", layout.Dir},
		Dir:    layout.WorkDir,
		Stdout: m.Stdout,
		Stderr: m.Stderr,
	}
	if m.Logger != nil {
		m.Logger.Debug("running", "cmd", cmd.String())
	}

	res, err := proc.Run(ctx, cmd)
	if err != nil {
		return model.WrapCLIError(
			model.ExitEnvCreateFailed,
			fmt.Sprintf("failed to run %s to create the environment", m.Python),
			err,
		)
	}
	if !res.Success() {
		message := fmt.Sprintf("%s -m venv failed with exit status %d", m.Python, res.ExitCode)
		if diag := res.Diagnostic(); diag != "" {
			message = fmt.Sprintf("%s: %s", message, diag)
		}
		return model.NewCLIError(model.ExitEnvCreateFailed, message)
	}
	return nil
}
