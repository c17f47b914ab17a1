// Package bootstrap implements envboot's strict setup-then-launch sequence:
//
//	check → [create] → activate → install → launch
//
// The Bootstrapper owns the order of the steps and the decision of when to
// stop; a Runtime owns how each step is carried out (on the host, or inside
// a container). Every step blocks until its external tool exits. A failure
// in create or install aborts the run before launch, and nothing done by an
// earlier step is rolled back.
package bootstrap

import (
	"context"
	"errors"
	"io"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/shinji-kodama/envboot/internal/manifest"
	"github.com/shinji-kodama/envboot/internal/model"
	"github.com/shinji-kodama/envboot/internal/venv"
)

// Plan is what one bootstrap works on. All paths come from configuration;
// relative ones are relative to Layout.WorkDir.
type Plan struct {
	// Layout locates the environment directory on the host.
	Layout venv.Layout

	// Manifest is the requirements file, as configured.
	Manifest string

	// EntryPoint is the program to launch, as configured.
	EntryPoint string

	// PipArgs are extra arguments for the install command.
	PipArgs []string
}

// ManifestPath returns the manifest's host path.
func (p Plan) ManifestPath() string {
	return resolve(p.Layout.WorkDir, p.Manifest)
}

// EntryPointPath returns the entry point's host path.
func (p Plan) EntryPointPath() string {
	return resolve(p.Layout.WorkDir, p.EntryPoint)
}

func resolve(workDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workDir, path)
}

// Runtime carries out the individual steps.
//
// Implementations must not decide whether a step runs; the Bootstrapper
// does that. Errors should be *model.CLIError values carrying the step's
// exit code.
type Runtime interface {
	// Name identifies the runtime in logs and status output.
	Name() model.Runtime

	// Prepare makes the runtime usable (e.g. connects to the container
	// engine). It runs before the existence check.
	Prepare(ctx context.Context) error

	// CreateEnv creates the environment directory.
	CreateEnv(ctx context.Context, plan Plan) error

	// Activate returns the environment variables the install and launch
	// steps run with.
	Activate(plan Plan) []string

	// Install installs the manifest into the environment.
	Install(ctx context.Context, plan Plan, env []string) error

	// Launch runs the entry point and returns its exit status. The error is
	// non-nil only when the entry point could not be started.
	Launch(ctx context.Context, plan Plan, env []string) (model.ExitCode, error)
}

// Bootstrapper runs the sequence for one plan on one runtime.
type Bootstrapper struct {
	Plan    Plan
	Runtime Runtime
	Logger  *log.Logger
}

// New creates a Bootstrapper. A nil logger discards log output.
func New(plan Plan, rt Runtime, logger *log.Logger) *Bootstrapper {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Bootstrapper{Plan: plan, Runtime: rt, Logger: logger}
}

// Run performs the whole sequence and returns the entry point's exit
// status.
//
// When setup fails the returned error is a *model.CLIError and the code is
// its exit code; the entry point is never started. When the entry point
// runs, its status is returned with a nil error whatever its value.
func (b *Bootstrapper) Run(ctx context.Context) (model.ExitCode, error) {
	env, err := b.setup(ctx)
	if err != nil {
		return exitCodeOf(err), err
	}

	b.Logger.Info("launching", "entry_point", b.Plan.EntryPoint)
	code, err := b.Runtime.Launch(ctx, b.Plan, env)
	if err != nil {
		return exitCodeOf(err), err
	}
	b.Logger.Debug("entry point exited", "status", int(code))
	return code, nil
}

// Setup performs every step except launch. It is what "envboot setup" runs.
func (b *Bootstrapper) Setup(ctx context.Context) error {
	_, err := b.setup(ctx)
	return err
}

func (b *Bootstrapper) setup(ctx context.Context) ([]string, error) {
	if err := b.Runtime.Prepare(ctx); err != nil {
		return nil, err
	}

	layout := b.Plan.Layout
	exists, err := layout.Exists()
	if err != nil {
		return nil, model.WrapCLIError(model.ExitEnvCreateFailed, "cannot use environment directory", err)
	}

	if exists {
		b.Logger.Info("using existing environment", "dir", layout.Dir)
	} else {
		b.Logger.Info("creating environment", "dir", layout.Dir, "runtime", b.Runtime.Name())
		if err := b.Runtime.CreateEnv(ctx, b.Plan); err != nil {
			return nil, err
		}
	}

	env := b.Runtime.Activate(b.Plan)
	b.Logger.Debug("environment activated", "VIRTUAL_ENV", venv.Lookup(env, "VIRTUAL_ENV"))

	m, err := manifest.Load(b.Plan.ManifestPath())
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInstallFailed, "cannot read dependency manifest", err)
	}
	b.Logger.Info("installing dependencies", "manifest", b.Plan.Manifest, "requirements", len(m.Requirements))
	if len(m.Unparsed) > 0 {
		b.Logger.Debug("manifest lines left to pip", "lines", m.Unparsed)
	}

	if err := b.Runtime.Install(ctx, b.Plan, env); err != nil {
		return nil, err
	}
	return env, nil
}

// exitCodeOf returns the exit code carried by err, or ExitGeneralError.
func exitCodeOf(err error) model.ExitCode {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	return model.ExitGeneralError
}
