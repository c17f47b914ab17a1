package bootstrap

import (
	"context"
	"os"

	"github.com/charmbracelet/log"

	"github.com/shinji-kodama/envboot/internal/launcher"
	"github.com/shinji-kodama/envboot/internal/model"
	"github.com/shinji-kodama/envboot/internal/pip"
	"github.com/shinji-kodama/envboot/internal/venv"
)

// HostRuntime runs every step with the host's own Python.
type HostRuntime struct {
	Creator   *venv.Manager
	Installer *pip.Installer
	Launcher  *launcher.Launcher

	// Environ is the base environment for activation. Nil means
	// os.Environ() at activation time.
	Environ []string
}

// NewHostRuntime creates a HostRuntime that creates environments with the
// given interpreter and uses the process's stdio.
func NewHostRuntime(python string, logger *log.Logger) *HostRuntime {
	return &HostRuntime{
		Creator:   venv.NewManager(python, logger),
		Installer: pip.NewInstaller(logger),
		Launcher:  launcher.New(logger),
	}
}

// Name returns model.RuntimeHost.
func (h *HostRuntime) Name() model.Runtime {
	return model.RuntimeHost
}

// Prepare does nothing: a missing interpreter surfaces when creating.
func (h *HostRuntime) Prepare(context.Context) error {
	return nil
}

// CreateEnv runs "<python> -m venv <dir>".
func (h *HostRuntime) CreateEnv(ctx context.Context, plan Plan) error {
	return h.Creator.Create(ctx, plan.Layout)
}

// Activate returns the base environment with the environment's bin
// directory first on PATH.
func (h *HostRuntime) Activate(plan Plan) []string {
	base := h.Environ
	if base == nil {
		base = os.Environ()
	}
	return venv.Activate(base, plan.Layout.Dir, plan.Layout.BinDir(), string(os.PathListSeparator))
}

// Install runs pip from the environment's interpreter.
func (h *HostRuntime) Install(ctx context.Context, plan Plan, env []string) error {
	return h.Installer.Install(ctx, pip.Request{
		Python:    plan.Layout.Python(),
		Manifest:  plan.Manifest,
		WorkDir:   plan.Layout.WorkDir,
		Env:       env,
		ExtraArgs: plan.PipArgs,
	})
}

// Launch runs the entry point with the environment's interpreter.
func (h *HostRuntime) Launch(ctx context.Context, plan Plan, env []string) (model.ExitCode, error) {
	return h.Launcher.Launch(ctx, launcher.Target{
		Python:     plan.Layout.Python(),
		EntryPoint: plan.EntryPoint,
		WorkDir:    plan.Layout.WorkDir,
		Env:        env,
	})
}
