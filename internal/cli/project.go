package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/envboot/internal/bootstrap"
	"github.com/shinji-kodama/envboot/internal/config"
	"github.com/shinji-kodama/envboot/internal/model"
	"github.com/shinji-kodama/envboot/internal/venv"
)

// project is everything a command needs about the current directory: the
// loaded configuration, the logger and the bootstrap plan.
type project struct {
	WorkDir    string
	ConfigPath string
	Config     *config.Config
	Plan       bootstrap.Plan
	Logger     *log.Logger

	logCloser io.Closer
}

// loadProject reads the configuration for the working directory and builds
// the logger and plan. Callers must call Close.
func loadProject(cmd *cobra.Command) (*project, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "failed to determine the working directory", err)
	}

	cfg, cfgPath, err := config.Load(workDir, configPath)
	if err != nil {
		return nil, err
	}

	logger, closer, err := newLogger(cmd.ErrOrStderr(), verbose, cfg.Log, workDir)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigInvalid, "failed to open log file", err)
	}
	if cfgPath != "" {
		logger.Debug("loaded config", "path", cfgPath)
	} else {
		logger.Debug("no config file, using defaults")
	}

	return &project{
		WorkDir:    workDir,
		ConfigPath: cfgPath,
		Config:     cfg,
		Plan: bootstrap.Plan{
			Layout:     venv.NewLayout(workDir, cfg.EnvDir),
			Manifest:   cfg.Manifest,
			EntryPoint: cfg.EntryPoint,
			PipArgs:    cfg.PipArgs,
		},
		Logger:    logger,
		logCloser: closer,
	}, nil
}

// Close releases the log file, if any.
func (p *project) Close() error {
	return p.logCloser.Close()
}

// runtime returns the configured Runtime and a function releasing it.
func (p *project) runtime() (bootstrap.Runtime, func()) {
	switch p.Config.Runtime {
	case model.RuntimeContainer:
		rt := bootstrap.NewContainerRuntime(p.Config.Container.Image, p.Config.Container.Pull, p.Logger)
		rt.Python = p.Config.Python
		return rt, func() { _ = rt.Close() }
	default:
		return bootstrap.NewHostRuntime(p.Config.Python, p.Logger), func() {}
	}
}

// bootstrapper returns a Bootstrapper for the project's configured runtime.
func (p *project) bootstrapper() (*bootstrap.Bootstrapper, func()) {
	rt, release := p.runtime()
	return bootstrap.New(p.Plan, rt, p.Logger), release
}

// String describes the project for debug logging.
func (p *project) String() string {
	return fmt.Sprintf("%s (env %s, manifest %s, entry %s, runtime %s)",
		p.WorkDir, p.Config.EnvDir, p.Config.Manifest, p.Config.EntryPoint, p.Config.Runtime)
}
