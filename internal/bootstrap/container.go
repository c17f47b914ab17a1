package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"

	"github.com/shinji-kodama/envboot/internal/docker"
	"github.com/shinji-kodama/envboot/internal/model"
	"github.com/shinji-kodama/envboot/internal/proc"
	"github.com/shinji-kodama/envboot/internal/venv"
)

// containerBaseEnv is the environment activation starts from inside step
// containers. HOME points at a writable directory because the container
// runs as the host user, who has no home in the image.
var containerBaseEnv = []string{
	"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
	"HOME=/tmp",
}

// stepRunner runs one step container. It is docker.RunStep bound to a
// client; tests replace it.
type stepRunner func(ctx context.Context, spec docker.StepSpec) (proc.Result, error)

// ContainerRuntime runs every step in a one-shot container of a Python
// image. The project directory is bind-mounted at docker.ContainerWorkDir,
// so the environment directory is created inside the project on the host
// and its existence check is the same as for the host runtime.
//
// Environments created this way are only usable inside the image: their
// interpreter links point at the image's Python.
type ContainerRuntime struct {
	Image  string
	Pull   model.PullPolicy
	Python string

	// RunID labels every container of this run.
	RunID string

	// User is "uid:gid" for the containers, so files written to the mount
	// belong to the host user. Empty keeps the image default.
	User string

	// TTY allocates a terminal for the launch step.
	TTY bool

	Stdout io.Writer
	Stderr io.Writer
	Logger *log.Logger

	client *docker.Client
	run    stepRunner
}

// NewContainerRuntime creates a ContainerRuntime for image. The Docker
// connection is opened by Prepare.
func NewContainerRuntime(image string, pull model.PullPolicy, logger *log.Logger) *ContainerRuntime {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &ContainerRuntime{
		Image:  image,
		Pull:   pull,
		Python: "python",
		RunID:  docker.NewRunID(),
		User:   hostUser(),
		TTY:    isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Logger: logger,
	}
}

// hostUser returns "uid:gid" of the current user, or "" where there is no
// such notion (Windows).
func hostUser() string {
	uid, gid := os.Getuid(), os.Getgid()
	if uid < 0 || gid < 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d", uid, gid)
}

// Name returns model.RuntimeContainer.
func (c *ContainerRuntime) Name() model.Runtime {
	return model.RuntimeContainer
}

// Prepare connects to the Docker daemon and makes the image available
// according to the pull policy.
func (c *ContainerRuntime) Prepare(ctx context.Context) error {
	if c.run != nil {
		return nil
	}

	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	if err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return err
	}

	c.Logger.Debug("checking image", "image", c.Image, "pull", c.Pull)
	pulled, err := cli.EnsureImage(ctx, c.Image, c.Pull, nil)
	if err != nil {
		_ = cli.Close()
		return err
	}
	if pulled {
		c.Logger.Info("pulled image", "image", c.Image)
	}

	c.client = cli
	c.run = func(ctx context.Context, spec docker.StepSpec) (proc.Result, error) {
		return docker.RunStep(ctx, cli, spec)
	}
	return nil
}

// Close releases the Docker connection opened by Prepare.
func (c *ContainerRuntime) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// containerPath maps a host path inside the project to its path in the
// container. Config validation guarantees the path is inside the project.
func containerPath(workDir, hostPath string) string {
	if !filepath.IsAbs(hostPath) {
		hostPath = filepath.Join(workDir, hostPath)
	}
	rel, err := filepath.Rel(workDir, hostPath)
	if err != nil {
		rel = filepath.Base(hostPath)
	}
	return path.Join(docker.ContainerWorkDir, filepath.ToSlash(rel))
}

// envDir returns the environment directory as seen in the container.
func (c *ContainerRuntime) envDir(plan Plan) string {
	return containerPath(plan.Layout.WorkDir, plan.Layout.Dir)
}

// envPython returns the environment's interpreter as seen in the container.
// Images are Linux, so the layout is always bin/python.
func (c *ContainerRuntime) envPython(plan Plan) string {
	return path.Join(c.envDir(plan), venv.BinDirName("linux"), "python")
}

func (c *ContainerRuntime) spec(step model.Step, plan Plan, env []string, cmd ...string) docker.StepSpec {
	return docker.StepSpec{
		Step:        step,
		RunID:       c.RunID,
		Image:       c.Image,
		Cmd:         cmd,
		HostWorkDir: plan.Layout.WorkDir,
		Env:         env,
		User:        c.User,
		Stdout:      c.Stdout,
		Stderr:      c.Stderr,
	}
}

// runStep runs spec and maps an engine failure to code.
func (c *ContainerRuntime) runStep(ctx context.Context, spec docker.StepSpec, code model.ExitCode) (proc.Result, error) {
	if c.run == nil {
		return proc.Result{}, model.NewCLIError(model.ExitContainerEngineUnavailable, "container runtime used before Prepare")
	}
	c.Logger.Debug("running container", "step", spec.Step, "image", spec.Image, "cmd", spec.Cmd)

	res, err := c.run(ctx, spec)
	if err != nil {
		return res, model.WrapCLIError(code, fmt.Sprintf("%s step container failed", spec.Step), err)
	}
	return res, nil
}

// CreateEnv runs "python -m venv <dir>" in the image.
func (c *ContainerRuntime) CreateEnv(ctx context.Context, plan Plan) error {
	spec := c.spec(model.StepCreate, plan, containerBaseEnv, c.Python, "-m", "venv", c.envDir(plan))
	res, err := c.runStep(ctx, spec, model.ExitEnvCreateFailed)
	if err != nil {
		return err
	}
	if !res.Success() {
		return toolFailure(model.ExitEnvCreateFailed, c.Python+" -m venv", res)
	}
	return nil
}

// Activate returns the container environment with the environment's bin
// directory first on PATH.
func (c *ContainerRuntime) Activate(plan Plan) []string {
	dir := c.envDir(plan)
	return venv.Activate(containerBaseEnv, dir, path.Join(dir, venv.BinDirName("linux")), ":")
}

// Install runs pip from the environment's interpreter in the image.
func (c *ContainerRuntime) Install(ctx context.Context, plan Plan, env []string) error {
	manifest := containerPath(plan.Layout.WorkDir, plan.Manifest)
	args := append([]string{c.envPython(plan), "-m", "pip", "install", "-r", manifest}, plan.PipArgs...)

	res, err := c.runStep(ctx, c.spec(model.StepInstall, plan, env, args...), model.ExitInstallFailed)
	if err != nil {
		return err
	}
	if !res.Success() {
		return toolFailure(model.ExitInstallFailed, "pip install -r "+plan.Manifest, res)
	}
	return nil
}

// Launch runs the entry point in the image and returns its exit status.
func (c *ContainerRuntime) Launch(ctx context.Context, plan Plan, env []string) (model.ExitCode, error) {
	spec := c.spec(model.StepLaunch, plan, env, c.envPython(plan), containerPath(plan.Layout.WorkDir, plan.EntryPoint))
	spec.TTY = c.TTY

	res, err := c.runStep(ctx, spec, model.ExitLaunchFailed)
	if err != nil {
		return model.ExitLaunchFailed, err
	}
	return model.ExitCode(res.ExitCode), nil
}

// toolFailure builds the error for a tool that ran and exited non-zero.
func toolFailure(code model.ExitCode, what string, res proc.Result) error {
	message := fmt.Sprintf("%s failed with exit status %d", what, res.ExitCode)
	if diag := res.Diagnostic(); diag != "" {
		message = fmt.Sprintf("%s: %s", message, diag)
	}
	return model.NewCLIError(code, message)
}
