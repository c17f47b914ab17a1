package docker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"

	"github.com/shinji-kodama/envboot/internal/model"
	"github.com/shinji-kodama/envboot/internal/proc"
)

// ContainerWorkDir is where the project directory is mounted inside step
// containers.
const ContainerWorkDir = "/workspace"

// stderrTailSize matches the diagnostics kept for host processes.
const stderrTailSize = 4096

// removeTimeout bounds the cleanup of a step container after the run's
// context has been cancelled.
const removeTimeout = 10 * time.Second

// StepSpec describes one step container.
type StepSpec struct {
	// Step is the bootstrap step, recorded in the labels and the name.
	Step model.Step

	// RunID groups the containers of one envboot invocation.
	RunID string

	// Image is the image to run.
	Image string

	// Cmd is the command, run in ContainerWorkDir.
	Cmd []string

	// HostWorkDir is the project directory bind-mounted at ContainerWorkDir.
	HostWorkDir string

	// Env is the container environment in "KEY=value" form. Variables not
	// listed keep the image's values.
	Env []string

	// User is "uid:gid" to run as, or empty for the image default.
	User string

	// TTY allocates a pseudo-terminal. Output is then a single raw stream
	// written to Stdout.
	TTY bool

	// Stdout and Stderr receive the container's output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// NewRunID returns a fresh identifier for LabelRunID.
func NewRunID() string {
	return uuid.NewString()
}

// ContainerName returns the name used for a step container:
// "envboot-<step>-<first 8 characters of the run ID>".
func ContainerName(step model.Step, runID string) string {
	short := strings.ReplaceAll(runID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("envboot-%s-%s", step, short)
}

// Config returns the container configuration for spec.
func (spec StepSpec) Config(now time.Time) *container.Config {
	return &container.Config{
		Image:      spec.Image,
		Cmd:        spec.Cmd,
		Env:        spec.Env,
		WorkingDir: ContainerWorkDir,
		User:       spec.User,
		Tty:        spec.TTY,
		Labels: BuildLabels(StepLabels{
			Step:      spec.Step,
			WorkDir:   spec.HostWorkDir,
			RunID:     spec.RunID,
			CreatedAt: now,
		}),
	}
}

// HostConfig returns the host configuration for spec.
func (spec StepSpec) HostConfig() *container.HostConfig {
	return &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: spec.HostWorkDir,
			Target: ContainerWorkDir,
		}},
	}
}

// RunStep runs spec in a new container and blocks until it exits.
//
// The sequence is create, wait (registered before start so a fast exit is
// not missed), start, follow the logs, collect the exit status, remove.
// The container is removed even when ctx is cancelled; cancelling ctx
// stops the wait and the log stream, and force removal kills the process.
//
// Like proc.Run, a non-zero exit status is reported in the Result and is
// not an error. Errors mean the engine could not run the container.
func RunStep(ctx context.Context, cli *Client, spec StepSpec) (proc.Result, error) {
	result := proc.Result{ExitCode: -1}
	name := ContainerName(spec.Step, spec.RunID)

	// Step 1: Create the container. No networking config or platform is
	// passed, so the daemon defaults apply (bridge network, host platform).
	created, err := cli.Inner().ContainerCreate(ctx, spec.Config(time.Now()), spec.HostConfig(), nil, nil, name)
	if err != nil {
		return result, fmt.Errorf("failed to create container %s: %w", name, err)
	}
	defer removeContainer(ctx, cli, created.ID)

	// Step 2: Register the wait before starting. WaitConditionNextExit
	// only fires for an exit that happens after registration, so a step
	// that finishes instantly is still observed. The SDK delivers the
	// result on an unbuffered channel, so an early return cancels the wait
	// and drains it in the background.
	waitCtx, cancelWait := context.WithCancel(ctx)
	waitCh, waitErrCh := cli.Inner().ContainerWait(waitCtx, created.ID, container.WaitConditionNextExit)
	waited := false
	defer func() {
		cancelWait()
		if !waited {
			go func() {
				select {
				case <-waitCh:
				case <-waitErrCh:
				}
			}()
		}
	}()

	// Step 3: Start the step's process.
	if err := cli.Inner().ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return result, fmt.Errorf("failed to start container %s: %w", name, err)
	}

	// Step 4: Follow the output until the process exits. The log stream
	// ends when the container stops.
	tail := proc.NewTailBuffer(stderrTailSize)
	if err := streamLogs(ctx, cli, created.ID, spec, tail); err != nil {
		return result, fmt.Errorf("failed to read output of container %s: %w", name, err)
	}
	result.StderrTail = strings.TrimSpace(tail.String())

	// Step 5: Collect the exit status. The deferred removal runs after.
	waited = true
	select {
	case resp := <-waitCh:
		if resp.Error != nil {
			return result, fmt.Errorf("failed waiting for container %s: %s", name, resp.Error.Message)
		}
		result.ExitCode = int(resp.StatusCode)
		return result, nil
	case err := <-waitErrCh:
		return result, fmt.Errorf("failed waiting for container %s: %w", name, err)
	}
}

// streamLogs follows the container's output until it exits. Without a TTY
// the stream is multiplexed and is split back into stdout and stderr, with
// stderr also copied into tail.
func streamLogs(ctx context.Context, cli *Client, id string, spec StepSpec, tail io.Writer) error {
	rc, err := cli.Inner().ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	stdout := orDiscard(spec.Stdout)
	if spec.TTY {
		_, err = io.Copy(stdout, rc)
	} else {
		_, err = stdcopy.StdCopy(stdout, io.MultiWriter(orDiscard(spec.Stderr), tail), rc)
	}
	// A cancelled run surfaces as whatever error the body read produced;
	// report the cancellation itself.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// removeContainer force-removes a step container. It uses a fresh context
// so that cleanup still happens after the run was interrupted.
func removeContainer(ctx context.Context, cli *Client, id string) {
	rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), removeTimeout)
	defer cancel()
	_ = cli.Inner().ContainerRemove(rmCtx, id, container.RemoveOptions{Force: true})
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
