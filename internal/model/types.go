// Package model defines the domain types for the envboot CLI.
//
// These types are used throughout the application for passing data between
// the configuration layer, the bootstrap sequence and the runtimes that
// execute it.
//
// Key design decision: envboot keeps no state file. The environment
// directory's existence is the only thing that survives a run, so every
// type here is rebuilt from configuration and the filesystem on each run.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Runtime selects where the bootstrap tooling runs.
//
//   - RuntimeHost runs the host's Python interpreter directly.
//   - RuntimeContainer runs every step in a one-shot container with the
//     working directory bind-mounted, so the environment directory still
//     lives next to the project.
type Runtime string

const (
	// RuntimeHost runs python/pip on the host. This is the default.
	RuntimeHost Runtime = "host"

	// RuntimeContainer runs python/pip inside a container image.
	RuntimeContainer Runtime = "container"
)

// String returns the string representation of Runtime.
// This method satisfies the fmt.Stringer interface, enabling
// human-readable output in CLI commands and logging.
func (r Runtime) String() string {
	return string(r)
}

// IsValid checks whether the Runtime value is one of the predefined runtimes.
func (r Runtime) IsValid() bool {
	switch r {
	case RuntimeHost, RuntimeContainer:
		return true
	default:
		return false
	}
}

// ParseRuntime converts a string to a Runtime.
// Returns an error if the string does not match any valid runtime.
func ParseRuntime(s string) (Runtime, error) {
	rt := Runtime(strings.ToLower(strings.TrimSpace(s)))
	if !rt.IsValid() {
		return "", fmt.Errorf("invalid runtime: %q (valid: host, container)", s)
	}
	return rt, nil
}

// PullPolicy controls when the container runtime pulls its image.
type PullPolicy string

const (
	// PullMissing pulls the image only when it is not present locally.
	PullMissing PullPolicy = "missing"

	// PullAlways pulls the image before every run.
	PullAlways PullPolicy = "always"

	// PullNever never pulls; a missing image is an error.
	PullNever PullPolicy = "never"
)

// String returns the string representation of PullPolicy.
func (p PullPolicy) String() string {
	return string(p)
}

// IsValid checks whether the PullPolicy value is one of the predefined policies.
func (p PullPolicy) IsValid() bool {
	switch p {
	case PullMissing, PullAlways, PullNever:
		return true
	default:
		return false
	}
}

// ParsePullPolicy converts a string to a PullPolicy.
// Returns an error if the string does not match any valid policy.
func ParsePullPolicy(s string) (PullPolicy, error) {
	p := PullPolicy(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("invalid pull policy: %q (valid: missing, always, never)", s)
	}
	return p, nil
}

// Step names one stage of the bootstrap sequence. The sequence is strictly
// linear:
//
//	check → [create] → activate → install → launch
//
// create only runs when check reports the environment directory absent.
type Step string

const (
	// StepCheck tests whether the environment directory exists.
	StepCheck Step = "check"

	// StepCreate creates the isolated environment.
	StepCreate Step = "create"

	// StepActivate builds the execution context for the later steps.
	StepActivate Step = "activate"

	// StepInstall installs the manifest's dependencies.
	StepInstall Step = "install"

	// StepLaunch runs the entry point.
	StepLaunch Step = "launch"
)

// String returns the string representation of Step.
func (s Step) String() string {
	return string(s)
}

// Requirement is a single dependency specifier read from the manifest.
//
// Example requirement lines and how they map onto the fields:
//
//	requests>=2.31            Name=requests Specifier=">=2.31"
//	uvicorn[standard]==0.30   Name=uvicorn Extras=[standard] Specifier="==0.30"
//	pywin32; os_name == "nt"  Name=pywin32 Marker=`os_name == "nt"`
type Requirement struct {
	// Name is the distribution name as written (not normalized).
	Name string `json:"name"`

	// Extras lists optional feature groups, e.g. "standard" in uvicorn[standard].
	Extras []string `json:"extras,omitempty"`

	// Specifier is the version constraint, e.g. ">=2.31,<3". Empty means any.
	Specifier string `json:"specifier,omitempty"`

	// Marker is the environment marker after ";" if present.
	Marker string `json:"marker,omitempty"`

	// Line is the 1-based line number in the manifest where the
	// requirement starts (continuation lines are folded into it).
	Line int `json:"line"`
}

// String renders the requirement back in requirements-file form.
func (r Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		b.WriteString("[" + strings.Join(r.Extras, ",") + "]")
	}
	b.WriteString(r.Specifier)
	if r.Marker != "" {
		b.WriteString("; " + r.Marker)
	}
	return b.String()
}

// ContainerInfo holds the state of a one-shot container started by the
// container runtime. Containers are removed as soon as their step finishes,
// so a listed container means an interrupted or failed cleanup.
//
// Step, WorkDir, RunID and CreatedAt are reconstructed from the
// container's envboot labels.
type ContainerInfo struct {
	// ContainerID is the Docker container ID.
	ContainerID string `json:"containerId"`

	// ContainerName is the container name without Docker's leading "/".
	ContainerName string `json:"containerName"`

	// Status is the Docker container state (e.g., "running", "exited").
	Status string `json:"status"`

	// Step is the bootstrap step the container was running.
	Step Step `json:"step"`

	// WorkDir is the host project directory that was bind-mounted.
	WorkDir string `json:"workDir"`

	// RunID identifies the envboot invocation that started the container.
	RunID string `json:"runId"`

	// CreatedAt is when envboot created the container.
	CreatedAt time.Time `json:"createdAt"`
}

// ExitCode defines standard CLI exit codes.
// These codes allow scripts and CI systems to programmatically determine
// why a bootstrap failed. When setup succeeds, envboot exits with the
// entry point's own exit code instead, which may overlap with these values.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigInvalid indicates the configuration file could not be
	// loaded or failed validation.
	ExitConfigInvalid ExitCode = 2

	// ExitEnvCreateFailed indicates the isolated environment could not be
	// created (interpreter missing, permission denied, disk full).
	ExitEnvCreateFailed ExitCode = 3

	// ExitInstallFailed indicates dependency installation failed
	// (manifest unreadable or malformed, package unavailable, network down).
	ExitInstallFailed ExitCode = 4

	// ExitLaunchFailed indicates the entry point could not be started at
	// all. A started entry point that fails reports its own exit code.
	ExitLaunchFailed ExitCode = 5

	// ExitContainerEngineUnavailable indicates the container runtime was
	// selected but the Docker daemon is not reachable.
	ExitContainerEngineUnavailable ExitCode = 6
)

// IsSuccess returns true if the exit code indicates successful execution.
func (c ExitCode) IsSuccess() bool {
	return c == ExitSuccess
}

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}

// ExitError signals that the launched entry point finished with a non-zero
// exit status. It is returned from cobra RunE handlers so the CLI can exit
// with exactly that status without printing anything: the entry point has
// already written its own diagnostics.
type ExitError struct {
	// Code is the entry point's exit status.
	Code ExitCode
}

// Error returns a short description of the exit status.
func (e *ExitError) Error() string {
	return fmt.Sprintf("entry point exited with status %d", e.Code)
}
