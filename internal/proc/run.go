// Package proc runs the external tools envboot drives (python, pip and the
// entry point) as blocking child processes.
//
// Every step of the bootstrap is a synchronous call into one of these
// tools, so this package is the single place that knows how to start a
// process, stream its output to the user, remember the tail of its
// diagnostics for error messages, and turn its termination into an exit
// code.
package proc

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"
)

// stderrTailSize is the number of trailing stderr bytes kept for error
// messages. Tools like pip print long logs; the end is what matters.
const stderrTailSize = 4096

// interruptGrace is how long a child gets to exit after being interrupted
// because the context was cancelled, before it is killed.
const interruptGrace = 5 * time.Second

// Command describes one child process.
type Command struct {
	// Name is the program to run. Paths with a separator are used as-is,
	// bare names are looked up in PATH.
	Name string

	// Args are the program arguments, not including Name.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env is the complete environment. Nil means inherit os.Environ().
	Env []string

	// Stdin, Stdout and Stderr are connected to the child. Nil means the
	// null device, as with os/exec.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command line for logging.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result is the outcome of a process that was started.
type Result struct {
	// ExitCode is the process exit status. A process killed by a signal
	// reports 128+signal, as POSIX shells do.
	ExitCode int

	// StderrTail holds the last bytes the process wrote to stderr, trimmed.
	StderrTail string
}

// Success reports whether the process exited with status 0.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Diagnostic returns the last non-empty line of StderrTail. Python
// tracebacks and pip errors put the actual message last.
func (r Result) Diagnostic() string {
	lines := strings.Split(r.StderrTail, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// Run starts the command and blocks until it exits.
//
// The returned error is non-nil only when the process could not be started
// or waited for (program not found, permission denied). A process that runs
// and exits non-zero is not an error: its status is in Result.ExitCode.
//
// Cancelling ctx interrupts the child and kills it if it has not exited
// after a grace period.
func Run(ctx context.Context, c Command) (Result, error) {
	// #nosec G204 -- the program and arguments come from envboot's own configuration
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout

	tail := NewTailBuffer(stderrTailSize)
	if c.Stderr != nil {
		cmd.Stderr = io.MultiWriter(c.Stderr, tail)
	} else {
		cmd.Stderr = tail
	}

	// Give the child a chance to handle the interrupt itself (Python raises
	// KeyboardInterrupt) instead of the default immediate kill.
	cmd.Cancel = func() error {
		if runtime.GOOS == "windows" {
			return cmd.Process.Kill()
		}
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = interruptGrace

	err := cmd.Run()
	result := Result{StderrTail: strings.TrimSpace(tail.String())}
	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitCodeOf(exitErr)
		return result, nil
	}

	// The process never ran (or could not be reaped).
	result.ExitCode = -1
	return result, err
}

// exitCodeOf extracts the exit status from a finished process, mapping
// termination by signal to 128+signal.
func exitCodeOf(exitErr *exec.ExitError) int {
	if code := exitErr.ExitCode(); code >= 0 {
		return code
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return 1
}

// TailBuffer is an io.Writer that keeps only the last bytes written. It is
// safe for concurrent use.
type TailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

// NewTailBuffer returns a TailBuffer that retains at most size bytes.
func NewTailBuffer(size int) *TailBuffer {
	return &TailBuffer{max: size}
}

// Write appends p, discarding the oldest bytes beyond the limit.
func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

// String returns the retained bytes.
func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
