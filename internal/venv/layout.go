// Package venv manages Python virtual environments for envboot.
//
// This package knows where things live inside an environment directory
// (Layout), how to make the environment the active one for a child process
// (Activate), and how to create it with the host interpreter (Manager).
//
// Design decisions:
//   - We shell out to "python -m venv" rather than reimplementing venv
//     creation, so the environment is exactly what the user's Python
//     would create.
//   - Activation never mutates the envboot process itself. It produces an
//     environment slice that is handed to each child process, which keeps
//     the change scoped to this run.
//   - An existing directory is trusted as-is. envboot does not verify or
//     repair an environment created by a different or broken interpreter.
package venv

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ConfigFileName is the marker file "python -m venv" writes at the root of
// every environment.
const ConfigFileName = "pyvenv.cfg"

// Layout resolves the paths of one environment directory on the host.
type Layout struct {
	// WorkDir is the project directory relative paths are resolved against.
	WorkDir string

	// Dir is the absolute environment directory.
	Dir string

	// GOOS selects the platform layout. Empty means runtime.GOOS.
	GOOS string
}

// NewLayout returns the Layout for envDir. A relative envDir is resolved
// against workDir so that child processes started with a different working
// directory still find the interpreter.
func NewLayout(workDir, envDir string) Layout {
	dir := envDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(workDir, dir)
	}
	return Layout{WorkDir: workDir, Dir: filepath.Clean(dir)}
}

// goos returns the platform the layout describes.
func (l Layout) goos() string {
	if l.GOOS != "" {
		return l.GOOS
	}
	return runtime.GOOS
}

// BinDirName returns the name of the executables directory inside an
// environment for the given platform: "Scripts" on Windows, "bin" elsewhere.
func BinDirName(goos string) string {
	if goos == "windows" {
		return "Scripts"
	}
	return "bin"
}

// BinDir returns the environment's executables directory.
func (l Layout) BinDir() string {
	return filepath.Join(l.Dir, BinDirName(l.goos()))
}

// Python returns the path of the environment's interpreter.
func (l Layout) Python() string {
	if l.goos() == "windows" {
		return filepath.Join(l.BinDir(), "python.exe")
	}
	return filepath.Join(l.BinDir(), "python")
}

// Exists reports whether the environment directory exists.
//
// This is a plain existence check. It is side-effect free and deliberately
// does not look inside the directory: a half-created or foreign directory
// counts as existing.
//
// A path that exists but is not a directory is reported as an error, since
// neither skipping creation nor creating over it would be right.
func (l Layout) Exists() (bool, error) {
	info, err := os.Stat(l.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat environment directory: %w", err)
	}
	if !info.IsDir() {
		return false, fmt.Errorf("environment path %s exists but is not a directory", l.Dir)
	}
	return true, nil
}

// Info describes an environment directory as found on disk.
type Info struct {
	// Path is the environment directory.
	Path string `json:"path"`

	// Exists reports whether the directory exists.
	Exists bool `json:"exists"`

	// Interpreter is the interpreter path inside the environment.
	Interpreter string `json:"interpreter"`

	// InterpreterFound reports whether the interpreter file exists.
	InterpreterFound bool `json:"interpreterFound"`

	// Config holds the key/value pairs from pyvenv.cfg, if present.
	Config map[string]string `json:"config,omitempty"`
}

// Home returns the "home" entry of pyvenv.cfg: the directory of the base
// interpreter the environment was created from.
func (i *Info) Home() string {
	return i.Config["home"]
}

// Version returns the Python version recorded in pyvenv.cfg. Newer venv
// writes "version", older virtualenv releases "version_info".
func (i *Info) Version() string {
	if v := i.Config["version"]; v != "" {
		return v
	}
	return i.Config["version_info"]
}

// Inspect reads what can be learned about the environment without running
// anything. It never creates or changes files. A missing directory is not
// an error; an unreadable pyvenv.cfg is.
func (l Layout) Inspect() (*Info, error) {
	info := &Info{Path: l.Dir, Interpreter: l.Python()}

	exists, err := l.Exists()
	if err != nil {
		return nil, err
	}
	info.Exists = exists
	if !exists {
		return info, nil
	}

	if _, statErr := os.Stat(info.Interpreter); statErr == nil {
		info.InterpreterFound = true
	}

	cfg, err := readConfig(filepath.Join(l.Dir, ConfigFileName))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", ConfigFileName, err)
	}
	info.Config = cfg
	return info, nil
}

// readConfig parses pyvenv.cfg. The format is "key = value" lines with no
// sections or quoting; keys are lower-cased.
//
// Example:
//
//	home = /usr/bin
//	include-system-site-packages = false
//	version = 3.12.3
func readConfig(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	cfg := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		cfg[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}
