// Package testutil provides shared test helpers for envboot packages.
//
// The central helper is a fake Python interpreter: a POSIX shell script that
// understands exactly the three invocations envboot makes
//
//	python -m venv <dir>
//	<env>/bin/python -m pip install -r <manifest> [args...]
//	<env>/bin/python <entry point>
//
// so the bootstrap can be exercised end to end offline and in
// milliseconds. Tests using it must skip on Windows (see SkipOnWindows).
package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Marker files the fake interpreter writes inside the environment so tests
// can observe what happened.
const (
	// CreatedMarker gets one line appended per "-m venv" run.
	CreatedMarker = ".fakepy-created"

	// PipRunsMarker gets one line appended per successful "-m pip install".
	PipRunsMarker = ".fakepy-pip-runs"

	// SitePackages is where installed "packages" are recorded, one file
	// per requirement name.
	SitePackages = "lib/site-packages"

	// FailingRequirement is a requirement name the fake pip refuses to
	// install, as pip does for a package that does not exist.
	FailingRequirement = "does-not-exist"
)

// fakePythonScript implements the fake interpreter. Entry points are run as
// shell scripts, which lets tests control their exit status.
const fakePythonScript = `#!/bin/sh
if [ "$1" = "-m" ] && [ "$2" = "venv" ]; then
  dir="$3"
  if [ -n "$FAKEPY_FAIL_VENV" ]; then
    echo "Error: Command '-m venv' returned non-zero exit status 1." >&2
    exit 1
  fi
  mkdir -p "$dir/bin" "$dir/lib/site-packages" || exit 1
  cp "$0" "$dir/bin/python" || exit 1
  chmod +x "$dir/bin/python"
  printf 'home = %s\nversion = 3.12.0\n' "$(dirname "$0")" > "$dir/pyvenv.cfg"
  echo created >> "$dir/.fakepy-created"
  exit 0
fi

if [ "$1" = "-m" ] && [ "$2" = "pip" ]; then
  shift 2
  if [ "$1" != "install" ]; then
    echo "unsupported pip command: $1" >&2
    exit 2
  fi
  shift
  req=""
  while [ $# -gt 0 ]; do
    case "$1" in
      -r) req="$2"; shift 2 ;;
      *) shift ;;
    esac
  done
  if [ -z "$VIRTUAL_ENV" ]; then
    echo "pip: VIRTUAL_ENV is not set" >&2
    exit 3
  fi
  if [ ! -f "$req" ]; then
    echo "ERROR: Could not open requirements file: $req" >&2
    exit 1
  fi
  site="$VIRTUAL_ENV/lib/site-packages"
  while IFS= read -r line || [ -n "$line" ]; do
    name=$(printf '%s' "$line" | sed -e 's/#.*//' -e 's/[[:space:]]//g' -e 's/[<>=!~;[].*//')
    case "$name" in
      "" | -*) continue ;;
      does-not-exist*)
        echo "ERROR: No matching distribution found for $name" >&2
        exit 1 ;;
    esac
    if [ -f "$site/$name" ]; then
      echo "Requirement already satisfied: $name"
    else
      echo "$name" > "$site/$name"
      echo "Successfully installed $name"
    fi
  done < "$req"
  echo install >> "$VIRTUAL_ENV/.fakepy-pip-runs"
  exit 0
fi

exec /bin/sh "$@"
`

// SkipOnWindows skips tests that depend on the fake interpreter or other
// POSIX shell behaviour.
func SkipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

// FakePython writes the fake interpreter into a temporary directory and
// returns its absolute path. Use it wherever envboot expects "python3".
func FakePython(t *testing.T) string {
	t.Helper()
	SkipOnWindows(t)

	path := filepath.Join(t.TempDir(), "python3")
	require.NoError(t, os.WriteFile(path, []byte(fakePythonScript), 0o755), "failed to write fake python")
	return path
}

// WriteFile writes content to dir/name, creating parent directories, and
// returns the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// InstalledPackages returns the requirement names the fake pip has
// installed into the environment at envDir.
func InstalledPackages(t *testing.T, envDir string) []string {
	t.Helper()

	entries, err := os.ReadDir(filepath.Join(envDir, SitePackages))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// CountLines returns the number of lines in the file at path, or 0 if it
// does not exist. Used with CreatedMarker and PipRunsMarker.
func CountLines(t *testing.T, path string) int {
	t.Helper()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return 0
	}
	return len(strings.Split(trimmed, "\n"))
}
