package venv

import (
	"strings"
)

// Activate returns a copy of environ configured to use the environment at
// envDir, the same changes the venv "activate" scripts make:
//
//   - VIRTUAL_ENV is set to envDir
//   - binDir is prepended to PATH, joined with listSep
//   - PYTHONHOME is removed, since it would redirect the interpreter to
//     another installation's standard library
//
// environ is in os.Environ() form ("KEY=value"). PATH is matched without
// regard to case because Windows spells it "Path". The input slice is not
// modified.
//
// envDir, binDir and listSep are parameters rather than derived from a
// Layout so the container runtime can activate with in-container paths.
func Activate(environ []string, envDir, binDir, listSep string) []string {
	out := make([]string, 0, len(environ)+2)
	pathKey := "PATH"
	pathValue := ""
	pathSeen := false

	for _, kv := range environ {
		key, value, _ := strings.Cut(kv, "=")
		switch {
		case strings.EqualFold(key, "PATH"):
			// Keep the first spelling; later duplicates are dropped.
			if !pathSeen {
				pathKey, pathValue, pathSeen = key, value, true
			}
		case key == "VIRTUAL_ENV", strings.EqualFold(key, "PYTHONHOME"):
			// Replaced or removed below.
		default:
			out = append(out, kv)
		}
	}

	newPath := binDir
	if pathValue != "" {
		newPath = binDir + listSep + pathValue
	}

	out = append(out, "VIRTUAL_ENV="+envDir, pathKey+"="+newPath)
	return out
}

// Lookup returns the value of key in environ, or "" if it is not set.
// It is the os.Getenv equivalent for activated environment slices.
func Lookup(environ []string, key string) string {
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k == key {
			return v
		}
	}
	return ""
}
