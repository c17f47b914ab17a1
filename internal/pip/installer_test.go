package pip

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/shinji-kodama/envboot/internal/model"
	"github.com/shinji-kodama/envboot/internal/testutil"
	"github.com/shinji-kodama/envboot/internal/venv"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// setupEnv creates an environment with the fake interpreter and returns the
// layout and the activated environment slice.
func setupEnv(t *testing.T) (venv.Layout, []string) {
	t.Helper()

	python := testutil.FakePython(t)
	layout := venv.NewLayout(t.TempDir(), "venv")

	m := venv.NewManager(python, nil)
	m.Stdout, m.Stderr = io.Discard, io.Discard
	require.NoError(t, m.Create(context.Background(), layout))

	env := venv.Activate(os.Environ(), layout.Dir, layout.BinDir(), string(os.PathListSeparator))
	return layout, env
}

func quietInstaller() *Installer {
	return &Installer{Stdout: io.Discard, Stderr: io.Discard}
}

// TestRequestArgs verifies the pip command line.
func TestRequestArgs(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want []string
	}{
		{
			name: "defaults",
			req:  Request{Manifest: "requirements.txt"},
			want: []string{"-m", "pip", "install", "-r", "requirements.txt"},
		},
		{
			name: "extra args",
			req:  Request{Manifest: "reqs/dev.txt", ExtraArgs: []string{"--no-cache-dir", "-q"}},
			want: []string{"-m", "pip", "install", "-r", "reqs/dev.txt", "--no-cache-dir", "-q"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.Args())
		})
	}
}

// TestInstall verifies that every requirement is installed and that a
// second run on the same manifest succeeds without reinstalling.
func TestInstall(t *testing.T) {
	layout, env := setupEnv(t)
	testutil.WriteFile(t, layout.WorkDir, "requirements.txt", "requests>=2.31\n# comment\n\nbeautifulsoup4\n")

	req := Request{
		Python:   layout.Python(),
		Manifest: "requirements.txt",
		WorkDir:  layout.WorkDir,
		Env:      env,
	}

	require.NoError(t, quietInstaller().Install(context.Background(), req))
	assert.ElementsMatch(t, []string{"requests", "beautifulsoup4"}, testutil.InstalledPackages(t, layout.Dir))

	require.NoError(t, quietInstaller().Install(context.Background(), req), "re-running is not an error")
	assert.ElementsMatch(t, []string{"requests", "beautifulsoup4"}, testutil.InstalledPackages(t, layout.Dir))
	assert.Equal(t, 2, testutil.CountLines(t, filepath.Join(layout.Dir, testutil.PipRunsMarker)))
}

// TestInstallFailures verifies that pip failures map to ExitInstallFailed.
func TestInstallFailures(t *testing.T) {
	layout, env := setupEnv(t)
	testutil.WriteFile(t, layout.WorkDir, "bad.txt", "requests\n"+testutil.FailingRequirement+"==1.0\n")

	tests := []struct {
		name       string
		req        Request
		wantSubstr string
	}{
		{
			name:       "unresolvable package",
			req:        Request{Python: layout.Python(), Manifest: "bad.txt", WorkDir: layout.WorkDir, Env: env},
			wantSubstr: "No matching distribution",
		},
		{
			name:       "missing manifest",
			req:        Request{Python: layout.Python(), Manifest: "absent.txt", WorkDir: layout.WorkDir, Env: env},
			wantSubstr: "Could not open requirements file",
		},
		{
			name:       "interpreter missing",
			req:        Request{Python: filepath.Join(layout.Dir, "nope"), Manifest: "bad.txt", WorkDir: layout.WorkDir, Env: env},
			wantSubstr: "failed to run pip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := quietInstaller().Install(context.Background(), tt.req)
			require.Error(t, err)

			var cliErr *model.CLIError
			require.True(t, errors.As(err, &cliErr))
			assert.Equal(t, model.ExitInstallFailed, cliErr.Code)
			assert.Contains(t, err.Error(), tt.wantSubstr)
		})
	}
}

// TestInstallRequiresActivation verifies that pip runs with the activated
// environment rather than the caller's.
func TestInstallRequiresActivation(t *testing.T) {
	layout, _ := setupEnv(t)
	testutil.WriteFile(t, layout.WorkDir, "requirements.txt", "requests\n")

	// Without VIRTUAL_ENV the fake pip refuses to run.
	err := quietInstaller().Install(context.Background(), Request{
		Python:   layout.Python(),
		Manifest: "requirements.txt",
		WorkDir:  layout.WorkDir,
		Env:      []string{"PATH=" + os.Getenv("PATH")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 3")
}
