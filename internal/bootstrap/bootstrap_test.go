package bootstrap

import (
	"context"
	"errors"
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

// fakeRuntime records the steps it is asked to perform. CreateEnv makes
// the directory so later existence checks see it.
type fakeRuntime struct {
	calls []model.Step

	prepareErr error
	createErr  error
	installErr error
	launchCode model.ExitCode
	launchErr  error

	installEnv []string
}

func (f *fakeRuntime) Name() model.Runtime { return "fake" }

func (f *fakeRuntime) Prepare(context.Context) error {
	f.calls = append(f.calls, model.StepCheck)
	return f.prepareErr
}

func (f *fakeRuntime) CreateEnv(_ context.Context, plan Plan) error {
	f.calls = append(f.calls, model.StepCreate)
	if f.createErr != nil {
		return f.createErr
	}
	return os.MkdirAll(plan.Layout.Dir, 0o755)
}

func (f *fakeRuntime) Activate(plan Plan) []string {
	f.calls = append(f.calls, model.StepActivate)
	return []string{"VIRTUAL_ENV=" + plan.Layout.Dir}
}

func (f *fakeRuntime) Install(_ context.Context, _ Plan, env []string) error {
	f.calls = append(f.calls, model.StepInstall)
	f.installEnv = env
	return f.installErr
}

func (f *fakeRuntime) Launch(context.Context, Plan, []string) (model.ExitCode, error) {
	f.calls = append(f.calls, model.StepLaunch)
	return f.launchCode, f.launchErr
}

// newPlan returns a plan in a fresh working directory with a manifest.
func newPlan(t *testing.T) Plan {
	t.Helper()

	work := t.TempDir()
	testutil.WriteFile(t, work, "requirements.txt", "requests\n")
	return Plan{
		Layout:     venv.NewLayout(work, "venv"),
		Manifest:   "requirements.txt",
		EntryPoint: "script.py",
	}
}

// TestRunSequence verifies the order of steps with and without an
// existing environment.
func TestRunSequence(t *testing.T) {
	full := []model.Step{model.StepCheck, model.StepCreate, model.StepActivate, model.StepInstall, model.StepLaunch}
	reuse := []model.Step{model.StepCheck, model.StepActivate, model.StepInstall, model.StepLaunch}

	t.Run("absent directory is created", func(t *testing.T) {
		rt := &fakeRuntime{}
		code, err := New(newPlan(t), rt, nil).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, model.ExitSuccess, code)
		assert.Equal(t, full, rt.calls)
	})

	t.Run("existing directory is reused", func(t *testing.T) {
		plan := newPlan(t)
		require.NoError(t, os.Mkdir(plan.Layout.Dir, 0o755))

		rt := &fakeRuntime{}
		_, err := New(plan, rt, nil).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, reuse, rt.calls)
	})

	t.Run("second run does not create again", func(t *testing.T) {
		plan := newPlan(t)
		rt := &fakeRuntime{}
		b := New(plan, rt, nil)

		_, err := b.Run(context.Background())
		require.NoError(t, err)
		rt.calls = nil
		_, err = b.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, reuse, rt.calls)
	})
}

// TestRunActivatedEnvironmentReachesInstall verifies that install runs with
// the environment produced by activation.
func TestRunActivatedEnvironmentReachesInstall(t *testing.T) {
	plan := newPlan(t)
	rt := &fakeRuntime{}
	_, err := New(plan, rt, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, plan.Layout.Dir, venv.Lookup(rt.installEnv, "VIRTUAL_ENV"))
}

// TestRunFailuresShortCircuit verifies that a failing setup step stops the
// sequence before launch with that step's exit code.
func TestRunFailuresShortCircuit(t *testing.T) {
	tests := []struct {
		name       string
		rt         *fakeRuntime
		noManifest bool
		wantCode   model.ExitCode
		wantCalls  []model.Step
	}{
		{
			name:      "engine unavailable",
			rt:        &fakeRuntime{prepareErr: model.NewCLIError(model.ExitContainerEngineUnavailable, "no daemon")},
			wantCode:  model.ExitContainerEngineUnavailable,
			wantCalls: []model.Step{model.StepCheck},
		},
		{
			name:      "creation fails",
			rt:        &fakeRuntime{createErr: model.NewCLIError(model.ExitEnvCreateFailed, "no python")},
			wantCode:  model.ExitEnvCreateFailed,
			wantCalls: []model.Step{model.StepCheck, model.StepCreate},
		},
		{
			name:      "install fails",
			rt:        &fakeRuntime{installErr: model.NewCLIError(model.ExitInstallFailed, "no such package")},
			wantCode:  model.ExitInstallFailed,
			wantCalls: []model.Step{model.StepCheck, model.StepCreate, model.StepActivate, model.StepInstall},
		},
		{
			name:       "manifest missing",
			rt:         &fakeRuntime{},
			noManifest: true,
			wantCode:   model.ExitInstallFailed,
			wantCalls:  []model.Step{model.StepCheck, model.StepCreate, model.StepActivate},
		},
		{
			name:      "plain error",
			rt:        &fakeRuntime{createErr: errors.New("boom")},
			wantCode:  model.ExitGeneralError,
			wantCalls: []model.Step{model.StepCheck, model.StepCreate},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := newPlan(t)
			if tt.noManifest {
				require.NoError(t, os.Remove(plan.ManifestPath()))
			}

			code, err := New(plan, tt.rt, nil).Run(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantCalls, tt.rt.calls)
			assert.NotContains(t, tt.rt.calls, model.StepLaunch)
		})
	}
}

// TestRunPathIsAFile verifies that a file where the environment directory
// should be aborts before creation.
func TestRunPathIsAFile(t *testing.T) {
	plan := newPlan(t)
	testutil.WriteFile(t, plan.Layout.WorkDir, "venv", "")

	rt := &fakeRuntime{}
	code, err := New(plan, rt, nil).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, model.ExitEnvCreateFailed, code)
	assert.Equal(t, []model.Step{model.StepCheck}, rt.calls)
}

// TestRunExitCodePassthrough verifies that the entry point's status is
// returned unchanged and is not treated as an error.
func TestRunExitCodePassthrough(t *testing.T) {
	for _, want := range []model.ExitCode{0, 1, 3, 42, 130} {
		rt := &fakeRuntime{launchCode: want}
		code, err := New(newPlan(t), rt, nil).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, code)
	}

	rt := &fakeRuntime{launchErr: model.NewCLIError(model.ExitLaunchFailed, "cannot exec")}
	code, err := New(newPlan(t), rt, nil).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, model.ExitLaunchFailed, code)
}

// TestSetupSkipsLaunch verifies that Setup stops after install.
func TestSetupSkipsLaunch(t *testing.T) {
	rt := &fakeRuntime{}
	require.NoError(t, New(newPlan(t), rt, nil).Setup(context.Background()))
	assert.Equal(t, []model.Step{model.StepCheck, model.StepCreate, model.StepActivate, model.StepInstall}, rt.calls)
}

// TestPlanPaths verifies resolution of configured paths.
func TestPlanPaths(t *testing.T) {
	work := t.TempDir()
	abs := filepath.Join(t.TempDir(), "reqs.txt")

	plan := Plan{Layout: venv.NewLayout(work, "venv"), Manifest: "requirements.txt", EntryPoint: "app/main.py"}
	assert.Equal(t, filepath.Join(work, "requirements.txt"), plan.ManifestPath())
	assert.Equal(t, filepath.Join(work, "app", "main.py"), plan.EntryPointPath())

	plan.Manifest = abs
	assert.Equal(t, abs, plan.ManifestPath())
}
