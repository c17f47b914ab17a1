package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRuntime_IsValid checks that only defined runtime values pass validation.
func TestRuntime_IsValid(t *testing.T) {
	assert.True(t, RuntimeHost.IsValid())
	assert.True(t, RuntimeContainer.IsValid())
	assert.False(t, Runtime("vm").IsValid())
	assert.False(t, Runtime("").IsValid())
}

// TestParseRuntime verifies string-to-runtime conversion,
// including case normalization and error cases.
func TestParseRuntime(t *testing.T) {
	tests := []struct {
		input    string
		expected Runtime
		hasError bool
	}{
		{"host", RuntimeHost, false},
		{"container", RuntimeContainer, false},
		// Case and surrounding whitespace are normalized.
		{"Host", RuntimeHost, false},
		{" CONTAINER ", RuntimeContainer, false},
		{"docker", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseRuntime(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

// TestParsePullPolicy verifies string-to-policy conversion.
func TestParsePullPolicy(t *testing.T) {
	tests := []struct {
		input    string
		expected PullPolicy
		hasError bool
	}{
		{"missing", PullMissing, false},
		{"always", PullAlways, false},
		{"Never", PullNever, false},
		{"sometimes", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParsePullPolicy(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

// TestRequirement_String verifies that a parsed requirement renders back in
// requirements-file form.
func TestRequirement_String(t *testing.T) {
	tests := []struct {
		name string
		req  Requirement
		want string
	}{
		{
			name: "bare name",
			req:  Requirement{Name: "requests"},
			want: "requests",
		},
		{
			name: "name with specifier",
			req:  Requirement{Name: "requests", Specifier: ">=2.31,<3"},
			want: "requests>=2.31,<3",
		},
		{
			name: "extras and marker",
			req: Requirement{
				Name:      "uvicorn",
				Extras:    []string{"standard", "http"},
				Specifier: "==0.30",
				Marker:    `python_version >= "3.9"`,
			},
			want: `uvicorn[standard,http]==0.30; python_version >= "3.9"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.String())
		})
	}
}

// TestCLIError verifies message formatting and error unwrapping.
func TestCLIError(t *testing.T) {
	underlying := errors.New("exit status 1")

	t.Run("without underlying error", func(t *testing.T) {
		err := NewCLIError(ExitConfigInvalid, "bad config")
		assert.Equal(t, "bad config", err.Error())
		assert.Equal(t, ExitConfigInvalid, err.Code)
		assert.Nil(t, errors.Unwrap(err))
	})

	t.Run("with underlying error", func(t *testing.T) {
		err := WrapCLIError(ExitInstallFailed, "pip install failed", underlying)
		assert.Equal(t, "pip install failed: exit status 1", err.Error())
		assert.True(t, errors.Is(err, underlying))
	})

	t.Run("errors.As finds the code through wrapping", func(t *testing.T) {
		var wrapped error = WrapCLIError(ExitEnvCreateFailed, "venv failed", underlying)
		var cliErr *CLIError
		require.True(t, errors.As(wrapped, &cliErr))
		assert.Equal(t, ExitEnvCreateFailed, cliErr.Code)
	})
}

// TestExitError verifies the entry point exit status wrapper.
func TestExitError(t *testing.T) {
	err := &ExitError{Code: 42}
	assert.Equal(t, "entry point exited with status 42", err.Error())
	assert.False(t, err.Code.IsSuccess())
	assert.True(t, ExitSuccess.IsSuccess())
}
