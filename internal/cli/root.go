// Package cli implements the cobra-based command line of envboot.
//
// The root command is the bootstrap itself: with no flags and no arguments
// it checks for the environment, creates it if needed, installs the
// manifest and launches the entry point, exiting with the entry point's
// status. The "setup" and "status" subcommands are defined in their own
// files.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/envboot/internal/model"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput controls whether status and error output is JSON.
	jsonOutput bool

	// verbose lowers the log level to debug.
	verbose bool

	// configPath selects a config file explicitly. Empty means search the
	// working directory.
	configPath string
)

// Version, Commit, and Date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
func NewRootCommand() *cobra.Command {
	// Flags are package globals; reset them so repeated construction (as
	// in tests) starts clean.
	jsonOutput, verbose, configPath = false, false, ""

	rootCmd := &cobra.Command{
		Use:   "envboot",
		Short: "Bootstrap a Python environment and run the project's entry point",
		Long: `envboot prepares an isolated Python environment for the project in the
current directory and then runs its entry point inside it.

On every run it:
  1. checks whether the environment directory (venv) exists
  2. creates it with "python -m venv" if it does not
  3. activates it for the rest of the run
  4. installs the dependencies listed in requirements.txt
  5. runs script.py and exits with its exit status

If creating the environment or installing dependencies fails, envboot
stops before running the entry point and exits with a non-zero status.

Paths and the interpreter can be changed in envboot.yaml, envboot.yml
or envboot.json in the working directory.`,

		Args: cobra.NoArgs,

		// Errors are printed by Execute, in text or JSON.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runBootstrap(cmd)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output status and errors in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (default: envboot.yaml in the working directory)")

	rootCmd.AddCommand(NewSetupCommand())
	rootCmd.AddCommand(NewStatusCommand())

	return rootCmd
}

// runBootstrap performs the full sequence and returns a *model.ExitError
// when the entry point exits non-zero.
func runBootstrap(cmd *cobra.Command) error {
	// Step 1: Resolve the working directory, configuration and logger.
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()
	p.Logger.Debug("project", "summary", p.String())

	// Step 2: Build the bootstrapper for the configured runtime. release
	// closes the Docker connection in container mode.
	b, release := p.bootstrapper()
	defer release()

	// Step 3: Check, create, activate, install and launch. err is a setup
	// failure; code is the entry point's own exit status.
	code, err := b.Run(cmd.Context())
	if err != nil {
		return err
	}

	// Step 4: A failing entry point is not an envboot error. ExitError
	// carries its status out of cobra without printing anything.
	if !code.IsSuccess() {
		return &model.ExitError{Code: code}
	}
	return nil
}

// Execute runs the root command and returns the process exit code.
// This is the main entry point called from main.go.
//
// An interrupt or SIGTERM cancels the command's context, which stops the
// step that is running; envboot then exits with that step's result instead
// of being killed alongside it.
//
//   - nil error: 0
//   - *model.ExitError: the entry point's status, printed nothing
//   - *model.CLIError: its code, message printed
//   - anything else (e.g. unknown flag): 1, message printed
func Execute(rootCmd *cobra.Command) int {
	// Step 1: Ctrl-C and SIGTERM cancel the context, which interrupts the
	// running child instead of killing envboot outright.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return int(model.ExitSuccess)
	}

	// Step 2: Pass the entry point's status through silently.
	var exitErr *model.ExitError
	if errors.As(err, &exitErr) {
		return int(exitErr.Code)
	}

	// Step 3: Report envboot's own failures with their category's code.
	w := rootCmd.ErrOrStderr()
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		printError(w, cliErr.Code, cliErr.Message, cliErr.Err)
		return int(cliErr.Code)
	}

	printError(w, model.ExitGeneralError, err.Error(), nil)
	return int(model.ExitGeneralError)
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(w io.Writer, code model.ExitCode, message string, underlying error) {
	if jsonOutput {
		type errorJSON struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Detail  string `json:"detail,omitempty"`
		}
		e := errorJSON{Code: int(code), Message: message}
		if underlying != nil {
			e.Detail = underlying.Error()
		}
		data, _ := json.MarshalIndent(map[string]errorJSON{"error": e}, "", "  ")
		_, _ = fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		_, _ = fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		_, _ = fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// IsJSONOutput returns whether the --json flag is set.
func IsJSONOutput() bool {
	return jsonOutput
}
