package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/envboot/internal/docker"
	"github.com/shinji-kodama/envboot/internal/manifest"
	"github.com/shinji-kodama/envboot/internal/model"
	"github.com/shinji-kodama/envboot/internal/venv"
)

// NewStatusCommand creates the "status" command. It reports what a run
// would find without creating or changing anything.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of the environment, manifest and entry point",
		Long: `Show what envboot would find in the current directory: whether the
environment exists and which Python it was created from, the requirements
in the manifest, and whether the entry point is present.

With the container runtime, any step containers left behind by an
interrupted run are listed as well.

Nothing is created or modified.

Examples:
  envboot status
  envboot status --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			var list containerLister
			if p.Config.Runtime == model.RuntimeContainer {
				list = listStepContainers
			}

			report, err := buildStatus(cmd.Context(), p, list)
			if err != nil {
				return err
			}
			if IsJSONOutput() {
				return printStatusJSON(cmd.OutOrStdout(), report)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), renderStatus(report))
			return err
		},
	}
}

// statusReport is the result of the status command, also its JSON form.
type statusReport struct {
	WorkDir     string           `json:"workDir"`
	ConfigFile  string           `json:"configFile,omitempty"`
	Runtime     model.Runtime    `json:"runtime"`
	Image       string           `json:"image,omitempty"`
	Environment *venv.Info       `json:"environment"`
	Manifest    manifestStatus   `json:"manifest"`
	EntryPoint  entryPointStatus `json:"entryPoint"`

	// Containers is only set for the container runtime.
	Containers     []model.ContainerInfo `json:"containers,omitempty"`
	ContainerError string                `json:"containerError,omitempty"`
}

type manifestStatus struct {
	Path         string   `json:"path"`
	Found        bool     `json:"found"`
	Requirements []string `json:"requirements"`
	Options      []string `json:"options,omitempty"`
	Unparsed     []string `json:"unparsed,omitempty"`
	Error        string   `json:"error,omitempty"`
}

type entryPointStatus struct {
	Path  string `json:"path"`
	Found bool   `json:"found"`
}

// containerLister lists envboot containers of a project directory.
type containerLister func(ctx context.Context, workDir string) ([]model.ContainerInfo, error)

// listStepContainers asks the Docker daemon for leftover step containers.
func listStepContainers(ctx context.Context, workDir string) ([]model.ContainerInfo, error) {
	cli, err := docker.NewClient()
	if err != nil {
		return nil, err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return nil, err
	}
	return docker.ListManagedContainers(ctx, cli, workDir)
}

// buildStatus collects the report. Problems with the manifest or the
// container engine are part of the report, not errors: status should work
// in exactly the situations a run would fail in. list may be nil.
func buildStatus(ctx context.Context, p *project, list containerLister) (*statusReport, error) {
	info, err := p.Plan.Layout.Inspect()
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "failed to inspect environment", err)
	}

	report := &statusReport{
		WorkDir:     p.WorkDir,
		ConfigFile:  p.ConfigPath,
		Runtime:     p.Config.Runtime,
		Environment: info,
		Manifest: manifestStatus{
			Path:         p.Config.Manifest,
			Requirements: []string{},
		},
		EntryPoint: entryPointStatus{Path: p.Config.EntryPoint},
	}
	if p.Config.Runtime == model.RuntimeContainer {
		report.Image = p.Config.Container.Image
	}

	m, err := manifest.Load(p.Plan.ManifestPath())
	switch {
	case err == nil:
		report.Manifest.Found = true
		for _, r := range m.Requirements {
			report.Manifest.Requirements = append(report.Manifest.Requirements, r.String())
		}
		report.Manifest.Options = m.Options
		report.Manifest.Unparsed = m.Unparsed
	case errors.Is(err, fs.ErrNotExist):
		// Found stays false.
	default:
		report.Manifest.Error = err.Error()
	}

	if st, err := os.Stat(p.Plan.EntryPointPath()); err == nil && !st.IsDir() {
		report.EntryPoint.Found = true
	}

	if list != nil {
		containers, err := list(ctx, p.WorkDir)
		if err != nil {
			report.ContainerError = err.Error()
		} else {
			report.Containers = containers
		}
	}

	return report, nil
}

// printStatusJSON writes the report as indented JSON.
func printStatusJSON(w io.Writer, report *statusReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// renderStatus formats the report for a terminal. lipgloss drops the
// colours automatically when output is not a terminal.
func renderStatus(r *statusReport) string {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39"))

	labelStyle := lipgloss.NewStyle().
		Bold(true).
		Width(14)

	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	missingStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	state := func(found bool) string {
		if found {
			return okStyle.Render("found")
		}
		return missingStyle.Render("missing")
	}

	var sb strings.Builder
	line := func(label, value string) {
		sb.WriteString(labelStyle.Render(label))
		sb.WriteString(value)
		sb.WriteString("\n")
	}

	sb.WriteString(headerStyle.Render("envboot status"))
	sb.WriteString("\n\n")

	line("Directory", r.WorkDir)
	if r.ConfigFile != "" {
		line("Config", r.ConfigFile)
	} else {
		line("Config", dimStyle.Render("defaults"))
	}
	runtimeValue := r.Runtime.String()
	if r.Image != "" {
		runtimeValue += " (" + r.Image + ")"
	}
	line("Runtime", runtimeValue)

	env := r.Environment
	if env.Exists {
		line("Environment", env.Path+" "+okStyle.Render("exists"))
		line("Interpreter", env.Interpreter+" "+state(env.InterpreterFound))
		if v := env.Version(); v != "" {
			line("Python", v)
		}
		if h := env.Home(); h != "" {
			line("Base", h)
		}
	} else {
		line("Environment", env.Path+" "+missingStyle.Render("will be created"))
	}

	switch {
	case r.Manifest.Error != "":
		line("Manifest", r.Manifest.Path+" "+errStyle.Render(r.Manifest.Error))
	case !r.Manifest.Found:
		line("Manifest", r.Manifest.Path+" "+state(false))
	default:
		line("Manifest", fmt.Sprintf("%s %s, %d requirement(s)", r.Manifest.Path, state(true), len(r.Manifest.Requirements)))
		for _, req := range r.Manifest.Requirements {
			sb.WriteString(dimStyle.Render("  • " + req))
			sb.WriteString("\n")
		}
	}

	line("Entry point", r.EntryPoint.Path+" "+state(r.EntryPoint.Found))

	if r.Runtime == model.RuntimeContainer {
		switch {
		case r.ContainerError != "":
			line("Containers", errStyle.Render(r.ContainerError))
		case len(r.Containers) == 0:
			line("Containers", dimStyle.Render("none left over"))
		default:
			line("Containers", fmt.Sprintf("%d left over", len(r.Containers)))
			for _, c := range r.Containers {
				sb.WriteString(dimStyle.Render(fmt.Sprintf("  • %s (%s, %s)", c.ContainerName, c.Step, c.Status)))
				sb.WriteString("\n")
			}
		}
	}

	return sb.String()
}
