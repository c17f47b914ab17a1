package cli

import (
	"github.com/spf13/cobra"
)

// NewSetupCommand creates the "setup" command: the bootstrap without the
// launch step.
func NewSetupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create the environment and install dependencies without running the entry point",
		Long: `Run every bootstrap step except the last one: check for the environment,
create it if needed, activate it and install the manifest.

This is useful for preparing an environment ahead of time, for example
while building a CI image.

Examples:
  envboot setup
  envboot setup --config ci/envboot.yaml`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			b, release := p.bootstrapper()
			defer release()

			if err := b.Setup(cmd.Context()); err != nil {
				return err
			}
			p.Logger.Info("environment ready", "dir", p.Plan.Layout.Dir)
			return nil
		},
	}
}
