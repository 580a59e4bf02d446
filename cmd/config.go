package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/agent-fleet-cli/internal/domain"
)

func newConfigCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate and watch the fleet manifest",
	}

	cmd.AddCommand(
		newConfigValidateCmd(app),
		newConfigWatchCmd(app),
	)

	return cmd
}

func newConfigValidateCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the manifest and print every issue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			manifest, err := app.config.Load(cmd.Context())
			if err != nil {
				var invalid *domain.InvalidManifestError
				if errors.As(err, &invalid) {
					for _, issue := range invalid.Issues {
						_, _ = fmt.Fprintln(cmd.OutOrStdout(), issue)
					}
					return fmt.Errorf("manifest invalid: %d issue(s)", len(invalid.Issues))
				}
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "manifest valid: %d agent(s)\n", len(manifest.Agents))
			return err
		},
	}
}

func newConfigWatchCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Reload the manifest on every file change until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// The initial load may fail; the watcher still starts so a
			// fixed manifest is picked up on the next write.
			if _, err := app.config.Load(cmd.Context()); err != nil {
				app.logger.WithError(err).Warn("initial manifest load failed")
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "watching manifest, ctrl-c to stop")
			return app.config.Watch(cmd.Context())
		},
	}
}
