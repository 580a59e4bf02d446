package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/agent-fleet-cli/internal/application"
	"github.com/bnema/agent-fleet-cli/internal/domain"
)

func newStartCmd(app *app) *cobra.Command {
	var (
		profile int
		focus   int
		main    int
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Build the fleet session and lay out agent panes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			manifest, err := app.config.Load(cmd.Context())
			if err != nil {
				return err
			}

			opts := application.ApplyOptions{Profile: profile, Focus: focus, Main: main, Force: force}

			var descriptor domain.SessionDescriptor
			apply := func(ctx context.Context) error {
				var applyErr error
				descriptor, applyErr = app.layout.Apply(ctx, manifest, opts)
				return applyErr
			}
			if err := runTaskSpinner(cmd.Context(), cmd.ErrOrStderr(), "Applying layout...", apply); err != nil {
				return err
			}

			// Agents bound to a pane go Active; the manifest records the
			// fleet's runtime state between invocations.
			for i := range manifest.Agents {
				if _, bound := descriptor.HandleFor(manifest.Agents[i].ID); bound {
					manifest.Agents[i].Status = domain.StatusActive
				}
			}
			if err := app.config.Save(cmd.Context(), manifest); err != nil {
				return fmt.Errorf("record agent statuses: %w", err)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "session %s up: profile %d, %d agent(s)\n",
				descriptor.SessionName, descriptor.LayoutProfile, len(descriptor.Panes))
			return err
		},
	}

	cmd.Flags().IntVar(&profile, "profile", 0, "layout profile 1-5 (default from manifest, then agent count)")
	cmd.Flags().IntVar(&focus, "focus", 0, "focus agent position for profile 3")
	cmd.Flags().IntVar(&main, "main", 0, "main agent position for profile 4")
	cmd.Flags().BoolVar(&force, "force", false, "kill a running session of the same name first")

	return cmd
}

func newKillCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "kill",
		Short: "Kill the fleet session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			manifest, err := app.config.Load(cmd.Context())
			if err != nil {
				return err
			}

			if err := app.layout.Kill(cmd.Context(), manifest.Session.Name); err != nil {
				return err
			}

			for i := range manifest.Agents {
				manifest.Agents[i].Status = domain.StatusInactive
			}
			if err := app.config.Save(cmd.Context(), manifest); err != nil {
				return fmt.Errorf("record agent statuses: %w", err)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "session %s killed\n", manifest.Session.Name)
			return err
		},
	}
}
