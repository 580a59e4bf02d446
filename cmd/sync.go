package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/agent-fleet-cli/internal/application"
	"github.com/bnema/agent-fleet-cli/internal/domain"
)

func newSyncCmd(app *app) *cobra.Command {
	var (
		agentID  string
		all      bool
		base     string
		strategy string
		force    bool
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Merge base-branch updates into agent workspaces",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if agentID == "" && !all {
				return fmt.Errorf("either --agent or --all is required")
			}

			merge, err := domain.ParseMergeStrategy(strategy)
			if err != nil {
				return err
			}

			manifest, err := app.config.Load(cmd.Context())
			if err != nil {
				return err
			}

			agents := manifest.Agents
			if agentID != "" {
				agent, exists := manifest.AgentByID(domain.AgentID(agentID))
				if !exists {
					return fmt.Errorf("%w: %s", domain.ErrAgentNotFound, agentID)
				}
				agents = []domain.AgentRecord{*agent}
			}

			opts := application.SyncOptions{
				BaseBranch: base,
				Strategy:   merge,
				Force:      force,
				DryRun:     dryRun,
			}

			syncAll := func(ctx context.Context) error {
				for _, agent := range agents {
					if err := app.workspace.Sync(ctx, agent, opts); err != nil {
						return err
					}
				}
				return nil
			}

			if err := runTaskSpinner(cmd.Context(), cmd.ErrOrStderr(), "Syncing workspaces...", syncAll); err != nil {
				return err
			}

			verb := "synced"
			if dryRun {
				verb = "would sync"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %d workspace(s)\n", verb, len(agents))
			return err
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "sync a single agent")
	cmd.Flags().BoolVar(&all, "all", false, "sync every agent in the manifest")
	cmd.Flags().StringVar(&base, "base", "", "integration branch to merge from (default: main, then master)")
	cmd.Flags().StringVar(&strategy, "strategy", "manual", "conflict resolution: manual, theirs or ours")
	cmd.Flags().BoolVar(&force, "force", false, "sync even with uncommitted changes")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "check what would be synced without merging")

	return cmd
}
