package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/agent-fleet-cli/internal/domain"
)

func newProvisionCmd(app *app) *cobra.Command {
	var (
		agentID string
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create agent workspaces (git worktree per agent)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if agentID == "" && !all {
				return fmt.Errorf("either --agent or --all is required")
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

			// Provisioning runs strictly sequentially; worktree
			// operations share repository-level locks.
			provisionAll := func(ctx context.Context) error {
				for _, agent := range agents {
					if err := app.workspace.Provision(ctx, agent); err != nil {
						return err
					}
				}
				return nil
			}

			if err := runTaskSpinner(cmd.Context(), cmd.ErrOrStderr(), "Provisioning workspaces...", provisionAll); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "provisioned %d workspace(s)\n", len(agents))
			return err
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "provision a single agent")
	cmd.Flags().BoolVar(&all, "all", false, "provision every agent in the manifest")

	return cmd
}

func newTeardownCmd(app *app) *cobra.Command {
	var (
		agentID string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Remove an agent's workspace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			manifest, err := app.config.Load(cmd.Context())
			if err != nil {
				return err
			}

			agent, exists := manifest.AgentByID(domain.AgentID(agentID))
			if !exists {
				return fmt.Errorf("%w: %s", domain.ErrAgentNotFound, agentID)
			}

			if err := app.workspace.Teardown(cmd.Context(), *agent, manifest.Session.Name, force); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "workspace of agent %s torn down\n", agent.ID)
			return err
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "agent identifier")
	cmd.Flags().BoolVar(&force, "force", false, "tear down even if the agent is active")
	_ = cmd.MarkFlagRequired("agent")

	return cmd
}
