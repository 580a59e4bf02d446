package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/agent-fleet-cli/internal/domain"
)

func newFleetCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fleet",
		Short: "Manage the fleet manifest",
	}

	cmd.AddCommand(
		newFleetListCmd(app),
		newFleetAddCmd(app),
		newFleetRemoveCmd(app),
	)

	return cmd
}

func newFleetListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured agents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			manifest, err := app.config.Load(cmd.Context())
			if err != nil {
				return err
			}

			for _, agent := range manifest.Agents {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n",
					agent.ID, agent.Branch, agent.WorkspacePath, agent.Status)
			}

			return nil
		},
	}
}

func newFleetAddCmd(app *app) *cobra.Command {
	var (
		agentID   string
		branch    string
		workspace string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an agent to the manifest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			manifest, err := app.config.Load(cmd.Context())
			if err != nil {
				return err
			}

			id := domain.AgentID(agentID)
			if _, exists := manifest.AgentByID(id); exists {
				return fmt.Errorf("agent %s already exists", id)
			}

			manifest.Agents = append(manifest.Agents, domain.AgentRecord{
				ID:            id,
				Branch:        branch,
				WorkspacePath: workspace,
			})

			if err := app.config.Save(cmd.Context(), manifest); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "agent %s added (%d agents total)\n", id, len(manifest.Agents))
			return err
		},
	}

	cmd.Flags().StringVar(&agentID, "id", "", "agent identifier")
	cmd.Flags().StringVar(&branch, "branch", "", "dedicated branch (default agent/<id>)")
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace path (default agents/<id>)")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func newFleetRemoveCmd(app *app) *cobra.Command {
	var (
		agentID string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove an agent, tearing down its workspace first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			manifest, err := app.config.Load(cmd.Context())
			if err != nil {
				return err
			}

			id := domain.AgentID(agentID)
			agent, exists := manifest.AgentByID(id)
			if !exists {
				return fmt.Errorf("%w: %s", domain.ErrAgentNotFound, id)
			}

			if err := app.workspace.Teardown(cmd.Context(), *agent, manifest.Session.Name, force); err != nil {
				return err
			}

			kept := manifest.Agents[:0]
			for _, record := range manifest.Agents {
				if record.ID != id {
					kept = append(kept, record)
				}
			}
			manifest.Agents = kept

			if err := app.config.Save(cmd.Context(), manifest); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "agent %s removed (%d agents remain)\n", id, len(manifest.Agents))
			return err
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "agent identifier")
	cmd.Flags().BoolVar(&force, "force", false, "tear down even if the agent is active")
	_ = cmd.MarkFlagRequired("agent")

	return cmd
}
