package cmd

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	fleetrender "github.com/bnema/agent-fleet-cli/internal/adapters/render/fleet"
	"github.com/bnema/agent-fleet-cli/internal/application"
	"github.com/bnema/agent-fleet-cli/internal/domain"
)

type statusJSON struct {
	Session string            `json:"session"`
	Live    bool              `json:"live"`
	Profile int               `json:"profile,omitempty"`
	Agents  []agentStatusJSON `json:"agents"`
}

type agentStatusJSON struct {
	ID        string `json:"id"`
	Branch    string `json:"branch"`
	Workspace string `json:"workspace"`
	Status    string `json:"status"`
	Pane      string `json:"pane,omitempty"`
}

func newStatusCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show fleet and session status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			manifest, err := app.config.Load(cmd.Context())
			if err != nil {
				return err
			}

			view := buildFleetView(cmd, app, manifest)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(toStatusJSON(view))
			}

			rendered, err := app.fleetRenderer(view, fleetrender.RenderOptions{Now: app.now()})
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write([]byte(rendered + "\n"))
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "machine-readable output")

	return cmd
}

// buildFleetView assembles the status view. An unreachable backend is
// reported as "session down" rather than failing the whole command.
func buildFleetView(cmd *cobra.Command, app *app, manifest domain.FleetManifest) fleetrender.FleetView {
	view := fleetrender.FleetView{SessionName: manifest.Session.Name}

	live, err := app.backend.HasSession(cmd.Context(), manifest.Session.Name)
	if err != nil {
		app.logger.WithError(err).Debug("session probe failed, reporting down")
		live = false
	}
	view.SessionLive = live

	var descriptor domain.SessionDescriptor
	if live {
		descriptor, err = app.layout.Current(cmd.Context(), manifest, application.ApplyOptions{})
		if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			app.logger.WithError(err).Warn("session descriptor unavailable")
		}
		view.Profile = descriptor.LayoutProfile
	}

	for _, agent := range manifest.Agents {
		pane, _ := descriptor.HandleFor(agent.ID)
		view.Agents = append(view.Agents, fleetrender.AgentView{Record: agent, Pane: pane})
	}

	return view
}

func toStatusJSON(view fleetrender.FleetView) statusJSON {
	out := statusJSON{
		Session: view.SessionName,
		Live:    view.SessionLive,
		Profile: view.Profile,
		Agents:  make([]agentStatusJSON, 0, len(view.Agents)),
	}

	for _, agent := range view.Agents {
		out.Agents = append(out.Agents, agentStatusJSON{
			ID:        string(agent.Record.ID),
			Branch:    agent.Record.Branch,
			Workspace: agent.Record.WorkspacePath,
			Status:    string(agent.Record.Status),
			Pane:      string(agent.Pane),
		})
	}

	return out
}
