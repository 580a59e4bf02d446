package fleet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/agent-fleet-cli/internal/domain"
)

func TestRenderListsEveryAgent(t *testing.T) {
	t.Parallel()

	view := FleetView{
		SessionName: "fleet",
		Profile:     2,
		SessionLive: true,
		Agents: []AgentView{
			{
				Record: domain.AgentRecord{ID: "alpha", Branch: "agent/alpha", WorkspacePath: "agents/alpha", Status: domain.StatusActive},
				Pane:   "%0",
			},
			{
				Record: domain.AgentRecord{ID: "beta", Branch: "agent/beta", WorkspacePath: "agents/beta", Status: domain.StatusInactive},
			},
		},
	}

	rendered, err := Render(view, RenderOptions{Now: time.Now()})
	require.NoError(t, err)

	assert.Contains(t, rendered, "session fleet: up (profile 2)")
	assert.Contains(t, rendered, "alpha")
	assert.Contains(t, rendered, "branch: agent/alpha")
	assert.Contains(t, rendered, "pane: %0")
	assert.Contains(t, rendered, "beta")
	assert.Contains(t, rendered, "pane: none")
}

func TestRenderSessionDown(t *testing.T) {
	t.Parallel()

	rendered, err := Render(FleetView{SessionName: "fleet"}, RenderOptions{})
	require.NoError(t, err)

	assert.Contains(t, rendered, "session fleet: down")
	assert.Contains(t, rendered, "No agents configured.")
}

func TestRenderReportEnumeratesTargets(t *testing.T) {
	t.Parallel()

	report := domain.NewDispatchReport([]domain.DeliveryResult{
		{AgentID: "alpha", Outcome: domain.OutcomeDelivered, Attempts: 1, Elapsed: 120 * time.Millisecond},
		{AgentID: "beta", Outcome: domain.OutcomeTimedOut, Attempts: 3, Elapsed: 3 * time.Second},
		{AgentID: "gamma", Outcome: domain.OutcomeFailed, Attempts: 1, Reason: "pane destroyed"},
	})

	rendered := RenderReport(report)

	assert.Contains(t, rendered, "alpha")
	assert.Contains(t, rendered, "delivered")
	assert.Contains(t, rendered, "beta")
	assert.Contains(t, rendered, "timed_out")
	assert.Contains(t, rendered, "gamma")
	assert.Contains(t, rendered, "pane destroyed")
	assert.Contains(t, rendered, "partial failure")
}

func TestRenderReportAllDelivered(t *testing.T) {
	t.Parallel()

	report := domain.NewDispatchReport([]domain.DeliveryResult{
		{AgentID: "alpha", Outcome: domain.OutcomeDelivered, Attempts: 1},
	})

	rendered := RenderReport(report)
	assert.Contains(t, rendered, "all targets delivered")
}
