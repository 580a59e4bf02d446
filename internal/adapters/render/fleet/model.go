package fleet

import (
	"time"

	"github.com/bnema/agent-fleet-cli/internal/domain"
)

// AgentView pairs one manifest record with its live pane binding, empty
// when the agent has no pane in the current session.
type AgentView struct {
	Record domain.AgentRecord
	Pane   domain.PaneHandle
}

// FleetView is everything the status renderer needs about one fleet.
type FleetView struct {
	SessionName string
	Profile     int
	SessionLive bool
	Agents      []AgentView
}

type RenderOptions struct {
	Now time.Time
}
