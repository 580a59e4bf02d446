package domain

import "time"

// PaneHandle is an opaque backend identifier for one pane or window.
type PaneHandle string

// SessionDescriptor records the live agent-to-pane mapping for one
// multiplexer session. It is a derived view: the backend pane list stays the
// source of truth and the descriptor can be rebuilt from it.
type SessionDescriptor struct {
	SessionName    string
	LayoutProfile  int
	AgentCount     int
	MainFocusAgent int
	Panes          map[AgentID]PaneHandle
	CreatedAt      time.Time
}

func (d *SessionDescriptor) HandleFor(id AgentID) (PaneHandle, bool) {
	if d == nil {
		return "", false
	}
	handle, ok := d.Panes[id]
	return handle, ok
}

// LiveAgents lists every agent currently bound to a handle, in no particular
// order.
func (d *SessionDescriptor) LiveAgents() []AgentID {
	if d == nil {
		return nil
	}
	ids := make([]AgentID, 0, len(d.Panes))
	for id := range d.Panes {
		ids = append(ids, id)
	}
	return ids
}

// Clone deep-copies the descriptor so dispatches can work from a snapshot
// that later layout changes cannot touch.
func (d *SessionDescriptor) Clone() *SessionDescriptor {
	if d == nil {
		return nil
	}
	clone := *d
	clone.Panes = make(map[AgentID]PaneHandle, len(d.Panes))
	for id, handle := range d.Panes {
		clone.Panes[id] = handle
	}
	return &clone
}

// Unbind drops one agent's mapping entry, used by forced teardown.
func (d *SessionDescriptor) Unbind(id AgentID) {
	if d == nil {
		return
	}
	delete(d.Panes, id)
}
