package domain

import (
	"fmt"
	"path"
	"strings"
)

const DefaultSessionName = "agent-fleet"

// SessionDefaults carries the manifest's session-level preferences.
// LayoutProfile 0 means "pick by agent count"; MainFocusAgent 0 means unset.
type SessionDefaults struct {
	Name           string
	LayoutProfile  int
	MainFocusAgent int
}

// FleetManifest is the declarative description of the whole fleet.
type FleetManifest struct {
	Session SessionDefaults
	Limits  ResourceLimits
	Agents  []AgentRecord
}

func (m *FleetManifest) Normalize() {
	if m == nil {
		return
	}

	if m.Session.Name == "" {
		m.Session.Name = DefaultSessionName
	}
	for i := range m.Agents {
		m.Agents[i].Normalize(m.Limits)
	}
}

func (m *FleetManifest) AgentByID(id AgentID) (*AgentRecord, bool) {
	for i := range m.Agents {
		if m.Agents[i].ID == id {
			return &m.Agents[i], true
		}
	}
	return nil, false
}

// Position returns the 1-based position of id in manifest order, 0 when the
// id is not part of the fleet.
func (m *FleetManifest) Position(id AgentID) int {
	for i := range m.Agents {
		if m.Agents[i].ID == id {
			return i + 1
		}
	}
	return 0
}

// AgentIDs lists ids in manifest order.
func (m *FleetManifest) AgentIDs() []AgentID {
	ids := make([]AgentID, 0, len(m.Agents))
	for i := range m.Agents {
		ids = append(ids, m.Agents[i].ID)
	}
	return ids
}

type ValidationIssue struct {
	Field   string
	AgentID AgentID
	Message string
}

func (i ValidationIssue) String() string {
	if i.AgentID != "" {
		return fmt.Sprintf("%s (agent %s): %s", i.Field, i.AgentID, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// InvalidManifestError reports semantic failures found in an otherwise
// well-formed manifest.
type InvalidManifestError struct {
	Issues []ValidationIssue
}

func (e *InvalidManifestError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("invalid manifest: %s", e.Issues[0])
	}
	return fmt.Sprintf("invalid manifest: %d issues, first: %s", len(e.Issues), e.Issues[0])
}

// Validate checks every semantic rule and returns the full issue list. An
// empty result means the manifest may be handed to the other components.
func (m *FleetManifest) Validate() []ValidationIssue {
	var issues []ValidationIssue

	if m.Session.LayoutProfile != 0 && !KnownProfile(m.Session.LayoutProfile) {
		issues = append(issues, ValidationIssue{
			Field:   "session.layout_profile",
			Message: fmt.Sprintf("unknown profile %d, want 1 through %d", m.Session.LayoutProfile, ProfileCount),
		})
	}
	if focus := m.Session.MainFocusAgent; focus != 0 && (focus < 1 || focus > len(m.Agents)) {
		issues = append(issues, ValidationIssue{
			Field:   "session.main_focus_agent",
			Message: fmt.Sprintf("position %d outside [1, %d]", focus, len(m.Agents)),
		})
	}
	issues = append(issues, validateLimits("limits", "", m.Limits, false)...)

	seenIDs := make(map[AgentID]struct{}, len(m.Agents))
	seenPaths := make(map[string]AgentID, len(m.Agents))
	for i := range m.Agents {
		agent := &m.Agents[i]

		if !ValidAgentID(agent.ID) {
			issues = append(issues, ValidationIssue{
				Field:   "agents.id",
				AgentID: agent.ID,
				Message: "id must be non-empty and use only letters, digits, '-' or '_'",
			})
		}
		if _, dup := seenIDs[agent.ID]; dup {
			issues = append(issues, ValidationIssue{
				Field:   "agents.id",
				AgentID: agent.ID,
				Message: "duplicate id",
			})
		}
		seenIDs[agent.ID] = struct{}{}

		if agent.Branch == "" {
			issues = append(issues, ValidationIssue{
				Field:   "agents.branch",
				AgentID: agent.ID,
				Message: "branch is required",
			})
		}

		if !validWorkspacePath(agent.WorkspacePath) {
			issues = append(issues, ValidationIssue{
				Field:   "agents.workspace_path",
				AgentID: agent.ID,
				Message: fmt.Sprintf("path %q must stay under %s/ and contain no traversal", agent.WorkspacePath, WorkspaceRoot),
			})
		} else if owner, taken := seenPaths[path.Clean(agent.WorkspacePath)]; taken {
			issues = append(issues, ValidationIssue{
				Field:   "agents.workspace_path",
				AgentID: agent.ID,
				Message: fmt.Sprintf("path already owned by agent %s", owner),
			})
		} else {
			seenPaths[path.Clean(agent.WorkspacePath)] = agent.ID
		}

		if !agent.Status.Valid() {
			issues = append(issues, ValidationIssue{
				Field:   "agents.status",
				AgentID: agent.ID,
				Message: fmt.Sprintf("unknown status %q", agent.Status),
			})
		}

		issues = append(issues, validateLimits("agents.resource_limits", agent.ID, agent.Limits, true)...)
		issues = append(issues, validateTimeouts(agent.ID, agent.Timeouts)...)
	}

	return issues
}

// validateLimits range-checks one limits block. Global limits are an
// optional fallback, so zero fields only count as issues when required.
func validateLimits(field string, id AgentID, l ResourceLimits, required bool) []ValidationIssue {
	var issues []ValidationIssue
	if l.MaxMemoryMB < 0 || (required && l.MaxMemoryMB == 0) {
		issues = append(issues, ValidationIssue{Field: field + ".max_memory_mb", AgentID: id, Message: "must be positive"})
	}
	if l.MaxCPUPercent < 0 || l.MaxCPUPercent > 100 {
		issues = append(issues, ValidationIssue{Field: field + ".max_cpu_percent", AgentID: id, Message: "must be within [0, 100]"})
	}
	if l.MaxProcesses < 0 || (required && l.MaxProcesses == 0) {
		issues = append(issues, ValidationIssue{Field: field + ".max_processes", AgentID: id, Message: "must be positive"})
	}
	return issues
}

func validateTimeouts(id AgentID, t TimeoutSettings) []ValidationIssue {
	var issues []ValidationIssue
	if t.Default <= 0 {
		issues = append(issues, ValidationIssue{Field: "agents.timeout_settings.default", AgentID: id, Message: "must be positive"})
	}
	if t.Max <= 0 {
		issues = append(issues, ValidationIssue{Field: "agents.timeout_settings.max", AgentID: id, Message: "must be positive"})
	} else if t.Default > t.Max {
		issues = append(issues, ValidationIssue{Field: "agents.timeout_settings", AgentID: id, Message: "default exceeds max"})
	}
	return issues
}

func validWorkspacePath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") {
		return false
	}
	clean := path.Clean(p)
	return strings.HasPrefix(clean, WorkspaceRoot+"/")
}
