package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validManifest() FleetManifest {
	m := FleetManifest{
		Session: SessionDefaults{Name: "fleet", LayoutProfile: 1},
		Agents: []AgentRecord{
			{ID: "alpha"},
			{ID: "beta"},
			{ID: "gamma"},
		},
	}
	m.Normalize()
	return m
}

func TestNormalizeFillsDefaults(t *testing.T) {
	m := FleetManifest{Agents: []AgentRecord{{ID: "alpha"}}}
	m.Normalize()

	require.Len(t, m.Agents, 1)
	agent := m.Agents[0]

	assert.Equal(t, "agent-fleet", m.Session.Name)
	assert.Equal(t, "agent/alpha", agent.Branch)
	assert.Equal(t, "agents/alpha", agent.WorkspacePath)
	assert.Equal(t, StatusInactive, agent.Status)
	assert.Equal(t, DefaultMaxMemoryMB, agent.Limits.MaxMemoryMB)
	assert.Equal(t, DefaultMaxCPUPercent, agent.Limits.MaxCPUPercent)
	assert.Equal(t, DefaultMaxProcesses, agent.Limits.MaxProcesses)
	assert.Equal(t, 30*time.Second, agent.Timeouts.Default)
	assert.Equal(t, 300*time.Second, agent.Timeouts.Max)
}

func TestNormalizePrefersGlobalLimits(t *testing.T) {
	m := FleetManifest{
		Limits: ResourceLimits{MaxMemoryMB: 2048, MaxCPUPercent: 50, MaxProcesses: 16},
		Agents: []AgentRecord{
			{ID: "alpha"},
			{ID: "beta", Limits: ResourceLimits{MaxMemoryMB: 512}},
		},
	}
	m.Normalize()

	assert.Equal(t, ResourceLimits{MaxMemoryMB: 2048, MaxCPUPercent: 50, MaxProcesses: 16}, m.Agents[0].Limits)
	assert.Equal(t, ResourceLimits{MaxMemoryMB: 512, MaxCPUPercent: 50, MaxProcesses: 16}, m.Agents[1].Limits)
}

func TestValidateAcceptsNormalizedManifest(t *testing.T) {
	m := validManifest()
	assert.Empty(t, m.Validate())
}

func TestValidateIssues(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*FleetManifest)
		wantField string
	}{
		{
			name:      "duplicate id",
			mutate:    func(m *FleetManifest) { m.Agents[1].ID = "alpha" },
			wantField: "agents.id",
		},
		{
			name:      "id charset",
			mutate:    func(m *FleetManifest) { m.Agents[0].ID = "al pha" },
			wantField: "agents.id",
		},
		{
			name:      "empty id",
			mutate:    func(m *FleetManifest) { m.Agents[0].ID = "" },
			wantField: "agents.id",
		},
		{
			name:      "path outside workspace root",
			mutate:    func(m *FleetManifest) { m.Agents[0].WorkspacePath = "elsewhere/alpha" },
			wantField: "agents.workspace_path",
		},
		{
			name:      "path traversal",
			mutate:    func(m *FleetManifest) { m.Agents[0].WorkspacePath = "agents/../../etc" },
			wantField: "agents.workspace_path",
		},
		{
			name:      "absolute path",
			mutate:    func(m *FleetManifest) { m.Agents[0].WorkspacePath = "/tmp/alpha" },
			wantField: "agents.workspace_path",
		},
		{
			name:      "duplicate path",
			mutate:    func(m *FleetManifest) { m.Agents[1].WorkspacePath = m.Agents[0].WorkspacePath },
			wantField: "agents.workspace_path",
		},
		{
			name:      "unknown status",
			mutate:    func(m *FleetManifest) { m.Agents[0].Status = "sleeping" },
			wantField: "agents.status",
		},
		{
			name:      "negative memory",
			mutate:    func(m *FleetManifest) { m.Agents[0].Limits.MaxMemoryMB = -1 },
			wantField: "agents.resource_limits.max_memory_mb",
		},
		{
			name:      "cpu percent above range",
			mutate:    func(m *FleetManifest) { m.Agents[0].Limits.MaxCPUPercent = 130 },
			wantField: "agents.resource_limits.max_cpu_percent",
		},
		{
			name:      "default timeout exceeds max",
			mutate:    func(m *FleetManifest) { m.Agents[0].Timeouts = TimeoutSettings{Default: time.Hour, Max: time.Minute} },
			wantField: "agents.timeout_settings",
		},
		{
			name:      "unknown layout profile",
			mutate:    func(m *FleetManifest) { m.Session.LayoutProfile = 9 },
			wantField: "session.layout_profile",
		},
		{
			name:      "focus position out of range",
			mutate:    func(m *FleetManifest) { m.Session.MainFocusAgent = 7 },
			wantField: "session.main_focus_agent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validManifest()
			tt.mutate(&m)

			issues := m.Validate()
			require.NotEmpty(t, issues)

			found := false
			for _, issue := range issues {
				if strings.HasPrefix(issue.Field, tt.wantField) {
					found = true
				}
			}
			assert.True(t, found, "no issue with field %s in %v", tt.wantField, issues)
		})
	}
}

func TestPositionAndLookup(t *testing.T) {
	m := validManifest()

	assert.Equal(t, 2, m.Position("beta"))
	assert.Equal(t, 0, m.Position("missing"))

	agent, ok := m.AgentByID("gamma")
	require.True(t, ok)
	assert.Equal(t, AgentID("gamma"), agent.ID)

	_, ok = m.AgentByID("missing")
	assert.False(t, ok)
}

func TestInvalidManifestErrorMessage(t *testing.T) {
	err := &InvalidManifestError{Issues: []ValidationIssue{
		{Field: "agents.id", AgentID: "alpha", Message: "duplicate id"},
		{Field: "agents.branch", AgentID: "beta", Message: "branch is required"},
	}}

	assert.Contains(t, err.Error(), "2 issues")
	assert.Contains(t, err.Error(), "alpha")
}
