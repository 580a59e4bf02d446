package domain

import (
	"fmt"
	"regexp"
	"time"
)

type AgentID string

type AgentStatus string

const (
	StatusInactive AgentStatus = "inactive"
	StatusActive   AgentStatus = "active"
	StatusBusy     AgentStatus = "busy"
	StatusError    AgentStatus = "error"
)

func (s AgentStatus) Valid() bool {
	switch s {
	case StatusInactive, StatusActive, StatusBusy, StatusError:
		return true
	}
	return false
}

// ResourceLimits are advisory ceilings recorded per agent. They are checked
// at validation time, never enforced at runtime.
type ResourceLimits struct {
	MaxMemoryMB   int
	MaxCPUPercent int
	MaxProcesses  int
}

func (l ResourceLimits) IsZero() bool {
	return l == ResourceLimits{}
}

type TimeoutSettings struct {
	Default time.Duration
	Max     time.Duration
}

const (
	DefaultMaxMemoryMB   = 1024
	DefaultMaxCPUPercent = 80
	DefaultMaxProcesses  = 32

	DefaultCommandTimeout = 30 * time.Second
	MaxCommandTimeout     = 300 * time.Second
)

// WorkspaceRoot is the directory, relative to the repository root, under
// which every agent workspace must live.
const WorkspaceRoot = "agents"

var agentIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func ValidAgentID(id AgentID) bool {
	return agentIDPattern.MatchString(string(id))
}

type AgentRecord struct {
	ID            AgentID
	Branch        string
	WorkspacePath string
	Status        AgentStatus
	Limits        ResourceLimits
	Timeouts      TimeoutSettings
}

// DefaultBranch is the branch convention for agents that do not declare one.
func DefaultBranch(id AgentID) string {
	return fmt.Sprintf("agent/%s", id)
}

// DefaultWorkspacePath places the agent under the workspace root.
func DefaultWorkspacePath(id AgentID) string {
	return fmt.Sprintf("%s/%s", WorkspaceRoot, id)
}

// Normalize fills unset fields with their defaults. Zero limit fields fall
// back to global, then to the built-in defaults.
func (a *AgentRecord) Normalize(global ResourceLimits) {
	if a == nil {
		return
	}

	if a.Branch == "" {
		a.Branch = DefaultBranch(a.ID)
	}
	if a.WorkspacePath == "" {
		a.WorkspacePath = DefaultWorkspacePath(a.ID)
	}
	if a.Status == "" {
		a.Status = StatusInactive
	}
	if a.Limits.MaxMemoryMB == 0 {
		a.Limits.MaxMemoryMB = pick(global.MaxMemoryMB, DefaultMaxMemoryMB)
	}
	if a.Limits.MaxCPUPercent == 0 {
		a.Limits.MaxCPUPercent = pick(global.MaxCPUPercent, DefaultMaxCPUPercent)
	}
	if a.Limits.MaxProcesses == 0 {
		a.Limits.MaxProcesses = pick(global.MaxProcesses, DefaultMaxProcesses)
	}
	if a.Timeouts.Default == 0 {
		a.Timeouts.Default = DefaultCommandTimeout
	}
	if a.Timeouts.Max == 0 {
		a.Timeouts.Max = MaxCommandTimeout
	}
}

func pick(value, fallback int) int {
	if value != 0 {
		return value
	}
	return fallback
}
