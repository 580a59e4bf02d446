package yamlrepo

import (
	"fmt"
	"time"

	"github.com/bnema/agent-fleet-cli/internal/domain"
)

const currentSchemaVersion = 1

// fileSchema is the on-disk shape of the fleet manifest. It is kept
// separate from the domain structs so the wire format can evolve without
// touching them.
type fileSchema struct {
	Version int           `yaml:"version"`
	Session sessionSchema `yaml:"session,omitempty"`
	Limits  *limitsSchema `yaml:"limits,omitempty"`
	Agents  []agentSchema `yaml:"agents"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported manifest schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type sessionSchema struct {
	Name           string `yaml:"name,omitempty"`
	LayoutProfile  int    `yaml:"layout_profile,omitempty"`
	MainFocusAgent int    `yaml:"main_focus_agent,omitempty"`
}

type agentSchema struct {
	ID            string         `yaml:"id"`
	Branch        string         `yaml:"branch,omitempty"`
	WorkspacePath string         `yaml:"workspace_path,omitempty"`
	Status        string         `yaml:"status,omitempty"`
	Limits        *limitsSchema  `yaml:"resource_limits,omitempty"`
	Timeouts      *timeoutSchema `yaml:"timeout_settings,omitempty"`
}

type limitsSchema struct {
	MaxMemoryMB   int `yaml:"max_memory_mb,omitempty"`
	MaxCPUPercent int `yaml:"max_cpu_percent,omitempty"`
	MaxProcesses  int `yaml:"max_processes,omitempty"`
}

type timeoutSchema struct {
	Default string `yaml:"default,omitempty"`
	Max     string `yaml:"max,omitempty"`
}

func toSchema(manifest domain.FleetManifest) fileSchema {
	file := fileSchema{
		Version: currentSchemaVersion,
		Session: sessionSchema{
			Name:           manifest.Session.Name,
			LayoutProfile:  manifest.Session.LayoutProfile,
			MainFocusAgent: manifest.Session.MainFocusAgent,
		},
		Limits: toLimitsSchema(manifest.Limits),
		Agents: make([]agentSchema, 0, len(manifest.Agents)),
	}

	for _, agent := range manifest.Agents {
		file.Agents = append(file.Agents, agentSchema{
			ID:            string(agent.ID),
			Branch:        agent.Branch,
			WorkspacePath: agent.WorkspacePath,
			Status:        string(agent.Status),
			Limits:        toLimitsSchema(agent.Limits),
			Timeouts:      toTimeoutSchema(agent.Timeouts),
		})
	}

	return file
}

func fromSchema(file fileSchema) (domain.FleetManifest, error) {
	manifest := domain.FleetManifest{
		Session: domain.SessionDefaults{
			Name:           file.Session.Name,
			LayoutProfile:  file.Session.LayoutProfile,
			MainFocusAgent: file.Session.MainFocusAgent,
		},
		Limits: fromLimitsSchema(file.Limits),
		Agents: make([]domain.AgentRecord, 0, len(file.Agents)),
	}

	for _, agent := range file.Agents {
		timeouts, err := fromTimeoutSchema(agent.Timeouts)
		if err != nil {
			return domain.FleetManifest{}, fmt.Errorf("agent %q: %w", agent.ID, err)
		}
		manifest.Agents = append(manifest.Agents, domain.AgentRecord{
			ID:            domain.AgentID(agent.ID),
			Branch:        agent.Branch,
			WorkspacePath: agent.WorkspacePath,
			Status:        domain.AgentStatus(agent.Status),
			Limits:        fromLimitsSchema(agent.Limits),
			Timeouts:      timeouts,
		})
	}

	return manifest, nil
}

func toLimitsSchema(limits domain.ResourceLimits) *limitsSchema {
	if limits.IsZero() {
		return nil
	}

	return &limitsSchema{
		MaxMemoryMB:   limits.MaxMemoryMB,
		MaxCPUPercent: limits.MaxCPUPercent,
		MaxProcesses:  limits.MaxProcesses,
	}
}

func fromLimitsSchema(limits *limitsSchema) domain.ResourceLimits {
	if limits == nil {
		return domain.ResourceLimits{}
	}

	return domain.ResourceLimits{
		MaxMemoryMB:   limits.MaxMemoryMB,
		MaxCPUPercent: limits.MaxCPUPercent,
		MaxProcesses:  limits.MaxProcesses,
	}
}

func toTimeoutSchema(timeouts domain.TimeoutSettings) *timeoutSchema {
	if timeouts == (domain.TimeoutSettings{}) {
		return nil
	}

	return &timeoutSchema{
		Default: formatDuration(timeouts.Default),
		Max:     formatDuration(timeouts.Max),
	}
}

func fromTimeoutSchema(timeouts *timeoutSchema) (domain.TimeoutSettings, error) {
	if timeouts == nil {
		return domain.TimeoutSettings{}, nil
	}

	defaultTimeout, err := parseDuration("timeout_settings.default", timeouts.Default)
	if err != nil {
		return domain.TimeoutSettings{}, err
	}
	maxTimeout, err := parseDuration("timeout_settings.max", timeouts.Max)
	if err != nil {
		return domain.TimeoutSettings{}, err
	}

	return domain.TimeoutSettings{Default: defaultTimeout, Max: maxTimeout}, nil
}

// parseDuration rejects what it cannot parse instead of zeroing it; a typo
// must surface as malformed input, not vanish into the defaults.
func parseDuration(field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", field, raw)
	}

	return parsed, nil
}

func formatDuration(value time.Duration) string {
	if value == 0 {
		return ""
	}

	return value.String()
}
