package tomlstate

import (
	"fmt"
	"time"

	"github.com/bnema/agent-fleet-cli/internal/domain"
)

const currentSchemaVersion = 1

type fileSchema struct {
	Version  int             `toml:"version"`
	Sessions []sessionSchema `toml:"sessions"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported session state schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type sessionSchema struct {
	Name           string       `toml:"name"`
	LayoutProfile  int          `toml:"layout_profile"`
	AgentCount     int          `toml:"agent_count"`
	MainFocusAgent int          `toml:"main_focus_agent,omitempty"`
	CreatedAt      string       `toml:"created_at,omitempty"`
	Panes          []paneSchema `toml:"panes"`
}

type paneSchema struct {
	Agent string `toml:"agent"`
	Pane  string `toml:"pane"`
}

func toSchema(descriptor domain.SessionDescriptor) sessionSchema {
	entry := sessionSchema{
		Name:           descriptor.SessionName,
		LayoutProfile:  descriptor.LayoutProfile,
		AgentCount:     descriptor.AgentCount,
		MainFocusAgent: descriptor.MainFocusAgent,
		CreatedAt:      formatTime(descriptor.CreatedAt),
		Panes:          make([]paneSchema, 0, len(descriptor.Panes)),
	}

	for _, id := range sortedAgents(descriptor.Panes) {
		entry.Panes = append(entry.Panes, paneSchema{Agent: string(id), Pane: string(descriptor.Panes[id])})
	}

	return entry
}

func fromSchema(entry sessionSchema) domain.SessionDescriptor {
	descriptor := domain.SessionDescriptor{
		SessionName:    entry.Name,
		LayoutProfile:  entry.LayoutProfile,
		AgentCount:     entry.AgentCount,
		MainFocusAgent: entry.MainFocusAgent,
		CreatedAt:      parseTime(entry.CreatedAt),
		Panes:          make(map[domain.AgentID]domain.PaneHandle, len(entry.Panes)),
	}

	for _, pane := range entry.Panes {
		descriptor.Panes[domain.AgentID(pane.Agent)] = domain.PaneHandle(pane.Pane)
	}

	return descriptor
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.Format(time.RFC3339)
}
