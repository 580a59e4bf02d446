package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionPrintsVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, fleetFixture(t), "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "dev")
}

func TestFleetListShowsConfiguredAgents(t *testing.T) {
	stdout, _, err := executeCLI(t, fleetFixture(t), "fleet", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "alpha")
	assert.Contains(t, stdout, "agent/alpha")
	assert.Contains(t, stdout, "agents/alpha")
	assert.Contains(t, stdout, "beta")
}

func TestFleetAddAppendsAgent(t *testing.T) {
	dir := fleetFixture(t)

	stdout, _, err := executeCLI(t, dir, "fleet", "add", "--id", "gamma")
	require.NoError(t, err)
	assert.Contains(t, stdout, "agent gamma added")

	stdout, _, err = executeCLI(t, dir, "fleet", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "gamma")
	// Defaults filled by normalization.
	assert.Contains(t, stdout, "agent/gamma")
	assert.Contains(t, stdout, "agents/gamma")
}

func TestFleetAddRejectsDuplicateID(t *testing.T) {
	_, _, err := executeCLI(t, fleetFixture(t), "fleet", "add", "--id", "alpha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigValidateAcceptsHealthyManifest(t *testing.T) {
	stdout, _, err := executeCLI(t, fleetFixture(t), "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, stdout, "manifest valid: 2 agent(s)")
}

func TestConfigValidateListsEveryIssue(t *testing.T) {
	dir := t.TempDir()
	manifest := `version: 1
agents:
  - id: alpha
  - id: alpha
  - id: "bad id"
`
	writeFleetFiles(t, dir, manifest, "")

	stdout, _, err := executeCLI(t, dir, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest invalid")
	assert.Contains(t, stdout, "duplicate id")
	assert.Contains(t, stdout, "bad id")
}

func TestConfigValidateRejectsMalformedManifest(t *testing.T) {
	dir := t.TempDir()
	writeFleetFiles(t, dir, "agents: [unclosed", "")

	_, _, err := executeCLI(t, dir, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest malformed")
}

func TestStatusJSONReportsAgentsAndPanes(t *testing.T) {
	stdout, _, err := executeCLI(t, fleetFixture(t), "status", "--json")
	require.NoError(t, err)
	require.True(t, json.Valid([]byte(stdout)))

	var status struct {
		Session string `json:"session"`
		Agents  []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"agents"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &status))
	assert.Equal(t, "fleet-test", status.Session)
	require.Len(t, status.Agents, 2)
	assert.Equal(t, "alpha", status.Agents[0].ID)
	assert.Equal(t, "active", status.Agents[0].Status)
}

func TestHeyDryRunDeliversWithoutBackend(t *testing.T) {
	stdout, _, err := executeCLI(t, fleetFixture(t), "hey", "alpha", "--dry-run", "--", "echo", "hi")
	require.NoError(t, err)
	assert.Contains(t, stdout, "alpha")
	assert.Contains(t, stdout, "delivered")
	assert.Contains(t, stdout, "all targets delivered")
}

func TestBroadcastDryRunEnumeratesEveryAgent(t *testing.T) {
	stdout, _, err := executeCLI(t, fleetFixture(t), "broadcast", "--dry-run", "--", "echo", "hi")
	require.NoError(t, err)
	assert.Contains(t, stdout, "alpha")
	assert.Contains(t, stdout, "beta")
	assert.Contains(t, stdout, "targets: 2")
}

func TestHeyUnknownAgentIsTargetMissing(t *testing.T) {
	_, _, err := executeCLI(t, fleetFixture(t), "hey", "ghost", "--dry-run", "--", "echo", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispatch target missing")
}

func TestHeyRejectsBadPriority(t *testing.T) {
	_, _, err := executeCLI(t, fleetFixture(t), "hey", "alpha", "--priority", "urgent", "--", "echo", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown priority "urgent"`)
}

func TestHeyRejectsMalformedEnvPair(t *testing.T) {
	_, _, err := executeCLI(t, fleetFixture(t), "hey", "alpha", "--env", "NOVALUE", "--", "echo", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed env pair")
}

func TestTeardownUnknownAgentFails(t *testing.T) {
	_, _, err := executeCLI(t, fleetFixture(t), "teardown", "--agent", "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent not found")
}

func TestProvisionRequiresSelector(t *testing.T) {
	_, _, err := executeCLI(t, fleetFixture(t), "provision")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either --agent or --all")
}

func TestSyncRequiresSelector(t *testing.T) {
	_, _, err := executeCLI(t, fleetFixture(t), "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either --agent or --all")
}

func TestSyncRejectsUnknownStrategy(t *testing.T) {
	_, _, err := executeCLI(t, fleetFixture(t), "sync", "--all", "--strategy", "rebase")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown merge strategy")
}

// executeCLI runs the root command with the fleet fixture directory's
// manifest and state files wired in through the environment.
func executeCLI(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", dir)
	t.Setenv("AF_MANIFEST", filepath.Join(dir, "agents", "agents.yaml"))
	t.Setenv("AF_STATE", filepath.Join(dir, "sessions.toml"))

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

// fleetFixture lays down a two-agent manifest plus a cached session
// descriptor binding both agents to panes.
func fleetFixture(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	manifest := `version: 1
session:
  name: fleet-test
  layout_profile: 2
agents:
  - id: alpha
    status: active
  - id: beta
    status: active
`
	state := `version = 1

[[sessions]]
name = "fleet-test"
layout_profile = 2
agent_count = 2

[[sessions.panes]]
agent = "alpha"
pane = "%0"

[[sessions.panes]]
agent = "beta"
pane = "%1"
`
	writeFleetFiles(t, dir, manifest, state)
	return dir
}

func writeFleetFiles(t *testing.T, dir, manifest, state string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "agents"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents", "agents.yaml"), []byte(manifest), 0o644))
	if state != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "sessions.toml"), []byte(state), 0o644))
	}
}
