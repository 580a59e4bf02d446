package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/agent-fleet-cli/internal/domain"
)

func validTestManifest() domain.FleetManifest {
	return domain.FleetManifest{
		Session: domain.SessionDefaults{Name: "fleet-test"},
		Agents: []domain.AgentRecord{
			{ID: "alpha"},
			{ID: "beta"},
		},
	}
}

func TestLoadNormalizesAndPublishes(t *testing.T) {
	t.Parallel()

	repo := &fakeManifestRepo{manifest: validTestManifest()}
	svc := NewConfigService(repo, testLogger())

	manifest, err := svc.Load(context.Background())
	require.NoError(t, err)

	// Sparse records are filled by normalization before validation.
	assert.Equal(t, "agent/alpha", manifest.Agents[0].Branch)
	assert.Equal(t, "agents/alpha", manifest.Agents[0].WorkspacePath)
	assert.Equal(t, domain.StatusInactive, manifest.Agents[0].Status)

	current, err := svc.Current()
	require.NoError(t, err)
	assert.Equal(t, manifest, current)
}

func TestLoadRejectsInvalidManifestWhole(t *testing.T) {
	t.Parallel()

	invalid := validTestManifest()
	invalid.Agents = append(invalid.Agents, domain.AgentRecord{ID: "alpha"})
	repo := &fakeManifestRepo{manifest: invalid}
	svc := NewConfigService(repo, testLogger())

	_, err := svc.Load(context.Background())
	require.Error(t, err)

	var invalidErr *domain.InvalidManifestError
	require.ErrorAs(t, err, &invalidErr)
	assert.NotEmpty(t, invalidErr.Issues)

	_, err = svc.Current()
	assert.Error(t, err, "a rejected manifest must never become current")
}

func TestCurrentBeforeLoadFails(t *testing.T) {
	t.Parallel()

	svc := NewConfigService(&fakeManifestRepo{}, testLogger())

	_, err := svc.Current()
	require.Error(t, err)
}

func TestReloadFailureKeepsPreviousManifest(t *testing.T) {
	t.Parallel()

	repo := &fakeManifestRepo{manifest: validTestManifest()}
	svc := NewConfigService(repo, testLogger())

	previous, err := svc.Load(context.Background())
	require.NoError(t, err)

	// The file on disk turns invalid between reloads.
	broken := validTestManifest()
	broken.Agents[1].ID = "alpha"
	repo.manifest = broken

	_, err = svc.Reload(context.Background())
	require.Error(t, err)

	current, err := svc.Current()
	require.NoError(t, err)
	assert.Equal(t, previous, current)
}

func TestReloadFailurePropagatesLoadError(t *testing.T) {
	t.Parallel()

	repo := &fakeManifestRepo{loadErr: domain.ErrManifestMalformed}
	svc := NewConfigService(repo, testLogger())

	_, err := svc.Reload(context.Background())
	assert.ErrorIs(t, err, domain.ErrManifestMalformed)
}

func TestSaveValidatesBeforePersisting(t *testing.T) {
	t.Parallel()

	repo := &fakeManifestRepo{}
	svc := NewConfigService(repo, testLogger())

	invalid := validTestManifest()
	invalid.Agents[0].WorkspacePath = "/escaped/path"

	err := svc.Save(context.Background(), invalid)
	require.Error(t, err)
	assert.Zero(t, repo.saveCalls, "invalid manifest must not reach the repository")

	require.NoError(t, svc.Save(context.Background(), validTestManifest()))
	assert.Equal(t, 1, repo.saveCalls)
}

func TestValidateDoesNotTouchCurrent(t *testing.T) {
	t.Parallel()

	repo := &fakeManifestRepo{manifest: validTestManifest()}
	svc := NewConfigService(repo, testLogger())

	loaded, err := svc.Load(context.Background())
	require.NoError(t, err)

	broken := validTestManifest()
	broken.Agents[1].ID = "alpha"
	issues := svc.Validate(broken)
	assert.NotEmpty(t, issues)

	current, err := svc.Current()
	require.NoError(t, err)
	assert.Equal(t, loaded, current)
}

type fakeManifestRepo struct {
	manifest  domain.FleetManifest
	loadErr   error
	saveErr   error
	saveCalls int
}

func (r *fakeManifestRepo) Load(context.Context) (domain.FleetManifest, error) {
	if r.loadErr != nil {
		return domain.FleetManifest{}, r.loadErr
	}
	return r.manifest, nil
}

func (r *fakeManifestRepo) Save(_ context.Context, manifest domain.FleetManifest) error {
	r.saveCalls++
	if r.saveErr != nil {
		return r.saveErr
	}
	r.manifest = manifest
	return nil
}

func (r *fakeManifestRepo) Path() string { return "/fake/agents.yaml" }
