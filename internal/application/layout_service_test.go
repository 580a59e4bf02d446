package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/agent-fleet-cli/internal/domain"
	"github.com/bnema/agent-fleet-cli/internal/ports"
)

func fleetManifest(n int) domain.FleetManifest {
	m := domain.FleetManifest{Session: domain.SessionDefaults{Name: "fleet"}}
	for i := 1; i <= n; i++ {
		m.Agents = append(m.Agents, domain.AgentRecord{ID: domain.AgentID(fmt.Sprintf("a%d", i))})
	}
	m.Normalize()
	return m
}

func newLayoutService(backend *recordingBackend) (*LayoutService, *inMemoryStateRepo) {
	state := newInMemoryStateRepo()
	return NewLayoutService(backend, state, testLogger(), fixedClock{now: testTime()}), state
}

func TestApplyDashboardWithThreeAgents(t *testing.T) {
	t.Parallel()

	backend := newRecordingBackend()
	svc, state := newLayoutService(backend)

	manifest := fleetManifest(3)
	manifest.Session.LayoutProfile = domain.ProfileDashboard

	descriptor, err := svc.Apply(context.Background(), manifest, ApplyOptions{})
	require.NoError(t, err)

	assert.Equal(t, "fleet", descriptor.SessionName)
	assert.Equal(t, domain.ProfileDashboard, descriptor.LayoutProfile)
	require.Len(t, descriptor.Panes, 3)

	// One dashboard window with three panes, then the control window.
	assert.Equal(t, []string{
		"create fleet dashboard",
		"split %0 horizontal 66",
		"split %1 horizontal 50",
		"window fleet control",
	}, backend.operations())

	cached, err := state.Get(context.Background(), "fleet")
	require.NoError(t, err)
	assert.Equal(t, descriptor.Panes, cached.Panes)
}

func TestApplyBindsEveryAgentToDistinctHandle(t *testing.T) {
	t.Parallel()

	for profile := 1; profile <= domain.ProfileCount; profile++ {
		for n := 1; n <= 7; n++ {
			t.Run(fmt.Sprintf("profile %d agents %d", profile, n), func(t *testing.T) {
				t.Parallel()

				backend := newRecordingBackend()
				svc, _ := newLayoutService(backend)

				manifest := fleetManifest(n)
				descriptor, err := svc.Apply(context.Background(), manifest, ApplyOptions{Profile: profile})
				require.NoError(t, err)

				require.Len(t, descriptor.Panes, n)
				seen := map[domain.PaneHandle]domain.AgentID{}
				for id, handle := range descriptor.Panes {
					owner, taken := seen[handle]
					require.False(t, taken, "%s and %s share handle %s", owner, id, handle)
					seen[handle] = id
				}
			})
		}
	}
}

func TestApplyWithoutAgentsFails(t *testing.T) {
	t.Parallel()

	backend := newRecordingBackend()
	svc, _ := newLayoutService(backend)

	_, err := svc.Apply(context.Background(), domain.FleetManifest{Session: domain.SessionDefaults{Name: "fleet"}}, ApplyOptions{})
	require.Error(t, err)
	assert.Empty(t, backend.operations())
}

func TestApplyInvalidFocusBeforeAnyBackendCall(t *testing.T) {
	t.Parallel()

	backend := newRecordingBackend()
	svc, _ := newLayoutService(backend)

	_, err := svc.Apply(context.Background(), fleetManifest(2), ApplyOptions{Profile: domain.ProfileFocus, Focus: 9})
	require.ErrorIs(t, err, domain.ErrInvalidFocus)
	assert.Empty(t, backend.operations())
}

func TestApplyRefusesLiveSessionWithoutForce(t *testing.T) {
	t.Parallel()

	backend := newRecordingBackend()
	backend.setSession("fleet", true)
	svc, _ := newLayoutService(backend)

	_, err := svc.Apply(context.Background(), fleetManifest(2), ApplyOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "force")
	assert.Empty(t, backend.operations())
}

func TestApplyForceKillsPreviousSession(t *testing.T) {
	t.Parallel()

	backend := newRecordingBackend()
	backend.setSession("fleet", true)
	svc, _ := newLayoutService(backend)

	_, err := svc.Apply(context.Background(), fleetManifest(1), ApplyOptions{Force: true})
	require.NoError(t, err)

	ops := backend.operations()
	require.NotEmpty(t, ops)
	assert.Equal(t, "kill fleet", ops[0])
}

func TestApplyBackendFailureTearsDownPartialSession(t *testing.T) {
	t.Parallel()

	backend := newRecordingBackend()
	backend.failAfter(3, errors.New("split refused"))
	svc, state := newLayoutService(backend)

	manifest := fleetManifest(4)
	_, err := svc.Apply(context.Background(), manifest, ApplyOptions{Profile: domain.ProfileControlStack})
	require.ErrorIs(t, err, domain.ErrBackendFailure)
	assert.Contains(t, err.Error(), "split refused")

	ops := backend.operations()
	require.NotEmpty(t, ops)
	assert.Equal(t, "kill fleet", ops[len(ops)-1])

	_, err = state.Get(context.Background(), "fleet")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestApplyTeardownFailureKeepsOriginalError(t *testing.T) {
	t.Parallel()

	backend := newRecordingBackend()
	backend.failAfter(2, errors.New("split refused"))
	backend.setKillErr(errors.New("kill refused"))
	svc, _ := newLayoutService(backend)

	_, err := svc.Apply(context.Background(), fleetManifest(3), ApplyOptions{Profile: domain.ProfileControlStack})
	require.ErrorIs(t, err, domain.ErrBackendFailure)
	assert.Contains(t, err.Error(), "split refused")
	assert.NotContains(t, err.Error(), "kill refused")
}

func TestApplySelectsFocusPane(t *testing.T) {
	t.Parallel()

	backend := newRecordingBackend()
	svc, _ := newLayoutService(backend)

	manifest := fleetManifest(3)
	descriptor, err := svc.Apply(context.Background(), manifest, ApplyOptions{Profile: domain.ProfileFocus, Focus: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, descriptor.MainFocusAgent)

	focus, ok := descriptor.HandleFor("a2")
	require.True(t, ok)
	assert.Contains(t, backend.operations(), "select "+string(focus))
}

func TestKillRemovesSessionAndCache(t *testing.T) {
	t.Parallel()

	backend := newRecordingBackend()
	svc, state := newLayoutService(backend)

	_, err := svc.Apply(context.Background(), fleetManifest(2), ApplyOptions{})
	require.NoError(t, err)

	require.NoError(t, svc.Kill(context.Background(), "fleet"))
	assert.Contains(t, backend.operations(), "kill fleet")

	_, err = state.Get(context.Background(), "fleet")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestCurrentFallsBackToRebuild(t *testing.T) {
	t.Parallel()

	backend := newRecordingBackend()
	svc, state := newLayoutService(backend)

	manifest := fleetManifest(3)
	manifest.Session.LayoutProfile = domain.ProfileDashboard
	applied, err := svc.Apply(context.Background(), manifest, ApplyOptions{})
	require.NoError(t, err)

	// Losing the cache must be recoverable from the live backend.
	require.NoError(t, state.Delete(context.Background(), "fleet"))

	rebuilt, err := svc.Current(context.Background(), manifest, ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, applied.Panes, rebuilt.Panes)
	assert.Equal(t, applied.LayoutProfile, rebuilt.LayoutProfile)
}

func TestRebuildWithoutLiveSession(t *testing.T) {
	t.Parallel()

	backend := newRecordingBackend()
	svc, _ := newLayoutService(backend)

	_, err := svc.Rebuild(context.Background(), fleetManifest(2), ApplyOptions{})
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRebuildRecoversBindingFromPositionOrderedList(t *testing.T) {
	t.Parallel()

	for _, profile := range []int{domain.ProfileMainSplit, domain.ProfileDashboard} {
		profile := profile
		t.Run(fmt.Sprintf("profile%d", profile), func(t *testing.T) {
			t.Parallel()

			backend := &screenOrderBackend{recordingBackend: newRecordingBackend()}
			state := newInMemoryStateRepo()
			svc := NewLayoutService(backend, state, testLogger(), fixedClock{now: testTime()})

			manifest := fleetManifest(3)
			manifest.Session.LayoutProfile = profile
			applied, err := svc.Apply(context.Background(), manifest, ApplyOptions{})
			require.NoError(t, err)

			require.NoError(t, state.Delete(context.Background(), "fleet"))

			rebuilt, err := svc.Current(context.Background(), manifest, ApplyOptions{})
			require.NoError(t, err)
			assert.Equal(t, applied.Panes, rebuilt.Panes,
				"rebuild must bind each agent to the pane it was created in")
		})
	}
}

// recordingBackend allocates sequential pane handles and keeps an ordered
// operation log so tests can assert exact build sequences.
type recordingBackend struct {
	mu       sync.Mutex
	ops      []string
	sessions map[string]bool
	panes    map[string][]domain.PaneHandle
	next     int

	failAt  int
	failErr error
	killErr error
	buildOp int
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{
		sessions: make(map[string]bool),
		panes:    make(map[string][]domain.PaneHandle),
	}
}

func (b *recordingBackend) setSession(name string, live bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[name] = live
}

func (b *recordingBackend) failAfter(buildOps int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAt = buildOps
	b.failErr = err
}

func (b *recordingBackend) setKillErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.killErr = err
}

func (b *recordingBackend) operations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.ops...)
}

// nextBuildOp counts session-building calls and injects the scripted
// failure once the threshold is crossed.
func (b *recordingBackend) nextBuildOp() error {
	b.buildOp++
	if b.failAt > 0 && b.buildOp > b.failAt {
		return b.failErr
	}
	return nil
}

func (b *recordingBackend) allocate(session string) domain.PaneHandle {
	handle := domain.PaneHandle(fmt.Sprintf("%%%d", b.next))
	b.next++
	b.panes[session] = append(b.panes[session], handle)
	return handle
}

func (b *recordingBackend) CreateSession(_ context.Context, session, windowName string) (domain.PaneHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.nextBuildOp(); err != nil {
		return "", err
	}
	b.ops = append(b.ops, fmt.Sprintf("create %s %s", session, windowName))
	b.sessions[session] = true
	return b.allocate(session), nil
}

func (b *recordingBackend) KillSession(_ context.Context, session string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.killErr != nil {
		return b.killErr
	}
	b.ops = append(b.ops, "kill "+session)
	delete(b.sessions, session)
	delete(b.panes, session)
	return nil
}

func (b *recordingBackend) HasSession(_ context.Context, session string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions[session], nil
}

func (b *recordingBackend) NewWindow(_ context.Context, session, name string) (domain.PaneHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.nextBuildOp(); err != nil {
		return "", err
	}
	b.ops = append(b.ops, fmt.Sprintf("window %s %s", session, name))
	return b.allocate(session), nil
}

func (b *recordingBackend) Split(_ context.Context, pane domain.PaneHandle, direction domain.SplitDirection, sizePercent int) (domain.PaneHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.nextBuildOp(); err != nil {
		return "", err
	}
	b.ops = append(b.ops, fmt.Sprintf("split %s %s %d", pane, direction, sizePercent))

	session := ""
	for name, panes := range b.panes {
		for _, p := range panes {
			if p == pane {
				session = name
			}
		}
	}
	return b.allocate(session), nil
}

func (b *recordingBackend) SendText(_ context.Context, pane domain.PaneHandle, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, fmt.Sprintf("send %s %s", pane, text))
	return nil
}

func (b *recordingBackend) IsIdle(context.Context, domain.PaneHandle) (bool, error) {
	return true, nil
}

func (b *recordingBackend) List(_ context.Context, session string) ([]domain.PaneHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.PaneHandle(nil), b.panes[session]...), nil
}

func (b *recordingBackend) SelectPane(_ context.Context, pane domain.PaneHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, "select "+string(pane))
	return nil
}

var _ ports.SessionBackend = (*recordingBackend)(nil)

// screenOrderBackend lists panes the way tmux does: by position on screen.
// Splitting an earlier pane after a later one exists makes that order
// diverge from creation order; reversing everything after the first pane
// reproduces the divergence (profile 4 creates %0 %1 %2 but shows %0 %2 %1).
type screenOrderBackend struct {
	*recordingBackend
}

func (b *screenOrderBackend) List(ctx context.Context, session string) ([]domain.PaneHandle, error) {
	handles, err := b.recordingBackend.List(ctx, session)
	if err != nil {
		return nil, err
	}
	for i, j := 1, len(handles)-1; i < j; i, j = i+1, j-1 {
		handles[i], handles[j] = handles[j], handles[i]
	}
	return handles, nil
}

// inMemoryStateRepo is the descriptor cache used across service tests.
type inMemoryStateRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.SessionDescriptor
	putErr   error
}

func newInMemoryStateRepo() *inMemoryStateRepo {
	return &inMemoryStateRepo{sessions: make(map[string]domain.SessionDescriptor)}
}

func (r *inMemoryStateRepo) Get(_ context.Context, name string) (domain.SessionDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	descriptor, ok := r.sessions[name]
	if !ok {
		return domain.SessionDescriptor{}, fmt.Errorf("%w: %q", domain.ErrSessionNotFound, name)
	}
	return descriptor, nil
}

func (r *inMemoryStateRepo) Put(_ context.Context, descriptor domain.SessionDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.putErr != nil {
		return r.putErr
	}
	r.sessions[descriptor.SessionName] = descriptor
	return nil
}

func (r *inMemoryStateRepo) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, name)
	return nil
}

func (r *inMemoryStateRepo) List(context.Context) ([]domain.SessionDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	descriptors := make([]domain.SessionDescriptor, 0, len(r.sessions))
	for _, d := range r.sessions {
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

var _ ports.SessionStateRepository = (*inMemoryStateRepo)(nil)
