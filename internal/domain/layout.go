package domain

import "fmt"

// ProfileCount is the number of built-in layout profiles.
const ProfileCount = 5

const (
	ProfileControlStack = 1
	ProfileWindowPer    = 2
	ProfileFocus        = 3
	ProfileMainSplit    = 4
	ProfileDashboard    = 5
)

func KnownProfile(p int) bool {
	return p >= 1 && p <= ProfileCount
}

// DefaultProfile picks a layout by fleet size when the manifest names none.
func DefaultProfile(agentCount int) int {
	switch {
	case agentCount <= 1:
		return ProfileFocus
	case agentCount <= 3:
		return ProfileControlStack
	case agentCount <= 6:
		return ProfileWindowPer
	default:
		return ProfileDashboard
	}
}

type SplitDirection string

const (
	// SplitHorizontal places the new pane beside its source.
	SplitHorizontal SplitDirection = "horizontal"
	// SplitVertical places the new pane below its source.
	SplitVertical SplitDirection = "vertical"
)

const (
	RoleControl   = "control"
	RoleAgent     = "agent"
	RoleFocus     = "focus"
	RoleMain      = "main"
	RoleSecondary = "secondary"
	RoleStandby   = "standby"
)

// LayoutPane is one pane inside a window. The first pane of a window is the
// window's root and carries no split; every later pane is carved out of the
// pane at index SplitFrom. SizePercent is the share the new pane takes, 0
// meaning an even split.
type LayoutPane struct {
	Agent       AgentID
	Role        string
	Split       SplitDirection
	SplitFrom   int
	SizePercent int
}

type LayoutWindow struct {
	Name  string
	Panes []LayoutPane
}

// LayoutPlan is the ordered operation list one profile produces. Windows and
// panes are created strictly in slice order. FocusAgent, when set, names the
// agent whose pane is selected once the session is built.
type LayoutPlan struct {
	Profile    int
	Windows    []LayoutWindow
	FocusAgent AgentID
}

// LayoutOptions carries the per-profile knobs. Focus and Main are 1-based
// fleet positions.
type LayoutOptions struct {
	Focus int
	Main  int
}

const (
	profile1StackCapacity  = 4
	profile1AgentColumnPct = 60
	profile4MainPct        = 70
	profile5GridCapacity   = 6
	profile5RowWidth       = 3
)

// PlanLayout builds the operation plan for one profile over the fleet given
// in manifest order. It is pure: no backend is touched.
func PlanLayout(profile int, agents []AgentID, opts LayoutOptions) (LayoutPlan, error) {
	switch profile {
	case ProfileControlStack:
		return planControlStack(agents), nil
	case ProfileWindowPer:
		return planWindowPer(agents), nil
	case ProfileFocus:
		return planFocus(agents, opts.Focus)
	case ProfileMainSplit:
		return planMainSplit(agents, opts.Main)
	case ProfileDashboard:
		return planDashboard(agents), nil
	default:
		return LayoutPlan{}, fmt.Errorf("%w: %d", ErrUnknownProfile, profile)
	}
}

// planControlStack is profile 1: a control pane on the left, agents stacked
// vertically in a right-hand column, and a dedicated window per agent past
// the stack capacity.
func planControlStack(agents []AgentID) LayoutPlan {
	stacked := agents
	if len(stacked) > profile1StackCapacity {
		stacked = agents[:profile1StackCapacity]
	}

	main := LayoutWindow{Name: "main", Panes: []LayoutPane{{Role: RoleControl}}}
	for i, id := range stacked {
		pane := LayoutPane{Agent: id, Role: RoleAgent}
		if i == 0 {
			pane.Split = SplitHorizontal
			pane.SplitFrom = 0
			pane.SizePercent = profile1AgentColumnPct
		} else {
			pane.Split = SplitVertical
			pane.SplitFrom = i
			pane.SizePercent = chainSplitPercent(len(stacked), i+1)
		}
		main.Panes = append(main.Panes, pane)
	}

	plan := LayoutPlan{Profile: ProfileControlStack, Windows: []LayoutWindow{main}}
	for _, id := range agents[len(stacked):] {
		plan.Windows = append(plan.Windows, agentWindow("agent-"+string(id), id, RoleAgent))
	}
	return plan
}

// planWindowPer is profile 2: one control window and one top-level window
// per agent, so no overflow case exists.
func planWindowPer(agents []AgentID) LayoutPlan {
	plan := LayoutPlan{Profile: ProfileWindowPer, Windows: []LayoutWindow{
		{Name: "control", Panes: []LayoutPane{{Role: RoleControl}}},
	}}
	for _, id := range agents {
		plan.Windows = append(plan.Windows, agentWindow(string(id), id, RoleAgent))
	}
	return plan
}

// planFocus is profile 3: the focus agent fills its window and every other
// agent sits in a standby window.
func planFocus(agents []AgentID, focus int) (LayoutPlan, error) {
	if focus < 1 || focus > len(agents) {
		return LayoutPlan{}, fmt.Errorf("%w: position %d with %d agents", ErrInvalidFocus, focus, len(agents))
	}

	focusID := agents[focus-1]
	plan := LayoutPlan{
		Profile:    ProfileFocus,
		Windows:    []LayoutWindow{agentWindow("focus", focusID, RoleFocus)},
		FocusAgent: focusID,
	}
	for _, id := range agents {
		if id == focusID {
			continue
		}
		plan.Windows = append(plan.Windows, agentWindow("standby-"+string(id), id, RoleStandby))
	}
	return plan, nil
}

// planMainSplit is profile 4: the main agent takes a large bottom pane with
// up to two secondaries above it, plus a control window and standby windows
// for the rest. Secondary slots go to the lowest positions not already
// holding a role.
func planMainSplit(agents []AgentID, main int) (LayoutPlan, error) {
	if main < 1 || main > len(agents) {
		return LayoutPlan{}, fmt.Errorf("%w: position %d with %d agents", ErrInvalidMainAgent, main, len(agents))
	}

	mainID := agents[main-1]
	var secondaries []AgentID
	for _, id := range agents {
		if id == mainID {
			continue
		}
		secondaries = append(secondaries, id)
		if len(secondaries) == 2 {
			break
		}
	}

	window := LayoutWindow{Name: "main"}
	switch len(secondaries) {
	case 0:
		window.Panes = []LayoutPane{{Agent: mainID, Role: RoleMain}}
	case 1:
		window.Panes = []LayoutPane{
			{Agent: secondaries[0], Role: RoleSecondary},
			{Agent: mainID, Role: RoleMain, Split: SplitVertical, SplitFrom: 0, SizePercent: profile4MainPct},
		}
	default:
		window.Panes = []LayoutPane{
			{Agent: secondaries[0], Role: RoleSecondary},
			{Agent: mainID, Role: RoleMain, Split: SplitVertical, SplitFrom: 0, SizePercent: profile4MainPct},
			{Agent: secondaries[1], Role: RoleSecondary, Split: SplitHorizontal, SplitFrom: 0, SizePercent: 50},
		}
	}

	plan := LayoutPlan{
		Profile:    ProfileMainSplit,
		Windows:    []LayoutWindow{window, {Name: "control", Panes: []LayoutPane{{Role: RoleControl}}}},
		FocusAgent: mainID,
	}

	placed := map[AgentID]struct{}{mainID: {}}
	for _, id := range secondaries {
		placed[id] = struct{}{}
	}
	for _, id := range agents {
		if _, ok := placed[id]; ok {
			continue
		}
		plan.Windows = append(plan.Windows, agentWindow("standby-"+string(id), id, RoleStandby))
	}
	return plan, nil
}

// planDashboard is profile 5: up to six agents tiled in two rows of three
// inside one dashboard window, a control window, and standby windows for
// agents past the grid capacity. Tiling fills row-major in fleet order.
func planDashboard(agents []AgentID) LayoutPlan {
	tiled := agents
	if len(tiled) > profile5GridCapacity {
		tiled = agents[:profile5GridCapacity]
	}

	topRow := tiled
	var bottomRow []AgentID
	if len(tiled) > profile5RowWidth {
		topRow = tiled[:profile5RowWidth]
		bottomRow = tiled[profile5RowWidth:]
	}

	dashboard := LayoutWindow{Name: "dashboard"}
	if len(topRow) > 0 {
		dashboard.Panes = append(dashboard.Panes, LayoutPane{Agent: topRow[0], Role: RoleAgent})
	}
	bottomRoot := -1
	if len(bottomRow) > 0 {
		dashboard.Panes = append(dashboard.Panes, LayoutPane{
			Agent: bottomRow[0], Role: RoleAgent,
			Split: SplitVertical, SplitFrom: 0, SizePercent: 50,
		})
		bottomRoot = 1
	}
	fillRow(&dashboard, 0, topRow)
	if bottomRoot >= 0 {
		fillRow(&dashboard, bottomRoot, bottomRow)
	}

	plan := LayoutPlan{Profile: ProfileDashboard, Windows: []LayoutWindow{
		dashboard,
		{Name: "control", Panes: []LayoutPane{{Role: RoleControl}}},
	}}
	for _, id := range agents[len(tiled):] {
		plan.Windows = append(plan.Windows, agentWindow("standby-"+string(id), id, RoleStandby))
	}
	return plan
}

// fillRow splits the remaining members of one grid row off its root pane,
// chaining each split from the previously added pane.
func fillRow(window *LayoutWindow, rootIndex int, row []AgentID) {
	from := rootIndex
	for i, id := range row {
		if i == 0 {
			continue
		}
		window.Panes = append(window.Panes, LayoutPane{
			Agent: id, Role: RoleAgent,
			Split: SplitHorizontal, SplitFrom: from,
			SizePercent: chainSplitPercent(len(row), i+1),
		})
		from = len(window.Panes) - 1
	}
}

func agentWindow(name string, id AgentID, role string) LayoutWindow {
	return LayoutWindow{Name: name, Panes: []LayoutPane{{Agent: id, Role: role}}}
}

// chainSplitPercent sizes the i-th pane (1-based) of an m-pane chain so the
// chain divides its space evenly.
func chainSplitPercent(m, i int) int {
	remaining := m - i + 1
	return 100 * remaining / (remaining + 1)
}
