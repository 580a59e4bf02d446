package domain

import "fmt"

// MergeStrategy selects how conflicting hunks resolve when base-branch
// updates are merged into an agent workspace.
type MergeStrategy string

const (
	// MergeManual refuses conflicting merges and leaves resolution to the
	// operator.
	MergeManual MergeStrategy = "manual"
	// MergeTheirs resolves conflicts in favour of the incoming base branch.
	MergeTheirs MergeStrategy = "theirs"
	// MergeOurs resolves conflicts in favour of the agent's own branch.
	MergeOurs MergeStrategy = "ours"
)

// ParseMergeStrategy maps a user-supplied strategy name. The empty string
// means manual.
func ParseMergeStrategy(raw string) (MergeStrategy, error) {
	switch MergeStrategy(raw) {
	case "", MergeManual:
		return MergeManual, nil
	case MergeTheirs, MergeOurs:
		return MergeStrategy(raw), nil
	default:
		return "", fmt.Errorf("unknown merge strategy %q (want manual, theirs or ours)", raw)
	}
}
