package domain

import "errors"

var (
	ErrAgentNotFound     = errors.New("agent not found")
	ErrManifestMalformed = errors.New("manifest malformed")
	ErrSessionNotFound   = errors.New("session not found")

	ErrNotRepository     = errors.New("not a version-controlled directory")
	ErrWorkspaceConflict = errors.New("workspace bound to a different branch")
	ErrWorkspaceDirty    = errors.New("workspace has uncommitted changes")
	ErrAgentBusy         = errors.New("agent busy")
	ErrFilesystem        = errors.New("filesystem failure")

	ErrUnknownProfile   = errors.New("unknown layout profile")
	ErrInvalidFocus     = errors.New("focus agent out of range")
	ErrInvalidMainAgent = errors.New("main agent out of range")
	ErrBackendFailure   = errors.New("session backend failure")

	ErrNoTargets     = errors.New("dispatch resolved no targets")
	ErrTargetMissing = errors.New("dispatch target missing")
)
