package ports

import (
	"context"

	"github.com/bnema/agent-fleet-cli/internal/domain"
)

type ManifestRepository interface {
	Load(ctx context.Context) (domain.FleetManifest, error)
	Save(ctx context.Context, manifest domain.FleetManifest) error
	// Path returns the manifest location on disk, for watchers and error
	// messages.
	Path() string
}
