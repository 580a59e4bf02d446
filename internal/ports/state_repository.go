package ports

import (
	"context"

	"github.com/bnema/agent-fleet-cli/internal/domain"
)

// SessionStateRepository caches session descriptors between invocations.
// The cache is derived state: losing it is recoverable because descriptors
// can be rebuilt from the live backend.
type SessionStateRepository interface {
	Get(ctx context.Context, sessionName string) (domain.SessionDescriptor, error)
	Put(ctx context.Context, descriptor domain.SessionDescriptor) error
	Delete(ctx context.Context, sessionName string) error
	List(ctx context.Context) ([]domain.SessionDescriptor, error)
}
