// Package tomlstate caches session descriptors between CLI invocations.
// The cache is derived state: the live multiplexer stays the source of
// truth and losing the file only costs a rebuild.
package tomlstate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/bnema/agent-fleet-cli/internal/domain"
	"github.com/bnema/agent-fleet-cli/internal/ports"
)

const (
	stateFileMode   = 0o600
	stateDirMode    = 0o700
	tempFilePattern = ".sessions-*.toml.tmp"
)

type Repository struct {
	statePath string
	mu        *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.SessionStateRepository = (*Repository)(nil)

func NewRepository(statePath string) (*Repository, error) {
	if statePath == "" {
		return nil, errors.New("session state path is empty")
	}

	absPath, err := filepath.Abs(statePath)
	if err != nil {
		return nil, fmt.Errorf("resolve session state path: %w", err)
	}
	absPath = filepath.Clean(absPath)

	return &Repository{statePath: absPath, mu: lockForPath(absPath)}, nil
}

func (r *Repository) Get(ctx context.Context, sessionName string) (domain.SessionDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return domain.SessionDescriptor{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.SessionDescriptor{}, err
	}

	for _, entry := range file.Sessions {
		if entry.Name == sessionName {
			return fromSchema(entry), nil
		}
	}

	return domain.SessionDescriptor{}, fmt.Errorf("%w: %q", domain.ErrSessionNotFound, sessionName)
}

func (r *Repository) Put(ctx context.Context, descriptor domain.SessionDescriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	encoded := toSchema(descriptor)
	updated := false
	for i := range file.Sessions {
		if file.Sessions[i].Name == encoded.Name {
			file.Sessions[i] = encoded
			updated = true
			break
		}
	}
	if !updated {
		file.Sessions = append(file.Sessions, encoded)
	}

	return r.writeSchema(file)
}

func (r *Repository) Delete(ctx context.Context, sessionName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	kept := file.Sessions[:0]
	for _, entry := range file.Sessions {
		if entry.Name != sessionName {
			kept = append(kept, entry)
		}
	}
	if len(kept) == len(file.Sessions) {
		return fmt.Errorf("%w: %q", domain.ErrSessionNotFound, sessionName)
	}
	file.Sessions = kept

	return r.writeSchema(file)
}

func (r *Repository) List(ctx context.Context) ([]domain.SessionDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	descriptors := make([]domain.SessionDescriptor, 0, len(file.Sessions))
	for _, entry := range file.Sessions {
		descriptors = append(descriptors, fromSchema(entry))
	}

	return descriptors, nil
}

func (r *Repository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.statePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{}, nil
		}
		return fileSchema{}, fmt.Errorf("read session state file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode session state file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.statePath), stateDirMode); err != nil {
		return fmt.Errorf("create session state directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode session state file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.statePath), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp session state file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp session state file: %w", err)
	}

	if err := tempFile.Chmod(stateFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp session state file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp session state file: %w", err)
	}

	if err := os.Rename(tempName, r.statePath); err != nil {
		return fmt.Errorf("replace session state file: %w", err)
	}

	cleanup = false

	return nil
}

func sortedAgents(panes map[domain.AgentID]domain.PaneHandle) []domain.AgentID {
	ids := make([]domain.AgentID, 0, len(panes))
	for id := range panes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}
