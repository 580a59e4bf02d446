// Package yamlrepo persists the fleet manifest as a YAML file. Writes are
// atomic: the new content is staged in a temp file beside the target and
// renamed into place, so readers never observe a torn manifest.
package yamlrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/bnema/agent-fleet-cli/internal/domain"
	"github.com/bnema/agent-fleet-cli/internal/ports"
)

const (
	manifestFileMode = 0o644
	manifestDirMode  = 0o755
	tempFilePattern  = ".agents-*.yaml.tmp"
)

type Repository struct {
	manifestPath string
	mu           *sync.RWMutex
}

// Concurrent Repository instances pointed at the same file share a lock.
var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.ManifestRepository = (*Repository)(nil)

func NewRepository(manifestPath string) (*Repository, error) {
	if manifestPath == "" {
		return nil, errors.New("manifest path is empty")
	}

	absPath, err := filepath.Abs(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}
	absPath = filepath.Clean(absPath)

	return &Repository{manifestPath: absPath, mu: lockForPath(absPath)}, nil
}

func (r *Repository) Path() string {
	return r.manifestPath
}

// Load reads and decodes the manifest. A missing file is malformed input:
// an empty fleet must be declared, not implied.
func (r *Repository) Load(ctx context.Context) (domain.FleetManifest, error) {
	if err := ctx.Err(); err != nil {
		return domain.FleetManifest{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := os.ReadFile(r.manifestPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.FleetManifest{}, fmt.Errorf("%w: manifest file %s does not exist", domain.ErrManifestMalformed, r.manifestPath)
		}
		return domain.FleetManifest{}, fmt.Errorf("read manifest file: %w", err)
	}

	var file fileSchema
	if err := yaml.Unmarshal(data, &file); err != nil {
		return domain.FleetManifest{}, fmt.Errorf("%w: decode %s: %w", domain.ErrManifestMalformed, r.manifestPath, err)
	}
	if err := file.validateVersion(); err != nil {
		return domain.FleetManifest{}, fmt.Errorf("%w: %w", domain.ErrManifestMalformed, err)
	}
	file.applyDefaults()

	manifest, err := fromSchema(file)
	if err != nil {
		return domain.FleetManifest{}, fmt.Errorf("%w: %s: %w", domain.ErrManifestMalformed, r.manifestPath, err)
	}
	return manifest, nil
}

func (r *Repository) Save(ctx context.Context, manifest domain.FleetManifest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.writeSchema(toSchema(manifest))
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.manifestPath), manifestDirMode); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}

	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode manifest file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.manifestPath), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp manifest file: %w", err)
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
		return fmt.Errorf("write temp manifest file: %w", err)
	}

	if err := tempFile.Chmod(manifestFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp manifest file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp manifest file: %w", err)
	}

	if err := os.Rename(tempName, r.manifestPath); err != nil {
		return fmt.Errorf("replace manifest file: %w", err)
	}

	cleanup = false

	return nil
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
