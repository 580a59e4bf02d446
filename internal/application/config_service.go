package application

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/bnema/agent-fleet-cli/internal/domain"
	"github.com/bnema/agent-fleet-cli/internal/ports"
)

// ConfigService owns the validated in-memory manifest. Loads are
// all-or-nothing: the current manifest is swapped only after the candidate
// passes validation, so a failed reload leaves the previous fleet intact.
type ConfigService struct {
	repo   ports.ManifestRepository
	logger *logrus.Logger

	mu      sync.RWMutex
	current domain.FleetManifest
	loaded  bool
}

func NewConfigService(repo ports.ManifestRepository, logger *logrus.Logger) *ConfigService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &ConfigService{repo: repo, logger: logger}
}

// Load reads, normalizes and validates the manifest, making it current on
// success.
func (s *ConfigService) Load(ctx context.Context) (domain.FleetManifest, error) {
	manifest, err := s.repo.Load(ctx)
	if err != nil {
		return domain.FleetManifest{}, fmt.Errorf("load manifest: %w", err)
	}

	manifest.Normalize()
	if issues := manifest.Validate(); len(issues) > 0 {
		return domain.FleetManifest{}, &domain.InvalidManifestError{Issues: issues}
	}

	s.mu.Lock()
	s.current = manifest
	s.loaded = true
	s.mu.Unlock()

	return manifest, nil
}

// Current returns the manifest of the last successful load.
func (s *ConfigService) Current() (domain.FleetManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.loaded {
		return domain.FleetManifest{}, fmt.Errorf("manifest not loaded")
	}
	return s.current, nil
}

// Validate runs the semantic checks without touching the current manifest.
func (s *ConfigService) Validate(manifest domain.FleetManifest) []domain.ValidationIssue {
	manifest.Normalize()
	return manifest.Validate()
}

// Save validates, persists and publishes the manifest in one step.
func (s *ConfigService) Save(ctx context.Context, manifest domain.FleetManifest) error {
	manifest.Normalize()
	if issues := manifest.Validate(); len(issues) > 0 {
		return &domain.InvalidManifestError{Issues: issues}
	}

	if err := s.repo.Save(ctx, manifest); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}

	s.mu.Lock()
	s.current = manifest
	s.loaded = true
	s.mu.Unlock()

	return nil
}

// Reload re-runs load+validate. A rejected candidate never replaces the
// active manifest.
func (s *ConfigService) Reload(ctx context.Context) (domain.FleetManifest, error) {
	manifest, err := s.Load(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("manifest reload rejected, previous manifest stays active")
		return domain.FleetManifest{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"path":   s.repo.Path(),
		"agents": len(manifest.Agents),
	}).Info("manifest reloaded")
	return manifest, nil
}

// Watch reloads the manifest whenever its file changes, until ctx ends.
// The parent directory is watched because atomic saves replace the file.
func (s *ConfigService) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start manifest watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	target := filepath.Clean(s.repo.Path())
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch manifest directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			_, _ = s.Reload(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.WithError(err).Warn("manifest watcher error")
		}
	}
}
