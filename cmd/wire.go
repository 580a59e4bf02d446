package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	gitrepo "github.com/bnema/agent-fleet-cli/internal/adapters/git"
	fleetrender "github.com/bnema/agent-fleet-cli/internal/adapters/render/fleet"
	"github.com/bnema/agent-fleet-cli/internal/adapters/tmux"
	"github.com/bnema/agent-fleet-cli/internal/adapters/tomlstate"
	"github.com/bnema/agent-fleet-cli/internal/adapters/yamlrepo"
	"github.com/bnema/agent-fleet-cli/internal/application"
	"github.com/bnema/agent-fleet-cli/internal/domain"
	"github.com/bnema/agent-fleet-cli/internal/ports"
)

const (
	configName = "config"
	configType = "toml"
	configDir  = ".af"
)

type app struct {
	config         *application.ConfigService
	workspace      *application.WorkspaceService
	layout         *application.LayoutService
	dispatch       *application.DispatchService
	backend        ports.SessionBackend
	fleetRenderer  func(fleetrender.FleetView, fleetrender.RenderOptions) (string, error)
	reportRenderer func(domain.DispatchReport) string
	logger         *logrus.Logger
	now            func() time.Time
}

func wireApp() (*app, error) {
	cfg, err := loadToolConfig()
	if err != nil {
		return nil, err
	}

	logger := newLogger(envOrDefault("AF_LOG_LEVEL", cfg.GetString("log.level")))

	manifestRepo, err := yamlrepo.NewRepository(envOrDefault("AF_MANIFEST", cfg.GetString("manifest.path")))
	if err != nil {
		return nil, fmt.Errorf("wire manifest repository: %w", err)
	}

	stateRepo, err := tomlstate.NewRepository(envOrDefault("AF_STATE", cfg.GetString("state.path")))
	if err != nil {
		return nil, fmt.Errorf("wire session state repository: %w", err)
	}

	backend := tmux.NewServer(envOrDefault("AF_TMUX_SOCKET", cfg.GetString("tmux.socket")))
	vcs := gitrepo.NewRepository(".")
	clock := ports.SystemClock{}

	policy := application.DeliveryPolicy{
		Timeout:       cfg.GetDuration("dispatch.timeout"),
		MaxAttempts:   cfg.GetInt("dispatch.max_retries"),
		RetryDelay:    cfg.GetDuration("dispatch.retry_delay"),
		PollInterval:  cfg.GetDuration("dispatch.poll_interval"),
		MaxConcurrent: cfg.GetInt("dispatch.max_concurrent"),
	}

	return &app{
		config:         application.NewConfigService(manifestRepo, logger),
		workspace:      application.NewWorkspaceService(vcs, stateRepo, logger, clock),
		layout:         application.NewLayoutService(backend, stateRepo, logger, clock),
		dispatch:       application.NewDispatchService(backend, policy, logger, clock),
		backend:        backend,
		fleetRenderer:  fleetrender.Render,
		reportRenderer: fleetrender.RenderReport,
		logger:         logger,
		now:            time.Now,
	}, nil
}

// loadToolConfig reads ~/.af/config.toml, tolerating its absence: every
// key has a default and environment variables override the file.
func loadToolConfig() (*viper.Viper, error) {
	cfg := viper.New()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(filepath.Join(homeDir, configDir))

	cfg.SetDefault("manifest.path", filepath.Join("agents", "agents.yaml"))
	cfg.SetDefault("state.path", filepath.Join(homeDir, configDir, "sessions.toml"))
	cfg.SetDefault("tmux.socket", "")
	cfg.SetDefault("dispatch.max_concurrent", 10)
	cfg.SetDefault("dispatch.timeout", "30s")
	cfg.SetDefault("dispatch.max_retries", 3)
	cfg.SetDefault("dispatch.retry_delay", "2s")
	cfg.SetDefault("dispatch.poll_interval", "250ms")
	cfg.SetDefault("log.level", "warn")

	if err := cfg.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return cfg, nil
}

// newLogger writes to stderr so command stdout stays scriptable.
func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.WarnLevel
	}
	logger.SetLevel(parsed)

	return logger
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
