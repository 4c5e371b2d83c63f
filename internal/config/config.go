package config

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/apkupdater/apkupdaterd/api"
)

// EnvPrefix is the prefix of the environment variables overriding the configuration file.
const EnvPrefix = "APKUPDATER"

// ErrInvalidConfig is returned when the configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the daemon configuration.
type Config struct {
	StatePath    string `envconfig:"STATE_PATH"    yaml:"state_path"`
	SocketPath   string `envconfig:"SOCKET_PATH"   yaml:"socket_path"`
	DownloadPath string `envconfig:"DOWNLOAD_PATH" yaml:"download_path"`
	LogLevel     string `envconfig:"LOG_LEVEL"     yaml:"log_level"`

	Inventory   InventoryConfig   `envconfig:"INVENTORY"   yaml:"inventory"`
	Aggregation AggregationConfig `envconfig:"AGGREGATION" yaml:"aggregation"`
	HTTP        HTTPConfig        `envconfig:"HTTP"        yaml:"http"`
	Install     InstallConfig     `envconfig:"INSTALL"     yaml:"install"`
	Notify      NotifyConfig      `envconfig:"NOTIFY"      yaml:"notify"`

	// Sources holds the per-source settings (tokens, base URLs, repository mappings).
	Sources map[api.SourceID]map[string]string `ignored:"true" yaml:"sources"`

	GitHubToken string `envconfig:"GITHUB_TOKEN" yaml:"-"`
	GitLabToken string `envconfig:"GITLAB_TOKEN" yaml:"-"`
}

// InventoryConfig selects where the list of installed applications comes from.
type InventoryConfig struct {
	// Type is either "pm" (the device's package manager) or "file" (a YAML or JSON manifest).
	Type string `envconfig:"TYPE" yaml:"type"`
	Path string `envconfig:"PATH" yaml:"path"`
}

// AggregationConfig holds the source fan-out settings.
type AggregationConfig struct {
	Concurrency   int           `envconfig:"CONCURRENCY"    yaml:"concurrency"`
	LookupTimeout time.Duration `envconfig:"LOOKUP_TIMEOUT" yaml:"lookup_timeout"`
}

// HTTPConfig holds the settings of the transport shared by the sources and downloads.
type HTTPConfig struct {
	UserAgent         string        `envconfig:"USER_AGENT"          yaml:"user_agent"`
	RetryMax          int           `envconfig:"RETRY_MAX"           yaml:"retry_max"`
	RequestsPerSecond float64       `envconfig:"REQUESTS_PER_SECOND" yaml:"requests_per_second"`
	Timeout           time.Duration `envconfig:"TIMEOUT"             yaml:"timeout"`
}

// InstallConfig holds the installer settings.
type InstallConfig struct {
	Strategy api.InstallStrategy `envconfig:"STRATEGY" yaml:"strategy"`
	Elevated ElevatedConfig      `envconfig:"ELEVATED" yaml:"elevated"`
	Session  SessionConfig       `envconfig:"SESSION"  yaml:"session"`
}

// ElevatedConfig overrides the privileged install command. "{path}" and "{package}" get substituted.
type ElevatedConfig struct {
	Command string   `envconfig:"COMMAND" yaml:"command"`
	Args    []string `envconfig:"ARGS"    yaml:"args"`
}

// SessionConfig holds the settings of session based installs.
type SessionConfig struct {
	InstallerPackage string `envconfig:"INSTALLER_PACKAGE" yaml:"installer_package"`
}

// NotifyConfig lists the webhooks receiving events.
type NotifyConfig struct {
	Webhooks       []string      `envconfig:"WEBHOOKS"        yaml:"webhooks"`
	WebhookTimeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" yaml:"webhook_timeout"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		StatePath:    "/var/lib/apkupdaterd/state.txt",
		SocketPath:   "/run/apkupdaterd/unix.socket",
		DownloadPath: "/var/cache/apkupdaterd",
		LogLevel:     "info",
		Inventory: InventoryConfig{
			Type: "pm",
		},
		Aggregation: AggregationConfig{
			Concurrency:   8,
			LookupTimeout: 30 * time.Second,
		},
		HTTP: HTTPConfig{
			UserAgent:         "apkupdaterd",
			RetryMax:          3,
			RequestsPerSecond: 5,
			Timeout:           5 * time.Minute,
		},
		Install: InstallConfig{
			Strategy: api.InstallStrategyAuto,
		},
		Notify: NotifyConfig{
			WebhookTimeout: 10 * time.Second,
		},
		Sources: map[api.SourceID]map[string]string{},
	}
}

// Load reads the configuration file, if any, then applies the environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		content, err := os.ReadFile(path) //nolint:gosec
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}

		if err == nil {
			err = yaml.Unmarshal(content, cfg)
			if err != nil {
				return nil, fmt.Errorf("unable to parse %q: %w", path, err)
			}
		} else {
			slog.Debug("Configuration file not found, using defaults", "path", path)
		}
	}

	err := envconfig.Process(EnvPrefix, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to read environment: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate performs basic sanity checks against the configuration.
func (c *Config) Validate() error {
	if c.StatePath == "" {
		return fmt.Errorf("%w: missing state path", ErrInvalidConfig)
	}

	if c.SocketPath == "" {
		return fmt.Errorf("%w: missing socket path", ErrInvalidConfig)
	}

	if c.DownloadPath == "" {
		return fmt.Errorf("%w: missing download path", ErrInvalidConfig)
	}

	_, err := c.Level()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch c.Inventory.Type {
	case "pm":
	case "file":
		if c.Inventory.Path == "" {
			return fmt.Errorf("%w: file inventory requires a path", ErrInvalidConfig)
		}

	default:
		return fmt.Errorf("%w: unknown inventory type %q", ErrInvalidConfig, c.Inventory.Type)
	}

	if c.Aggregation.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be positive", ErrInvalidConfig)
	}

	if c.Aggregation.LookupTimeout <= 0 {
		return fmt.Errorf("%w: lookup timeout must be positive", ErrInvalidConfig)
	}

	if c.HTTP.RetryMax < 0 {
		return fmt.Errorf("%w: retry count can't be negative", ErrInvalidConfig)
	}

	for id := range c.Sources {
		_, ok := api.Sources[id]
		if !ok {
			return fmt.Errorf("%w: unknown source %q", ErrInvalidConfig, id)
		}
	}

	switch c.Install.Strategy {
	case "", api.InstallStrategyAuto, api.InstallStrategyElevated, api.InstallStrategySession:
	default:
		return fmt.Errorf("%w: unknown install strategy %q", ErrInvalidConfig, c.Install.Strategy)
	}

	for _, hook := range c.Notify.Webhooks {
		if !strings.HasPrefix(hook, "http://") && !strings.HasPrefix(hook, "https://") {
			return fmt.Errorf("%w: webhook %q isn't an HTTP URL", ErrInvalidConfig, hook)
		}
	}

	return nil
}

// Level returns the configured log level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(c.LogLevel))
	if err != nil {
		return slog.LevelInfo, err
	}

	return level, nil
}

// SourceConfigs returns the per-source settings, with the token environment variables merged in.
func (c *Config) SourceConfigs() map[api.SourceID]map[string]string {
	configs := make(map[api.SourceID]map[string]string, len(c.Sources))

	for id, config := range c.Sources {
		configs[id] = maps.Clone(config)
	}

	setToken := func(id api.SourceID, token string) {
		if token == "" {
			return
		}

		if configs[id] == nil {
			configs[id] = map[string]string{}
		}

		configs[id]["token"] = token
	}

	setToken(api.SourceGitHub, c.GitHubToken)
	setToken(api.SourceGitLab, c.GitLabToken)

	return configs
}
