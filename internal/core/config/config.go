// Package config provides the agentdeck settings loader.
// Settings are merged from defaults → ~/.agentdeck/config.yaml → --config file → AGENTDECK_* env vars.
// The deployment configuration chosen during onboarding is NOT stored here; see package store.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	v1 "github.com/f9-o/agentdeck/api/v1"
	"github.com/f9-o/agentdeck/pkg/netutil"
)

// sensitiveKeyRegex matches config keys that should be redacted in log output.
var sensitiveKeyRegex = regexp.MustCompile(`(?i)(password|token|secret|key|credential)`)

// Defaults contains factory-default values applied before any config file is loaded.
var Defaults = map[string]any{
	"agent.url":          "http://127.0.0.1:8081",
	"agent.timeout":      "5s",
	"telemetry.interval": "2s",
	"tunnel.provider":    v1.ProviderCloudflare,
	"log.level":          "info",
	"log.format":         "text",
}

// ─────────────────────────────────────────────────────────────────────────────
// Config types
// ─────────────────────────────────────────────────────────────────────────────

// Config is the fully-decoded application configuration.
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Tunnel    TunnelConfig    `mapstructure:"tunnel"`
	Log       LogConfig       `mapstructure:"log"`
}

// AgentConfig controls how the Agent Link reaches the local agent.
type AgentConfig struct {
	URL     string        `mapstructure:"url"`     // http://host:port or unix:///path.sock
	Timeout time.Duration `mapstructure:"timeout"` // per-call bound
}

// TelemetryConfig controls the poller.
type TelemetryConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// TunnelConfig holds tunnel settings.
type TunnelConfig struct {
	Provider string `mapstructure:"provider"` // cloudflare | pangolin
}

// LogConfig controls logging behaviour.
type LogConfig struct {
	Level  string `mapstructure:"level"` // debug | info | warn | error
	File   string `mapstructure:"file"`
	Format string `mapstructure:"format"` // json | text
}

// ─────────────────────────────────────────────────────────────────────────────
// Loader
// ─────────────────────────────────────────────────────────────────────────────

// Load reads the global config file, an optional explicit file, and environment variables.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()

	// Apply defaults
	for k, val := range Defaults {
		v.SetDefault(k, val)
	}
	v.SetDefault("data_dir", Home())

	// Environment variable binding: AGENTDECK_AGENT_URL → agent.url
	v.SetEnvPrefix("AGENTDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load global config (~/.agentdeck/config.yaml) if it exists
	globalCfg := filepath.Join(Home(), "config.yaml")
	if _, err := os.Stat(globalCfg); err == nil {
		v.SetConfigFile(globalCfg)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read global config: %w", err)
		}
	}

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", explicitPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.Log.File = expandHome(cfg.Log.File)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// Default returns the factory configuration without reading files or environment.
func Default() *Config {
	return &Config{
		DataDir:   Home(),
		Agent:     AgentConfig{URL: Defaults["agent.url"].(string), Timeout: 5 * time.Second},
		Telemetry: TelemetryConfig{Interval: 2 * time.Second},
		Tunnel:    TunnelConfig{Provider: v1.ProviderCloudflare},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// IsSensitiveKey returns true if key matches a known sensitive pattern.
func IsSensitiveKey(key string) bool {
	return sensitiveKeyRegex.MatchString(key)
}

// IsSupportedProvider reports whether the agent knows the tunnel provider.
func IsSupportedProvider(p string) bool {
	return p == v1.ProviderCloudflare || p == v1.ProviderPangolin
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

// validate performs semantic validation on the loaded config.
func validate(cfg *Config) error {
	if _, err := netutil.ParseAgentURL(cfg.Agent.URL); err != nil {
		return err
	}
	if cfg.Agent.Timeout <= 0 {
		return fmt.Errorf("agent.timeout must be positive, got %s", cfg.Agent.Timeout)
	}
	if cfg.Telemetry.Interval <= 0 {
		return fmt.Errorf("telemetry.interval must be positive, got %s", cfg.Telemetry.Interval)
	}
	if !IsSupportedProvider(cfg.Tunnel.Provider) {
		return fmt.Errorf("tunnel.provider %q is not supported (cloudflare | pangolin)", cfg.Tunnel.Provider)
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	return nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}

// Home returns the agentdeck home directory (~/.agentdeck).
func Home() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentdeck"
	}
	return filepath.Join(home, ".agentdeck")
}

// DefaultConfigTemplate is the content written by `agentdeck config init`.
const DefaultConfigTemplate = `# ~/.agentdeck/config.yaml: agentdeck settings
# Every key can be overridden with AGENTDECK_<SECTION>_<KEY>, e.g. AGENTDECK_AGENT_URL.

agent:
  url: http://127.0.0.1:8081   # or unix:///run/zexio/agent.sock
  timeout: 5s

telemetry:
  interval: 2s

tunnel:
  provider: cloudflare         # cloudflare | pangolin

log:
  level: info
  format: text
`
