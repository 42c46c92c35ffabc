// Package config loads astra-briefing settings from YAML with environment
// overrides for secrets.
package config

import (
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const appName = "astra-briefing"

//go:embed default_config.yaml
var defaultConfigFS embed.FS

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

type GoogleConfig struct {
	Account            string `yaml:"account"`
	CredentialsBackend string `yaml:"credentials_backend"`
	CredentialsDir     string `yaml:"credentials_dir,omitempty"`
	CredentialsDB      string `yaml:"credentials_db,omitempty"`
	ClientSecret       string `yaml:"client_secret,omitempty"`
	RefreshBuffer      string `yaml:"refresh_buffer"`
	GmailWorkers       int    `yaml:"gmail_workers"`
}

type SlackConfig struct {
	Token           string `yaml:"token"`
	TeamID          string `yaml:"team_id"`
	DefaultChannels int    `yaml:"default_channels"`
	APIURL          string `yaml:"api_url,omitempty"`
}

type ClickUpConfig struct {
	APIKey  string `yaml:"api_key"`
	TeamID  string `yaml:"team_id"`
	BaseURL string `yaml:"base_url,omitempty"`
}

type TimeoutConfig struct {
	List    string `yaml:"list"`
	Message string `yaml:"message"`
	Refresh string `yaml:"refresh"`
}

type Config struct {
	Log      LogConfig     `yaml:"log"`
	Google   GoogleConfig  `yaml:"google"`
	Slack    SlackConfig   `yaml:"slack"`
	ClickUp  ClickUpConfig `yaml:"clickup"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// Credential backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// DefaultLogPath is where the server logs when log.file is unset. Stdout
// is reserved for the tool protocol.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, appName, "briefing.log")
}

// DefaultCredentialsDir is shared with google_workspace_mcp so existing
// authorizations are picked up.
func DefaultCredentialsDir() string {
	return filepath.Join(xdg.Home, ".google_workspace_mcp", "credentials")
}

func DefaultCredentialsDB() string {
	return filepath.Join(xdg.DataHome, appName, "credentials.db")
}

func DefaultClientSecretPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "client_secret.json")
}

func loadDefaults() (*Config, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

// Load reads path (DefaultConfigPath when empty) over the embedded
// defaults, applies environment overrides and validates the result. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultConfigPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Keys absent from the file keep their defaults.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg.applyEnv(lookup)
	cfg.expandPaths()
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	set(&c.Slack.Token, "SLACK_USER_TOKEN", "SLACK_BOT_TOKEN")
	set(&c.Slack.TeamID, "SLACK_TEAM_ID")
	set(&c.ClickUp.APIKey, "CLICKUP_API_KEY")
	set(&c.ClickUp.TeamID, "CLICKUP_TEAM_ID")
	set(&c.Google.Account, "GOOGLE_ACCOUNT")
	set(&c.Log.Level, "ASTRA_LOG_LEVEL")
}

func (c *Config) expandPaths() {
	for _, p := range []*string{&c.Log.File, &c.Google.CredentialsDir, &c.Google.CredentialsDB, &c.Google.ClientSecret} {
		*p = expandHome(*p)
	}
}

func expandHome(p string) string {
	if p == "~" {
		return xdg.Home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(xdg.Home, p[2:])
	}
	return p
}

func validate(cfg *Config) error {
	if _, err := cfg.LogLevel(); err != nil {
		return err
	}
	switch cfg.Google.CredentialsBackend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("google.credentials_backend: unknown backend %q (valid: file, sqlite)", cfg.Google.CredentialsBackend)
	}
	durations := []struct {
		key, val string
	}{
		{"google.refresh_buffer", cfg.Google.RefreshBuffer},
		{"timeouts.list", cfg.Timeouts.List},
		{"timeouts.message", cfg.Timeouts.Message},
		{"timeouts.refresh", cfg.Timeouts.Refresh},
	}
	for _, d := range durations {
		if d.val == "" {
			continue
		}
		v, err := time.ParseDuration(d.val)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q", d.key, d.val)
		}
		if v < 0 {
			return fmt.Errorf("%s: must not be negative", d.key)
		}
	}
	if cfg.Slack.DefaultChannels < 0 {
		return fmt.Errorf("slack.default_channels: must not be negative")
	}
	if cfg.Google.GmailWorkers < 0 {
		return fmt.Errorf("google.gmail_workers: must not be negative")
	}
	return nil
}

// LogLevel parses log.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.Log.Level))); err != nil {
		return 0, fmt.Errorf("log.level: unknown level %q (valid: debug, info, warn, error)", c.Log.Level)
	}
	return lvl, nil
}

// duration returns s parsed, or zero so the consumer picks its default.
// Values were checked by validate.
func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func (c *Config) RefreshBuffer() time.Duration  { return duration(c.Google.RefreshBuffer) }
func (c *Config) ListTimeout() time.Duration    { return duration(c.Timeouts.List) }
func (c *Config) MessageTimeout() time.Duration { return duration(c.Timeouts.Message) }
func (c *Config) RefreshTimeout() time.Duration { return duration(c.Timeouts.Refresh) }

func (c *Config) LogPath() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return DefaultLogPath()
}

func (c *Config) CredentialsDir() string {
	if c.Google.CredentialsDir != "" {
		return c.Google.CredentialsDir
	}
	return DefaultCredentialsDir()
}

func (c *Config) CredentialsDB() string {
	if c.Google.CredentialsDB != "" {
		return c.Google.CredentialsDB
	}
	return DefaultCredentialsDB()
}

func (c *Config) ClientSecretPath() string {
	if c.Google.ClientSecret != "" {
		return c.Google.ClientSecret
	}
	return DefaultClientSecretPath()
}

// WriteDefaults writes the commented default file to path unless one
// already exists.
func WriteDefaults(path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, _ := defaultConfigFS.ReadFile("default_config.yaml")
	return os.WriteFile(path, data, 0o600)
}
