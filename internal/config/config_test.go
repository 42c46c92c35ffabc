package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadDefaults()
	if err != nil {
		t.Fatalf("loadDefaults: %v", err)
	}
	if cfg.Google.CredentialsBackend != BackendFile {
		t.Errorf("backend = %q", cfg.Google.CredentialsBackend)
	}
	if cfg.Slack.DefaultChannels != 5 {
		t.Errorf("default_channels = %d", cfg.Slack.DefaultChannels)
	}
	if cfg.RefreshBuffer() != 5*time.Minute {
		t.Errorf("refresh buffer = %v", cfg.RefreshBuffer())
	}
	if cfg.ListTimeout() != 15*time.Second || cfg.MessageTimeout() != 10*time.Second {
		t.Errorf("timeouts = %v / %v", cfg.ListTimeout(), cfg.MessageTimeout())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := load(filepath.Join(t.TempDir(), "absent.yaml"), noEnv)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if lvl, _ := cfg.LogLevel(); lvl != slog.LevelInfo {
		t.Errorf("level = %v", lvl)
	}
}

func TestLoadFileOverridesOnlyGivenKeys(t *testing.T) {
	path := writeConfig(t, `
slack:
  team_id: T123
google:
  credentials_backend: sqlite
  credentials_db: ~/creds.db
timeouts:
  list: 30s
`)
	cfg, err := load(path, noEnv)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Slack.TeamID != "T123" {
		t.Errorf("team_id = %q", cfg.Slack.TeamID)
	}
	if cfg.Slack.DefaultChannels != 5 {
		t.Errorf("default_channels lost its default: %d", cfg.Slack.DefaultChannels)
	}
	if cfg.ListTimeout() != 30*time.Second || cfg.MessageTimeout() != 10*time.Second {
		t.Errorf("timeouts = %v / %v", cfg.ListTimeout(), cfg.MessageTimeout())
	}
	if cfg.Google.CredentialsBackend != BackendSQLite {
		t.Errorf("backend = %q", cfg.Google.CredentialsBackend)
	}
	if strings.HasPrefix(cfg.CredentialsDB(), "~") || !strings.HasSuffix(cfg.CredentialsDB(), "creds.db") {
		t.Errorf("credentials db not expanded: %q", cfg.CredentialsDB())
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "slack:\n  token: from-file\n")
	cfg, err := load(path, envMap(map[string]string{
		"SLACK_BOT_TOKEN": "xoxb-bot",
		"SLACK_TEAM_ID":   "T9",
		"CLICKUP_API_KEY": "pk_1",
		"CLICKUP_TEAM_ID": "42",
		"GOOGLE_ACCOUNT":  "me@example.com",
		"ASTRA_LOG_LEVEL": "debug",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Slack.Token != "xoxb-bot" || cfg.Slack.TeamID != "T9" {
		t.Errorf("slack = %+v", cfg.Slack)
	}
	if cfg.ClickUp.APIKey != "pk_1" || cfg.ClickUp.TeamID != "42" {
		t.Errorf("clickup = %+v", cfg.ClickUp)
	}
	if cfg.Google.Account != "me@example.com" {
		t.Errorf("account = %q", cfg.Google.Account)
	}
	if lvl, _ := cfg.LogLevel(); lvl != slog.LevelDebug {
		t.Errorf("level = %v", lvl)
	}
}

func TestUserTokenWinsOverBotToken(t *testing.T) {
	cfg, err := load(filepath.Join(t.TempDir(), "none.yaml"), envMap(map[string]string{
		"SLACK_USER_TOKEN": "xoxp-user",
		"SLACK_BOT_TOKEN":  "xoxb-bot",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Slack.Token != "xoxp-user" {
		t.Errorf("token = %q", cfg.Slack.Token)
	}
}

func TestValidateNamesKey(t *testing.T) {
	tests := []struct {
		body string
		key  string
	}{
		{"google:\n  credentials_backend: redis\n", "google.credentials_backend"},
		{"timeouts:\n  message: soon\n", "timeouts.message"},
		{"google:\n  refresh_buffer: -1m\n", "google.refresh_buffer"},
		{"log:\n  level: loud\n", "log.level"},
		{"slack:\n  default_channels: -2\n", "slack.default_channels"},
	}
	for _, tc := range tests {
		_, err := load(writeConfig(t, tc.body), noEnv)
		if err == nil || !strings.Contains(err.Error(), tc.key) {
			t.Errorf("load(%q) error = %v; want mention of %s", tc.body, err, tc.key)
		}
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	if _, err := load(writeConfig(t, "slack: [unclosed\n"), noEnv); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWriteDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteDefaults(path); err != nil {
		t.Fatalf("WriteDefaults: %v", err)
	}
	cfg, err := load(path, noEnv)
	if err != nil {
		t.Fatalf("load written defaults: %v", err)
	}
	if cfg.Google.GmailWorkers != 8 {
		t.Errorf("gmail_workers = %d", cfg.Google.GmailWorkers)
	}
	if err := WriteDefaults(path); err == nil {
		t.Fatal("second WriteDefaults should refuse to overwrite")
	}
}

func TestPathDefaults(t *testing.T) {
	cfg := &Config{}
	if cfg.LogPath() != DefaultLogPath() || !strings.HasSuffix(cfg.LogPath(), filepath.Join("astra-briefing", "briefing.log")) {
		t.Errorf("log path = %q", cfg.LogPath())
	}
	if !strings.HasSuffix(cfg.CredentialsDir(), filepath.Join(".google_workspace_mcp", "credentials")) {
		t.Errorf("credentials dir = %q", cfg.CredentialsDir())
	}
}
