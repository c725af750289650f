package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config", "config.toml")

	cfg, err := loadConfig(cfgPath, "")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg != defaultConfig() {
		t.Fatalf("missing config should yield defaults, got %+v", cfg)
	}
	for _, name := range []string{"config.toml.example", "secrets.toml.example"} {
		if _, err := os.Stat(filepath.Join(dir, "config", "examples", name)); err != nil {
			t.Fatalf("example %s not written: %v", name, err)
		}
	}
}

// The shipped example must describe the defaults exactly.
func TestConfigExampleMatchesDefaults(t *testing.T) {
	var fc baseFileConfig
	if err := toml.Unmarshal(configExample, &fc); err != nil {
		t.Fatalf("parse example: %v", err)
	}
	cfg := defaultConfig()
	applyBaseConfig(&cfg, fc)
	if cfg != defaultConfig() {
		t.Fatalf("example drifts from defaults:\n got %+v\nwant %+v", cfg, defaultConfig())
	}
}

func TestLoadConfigOverridesAndSecrets(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	secretsPath := filepath.Join(dir, "secrets.toml")
	writeFile(t, cfgPath, `
data_dir = "/var/lib/grinpool"

[node]
job_feed_addr = "tcp://10.0.0.5:5555"

[stratum]
intake_workers = 3
mining_notify_interval_seconds = 15
max_job_lifetime_seconds = 120

[mining]
enable_simulator = true

[discord]
notify_channel_id = "42"

[logging]
level = "debug"
`, 0o644)
	writeFile(t, secretsPath, `discord_token = " sekrit-token "`+"\n", 0o644)

	cfg, err := loadConfig(cfgPath, secretsPath)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.DataDir != "/var/lib/grinpool" || cfg.JobFeedAddr != "tcp://10.0.0.5:5555" {
		t.Fatalf("paths not applied: %+v", cfg)
	}
	if cfg.JobFeedTopic != defaultJobFeedTopic {
		t.Fatalf("unset topic should keep default, got %q", cfg.JobFeedTopic)
	}
	if cfg.IntakeWorkers != 3 || cfg.MiningNotifyInterval != 15*time.Second || cfg.MaxJobLifetime != 2*time.Minute {
		t.Fatalf("stratum section not applied: %+v", cfg)
	}
	if !cfg.EnableSimulator || cfg.SubmitInvalidBlock {
		t.Fatalf("mining section not applied: %+v", cfg)
	}
	if cfg.DiscordBotToken != "sekrit-token" || cfg.DiscordNotifyChannelID != "42" || !discordConfigured(cfg) {
		t.Fatalf("discord settings not applied: %+v", cfg)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if strings.Contains(cfg.Effective(), "sekrit") {
		t.Fatalf("effective config leaks the token: %s", cfg.Effective())
	}

	info, err := os.Stat(secretsPath)
	if err != nil {
		t.Fatalf("stat secrets: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("secrets mode = %o, want 600", info.Mode().Perm())
	}
}

func TestLoadConfigParseError(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	writeFile(t, cfgPath, "[stratum\nbroken", 0o644)
	if _, err := loadConfig(cfgPath, ""); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidateConfig(t *testing.T) {
	cfg := defaultConfig()
	if err := validateConfig(&cfg); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.IntakeWorkers <= 0 {
		t.Fatalf("intake workers not defaulted")
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"feed without scheme", func(c *Config) { c.JobFeedAddr = "127.0.0.1:28400" }},
		{"empty topic", func(c *Config) { c.JobFeedTopic = " " }},
		{"same intake and result endpoint", func(c *Config) { c.ResultPublishListen = c.ShareIntakeListen }},
		{"negative workers", func(c *Config) { c.IntakeWorkers = -1 }},
		{"sub-second notify interval", func(c *Config) { c.MiningNotifyInterval = time.Millisecond }},
		{"lifetime below interval", func(c *Config) { c.MaxJobLifetime = c.MiningNotifyInterval - time.Second }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"discord token without channel", func(c *Config) { c.DiscordBotToken = "tok" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(&cfg)
			if err := validateConfig(&cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func writeFile(t *testing.T, path, data string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(data), mode); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
