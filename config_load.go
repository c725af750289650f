package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
)

var configExample = []byte(`# grinPool configuration.

[node]
# ZMQ PUB endpoint of the job template producer.
job_feed_addr = "tcp://127.0.0.1:28400"
job_feed_topic = "grin_job"

[stratum]
# Frontends PUSH share submissions here.
share_intake_listen = "tcp://127.0.0.1:28401"
# Share results and solved shares are published here.
result_publish_listen = "tcp://127.0.0.1:28402"
# intake_workers = 8
mining_notify_interval_seconds = 30
max_job_lifetime_seconds = 300

[mining]
# Testing only.
enable_simulator = false
submit_invalid_block = false

[discord]
# notify_channel_id = "123456789012345678"

[logging]
level = "info"
`)

var secretsExample = []byte(`# Optional Discord bot token for solved block notifications.
# discord_token = "YOUR_DISCORD_BOT_TOKEN"
`)

// loadConfig layers config.toml and secrets.toml over the defaults. Missing
// files are not an error; example files are written next to them instead.
func loadConfig(configPath, secretsPath string) (Config, error) {
	cfg := defaultConfig()
	if configPath == "" {
		configPath = defaultConfigPath(cfg.DataDir)
	}

	fc, ok, err := loadTOMLFile[baseFileConfig](configPath)
	if err != nil {
		return cfg, err
	}
	if ok {
		applyBaseConfig(&cfg, *fc)
	} else {
		ensureExampleFiles(filepath.Dir(configPath))
		logger.Warn("config file missing; using defaults", "path", configPath)
	}

	if secretsPath == "" {
		secretsPath = filepath.Join(filepath.Dir(configPath), "secrets.toml")
	}
	ensureSecretFilePermissions(secretsPath)
	sc, ok, err := loadTOMLFile[secretsConfig](secretsPath)
	if err != nil {
		return cfg, err
	}
	if ok {
		cfg.DiscordBotToken = strings.TrimSpace(sc.DiscordToken)
	}
	return cfg, nil
}

func loadTOMLFile[T any](path string) (*T, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}

	var cfg T
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, true, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, true, nil
}

func applyBaseConfig(cfg *Config, fc baseFileConfig) {
	if v := strings.TrimSpace(fc.DataDir); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(fc.Node.JobFeedAddr); v != "" {
		cfg.JobFeedAddr = v
	}
	if v := strings.TrimSpace(fc.Node.JobFeedTopic); v != "" {
		cfg.JobFeedTopic = v
	}
	if v := strings.TrimSpace(fc.Stratum.ShareIntakeListen); v != "" {
		cfg.ShareIntakeListen = v
	}
	if v := strings.TrimSpace(fc.Stratum.ResultPublishListen); v != "" {
		cfg.ResultPublishListen = v
	}
	if fc.Stratum.IntakeWorkers != nil {
		cfg.IntakeWorkers = *fc.Stratum.IntakeWorkers
	}
	if fc.Stratum.MiningNotifyIntervalSeconds != nil {
		cfg.MiningNotifyInterval = time.Duration(*fc.Stratum.MiningNotifyIntervalSeconds) * time.Second
	}
	if fc.Stratum.MaxJobLifetimeSeconds != nil {
		cfg.MaxJobLifetime = time.Duration(*fc.Stratum.MaxJobLifetimeSeconds) * time.Second
	}
	if fc.Mining.EnableSimulator != nil {
		cfg.EnableSimulator = *fc.Mining.EnableSimulator
	}
	if fc.Mining.SubmitInvalidBlock != nil {
		cfg.SubmitInvalidBlock = *fc.Mining.SubmitInvalidBlock
	}
	if v := strings.TrimSpace(fc.Discord.NotifyChannelID); v != "" {
		cfg.DiscordNotifyChannelID = v
	}
	if v := strings.TrimSpace(fc.Logging.Level); v != "" {
		cfg.LogLevel = v
	}
}

func ensureExampleFiles(configDir string) {
	examplesDir := filepath.Join(configDir, "examples")
	if err := os.MkdirAll(examplesDir, 0o755); err != nil {
		logger.Warn("create config examples dir", "path", examplesDir, "error", err)
		return
	}
	for name, data := range map[string][]byte{
		"config.toml.example":  configExample,
		"secrets.toml.example": secretsExample,
	} {
		path := filepath.Join(examplesDir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			logger.Warn("write config example", "path", path, "error", err)
		}
	}
}

func ensureSecretFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("secrets file stat failed", "path", path, "error", err)
		}
		return
	}
	if !info.Mode().IsRegular() || info.Mode().Perm()&0o077 == 0 {
		return
	}
	if err := os.Chmod(path, 0o600); err != nil {
		logger.Warn("secrets file chmod failed", "path", path, "error", err)
		return
	}
	logger.Warn("secrets file permissions tightened", "path", path, "mode", "0600")
}
