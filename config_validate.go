package main

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

func validateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("data_dir is required")
	}
	if err := validateZMQEndpoint("node.job_feed_addr", cfg.JobFeedAddr); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.JobFeedTopic) == "" {
		return fmt.Errorf("node.job_feed_topic is required")
	}
	if err := validateZMQEndpoint("stratum.share_intake_listen", cfg.ShareIntakeListen); err != nil {
		return err
	}
	if err := validateZMQEndpoint("stratum.result_publish_listen", cfg.ResultPublishListen); err != nil {
		return err
	}
	if cfg.ShareIntakeListen == cfg.ResultPublishListen {
		return fmt.Errorf("share_intake_listen and result_publish_listen must differ")
	}
	if cfg.IntakeWorkers < 0 {
		return fmt.Errorf("intake_workers cannot be negative")
	}
	if cfg.IntakeWorkers == 0 {
		cfg.IntakeWorkers = runtime.NumCPU()
	}
	if cfg.MiningNotifyInterval < time.Second {
		return fmt.Errorf("mining_notify_interval_seconds must be >= 1, got %s", cfg.MiningNotifyInterval)
	}
	if cfg.MaxJobLifetime < cfg.MiningNotifyInterval {
		return fmt.Errorf("max_job_lifetime_seconds (%s) must not be shorter than mining_notify_interval_seconds (%s)", cfg.MaxJobLifetime, cfg.MiningNotifyInterval)
	}
	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if (cfg.DiscordBotToken == "") != (cfg.DiscordNotifyChannelID == "") {
		return fmt.Errorf("discord notifications need both discord_token (secrets.toml) and discord.notify_channel_id")
	}
	return nil
}

func validateZMQEndpoint(field, addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("%s is required", field)
	}
	for _, scheme := range []string{"tcp://", "ipc://", "inproc://"} {
		if strings.HasPrefix(addr, scheme) && len(addr) > len(scheme) {
			return nil
		}
	}
	return fmt.Errorf("%s %q must be a tcp://, ipc:// or inproc:// endpoint", field, addr)
}
