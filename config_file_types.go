package main

type nodeConfig struct {
	JobFeedAddr  string `toml:"job_feed_addr"`
	JobFeedTopic string `toml:"job_feed_topic"`
}

type stratumConfig struct {
	ShareIntakeListen           string `toml:"share_intake_listen"`
	ResultPublishListen         string `toml:"result_publish_listen"`
	IntakeWorkers               *int   `toml:"intake_workers"`
	MiningNotifyIntervalSeconds *int   `toml:"mining_notify_interval_seconds"`
	MaxJobLifetimeSeconds       *int   `toml:"max_job_lifetime_seconds"`
}

type miningConfig struct {
	EnableSimulator    *bool `toml:"enable_simulator"`
	SubmitInvalidBlock *bool `toml:"submit_invalid_block"`
}

type discordConfig struct {
	NotifyChannelID string `toml:"notify_channel_id"`
}

type loggingConfig struct {
	Level string `toml:"level"`
}

type baseFileConfig struct {
	DataDir string        `toml:"data_dir"`
	Node    nodeConfig    `toml:"node"`
	Stratum stratumConfig `toml:"stratum"`
	Mining  miningConfig  `toml:"mining"`
	Discord discordConfig `toml:"discord"`
	Logging loggingConfig `toml:"logging"`
}

type secretsConfig struct {
	DiscordToken string `toml:"discord_token"`
}
