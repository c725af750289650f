package main

import (
	"fmt"
	"time"
)

type Config struct {
	DataDir  string
	LogLevel string

	// Job feed: ZMQ SUB endpoint publishing raw job templates.
	JobFeedAddr  string
	JobFeedTopic string

	// Share intake (PULL, bound) and share/solved-share results (PUB, bound).
	ShareIntakeListen   string
	ResultPublishListen string
	IntakeWorkers       int

	MiningNotifyInterval time.Duration
	MaxJobLifetime       time.Duration

	// Testing switches; see ShareValidatorOptions.
	EnableSimulator    bool
	SubmitInvalidBlock bool

	// Discord integration.
	DiscordNotifyChannelID string
	DiscordBotToken        string // store in secrets.toml
}

// Effective is a one-line summary for the startup log. Secrets are omitted.
func (c Config) Effective() string {
	return fmt.Sprintf("data_dir=%s job_feed=%s topic=%s intake=%s results=%s workers=%d notify_interval=%s max_job_lifetime=%s simulator=%t submit_invalid_block=%t discord=%t",
		c.DataDir, c.JobFeedAddr, c.JobFeedTopic, c.ShareIntakeListen, c.ResultPublishListen,
		c.IntakeWorkers, c.MiningNotifyInterval, c.MaxJobLifetime,
		c.EnableSimulator, c.SubmitInvalidBlock, discordConfigured(c))
}

func discordConfigured(c Config) bool {
	return c.DiscordBotToken != "" && c.DiscordNotifyChannelID != ""
}
