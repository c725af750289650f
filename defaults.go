package main

import (
	"path/filepath"
	"time"
)

const (
	defaultDataDir              = "data"
	defaultJobFeedAddr          = "tcp://127.0.0.1:28400"
	defaultJobFeedTopic         = "grin_job"
	defaultShareIntakeListen    = "tcp://127.0.0.1:28401"
	defaultResultPublishListen  = "tcp://127.0.0.1:28402"
	defaultMiningNotifyInterval = 30 * time.Second
	defaultMaxJobLifetime       = 300 * time.Second
)

func defaultConfig() Config {
	return Config{
		DataDir:              defaultDataDir,
		LogLevel:             "info",
		JobFeedAddr:          defaultJobFeedAddr,
		JobFeedTopic:         defaultJobFeedTopic,
		ShareIntakeListen:    defaultShareIntakeListen,
		ResultPublishListen:  defaultResultPublishListen,
		MiningNotifyInterval: defaultMiningNotifyInterval,
		MaxJobLifetime:       defaultMaxJobLifetime,
	}
}

func defaultConfigPath(dataDir string) string {
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	return filepath.Join(dataDir, "config", "config.toml")
}
