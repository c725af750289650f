package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	debugpkg "runtime/debug"
	"syscall"
	"time"
)

func main() {
	// Top-level panic handler: ensure any unexpected panic is captured to
	// panic.log with a stack trace so operators can inspect it.
	defer func() {
		if r := recover(); r != nil {
			path := "panic.log"
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				defer f.Close()
				ts := time.Now().UTC().Format(time.RFC3339)
				fmt.Fprintf(f, "[%s] panic: %v\nbuild_time=%s\n%s\n\n",
					ts, r, buildTime, debugpkg.Stack())
			}
			panic(r)
		}
	}()

	dataDirFlag := flag.String("data-dir", "", "data directory (config, state, logs)")
	configFlag := flag.String("config", "", "path to config.toml")
	secretsFlag := flag.String("secrets", "", "path to secrets.toml")
	logLevelFlag := flag.String("log-level", "", "override log level (debug/info/warn/error)")
	stdoutLogFlag := flag.Bool("stdout", false, "mirror logs to stdout")
	simulatorFlag := flag.Bool("simulator", false, "accept every share at the worker's highest difficulty (testing only)")
	submitInvalidFlag := flag.Bool("submit-invalid-block", false, "publish every checked share as a solved block (testing only)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfgPath := *configFlag
	if cfgPath == "" {
		cfgPath = defaultConfigPath(*dataDirFlag)
	}
	cfg, err := loadConfig(cfgPath, *secretsFlag)
	if err != nil {
		fatal("config", err, "path", cfgPath)
	}
	if *dataDirFlag != "" {
		cfg.DataDir = *dataDirFlag
	}
	if *logLevelFlag != "" {
		cfg.LogLevel = *logLevelFlag
	}
	cfg.EnableSimulator = cfg.EnableSimulator || *simulatorFlag
	cfg.SubmitInvalidBlock = cfg.SubmitInvalidBlock || *submitInvalidFlag
	if err := validateConfig(&cfg); err != nil {
		fatal("config", err)
	}
	if err := configureLogging(cfg, *stdoutLogFlag); err != nil {
		fatal("logging", err)
	}

	logger.Info("starting "+poolSoftwareName,
		"build_time", buildTime,
		"json", jsonImplementationName(),
		"sha256", sha256ImplementationName(),
	)
	logger.Info("effective config", "config", cfg.Effective())
	if cfg.EnableSimulator {
		logger.Warn("simulator enabled: invalid proofs are accepted at the highest tier")
	}
	if cfg.SubmitInvalidBlock {
		logger.Warn("submit_invalid_block enabled: every share is published as a solved block")
	}

	db, err := openStateDB(stateDBPathFromDataDir(cfg.DataDir))
	if err != nil {
		fatal("state db", err)
	}
	defer db.Close()

	pub, err := newZMQPublisher(cfg.ResultPublishListen)
	if err != nil {
		fatal("result publisher", err, "addr", cfg.ResultPublishListen)
	}
	defer pub.Close()

	var onSolved func(SolvedShareMessage)
	if discordConfigured(cfg) {
		dn := newDiscordNotifier(cfg)
		if err := dn.start(ctx, cfg.DiscordBotToken); err != nil {
			logger.Warn("discord notifier disabled", "error", err)
		} else {
			onSolved = dn.notifySolved
			defer dn.close()
		}
	}
	solved := newSolvedSharePublisher(db, pub, onSolved)
	startSolvedShareReplayer(ctx, solved)

	repo := NewJobRepository[*GrinJob]()
	notifier := newJobNotifier[*GrinJob]()
	notifier.Start(ctx)
	jobCh := notifier.Subscribe()
	go forwardJobs(jobCh, pub)

	feed := newJobFeed(cfg, repo, grinJobBuilder, notifier)
	if last, err := readLastNotifyTime(feed.lastNotifyPath); err == nil {
		logger.Info("previous job notification", "at", last.UTC().Format(time.RFC3339), "ago", humanDuration(time.Since(last)))
	}
	feed.Start(ctx)

	validator := NewShareValidator(grinVerifier{}, ShareValidatorOptions{
		EnableSimulator:    cfg.EnableSimulator,
		SubmitInvalidBlock: cfg.SubmitInvalidBlock,
	})
	intake := newShareIntake(cfg, repo, validator, pub, solved)
	intake.Start(ctx)

	reporter := &statusReporter{
		startedAt: time.Now(),
		now:       time.Now,
		maxJobAge: cfg.MaxJobLifetime,
		repo:      repo,
		feed:      feed,
		notifier:  notifier,
		intake:    intake,
		solved:    solved,
	}
	go reporter.run(ctx)

	<-ctx.Done()
	logger.Info("shutdown requested; stopping")
	intake.Wait()
	notifier.Unsubscribe(jobCh)
	notifier.Wait()
	logger.Info("final status", reporter.attrs()...)
	logger.Stop()
}
