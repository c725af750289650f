package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
)

// jobBuildFunc turns one feed payload into a chain job carrying id.
type jobBuildFunc[J MiningJob] func(payload []byte, id uint64, now time.Time) (J, error)

// jobFeed consumes raw job templates, inserts them into the repository and
// decides when miners get a new job: on every height advance, and on the
// notify interval when nothing was pushed in between.
type jobFeed[J MiningJob] struct {
	addr           string
	topic          string
	notifyInterval time.Duration
	maxJobLifetime time.Duration
	lastNotifyPath string

	repo     *JobRepository[J]
	ids      *jobIDGenerator
	build    jobBuildFunc[J]
	notifier *jobNotifier[J]
	now      func() time.Time

	// notifyMu orders Insert+Notify against the interval re-send.
	notifyMu     sync.Mutex
	lastNotifyAt time.Time

	healthy     atomic.Bool
	disconnects atomic.Uint64
	reconnects  atomic.Uint64
	received    atomic.Uint64
	rejected    atomic.Uint64
}

func newJobFeed[J MiningJob](cfg Config, repo *JobRepository[J], build jobBuildFunc[J], notifier *jobNotifier[J]) *jobFeed[J] {
	return &jobFeed[J]{
		addr:           cfg.JobFeedAddr,
		topic:          cfg.JobFeedTopic,
		notifyInterval: cfg.MiningNotifyInterval,
		maxJobLifetime: cfg.MaxJobLifetime,
		lastNotifyPath: filepath.Join(cfg.DataDir, "state", "last_notify_time"),
		repo:           repo,
		ids:            newJobIDGenerator(),
		build:          build,
		notifier:       notifier,
		now:            time.Now,
	}
}

// handleTemplate ingests one payload. The notification is sent after the
// repository has released its lock but before notifyIfIdle can run, so a
// re-send never overtakes a newer clean job.
func (f *jobFeed[J]) handleTemplate(payload []byte) (*JobWrapper[J], error) {
	f.received.Add(1)
	now := f.now()
	job, err := f.build(payload, f.ids.Next(), now)
	if err != nil {
		f.rejected.Add(1)
		return nil, err
	}

	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()
	if last := f.repo.LastHeight(); job.Height() < last {
		logger.Warn("job template below current height", "height", job.Height(), "last_height", last)
	}
	w, isClean := f.repo.Insert(job)
	if isClean {
		logger.Info("received new height job", "height", job.Height(), "job", fmt.Sprintf("%x", job.ID()))
		f.notifyLocked(w, now)
	} else if debugLogging {
		logger.Debug("received same height job", "height", job.Height(), "job", fmt.Sprintf("%x", job.ID()))
	}
	return w, nil
}

// notifyLocked must be called with notifyMu held.
func (f *jobFeed[J]) notifyLocked(w *JobWrapper[J], now time.Time) {
	f.notifier.Notify(w)
	f.lastNotifyAt = now

	if f.lastNotifyPath != "" {
		if err := writeLastNotifyTime(f.lastNotifyPath, now); err != nil {
			logger.Warn("write last notify time", "path", f.lastNotifyPath, "error", err)
		}
	}
}

// notifyIfIdle re-sends the latest job when no job went out for a full
// interval. A latest job that is stale or below the highest height seen is
// never re-sent. Reports whether a notification was sent.
func (f *jobFeed[J]) notifyIfIdle() bool {
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()
	now := f.now()
	if now.Sub(f.lastNotifyAt) < f.notifyInterval {
		return false
	}
	w := f.repo.Latest()
	if w == nil || w.IsStale() || w.Job().Height() < f.repo.LastHeight() {
		return false
	}
	f.notifyLocked(w, now)
	return true
}

func (f *jobFeed[J]) expireJobs() int {
	removed := f.repo.ExpireBefore(f.now().Add(-f.maxJobLifetime))
	if removed > 0 && debugLogging {
		logger.Debug("expired jobs", "removed", removed, "remaining", f.repo.Len())
	}
	return removed
}

// Start launches the subscriber loop and the notify/expiry timers.
func (f *jobFeed[J]) Start(ctx context.Context) {
	go f.zmqLoop(ctx)
	go f.timerLoop(ctx)
}

func (f *jobFeed[J]) timerLoop(ctx context.Context) {
	// Tick at a fraction of the interval so the re-notify lands close to
	// interval after the last push.
	notifyTick := max(f.notifyInterval/4, 250*time.Millisecond)
	notifyTicker := time.NewTicker(notifyTick)
	defer notifyTicker.Stop()
	expiryTicker := time.NewTicker(jobExpirySweepInterval)
	defer expiryTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-notifyTicker.C:
			f.notifyIfIdle()
		case <-expiryTicker.C:
			f.expireJobs()
		}
	}
}

func (f *jobFeed[J]) markHealthy() {
	if f.healthy.Swap(true) {
		return
	}
	verb := "connected"
	if f.disconnects.Load() > 0 {
		verb = "reconnected"
	}
	f.reconnects.Add(1)
	logger.Info("job feed "+verb, "addr", f.addr)
}

func (f *jobFeed[J]) markUnhealthy(reason string, err error) {
	fields := []any{"addr", f.addr, "reason", reason}
	if err != nil {
		fields = append(fields, "error", err)
	}
	if f.healthy.Swap(false) {
		f.disconnects.Add(1)
		logger.Warn("job feed unhealthy", fields...)
	} else if err != nil {
		logger.Error("job feed error", fields...)
	}
}

func (f *jobFeed[J]) openSocket() (*zmq4.Socket, error) {
	sub, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		return nil, err
	}
	_ = sub.SetLinger(0)
	setup := []func() error{
		func() error { return sub.SetSubscribe(f.topic) },
		func() error { return sub.SetRcvtimeo(defaultZMQReceiveTimeout) },
		func() error { return sub.SetReconnectIvl(defaultZMQReconnectInterval) },
		func() error { return sub.SetReconnectIvlMax(defaultZMQReconnectMax) },
		func() error { return sub.SetHeartbeatIvl(defaultZMQHeartbeatInterval) },
		func() error { return sub.SetHeartbeatTimeout(defaultZMQHeartbeatTimeout) },
		func() error { return sub.Connect(f.addr) },
	}
	for _, step := range setup {
		if err := step(); err != nil {
			sub.Close()
			return nil, err
		}
	}
	return sub, nil
}

func (f *jobFeed[J]) zmqLoop(ctx context.Context) {
	backoff := defaultZMQRecreateBackoffMin
	for ctx.Err() == nil {
		sub, err := f.openSocket()
		if err != nil {
			f.markUnhealthy("socket", err)
			if sleepContext(ctx, backoff) != nil {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		logger.Info("watching job feed", "addr", f.addr, "topic", f.topic)
		backoff = defaultZMQRecreateBackoffMin

		err = f.receive(ctx, sub)
		sub.Close()
		if err == nil || ctx.Err() != nil {
			return
		}
		f.markUnhealthy("receive", err)
		if sleepContext(ctx, backoff) != nil {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// receive reads until ctx ends (nil) or the socket fails (error).
func (f *jobFeed[J]) receive(ctx context.Context, sub *zmq4.Socket) error {
	for ctx.Err() == nil {
		frames, err := sub.RecvMessageBytes(0)
		if err != nil {
			if isZMQTimeout(err) {
				continue
			}
			return err
		}
		f.markHealthy()
		if len(frames) < 2 {
			logger.Warn("job feed message malformed", "frames", len(frames))
			continue
		}
		if _, err := f.handleTemplate(frames[1]); err != nil {
			logger.Error("job template rejected", "error", err)
		}
	}
	return nil
}

func isZMQTimeout(err error) bool {
	eno := zmq4.AsErrno(err)
	return eno == zmq4.Errno(syscall.EAGAIN) || eno == zmq4.ETIMEDOUT
}

func nextBackoff(d time.Duration) time.Duration {
	return min(d*2, defaultZMQRecreateBackoffMax)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func writeLastNotifyTime(path string, at time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(at.Unix(), 10)+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readLastNotifyTime(path string) (time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, err
	}
	secs, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last notify time: %w", err)
	}
	return time.Unix(secs, 0), nil
}
