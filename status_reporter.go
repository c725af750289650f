package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hako/durafmt"
)

// statusReporter logs a one-line pool summary on a fixed interval.
type statusReporter struct {
	startedAt time.Time
	now       func() time.Time
	maxJobAge time.Duration

	repo     *JobRepository[*GrinJob]
	feed     *jobFeed[*GrinJob]
	notifier *jobNotifier[*GrinJob]
	intake   *shareIntake
	solved   *solvedSharePublisher
}

func humanDuration(d time.Duration) string {
	if d < time.Second {
		return "0 seconds"
	}
	return durafmt.Parse(d.Truncate(time.Second)).LimitFirstN(2).String()
}

// formatShareCounts renders non-zero counters in status order.
func formatShareCounts(counts map[ShareStatus]uint64) string {
	var parts []string
	for s := ShareStale; s <= ShareMalformed; s++ {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", strings.ToLower(s.String()), n))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

func (r *statusReporter) attrs() []any {
	now := r.now()
	attrs := []any{"uptime", humanDuration(now.Sub(r.startedAt))}
	if r.repo != nil {
		attrs = append(attrs, "jobs", r.repo.Len(), "height", r.repo.LastHeight())
		if w := r.repo.Latest(); w != nil {
			attrs = append(attrs, "latest_job_age", humanDuration(now.Sub(w.AddedAt())))
		}
	}
	if r.feed != nil {
		attrs = append(attrs,
			"feed_healthy", r.feed.healthy.Load(),
			"feed_received", r.feed.received.Load(),
			"feed_rejected", r.feed.rejected.Load(),
			"feed_disconnects", r.feed.disconnects.Load(),
		)
		health := stratumHealthStatus(r.repo, r.feed.healthy.Load(), r.maxJobAge, now)
		attrs = append(attrs, "stratum_healthy", health.Healthy)
		if !health.Healthy {
			attrs = append(attrs, "stratum_reason", health.Reason)
			if health.Detail != "" {
				attrs = append(attrs, "stratum_detail", health.Detail)
			}
		}
	}
	if r.notifier != nil {
		notified, dropped := r.notifier.Stats()
		attrs = append(attrs, "subscribers", r.notifier.Subscribers(), "notified", notified, "notify_dropped", dropped)
	}
	if r.intake != nil {
		attrs = append(attrs, "shares_received", r.intake.received.Load(), "shares_credited", r.intake.credited.Load(), "shares", formatShareCounts(r.intake.Counts()))
	}
	if r.solved != nil {
		attrs = append(attrs,
			"solved_published", r.solved.published.Load(),
			"solved_failed", r.solved.failed.Load(),
			"solved_duplicates", r.solved.duplicates.Load(),
		)
		if r.solved.db != nil {
			if counts, err := countSolvedShares(r.solved.db); err == nil {
				attrs = append(attrs, "solved_pending", counts[solvedShareStatusPending])
			}
		}
	}
	return attrs
}

func (r *statusReporter) run(ctx context.Context) {
	ticker := time.NewTicker(statusLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("pool status", r.attrs()...)
		}
	}
}
