package main

import (
	"testing"
	"time"
)

func TestHumanDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0 seconds"},
		{500 * time.Millisecond, "0 seconds"},
		{90 * time.Second, "1 minute 30 seconds"},
		{3*time.Hour + 25*time.Minute + 10*time.Second, "3 hours 25 minutes"},
	}
	for _, tt := range tests {
		if got := humanDuration(tt.in); got != tt.want {
			t.Fatalf("humanDuration(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatShareCounts(t *testing.T) {
	if got := formatShareCounts(nil); got != "none" {
		t.Fatalf("empty counts = %q", got)
	}
	got := formatShareCounts(map[ShareStatus]uint64{ShareMalformed: 1, ShareAccept: 12, ShareStale: 3})
	if want := "stale=3 accept=12 malformed=1"; got != want {
		t.Fatalf("formatShareCounts = %q, want %q", got, want)
	}
}

func TestStratumHealthStatus(t *testing.T) {
	repo := NewJobRepository[*GrinJob]()
	repo.now = func() time.Time { return testNow }

	tests := []struct {
		name      string
		repo      *JobRepository[*GrinJob]
		insert    bool
		connected bool
		age       time.Duration
		want      string
	}{
		{name: "no repository", want: "no job repository"},
		{name: "no job", repo: repo, connected: true, want: "no job template available"},
		{name: "feed down", repo: repo, insert: true, want: "job feed disconnected"},
		{name: "stalled", repo: repo, connected: true, age: 10 * time.Minute, want: "job updates stalled"},
		{name: "healthy", repo: repo, connected: true, age: time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.insert {
				repo.Insert(testGrinJob(t, 1, 1000, 1_000_000))
			}
			h := stratumHealthStatus(tt.repo, tt.connected, 5*time.Minute, testNow.Add(tt.age))
			if h.Healthy != (tt.want == "") || h.Reason != tt.want {
				t.Fatalf("health = %+v, want reason %q", h, tt.want)
			}
			if tt.want == "job updates stalled" && h.Detail != "last job 10 minutes ago" {
				t.Fatalf("detail = %q", h.Detail)
			}
		})
	}
}

func TestStatusReporterAttrs(t *testing.T) {
	feed, clock, _ := newTestFeed(t)
	if _, err := feed.handleTemplate(testTemplatePayload(1000, 5000, 1)); err != nil {
		t.Fatalf("template: %v", err)
	}
	feed.healthy.Store(true)
	clock.Advance(2 * time.Minute)

	r := &statusReporter{
		startedAt: testNow,
		now:       clock.Now,
		maxJobAge: feed.maxJobLifetime,
		repo:      feed.repo,
		feed:      feed,
		notifier:  feed.notifier,
	}
	attrs := r.attrs()
	got := make(map[string]any, len(attrs)/2)
	for i := 0; i+1 < len(attrs); i += 2 {
		got[attrs[i].(string)] = attrs[i+1]
	}
	if got["uptime"] != "2 minutes" || got["latest_job_age"] != "2 minutes" {
		t.Fatalf("ages: uptime=%v latest=%v", got["uptime"], got["latest_job_age"])
	}
	if got["height"] != uint64(1000) || got["jobs"] != 1 || got["stratum_healthy"] != true {
		t.Fatalf("unexpected attrs %v", got)
	}
	if got["notified"] != uint64(1) {
		t.Fatalf("notified = %v", got["notified"])
	}
}
