package main

import "time"

// stratumHealth says whether frontends can hand out work right now.
type stratumHealth struct {
	Healthy bool
	Reason  string
	Detail  string
}

// stratumHealthStatus requires a job, a connected feed, and a latest job
// younger than maxAge.
func stratumHealthStatus(repo *JobRepository[*GrinJob], feedConnected bool, maxAge time.Duration, now time.Time) stratumHealth {
	if now.IsZero() {
		now = time.Now()
	}
	if repo == nil {
		return stratumHealth{Healthy: false, Reason: "no job repository"}
	}
	w := repo.Latest()
	if w == nil {
		return stratumHealth{Healthy: false, Reason: "no job template available"}
	}
	if !feedConnected {
		return stratumHealth{Healthy: false, Reason: "job feed disconnected"}
	}
	age := now.Sub(w.AddedAt())
	if maxAge > 0 && age > maxAge {
		return stratumHealth{Healthy: false, Reason: "job updates stalled", Detail: "last job " + humanDuration(age) + " ago"}
	}
	return stratumHealth{Healthy: true}
}
