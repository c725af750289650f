package main

import (
	"sync"
	"time"
)

// JobRepository owns the live job wrappers of one chain.
//
// Insert and Get share one RWMutex: a reader that can see a new clean job is
// guaranteed to see every older wrapper already marked stale. Validation never
// runs under the lock; callers fetch a wrapper and work on it lock-free.
type JobRepository[J MiningJob] struct {
	mu         sync.RWMutex
	jobs       map[uint64]*JobWrapper[J]
	latest     *JobWrapper[J]
	lastHeight uint64
	now        func() time.Time
}

func NewJobRepository[J MiningJob]() *JobRepository[J] {
	return &JobRepository[J]{
		jobs: make(map[uint64]*JobWrapper[J]),
		now:  time.Now,
	}
}

// Insert wraps job and stores it under job.ID(). A job whose height is above
// every height seen so far is clean: all existing wrappers are marked stale
// before it becomes visible. Ids are trusted to be unique; a repeated id
// replaces the earlier wrapper.
//
// Notifying miners is left to the caller and must happen after Insert
// returns.
func (r *JobRepository[J]) Insert(job J) (*JobWrapper[J], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	isClean := job.Height() > r.lastHeight
	if isClean {
		r.lastHeight = job.Height()
	}
	w := newJobWrapper(job, isClean, r.now())
	if isClean {
		for _, old := range r.jobs {
			old.markStale()
		}
	}
	r.jobs[job.ID()] = w
	r.latest = w
	return w, isClean
}

func (r *JobRepository[J]) Get(id uint64) (*JobWrapper[J], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.jobs[id]
	return w, ok
}

// Latest returns the most recently inserted wrapper, or nil.
func (r *JobRepository[J]) Latest() *JobWrapper[J] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

func (r *JobRepository[J]) LastHeight() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastHeight
}

func (r *JobRepository[J]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// ExpireBefore drops wrappers inserted before cutoff and returns how many were
// removed. The latest wrapper is always kept. Sessions still holding an
// evicted wrapper can keep using it; only lookups by id stop finding it.
func (r *JobRepository[J]) ExpireBefore(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, w := range r.jobs {
		if w == r.latest || !w.addedAt.Before(cutoff) {
			continue
		}
		delete(r.jobs, id)
		removed++
	}
	return removed
}
