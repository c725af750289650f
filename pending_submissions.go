package main

import (
	"context"
	"time"
)

const pendingReplayBatch = 100

// startSolvedShareReplayer periodically re-publishes solved shares that are
// still pending in the state DB, e.g. because the result socket failed when
// they were found. Each row stays pending until a publish succeeds.
func startSolvedShareReplayer(ctx context.Context, p *solvedSharePublisher) {
	if p == nil || p.db == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(solvedShareReplayInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.replayPending(ctx)
			}
		}
	}()
}

// replayPending returns the number of rows published in this pass.
func (p *solvedSharePublisher) replayPending(ctx context.Context) int {
	recs, err := pendingSolvedShares(p.db, pendingReplayBatch)
	if err != nil {
		logger.Warn("pending solved share scan", "error", err)
		return 0
	}
	replayed := 0
	for _, rec := range recs {
		if ctx.Err() != nil {
			return replayed
		}
		if err := p.publish(rec.BlockHash, rec.Payload, p.now()); err != nil {
			logger.Error("pending solved share publish", "height", rec.Height, "hash", rec.BlockHash, "attempts", rec.Attempts+1, "error", err)
			continue
		}
		replayed++
		logger.Info("pending solved share published", "height", rec.Height, "hash", rec.BlockHash, "age", p.now().Sub(rec.CreatedAt).Round(time.Second))
	}
	return replayed
}
