package main

import (
	"database/sql"
	"sync/atomic"
	"time"
)

// SolvedSharePublisher hands a solved block to the downstream submitter.
// It is called once per share classified as solved.
type SolvedSharePublisher interface {
	PublishSolvedShare(msg SolvedShareMessage) error
}

// solvedSharePublisher persists each solved share before publishing it so a
// publish failure is retried by the replayer.
type solvedSharePublisher struct {
	db       *sql.DB
	pub      messagePublisher
	onSolved func(SolvedShareMessage)
	now      func() time.Time

	published  atomic.Uint64
	failed     atomic.Uint64
	duplicates atomic.Uint64
}

func newSolvedSharePublisher(db *sql.DB, pub messagePublisher, onSolved func(SolvedShareMessage)) *solvedSharePublisher {
	return &solvedSharePublisher{
		db:       db,
		pub:      pub,
		onSolved: onSolved,
		now:      time.Now,
	}
}

func (p *solvedSharePublisher) PublishSolvedShare(msg SolvedShareMessage) error {
	payload, err := fastJSONMarshal(msg)
	if err != nil {
		return err
	}
	now := p.now()
	if p.db != nil {
		inserted, err := insertSolvedShare(p.db, msg, payload, now)
		switch {
		case err != nil:
			// The share is still published without a record.
			logger.Error("solved share persist", "hash", msg.BlockHash, "height", msg.Height, "error", err)
		case !inserted:
			p.duplicates.Add(1)
			logger.Warn("duplicate solved share ignored", "hash", msg.BlockHash, "height", msg.Height, "worker", msg.WorkerFullName)
			return nil
		}
	}

	if err := p.publish(msg.BlockHash, payload, now); err != nil {
		return err
	}
	logger.Info("solved share published", "hash", msg.BlockHash, "height", msg.Height, "worker", msg.WorkerFullName)
	if p.onSolved != nil {
		p.onSolved(msg)
	}
	return nil
}

func (p *solvedSharePublisher) publish(blockHash string, payload []byte, now time.Time) error {
	if err := p.pub.Publish(topicSolvedShare, payload); err != nil {
		p.failed.Add(1)
		if markErr := markSolvedShareFailed(p.db, blockHash, err, now); markErr != nil {
			logger.Warn("solved share status update", "hash", blockHash, "error", markErr)
		}
		logger.Error("solved share publish", "hash", blockHash, "error", err)
		return err
	}
	p.published.Add(1)
	if err := markSolvedSharePublished(p.db, blockHash, now); err != nil {
		logger.Warn("solved share status update", "hash", blockHash, "error", err)
	}
	return nil
}
