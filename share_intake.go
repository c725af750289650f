package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pebbe/zmq4"
)

// shareSubmission is one share forwarded by a stratum frontend after it has
// authorized the worker and parsed the miner's submit call.
type shareSubmission struct {
	RequestID      string   `json:"requestId,omitempty"`
	JobID          uint64   `json:"jobId"`
	UserID         int32    `json:"userId"`
	WorkerFullName string   `json:"workerFullName"`
	Nonce          uint64   `json:"nonce"`
	Height         uint64   `json:"height"`
	EdgeBits       uint32   `json:"edgeBits"`
	Proofs         []uint64 `json:"proofs"`
	Difficulties   []uint64 `json:"difficulties"`
}

// shareResult is published on the share topic for every submission.
type shareResult struct {
	RequestID        string `json:"requestId,omitempty"`
	JobID            uint64 `json:"jobId"`
	UserID           int32  `json:"userId"`
	WorkerFullName   string `json:"workerFullName"`
	Height           uint64 `json:"height"`
	Status           string `json:"status"`
	ShareDiff        uint64 `json:"shareDiff"`
	ScaledDifficulty uint64 `json:"scaledDifficulty"`
	BlockHash        string `json:"blockHash,omitempty"`
	Error            string `json:"error,omitempty"`
}

var (
	errSubmissionTooLarge = errors.New("submission too large")
	errWorkerNameLength   = errors.New("worker name too long")
	errTooManyTiers       = errors.New("too many difficulty tiers")
	errProofLength        = errors.New("proof has wrong length")
)

const numShareStatuses = int(ShareMalformed) + 1

// shareIntake validates submissions pulled from the frontends against the
// job repository and publishes the outcome.
type shareIntake struct {
	listen    string
	workers   int
	repo      *JobRepository[*GrinJob]
	validator *ShareValidator
	results   messagePublisher
	solved    SolvedSharePublisher

	pool *submissionWorkerPool
	done chan struct{}

	received atomic.Uint64
	credited atomic.Uint64
	counts   [numShareStatuses]atomic.Uint64
}

func newShareIntake(cfg Config, repo *JobRepository[*GrinJob], validator *ShareValidator, results messagePublisher, solved SolvedSharePublisher) *shareIntake {
	return &shareIntake{
		listen:    cfg.ShareIntakeListen,
		workers:   cfg.IntakeWorkers,
		repo:      repo,
		validator: validator,
		results:   results,
		solved:    solved,
	}
}

func checkSubmissionLimits(sub *shareSubmission) error {
	switch {
	case len(sub.WorkerFullName) > maxWorkerNameLen:
		return errWorkerNameLength
	case len(sub.Difficulties) > maxDifficultyTiers:
		return errTooManyTiers
	case len(sub.Proofs) != grinProofSize:
		return fmt.Errorf("%w: got %d, want %d", errProofLength, len(sub.Proofs), grinProofSize)
	case sub.EdgeBits < grinMinEdgeBits || sub.EdgeBits > grinMaxEdgeBits:
		return fmt.Errorf("%w: %d", errEdgeBits, sub.EdgeBits)
	}
	return nil
}

// process checks one submission. It never panics on caller input: anything
// Validate would not accept is reported as MALFORMED or JOB_NOT_FOUND. Proof
// shape (length and edge bits) is rejected here as MALFORMED; Validate itself
// hands proofs to the verifier unchanged.
func (si *shareIntake) process(sub shareSubmission) shareResult {
	out := shareResult{
		RequestID:      sub.RequestID,
		JobID:          sub.JobID,
		UserID:         sub.UserID,
		WorkerFullName: sub.WorkerFullName,
		Height:         sub.Height,
	}
	fail := func(status ShareStatus, err error) shareResult {
		si.counts[status].Add(1)
		out.Status = status.String()
		if err != nil {
			out.Error = err.Error()
		}
		return out
	}

	if err := checkSubmissionLimits(&sub); err != nil {
		return fail(ShareMalformed, err)
	}
	w, ok := si.repo.Get(sub.JobID)
	if !ok {
		return fail(ShareJobNotFound, nil)
	}
	tiers := NewDifficultyTiers(sub.Difficulties...)
	if err := checkSharePreconditions(w, tiers); err != nil {
		logger.Warn("share rejected before validation", "job", fmt.Sprintf("%x", sub.JobID), "worker", sub.WorkerFullName, "error", err)
		return fail(ShareMalformed, err)
	}

	job := w.Job()
	if sub.Height != 0 && sub.Height != job.Height() {
		logger.Warn("share height differs from job", "share_height", sub.Height, "job_height", job.Height(), "worker", sub.WorkerFullName)
	}
	share := &GrinShare{
		Nonce:    sub.Nonce,
		Height:   job.Height(),
		EdgeBits: sub.EdgeBits,
		Scaling:  powScaling(job.Height(), sub.EdgeBits, job.PrePow().SecondaryScaling()),
		Proofs:   sub.Proofs,
	}
	res := si.validator.Validate(share, w, tiers, sub.WorkerFullName)
	si.counts[res.Status].Add(1)
	if res.Status.Credited() {
		si.credited.Add(1)
	}

	out.Height = job.Height()
	out.Status = res.Status.String()
	out.ShareDiff = share.ShareDiff
	out.ScaledDifficulty = res.ScaledDifficulty
	if res.Status == ShareSolved {
		out.BlockHash = hex.EncodeToString(res.BlockHash[:])
		worker := workerIdentity{UserID: sub.UserID, FullName: sub.WorkerFullName}
		msg := newSolvedShareMessage(job, share, worker, res.BlockHash)
		if err := si.solved.PublishSolvedShare(msg); err != nil {
			logger.Error("solved share publish failed; queued for replay", "height", msg.Height, "hash", msg.BlockHash, "error", err)
		}
	}
	return out
}

// handlePayload decodes, checks and answers one raw submission.
func (si *shareIntake) handlePayload(payload []byte) shareResult {
	si.received.Add(1)
	var res shareResult
	var sub shareSubmission
	switch {
	case len(payload) > maxSubmissionBytes:
		si.counts[ShareMalformed].Add(1)
		res = shareResult{Status: ShareMalformed.String(), Error: errSubmissionTooLarge.Error()}
	default:
		if err := fastJSONUnmarshal(payload, &sub); err != nil {
			si.counts[ShareMalformed].Add(1)
			res = shareResult{Status: ShareMalformed.String(), Error: fmt.Sprintf("decode submission: %v", err)}
		} else {
			sub.WorkerFullName = strings.TrimSpace(sub.WorkerFullName)
			res = si.process(sub)
		}
	}
	si.publishResult(res)
	return res
}

func (si *shareIntake) publishResult(res shareResult) {
	data, err := fastJSONMarshal(res)
	if err != nil {
		logger.Error("share result marshal", "error", err)
		return
	}
	if err := si.results.Publish(topicShareResult, data); err != nil {
		logger.Warn("share result publish", "job", fmt.Sprintf("%x", res.JobID), "status", res.Status, "error", err)
	}
}

// Counts returns a snapshot of results per status.
func (si *shareIntake) Counts() map[ShareStatus]uint64 {
	out := make(map[ShareStatus]uint64, numShareStatuses)
	for i := range si.counts {
		if n := si.counts[i].Load(); n > 0 {
			out[ShareStatus(i)] = n
		}
	}
	return out
}

// Start binds the PULL socket and dispatches submissions to the worker pool
// until ctx ends. Wait blocks until queued submissions are handled.
func (si *shareIntake) Start(ctx context.Context) {
	si.done = make(chan struct{})
	si.pool = newSubmissionWorkerPool(si.workers, func(t submissionTask) {
		res := si.handlePayload(t.payload)
		if debugLogging {
			logger.Debug("share handled", "status", res.Status, "job", fmt.Sprintf("%x", res.JobID), "elapsed", time.Since(t.receivedAt))
		}
	})
	go si.zmqLoop(ctx)
}

func (si *shareIntake) openSocket() (*zmq4.Socket, error) {
	pull, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, err
	}
	_ = pull.SetLinger(0)
	if err := pull.SetRcvtimeo(defaultZMQReceiveTimeout); err != nil {
		pull.Close()
		return nil, err
	}
	if err := pull.Bind(si.listen); err != nil {
		pull.Close()
		return nil, err
	}
	return pull, nil
}

// Wait returns once the socket loop has exited and the worker pool has
// drained. It returns immediately if Start was never called.
func (si *shareIntake) Wait() {
	if si.done != nil {
		<-si.done
	}
}

func (si *shareIntake) zmqLoop(ctx context.Context) {
	defer close(si.done)
	defer si.pool.stop()
	backoff := defaultZMQRecreateBackoffMin
	for ctx.Err() == nil {
		pull, err := si.openSocket()
		if err != nil {
			logger.Error("share intake socket", "addr", si.listen, "error", err)
			if sleepContext(ctx, backoff) != nil {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		logger.Info("share intake listening", "addr", si.listen)
		backoff = defaultZMQRecreateBackoffMin

		err = si.receive(ctx, pull)
		pull.Close()
		if err == nil || ctx.Err() != nil {
			return
		}
		logger.Error("share intake receive", "addr", si.listen, "error", err)
		if sleepContext(ctx, backoff) != nil {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

func (si *shareIntake) receive(ctx context.Context, pull *zmq4.Socket) error {
	for ctx.Err() == nil {
		payload, err := pull.RecvBytes(0)
		if err != nil {
			if isZMQTimeout(err) {
				continue
			}
			return err
		}
		si.pool.submit(submissionTask{payload: payload, receivedAt: time.Now()})
	}
	return nil
}
