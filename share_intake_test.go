package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pebbe/zmq4"
)

type recordingSolvedPublisher struct {
	msgs []SolvedShareMessage
	err  error
}

func (p *recordingSolvedPublisher) PublishSolvedShare(msg SolvedShareMessage) error {
	p.msgs = append(p.msgs, msg)
	return p.err
}

func newTestIntake(t *testing.T, fv *fakeVerifier) (*shareIntake, *recordingPublisher, *recordingSolvedPublisher) {
	t.Helper()
	repo := NewJobRepository[*GrinJob]()
	repo.Insert(testGrinJob(t, 5, 1000, 1_000_000))
	results := &recordingPublisher{}
	solved := &recordingSolvedPublisher{}
	si := newShareIntake(defaultConfig(), repo, NewShareValidator(fv, ShareValidatorOptions{}), results, solved)
	return si, results, solved
}

func testSubmission() shareSubmission {
	return shareSubmission{
		RequestID:      "r1",
		JobID:          5,
		UserID:         7,
		WorkerFullName: "alice.rig1",
		Nonce:          99,
		Height:         1000,
		EdgeBits:       grinSecondPowEdgeBits,
		Proofs:         make([]uint64, grinProofSize),
		Difficulties:   []uint64{1, 10},
	}
}

func TestShareIntakeProcess(t *testing.T) {
	// Secondary scaling of the test pre-pow is 1856, so tier 10 needs 18560.
	tests := []struct {
		name     string
		mutate   func(*shareSubmission)
		valid    bool
		diff     uint64
		want     ShareStatus
		wantDiff uint64
	}{
		{name: "accept at top tier", valid: true, diff: 20_000, want: ShareAccept, wantDiff: 10},
		{name: "accept at lower tier", valid: true, diff: 5_000, want: ShareAccept, wantDiff: 1},
		{name: "low difficulty", valid: true, diff: 100, want: ShareLowDifficulty},
		{name: "invalid proof", valid: false, diff: 20_000, want: ShareInvalidSolution},
		{name: "unknown job", mutate: func(s *shareSubmission) { s.JobID = 6 }, valid: true, diff: 20_000, want: ShareJobNotFound},
		{name: "short proof", mutate: func(s *shareSubmission) { s.Proofs = s.Proofs[:10] }, valid: true, want: ShareMalformed},
		{name: "edge bits out of range", mutate: func(s *shareSubmission) { s.EdgeBits = 64 }, valid: true, want: ShareMalformed},
		{name: "no tiers", mutate: func(s *shareSubmission) { s.Difficulties = nil }, valid: true, want: ShareMalformed},
		{name: "too many tiers", mutate: func(s *shareSubmission) {
			s.Difficulties = make([]uint64, maxDifficultyTiers+1)
		}, valid: true, want: ShareMalformed},
		{name: "long worker name", mutate: func(s *shareSubmission) {
			s.WorkerFullName = strings.Repeat("w", maxWorkerNameLen+1)
		}, valid: true, want: ShareMalformed},
		{name: "height mismatch is tolerated", mutate: func(s *shareSubmission) { s.Height = 999 }, valid: true, diff: 20_000, want: ShareAccept, wantDiff: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			si, _, solved := newTestIntake(t, &fakeVerifier{valid: tt.valid, diff: tt.diff})
			sub := testSubmission()
			if tt.mutate != nil {
				tt.mutate(&sub)
			}
			res := si.process(sub)
			if res.Status != tt.want.String() {
				t.Fatalf("status = %s, want %s (error %q)", res.Status, tt.want, res.Error)
			}
			if res.ShareDiff != tt.wantDiff {
				t.Fatalf("share diff = %d, want %d", res.ShareDiff, tt.wantDiff)
			}
			if res.RequestID != "r1" {
				t.Fatalf("request id not echoed")
			}
			if len(solved.msgs) != 0 {
				t.Fatalf("non-solved share was published as solved")
			}
			if got := si.Counts()[tt.want]; got != 1 {
				t.Fatalf("count for %s = %d", tt.want, got)
			}
			if credited := si.credited.Load() == 1; credited != tt.want.Credited() {
				t.Fatalf("credited = %d for %s", si.credited.Load(), tt.want)
			}
		})
	}
}

func TestShareIntakeSolvedPublishes(t *testing.T) {
	hash := chainhash.Hash{0xab, 0xcd}
	fv := &fakeVerifier{valid: true, diff: 2_000_000, hash: hash}
	si, _, solved := newTestIntake(t, fv)
	sub := testSubmission()
	sub.Height = 0

	res := si.process(sub)
	if res.Status != ShareSolved.String() {
		t.Fatalf("status = %s", res.Status)
	}
	if res.Height != 1000 || fv.diffHeight != 1000 {
		t.Fatalf("share height should come from the job: result %d verifier %d", res.Height, fv.diffHeight)
	}
	if res.ScaledDifficulty != 2_000_000 || !strings.HasPrefix(res.BlockHash, "abcd") {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(solved.msgs) != 1 {
		t.Fatalf("solved messages = %d", len(solved.msgs))
	}
	msg := solved.msgs[0]
	if msg.Height != 1000 || msg.Nonce != 99 || msg.UserID != 7 || msg.WorkerFullName != "alice.rig1" || msg.BlockHash != res.BlockHash {
		t.Fatalf("unexpected solved message %+v", msg)
	}
	if msg.EdgeBits != grinSecondPowEdgeBits || len(msg.Proofs) != grinProofSize {
		t.Fatalf("proof not carried: %+v", msg)
	}
}

func TestShareIntakeSolvedPublishFailureKeepsResult(t *testing.T) {
	si, _, solved := newTestIntake(t, &fakeVerifier{valid: true, diff: 2_000_000})
	solved.err = errors.New("socket down")
	if res := si.process(testSubmission()); res.Status != ShareSolved.String() {
		t.Fatalf("status = %s", res.Status)
	}
}

func TestShareIntakeStaleJob(t *testing.T) {
	si, _, _ := newTestIntake(t, &fakeVerifier{valid: true, diff: 20_000})
	si.repo.Insert(testGrinJob(t, 6, 1001, 1_000_000))
	if res := si.process(testSubmission()); res.Status != ShareStale.String() {
		t.Fatalf("status = %s", res.Status)
	}
}

func TestShareIntakeHandlePayload(t *testing.T) {
	si, results, _ := newTestIntake(t, &fakeVerifier{valid: true, diff: 20_000})

	payload, err := json.Marshal(testSubmission())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if res := si.handlePayload(payload); res.Status != ShareAccept.String() {
		t.Fatalf("status = %s (%s)", res.Status, res.Error)
	}
	if res := si.handlePayload([]byte("{not json")); res.Status != ShareMalformed.String() || res.Error == "" {
		t.Fatalf("bad json: %+v", res)
	}
	big := make([]byte, maxSubmissionBytes+1)
	if res := si.handlePayload(big); res.Error != errSubmissionTooLarge.Error() {
		t.Fatalf("oversized: %+v", res)
	}

	if len(results.messages) != 3 {
		t.Fatalf("published %d results", len(results.messages))
	}
	for _, m := range results.messages {
		if m.topic != topicShareResult {
			t.Fatalf("result on topic %q", m.topic)
		}
	}
	var first shareResult
	if err := json.Unmarshal(results.messages[0].payload, &first); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if first.Status != "ACCEPT" || first.JobID != 5 || first.WorkerFullName != "alice.rig1" || first.ShareDiff != 10 {
		t.Fatalf("unexpected result %+v", first)
	}
	if si.received.Load() != 3 || si.Counts()[ShareMalformed] != 2 {
		t.Fatalf("received=%d counts=%v", si.received.Load(), si.Counts())
	}
}

func TestShareIntakeTrimsWorkerName(t *testing.T) {
	si, _, _ := newTestIntake(t, &fakeVerifier{valid: true, diff: 20_000})
	sub := testSubmission()
	sub.WorkerFullName = "  alice.rig1 \n"
	payload, _ := json.Marshal(sub)
	if res := si.handlePayload(payload); res.WorkerFullName != "alice.rig1" {
		t.Fatalf("worker = %q", res.WorkerFullName)
	}
}

func TestSubmissionWorkerPoolRecoversFromPanic(t *testing.T) {
	var handled atomic.Int32
	var mu sync.Mutex
	var seen []string
	pool := newSubmissionWorkerPool(2, func(task submissionTask) {
		if string(task.payload) == "boom" {
			panic("boom")
		}
		mu.Lock()
		seen = append(seen, string(task.payload))
		mu.Unlock()
		handled.Add(1)
	})
	pool.submit(submissionTask{payload: []byte("a"), receivedAt: time.Now()})
	pool.submit(submissionTask{payload: []byte("boom"), receivedAt: time.Now()})
	pool.submit(submissionTask{payload: []byte("b"), receivedAt: time.Now()})
	pool.stop()
	pool.stop()

	if handled.Load() != 2 || len(seen) != 2 {
		t.Fatalf("handled %d tasks: %v", handled.Load(), seen)
	}
}

// chanPublisher hands every published message to the test goroutine.
type chanPublisher struct {
	ch chan recordedMessage
}

func (p *chanPublisher) Publish(topic string, payload []byte) error {
	p.ch <- recordedMessage{topic: topic, payload: append([]byte(nil), payload...)}
	return nil
}

func TestShareIntakeWaitDrainsBeforeReturning(t *testing.T) {
	si, _, _ := newTestIntake(t, &fakeVerifier{valid: true, diff: 20_000})
	si.Wait()

	results := &chanPublisher{ch: make(chan recordedMessage, 4)}
	si.results = results
	si.listen = "inproc://share-intake-wait"
	si.workers = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	si.Start(ctx)

	push, err := zmq4.NewSocket(zmq4.PUSH)
	if err != nil {
		t.Fatalf("push socket: %v", err)
	}
	defer push.Close()
	_ = push.SetLinger(0)
	if err := push.Connect(si.listen); err != nil {
		t.Fatalf("connect: %v", err)
	}
	payload, _ := json.Marshal(testSubmission())
	if _, err := push.SendBytes(payload, 0); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case m := <-results.ch:
		if m.topic != topicShareResult {
			t.Fatalf("result on topic %q", m.topic)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("submission not handled")
	}

	cancel()
	waited := make(chan struct{})
	go func() {
		si.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatalf("Wait did not return after cancel")
	}
	if si.Counts()[ShareAccept] != 1 {
		t.Fatalf("counts = %v", si.Counts())
	}
}
