package main

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MiningJob is what the repository, notifier and feed need from a chain's
// job type. Implementations must be immutable once created.
type MiningJob interface {
	ID() uint64
	Height() uint64
}

var (
	errPrePowLength = errors.New("pre-pow has unexpected length")
	errPrePowHex    = errors.New("pre-pow is not valid hex")
)

// PrePow is the Grin block header serialized up to (excluding) the nonce and
// the cuckoo proof.
type PrePow struct {
	raw []byte
}

func parsePrePow(hexStr string) (PrePow, error) {
	hexStr = strings.TrimSpace(hexStr)
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return PrePow{}, fmt.Errorf("%w: %v", errPrePowHex, err)
	}
	if len(raw) != grinPrePowSize {
		return PrePow{}, fmt.Errorf("%w: got %d bytes, want %d", errPrePowLength, len(raw), grinPrePowSize)
	}
	return PrePow{raw: raw}, nil
}

func (p PrePow) Bytes() []byte {
	return p.raw
}

// Height is the big-endian header height following the 2-byte version.
func (p PrePow) Height() uint64 {
	if len(p.raw) < 10 {
		return 0
	}
	return binary.BigEndian.Uint64(p.raw[2:10])
}

// SecondaryScaling is the trailing big-endian u32 of the pre-pow.
func (p PrePow) SecondaryScaling() uint32 {
	if len(p.raw) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(p.raw[len(p.raw)-4:])
}

// GrinJob is one unit of work handed to miners.
type GrinJob struct {
	id         uint64
	height     uint64
	prePow     PrePow
	prePowStr  string
	difficulty uint64
	nodeJobID  uint64
	createdAt  time.Time
}

func (j *GrinJob) ID() uint64 { return j.id }
func (j *GrinJob) Height() uint64 { return j.height }
func (j *GrinJob) PrePow() PrePow { return j.prePow }
func (j *GrinJob) PrePowHex() string { return j.prePowStr }
func (j *GrinJob) NetworkDifficulty() uint64 { return j.difficulty }
func (j *GrinJob) NodeJobID() uint64 { return j.nodeJobID }
func (j *GrinJob) CreatedAt() time.Time { return j.createdAt }

// JobWrapper pairs an immutable job with its staleness flag. The flag only
// moves from fresh to stale.
type JobWrapper[J MiningJob] struct {
	job     J
	isClean bool
	stale   atomic.Bool
	addedAt time.Time
}

func newJobWrapper[J MiningJob](job J, isClean bool, now time.Time) *JobWrapper[J] {
	return &JobWrapper[J]{job: job, isClean: isClean, addedAt: now}
}

func (w *JobWrapper[J]) Job() J { return w.job }
func (w *JobWrapper[J]) IsClean() bool { return w.isClean }
func (w *JobWrapper[J]) IsStale() bool { return w.stale.Load() }
func (w *JobWrapper[J]) AddedAt() time.Time { return w.addedAt }

func (w *JobWrapper[J]) markStale() {
	w.stale.Store(true)
}

// jobIDGenerator hands out ids of the form unix-seconds<<32 | counter. Ids
// stay strictly increasing across restarts as long as the clock does not go
// backwards by more than the process downtime.
type jobIDGenerator struct {
	mu   sync.Mutex
	last uint64
	now  func() time.Time
}

func newJobIDGenerator() *jobIDGenerator {
	return &jobIDGenerator{now: time.Now}
}

func (g *jobIDGenerator) Next() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := uint64(g.now().Unix()) << 32
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}
