package main

import (
	"fmt"
	"slices"
)

// ShareStatus is the outcome of checking one submission.
type ShareStatus int

const (
	ShareStatusUnknown ShareStatus = iota
	ShareStale
	ShareInvalidSolution
	ShareSolved
	ShareAccept
	ShareLowDifficulty

	// Assigned by the intake for submissions that never reach the validator.
	ShareJobNotFound
	ShareMalformed
)

var shareStatusNames = map[ShareStatus]string{
	ShareStatusUnknown:   "UNKNOWN",
	ShareStale:           "STALE",
	ShareInvalidSolution: "INVALID_SOLUTION",
	ShareSolved:          "SOLVED",
	ShareAccept:          "ACCEPT",
	ShareLowDifficulty:   "LOW_DIFFICULTY",
	ShareJobNotFound:     "JOB_NOT_FOUND",
	ShareMalformed:       "MALFORMED",
}

func (s ShareStatus) String() string {
	if name, ok := shareStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ShareStatus(%d)", int(s))
}

// Credited reports whether the share earns credit at its share difficulty.
func (s ShareStatus) Credited() bool {
	return s == ShareAccept || s == ShareSolved
}

// GrinShare is one submission being checked. Nonce through Proofs are inputs;
// Status, ShareDiff and HashPrefix are written by ShareValidator.Validate.
type GrinShare struct {
	Nonce    uint64
	Height   uint64
	EdgeBits uint32
	Scaling  uint64
	Proofs   []uint64

	Status     ShareStatus
	ShareDiff  uint64
	HashPrefix uint64
}

func (s *GrinShare) String() string {
	return fmt.Sprintf("share(nonce=%016x height=%d edge_bits=%d scaling=%d status=%s share_diff=%d hash_prefix=%016x)",
		s.Nonce, s.Height, s.EdgeBits, s.Scaling, s.Status, s.ShareDiff, s.HashPrefix)
}

func (s *GrinShare) resetOutputs() {
	s.Status = ShareStatusUnknown
	s.ShareDiff = 0
	s.HashPrefix = 0
}

// DifficultyTiers is the set of difficulties currently valid for one worker,
// kept unique and ascending. Several tiers coexist while a retarget is in
// flight so shares mined at the old target still count.
type DifficultyTiers struct {
	diffs []uint64
}

func NewDifficultyTiers(diffs ...uint64) DifficultyTiers {
	var t DifficultyTiers
	for _, d := range diffs {
		t.Add(d)
	}
	return t
}

// Add inserts d, ignoring zero and values already present.
func (t *DifficultyTiers) Add(d uint64) {
	if d == 0 {
		return
	}
	i, found := slices.BinarySearch(t.diffs, d)
	if found {
		return
	}
	t.diffs = slices.Insert(t.diffs, i, d)
}

func (t DifficultyTiers) Len() int {
	return len(t.diffs)
}

// Max returns the highest tier, or 0 for an empty set.
func (t DifficultyTiers) Max() uint64 {
	if len(t.diffs) == 0 {
		return 0
	}
	return t.diffs[len(t.diffs)-1]
}

// Descending returns the tiers highest first.
func (t DifficultyTiers) Descending() []uint64 {
	out := slices.Clone(t.diffs)
	slices.Reverse(out)
	return out
}
