package main

import (
	"encoding/binary"
	"errors"
	"math/bits"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ProofVerifier is the proof-of-work primitive set a chain plugs into the
// validator. Implementations must be safe for concurrent use and free of side
// effects.
type ProofVerifier interface {
	// Verify reports whether proofs is a structurally valid cycle for the
	// header pre-image and nonce.
	Verify(prePow []byte, nonce uint64, edgeBits uint32, proofs []uint64) bool
	// ProofHash is the block hash committed to by the proof.
	ProofHash(edgeBits uint32, proofs []uint64) chainhash.Hash
	// ScaledDifficulty is the proof's difficulty after applying the height and
	// edge-bits dependent scaling.
	ScaledDifficulty(height uint64, edgeBits uint32, secondaryScaling uint32, proofs []uint64) uint64
}

// ShareCheckResult carries what a caller needs to publish a solved block.
// BlockHash and ScaledDifficulty are zero when no proof hash was computed.
type ShareCheckResult struct {
	Status           ShareStatus
	BlockHash        chainhash.Hash
	ScaledDifficulty uint64
	ValidProof       bool
}

type ShareValidatorOptions struct {
	// EnableSimulator treats every proof as meeting the worker's highest tier
	// and skips rejecting structurally invalid proofs.
	EnableSimulator bool
	// SubmitInvalidBlock classifies every non-stale, non-rejected share as
	// solved. Testing only.
	SubmitInvalidBlock bool
}

// ShareValidator classifies Grin shares. It holds no mutable state.
type ShareValidator struct {
	verifier ProofVerifier
	opts     ShareValidatorOptions
}

func NewShareValidator(verifier ProofVerifier, opts ShareValidatorOptions) *ShareValidator {
	if verifier == nil {
		verifier = grinVerifier{}
	}
	return &ShareValidator{verifier: verifier, opts: opts}
}

var (
	errNilJobWrapper        = errors.New("job wrapper is nil")
	errZeroNetworkDiff      = errors.New("job network difficulty is zero")
	errNoDifficultyTiers    = errors.New("worker has no difficulty tiers")
	errPreconditionViolated = errors.New("share precondition violated")
)

// checkSharePreconditions reports caller contract violations that Validate
// does not guard against. Callers run it before Validate.
func checkSharePreconditions(w *JobWrapper[*GrinJob], tiers DifficultyTiers) error {
	switch {
	case w == nil || w.Job() == nil:
		return errors.Join(errPreconditionViolated, errNilJobWrapper)
	case w.Job().NetworkDifficulty() == 0:
		return errors.Join(errPreconditionViolated, errZeroNetworkDiff)
	case tiers.Len() == 0:
		return errors.Join(errPreconditionViolated, errNoDifficultyTiers)
	}
	return nil
}

// Validate classifies share against the job it was mined on and writes the
// outcome into share. workerFullName is only used for logging.
//
// Checks run in a fixed order and the first match wins: stale job, invalid
// proof, solved block, highest satisfied difficulty tier, low difficulty. A
// solved share is never matched against the worker's tiers.
//
// The job's network difficulty must be non-zero; Validate panics otherwise.
// See checkSharePreconditions.
func (v *ShareValidator) Validate(share *GrinShare, w *JobWrapper[*GrinJob], tiers DifficultyTiers, workerFullName string) ShareCheckResult {
	share.resetOutputs()
	job := w.Job()

	if debugLogging {
		logger.Debug("checking share", "nonce", share.Nonce, "pre_pow", job.PrePowHex(), "edge_bits", share.EdgeBits)
	}

	if w.IsStale() {
		share.Status = ShareStale
		return ShareCheckResult{Status: ShareStale}
	}

	prePow := job.PrePow()
	valid := v.verifier.Verify(prePow.Bytes(), share.Nonce, share.EdgeBits, share.Proofs)
	if !valid && !v.opts.EnableSimulator {
		share.Status = ShareInvalidSolution
		return ShareCheckResult{Status: ShareInvalidSolution}
	}

	res := ShareCheckResult{ValidProof: valid}
	res.BlockHash = v.verifier.ProofHash(share.EdgeBits, share.Proofs)
	share.HashPrefix = cheapHash(res.BlockHash)
	res.ScaledDifficulty = v.verifier.ScaledDifficulty(share.Height, share.EdgeBits, prePow.SecondaryScaling(), share.Proofs)

	networkDiff := job.NetworkDifficulty()
	if debugLogging {
		logger.Debug("compare share difficulty", "share_diff", res.ScaledDifficulty, "network_diff", networkDiff)
	}

	if valid && res.ScaledDifficulty/networkDiff >= highDiffShareRatio {
		logger.Info("high diff share", "share_diff", res.ScaledDifficulty, "network_diff", networkDiff, "worker", workerFullName)
	}

	if v.opts.SubmitInvalidBlock || (valid && res.ScaledDifficulty >= networkDiff) {
		logger.Info("solution found", "share_diff", res.ScaledDifficulty, "network_diff", networkDiff, "worker", workerFullName)
		share.Status = ShareSolved
		res.Status = ShareSolved
		logger.Info("solved share", "share", share.String())
		return res
	}

	if v.opts.EnableSimulator && tiers.Len() > 0 {
		share.ShareDiff = tiers.Max()
		share.Status = ShareAccept
		res.Status = ShareAccept
		return res
	}
	for _, d := range tiers.Descending() {
		// A product above 64 bits is out of reach for any share.
		hi, scaledTier := bits.Mul64(d, share.Scaling)
		if debugLogging {
			logger.Debug("compare share difficulty", "share_diff", res.ScaledDifficulty, "job_diff", scaledTier)
		}
		if hi == 0 && res.ScaledDifficulty >= scaledTier {
			share.ShareDiff = d
			share.Status = ShareAccept
			res.Status = ShareAccept
			return res
		}
	}

	share.Status = ShareLowDifficulty
	res.Status = ShareLowDifficulty
	return res
}

// cheapHash is the little-endian value of the first 8 hash bytes.
func cheapHash(h chainhash.Hash) uint64 {
	return binary.LittleEndian.Uint64(h[:8])
}
