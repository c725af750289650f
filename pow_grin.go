package main

import (
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/crypto/blake2b"
)

// grinVerifier is the mainnet ProofVerifier: cuckarooz on the secondary
// edge size and cuckatoo everywhere else.
type grinVerifier struct {
	// proofSize overrides grinProofSize when non-zero.
	proofSize int
}

func (g grinVerifier) size() int {
	if g.proofSize > 0 {
		return g.proofSize
	}
	return grinProofSize
}

func (g grinVerifier) Verify(prePow []byte, nonce uint64, edgeBits uint32, proofs []uint64) bool {
	return g.verify(prePow, nonce, edgeBits, proofs) == nil
}

func (g grinVerifier) verify(prePow []byte, nonce uint64, edgeBits uint32, proofs []uint64) error {
	k := cuckooKeys(prePow, nonce)
	if edgeBits == grinSecondPowEdgeBits {
		return verifyCuckarooz(k, edgeBits, proofs, g.size())
	}
	return verifyCuckatoo(k, edgeBits, proofs, g.size())
}

func (grinVerifier) ProofHash(edgeBits uint32, proofs []uint64) chainhash.Hash {
	return chainhash.Hash(blake2b.Sum256(packProofNonces(edgeBits, proofs)))
}

func (g grinVerifier) ScaledDifficulty(height uint64, edgeBits uint32, secondaryScaling uint32, proofs []uint64) uint64 {
	h := g.ProofHash(edgeBits, proofs)
	return scaledDifficulty(powScaling(height, edgeBits, secondaryScaling), h)
}

// packProofNonces writes each nonce as edgeBits bits, least significant bit
// first, into a little-endian bit vector.
func packProofNonces(edgeBits uint32, proofs []uint64) []byte {
	nbits := int(edgeBits) * len(proofs)
	out := make([]byte, (nbits+7)/8)
	for n, nonce := range proofs {
		for b := 0; b < int(edgeBits); b++ {
			if nonce&(1<<uint(b)) == 0 {
				continue
			}
			pos := n*int(edgeBits) + b
			out[pos/8] |= 1 << uint(pos%8)
		}
	}
	return out
}

// graphWeight favours larger graphs; C31 weight decays to zero over the 30
// weeks following the first year.
func graphWeight(height uint64, edgeBits uint32) uint64 {
	if edgeBits < grinBaseEdgeBits || edgeBits > grinMaxEdgeBits {
		return 0
	}
	xprEdgeBits := uint64(edgeBits)
	if edgeBits == 31 && height >= grinYearHeight {
		decay := 1 + (height-grinYearHeight)/grinWeekHeight
		if decay >= xprEdgeBits {
			xprEdgeBits = 0
		} else {
			xprEdgeBits -= decay
		}
	}
	return (2 << (edgeBits - grinBaseEdgeBits)) * xprEdgeBits
}

func powScaling(height uint64, edgeBits uint32, secondaryScaling uint32) uint64 {
	if edgeBits == grinSecondPowEdgeBits {
		return uint64(secondaryScaling)
	}
	return graphWeight(height, edgeBits)
}

// scaledDifficulty is (scaling << 64) / u64be(hash[0:8]), saturating.
func scaledDifficulty(scaling uint64, h chainhash.Hash) uint64 {
	denom := binary.BigEndian.Uint64(h[:8])
	if denom == 0 {
		denom = 1
	}
	if scaling >= denom {
		return math.MaxUint64
	}
	q, _ := bits.Div64(scaling, 0, denom)
	return q
}
