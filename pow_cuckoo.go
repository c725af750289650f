package main

import (
	"encoding/binary"
	"errors"
	"math/bits"

	"golang.org/x/crypto/blake2b"
)

// Cuckoo-family graph verification. Each proof is a sorted list of edge
// indices; both endpoints of every edge come from siphash-2-4 keyed by the
// blake2b hash of the header pre-image and nonce.

var (
	errProofSize      = errors.New("wrong proof size")
	errEdgeBits       = errors.New("edge bits out of range")
	errEdgeTooBig     = errors.New("edge index too big")
	errEdgesUnordered = errors.New("edges not ascending")
	errEndpoints      = errors.New("endpoints do not match up")
	errBranchInCycle  = errors.New("branch in cycle")
	errCycleDeadEnd   = errors.New("cycle dead ends")
	errShortCycle     = errors.New("cycle too short")
)

const (
	sipRotE         = 21
	edgeBlockBits   = 6
	edgeBlockSize   = 1 << edgeBlockBits
	edgeBlockMask   = edgeBlockSize - 1
	cuckarooMinBits = edgeBlockBits
)

type sipKeys [4]uint64

// cuckooKeys derives siphash keys from blake2b-256(prePow || nonce_be64).
func cuckooKeys(prePow []byte, nonce uint64) sipKeys {
	buf := make([]byte, len(prePow)+8)
	copy(buf, prePow)
	binary.BigEndian.PutUint64(buf[len(prePow):], nonce)
	sum := blake2b.Sum256(buf)
	var k sipKeys
	for i := range k {
		k[i] = binary.LittleEndian.Uint64(sum[i*8:])
	}
	return k
}

// sipState is the cuckoo variant of siphash-2-4: keys are used verbatim
// without the standard initialization constants.
type sipState struct {
	v0, v1, v2, v3 uint64
}

func newSipState(k sipKeys) sipState {
	return sipState{k[0], k[1], k[2], k[3]}
}

func (s *sipState) round(rotE int) {
	s.v0 += s.v1
	s.v2 += s.v3
	s.v1 = bits.RotateLeft64(s.v1, 13)
	s.v3 = bits.RotateLeft64(s.v3, 16)
	s.v1 ^= s.v0
	s.v3 ^= s.v2
	s.v0 = bits.RotateLeft64(s.v0, 32)
	s.v2 += s.v1
	s.v0 += s.v3
	s.v1 = bits.RotateLeft64(s.v1, 17)
	s.v3 = bits.RotateLeft64(s.v3, rotE)
	s.v1 ^= s.v2
	s.v3 ^= s.v0
	s.v2 = bits.RotateLeft64(s.v2, 32)
}

func (s *sipState) hash(nonce uint64, rotE int) {
	s.v3 ^= nonce
	s.round(rotE)
	s.round(rotE)
	s.v0 ^= nonce
	s.v2 ^= 0xff
}

// digest finalizes a copy so the state can keep absorbing nonces.
func (s sipState) digest() uint64 {
	for i := 0; i < 4; i++ {
		s.round(sipRotE)
	}
	return s.v0 ^ s.v1 ^ s.v2 ^ s.v3
}

func siphash24(k sipKeys, nonce uint64) uint64 {
	s := newSipState(k)
	s.hash(nonce, sipRotE)
	return s.digest()
}

// siphashBlock hashes the 64-nonce block containing nonce and folds the
// later entries of the block into the result.
func siphashBlock(k sipKeys, nonce uint64, xorAll bool) uint64 {
	nonce0 := nonce &^ edgeBlockMask
	var block [edgeBlockSize]uint64
	s := newSipState(k)
	for i := range block {
		s.hash(nonce0+uint64(i), sipRotE)
		block[i] = s.digest()
	}
	idx := nonce & edgeBlockMask
	out := block[idx]
	from := uint64(edgeBlockMask)
	if xorAll || idx == edgeBlockMask {
		from = idx + 1
	}
	for i := from; i < edgeBlockSize; i++ {
		out ^= block[i]
	}
	return out
}

func checkProofShape(edgeBits uint32, proofs []uint64, proofSize int) error {
	if len(proofs) != proofSize {
		return errProofSize
	}
	if edgeBits < grinMinEdgeBits || edgeBits > grinMaxEdgeBits {
		return errEdgeBits
	}
	edgeMask := uint64(1)<<edgeBits - 1
	for i, e := range proofs {
		if e > edgeMask {
			return errEdgeTooBig
		}
		if i > 0 && e <= proofs[i-1] {
			return errEdgesUnordered
		}
	}
	return nil
}

// verifyCuckatoo checks a cycle in the bipartite graph whose U and V
// endpoints are siphash(2e) and siphash(2e+1), masked to edgeBits.
func verifyCuckatoo(k sipKeys, edgeBits uint32, proofs []uint64, proofSize int) error {
	if err := checkProofShape(edgeBits, proofs, proofSize); err != nil {
		return err
	}
	nodeMask := uint64(1)<<edgeBits - 1
	uvs := make([]uint64, 2*proofSize)
	var xor0, xor1 uint64
	for n, e := range proofs {
		uvs[2*n] = siphash24(k, 2*e) & nodeMask
		uvs[2*n+1] = siphash24(k, 2*e+1) & nodeMask
		xor0 ^= uvs[2*n]
		xor1 ^= uvs[2*n+1]
	}
	if xor0|xor1 != 0 {
		return errEndpoints
	}
	// U nodes sit at even indices and V nodes at odd ones, so stepping by
	// two only compares nodes on the same side.
	return walkCycle(uvs, proofSize, 2)
}

// verifyCuckarooz checks a cycle in the non-bipartite graph whose edge
// endpoints are the low and high halves of a block siphash, masked to
// edgeBits+1 bits.
func verifyCuckarooz(k sipKeys, edgeBits uint32, proofs []uint64, proofSize int) error {
	if edgeBits < cuckarooMinBits {
		return errEdgeBits
	}
	if err := checkProofShape(edgeBits, proofs, proofSize); err != nil {
		return err
	}
	nodeMask := uint64(1)<<(edgeBits+1) - 1
	uvs := make([]uint64, 2*proofSize)
	var xoruv uint64
	for n, e := range proofs {
		edge := siphashBlock(k, e, true)
		uvs[2*n] = edge & nodeMask
		uvs[2*n+1] = (edge >> 32) & nodeMask
		xoruv ^= uvs[2*n] ^ uvs[2*n+1]
	}
	if xoruv != 0 {
		return errEndpoints
	}
	return walkCycle(uvs, proofSize, 1)
}

// walkCycle follows the cycle starting at edge 0 and requires it to visit
// exactly proofSize edges without branching.
func walkCycle(uvs []uint64, proofSize int, step int) error {
	n, i := 0, 0
	for {
		j := i
		for k := (i + step) % len(uvs); k != i; k = (k + step) % len(uvs) {
			if uvs[k] != uvs[i] {
				continue
			}
			if j != i {
				return errBranchInCycle
			}
			j = k
		}
		if j == i {
			return errCycleDeadEnd
		}
		i = j ^ 1
		n++
		if i == 0 {
			break
		}
	}
	if n != proofSize {
		return errShortCycle
	}
	return nil
}
