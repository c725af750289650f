package main

import (
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// SolvedShareMessage is published for every solved block. Field names are
// consumed by the block submitter and must not change.
type SolvedShareMessage struct {
	PrePow         string   `json:"prePow"`
	Height         uint64   `json:"height"`
	EdgeBits       uint32   `json:"edgeBits"`
	Nonce          uint64   `json:"nonce"`
	Proofs         []uint64 `json:"proofs"`
	UserID         int32    `json:"userId"`
	WorkerID       int64    `json:"workerId"`
	WorkerFullName string   `json:"workerFullName"`
	BlockHash      string   `json:"blockHash"`
}

// workerIdentity is what the session layer knows about the submitting worker.
type workerIdentity struct {
	UserID   int32
	FullName string
}

func (w workerIdentity) WorkerID() int64 {
	return workerHashID(w.FullName)
}

func newSolvedShareMessage(job *GrinJob, share *GrinShare, worker workerIdentity, blockHash chainhash.Hash) SolvedShareMessage {
	proofs := make([]uint64, len(share.Proofs))
	copy(proofs, share.Proofs)
	return SolvedShareMessage{
		PrePow:         job.PrePowHex(),
		Height:         job.Height(),
		EdgeBits:       share.EdgeBits,
		Nonce:          share.Nonce,
		Proofs:         proofs,
		UserID:         worker.UserID,
		WorkerID:       worker.WorkerID(),
		WorkerFullName: filterWorkerName(worker.FullName),
		BlockHash:      hex.EncodeToString(blockHash[:]),
	}
}

// filterWorkerName drops every byte outside [A-Za-z0-9] and "-.:_|^/".
func filterWorkerName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case strings.IndexByte("-.:_|^/", c) >= 0:
			b.WriteByte(c)
		}
	}
	return b.String()
}
