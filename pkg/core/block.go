package core

import (
	"crypto/sha256"
	"encoding/json"
	"math/bits"
)

// DifficultyBits is the proof-of-work target: an accepted block's digest must
// carry at least this many leading zero bits. Fixed for the lifetime of the
// process; every peer on the network must agree on it.
const DifficultyBits = 16

// Block is a single entry of the hash-linked ledger. Blocks are immutable once
// accepted; the field set and JSON tags are the wire contract shared with
// every other peer.
type Block struct {
	ID           uint64 `json:"id"`
	Hash         string `json:"hash"`
	PreviousHash string `json:"previous_hash"`
	Timestamp    int64  `json:"timestamp"`
	Data         string `json:"data"`
	Nonce        uint64 `json:"nonce"`
}

// hashPayload is the canonical serialization fed to the digest. Keys must stay
// in lexicographic order; reordering them changes every hash on the network.
type hashPayload struct {
	Data         string `json:"data"`
	ID           uint64 `json:"id"`
	Nonce        uint64 `json:"nonce"`
	PreviousHash string `json:"previous_hash"`
	Timestamp    int64  `json:"timestamp"`
}

// CalculateHash computes the SHA-256 content digest over the five hashed
// fields of a block. Deterministic: identical inputs always produce the same
// digest.
func CalculateHash(id uint64, timestamp int64, previousHash, data string, nonce uint64) []byte {
	payload, _ := json.Marshal(hashPayload{
		Data:         data,
		ID:           id,
		Nonce:        nonce,
		PreviousHash: previousHash,
		Timestamp:    timestamp,
	})
	sum := sha256.Sum256(payload)
	return sum[:]
}

// MeetsDifficulty reports whether a raw digest satisfies the proof-of-work
// admission rule. Expensive to satisfy, trivial to verify.
func MeetsDifficulty(digest []byte) bool {
	return leadingZeroBits(digest) >= DifficultyBits
}

func leadingZeroBits(digest []byte) int {
	n := 0
	for _, b := range digest {
		if b == 0 {
			n += 8
			continue
		}
		n += bits.LeadingZeros8(b)
		break
	}
	return n
}
