package core

import (
	"encoding/hex"
	"fmt"
)

// ValidateBlock checks a candidate block against its claimed predecessor.
// Checks run in priority order and fail fast; the returned error wraps the
// kind of the first failing check. A nil return means the candidate may be
// appended after the predecessor.
func ValidateBlock(candidate, predecessor Block) error {
	if candidate.PreviousHash != predecessor.Hash {
		return fmt.Errorf("block %d: %w", candidate.ID, ErrBrokenLink)
	}

	digest, err := hex.DecodeString(candidate.Hash)
	if err != nil {
		return fmt.Errorf("block %d: %w: %v", candidate.ID, ErrInvalidEncoding, err)
	}
	if !MeetsDifficulty(digest) {
		return fmt.Errorf("block %d: %w", candidate.ID, ErrInsufficientWork)
	}

	if candidate.ID != predecessor.ID+1 {
		return fmt.Errorf("block %d: %w: predecessor is %d", candidate.ID, ErrOutOfSequence, predecessor.ID)
	}

	computed := hex.EncodeToString(CalculateHash(
		candidate.ID, candidate.Timestamp, candidate.PreviousHash, candidate.Data, candidate.Nonce))
	if computed != candidate.Hash {
		return fmt.Errorf("block %d: %w", candidate.ID, ErrHashMismatch)
	}

	return nil
}

// ValidateChain checks every adjacent pair of the sequence. Index 0 is the
// trusted genesis anchor and is never checked. Empty and single-element
// sequences are trivially valid.
func ValidateChain(chain []Block) error {
	for i := 1; i < len(chain); i++ {
		if err := ValidateBlock(chain[i], chain[i-1]); err != nil {
			return err
		}
	}
	return nil
}
