package core

import "errors"

// Validation failure kinds. Block-level failures are recovered locally: the
// offending block or chain is discarded and the reason surfaced to the caller.
// ErrNoValidChain is the one condition that aborts a chain adoption outright.
var (
	// ErrBrokenLink means the candidate's previous_hash does not match the
	// predecessor's hash.
	ErrBrokenLink = errors.New("previous hash does not match predecessor")

	// ErrInsufficientWork means the candidate's digest does not carry the
	// required run of leading zero bits.
	ErrInsufficientWork = errors.New("hash does not meet difficulty target")

	// ErrOutOfSequence means the candidate's id is not the successor of the
	// predecessor's id.
	ErrOutOfSequence = errors.New("id does not follow predecessor")

	// ErrHashMismatch means the claimed hash is not the hash of the claimed
	// contents.
	ErrHashMismatch = errors.New("hash does not match block contents")

	// ErrInvalidEncoding means a hash field is not well-formed hex.
	ErrInvalidEncoding = errors.New("hash is not valid hex")

	// ErrNoValidChain means both the local and the remote chain failed full
	// validation during fork selection; no safe choice exists.
	ErrNoValidChain = errors.New("local and remote chains are both invalid")
)
