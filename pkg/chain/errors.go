// Copyright 2025 Certen Protocol

package chain

import "errors"

// Guard-violation errors (spec.md §7 kind 1: fatal, propagate), one per
// add_next guard G1-G8 plus accessor lookup failures.
var (
	ErrBadHeight                = errors.New("chain: block has incorrect height")
	ErrHeightExists              = errors.New("chain: height already exists")
	ErrBadPreviousHash          = errors.New("chain: block has incorrect previous hash")
	ErrHashExists               = errors.New("chain: block hash already exists")
	ErrBadTimestamp             = errors.New("chain: block timestamp is not after the current block")
	ErrDuplicateTransaction     = errors.New("chain: duplicate transaction in block")
	ErrDuplicateSerialNumber    = errors.New("chain: duplicate serial number in block")
	ErrDuplicateCommitment      = errors.New("chain: duplicate commitment in block")
	ErrTransactionsRootMismatch = errors.New("chain: transactions root does not match block transactions")

	ErrHeightNotFound    = errors.New("chain: height not found")
	ErrHeightOutOfRange  = errors.New("chain: height exceeds latest height")
	ErrProgramNotFound   = errors.New("chain: program not found")
	ErrProgramExists     = errors.New("chain: program already registered")
	ErrAmbiguousMatch    = errors.New("chain: more than one match for unique lookup")
	ErrCommitmentNotFound = errors.New("chain: commitment not found in any stored transaction")
	ErrCorruptRecord     = errors.New("chain: corrupt durable record")
)
