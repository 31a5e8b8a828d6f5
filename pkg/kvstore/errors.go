// Copyright 2025 Certen Protocol

package kvstore

import "errors"

var (
	// ErrProgramNotFound is returned when a program id has never been
	// registered with RegisterProgram.
	ErrProgramNotFound = errors.New("kvstore: program not found")
	// ErrMappingNotFound is returned when a mapping name is not declared
	// on the addressed program.
	ErrMappingNotFound = errors.New("kvstore: mapping not found")
	// ErrProgramExists is returned by RegisterProgram when the program
	// id is already registered (spec.md I2, program ids are unique).
	ErrProgramExists = errors.New("kvstore: program already registered")
	// ErrKeyIndexNotFound is returned when a key id has no assigned
	// key_index in a mapping.
	ErrKeyIndexNotFound = errors.New("kvstore: key id has no index")
	// ErrCorruptRecord is returned when a persisted record fails to
	// decode.
	ErrCorruptRecord = errors.New("kvstore: corrupt persisted record")
)
