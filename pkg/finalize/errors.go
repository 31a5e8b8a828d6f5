// Copyright 2025 Certen Protocol

package finalize

import "errors"

var (
	// ErrUnknownRegister is returned when a command reads a register
	// that was never bound by a prior command or finalize input.
	ErrUnknownRegister = errors.New("finalize: unknown register")
	// ErrUnknownLabel is returned when a Branch command targets a label
	// with no matching Position command.
	ErrUnknownLabel = errors.New("finalize: unknown label")
	// ErrNotIntegral is returned when an arithmetic command operates on
	// a non-KindUint64 operand.
	ErrNotIntegral = errors.New("finalize: operand is not an integer")
	// ErrUnknownOpcode is returned when the CommandRegistry has no
	// executor registered for an opcode.
	ErrUnknownOpcode = errors.New("finalize: unknown opcode")
	// ErrOpcodeExists is returned by CommandRegistry.Register when the
	// opcode already has an executor.
	ErrOpcodeExists = errors.New("finalize: opcode already registered")
)
