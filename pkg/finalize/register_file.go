// Copyright 2025 Certen Protocol

package finalize

import (
	"fmt"

	"github.com/certen/speculator-chain/pkg/ledgertypes"
)

// RegisterFile holds one finalize scope invocation's bound registers:
// the finalize inputs, plus whatever Get/GetOrUse/Contains/Add/Sub/IsEq/
// IsNeq commands write as they run (spec.md §4.2, "a typed register
// file").
type RegisterFile struct {
	values map[ledgertypes.Identifier]ledgertypes.Value
}

// NewRegisterFile binds scope's declared inputs to the finalize inputs
// carried on the transition, in order.
func NewRegisterFile(inputs []ledgertypes.Identifier, finalizeInputs []ledgertypes.Value) (*RegisterFile, error) {
	if len(inputs) != len(finalizeInputs) {
		return nil, fmt.Errorf("finalize: scope declares %d inputs, transition carries %d", len(inputs), len(finalizeInputs))
	}
	rf := &RegisterFile{values: make(map[ledgertypes.Identifier]ledgertypes.Value, len(inputs))}
	for i, name := range inputs {
		rf.values[name] = finalizeInputs[i]
	}
	return rf, nil
}

// Set binds a register to a value, overwriting any prior binding.
func (rf *RegisterFile) Set(id ledgertypes.Identifier, v ledgertypes.Value) {
	rf.values[id] = v
}

// Get resolves a register's current value.
func (rf *RegisterFile) Get(id ledgertypes.Identifier) (ledgertypes.Value, error) {
	v, ok := rf.values[id]
	if !ok {
		return ledgertypes.Value{}, fmt.Errorf("%w: %s", ErrUnknownRegister, id)
	}
	return v, nil
}

// Resolve reads an Operand, looking it up in the register file if it is
// a register reference, or returning its literal value directly.
func (rf *RegisterFile) Resolve(op ledgertypes.Operand) (ledgertypes.Value, error) {
	if op.IsRegister {
		return rf.Get(op.Register)
	}
	return op.Literal, nil
}
