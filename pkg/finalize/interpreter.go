// Copyright 2025 Certen Protocol
//
// Package finalize implements the Finalize Interpreter (spec.md §4.2):
// evaluation of one transition's finalize scope against a typed
// register file and an overlay StateHandle.
package finalize

import "github.com/certen/speculator-chain/pkg/ledgertypes"

// Interpreter runs finalize scopes command-by-command, using registry
// to dispatch each opcode.
type Interpreter struct {
	registry *CommandRegistry
}

// NewInterpreter builds an Interpreter against a CommandRegistry. Pass
// DefaultRegistry() for the standard command set.
func NewInterpreter(registry *CommandRegistry) *Interpreter {
	return &Interpreter{registry: registry}
}

// Run evaluates scope's command list for one transition of program,
// binding finalizeInputs to the scope's declared inputs and executing
// against handle. It returns an error the moment any command fails,
// which the Speculator treats as "this transaction aborts" (spec.md
// §4.2, "the first failing command aborts the transaction").
func (ip *Interpreter) Run(program ledgertypes.ProgramID, scope ledgertypes.FinalizeScope, finalizeInputs []ledgertypes.Value, handle StateHandle) error {
	regs, err := NewRegisterFile(scope.Inputs, finalizeInputs)
	if err != nil {
		return err
	}

	labels := make(map[string]int, len(scope.Commands))
	for i, cmd := range scope.Commands {
		if cmd.Op == ledgertypes.OpcodePosition && cmd.Label != "" {
			labels[cmd.Label] = i
		}
	}

	ctx := &ExecContext{Program: program, Registers: regs, Handle: handle}

	pc := 0
	for pc < len(scope.Commands) {
		cmd := scope.Commands[pc]
		exec, err := ip.registry.Lookup(cmd.Op)
		if err != nil {
			return err
		}

		jump, err := exec(ctx, cmd)
		if err != nil {
			return err
		}

		if jump != "" {
			target, ok := labels[jump]
			if !ok {
				return &LabelError{Label: jump}
			}
			pc = target
			continue
		}
		pc++
	}

	return nil
}

// LabelError reports a branch to an undeclared label.
type LabelError struct {
	Label string
}

func (e *LabelError) Error() string {
	return ErrUnknownLabel.Error() + ": " + e.Label
}

func (e *LabelError) Unwrap() error { return ErrUnknownLabel }
