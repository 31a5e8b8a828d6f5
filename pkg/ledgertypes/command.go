// Copyright 2025 Certen Protocol

package ledgertypes

// Opcode names one finalize bytecode instruction. The set below
// supplements spec.md's "sole command that mutates state is Store" with
// the rest of the small command set original_source/synthesizer's
// finalize bytecode actually offers (see SPEC_FULL.md §4.2); Store and
// Remove are the only two that mutate the overlay.
type Opcode string

const (
	OpcodeStore      Opcode = "store"
	OpcodeRemove     Opcode = "remove"
	OpcodeGet        Opcode = "get"
	OpcodeGetOrUse   Opcode = "get_or_use"
	OpcodeContains   Opcode = "contains"
	OpcodeAdd        Opcode = "add"
	OpcodeSub        Opcode = "sub"
	OpcodeIsEq       Opcode = "is_eq"
	OpcodeIsNeq      Opcode = "is_neq"
	OpcodePosition   Opcode = "position"
	OpcodeBranchEq   Opcode = "branch_eq"
	OpcodeBranchNeq  Opcode = "branch_neq"
)

// Operand is either a register reference or an immediate literal.
type Operand struct {
	Register   Identifier
	Literal    Value
	IsRegister bool
}

// RegisterOperand builds an Operand that reads a register.
func RegisterOperand(id Identifier) Operand {
	return Operand{Register: id, IsRegister: true}
}

// LiteralOperand builds an Operand carrying an immediate value.
func LiteralOperand(v Value) Operand {
	return Operand{Literal: v}
}

// Command is one instruction in a finalize scope's command list.
type Command struct {
	Op Opcode

	// Store/Remove/Get/GetOrUse/Contains address a mapping by name.
	Mapping MappingName

	// KeyOperand addresses the mapping key for Store/Remove/Get/
	// GetOrUse/Contains.
	KeyOperand Operand

	// ValueOperand carries the value to Store, or the default operand
	// for GetOrUse.
	ValueOperand Operand

	// Operands holds the two operands of a binary command
	// (Add/Sub/IsEq/IsNeq).
	Operands [2]Operand

	// Destination names the register a Get/GetOrUse/Contains/Add/Sub/
	// IsEq/IsNeq result is written to.
	Destination Identifier

	// Label names a Position marker; Target names the Position a
	// Branch jumps to.
	Label  string
	Target string
}

// FinalizeScope is the finalize-function body attached to a transition:
// an ordered list of input register names to bind, and the command list
// to execute against them.
type FinalizeScope struct {
	Inputs   []Identifier
	Commands []Command
}
