// Copyright 2025 Certen Protocol

package finalize

import (
	"testing"

	"github.com/certen/speculator-chain/pkg/field"
	"github.com/certen/speculator-chain/pkg/ledgertypes"
)

func fieldFromString(s string) field.Field {
	return field.HashBytes("test-account", []byte(s))
}

// fakeHandle is a minimal in-memory StateHandle for exercising the
// interpreter without pulling in pkg/speculator's overlay.
type fakeHandle struct {
	values map[string]ledgertypes.Value
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{values: make(map[string]ledgertypes.Value)}
}

func scopedKey(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, key ledgertypes.Value) string {
	return string(program) + "/" + string(mapping) + "/" + string(key.Serialize())
}

func (h *fakeHandle) GetValue(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, key ledgertypes.Value) (ledgertypes.Value, bool, error) {
	v, ok := h.values[scopedKey(program, mapping, key)]
	return v, ok, nil
}

func (h *fakeHandle) ContainsValue(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, key ledgertypes.Value) (bool, error) {
	_, ok := h.values[scopedKey(program, mapping, key)]
	return ok, nil
}

func (h *fakeHandle) SetValue(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, key, value ledgertypes.Value) error {
	h.values[scopedKey(program, mapping, key)] = value
	return nil
}

func (h *fakeHandle) RemoveValue(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, key ledgertypes.Value) error {
	delete(h.values, scopedKey(program, mapping, key))
	return nil
}

const testProgram ledgertypes.ProgramID = "token"
const testMapping ledgertypes.MappingName = "balances"

func TestInterpreter_StoreThenGet(t *testing.T) {
	handle := newFakeHandle()
	ip := NewInterpreter(DefaultRegistry())

	scope := ledgertypes.FinalizeScope{
		Inputs: []ledgertypes.Identifier{"account", "amount"},
		Commands: []ledgertypes.Command{
			{Op: ledgertypes.OpcodeStore, Mapping: testMapping,
				KeyOperand:   ledgertypes.RegisterOperand("account"),
				ValueOperand: ledgertypes.RegisterOperand("amount")},
			{Op: ledgertypes.OpcodeGet, Mapping: testMapping,
				KeyOperand:  ledgertypes.RegisterOperand("account"),
				Destination: "balance"},
		},
	}
	inputs := []ledgertypes.Value{ledgertypes.FieldValue(fieldFromString("alice")), ledgertypes.UintValue(100)}

	if err := ip.Run(testProgram, scope, inputs, handle); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got, ok, err := handle.GetValue(testProgram, testMapping, inputs[0])
	if err != nil || !ok {
		t.Fatalf("expected stored value, ok=%v err=%v", ok, err)
	}
	if !got.Equal(ledgertypes.UintValue(100)) {
		t.Fatalf("stored value mismatch: got %+v", got)
	}
}

func TestInterpreter_GetMissingKeyFails(t *testing.T) {
	handle := newFakeHandle()
	ip := NewInterpreter(DefaultRegistry())

	scope := ledgertypes.FinalizeScope{
		Inputs: []ledgertypes.Identifier{"account"},
		Commands: []ledgertypes.Command{
			{Op: ledgertypes.OpcodeGet, Mapping: testMapping,
				KeyOperand:  ledgertypes.RegisterOperand("account"),
				Destination: "balance"},
		},
	}
	inputs := []ledgertypes.Value{ledgertypes.FieldValue(fieldFromString("bob"))}

	if err := ip.Run(testProgram, scope, inputs, handle); err == nil {
		t.Fatalf("expected error reading an absent key")
	}
}

func TestInterpreter_GetOrUseDefaultsOnMiss(t *testing.T) {
	handle := newFakeHandle()
	ip := NewInterpreter(DefaultRegistry())

	scope := ledgertypes.FinalizeScope{
		Inputs: []ledgertypes.Identifier{"account"},
		Commands: []ledgertypes.Command{
			{Op: ledgertypes.OpcodeGetOrUse, Mapping: testMapping,
				KeyOperand:   ledgertypes.RegisterOperand("account"),
				ValueOperand: ledgertypes.LiteralOperand(ledgertypes.UintValue(0)),
				Destination:  "balance"},
		},
	}
	inputs := []ledgertypes.Value{ledgertypes.FieldValue(fieldFromString("carol"))}

	if err := ip.Run(testProgram, scope, inputs, handle); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestInterpreter_TransferDebitsAndCredits(t *testing.T) {
	handle := newFakeHandle()
	ip := NewInterpreter(DefaultRegistry())

	alice := ledgertypes.FieldValue(fieldFromString("alice"))
	bob := ledgertypes.FieldValue(fieldFromString("bob"))
	if err := handle.SetValue(testProgram, testMapping, alice, ledgertypes.UintValue(100)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	scope := ledgertypes.FinalizeScope{
		Inputs: []ledgertypes.Identifier{"from", "to", "amount"},
		Commands: []ledgertypes.Command{
			{Op: ledgertypes.OpcodeGet, Mapping: testMapping,
				KeyOperand: ledgertypes.RegisterOperand("from"), Destination: "from_balance"},
			{Op: ledgertypes.OpcodeSub,
				Operands:    [2]ledgertypes.Operand{ledgertypes.RegisterOperand("from_balance"), ledgertypes.RegisterOperand("amount")},
				Destination: "from_new"},
			{Op: ledgertypes.OpcodeStore, Mapping: testMapping,
				KeyOperand: ledgertypes.RegisterOperand("from"), ValueOperand: ledgertypes.RegisterOperand("from_new")},
			{Op: ledgertypes.OpcodeGetOrUse, Mapping: testMapping,
				KeyOperand:   ledgertypes.RegisterOperand("to"),
				ValueOperand: ledgertypes.LiteralOperand(ledgertypes.UintValue(0)),
				Destination:  "to_balance"},
			{Op: ledgertypes.OpcodeAdd,
				Operands:    [2]ledgertypes.Operand{ledgertypes.RegisterOperand("to_balance"), ledgertypes.RegisterOperand("amount")},
				Destination: "to_new"},
			{Op: ledgertypes.OpcodeStore, Mapping: testMapping,
				KeyOperand: ledgertypes.RegisterOperand("to"), ValueOperand: ledgertypes.RegisterOperand("to_new")},
		},
	}
	inputs := []ledgertypes.Value{alice, bob, ledgertypes.UintValue(40)}

	if err := ip.Run(testProgram, scope, inputs, handle); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	fromBal, _, _ := handle.GetValue(testProgram, testMapping, alice)
	toBal, _, _ := handle.GetValue(testProgram, testMapping, bob)
	if !fromBal.Equal(ledgertypes.UintValue(60)) {
		t.Errorf("from balance mismatch: got %+v, want 60", fromBal)
	}
	if !toBal.Equal(ledgertypes.UintValue(40)) {
		t.Errorf("to balance mismatch: got %+v, want 40", toBal)
	}
}

func TestInterpreter_SubUnderflowAborts(t *testing.T) {
	handle := newFakeHandle()
	ip := NewInterpreter(DefaultRegistry())

	scope := ledgertypes.FinalizeScope{
		Inputs: []ledgertypes.Identifier{"a", "b"},
		Commands: []ledgertypes.Command{
			{Op: ledgertypes.OpcodeSub,
				Operands:    [2]ledgertypes.Operand{ledgertypes.RegisterOperand("a"), ledgertypes.RegisterOperand("b")},
				Destination: "result"},
		},
	}
	inputs := []ledgertypes.Value{ledgertypes.UintValue(5), ledgertypes.UintValue(10)}

	if err := ip.Run(testProgram, scope, inputs, handle); err == nil {
		t.Fatalf("expected underflow to abort the scope")
	}
}

func TestInterpreter_BranchSkipsOnInequality(t *testing.T) {
	handle := newFakeHandle()
	ip := NewInterpreter(DefaultRegistry())

	account := ledgertypes.FieldValue(fieldFromString("dave"))
	scope := ledgertypes.FinalizeScope{
		Inputs: []ledgertypes.Identifier{"a", "b", "account"},
		Commands: []ledgertypes.Command{
			{Op: ledgertypes.OpcodeBranchNeq,
				Operands: [2]ledgertypes.Operand{ledgertypes.RegisterOperand("a"), ledgertypes.RegisterOperand("b")},
				Target:   "skip"},
			{Op: ledgertypes.OpcodeStore, Mapping: testMapping,
				KeyOperand: ledgertypes.RegisterOperand("account"), ValueOperand: ledgertypes.LiteralOperand(ledgertypes.UintValue(1))},
			{Op: ledgertypes.OpcodePosition, Label: "skip"},
		},
	}
	inputs := []ledgertypes.Value{ledgertypes.UintValue(1), ledgertypes.UintValue(2), account}

	if err := ip.Run(testProgram, scope, inputs, handle); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if ok, _ := handle.ContainsValue(testProgram, testMapping, account); ok {
		t.Fatalf("expected branch to skip the store")
	}
}

func TestInterpreter_UnknownLabelFails(t *testing.T) {
	handle := newFakeHandle()
	ip := NewInterpreter(DefaultRegistry())

	scope := ledgertypes.FinalizeScope{
		Inputs: []ledgertypes.Identifier{"a", "b"},
		Commands: []ledgertypes.Command{
			{Op: ledgertypes.OpcodeBranchEq,
				Operands: [2]ledgertypes.Operand{ledgertypes.RegisterOperand("a"), ledgertypes.RegisterOperand("b")},
				Target:   "nowhere"},
		},
	}
	inputs := []ledgertypes.Value{ledgertypes.UintValue(1), ledgertypes.UintValue(1)}

	err := ip.Run(testProgram, scope, inputs, handle)
	if err == nil {
		t.Fatalf("expected unknown label error")
	}
}

func TestInterpreter_RemoveClearsKey(t *testing.T) {
	handle := newFakeHandle()
	ip := NewInterpreter(DefaultRegistry())
	account := ledgertypes.FieldValue(fieldFromString("erin"))
	if err := handle.SetValue(testProgram, testMapping, account, ledgertypes.UintValue(5)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	scope := ledgertypes.FinalizeScope{
		Inputs: []ledgertypes.Identifier{"account"},
		Commands: []ledgertypes.Command{
			{Op: ledgertypes.OpcodeRemove, Mapping: testMapping, KeyOperand: ledgertypes.RegisterOperand("account")},
		},
	}
	if err := ip.Run(testProgram, scope, []ledgertypes.Value{account}, handle); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if ok, _ := handle.ContainsValue(testProgram, testMapping, account); ok {
		t.Fatalf("expected key removed")
	}
}
