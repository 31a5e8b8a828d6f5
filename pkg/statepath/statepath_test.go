// Copyright 2025 Certen Protocol

package statepath

import (
	"testing"

	"github.com/certen/speculator-chain/pkg/chain"
	"github.com/certen/speculator-chain/pkg/field"
	"github.com/certen/speculator-chain/pkg/ledgertypes"
	"github.com/certen/speculator-chain/pkg/merkle"
)

const testProgramID ledgertypes.ProgramID = "token"
const testMapping ledgertypes.MappingName = "balances"

func tokenProgram() *ledgertypes.Program {
	mintScope := &ledgertypes.FinalizeScope{
		Inputs: []ledgertypes.Identifier{"account", "amount"},
		Commands: []ledgertypes.Command{
			{Op: ledgertypes.OpcodeStore, Mapping: testMapping,
				KeyOperand:   ledgertypes.RegisterOperand("account"),
				ValueOperand: ledgertypes.RegisterOperand("amount")},
		},
	}
	return &ledgertypes.Program{
		ID:            testProgramID,
		MappingOrder:  []ledgertypes.MappingName{testMapping},
		FunctionOrder: []ledgertypes.Identifier{"mint"},
		Functions: map[ledgertypes.Identifier]*ledgertypes.Function{
			"mint": {Name: "mint", Finalize: mintScope},
		},
	}
}

func accountValue(name string) ledgertypes.Value {
	return ledgertypes.FieldValue(field.HashBytes("test-account", []byte(name)))
}

func deployTx(id ledgertypes.TransactionID, program *ledgertypes.Program) *ledgertypes.DeployTransaction {
	return &ledgertypes.DeployTransaction{TxID: id, Deployment: ledgertypes.Deployment{Program: program}}
}

// mintTxWithCommitment builds a mint transaction and returns it along
// with the single commitment it produces, so the test can ask the
// State-Path Builder to prove that exact commitment.
func mintTxWithCommitment(id ledgertypes.TransactionID, account string, amount uint64, marker byte) (*ledgertypes.ExecuteTransaction, field.Field) {
	commitment := field.HashBytes("marker", []byte{marker})
	transition := ledgertypes.NewTransition(testProgramID, "mint",
		[]ledgertypes.Value{accountValue(account), ledgertypes.UintValue(amount)},
		true, nil, []field.Field{commitment})
	tx := &ledgertypes.ExecuteTransaction{TxID: id, Execution: ledgertypes.Execution{TransitionList: []ledgertypes.Transition{transition}}}
	return tx, commitment
}

func buildTestChain(t *testing.T) (*chain.Chain, field.Field) {
	t.Helper()
	c, err := chain.NewMemory()
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}

	deployProposal, err := c.ProposeBlock([]ledgertypes.Transaction{deployTx("deploy1", tokenProgram())}, 0, 0, 1700000001)
	if err != nil {
		t.Fatalf("ProposeBlock (deploy): %v", err)
	}
	if err := c.AddNext(deployProposal.Block); err != nil {
		t.Fatalf("AddNext (deploy): %v", err)
	}

	mintTx, commitment := mintTxWithCommitment("mint1", "alice", 100, 1)
	mintProposal, err := c.ProposeBlock([]ledgertypes.Transaction{mintTx}, 0, 0, 1700000002)
	if err != nil {
		t.Fatalf("ProposeBlock (mint): %v", err)
	}
	if err := c.AddNext(mintProposal.Block); err != nil {
		t.Fatalf("AddNext (mint): %v", err)
	}

	return c, commitment
}

func TestBuilder_BuildProducesValidatingProof(t *testing.T) {
	c, commitment := buildTestChain(t)
	builder := New(c)

	path, err := builder.Build(commitment)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !path.Commitment.Equal(commitment) {
		t.Fatalf("expected path to record the proven commitment")
	}
	if path.StateRoot.IsZero() {
		t.Fatalf("expected a non-zero state root")
	}

	for _, receipt := range path.PortableReceipts() {
		if err := receipt.Validate(); err != nil {
			t.Errorf("receipt for domain %q failed to validate: %v", receipt.Domain, err)
		}
	}
}

func TestBuilder_Build_UnknownCommitmentFails(t *testing.T) {
	c, _ := buildTestChain(t)
	builder := New(c)

	_, err := builder.Build(field.HashBytes("never-produced", nil))
	if err == nil {
		t.Fatalf("expected an error for a commitment never produced on chain")
	}
}

func TestStatePath_PortableReceiptsRoundTripJSON(t *testing.T) {
	c, commitment := buildTestChain(t)
	builder := New(c)

	path, err := builder.Build(commitment)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, receipt := range path.PortableReceipts() {
		raw, err := receipt.ToJSON()
		if err != nil {
			t.Fatalf("ToJSON: %v", err)
		}
		parsed, err := merkle.ReceiptFromJSON(raw)
		if err != nil {
			t.Fatalf("ReceiptFromJSON: %v", err)
		}
		if err := parsed.Validate(); err != nil {
			t.Errorf("round-tripped receipt for domain %q failed to validate: %v", receipt.Domain, err)
		}
	}
}
