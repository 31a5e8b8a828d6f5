// Copyright 2025 Certen Protocol

package ledgertypes

import (
	"encoding/json"
	"fmt"

	"github.com/certen/speculator-chain/pkg/field"
)

// Program is a deployed program's declaration: its mappings (in
// declaration order, per spec.md §4.2's deployment handling) and its
// functions, each of which may carry a finalize scope.
type Program struct {
	ID            ProgramID
	MappingOrder  []MappingName
	FunctionOrder []Identifier
	Functions     map[Identifier]*Function
}

// Function is one callable function declared by a program.
type Function struct {
	Name     Identifier
	Finalize *FinalizeScope // nil if the function has no finalize scope
}

// Mappings returns the program's declared mappings in declaration
// order, per the Deployment "ordered mappings() accessor" in spec.md §6.
func (p *Program) Mappings() []MappingName {
	return p.MappingOrder
}

// Deployment carries the program being deployed; the fee is carried
// by DeployTransaction.
type Deployment struct {
	Program *Program
}

// Mappings proxies to the underlying program's declared mappings.
func (d Deployment) Mappings() []MappingName {
	return d.Program.Mappings()
}

// Transition is one invocation of one function, with its inputs,
// outputs, optional finalize inputs, and output commitments.
type Transition struct {
	id              field.Field
	ProgramID       ProgramID
	FunctionName    Identifier
	FinalizeInputs  []Value // nil if the function has no finalize scope
	HasFinalize     bool
	CommitmentList  []field.Field
	SerialNumberList []field.Field
}

// NewTransition constructs a Transition, deriving its id from the
// program, function, serial numbers and commitments; finalize inputs do
// not enter the id.
//
// Serial numbers and commitments are opaque field-element handles here:
// the cryptography that derives them from spent/produced records is out
// of scope for this module (spec.md §1, "the account/signature
// cryptography"). The Chain only needs stable, comparable values to
// enforce the global uniqueness guards in spec.md I7/G7/G8.
func NewTransition(programID ProgramID, functionName Identifier, finalizeInputs []Value, hasFinalize bool, serialNumbers, commitments []field.Field) Transition {
	t := Transition{
		ProgramID:        programID,
		FunctionName:     functionName,
		FinalizeInputs:   finalizeInputs,
		HasFinalize:      hasFinalize,
		SerialNumberList: serialNumbers,
		CommitmentList:   commitments,
	}
	payload := field.HashBytes("transition-id", []byte(string(programID)+"/"+string(functionName)))
	for _, sn := range serialNumbers {
		payload = field.Hash2("transition-id", payload, sn)
	}
	for _, c := range commitments {
		payload = field.Hash2("transition-id", payload, c)
	}
	t.id = payload
	return t
}

// ID returns the transition's identity leaf value.
func (t Transition) ID() field.Field { return t.id }

// Commitments returns the record commitments this transition produced.
func (t Transition) Commitments() []field.Field { return t.CommitmentList }

// SerialNumbers returns the nullifiers this transition consumed.
func (t Transition) SerialNumbers() []field.Field { return t.SerialNumberList }

// ToLeaf returns the Merkle leaf for a commitment produced by this
// transition. isOutput distinguishes output-side leaves from
// input-side ones, per spec.md §4.5 step 4's "output flag".
func (t Transition) ToLeaf(commitment field.Field, isOutput bool) field.Field {
	tag := "transition-leaf-input"
	if isOutput {
		tag = "transition-leaf-output"
	}
	return field.Hash2(tag, t.id, commitment)
}

// Execution carries an ordered list of transitions.
type Execution struct {
	TransitionList []Transition
}

// Transitions returns the execution's transitions in call order.
func (e Execution) Transitions() []Transition { return e.TransitionList }

// TransactionKind discriminates Deploy from Execute transactions.
type TransactionKind uint8

const (
	KindDeploy TransactionKind = iota
	KindExecute
)

// Transaction is the minimal interface the Speculator and Chain
// consume: either a Deploy or an Execute transaction.
type Transaction interface {
	ID() TransactionID
	Kind() TransactionKind
}

// DeployTransaction deploys a new program.
type DeployTransaction struct {
	TxID       TransactionID
	Deployment Deployment
	Fee        uint64
}

func (t *DeployTransaction) ID() TransactionID      { return t.TxID }
func (t *DeployTransaction) Kind() TransactionKind { return KindDeploy }

// ExecuteTransaction invokes one or more transitions across programs.
type ExecuteTransaction struct {
	TxID      TransactionID
	Execution Execution
	Fee       uint64
}

func (t *ExecuteTransaction) ID() TransactionID      { return t.TxID }
func (t *ExecuteTransaction) Kind() TransactionKind { return KindExecute }

// AllSerialNumbers returns every serial number nullified across an
// Execute transaction's transitions; Deploy transactions never carry
// any.
func AllSerialNumbers(tx Transaction) []field.Field {
	et, ok := tx.(*ExecuteTransaction)
	if !ok {
		return nil
	}
	var out []field.Field
	for _, t := range et.Execution.TransitionList {
		out = append(out, t.SerialNumbers()...)
	}
	return out
}

// TransactionBytes returns a canonical byte encoding of a transaction
// body, used by the Chain for the byte-equality guard (spec.md G6).
func TransactionBytes(tx Transaction) []byte {
	switch t := tx.(type) {
	case *DeployTransaction:
		out := []byte("deploy:" + string(t.TxID) + ":" + string(t.Deployment.Program.ID))
		for _, m := range t.Deployment.Mappings() {
			out = append(out, ':')
			out = append(out, m.Bytes()...)
		}
		return out
	case *ExecuteTransaction:
		out := []byte("execute:" + string(t.TxID))
		for _, tr := range t.Execution.TransitionList {
			out = append(out, ':')
			out = append(out, tr.ID().Bytes()...)
		}
		return out
	default:
		return []byte(tx.ID())
	}
}

// TransactionRecord is the durable, opaque form of a Transaction the
// Chain persists per height: enough to satisfy contains_transaction's
// byte-equality guard and the serial-number/commitment uniqueness guards
// without needing to deserialize full program bytecode back out of
// storage (spec.md §6's "persisted state layout" does not require the
// Chain to re-interpret a stored transaction, only to compare it).
type TransactionRecord struct {
	ID            TransactionID   `json:"id"`
	Kind          TransactionKind `json:"kind"`
	Bytes         []byte          `json:"bytes"`
	SerialNumbers []field.Field   `json:"serial_numbers"`
	Commitments   []field.Field   `json:"commitments"`
}

// BuildRecord captures tx's durable record.
func BuildRecord(tx Transaction) TransactionRecord {
	return TransactionRecord{
		ID:            tx.ID(),
		Kind:          tx.Kind(),
		Bytes:         TransactionBytes(tx),
		SerialNumbers: AllSerialNumbers(tx),
		Commitments:   AllCommitments(tx),
	}
}

// MarshalJSON encodes a TransactionRecord's field-element slices as hex
// strings, since field.Field has no exported representation of its own.
func (r TransactionRecord) MarshalJSON() ([]byte, error) {
	type alias struct {
		ID            TransactionID   `json:"id"`
		Kind          TransactionKind `json:"kind"`
		Bytes         []byte          `json:"bytes"`
		SerialNumbers []string        `json:"serial_numbers"`
		Commitments   []string        `json:"commitments"`
	}
	a := alias{ID: r.ID, Kind: r.Kind, Bytes: r.Bytes}
	for _, sn := range r.SerialNumbers {
		a.SerialNumbers = append(a.SerialNumbers, sn.String())
	}
	for _, c := range r.Commitments {
		a.Commitments = append(a.Commitments, c.String())
	}
	return json.Marshal(a)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *TransactionRecord) UnmarshalJSON(b []byte) error {
	type alias struct {
		ID            TransactionID   `json:"id"`
		Kind          TransactionKind `json:"kind"`
		Bytes         []byte          `json:"bytes"`
		SerialNumbers []string        `json:"serial_numbers"`
		Commitments   []string        `json:"commitments"`
	}
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	r.ID, r.Kind, r.Bytes = a.ID, a.Kind, a.Bytes
	for _, s := range a.SerialNumbers {
		f, err := field.ParseHex(s)
		if err != nil {
			return fmt.Errorf("ledgertypes: parse serial number: %w", err)
		}
		r.SerialNumbers = append(r.SerialNumbers, f)
	}
	for _, s := range a.Commitments {
		f, err := field.ParseHex(s)
		if err != nil {
			return fmt.Errorf("ledgertypes: parse commitment: %w", err)
		}
		r.Commitments = append(r.Commitments, f)
	}
	return nil
}

// AllCommitments returns every commitment produced across an Execute
// transaction's transitions; Deploy transactions never carry any.
func AllCommitments(tx Transaction) []field.Field {
	et, ok := tx.(*ExecuteTransaction)
	if !ok {
		return nil
	}
	var out []field.Field
	for _, t := range et.Execution.TransitionList {
		out = append(out, t.Commitments()...)
	}
	return out
}
