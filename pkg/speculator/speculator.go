// Copyright 2025 Certen Protocol

package speculator

import (
	"fmt"

	"github.com/certen/speculator-chain/pkg/field"
	"github.com/certen/speculator-chain/pkg/finalize"
	"github.com/certen/speculator-chain/pkg/kvstore"
	"github.com/certen/speculator-chain/pkg/ledgertypes"
	"github.com/certen/speculator-chain/pkg/metrics"
	"github.com/certen/speculator-chain/pkg/obslog"
)

// Result records the outcome of speculatively evaluating one
// transaction: whether it was accepted, and if not, why.
type Result struct {
	TxID     ledgertypes.TransactionID
	Accepted bool
	Err      error
}

// Speculator evaluates transactions against an in-memory overlay of KV
// Store state, building up a per-program operation log for every
// accepted transaction without ever writing through to durable storage
// (spec.md §4.2).
type Speculator struct {
	store       kvstore.Store
	interpreter *finalize.Interpreter
	overlay     *overlay

	// latestStorageRoot is the KV Store's current_storage_root snapshotted
	// at construction time. Every speculate and commit call re-checks it
	// against the live store (spec.md §4.1 invariant I1): a Speculator is
	// only usable while the store has not moved out from under it.
	latestStorageRoot field.Field

	txOrder  []ledgertypes.TransactionID
	accepted map[ledgertypes.TransactionID]bool
	opLogs   map[ledgertypes.TransactionID]map[ledgertypes.ProgramID][]ledgertypes.MerkleOp

	// ProgramLookup resolves a durably-deployed program's full
	// declaration (mappings, functions, finalize scopes) by id. The
	// Store interface only persists a program's mapping names, not its
	// finalize bytecode, so the Chain supplies this alongside the Store
	// when wiring a Speculator.
	ProgramLookup ProgramLookupFunc

	// Logger and Metrics are optional observability hooks (spec.md §7's
	// "log rejected transactions with enough context" requirement); a
	// nil Logger/Metrics disables the corresponding instrumentation, so
	// New's zero-value Speculator remains usable in tests without a
	// wired-up Chain.
	Logger  *obslog.Logger
	Metrics *metrics.Speculator
}

// ProgramLookupFunc resolves a program's full declaration by id.
type ProgramLookupFunc func(ledgertypes.ProgramID) (*ledgertypes.Program, error)

// New creates a Speculator reading from and speculating against store,
// snapshotting store's current storage root as the root every subsequent
// speculate/commit call verifies against (spec.md §4.1: "new(latest_storage_root)
// snapshots the root it will later verify against").
func New(store kvstore.Store) *Speculator {
	return &Speculator{
		store:             store,
		interpreter:       finalize.NewInterpreter(finalize.DefaultRegistry()),
		overlay:           newOverlay(store),
		latestStorageRoot: store.CurrentStorageRoot(),
		accepted:          make(map[ledgertypes.TransactionID]bool),
		opLogs:            make(map[ledgertypes.TransactionID]map[ledgertypes.ProgramID][]ledgertypes.MerkleOp),
	}
}

// LatestStorageRoot returns the storage root this Speculator was
// constructed against.
func (s *Speculator) LatestStorageRoot() field.Field {
	return s.latestStorageRoot
}

// ContainsTransaction reports whether id was accepted earlier in this
// batch (spec.md §4.2's "contains_transaction").
func (s *Speculator) ContainsTransaction(id ledgertypes.TransactionID) bool {
	return s.accepted[id]
}

// GetValue reads a mapping key from the speculative overlay only (spec.md
// §4.2's "get_value"), reflecting every accepted transaction so far in
// this batch. A key the batch has not touched reports not-found even if
// the durable KV Store holds a value for it — ground truth's
// speculate.rs::get_value reads only speculate_state and never falls
// through to the VM's program store.
func (s *Speculator) GetValue(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, key ledgertypes.Value) (ledgertypes.Value, bool, error) {
	return s.overlay.getStaged(program, mapping, key)
}

// AcceptedOrder returns accepted transaction ids in the order they were
// accepted, the order the Merkle Reconciler must flatten operation logs
// in.
func (s *Speculator) AcceptedOrder() []ledgertypes.TransactionID {
	out := make([]ledgertypes.TransactionID, 0, len(s.txOrder))
	for _, id := range s.txOrder {
		if s.accepted[id] {
			out = append(out, id)
		}
	}
	return out
}

// OperationLog returns the MerkleOp log an accepted transaction
// produced, grouped by the program each operation belongs to.
func (s *Speculator) OperationLog(id ledgertypes.TransactionID) map[ledgertypes.ProgramID][]ledgertypes.MerkleOp {
	return s.opLogs[id]
}

// SpeculateTransactions evaluates txs in order, feeding each one's
// acceptance into ContainsTransaction/GetValue before the next is
// evaluated (spec.md §4.2, "speculate_transactions"). A guard failure on
// any transaction (storage root moved, duplicate transaction id) aborts
// the whole batch and is returned as a Go error, matching ground truth's
// speculate_transactions propagating speculate_transaction's Result via
// `?` rather than folding it into the per-transaction outcome.
func (s *Speculator) SpeculateTransactions(txs []ledgertypes.Transaction) ([]Result, error) {
	results := make([]Result, 0, len(txs))
	for _, tx := range txs {
		result, err := s.SpeculateTransaction(tx)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// SpeculateTransaction evaluates a single transaction.
//
// Guard failures escape as a Go error and leave the batch in an
// unspecified state, exactly as ground truth's speculate_transaction
// bails out instead of returning a rejected Result: the storage root
// moving out from under the Speculator (spec.md §4.1 invariant I1), and
// a transaction id already processed earlier in the batch, whether it
// was accepted or rejected (spec.md I4's uniqueness invariant). Every other simulation failure — a program
// already deployed, a finalize scope that traps — is an ordinary
// rejection swallowed into Result{Accepted: false, Err: ...} with a nil
// function-level error.
func (s *Speculator) SpeculateTransaction(tx ledgertypes.Transaction) (Result, error) {
	if current := s.store.CurrentStorageRoot(); !current.Equal(s.latestStorageRoot) {
		return Result{}, fmt.Errorf("speculator: storage root has moved, speculator built on %s but store is now at %s", s.latestStorageRoot, current)
	}

	id := tx.ID()
	for _, seen := range s.txOrder {
		if seen == id {
			return Result{}, fmt.Errorf("speculator: transaction %s has already been processed", id)
		}
	}

	s.txOrder = append(s.txOrder, id)
	if s.Metrics != nil {
		s.Metrics.TransactionsProcessed.Inc()
	}

	var ops map[ledgertypes.ProgramID][]ledgertypes.MerkleOp
	var err error

	switch t := tx.(type) {
	case *ledgertypes.DeployTransaction:
		ops, err = s.speculateDeploy(t)
	case *ledgertypes.ExecuteTransaction:
		ops, err = s.speculateExecute(t)
	default:
		err = fmt.Errorf("speculator: unknown transaction kind for %s", id)
	}

	if err != nil {
		s.reject(id, err)
		return Result{TxID: id, Accepted: false, Err: err}, nil
	}

	s.accepted[id] = true
	s.opLogs[id] = ops
	if s.Metrics != nil {
		s.Metrics.TransactionsAccepted.Inc()
	}
	return Result{TxID: id, Accepted: true}, nil
}

// reject records a swallowed speculation failure's observability
// signals (spec.md §7: "log rejected transactions with enough context
// to diagnose consensus divergences").
func (s *Speculator) reject(id ledgertypes.TransactionID, err error) {
	if s.Metrics != nil {
		s.Metrics.TransactionsRejected.Inc()
	}
	if s.Logger != nil {
		s.Logger.LogRejection(string(id), err)
	}
}

// speculateDeploy stages a new program's registration and emits an
// InsertMapping op for each declared mapping, in declaration order
// (spec.md §4.2's deployment handling).
func (s *Speculator) speculateDeploy(tx *ledgertypes.DeployTransaction) (map[ledgertypes.ProgramID][]ledgertypes.MerkleOp, error) {
	program := tx.Deployment.Program
	if err := s.overlay.registerProgram(program); err != nil {
		return nil, err
	}

	ops := make([]ledgertypes.MerkleOp, 0, len(program.Mappings()))
	for _, mapping := range program.Mappings() {
		ops = append(ops, ledgertypes.NewInsertMapping(ledgertypes.MappingID(program.ID, mapping)))
	}
	return map[ledgertypes.ProgramID][]ledgertypes.MerkleOp{program.ID: ops}, nil
}

// speculateExecute evaluates every transition's finalize scope in
// reverse transition order (spec.md §4.2: "the Finalize Interpreter
// evaluates each transition's finalize scope in reverse transition
// order"), against a fresh per-transaction scratch overlay. If any
// scope fails, the scratch is discarded untouched and the transaction
// is rejected with no trace in the shared overlay.
func (s *Speculator) speculateExecute(tx *ledgertypes.ExecuteTransaction) (map[ledgertypes.ProgramID][]ledgertypes.MerkleOp, error) {
	scratch := newTxScratch(s.overlay)
	transitions := tx.Execution.Transitions()

	for i := len(transitions) - 1; i >= 0; i-- {
		t := transitions[i]
		if !t.HasFinalize {
			continue
		}

		program, err := s.resolveProgram(t.ProgramID)
		if err != nil {
			return nil, err
		}
		fn, ok := program.Functions[t.FunctionName]
		if !ok || fn.Finalize == nil {
			return nil, fmt.Errorf("speculator: %s has no finalize scope for function %s", t.ProgramID, t.FunctionName)
		}

		if err := s.interpreter.Run(t.ProgramID, *fn.Finalize, t.FinalizeInputs, scratch); err != nil {
			return nil, fmt.Errorf("speculator: transition %d of %s: %w", i, tx.TxID, err)
		}
	}

	scratch.mergeInto(s.overlay)
	return scratch.opsByProgram, nil
}

// MappingValues returns the current overlay value for every key touched
// in program/mapping across the whole batch, keyed by the key id's
// String() form (0x-prefixed hex). The
// Chain's finalize step uses this alongside a Reconciler's collapsed
// operation log to call kvstore.Store.ApplyOperations without handing it
// the overlay directly.
func (s *Speculator) MappingValues(program ledgertypes.ProgramID, mapping ledgertypes.MappingName) map[string]ledgertypes.Value {
	out := make(map[string]ledgertypes.Value)
	s.overlay.scopeMap(program, mapping).Each(func(k string, e *overlayEntry) {
		if !e.removed {
			out[k] = e.value
		}
	})
	return out
}

// StagedProgramOrder returns the ids of programs deployed within this
// batch, in deployment order; StagedProgram returns each one's full
// declaration. The
// Chain's finalize step uses this to durably register newly deployed
// programs once a block's commit has produced a candidate storage tree.
func (s *Speculator) StagedProgramOrder() []ledgertypes.ProgramID {
	out := make([]ledgertypes.ProgramID, len(s.overlay.stagedProgramOrder))
	copy(out, s.overlay.stagedProgramOrder)
	return out
}

// StagedProgram returns a program staged for deployment within this
// batch, if any.
func (s *Speculator) StagedProgram(id ledgertypes.ProgramID) (*ledgertypes.Program, bool) {
	p, ok := s.overlay.stagedPrograms[id]
	return p, ok
}

// resolveProgram looks up a program either among this batch's staged
// deployments or the Store's existing deployments. The Speculator does
// not itself own program bytecode storage; SPEC_FULL.md's Chain wires a
// program registry implementation in before transactions are
// speculated.
func (s *Speculator) resolveProgram(id ledgertypes.ProgramID) (*ledgertypes.Program, error) {
	if p, ok := s.overlay.stagedPrograms[id]; ok {
		return p, nil
	}
	if s.ProgramLookup == nil {
		return nil, fmt.Errorf("speculator: no program registry configured, cannot resolve %s", id)
	}
	return s.ProgramLookup(id)
}
