// Copyright 2025 Certen Protocol

package speculator

import (
	"fmt"

	"github.com/certen/speculator-chain/pkg/field"
	"github.com/certen/speculator-chain/pkg/ledgertypes"
	"github.com/certen/speculator-chain/pkg/merkle"
)

// Reconciler is the Merkle Reconciler (spec.md §4.3): it flattens an
// accepted batch's per-transaction operation logs into a single
// candidate storage tree, without mutating the KV Store.
type Reconciler struct{}

// NewReconciler builds a Reconciler.
func NewReconciler() *Reconciler { return &Reconciler{} }

// opKey identifies a (mapping, key) pair for stale-op collapsing.
type opKey struct {
	mapping string
	key     string
}

// Commit flattens every accepted transaction's operation log (in
// acceptance order), collapses stale operations sharing a key id per
// spec.md §9's fix ("drop earlier operations sharing the same key_id,
// keep the last"), and rebuilds a candidate StorageTree reflecting the
// whole batch. It never calls any Store write method — callers install
// the result via Store.InstallStorageTree only once the surrounding
// block is fully accepted.
func (r *Reconciler) Commit(s *Speculator) (*merkle.StorageTree, error) {
	if current := s.store.CurrentStorageRoot(); !current.Equal(s.latestStorageRoot) {
		return nil, fmt.Errorf("speculator: storage root has moved, speculator built on %s but store is now at %s", s.latestStorageRoot, current)
	}

	flattened := r.flatten(s)
	if len(flattened) == 0 {
		return s.store.StorageTree(), nil
	}

	newProgramOrder := r.newProgramOrder(s, flattened)
	existing := s.store.ProgramOrder()

	programRoots := make(map[ledgertypes.ProgramID]field.Field, len(flattened))
	for programID, ops := range flattened {
		collapsed := collapseStaleOps(ops)
		root, err := r.rebuildProgramRoot(s, programID, collapsed)
		if err != nil {
			return nil, fmt.Errorf("speculator: reconcile program %s: %w", programID, err)
		}
		programRoots[programID] = root
	}

	base := s.store.StorageTree()

	var updates []merkle.IndexUpdate
	for i, id := range existing {
		if root, touched := programRoots[id]; touched {
			updates = append(updates, merkle.IndexUpdate{Index: i, Root: root})
		}
	}

	newRoots := make([]field.Field, 0, len(newProgramOrder))
	for _, id := range newProgramOrder {
		newRoots = append(newRoots, programRoots[id])
	}

	switch {
	case base != nil:
		updated, err := base.UpdateMany(updates)
		if err != nil {
			return nil, fmt.Errorf("speculator: update storage tree: %w", err)
		}
		if len(newRoots) == 0 {
			return updated, nil
		}
		appended, err := updated.PrepareAppend(newRoots)
		if err != nil {
			return nil, fmt.Errorf("speculator: append storage tree: %w", err)
		}
		return appended, nil
	case len(newRoots) > 0:
		tree, err := merkle.NewStorageTree(newRoots)
		if err != nil {
			return nil, fmt.Errorf("speculator: build storage tree: %w", err)
		}
		return tree, nil
	default:
		return nil, nil
	}
}

// rebuildProgramRoot applies a program's collapsed operation log onto
// its durable mapping state (or, for a program staged this same batch,
// onto empty mappings) and returns the resulting ProgramTree root.
func (r *Reconciler) rebuildProgramRoot(s *Speculator, programID ledgertypes.ProgramID, ops []ledgertypes.MerkleOp) (field.Field, error) {
	mappingOrder, err := r.MappingOrderFor(s, programID)
	if err != nil {
		return field.Zero(), err
	}

	byMapping := make(map[ledgertypes.MappingName][]ledgertypes.MerkleOp)
	for _, m := range mappingOrder {
		id := ledgertypes.MappingID(programID, m)
		for _, op := range ops {
			if op.MappingID().Equal(id) {
				byMapping[m] = append(byMapping[m], op)
			}
		}
	}

	roots := make([]field.Field, 0, len(mappingOrder))
	for _, m := range mappingOrder {
		entries, err := r.mappingBaseline(s, programID, m)
		if err != nil {
			return field.Zero(), err
		}

		for _, op := range byMapping[m] {
			switch op.Kind {
			case ledgertypes.OpInsertMapping:
				continue
			case ledgertypes.OpInsertValue:
				entries = append(entries, merkle.MappingEntry{KeyID: op.KeyID, ValueID: op.ValueID})
			case ledgertypes.OpUpdateValue:
				if op.KeyIndex >= uint64(len(entries)) {
					return field.Zero(), fmt.Errorf("speculator: update references out-of-range key index %d in %s/%s", op.KeyIndex, programID, m)
				}
				entries[op.KeyIndex] = merkle.MappingEntry{KeyID: op.KeyID, ValueID: op.ValueID}
			case ledgertypes.OpRemoveValue:
				if op.KeyIndex >= uint64(len(entries)) {
					return field.Zero(), fmt.Errorf("speculator: remove references out-of-range key index %d in %s/%s", op.KeyIndex, programID, m)
				}
				entries[op.KeyIndex] = merkle.MappingEntry{
					KeyID:   op.KeyID,
					ValueID: merkle.TombstoneValueID(op.MappingID(), op.KeyID),
				}
			}
		}

		if len(entries) == 0 {
			roots = append(roots, field.HashBytes("empty-mapping", m.Bytes()))
			continue
		}
		mt, err := merkle.NewMappingTree(entries)
		if err != nil {
			return field.Zero(), fmt.Errorf("build mapping tree %s/%s: %w", programID, m, err)
		}
		roots = append(roots, mt.Root())
	}

	if len(roots) == 0 {
		return field.Zero(), fmt.Errorf("program %s declares no mappings", programID)
	}
	pt, err := merkle.NewProgramTree(roots)
	if err != nil {
		return field.Zero(), err
	}
	return pt.Root(), nil
}

// CollapsedOperations flattens and collapses the batch's operation log
// exactly as Commit does internally, keyed by program, so a caller (the
// Chain's finalize step) can apply the same operations durably through
// kvstore.Store.ApplyOperations after Commit's candidate tree has been
// accepted.
func (r *Reconciler) CollapsedOperations(s *Speculator) map[ledgertypes.ProgramID][]ledgertypes.MerkleOp {
	flattened := r.flatten(s)
	out := make(map[ledgertypes.ProgramID][]ledgertypes.MerkleOp, len(flattened))
	for programID, ops := range flattened {
		out[programID] = collapseStaleOps(ops)
	}
	return out
}

// OperationsByMapping partitions a program's collapsed operation log by
// the mapping each op addresses, using mappingOrder (the program's
// declared mappings) to resolve MappingID back to a MappingName. This
// lets ApplyOperations be called once per mapping, avoiding the
// possibility that two different mappings hash the same raw key to the
// same key id (KeyIDDomain hashing does not mix in mapping identity).
func (r *Reconciler) OperationsByMapping(programID ledgertypes.ProgramID, mappingOrder []ledgertypes.MappingName, ops []ledgertypes.MerkleOp) map[ledgertypes.MappingName][]ledgertypes.MerkleOp {
	out := make(map[ledgertypes.MappingName][]ledgertypes.MerkleOp)
	for _, m := range mappingOrder {
		id := ledgertypes.MappingID(programID, m)
		for _, op := range ops {
			if op.MappingID().Equal(id) {
				out[m] = append(out[m], op)
			}
		}
	}
	return out
}

func (r *Reconciler) MappingOrderFor(s *Speculator, programID ledgertypes.ProgramID) ([]ledgertypes.MappingName, error) {
	if program, ok := s.overlay.stagedPrograms[programID]; ok {
		return program.Mappings(), nil
	}
	return s.store.MappingOrder(programID)
}

func (r *Reconciler) mappingBaseline(s *Speculator, programID ledgertypes.ProgramID, mapping ledgertypes.MappingName) ([]merkle.MappingEntry, error) {
	if _, staged := s.overlay.stagedPrograms[programID]; staged {
		return nil, nil
	}
	return s.store.MappingEntries(programID, mapping)
}

// flatten groups every accepted transaction's operation log by program,
// preserving acceptance order within and across transactions. Each
// transaction already tags its own operations by program (the
// Speculator knows the program an operation targets at the moment it
// is emitted), so this is a straight merge, not a lookup.
func (r *Reconciler) flatten(s *Speculator) map[ledgertypes.ProgramID][]ledgertypes.MerkleOp {
	grouped := make(map[ledgertypes.ProgramID][]ledgertypes.MerkleOp)
	for _, txID := range s.AcceptedOrder() {
		for programID, ops := range s.OperationLog(txID) {
			grouped[programID] = append(grouped[programID], ops...)
		}
	}
	return grouped
}

// newProgramOrder returns every program deployed within this batch, in
// first-deployment order, restricted to the ones the flattened op set
// actually touches.
func (r *Reconciler) newProgramOrder(s *Speculator, flattened map[ledgertypes.ProgramID][]ledgertypes.MerkleOp) []ledgertypes.ProgramID {
	var order []ledgertypes.ProgramID
	for _, id := range s.overlay.stagedProgramOrder {
		if _, touched := flattened[id]; touched {
			order = append(order, id)
		}
	}
	return order
}

// collapseStaleOps keeps only the most recent operation for each
// (mapping, key id) pair, scanning from the end of the log backward.
// InsertMapping operations carry no key id and are never collapsed.
//
// This fixes the bug documented in spec.md §9: the original collapse
// predicate compared an operation against itself, which meant no
// operation was ever actually dropped. The intended behavior — drop
// every earlier operation that shares a later operation's key id — is
// what this implements.
func collapseStaleOps(ops []ledgertypes.MerkleOp) []ledgertypes.MerkleOp {
	seen := make(map[opKey]bool, len(ops))
	result := make([]ledgertypes.MerkleOp, 0, len(ops))

	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		keyID, hasKey := op.KeyIDOpt()
		if !hasKey {
			result = append(result, op)
			continue
		}
		k := opKey{mapping: op.MappingID().String(), key: keyID.String()}
		if seen[k] {
			continue
		}
		seen[k] = true
		result = append(result, op)
	}

	// Restore original order.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}
