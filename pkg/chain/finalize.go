// Copyright 2025 Certen Protocol

package chain

import (
	"encoding/hex"
	"fmt"

	"github.com/certen/speculator-chain/pkg/ledgertypes"
	"github.com/certen/speculator-chain/pkg/merkle"
	"github.com/certen/speculator-chain/pkg/speculator"
)

// applyFinalize durably persists a reconciled batch's effect on the KV
// Store (spec.md §4.3 step 6): any program deployed within the batch is
// registered, every touched mapping's collapsed operations are applied,
// and, once every program has been written, tree replaces the store's
// authoritative storage tree in one call. A mapping is always applied
// on its own, never mixed with another mapping's keys, since raw key
// hashing does not mix in mapping identity (DESIGN.md).
func (c *Chain) applyFinalize(spec *speculator.Speculator, reconciler *speculator.Reconciler, tree *merkle.StorageTree) error {
	for _, programID := range spec.StagedProgramOrder() {
		if c.store.ContainsProgram(programID) {
			continue
		}
		program, ok := spec.StagedProgram(programID)
		if !ok {
			return fmt.Errorf("chain: staged program %s missing its declaration", programID)
		}
		if err := c.store.RegisterProgram(program); err != nil {
			return fmt.Errorf("chain: register program %s: %w", programID, err)
		}
		if err := c.programs.Register(program); err != nil {
			return fmt.Errorf("chain: register program %s in registry: %w", programID, err)
		}
	}

	for programID, ops := range reconciler.CollapsedOperations(spec) {
		mappingOrder, err := reconciler.MappingOrderFor(spec, programID)
		if err != nil {
			return fmt.Errorf("chain: mapping order for %s: %w", programID, err)
		}
		byMapping := reconciler.OperationsByMapping(programID, mappingOrder, ops)
		for _, mapping := range mappingOrder {
			mappingOps, touched := byMapping[mapping]
			if !touched {
				continue
			}
			values := mappingValuesFor(spec, programID, mapping, mappingOps)
			if err := c.store.ApplyOperations(programID, mappingOps, values); err != nil {
				return fmt.Errorf("chain: apply operations for %s/%s: %w", programID, mapping, err)
			}
		}
	}

	if tree != nil {
		if err := c.store.InstallStorageTree(tree); err != nil {
			return fmt.Errorf("chain: install storage tree: %w", err)
		}
	}
	return nil
}

// mappingValuesFor restricts a Speculator's full-batch overlay values
// for program/mapping down to the keys mappingOps actually touches,
// since Speculator.MappingValues returns every key ever written to that
// scope across the whole batch, not just the ones in one program's
// operation log. The result is re-keyed from the Speculator's
// 0x-prefixed key id strings to the unprefixed hex that
// kvstore.Store.ApplyOperations looks values up by.
func mappingValuesFor(spec *speculator.Speculator, programID ledgertypes.ProgramID, mapping ledgertypes.MappingName, ops []ledgertypes.MerkleOp) map[string]ledgertypes.Value {
	all := spec.MappingValues(programID, mapping)
	out := make(map[string]ledgertypes.Value, len(ops))
	for _, op := range ops {
		keyID, ok := op.KeyIDOpt()
		if !ok {
			continue
		}
		if v, ok := all[keyID.String()]; ok {
			out[hex.EncodeToString(keyID.Bytes())] = v
		}
	}
	return out
}
