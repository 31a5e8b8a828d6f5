// Copyright 2025 Certen Protocol
//
// Package speculator implements the Speculator (spec.md §4.2): a
// speculative finalize executor that evaluates transactions against an
// in-memory overlay of durable KV Store state, and the Merkle
// Reconciler (spec.md §4.3) that turns an accepted batch's operation
// logs into a candidate storage tree.
package speculator

import (
	"fmt"

	"github.com/certen/speculator-chain/internal/ordered"
	"github.com/certen/speculator-chain/pkg/field"
	"github.com/certen/speculator-chain/pkg/kvstore"
	"github.com/certen/speculator-chain/pkg/ledgertypes"
)

// overlayEntry is one mapping slot's speculative state.
type overlayEntry struct {
	value    ledgertypes.Value
	keyIndex uint64
	removed  bool
}

func scopeKey(program ledgertypes.ProgramID, mapping ledgertypes.MappingName) string {
	return string(program) + "/" + string(mapping)
}

func keyIDHex(keyID field.Field) string {
	return keyID.String()
}

// overlay is the mapping read surface shared across an entire
// speculate_transactions batch (spec.md §4.2's "overlay" field),
// layered on top of a durable kvstore.Store. Entries only ever enter it
// through txScratch.mergeInto, once a transaction's evaluation has fully
// succeeded — this is what makes a rejected transaction's speculative
// writes invisible to every transaction after it (spec.md §9's
// write-discipline resolution).
type overlay struct {
	store              kvstore.Store
	mappings           map[string]*ordered.Map[*overlayEntry]
	nextIndex          map[string]uint64
	stagedPrograms     map[ledgertypes.ProgramID]*ledgertypes.Program
	stagedProgramOrder []ledgertypes.ProgramID
}

func newOverlay(store kvstore.Store) *overlay {
	return &overlay{
		store:          store,
		mappings:       make(map[string]*ordered.Map[*overlayEntry]),
		nextIndex:      make(map[string]uint64),
		stagedPrograms: make(map[ledgertypes.ProgramID]*ledgertypes.Program),
	}
}

func (o *overlay) scopeMap(program ledgertypes.ProgramID, mapping ledgertypes.MappingName) *ordered.Map[*overlayEntry] {
	key := scopeKey(program, mapping)
	m, ok := o.mappings[key]
	if !ok {
		m = ordered.New[*overlayEntry]()
		o.mappings[key] = m
	}
	return m
}

// nextKeyIndex returns the next unused key index for a mapping,
// seeding the counter from durable state the first time the mapping is
// touched.
func (o *overlay) nextKeyIndex(program ledgertypes.ProgramID, mapping ledgertypes.MappingName) (uint64, error) {
	key := scopeKey(program, mapping)
	if n, ok := o.nextIndex[key]; ok {
		return n, nil
	}
	n, err := o.store.MappingKeyCount(program, mapping)
	if err != nil {
		return 0, err
	}
	o.nextIndex[key] = n
	return n, nil
}

func (o *overlay) containsProgram(id ledgertypes.ProgramID) bool {
	if _, ok := o.stagedPrograms[id]; ok {
		return true
	}
	return o.store.ContainsProgram(id)
}

// registerProgram stages a newly deployed program, visible to the rest
// of the batch via containsProgram, but not yet durable.
func (o *overlay) registerProgram(program *ledgertypes.Program) error {
	if o.containsProgram(program.ID) {
		return fmt.Errorf("%w: %s", kvstore.ErrProgramExists, program.ID)
	}
	o.stagedPrograms[program.ID] = program
	o.stagedProgramOrder = append(o.stagedProgramOrder, program.ID)
	return nil
}

// lookupIndex finds the key index already assigned to keyID, checking
// the overlay before falling through to durable state. The second
// return distinguishes "never inserted" from "inserted, maybe removed"
// — a removed key keeps its index, since the tree is append-only.
func (o *overlay) lookupIndex(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, keyID field.Field) (uint64, bool, error) {
	m := o.scopeMap(program, mapping)
	if e, ok := m.Get(keyIDHex(keyID)); ok {
		return e.keyIndex, true, nil
	}
	return o.store.GetKeyIndex(program, mapping, keyID)
}

// get resolves key in program/mapping through the overlay, falling
// back to durable state when the overlay has no entry. Finalize-scope
// commands (Add, Sub, GetOrUse) need this fallthrough: they evaluate
// arithmetic against real current state for keys the batch has not
// touched yet, and txScratch.GetValue is the only caller.
func (o *overlay) get(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, key ledgertypes.Value) (ledgertypes.Value, bool, error) {
	keyID := key.Hash(ledgertypes.KeyIDDomain)
	m := o.scopeMap(program, mapping)
	if e, ok := m.Get(keyIDHex(keyID)); ok {
		if e.removed {
			return ledgertypes.Value{}, false, nil
		}
		return e.value, true, nil
	}
	return o.store.GetValue(program, mapping, keyID)
}

// getStaged resolves key in program/mapping from the overlay alone,
// reporting not-found on any miss instead of falling through to durable
// state (ground truth's speculate.rs::get_value reads only
// speculate_state). This is the read path Speculator.GetValue exposes.
func (o *overlay) getStaged(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, key ledgertypes.Value) (ledgertypes.Value, bool, error) {
	keyID := key.Hash(ledgertypes.KeyIDDomain)
	m := o.scopeMap(program, mapping)
	e, ok := m.Get(keyIDHex(keyID))
	if !ok || e.removed {
		return ledgertypes.Value{}, false, nil
	}
	return e.value, true, nil
}
