// Copyright 2025 Certen Protocol

package speculator

import (
	"fmt"

	"github.com/certen/speculator-chain/internal/ordered"
	"github.com/certen/speculator-chain/pkg/ledgertypes"
)

// txScratch is the per-transaction scratch overlay (spec.md §9): every
// Store/Remove command during one transaction's evaluation writes here,
// never directly into the shared overlay. If the transaction's
// finalize scopes all succeed, the Speculator merges the scratch into
// the shared overlay; if any command fails, the scratch is discarded
// and the shared overlay is left exactly as it was before the
// transaction started.
type txScratch struct {
	parent    *overlay
	pending   map[string]*ordered.Map[*overlayEntry]
	nextIndex map[string]uint64
	opsByProgram map[ledgertypes.ProgramID][]ledgertypes.MerkleOp
}

func newTxScratch(parent *overlay) *txScratch {
	return &txScratch{
		parent:       parent,
		pending:      make(map[string]*ordered.Map[*overlayEntry]),
		nextIndex:    make(map[string]uint64),
		opsByProgram: make(map[ledgertypes.ProgramID][]ledgertypes.MerkleOp),
	}
}

func (s *txScratch) pendingMap(program ledgertypes.ProgramID, mapping ledgertypes.MappingName) *ordered.Map[*overlayEntry] {
	key := scopeKey(program, mapping)
	m, ok := s.pending[key]
	if !ok {
		m = ordered.New[*overlayEntry]()
		s.pending[key] = m
	}
	return m
}

func (s *txScratch) takeIndex(program ledgertypes.ProgramID, mapping ledgertypes.MappingName) (uint64, error) {
	key := scopeKey(program, mapping)
	if n, ok := s.nextIndex[key]; ok {
		s.nextIndex[key] = n + 1
		return n, nil
	}
	n, err := s.parent.nextKeyIndex(program, mapping)
	if err != nil {
		return 0, err
	}
	s.nextIndex[key] = n + 1
	return n, nil
}

// GetValue implements finalize.StateHandle.
func (s *txScratch) GetValue(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, key ledgertypes.Value) (ledgertypes.Value, bool, error) {
	keyID := key.Hash(ledgertypes.KeyIDDomain)
	if e, ok := s.pendingMap(program, mapping).Get(keyIDHex(keyID)); ok {
		if e.removed {
			return ledgertypes.Value{}, false, nil
		}
		return e.value, true, nil
	}
	return s.parent.get(program, mapping, key)
}

// ContainsValue implements finalize.StateHandle.
func (s *txScratch) ContainsValue(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, key ledgertypes.Value) (bool, error) {
	_, found, err := s.GetValue(program, mapping, key)
	return found, err
}

// SetValue implements finalize.StateHandle, recording a Store command.
// Whether it emits InsertValue or UpdateValue depends only on the
// durable KV Store: a key the store has not indexed yields InsertValue
// even when an earlier write in this batch already put it in the
// overlay, and the reconciler's stale-op collapse keeps the last one.
func (s *txScratch) SetValue(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, key, value ledgertypes.Value) error {
	keyID := key.Hash(ledgertypes.KeyIDDomain)
	valueID := value.Hash(ledgertypes.ValueIDDomain)
	mappingID := ledgertypes.MappingID(program, mapping)
	hexKey := keyIDHex(keyID)
	m := s.pendingMap(program, mapping)

	storeIdx, durable, err := s.parent.store.GetKeyIndex(program, mapping, keyID)
	if err != nil {
		return err
	}
	op := ledgertypes.NewInsertValue(mappingID, keyID, valueID)
	if durable {
		op = ledgertypes.NewUpdateValue(mappingID, storeIdx, keyID, valueID)
	}

	if e, ok := m.Get(hexKey); ok {
		e.value, e.removed = value, false
		s.opsByProgram[program] = append(s.opsByProgram[program], op)
		return nil
	}

	if idx, found, err := s.parent.lookupIndex(program, mapping, keyID); err != nil {
		return err
	} else if found {
		m.Set(hexKey, &overlayEntry{value: value, keyIndex: idx})
		s.opsByProgram[program] = append(s.opsByProgram[program], op)
		return nil
	}

	idx, err := s.takeIndex(program, mapping)
	if err != nil {
		return err
	}
	m.Set(hexKey, &overlayEntry{value: value, keyIndex: idx})
	s.opsByProgram[program] = append(s.opsByProgram[program], op)
	return nil
}

// RemoveValue implements finalize.StateHandle, recording a Remove
// command.
func (s *txScratch) RemoveValue(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, key ledgertypes.Value) error {
	keyID := key.Hash(ledgertypes.KeyIDDomain)
	mappingID := ledgertypes.MappingID(program, mapping)
	hexKey := keyIDHex(keyID)
	m := s.pendingMap(program, mapping)

	if e, ok := m.Get(hexKey); ok {
		if e.removed {
			return fmt.Errorf("speculator: remove: key already removed in mapping %s", mapping)
		}
		e.removed = true
		s.opsByProgram[program] = append(s.opsByProgram[program], ledgertypes.NewRemoveValue(mappingID, e.keyIndex, keyID))
		return nil
	}

	idx, found, err := s.parent.lookupIndex(program, mapping, keyID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("speculator: remove: no such key in mapping %s", mapping)
	}
	m.Set(hexKey, &overlayEntry{keyIndex: idx, removed: true})
	s.opsByProgram[program] = append(s.opsByProgram[program], ledgertypes.NewRemoveValue(mappingID, idx, keyID))
	return nil
}

// mergeInto applies every pending entry and index advance into parent,
// the only point at which a transaction's speculative writes become
// visible to the rest of the batch.
func (s *txScratch) mergeInto(parent *overlay) {
	for key, idx := range s.nextIndex {
		parent.nextIndex[key] = idx
	}
	for key, m := range s.pending {
		target, ok := parent.mappings[key]
		if !ok {
			target = ordered.New[*overlayEntry]()
			parent.mappings[key] = target
		}
		m.Each(func(k string, v *overlayEntry) {
			target.Set(k, v)
		})
	}
}
