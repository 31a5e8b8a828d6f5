// Copyright 2025 Certen Protocol

package kvstore

import (
	"encoding/json"
	"fmt"
	"sync"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/speculator-chain/pkg/field"
	"github.com/certen/speculator-chain/pkg/ledgertypes"
	"github.com/certen/speculator-chain/pkg/merkle"
)

// programMeta is the durable record for one registered program.
type programMeta struct {
	MappingOrder []string `json:"mapping_order"`
}

// MemoryStore is the reference Store implementation, backed by a
// CometBFT dbm.DB for durability and an in-memory index (ordering,
// cached storage tree) for the lookups the Speculator performs on
// every finalize command. It assumes single-writer access from the
// block-commit thread, matching pkg/ledger.LedgerStore's concurrency
// contract.
type MemoryStore struct {
	mu sync.RWMutex
	db dbm.DB

	programOrder []ledgertypes.ProgramID
	programSet   map[ledgertypes.ProgramID]bool
	mappingOrder map[ledgertypes.ProgramID][]ledgertypes.MappingName

	storageTree *merkle.StorageTree
}

// NewMemoryStore wraps db as a Store. db may be an in-memory
// cometbft-db (dbm.NewMemDB()) for tests, or a persistent backend
// (goleveldb, etc.) for a running node.
func NewMemoryStore(db dbm.DB) (*MemoryStore, error) {
	s := &MemoryStore{
		db:           db,
		programSet:   make(map[ledgertypes.ProgramID]bool),
		mappingOrder: make(map[ledgertypes.ProgramID][]ledgertypes.MappingName),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MemoryStore) load() error {
	raw, err := s.db.Get(keyProgramOrder)
	if err != nil {
		return fmt.Errorf("kvstore: load program order: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return fmt.Errorf("%w: program order: %v", ErrCorruptRecord, err)
	}

	var roots []string
	if rootsRaw, err := s.db.Get(keyStorageProgramRoots); err != nil {
		return fmt.Errorf("kvstore: load storage roots: %w", err)
	} else if len(rootsRaw) > 0 {
		if err := json.Unmarshal(rootsRaw, &roots); err != nil {
			return fmt.Errorf("%w: storage roots: %v", ErrCorruptRecord, err)
		}
	}

	for _, idStr := range ids {
		id := ledgertypes.ProgramID(idStr)
		s.programOrder = append(s.programOrder, id)
		s.programSet[id] = true

		metaRaw, err := s.db.Get(programMetaKey(id))
		if err != nil {
			return fmt.Errorf("kvstore: load program meta %s: %w", id, err)
		}
		if len(metaRaw) == 0 {
			return fmt.Errorf("%w: missing meta for program %s", ErrCorruptRecord, id)
		}
		var meta programMeta
		if err := json.Unmarshal(metaRaw, &meta); err != nil {
			return fmt.Errorf("%w: program meta %s: %v", ErrCorruptRecord, id, err)
		}
		for _, m := range meta.MappingOrder {
			s.mappingOrder[id] = append(s.mappingOrder[id], ledgertypes.MappingName(m))
		}
	}

	if len(roots) > 0 {
		leaves := make([]field.Field, len(roots))
		for i, r := range roots {
			f, err := field.ParseHex(r)
			if err != nil {
				return fmt.Errorf("%w: storage root %d: %v", ErrCorruptRecord, i, err)
			}
			leaves[i] = f
		}
		tree, err := merkle.NewStorageTree(leaves)
		if err != nil {
			return fmt.Errorf("kvstore: rebuild storage tree: %w", err)
		}
		s.storageTree = tree
	}

	return nil
}

// CurrentStorageRoot implements Store.
func (s *MemoryStore) CurrentStorageRoot() field.Field {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.storageTree.Root()
}

// StorageTree implements Store.
func (s *MemoryStore) StorageTree() *merkle.StorageTree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.storageTree
}

// ContainsProgram implements Store.
func (s *MemoryStore) ContainsProgram(id ledgertypes.ProgramID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.programSet[id]
}

// ProgramOrder implements Store.
func (s *MemoryStore) ProgramOrder() []ledgertypes.ProgramID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ledgertypes.ProgramID(nil), s.programOrder...)
}

// MappingOrder implements Store.
func (s *MemoryStore) MappingOrder(id ledgertypes.ProgramID) ([]ledgertypes.MappingName, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.programSet[id] {
		return nil, fmt.Errorf("%w: %s", ErrProgramNotFound, id)
	}
	return append([]ledgertypes.MappingName(nil), s.mappingOrder[id]...), nil
}

// GetValue implements Store.
func (s *MemoryStore) GetValue(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, keyID field.Field) (ledgertypes.Value, bool, error) {
	raw, err := s.db.Get(mappingValueKey(program, mapping, keyID))
	if err != nil {
		return ledgertypes.Value{}, false, fmt.Errorf("kvstore: get value: %w", err)
	}
	if len(raw) == 0 {
		return ledgertypes.Value{}, false, nil
	}
	v, err := ledgertypes.ParsePlaintext(raw)
	if err != nil {
		return ledgertypes.Value{}, false, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return v, true, nil
}

// GetKeyIndex implements Store.
func (s *MemoryStore) GetKeyIndex(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, keyID field.Field) (uint64, bool, error) {
	raw, err := s.db.Get(mappingIndexKey(program, mapping, keyID))
	if err != nil {
		return 0, false, fmt.Errorf("kvstore: get key index: %w", err)
	}
	if len(raw) == 0 {
		return 0, false, nil
	}
	var idx uint64
	if err := json.Unmarshal(raw, &idx); err != nil {
		return 0, false, fmt.Errorf("%w: key index: %v", ErrCorruptRecord, err)
	}
	return idx, true, nil
}

// MappingKeyCount implements Store.
func (s *MemoryStore) MappingKeyCount(program ledgertypes.ProgramID, mapping ledgertypes.MappingName) (uint64, error) {
	raw, err := s.db.Get(mappingKeysKey(program, mapping))
	if err != nil {
		return 0, fmt.Errorf("kvstore: list mapping keys: %w", err)
	}
	if len(raw) == 0 {
		return 0, nil
	}
	var hexKeys []string
	if err := json.Unmarshal(raw, &hexKeys); err != nil {
		return 0, fmt.Errorf("%w: mapping key list: %v", ErrCorruptRecord, err)
	}
	return uint64(len(hexKeys)), nil
}

// BuildProgramTree implements Store.
func (s *MemoryStore) BuildProgramTree(id ledgertypes.ProgramID) (*merkle.ProgramTree, error) {
	mappings, err := s.MappingOrder(id)
	if err != nil {
		return nil, err
	}

	roots := make([]field.Field, 0, len(mappings))
	for _, m := range mappings {
		entries, err := s.MappingEntries(id, m)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			// A declared mapping with no entries yet still occupies a
			// leaf slot; its subtree root is the hash of an empty leaf
			// set, consistent with InsertMapping never implying
			// InsertValue.
			roots = append(roots, field.HashBytes("empty-mapping", m.Bytes()))
			continue
		}
		mt, err := merkle.NewMappingTree(entries)
		if err != nil {
			return nil, fmt.Errorf("kvstore: build mapping tree %s/%s: %w", id, m, err)
		}
		roots = append(roots, mt.Root())
	}

	if len(roots) == 0 {
		return nil, fmt.Errorf("kvstore: program %s declares no mappings", id)
	}
	return merkle.NewProgramTree(roots)
}

// MappingEntries implements Store.
func (s *MemoryStore) MappingEntries(program ledgertypes.ProgramID, mapping ledgertypes.MappingName) ([]merkle.MappingEntry, error) {
	raw, err := s.db.Get(mappingKeysKey(program, mapping))
	if err != nil {
		return nil, fmt.Errorf("kvstore: list mapping keys: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var hexKeys []string
	if err := json.Unmarshal(raw, &hexKeys); err != nil {
		return nil, fmt.Errorf("%w: mapping key list: %v", ErrCorruptRecord, err)
	}

	entries := make([]merkle.MappingEntry, 0, len(hexKeys))
	for _, hk := range hexKeys {
		keyID, err := field.ParseHex(hk)
		if err != nil {
			return nil, fmt.Errorf("%w: mapping key: %v", ErrCorruptRecord, err)
		}
		valRaw, err := s.db.Get(mappingValueKey(program, mapping, keyID))
		if err != nil {
			return nil, fmt.Errorf("kvstore: get mapping value: %w", err)
		}
		var valueID field.Field
		if len(valRaw) == 0 {
			// Removed key: tombstoned, matching MappingTree.Remove.
			valueID = merkle.TombstoneValueID(ledgertypes.MappingID(program, mapping), keyID)
		} else {
			v, err := ledgertypes.ParsePlaintext(valRaw)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
			}
			valueID = v.Hash(ledgertypes.ValueIDDomain)
		}
		entries = append(entries, merkle.MappingEntry{KeyID: keyID, ValueID: valueID})
	}
	return entries, nil
}

// RegisterProgram implements Store.
func (s *MemoryStore) RegisterProgram(program *ledgertypes.Program) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.programSet[program.ID] {
		return fmt.Errorf("%w: %s", ErrProgramExists, program.ID)
	}

	meta := programMeta{}
	for _, m := range program.Mappings() {
		meta.MappingOrder = append(meta.MappingOrder, string(m))
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("kvstore: marshal program meta: %w", err)
	}
	if err := s.db.SetSync(programMetaKey(program.ID), metaBytes); err != nil {
		return fmt.Errorf("kvstore: set program meta: %w", err)
	}

	s.programOrder = append(s.programOrder, program.ID)
	s.programSet[program.ID] = true
	s.mappingOrder[program.ID] = append([]ledgertypes.MappingName(nil), program.Mappings()...)

	orderBytes, err := json.Marshal(s.programOrder)
	if err != nil {
		return fmt.Errorf("kvstore: marshal program order: %w", err)
	}
	if err := s.db.SetSync(keyProgramOrder, orderBytes); err != nil {
		return fmt.Errorf("kvstore: set program order: %w", err)
	}

	return nil
}

// ApplyOperations implements Store. values maps the unprefixed hex of
// each key id's bytes (hex.EncodeToString(keyID.Bytes())) to the
// plaintext to persist for Insert/Update ops; Remove ops need no entry.
func (s *MemoryStore) ApplyOperations(program ledgertypes.ProgramID, ops []ledgertypes.MerkleOp, values map[string]ledgertypes.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.programSet[program] {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, program)
	}

	mappingsTouched := map[ledgertypes.MappingName]bool{}

	for _, op := range ops {
		mapping, err := s.mappingByID(program, op.MappingID())
		if err != nil {
			return err
		}
		mappingsTouched[mapping] = true

		switch op.Kind {
		case ledgertypes.OpInsertMapping:
			// Mapping declarations are persisted at RegisterProgram
			// time; nothing further to do here.
			continue
		case ledgertypes.OpInsertValue:
			if err := s.appendMappingKey(program, mapping, op.KeyID); err != nil {
				return err
			}
			if err := s.setMappingValue(program, mapping, op.KeyID, values); err != nil {
				return err
			}
		case ledgertypes.OpUpdateValue:
			if err := s.setMappingValue(program, mapping, op.KeyID, values); err != nil {
				return err
			}
		case ledgertypes.OpRemoveValue:
			if err := s.db.Delete(mappingValueKey(program, mapping, op.KeyID)); err != nil {
				return fmt.Errorf("kvstore: delete mapping value: %w", err)
			}
		}
	}

	return nil
}

func (s *MemoryStore) mappingByID(program ledgertypes.ProgramID, mappingID field.Field) (ledgertypes.MappingName, error) {
	for _, m := range s.mappingOrder[program] {
		if ledgertypes.MappingID(program, m).Equal(mappingID) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: program %s has no mapping with id %s", ErrMappingNotFound, program, mappingID)
}

func (s *MemoryStore) appendMappingKey(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, keyID field.Field) error {
	key := mappingKeysKey(program, mapping)
	raw, err := s.db.Get(key)
	if err != nil {
		return fmt.Errorf("kvstore: list mapping keys: %w", err)
	}
	var hexKeys []string
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &hexKeys); err != nil {
			return fmt.Errorf("%w: mapping key list: %v", ErrCorruptRecord, err)
		}
	}

	idxBytes, err := json.Marshal(uint64(len(hexKeys)))
	if err != nil {
		return fmt.Errorf("kvstore: marshal key index: %w", err)
	}
	if err := s.db.SetSync(mappingIndexKey(program, mapping, keyID), idxBytes); err != nil {
		return fmt.Errorf("kvstore: set key index: %w", err)
	}

	hexKeys = append(hexKeys, keyIDHex(keyID))
	next, err := json.Marshal(hexKeys)
	if err != nil {
		return fmt.Errorf("kvstore: marshal mapping key list: %w", err)
	}
	return s.db.SetSync(key, next)
}

func (s *MemoryStore) setMappingValue(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, keyID field.Field, values map[string]ledgertypes.Value) error {
	v, ok := values[keyIDHex(keyID)]
	if !ok {
		return fmt.Errorf("kvstore: no value supplied for key %s", keyIDHex(keyID))
	}
	return s.db.SetSync(mappingValueKey(program, mapping, keyID), v.Serialize())
}

// InstallStorageTree implements Store.
func (s *MemoryStore) InstallStorageTree(tree *merkle.StorageTree) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	roots := tree.ProgramRoots()
	hexRoots := make([]string, len(roots))
	for i, r := range roots {
		hexRoots[i] = r.String()
	}
	raw, err := json.Marshal(hexRoots)
	if err != nil {
		return fmt.Errorf("kvstore: marshal storage roots: %w", err)
	}
	if err := s.db.SetSync(keyStorageProgramRoots, raw); err != nil {
		return fmt.Errorf("kvstore: set storage roots: %w", err)
	}

	s.storageTree = tree
	return nil
}
