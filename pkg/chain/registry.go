// Copyright 2025 Certen Protocol

package chain

import (
	"encoding/json"
	"fmt"
	"sync"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/speculator-chain/pkg/ledgertypes"
)

var keyProgramPrefix = []byte("chain:program:")

func programKey(id ledgertypes.ProgramID) []byte {
	return append(append([]byte(nil), keyProgramPrefix...), id.Bytes()...)
}

// ProgramRegistry durably stores every deployed program's full
// declaration (mappings, functions, finalize scopes), the half of a
// deployment pkg/kvstore.Store deliberately does not persist (it only
// keeps mapping names). It backs Speculator.ProgramLookup.
type ProgramRegistry struct {
	mu    sync.RWMutex
	db    dbm.DB
	cache map[ledgertypes.ProgramID]*ledgertypes.Program
}

// NewProgramRegistry wraps db as a ProgramRegistry.
func NewProgramRegistry(db dbm.DB) *ProgramRegistry {
	return &ProgramRegistry{db: db, cache: make(map[ledgertypes.ProgramID]*ledgertypes.Program)}
}

// Register durably records a program's full declaration. Returns
// ErrProgramExists if id is already registered.
func (r *ProgramRegistry) Register(program *ledgertypes.Program) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cache[program.ID]; ok {
		return fmt.Errorf("%w: %s", ErrProgramExists, program.ID)
	}
	raw, err := json.Marshal(program)
	if err != nil {
		return fmt.Errorf("chain: marshal program %s: %w", program.ID, err)
	}
	if err := r.db.SetSync(programKey(program.ID), raw); err != nil {
		return fmt.Errorf("chain: store program %s: %w", program.ID, err)
	}
	r.cache[program.ID] = program
	return nil
}

// Lookup implements speculator.ProgramLookupFunc.
func (r *ProgramRegistry) Lookup(id ledgertypes.ProgramID) (*ledgertypes.Program, error) {
	r.mu.RLock()
	if p, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return p, nil
	}
	r.mu.RUnlock()

	raw, err := r.db.Get(programKey(id))
	if err != nil {
		return nil, fmt.Errorf("chain: load program %s: %w", id, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrProgramNotFound, id)
	}
	var p ledgertypes.Program
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: program %s: %v", ErrCorruptRecord, id, err)
	}

	r.mu.Lock()
	r.cache[id] = &p
	r.mu.Unlock()
	return &p, nil
}
