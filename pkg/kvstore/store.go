// Copyright 2025 Certen Protocol
//
// Package kvstore implements the KV Store external collaborator
// (spec.md §3): durable persistence for deployed programs, their
// mapping contents, and the current storage tree, backed by CometBFT's
// dbm.DB.
package kvstore

import (
	"github.com/certen/speculator-chain/pkg/field"
	"github.com/certen/speculator-chain/pkg/ledgertypes"
	"github.com/certen/speculator-chain/pkg/merkle"
)

// Store is the read/write collaborator the Speculator and Chain consume
// for durable program and mapping state (spec.md §3's "KV Store
// (external collaborator)"). Reads are always available; writes are
// only made during the downstream finalize step the Chain performs
// after a successful commit (spec.md §4.3 step 6), never during
// speculation itself.
type Store interface {
	// CurrentStorageRoot returns the most recently installed storage
	// tree's root.
	CurrentStorageRoot() field.Field

	// StorageTree returns a read handle to the current storage tree.
	StorageTree() *merkle.StorageTree

	// ContainsProgram reports whether id has been registered.
	ContainsProgram(id ledgertypes.ProgramID) bool

	// ProgramOrder returns every registered program id in
	// first-deployment order, matching the storage tree's leaf order.
	ProgramOrder() []ledgertypes.ProgramID

	// MappingOrder returns a program's declared mappings in declaration
	// order, matching the program tree's leaf order.
	MappingOrder(id ledgertypes.ProgramID) ([]ledgertypes.MappingName, error)

	// GetValue returns the value stored at key_id in a program's
	// mapping, if present.
	GetValue(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, keyID field.Field) (ledgertypes.Value, bool, error)

	// GetKeyIndex returns the append-order index assigned to key_id in a
	// program's mapping, if it has ever been inserted.
	GetKeyIndex(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, keyID field.Field) (uint64, bool, error)

	// MappingKeyCount returns how many distinct keys have ever been
	// inserted into a program's mapping (removed keys still count,
	// since key indices are never reused).
	MappingKeyCount(program ledgertypes.ProgramID, mapping ledgertypes.MappingName) (uint64, error)

	// BuildProgramTree rebuilds a program's ProgramTree from durable
	// state — the "build_program_tree" read-collaborator operation
	// spec.md §3 names explicitly.
	BuildProgramTree(id ledgertypes.ProgramID) (*merkle.ProgramTree, error)

	// MappingEntries returns the durable (key id, value id) entries for
	// one mapping, in key-index order. The Merkle Reconciler uses this
	// as the baseline it applies a commit's collapsed operations to.
	MappingEntries(program ledgertypes.ProgramID, mapping ledgertypes.MappingName) ([]merkle.MappingEntry, error)

	// RegisterProgram durably records a newly deployed program's
	// identity and mapping declarations. It does not touch the storage
	// tree; callers install the new root separately via
	// InstallStorageTree once the whole block's commit succeeds.
	RegisterProgram(program *ledgertypes.Program) error

	// ApplyOperations durably persists the effect of a program's
	// reconciled MerkleOp log: new/updated/removed key-value pairs and
	// key indices. It is the only place mapping contents are mutated.
	ApplyOperations(program ledgertypes.ProgramID, ops []ledgertypes.MerkleOp, values map[string]ledgertypes.Value) error

	// InstallStorageTree replaces the authoritative storage tree,
	// turning a commit's candidate tree into "the next state" (spec.md
	// §4.3 step 6).
	InstallStorageTree(tree *merkle.StorageTree) error
}
