// Copyright 2025 Certen Protocol

package ledgertypes

import "github.com/certen/speculator-chain/pkg/field"

// MerkleOpKind tags the variant carried by a MerkleOp. Spec.md §9
// recommends "a sum type with accessor methods rather than a
// polymorphic hierarchy"; MerkleOp below is exactly that.
type MerkleOpKind uint8

const (
	// OpInsertMapping registers a new mapping leaf under a program tree.
	// It carries no key id and is never subject to stale-op collapse.
	OpInsertMapping MerkleOpKind = iota
	// OpInsertValue inserts a new (key, value) leaf into a mapping
	// subtree.
	OpInsertValue
	// OpUpdateValue replaces the leaf at an existing key index.
	OpUpdateValue
	// OpRemoveValue deletes the leaf at an existing key index. This
	// extends spec.md's three-variant union with the Remove finalize
	// command supplemented from original_source/synthesizer (see
	// SPEC_FULL.md §4.2); the reconciler collapses it like any other
	// operation sharing a key id.
	OpRemoveValue
)

// MerkleOp is the tagged operation the Speculator's per-transaction
// scratch records while the Finalize Interpreter runs, and the Merkle
// Reconciler consumes.
type MerkleOp struct {
	Kind      MerkleOpKind
	Mapping   field.Field // mapping id, always present
	KeyIndex  uint64      // valid for Update/Remove
	HasKeyID  bool        // false only for InsertMapping
	KeyID     field.Field
	ValueID   field.Field // valid for Insert/Update
}

// NewInsertMapping constructs an InsertMapping op.
func NewInsertMapping(mappingID field.Field) MerkleOp {
	return MerkleOp{Kind: OpInsertMapping, Mapping: mappingID}
}

// NewInsertValue constructs an InsertValue op.
func NewInsertValue(mappingID, keyID, valueID field.Field) MerkleOp {
	return MerkleOp{Kind: OpInsertValue, Mapping: mappingID, HasKeyID: true, KeyID: keyID, ValueID: valueID}
}

// NewUpdateValue constructs an UpdateValue op.
func NewUpdateValue(mappingID field.Field, keyIndex uint64, keyID, valueID field.Field) MerkleOp {
	return MerkleOp{Kind: OpUpdateValue, Mapping: mappingID, KeyIndex: keyIndex, HasKeyID: true, KeyID: keyID, ValueID: valueID}
}

// NewRemoveValue constructs a RemoveValue op.
func NewRemoveValue(mappingID field.Field, keyIndex uint64, keyID field.Field) MerkleOp {
	return MerkleOp{Kind: OpRemoveValue, Mapping: mappingID, KeyIndex: keyIndex, HasKeyID: true, KeyID: keyID}
}

// MappingID returns the mapping id the op addresses.
func (op MerkleOp) MappingID() field.Field { return op.Mapping }

// KeyIDOpt returns (key id, true) for every variant except
// InsertMapping, which has no key id.
func (op MerkleOp) KeyIDOpt() (field.Field, bool) {
	if !op.HasKeyID {
		return field.Zero(), false
	}
	return op.KeyID, true
}

// SameKey reports whether two ops address the same key id within the
// same mapping — the same (mapping, key id) identity the reconciler's
// stale-op collapse groups by, though the collapse keys its own map on
// it rather than calling SameKey.
func (op MerkleOp) SameKey(other MerkleOp) bool {
	a, aok := op.KeyIDOpt()
	b, bok := other.KeyIDOpt()
	if !aok || !bok {
		return false
	}
	return op.Mapping.Equal(other.Mapping) && a.Equal(b)
}
