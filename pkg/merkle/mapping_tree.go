// Copyright 2025 Certen Protocol

package merkle

import "github.com/certen/speculator-chain/pkg/field"

const mappingTreeDomain = "mapping-tree"
const mappingLeafDomain = "mapping-leaf"
const mappingTombstoneDomain = "mapping-tombstone"

// MappingEntry is one (key id, value id) leaf of a mapping subtree.
type MappingEntry struct {
	KeyID   field.Field
	ValueID field.Field
}

func mappingLeaf(entry MappingEntry) field.Field {
	return field.Hash2(mappingLeafDomain, entry.KeyID, entry.ValueID)
}

// TombstoneValueID derives the value id a removed key's leaf is set to:
// a value no legitimate Store command could ever produce, since it is
// domain-separated from every real value encoding.
func TombstoneValueID(mapping, keyID field.Field) field.Field {
	return field.Hash2(mappingTombstoneDomain, mapping, keyID)
}

// MappingTree is the per-mapping Merkle subtree keyed by key_id
// insertion order (spec.md §3, "mapping_tree: MappingTree"). It is
// immutable: every mutation returns a new tree, mirroring the
// speculate-then-commit discipline the rest of the module follows.
type MappingTree struct {
	tree    *Tree
	entries []MappingEntry
}

// NewMappingTree builds a MappingTree from an ordered entry list.
func NewMappingTree(entries []MappingEntry) (*MappingTree, error) {
	leaves := make([]field.Field, len(entries))
	for i, e := range entries {
		leaves[i] = mappingLeaf(e)
	}
	t, err := BuildTree(mappingTreeDomain, leaves)
	if err != nil {
		return nil, err
	}
	return &MappingTree{tree: t, entries: append([]MappingEntry(nil), entries...)}, nil
}

// Root returns the mapping subtree's root.
func (m *MappingTree) Root() field.Field { return m.tree.Root() }

// Len returns the number of key slots (including removed/tombstoned
// ones, since the tree is append-only).
func (m *MappingTree) Len() int { return len(m.entries) }

// Append returns a new MappingTree with entry inserted at the next key
// index (spec.md's InsertValue/InsertMapping op).
func (m *MappingTree) Append(entry MappingEntry) (*MappingTree, error) {
	return NewMappingTree(append(m.entries, entry))
}

// Update returns a new MappingTree with the leaf at index replaced
// (spec.md's UpdateValue op).
func (m *MappingTree) Update(index int, entry MappingEntry) (*MappingTree, error) {
	if index < 0 || index >= len(m.entries) {
		return nil, ErrOutOfRange
	}
	next := append([]MappingEntry(nil), m.entries...)
	next[index] = entry
	return NewMappingTree(next)
}

// Remove returns a new MappingTree with the leaf at index replaced by a
// tombstone (spec.md's RemoveValue op). The tree stays append-only: the
// key index is never reused, only its leaf content changes.
func (m *MappingTree) Remove(index int, mapping, keyID field.Field) (*MappingTree, error) {
	if index < 0 || index >= len(m.entries) {
		return nil, ErrOutOfRange
	}
	next := append([]MappingEntry(nil), m.entries...)
	next[index] = MappingEntry{KeyID: keyID, ValueID: TombstoneValueID(mapping, keyID)}
	return NewMappingTree(next)
}

// GenerateProof builds an inclusion proof for the entry at index.
func (m *MappingTree) GenerateProof(index int) (*InclusionProof, error) {
	return m.tree.GenerateProof(index)
}
