// Copyright 2025 Certen Protocol

package merkle

import "github.com/certen/speculator-chain/pkg/field"

const storageTreeDomain = "storage-tree"

// StorageTree is the top-level Merkle tree over every deployed
// program's root, in first-deployment order (spec.md §3, "storage_tree:
// StorageTree"). It is append-only: new programs extend it, existing
// programs' roots are replaced in place when their state changes.
type StorageTree struct {
	tree         *Tree
	programRoots []field.Field
}

// NewStorageTree builds a StorageTree from ordered program roots.
func NewStorageTree(programRoots []field.Field) (*StorageTree, error) {
	t, err := BuildTree(storageTreeDomain, programRoots)
	if err != nil {
		return nil, err
	}
	return &StorageTree{tree: t, programRoots: append([]field.Field(nil), programRoots...)}, nil
}

// Root returns the storage tree's root — the chain's state root
// (spec.md §4.3 step 6).
func (s *StorageTree) Root() field.Field {
	if s == nil || s.tree == nil {
		return field.Zero()
	}
	return s.tree.Root()
}

// ProgramRoots returns the tree's leaves in program order.
func (s *StorageTree) ProgramRoots() []field.Field {
	if s == nil {
		return nil
	}
	return append([]field.Field(nil), s.programRoots...)
}

// Len reports how many programs the tree currently commits to.
func (s *StorageTree) Len() int {
	if s == nil {
		return 0
	}
	return len(s.programRoots)
}

// PrepareAppend returns a candidate StorageTree with newRoots appended
// for newly-deployed programs, without mutating s (spec.md §9's
// "prepare_append/update_many read-candidate, write-nothing" resolution
// to the write-discipline Open Question).
func (s *StorageTree) PrepareAppend(newRoots []field.Field) (*StorageTree, error) {
	base := s.ProgramRoots()
	return NewStorageTree(append(base, newRoots...))
}

// IndexUpdate pairs a program's position in the tree with its new root.
type IndexUpdate struct {
	Index int
	Root  field.Field
}

// UpdateMany returns a candidate StorageTree with the roots at the
// given indices replaced, without mutating s.
func (s *StorageTree) UpdateMany(updates []IndexUpdate) (*StorageTree, error) {
	base := s.ProgramRoots()
	for _, u := range updates {
		if u.Index < 0 || u.Index >= len(base) {
			return nil, ErrOutOfRange
		}
		base[u.Index] = u.Root
	}
	return NewStorageTree(base)
}

// GenerateProof builds an inclusion proof for the program root at index.
func (s *StorageTree) GenerateProof(index int) (*InclusionProof, error) {
	return s.tree.GenerateProof(index)
}
