// Copyright 2025 Certen Protocol

package merkle

import "github.com/certen/speculator-chain/pkg/field"

const programTreeDomain = "program-tree"

// ProgramTree is the per-program Merkle tree over its mappings' roots,
// in mapping declaration order (spec.md §3, "mapping_tree_root(s):
// indexed by declaration order").
type ProgramTree struct {
	tree          *Tree
	mappingRoots  []field.Field
}

// NewProgramTree builds a ProgramTree from ordered mapping subtree
// roots.
func NewProgramTree(mappingRoots []field.Field) (*ProgramTree, error) {
	t, err := BuildTree(programTreeDomain, mappingRoots)
	if err != nil {
		return nil, err
	}
	return &ProgramTree{tree: t, mappingRoots: append([]field.Field(nil), mappingRoots...)}, nil
}

// Root returns the program tree's root.
func (p *ProgramTree) Root() field.Field { return p.tree.Root() }

// MappingRoots returns the program's mapping roots in declaration order.
func (p *ProgramTree) MappingRoots() []field.Field {
	return append([]field.Field(nil), p.mappingRoots...)
}

// WithAppendedMapping returns a new ProgramTree with an additional
// mapping root appended (a newly declared mapping, spec.md's
// InsertMapping op).
func (p *ProgramTree) WithAppendedMapping(root field.Field) (*ProgramTree, error) {
	return NewProgramTree(append(p.mappingRoots, root))
}

// WithUpdatedMapping returns a new ProgramTree with the mapping root at
// index replaced.
func (p *ProgramTree) WithUpdatedMapping(index int, root field.Field) (*ProgramTree, error) {
	if index < 0 || index >= len(p.mappingRoots) {
		return nil, ErrOutOfRange
	}
	next := append([]field.Field(nil), p.mappingRoots...)
	next[index] = root
	return NewProgramTree(next)
}

// GenerateProof builds an inclusion proof for the mapping root at index.
func (p *ProgramTree) GenerateProof(index int) (*InclusionProof, error) {
	return p.tree.GenerateProof(index)
}
