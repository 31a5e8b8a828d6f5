// Copyright 2025 Certen Protocol

package merkle

import (
	"sync"

	"github.com/certen/speculator-chain/pkg/field"
)

const (
	blockTreeDomain = "block-tree"
	// BlockTreeDepth matches the network's BHP Merkle tree depth for
	// blocks (spec.md §4.4, "a BHP Merkle tree of depth 32").
	BlockTreeDepth = 32
)

var (
	emptyHashesOnce sync.Once
	emptyHashes     [BlockTreeDepth + 1]field.Field
)

func initEmptyHashes() {
	emptyHashes[0] = field.Zero()
	for i := 1; i <= BlockTreeDepth; i++ {
		emptyHashes[i] = field.Hash2(blockTreeDomain, emptyHashes[i-1], emptyHashes[i-1])
	}
}

// emptyHashAt returns the root of an empty subtree of the given height
// (0 = a single empty leaf).
func emptyHashAt(height int) field.Field {
	emptyHashesOnce.Do(initEmptyHashes)
	return emptyHashes[height]
}

// BlockTree is the fixed-depth, append-only Merkle tree over block
// hashes (spec.md §4.4). Rather than materialize 2^32 leaves, it builds
// a dense tree over the blocks actually appended and pads the remaining
// height with precomputed empty-subtree hashes, a standard sparse
// Merkle tree technique.
type BlockTree struct {
	mu     sync.RWMutex
	leaves []field.Field
}

// NewBlockTree creates an empty block tree.
func NewBlockTree() *BlockTree {
	return &BlockTree{}
}

// Append adds a block hash as the next leaf. It returns ErrOutOfRange
// once the tree already holds 2^BlockTreeDepth leaves.
func (b *BlockTree) Append(hash field.Field) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if uint64(len(b.leaves)) >= uint64(1)<<BlockTreeDepth {
		return ErrOutOfRange
	}
	b.leaves = append(b.leaves, hash)
	return nil
}

// Len returns the number of leaves appended so far.
func (b *BlockTree) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.leaves)
}

// denseHeight returns the number of levels needed to cover n leaves.
func denseHeight(n int) int {
	h := 0
	for (1 << h) < n {
		h++
	}
	return h
}

// Root returns the depth-32 root, padding unused height with empty
// subtree hashes.
func (b *BlockTree) Root() field.Field {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rootLocked()
}

func (b *BlockTree) rootLocked() field.Field {
	if len(b.leaves) == 0 {
		return emptyHashAt(BlockTreeDepth)
	}

	dense, err := BuildTree(blockTreeDomain, b.leaves)
	if err != nil {
		return emptyHashAt(BlockTreeDepth)
	}

	height := denseHeight(len(b.leaves))
	root := dense.Root()
	for level := height; level < BlockTreeDepth; level++ {
		root = field.Hash2(blockTreeDomain, root, emptyHashAt(level))
	}
	return root
}

// GenerateProof builds a depth-32 inclusion proof for the leaf at index.
func (b *BlockTree) GenerateProof(index int) (*InclusionProof, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if index < 0 || index >= len(b.leaves) {
		return nil, ErrOutOfRange
	}

	dense, err := BuildTree(blockTreeDomain, b.leaves)
	if err != nil {
		return nil, err
	}

	denseProof, err := dense.GenerateProof(index)
	if err != nil {
		return nil, err
	}

	proof := &InclusionProof{
		Leaf:      denseProof.Leaf,
		LeafIndex: index,
		TreeSize:  len(b.leaves),
		Path:      append([]ProofNode(nil), denseProof.Path...),
	}

	height := denseHeight(len(b.leaves))
	for level := height; level < BlockTreeDepth; level++ {
		proof.Path = append(proof.Path, ProofNode{Sibling: emptyHashAt(level), Position: Right})
	}
	proof.Root = b.rootLocked()

	return proof, nil
}

// VerifyBlockProof verifies a depth-32 inclusion proof.
func VerifyBlockProof(proof *InclusionProof, expectedRoot field.Field) bool {
	return VerifyProof(blockTreeDomain, proof, expectedRoot)
}
