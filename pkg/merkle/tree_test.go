// Copyright 2025 Certen Protocol
//
// Merkle Tree Tests

package merkle

import (
	"testing"

	"github.com/certen/speculator-chain/pkg/field"
)

const testDomain = "test-tree"

func leafOf(b byte) field.Field {
	return field.HashBytes(testDomain, []byte{b})
}

func TestBuildTree_SingleLeaf(t *testing.T) {
	leaf := leafOf(1)
	tree, err := BuildTree(testDomain, []field.Field{leaf})
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	if !tree.Root().Equal(leaf) {
		t.Errorf("single leaf root mismatch: got %s, want %s", tree.Root(), leaf)
	}

	if tree.LeafCount() != 1 {
		t.Errorf("leaf count mismatch: got %d, want 1", tree.LeafCount())
	}
}

func TestBuildTree_TwoLeaves(t *testing.T) {
	leaf1, leaf2 := leafOf(1), leafOf(2)

	tree, err := BuildTree(testDomain, []field.Field{leaf1, leaf2})
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	expectedRoot := field.Hash2(testDomain, leaf1, leaf2)
	if !tree.Root().Equal(expectedRoot) {
		t.Errorf("two leaf root mismatch: got %s, want %s", tree.Root(), expectedRoot)
	}
}

func TestBuildTree_FourLeaves(t *testing.T) {
	leaves := make([]field.Field, 4)
	for i := 0; i < 4; i++ {
		leaves[i] = leafOf(byte(i))
	}

	tree, err := BuildTree(testDomain, leaves)
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	if tree.LeafCount() != 4 {
		t.Errorf("leaf count mismatch: got %d, want 4", tree.LeafCount())
	}

	if tree.Root().IsZero() {
		t.Error("root is zero")
	}
}

func TestBuildTree_OddLeaves(t *testing.T) {
	leaves := make([]field.Field, 3)
	for i := 0; i < 3; i++ {
		leaves[i] = leafOf(byte(i))
	}

	tree, err := BuildTree(testDomain, leaves)
	if err != nil {
		t.Fatalf("failed to build tree with odd leaves: %v", err)
	}

	if tree.LeafCount() != 3 {
		t.Errorf("leaf count mismatch: got %d, want 3", tree.LeafCount())
	}
}

func TestGenerateProof_TwoLeaves(t *testing.T) {
	leaf1, leaf2 := leafOf(1), leafOf(2)

	tree, err := BuildTree(testDomain, []field.Field{leaf1, leaf2})
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	proof0, err := tree.GenerateProof(0)
	if err != nil {
		t.Fatalf("failed to generate proof for leaf 0: %v", err)
	}

	if proof0.LeafIndex != 0 {
		t.Errorf("proof leaf index mismatch: got %d, want 0", proof0.LeafIndex)
	}
	if len(proof0.Path) != 1 {
		t.Errorf("proof path length mismatch: got %d, want 1", len(proof0.Path))
	}
	if proof0.Path[0].Position != Right {
		t.Errorf("sibling position mismatch: got %v, want right", proof0.Path[0].Position)
	}
	if !VerifyProof(testDomain, proof0, tree.Root()) {
		t.Error("proof verification failed for valid proof")
	}

	proof1, err := tree.GenerateProof(1)
	if err != nil {
		t.Fatalf("failed to generate proof for leaf 1: %v", err)
	}
	if proof1.Path[0].Position != Left {
		t.Errorf("sibling position mismatch: got %v, want left", proof1.Path[0].Position)
	}
	if !VerifyProof(testDomain, proof1, tree.Root()) {
		t.Error("proof verification failed for valid proof")
	}
}

func TestGenerateProof_FourLeaves(t *testing.T) {
	leaves := make([]field.Field, 4)
	for i := 0; i < 4; i++ {
		leaves[i] = leafOf(byte(i))
	}

	tree, err := BuildTree(testDomain, leaves)
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	for i := 0; i < 4; i++ {
		proof, err := tree.GenerateProof(i)
		if err != nil {
			t.Fatalf("failed to generate proof for leaf %d: %v", i, err)
		}
		if len(proof.Path) != 2 {
			t.Errorf("leaf %d: proof path length mismatch: got %d, want 2", i, len(proof.Path))
		}
		if !VerifyProof(testDomain, proof, tree.Root()) {
			t.Errorf("leaf %d: proof verification failed", i)
		}
	}
}

func TestGenerateProof_LargeTree(t *testing.T) {
	leaves := make([]field.Field, 100)
	for i := 0; i < 100; i++ {
		leaves[i] = leafOf(byte(i))
	}

	tree, err := BuildTree(testDomain, leaves)
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	for _, i := range []int{0, 1, 49, 50, 99} {
		proof, err := tree.GenerateProof(i)
		if err != nil {
			t.Fatalf("failed to generate proof for leaf %d: %v", i, err)
		}
		if !VerifyProof(testDomain, proof, tree.Root()) {
			t.Errorf("leaf %d: proof verification failed", i)
		}
	}
}

func TestVerifyProof_InvalidProof(t *testing.T) {
	leaf1, leaf2 := leafOf(1), leafOf(2)

	tree, err := BuildTree(testDomain, []field.Field{leaf1, leaf2})
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	proof, err := tree.GenerateProof(0)
	if err != nil {
		t.Fatalf("failed to generate proof: %v", err)
	}

	wrongProof := *proof
	wrongProof.Leaf = leafOf(200)
	if VerifyProof(testDomain, &wrongProof, tree.Root()) {
		t.Error("proof should not be valid for wrong leaf")
	}

	if VerifyProof(testDomain, proof, leafOf(201)) {
		t.Error("proof should not be valid for wrong root")
	}
}

func TestGenerateProofByLeaf(t *testing.T) {
	leaf1, leaf2 := leafOf(1), leafOf(2)

	tree, err := BuildTree(testDomain, []field.Field{leaf1, leaf2})
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	proof, err := tree.GenerateProofByLeaf(leaf2)
	if err != nil {
		t.Fatalf("failed to generate proof by leaf: %v", err)
	}
	if proof.LeafIndex != 1 {
		t.Errorf("leaf index mismatch: got %d, want 1", proof.LeafIndex)
	}
	if !VerifyProof(testDomain, proof, tree.Root()) {
		t.Error("proof verification failed")
	}
}

func TestEmptyTree(t *testing.T) {
	_, err := BuildTree(testDomain, nil)
	if err != ErrEmptyTree {
		t.Errorf("expected ErrEmptyTree, got %v", err)
	}
}

func TestDomainSeparation(t *testing.T) {
	leaves := []field.Field{leafOf(1), leafOf(2)}
	treeA, _ := BuildTree("domain-a", leaves)
	treeB, _ := BuildTree("domain-b", leaves)

	if treeA.Root().Equal(treeB.Root()) {
		t.Error("trees built under different domains must not share roots")
	}
}
