// Copyright 2025 Certen Protocol

package kvstore

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/speculator-chain/pkg/field"
	"github.com/certen/speculator-chain/pkg/ledgertypes"
	"github.com/certen/speculator-chain/pkg/merkle"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(dbm.NewMemDB())
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	return s
}

func testProgram(id ledgertypes.ProgramID, mappings ...ledgertypes.MappingName) *ledgertypes.Program {
	return &ledgertypes.Program{ID: id, MappingOrder: mappings}
}

func TestRegisterProgram_RejectsDuplicate(t *testing.T) {
	s := newTestStore(t)
	p := testProgram("token", "balances")
	if err := s.RegisterProgram(p); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := s.RegisterProgram(p); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if !s.ContainsProgram("token") {
		t.Fatalf("expected program to be registered")
	}
}

func TestApplyOperations_InsertUpdateRemove(t *testing.T) {
	s := newTestStore(t)
	p := testProgram("token", "balances")
	if err := s.RegisterProgram(p); err != nil {
		t.Fatalf("register: %v", err)
	}

	mappingID := ledgertypes.MappingID("token", "balances")
	keyID := field.HashBytes(ledgertypes.KeyIDDomain, ledgertypes.FieldValue(field.FromUint64(1)).Serialize())
	value := ledgertypes.UintValue(100)

	insert := ledgertypes.NewInsertValue(mappingID, keyID, value.Hash(ledgertypes.ValueIDDomain))
	values := map[string]ledgertypes.Value{keyIDHex(keyID): value}
	if err := s.ApplyOperations("token", []ledgertypes.MerkleOp{insert}, values); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, ok, err := s.GetValue("token", "balances", keyID)
	if err != nil || !ok {
		t.Fatalf("expected value present, ok=%v err=%v", ok, err)
	}
	if !got.Equal(value) {
		t.Fatalf("value mismatch: got %+v want %+v", got, value)
	}

	idx, ok, err := s.GetKeyIndex("token", "balances", keyID)
	if err != nil || !ok || idx != 0 {
		t.Fatalf("expected key index 0, got idx=%d ok=%v err=%v", idx, ok, err)
	}

	updated := ledgertypes.UintValue(60)
	update := ledgertypes.NewUpdateValue(mappingID, 0, keyID, updated.Hash(ledgertypes.ValueIDDomain))
	values = map[string]ledgertypes.Value{keyIDHex(keyID): updated}
	if err := s.ApplyOperations("token", []ledgertypes.MerkleOp{update}, values); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _, _ = s.GetValue("token", "balances", keyID)
	if !got.Equal(updated) {
		t.Fatalf("expected updated value, got %+v", got)
	}

	remove := ledgertypes.NewRemoveValue(mappingID, 0, keyID)
	if err := s.ApplyOperations("token", []ledgertypes.MerkleOp{remove}, nil); err != nil {
		t.Fatalf("remove: %v", err)
	}
	_, ok, err = s.GetValue("token", "balances", keyID)
	if err != nil || ok {
		t.Fatalf("expected value removed, ok=%v err=%v", ok, err)
	}

	count, err := s.MappingKeyCount("token", "balances")
	if err != nil || count != 1 {
		t.Fatalf("expected key count 1 (tombstones still count), got %d err=%v", count, err)
	}
}

func TestApplyOperations_UnknownProgramFails(t *testing.T) {
	s := newTestStore(t)
	mappingID := ledgertypes.MappingID("missing", "m")
	op := ledgertypes.NewInsertMapping(mappingID)
	if err := s.ApplyOperations("missing", []ledgertypes.MerkleOp{op}, nil); err == nil {
		t.Fatalf("expected error for unregistered program")
	}
}

func TestBuildProgramTree_EmptyMappingGetsPlaceholderLeaf(t *testing.T) {
	s := newTestStore(t)
	p := testProgram("token", "balances", "allowances")
	if err := s.RegisterProgram(p); err != nil {
		t.Fatalf("register: %v", err)
	}

	tree, err := s.BuildProgramTree("token")
	if err != nil {
		t.Fatalf("BuildProgramTree: %v", err)
	}
	if tree.Root().IsZero() {
		t.Fatalf("expected non-zero program root even with no mapping entries")
	}
}

func TestInstallStorageTree_UpdatesCurrentRoot(t *testing.T) {
	s := newTestStore(t)
	if !s.CurrentStorageRoot().IsZero() {
		t.Fatalf("expected zero root before any tree is installed")
	}

	p := testProgram("token", "balances")
	if err := s.RegisterProgram(p); err != nil {
		t.Fatalf("register: %v", err)
	}
	tree, err := s.BuildProgramTree("token")
	if err != nil {
		t.Fatalf("BuildProgramTree: %v", err)
	}
	storageTree, err := merkle.NewStorageTree([]field.Field{tree.Root()})
	if err != nil {
		t.Fatalf("build storage tree: %v", err)
	}
	if err := s.InstallStorageTree(storageTree); err != nil {
		t.Fatalf("InstallStorageTree: %v", err)
	}
	if s.CurrentStorageRoot().IsZero() {
		t.Fatalf("expected non-zero root after install")
	}
}
