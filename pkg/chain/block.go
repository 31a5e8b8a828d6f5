// Copyright 2025 Certen Protocol

package chain

import (
	"github.com/certen/speculator-chain/pkg/field"
	"github.com/certen/speculator-chain/pkg/ledgertypes"
	"github.com/certen/speculator-chain/pkg/merkle"
)

// Block is previous_hash ∥ header ∥ transactions (spec.md §6).
type Block struct {
	PreviousHash field.Field
	Header       Header
	Transactions []ledgertypes.Transaction

	hash field.Field
}

// NewBlock builds a Block and computes its content-addressed hash.
func NewBlock(previousHash field.Field, header Header, txs []ledgertypes.Transaction) (*Block, error) {
	b := &Block{PreviousHash: previousHash, Header: header, Transactions: txs}
	root, err := b.transactionsRoot()
	if err != nil {
		return nil, err
	}
	if !root.Equal(header.TransactionsRoot) {
		return nil, ErrTransactionsRootMismatch
	}
	b.hash = field.Hash2("block-hash", previousHash, header.ID())
	return b, nil
}

// Hash returns the block's content-addressed digest.
func (b *Block) Hash() field.Field { return b.hash }

// Records returns the block's transactions in their durable,
// byte-equality-comparable form.
func (b *Block) Records() []ledgertypes.TransactionRecord {
	out := make([]ledgertypes.TransactionRecord, len(b.Transactions))
	for i, tx := range b.Transactions {
		out[i] = ledgertypes.BuildRecord(tx)
	}
	return out
}

// transactionsRoot builds the Merkle root over hashes of the block's
// transaction bytes (ledgertypes.TransactionBytes), in inclusion order — the leaf set the State-Path Builder's
// transactions_path (spec.md §4.5 step 4) walks.
func (b *Block) transactionsRoot() (field.Field, error) {
	return TransactionsRoot(b.Transactions)
}

// TransactionsRoot hashes each transaction's bytes
// (ledgertypes.TransactionBytes) into a leaf and builds a Merkle root,
// usable both when assembling a Block and when ProposeBlock needs a
// transactions_root before the Block itself exists.
func TransactionsRoot(txs []ledgertypes.Transaction) (field.Field, error) {
	if len(txs) == 0 {
		return field.HashBytes("empty-transactions", nil), nil
	}
	leaves := make([]field.Field, len(txs))
	for i, tx := range txs {
		leaves[i] = field.HashBytes("transaction-leaf", ledgertypes.TransactionBytes(tx))
	}
	tree, err := merkle.BuildTree("transactions", leaves)
	if err != nil {
		return field.Zero(), err
	}
	return tree.Root(), nil
}
