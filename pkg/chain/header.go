// Copyright 2025 Certen Protocol

package chain

import (
	"encoding/binary"

	"github.com/certen/speculator-chain/pkg/field"
)

// Header is a block's metadata (spec.md §6): the bit-stable fields that
// hash into header_bytes, plus the coinbase/proof-target pair spec.md
// §4.4 flags as a TODO in the source this module was distilled from
// (here they are required ProposeBlock inputs, not hardcoded zero).
type Header struct {
	PreviousStateRoot     field.Field
	TransactionsRoot      field.Field
	FinalizeRoot          field.Field
	NetworkID             uint16
	Height                uint32
	Round                 uint64
	CoinbaseTarget        uint64
	ProofTarget           uint64
	LastCoinbaseTarget    uint64
	LastCoinbaseTimestamp int64
	Timestamp             int64
}

// Bytes returns header_bytes = previous_state_root ∥ transactions_root ∥
// finalize_root ∥ metadata, per spec.md §6.
func (h Header) Bytes() []byte {
	out := make([]byte, 0, 3*32+2+4+8*4+8+8)
	out = append(out, h.PreviousStateRoot.Bytes()...)
	out = append(out, h.TransactionsRoot.Bytes()...)
	out = append(out, h.FinalizeRoot.Bytes()...)

	var u16 [2]byte
	binary.LittleEndian.PutUint16(u16[:], h.NetworkID)
	out = append(out, u16[:]...)

	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], h.Height)
	out = append(out, u32[:]...)

	var u64 [8]byte
	for _, v := range []uint64{h.Round, h.CoinbaseTarget, h.ProofTarget, h.LastCoinbaseTarget} {
		binary.LittleEndian.PutUint64(u64[:], v)
		out = append(out, u64[:]...)
	}
	for _, v := range []int64{h.LastCoinbaseTimestamp, h.Timestamp} {
		binary.LittleEndian.PutUint64(u64[:], uint64(v))
		out = append(out, u64[:]...)
	}
	return out
}

// ID hashes header_bytes into a single digest, which NewBlock combines
// with the previous block hash to form the block hash. The State-Path
// Builder's header_leaf is Leaves()[1] (TransactionsRoot), not ID.
func (h Header) ID() field.Field {
	return field.HashBytes("header-id", h.Bytes())
}

// Leaves returns the header's Merkle leaves in the fixed slot order
// spec.md §4.5 relies on: 0 = previous_state_root, 1 = transactions_root,
// 2 = finalize_root, 3 = metadata digest.
func (h Header) Leaves() []field.Field {
	metadata := field.HashBytes("header-metadata", h.metadataBytes())
	return []field.Field{h.PreviousStateRoot, h.TransactionsRoot, h.FinalizeRoot, metadata}
}

func (h Header) metadataBytes() []byte {
	b := h.Bytes()
	return b[3*32:]
}
