// Copyright 2025 Certen Protocol
//
// Package ledgertypes holds the pure data types the Speculator, Finalize
// Interpreter, Merkle Reconciler, Chain and State-Path Builder all
// operate on: program/mapping/transaction identifiers, plaintext and
// value payloads, finalize commands and the tagged Merkle operation
// union. Nothing here has behavior beyond byte encoding and equality;
// the components in pkg/finalize, pkg/speculator and pkg/chain own the
// logic.
package ledgertypes

import "github.com/certen/speculator-chain/pkg/field"

// ProgramID identifies a deployed program. Opaque, immutable, comparable.
type ProgramID string

// Bytes returns the canonical byte encoding of the id.
func (p ProgramID) Bytes() []byte { return []byte(p) }

// Field returns the field-element digest of the id, used as an input to
// mapping-id derivation.
func (p ProgramID) Field() field.Field {
	return field.HashBytes("program-id", p.Bytes())
}

// MappingName names one mapping owned by a program.
type MappingName string

// Bytes returns the canonical byte encoding of the name.
func (m MappingName) Bytes() []byte { return []byte(m) }

// MappingID derives the field-element digest that addresses a mapping
// within its owning program's ProgramTree (spec.md §4.1's mapping id,
// "derived from the program id and mapping name"). Every component that
// needs to identify a mapping as a Merkle leaf — the Finalize
// Interpreter, the Merkle Reconciler, the KV Store — uses this single
// derivation so their mapping ids always agree.
func MappingID(program ProgramID, mapping MappingName) field.Field {
	return field.Hash2("mapping-id", program.Field(), field.HashBytes("mapping-name", mapping.Bytes()))
}

// Identifier names a register, finalize input parameter, or function.
type Identifier string

// TransactionID is the content-addressed digest of a transaction.
type TransactionID string

// ComputeTransactionID derives a content-addressed id from a
// transaction's canonical byte payload.
func ComputeTransactionID(payload []byte) TransactionID {
	return TransactionID(field.HashBytes("transaction-id", payload).String())
}

// String implements fmt.Stringer.
func (t TransactionID) String() string { return string(t) }
