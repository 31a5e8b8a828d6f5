// Copyright 2025 Certen Protocol
//
// Portable Merkle Receipt
//
// A Receipt is a JSON-serializable, independently re-verifiable form of
// an InclusionProof: every field.Field is hex-encoded and the domain
// string travels with the proof, so a verifier with no access to this
// module's Tree type (or even this language) can recompute the root
// from Start through Entries and compare it against Anchor.
package merkle

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/certen/speculator-chain/pkg/field"
)

// Receipt is a portable Merkle proof that can be independently
// verified without trusting the node that produced it.
//
// Verification invariants (fail-closed):
//  1. Start must be exactly 32 bytes (hex-encoded)
//  2. Anchor must be exactly 32 bytes (hex-encoded)
//  3. Each Entry.Sibling must be exactly 32 bytes (hex-encoded)
//  4. Re-deriving the path from Start through Entries under Domain
//     must equal Anchor
type Receipt struct {
	// Domain scopes the pair-hash exactly as the originating Tree's
	// domain did (e.g. "transition", "header", "block-tree").
	Domain string `json:"domain"`

	// Start is the leaf value being proven, hex-encoded.
	Start string `json:"start"`

	// Anchor is the root reached by applying Entries to Start.
	Anchor string `json:"anchor"`

	// Entries is the path from Start to Anchor, ordered leaf-to-root.
	Entries []ReceiptEntry `json:"entries"`
}

// ReceiptEntry is one step of a Receipt's path.
type ReceiptEntry struct {
	// Sibling is the hex-encoded value combined with the running hash
	// at this level.
	Sibling string `json:"sibling"`

	// Right reports whether Sibling sits to the right of the running
	// hash (Position == merkle.Right).
	Right bool `json:"right"`
}

// NewReceipt converts an InclusionProof into its portable form.
func NewReceipt(domain string, proof *InclusionProof) *Receipt {
	r := &Receipt{
		Domain:  domain,
		Start:   hex.EncodeToString(proof.Leaf.Bytes()),
		Anchor:  hex.EncodeToString(proof.Root.Bytes()),
		Entries: make([]ReceiptEntry, len(proof.Path)),
	}
	for i, node := range proof.Path {
		r.Entries[i] = ReceiptEntry{
			Sibling: hex.EncodeToString(node.Sibling.Bytes()),
			Right:   node.Position == Right,
		}
	}
	return r
}

// Validate recomputes Anchor from Start through Entries and reports
// whether it matches, failing closed on any malformed hex field.
func (r *Receipt) Validate() error {
	current, err := decodeFieldHex(r.Start, "receipt.start")
	if err != nil {
		return err
	}
	anchor, err := decodeFieldHex(r.Anchor, "receipt.anchor")
	if err != nil {
		return err
	}

	for i, entry := range r.Entries {
		sibling, err := decodeFieldHex(entry.Sibling, fmt.Sprintf("receipt.entries[%d].sibling", i))
		if err != nil {
			return err
		}
		if entry.Right {
			current = hashPair(r.Domain, current, sibling)
		} else {
			current = hashPair(r.Domain, sibling, current)
		}
	}

	if !bytes.Equal(current.Bytes(), anchor.Bytes()) {
		return fmt.Errorf("merkle: receipt recomputation mismatch: computed=%x, expected=%x", current.Bytes(), anchor.Bytes())
	}
	return nil
}

// ComputeRoot recomputes the root from Start through Entries without
// checking it against Anchor; callers that only want the derived root
// (rather than a yes/no validity check) use this directly.
func (r *Receipt) ComputeRoot() (field.Field, error) {
	current, err := decodeFieldHex(r.Start, "receipt.start")
	if err != nil {
		return field.Field{}, err
	}
	for i, entry := range r.Entries {
		sibling, err := decodeFieldHex(entry.Sibling, fmt.Sprintf("receipt.entries[%d].sibling", i))
		if err != nil {
			return field.Field{}, err
		}
		if entry.Right {
			current = hashPair(r.Domain, current, sibling)
		} else {
			current = hashPair(r.Domain, sibling, current)
		}
	}
	return current, nil
}

// ToJSON marshals the receipt for transport to an external verifier.
func (r *Receipt) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// ReceiptFromJSON parses a Receipt previously produced by ToJSON.
func ReceiptFromJSON(data []byte) (*Receipt, error) {
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func decodeFieldHex(s, label string) (field.Field, error) {
	if s == "" {
		return field.Field{}, fmt.Errorf("%s: empty", label)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return field.Field{}, fmt.Errorf("%s: invalid hex: %w", label, err)
	}
	if len(raw) != 32 {
		return field.Field{}, fmt.Errorf("%s: expected 32 bytes, got %d", label, len(raw))
	}
	return field.FromBytes(raw), nil
}
