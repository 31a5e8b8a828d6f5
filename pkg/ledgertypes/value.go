// Copyright 2025 Certen Protocol

package ledgertypes

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/certen/speculator-chain/pkg/field"
)

// ValueKind tags the payload carried by a Plaintext/Value.
type ValueKind uint8

const (
	// KindUint64 marks an integer payload usable in arithmetic finalize
	// commands (Add/Sub/IsEq).
	KindUint64 ValueKind = iota
	// KindField marks an opaque field-element payload (commitments,
	// serial numbers, derived ids) with no defined arithmetic.
	KindField
	// KindBool marks a boolean payload.
	KindBool
	// KindBytes marks an opaque byte-string payload.
	KindBytes
)

// Domain tags used when deriving Merkle-leaf identity from a Plaintext:
// mapping keys and mapping values are hashed under different domains so
// a key can never collide with a value of the same encoding.
const (
	KeyIDDomain   = "mapping-key"
	ValueIDDomain = "mapping-value"
)

// Plaintext is a canonical, byte-serializable payload: a mapping key, a
// mapping value, or a finalize register value. Spec.md treats Plaintext
// and Value as two entities with identical essential attributes; this
// module implements both as the same concrete type.
type Plaintext struct {
	Kind  ValueKind
	Int   uint64
	Num   field.Field
	Flag  bool
	Bytes []byte
}

// Value is an alias for Plaintext: finalize registers and mapping
// contents share the same representation in this module.
type Value = Plaintext

// UintValue constructs an integer Plaintext.
func UintValue(v uint64) Plaintext {
	return Plaintext{Kind: KindUint64, Int: v}
}

// FieldValue constructs an opaque field-element Plaintext.
func FieldValue(v field.Field) Plaintext {
	return Plaintext{Kind: KindField, Num: v}
}

// BoolValue constructs a boolean Plaintext.
func BoolValue(v bool) Plaintext {
	return Plaintext{Kind: KindBool, Flag: v}
}

// BytesValue constructs an opaque byte-string Plaintext.
func BytesValue(b []byte) Plaintext {
	out := make([]byte, len(b))
	copy(out, b)
	return Plaintext{Kind: KindBytes, Bytes: out}
}

// Serialize returns the canonical encoding used for hashing and Merkle
// leaves: a one-byte kind tag followed by the kind-specific payload.
// Integers are little-endian; a field payload is field.Field.Bytes(),
// which is big-endian.
func (p Plaintext) Serialize() []byte {
	switch p.Kind {
	case KindUint64:
		b := make([]byte, 9)
		b[0] = byte(KindUint64)
		binary.LittleEndian.PutUint64(b[1:], p.Int)
		return b
	case KindField:
		return append([]byte{byte(KindField)}, p.Num.Bytes()...)
	case KindBool:
		b := byte(0)
		if p.Flag {
			b = 1
		}
		return []byte{byte(KindBool), b}
	case KindBytes:
		lenPrefix := make([]byte, 8)
		binary.LittleEndian.PutUint64(lenPrefix, uint64(len(p.Bytes)))
		out := append([]byte{byte(KindBytes)}, lenPrefix...)
		return append(out, p.Bytes...)
	default:
		return []byte{byte(p.Kind)}
	}
}

// ParsePlaintext decodes the canonical encoding produced by Serialize,
// used by pkg/kvstore to round-trip values through durable storage.
func ParsePlaintext(b []byte) (Plaintext, error) {
	if len(b) == 0 {
		return Plaintext{}, fmt.Errorf("ledgertypes: empty plaintext encoding")
	}
	switch ValueKind(b[0]) {
	case KindUint64:
		if len(b) != 9 {
			return Plaintext{}, fmt.Errorf("ledgertypes: malformed uint64 plaintext (%d bytes)", len(b))
		}
		return UintValue(binary.LittleEndian.Uint64(b[1:])), nil
	case KindField:
		return FieldValue(field.FromBytes(b[1:])), nil
	case KindBool:
		if len(b) != 2 {
			return Plaintext{}, fmt.Errorf("ledgertypes: malformed bool plaintext (%d bytes)", len(b))
		}
		return BoolValue(b[1] != 0), nil
	case KindBytes:
		if len(b) < 9 {
			return Plaintext{}, fmt.Errorf("ledgertypes: malformed bytes plaintext (%d bytes)", len(b))
		}
		n := binary.LittleEndian.Uint64(b[1:9])
		if uint64(len(b)-9) != n {
			return Plaintext{}, fmt.Errorf("ledgertypes: bytes plaintext length mismatch")
		}
		return BytesValue(b[9:]), nil
	default:
		return Plaintext{}, fmt.Errorf("ledgertypes: unknown plaintext kind %d", b[0])
	}
}

// Hash returns H(plaintext) under the given domain tag, used to derive
// key ids and value ids.
func (p Plaintext) Hash(domain string) field.Field {
	return field.HashBytes(domain, p.Serialize())
}

// MarshalJSON encodes a Plaintext as the hex string of its canonical
// Serialize() encoding, so a deployed program's finalize literals survive
// a round trip through the Chain's durable program registry.
func (p Plaintext) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(p.Serialize()))
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (p *Plaintext) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("ledgertypes: unmarshal plaintext: %w", err)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("ledgertypes: decode plaintext hex: %w", err)
	}
	v, err := ParsePlaintext(raw)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// AsUint64 extracts the integer payload of a KindUint64 Plaintext.
func (p Plaintext) AsUint64() (uint64, error) {
	if p.Kind != KindUint64 {
		return 0, fmt.Errorf("ledgertypes: value is not an integer (kind %d)", p.Kind)
	}
	return p.Int, nil
}

// Equal reports structural equality between two Plaintexts.
func (p Plaintext) Equal(other Plaintext) bool {
	if p.Kind != other.Kind {
		return false
	}
	switch p.Kind {
	case KindUint64:
		return p.Int == other.Int
	case KindField:
		return p.Num.Equal(other.Num)
	case KindBool:
		return p.Flag == other.Flag
	case KindBytes:
		if len(p.Bytes) != len(other.Bytes) {
			return false
		}
		for i := range p.Bytes {
			if p.Bytes[i] != other.Bytes[i] {
				return false
			}
		}
		return true
	}
	return false
}
