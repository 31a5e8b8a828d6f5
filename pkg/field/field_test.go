// Copyright 2025 Certen Protocol

package field

import "testing"

func TestFromBytesRoundTrip(t *testing.T) {
	a := FromUint64(42)
	if a.IsZero() {
		t.Fatalf("expected non-zero field element")
	}
	if !a.Equal(FromUint64(42)) {
		t.Fatalf("expected equal field elements for same input")
	}
}

func TestHash2Deterministic(t *testing.T) {
	a := HashBytes("test", []byte("program"))
	b := HashBytes("test", []byte("mapping"))

	h1 := Hash2("mapping-id", a, b)
	h2 := Hash2("mapping-id", a, b)
	if !h1.Equal(h2) {
		t.Fatalf("Hash2 is not deterministic")
	}

	h3 := Hash2("mapping-id", b, a)
	if h1.Equal(h3) {
		t.Fatalf("Hash2 should not be symmetric")
	}
}

func TestHashDomainSeparation(t *testing.T) {
	data := []byte("same-bytes")
	a := HashBytes("domain-a", data)
	b := HashBytes("domain-b", data)
	if a.Equal(b) {
		t.Fatalf("expected distinct domains to produce distinct hashes")
	}
}

func TestStringParseHexRoundTrip(t *testing.T) {
	a := FromUint64(7)
	s := a.String()
	b, err := ParseHex(s)
	if err != nil {
		t.Fatalf("ParseHex failed: %v", err)
	}
	if !a.Equal(b) {
		t.Fatalf("round trip mismatch: %s vs %s", a, b)
	}
}
