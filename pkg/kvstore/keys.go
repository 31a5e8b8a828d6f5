// Copyright 2025 Certen Protocol

package kvstore

import (
	"encoding/hex"

	"github.com/certen/speculator-chain/pkg/field"
	"github.com/certen/speculator-chain/pkg/ledgertypes"
)

// ====== KV Key Layout ======
//
// Mirrors the prefix + JSON-blob layout pkg/ledger/store.go uses for
// system ledger state, adapted to program/mapping keyed storage.

var (
	keyProgramOrder        = []byte("kvstore:program:order")         // -> JSON []ProgramID
	keyProgramMetaPrefix   = []byte("kvstore:program:meta:")         // + program id -> JSON programMeta
	keyMappingKeysPrefix   = []byte("kvstore:mapping:keys:")         // + program/mapping -> JSON []hex(key id)
	keyMappingIndexPrefix  = []byte("kvstore:mapping:index:")        // + program/mapping/hex(key id) -> JSON uint64
	keyMappingValuePrefix  = []byte("kvstore:mapping:value:")        // + program/mapping/hex(key id) -> raw Plaintext encoding
	keyStorageProgramRoots = []byte("kvstore:storage:program_roots") // -> JSON []hex(field)
)

func programMetaKey(id ledgertypes.ProgramID) []byte {
	return append(append([]byte(nil), keyProgramMetaPrefix...), id.Bytes()...)
}

func mappingScope(program ledgertypes.ProgramID, mapping ledgertypes.MappingName) []byte {
	out := append([]byte(nil), program.Bytes()...)
	out = append(out, ':')
	return append(out, mapping.Bytes()...)
}

func mappingKeysKey(program ledgertypes.ProgramID, mapping ledgertypes.MappingName) []byte {
	return append(append([]byte(nil), keyMappingKeysPrefix...), mappingScope(program, mapping)...)
}

func mappingIndexKey(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, keyID field.Field) []byte {
	scope := append(mappingScope(program, mapping), ':')
	scope = append(scope, []byte(keyIDHex(keyID))...)
	return append(append([]byte(nil), keyMappingIndexPrefix...), scope...)
}

func mappingValueKey(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, keyID field.Field) []byte {
	scope := append(mappingScope(program, mapping), ':')
	scope = append(scope, []byte(keyIDHex(keyID))...)
	return append(append([]byte(nil), keyMappingValuePrefix...), scope...)
}

func keyIDHex(keyID field.Field) string {
	return hex.EncodeToString(keyID.Bytes())
}
