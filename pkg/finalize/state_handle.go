// Copyright 2025 Certen Protocol

package finalize

import "github.com/certen/speculator-chain/pkg/ledgertypes"

// StateHandle is the mapping read/write surface the Finalize
// Interpreter runs its Store/Remove/Get/GetOrUse/Contains commands
// against. It is never the KV Store directly: the Speculator implements
// this interface over its in-memory overlay so that evaluation never
// touches durable state until a block commits (spec.md §4.2, "the
// Speculator as read/write handle").
type StateHandle interface {
	GetValue(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, key ledgertypes.Value) (ledgertypes.Value, bool, error)
	ContainsValue(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, key ledgertypes.Value) (bool, error)
	SetValue(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, key, value ledgertypes.Value) error
	RemoveValue(program ledgertypes.ProgramID, mapping ledgertypes.MappingName, key ledgertypes.Value) error
}
