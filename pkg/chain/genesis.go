// Copyright 2025 Certen Protocol

package chain

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/certen/speculator-chain/pkg/field"
)

// genesisBlob is the embedded genesis block descriptor, matching the
// teacher's pkg/database //go:embed migrations/*.sql pattern for
// shipping a static asset inside the binary rather than reading it from
// disk at startup.
//
//go:embed genesis.json
var genesisBlob []byte

type genesisDoc struct {
	NetworkID uint16 `json:"network_id"`
	Timestamp int64  `json:"timestamp"`
}

// LoadGenesis decodes the embedded genesis block: height 0, an all-zero
// previous hash and state root, an empty transaction list, and the
// network id / timestamp baked into the embedded blob.
func LoadGenesis() (*Block, error) {
	var doc genesisDoc
	if err := json.Unmarshal(genesisBlob, &doc); err != nil {
		return nil, fmt.Errorf("chain: parse genesis blob: %w", err)
	}

	txRoot, err := TransactionsRoot(nil)
	if err != nil {
		return nil, err
	}

	header := Header{
		PreviousStateRoot: field.Zero(),
		TransactionsRoot:  txRoot,
		FinalizeRoot:      field.Zero(),
		NetworkID:         doc.NetworkID,
		Height:            0,
		Round:             1,
		Timestamp:         doc.Timestamp,
	}
	return NewBlock(field.Zero(), header, nil)
}
