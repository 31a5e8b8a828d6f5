// Copyright 2025 Certen Protocol
//
// Durable guard-state persistence for Chain: heights, hashes, headers,
// previous-hash links, and the uniqueness sets add_next's guards check
// (serial numbers, commitments, transaction bodies). Read accessors that
// need full transaction/transition structure (GetBlockTransactions,
// the State-Path Builder) are served from Chain's in-memory block cache
// instead — full Transaction values carry derived, unexported fields
// (Transition.id) this module deliberately does not force through a
// byte codec, matching the reference scope kvstore.Store already sets
// for deployed programs (mapping names persist, finalize bytecode does
// not). A production deployment would add a dedicated wire codec for
// both; see DESIGN.md.
package chain

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/speculator-chain/pkg/field"
	"github.com/certen/speculator-chain/pkg/ledgertypes"
)

// ChainStore is the durable half of Chain's state: everything add_next's
// guards G1-G8 need to survive a restart.
type ChainStore interface {
	Latest() (height uint32, hash field.Field, ok bool, err error)
	SetLatest(height uint32, hash field.Field) error

	PutHeight(height uint32, previousHash field.Field, header Header, records []ledgertypes.TransactionRecord) error
	GetPreviousHash(height uint32) (field.Field, bool, error)
	GetHeader(height uint32) (*Header, bool, error)
	GetTransactionRecords(height uint32) ([]ledgertypes.TransactionRecord, bool, error)

	ContainsHeight(height uint32) (bool, error)
	ContainsBlockHash(hash field.Field) (bool, error)
	ContainsStateRoot(root field.Field) (bool, error)
	ContainsTransactionBytes(body []byte) (bool, error)
	ContainsSerialNumber(sn field.Field) (bool, error)
	ContainsCommitment(c field.Field) (bool, error)

	RecordStateRoot(root field.Field) error

	// BlockHashes returns every appended block hash in height order,
	// used to rebuild the in-memory block tree on startup.
	BlockHashes() ([]field.Field, error)
	AppendBlockHash(hash field.Field) error
}

var (
	keyLatest          = []byte("chain:latest") // -> JSON{Height, Hash hex}
	keyHeightPrefix    = []byte("chain:height:") // + BE height -> JSON heightRecord
	keyBlockHashPrefix = []byte("chain:index:hash:")
	keyStateRootPrefix = []byte("chain:index:root:")
	keySerialPrefix    = []byte("chain:index:sn:")
	keyCommitPrefix    = []byte("chain:index:commit:")
	keyTxBodyPrefix    = []byte("chain:index:txbody:")
	keyBlockHashList   = []byte("chain:blockhashes")
)

func heightKey(height uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, height)
	return append(append([]byte(nil), keyHeightPrefix...), b...)
}

func fieldKey(prefix []byte, f field.Field) []byte {
	return append(append([]byte(nil), prefix...), []byte(f.String())...)
}

func bytesKey(prefix []byte, b []byte) []byte {
	h := field.HashBytes("chain-body-index", b)
	return fieldKey(prefix, h)
}

// headerJSON is Header's durable encoding: Field members as hex strings.
type headerJSON struct {
	PreviousStateRoot     string `json:"previous_state_root"`
	TransactionsRoot      string `json:"transactions_root"`
	FinalizeRoot          string `json:"finalize_root"`
	NetworkID             uint16 `json:"network_id"`
	Height                uint32 `json:"height"`
	Round                 uint64 `json:"round"`
	CoinbaseTarget        uint64 `json:"coinbase_target"`
	ProofTarget           uint64 `json:"proof_target"`
	LastCoinbaseTarget    uint64 `json:"last_coinbase_target"`
	LastCoinbaseTimestamp int64  `json:"last_coinbase_timestamp"`
	Timestamp             int64  `json:"timestamp"`
}

func (h Header) toJSON() headerJSON {
	return headerJSON{
		PreviousStateRoot:     h.PreviousStateRoot.String(),
		TransactionsRoot:      h.TransactionsRoot.String(),
		FinalizeRoot:          h.FinalizeRoot.String(),
		NetworkID:             h.NetworkID,
		Height:                h.Height,
		Round:                 h.Round,
		CoinbaseTarget:        h.CoinbaseTarget,
		ProofTarget:           h.ProofTarget,
		LastCoinbaseTarget:    h.LastCoinbaseTarget,
		LastCoinbaseTimestamp: h.LastCoinbaseTimestamp,
		Timestamp:             h.Timestamp,
	}
}

func (j headerJSON) toHeader() (Header, error) {
	prev, err := field.ParseHex(j.PreviousStateRoot)
	if err != nil {
		return Header{}, err
	}
	txRoot, err := field.ParseHex(j.TransactionsRoot)
	if err != nil {
		return Header{}, err
	}
	finRoot, err := field.ParseHex(j.FinalizeRoot)
	if err != nil {
		return Header{}, err
	}
	return Header{
		PreviousStateRoot:     prev,
		TransactionsRoot:      txRoot,
		FinalizeRoot:          finRoot,
		NetworkID:             j.NetworkID,
		Height:                j.Height,
		Round:                 j.Round,
		CoinbaseTarget:        j.CoinbaseTarget,
		ProofTarget:           j.ProofTarget,
		LastCoinbaseTarget:    j.LastCoinbaseTarget,
		LastCoinbaseTimestamp: j.LastCoinbaseTimestamp,
		Timestamp:             j.Timestamp,
	}, nil
}

type heightRecord struct {
	PreviousHash string                           `json:"previous_hash"`
	Header       headerJSON                       `json:"header"`
	Transactions []ledgertypes.TransactionRecord `json:"transactions"`
}

type latestRecord struct {
	Height uint32 `json:"height"`
	Hash   string `json:"hash"`
}

// MemoryChainStore is the reference ChainStore, backed by a CometBFT
// dbm.DB, in the same prefix-key-over-a-flat-KV style as
// pkg/kvstore.MemoryStore and pkg/ledger.LedgerStore.
type MemoryChainStore struct {
	db dbm.DB
}

// NewMemoryChainStore wraps db as a ChainStore.
func NewMemoryChainStore(db dbm.DB) *MemoryChainStore {
	return &MemoryChainStore{db: db}
}

// Latest implements ChainStore.
func (s *MemoryChainStore) Latest() (uint32, field.Field, bool, error) {
	raw, err := s.db.Get(keyLatest)
	if err != nil {
		return 0, field.Zero(), false, fmt.Errorf("chain: get latest: %w", err)
	}
	if len(raw) == 0 {
		return 0, field.Zero(), false, nil
	}
	var r latestRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return 0, field.Zero(), false, fmt.Errorf("%w: latest: %v", ErrCorruptRecord, err)
	}
	hash, err := field.ParseHex(r.Hash)
	if err != nil {
		return 0, field.Zero(), false, fmt.Errorf("%w: latest hash: %v", ErrCorruptRecord, err)
	}
	return r.Height, hash, true, nil
}

// SetLatest implements ChainStore.
func (s *MemoryChainStore) SetLatest(height uint32, hash field.Field) error {
	raw, err := json.Marshal(latestRecord{Height: height, Hash: hash.String()})
	if err != nil {
		return fmt.Errorf("chain: marshal latest: %w", err)
	}
	if err := s.db.SetSync(keyLatest, raw); err != nil {
		return fmt.Errorf("chain: set latest: %w", err)
	}
	return s.db.SetSync(fieldKey(keyBlockHashPrefix, hash), []byte{1})
}

// PutHeight implements ChainStore, durably recording one height's
// previous-hash link, header, and transaction records, and indexing
// every serial number, commitment, and transaction body the height
// introduces.
func (s *MemoryChainStore) PutHeight(height uint32, previousHash field.Field, header Header, records []ledgertypes.TransactionRecord) error {
	rec := heightRecord{
		PreviousHash: previousHash.String(),
		Header:       header.toJSON(),
		Transactions: records,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("chain: marshal height record: %w", err)
	}
	if err := s.db.SetSync(heightKey(height), raw); err != nil {
		return fmt.Errorf("chain: set height record: %w", err)
	}

	for _, tr := range records {
		if err := s.db.SetSync(bytesKey(keyTxBodyPrefix, tr.Bytes), []byte{1}); err != nil {
			return fmt.Errorf("chain: index transaction body: %w", err)
		}
		for _, sn := range tr.SerialNumbers {
			if err := s.db.SetSync(fieldKey(keySerialPrefix, sn), []byte{1}); err != nil {
				return fmt.Errorf("chain: index serial number: %w", err)
			}
		}
		for _, c := range tr.Commitments {
			if err := s.db.SetSync(fieldKey(keyCommitPrefix, c), []byte{1}); err != nil {
				return fmt.Errorf("chain: index commitment: %w", err)
			}
		}
	}
	return s.RecordStateRoot(header.PreviousStateRoot)
}

// GetPreviousHash implements ChainStore.
func (s *MemoryChainStore) GetPreviousHash(height uint32) (field.Field, bool, error) {
	rec, ok, err := s.getHeightRecord(height)
	if err != nil || !ok {
		return field.Zero(), ok, err
	}
	hash, err := field.ParseHex(rec.PreviousHash)
	if err != nil {
		return field.Zero(), false, fmt.Errorf("%w: previous hash: %v", ErrCorruptRecord, err)
	}
	return hash, true, nil
}

// GetHeader implements ChainStore.
func (s *MemoryChainStore) GetHeader(height uint32) (*Header, bool, error) {
	rec, ok, err := s.getHeightRecord(height)
	if err != nil || !ok {
		return nil, ok, err
	}
	h, err := rec.Header.toHeader()
	if err != nil {
		return nil, false, fmt.Errorf("%w: header: %v", ErrCorruptRecord, err)
	}
	return &h, true, nil
}

// GetTransactionRecords implements ChainStore.
func (s *MemoryChainStore) GetTransactionRecords(height uint32) ([]ledgertypes.TransactionRecord, bool, error) {
	rec, ok, err := s.getHeightRecord(height)
	if err != nil || !ok {
		return nil, ok, err
	}
	return rec.Transactions, true, nil
}

func (s *MemoryChainStore) getHeightRecord(height uint32) (heightRecord, bool, error) {
	raw, err := s.db.Get(heightKey(height))
	if err != nil {
		return heightRecord{}, false, fmt.Errorf("chain: get height %d: %w", height, err)
	}
	if len(raw) == 0 {
		return heightRecord{}, false, nil
	}
	var rec heightRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return heightRecord{}, false, fmt.Errorf("%w: height %d: %v", ErrCorruptRecord, height, err)
	}
	return rec, true, nil
}

// ContainsHeight implements ChainStore.
func (s *MemoryChainStore) ContainsHeight(height uint32) (bool, error) {
	raw, err := s.db.Get(heightKey(height))
	if err != nil {
		return false, fmt.Errorf("chain: contains height: %w", err)
	}
	return len(raw) > 0, nil
}

// ContainsBlockHash implements ChainStore.
func (s *MemoryChainStore) ContainsBlockHash(hash field.Field) (bool, error) {
	return s.has(fieldKey(keyBlockHashPrefix, hash))
}

// ContainsStateRoot implements ChainStore.
func (s *MemoryChainStore) ContainsStateRoot(root field.Field) (bool, error) {
	return s.has(fieldKey(keyStateRootPrefix, root))
}

// ContainsTransactionBytes implements ChainStore.
func (s *MemoryChainStore) ContainsTransactionBytes(body []byte) (bool, error) {
	return s.has(bytesKey(keyTxBodyPrefix, body))
}

// ContainsSerialNumber implements ChainStore.
func (s *MemoryChainStore) ContainsSerialNumber(sn field.Field) (bool, error) {
	return s.has(fieldKey(keySerialPrefix, sn))
}

// ContainsCommitment implements ChainStore.
func (s *MemoryChainStore) ContainsCommitment(c field.Field) (bool, error) {
	return s.has(fieldKey(keyCommitPrefix, c))
}

// RecordStateRoot implements ChainStore.
func (s *MemoryChainStore) RecordStateRoot(root field.Field) error {
	if err := s.db.SetSync(fieldKey(keyStateRootPrefix, root), []byte{1}); err != nil {
		return fmt.Errorf("chain: record state root: %w", err)
	}
	return nil
}

// BlockHashes implements ChainStore.
func (s *MemoryChainStore) BlockHashes() ([]field.Field, error) {
	raw, err := s.db.Get(keyBlockHashList)
	if err != nil {
		return nil, fmt.Errorf("chain: get block hash list: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var hexes []string
	if err := json.Unmarshal(raw, &hexes); err != nil {
		return nil, fmt.Errorf("%w: block hash list: %v", ErrCorruptRecord, err)
	}
	out := make([]field.Field, len(hexes))
	for i, h := range hexes {
		f, err := field.ParseHex(h)
		if err != nil {
			return nil, fmt.Errorf("%w: block hash %d: %v", ErrCorruptRecord, i, err)
		}
		out[i] = f
	}
	return out, nil
}

// AppendBlockHash implements ChainStore.
func (s *MemoryChainStore) AppendBlockHash(hash field.Field) error {
	hashes, err := s.BlockHashes()
	if err != nil {
		return err
	}
	hexes := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		hexes = append(hexes, h.String())
	}
	hexes = append(hexes, hash.String())
	raw, err := json.Marshal(hexes)
	if err != nil {
		return fmt.Errorf("chain: marshal block hash list: %w", err)
	}
	return s.db.SetSync(keyBlockHashList, raw)
}

func (s *MemoryChainStore) has(key []byte) (bool, error) {
	raw, err := s.db.Get(key)
	if err != nil {
		return false, fmt.Errorf("chain: lookup: %w", err)
	}
	return len(raw) > 0, nil
}
