// Copyright 2025 Certen Protocol
//
// Package chain implements the Chain (spec.md §4.4): an append-only
// block store built over the Speculator's commit output, persisted
// through pkg/kvstore and a dedicated ChainStore adapter, with a
// depth-32 block tree over block hashes (pkg/merkle.BlockTree).
//
// CONCURRENCY: Chain assumes single-writer access, called from one
// block-production thread, exactly as pkg/ledger.LedgerStore documents
// for its own callers. Multi-producer use requires an external mutex;
// Chain itself holds none.
package chain

import (
	"fmt"
	"sort"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/speculator-chain/pkg/field"
	"github.com/certen/speculator-chain/pkg/kvstore"
	"github.com/certen/speculator-chain/pkg/ledgertypes"
	"github.com/certen/speculator-chain/pkg/merkle"
	"github.com/certen/speculator-chain/pkg/metrics"
	"github.com/certen/speculator-chain/pkg/obslog"
	"github.com/certen/speculator-chain/pkg/speculator"
)

// Chain wires a KV Store, a ChainStore, and a ProgramRegistry into the
// append-only block store spec.md §4.4 describes. Each propose/add cycle
// runs its own Speculator+Reconciler pair scoped to that one block's
// transactions, per spec.md §5's "commit happens-after all accepted
// transactions have been speculated" ordering.
type Chain struct {
	store      kvstore.Store
	chainStore ChainStore
	programs   *ProgramRegistry
	blockTree  *merkle.BlockTree

	latestHeight uint32
	latestHash   field.Field
	latestRoot   field.Field
	blocks       map[uint32]*Block // in-memory read cache; see store.go's doc comment

	logger            *obslog.Logger
	metrics           *metrics.Chain
	speculatorMetrics *metrics.Speculator
}

// SetLogger installs an observability logger for guard-violation and
// block-production events, also handed to every Speculator the Chain
// constructs internally.
func (c *Chain) SetLogger(l *obslog.Logger) { c.logger = l }

// SetMetrics installs a Prometheus metric set for block-production
// counters.
func (c *Chain) SetMetrics(m *metrics.Chain) { c.metrics = m }

// SetSpeculatorMetrics installs the metric set handed to every
// Speculator the Chain constructs internally for propose/add cycles.
func (c *Chain) SetSpeculatorMetrics(m *metrics.Speculator) { c.speculatorMetrics = m }

// instrument wires the Chain's configured logger/metrics into a
// freshly constructed Speculator.
func (c *Chain) instrument(spec *speculator.Speculator) {
	spec.Logger = c.logger
	spec.Metrics = c.speculatorMetrics
}

// New constructs a Chain, loading genesis if this is a fresh store.
func New(store kvstore.Store, chainStore ChainStore, programs *ProgramRegistry) (*Chain, error) {
	c := &Chain{
		store:      store,
		chainStore: chainStore,
		programs:   programs,
		blockTree:  merkle.NewBlockTree(),
		blocks:     make(map[uint32]*Block),
	}

	height, hash, ok, err := chainStore.Latest()
	if err != nil {
		return nil, err
	}
	if !ok {
		return c, c.loadGenesis()
	}

	hashes, err := chainStore.BlockHashes()
	if err != nil {
		return nil, err
	}
	for _, h := range hashes {
		if err := c.blockTree.Append(h); err != nil {
			return nil, fmt.Errorf("chain: rebuild block tree: %w", err)
		}
	}

	c.latestHeight = height
	c.latestHash = hash
	c.latestRoot = store.CurrentStorageRoot()
	return c, nil
}

// NewMemory is a convenience constructor wiring an all-in-memory Chain
// for tests and the cmd/speculatord demo, mirroring the teacher's
// main.go MemoryKV wiring pattern.
func NewMemory() (*Chain, error) {
	store, err := kvstore.NewMemoryStore(dbm.NewMemDB())
	if err != nil {
		return nil, err
	}
	return New(store, NewMemoryChainStore(dbm.NewMemDB()), NewProgramRegistry(dbm.NewMemDB()))
}

func (c *Chain) loadGenesis() error {
	genesis, err := LoadGenesis()
	if err != nil {
		return err
	}
	if err := c.blockTree.Append(genesis.Hash()); err != nil {
		return err
	}
	if err := c.chainStore.PutHeight(0, genesis.PreviousHash, genesis.Header, nil); err != nil {
		return err
	}
	if err := c.chainStore.AppendBlockHash(genesis.Hash()); err != nil {
		return err
	}
	if err := c.chainStore.SetLatest(0, genesis.Hash()); err != nil {
		return err
	}
	c.blocks[0] = genesis
	c.latestHeight = 0
	c.latestHash = genesis.Hash()
	c.latestRoot = genesis.Header.FinalizeRoot
	return nil
}

// ===== Accessors (spec.md §4.4 "Accessors") =====

// LatestHeight returns the chain's current height.
func (c *Chain) LatestHeight() uint32 { return c.latestHeight }

// LatestHash returns the current block's hash.
func (c *Chain) LatestHash() field.Field { return c.latestHash }

// LatestStateRoot returns the root of the block tree.
func (c *Chain) LatestStateRoot() field.Field { return c.blockTree.Root() }

// GetPreviousBlockHash returns the previous-hash link stored at height h.
func (c *Chain) GetPreviousBlockHash(h uint32) (field.Field, error) {
	if b, ok := c.blocks[h]; ok {
		return b.PreviousHash, nil
	}
	hash, ok, err := c.chainStore.GetPreviousHash(h)
	if err != nil {
		return field.Zero(), err
	}
	if !ok {
		return field.Zero(), fmt.Errorf("%w: height %d", ErrHeightNotFound, h)
	}
	return hash, nil
}

// GetBlockHeader returns the header stored at height h.
func (c *Chain) GetBlockHeader(h uint32) (*Header, error) {
	if b, ok := c.blocks[h]; ok {
		header := b.Header
		return &header, nil
	}
	header, ok, err := c.chainStore.GetHeader(h)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: height %d", ErrHeightNotFound, h)
	}
	return header, nil
}

// GetBlockTransactions returns the transactions at height h.
func (c *Chain) GetBlockTransactions(h uint32) ([]ledgertypes.Transaction, error) {
	b, ok := c.blocks[h]
	if !ok {
		return nil, fmt.Errorf("%w: height %d (transaction bodies not retained past the in-memory cache)", ErrHeightNotFound, h)
	}
	return b.Transactions, nil
}

// GetBlock returns the full block at height h.
func (c *Chain) GetBlock(h uint32) (*Block, error) {
	if h > c.latestHeight {
		return nil, fmt.Errorf("%w: %d > %d", ErrHeightOutOfRange, h, c.latestHeight)
	}
	b, ok := c.blocks[h]
	if !ok {
		return nil, fmt.Errorf("%w: height %d", ErrHeightNotFound, h)
	}
	return b, nil
}

// GetBlockHash returns current_hash when h is the latest height, else
// the previous_hash stored at h+1 (spec.md §4.4's exact derivation).
func (c *Chain) GetBlockHash(h uint32) (field.Field, error) {
	if h == c.latestHeight {
		return c.latestHash, nil
	}
	if h > c.latestHeight {
		return field.Zero(), fmt.Errorf("%w: %d > %d", ErrHeightOutOfRange, h, c.latestHeight)
	}
	return c.GetPreviousBlockHash(h + 1)
}

// BlockProof returns a depth-32 inclusion proof for the block hash at
// height h within the block tree, for the State-Path Builder's
// block_path (spec.md §4.5 step 4).
func (c *Chain) BlockProof(h uint32) (*merkle.InclusionProof, error) {
	if h > c.latestHeight {
		return nil, fmt.Errorf("%w: %d > %d", ErrHeightOutOfRange, h, c.latestHeight)
	}
	return c.blockTree.GenerateProof(int(h))
}

// Heights returns every height currently retained in the in-memory
// block cache, in ascending order, for the State-Path Builder's
// transaction/transition lookup walk.
func (c *Chain) Heights() []uint32 {
	out := make([]uint32, 0, len(c.blocks))
	for h := range c.blocks {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ===== Containment predicates =====

// ContainsHeight reports whether h has been appended.
func (c *Chain) ContainsHeight(h uint32) (bool, error) {
	if h == 0 || h <= c.latestHeight {
		return true, nil
	}
	return c.chainStore.ContainsHeight(h)
}

// ContainsStateRoot reports whether root is the current block-tree root
// (LatestStateRoot) or equal to any stored header's previous_state_root.
// c.latestRoot tracks the KV storage/finalize root, a different value —
// the fast path here must compare against the block-tree root, the one
// spec.md's latest_state_root/contains_state_root actually mean.
func (c *Chain) ContainsStateRoot(root field.Field) (bool, error) {
	if c.blockTree.Root().Equal(root) {
		return true, nil
	}
	return c.chainStore.ContainsStateRoot(root)
}

// ContainsBlockHash reports whether hash has been appended.
func (c *Chain) ContainsBlockHash(hash field.Field) (bool, error) {
	if c.latestHash.Equal(hash) {
		return true, nil
	}
	return c.chainStore.ContainsBlockHash(hash)
}

// ContainsTransaction reports whether a byte-identical transaction body
// has already been stored, per spec.md §4.4's deep-comparison guard.
func (c *Chain) ContainsTransaction(tx ledgertypes.Transaction) (bool, error) {
	return c.chainStore.ContainsTransactionBytes(ledgertypes.TransactionBytes(tx))
}

// ContainsSerialNumber reports whether sn has already been nullified.
func (c *Chain) ContainsSerialNumber(sn field.Field) (bool, error) {
	return c.chainStore.ContainsSerialNumber(sn)
}

// ContainsCommitment reports whether c has already been produced.
func (c *Chain) ContainsCommitment(commitment field.Field) (bool, error) {
	return c.chainStore.ContainsCommitment(commitment)
}
