// Copyright 2025 Certen Protocol

package chain

import (
	"github.com/google/uuid"

	"github.com/certen/speculator-chain/pkg/ledgertypes"
	"github.com/certen/speculator-chain/pkg/speculator"
)

// Proposal bundles a candidate block with the speculation results that
// produced it, so a caller can see which submitted transactions were
// rejected before deciding whether to call AddNext. CorrelationID ties
// together every log line a single ProposeBlock call emits; it plays no
// role in the block's hashed content.
type Proposal struct {
	Block         *Block
	Results       []speculator.Result
	CorrelationID string
}

// ProposeBlock speculates txs against the current KV Store state, keeps
// only the accepted subset, and builds a block around them (spec.md
// §4.4's propose_block). CoinbaseTarget/ProofTarget are caller-supplied,
// resolving the source's "TODO: these should be required inputs" note
// (SPEC_FULL.md §4.4) instead of hardcoding zero. timestamp is the
// caller's current-UTC-seconds reading, since this module never calls
// time.Now() itself (kept fully deterministic for tests).
func (c *Chain) ProposeBlock(txs []ledgertypes.Transaction, coinbaseTarget, proofTarget uint64, timestamp int64) (*Proposal, error) {
	correlationID := uuid.New().String()

	spec := speculator.New(c.store)
	spec.ProgramLookup = c.programs.Lookup
	c.instrument(spec)

	results, err := spec.SpeculateTransactions(txs)
	if err != nil {
		return nil, err
	}

	accepted := make([]ledgertypes.Transaction, 0, len(txs))
	byID := make(map[ledgertypes.TransactionID]ledgertypes.Transaction, len(txs))
	for _, tx := range txs {
		byID[tx.ID()] = tx
	}
	for _, id := range spec.AcceptedOrder() {
		accepted = append(accepted, byID[id])
	}

	reconciler := speculator.NewReconciler()
	tree, err := reconciler.Commit(spec)
	if err != nil {
		return nil, err
	}
	finalizeRoot := c.store.CurrentStorageRoot()
	if tree != nil {
		finalizeRoot = tree.Root()
	}

	txRoot, err := TransactionsRoot(accepted)
	if err != nil {
		return nil, err
	}

	header := Header{
		PreviousStateRoot: c.LatestStateRoot(),
		TransactionsRoot:  txRoot,
		FinalizeRoot:      finalizeRoot,
		Height:            c.latestHeight + 1,
		Round:             1,
		CoinbaseTarget:    coinbaseTarget,
		ProofTarget:       proofTarget,
		Timestamp:         timestamp,
	}
	if header.Height > 0 {
		if prevHeader, err := c.GetBlockHeader(c.latestHeight); err == nil {
			header.LastCoinbaseTarget = prevHeader.CoinbaseTarget
			header.LastCoinbaseTimestamp = prevHeader.Timestamp
		}
	}

	block, err := NewBlock(c.latestHash, header, accepted)
	if err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.BlocksProposed.Inc()
	}
	if c.logger != nil {
		rejected := len(txs) - len(accepted)
		c.logger.Info("block proposed",
			"correlation_id", correlationID,
			"height", header.Height,
			"accepted", len(accepted),
			"rejected", rejected,
		)
	}
	return &Proposal{Block: block, Results: results, CorrelationID: correlationID}, nil
}
