// Copyright 2025 Certen Protocol

package chain

import (
	"fmt"
	"strings"

	"github.com/certen/speculator-chain/pkg/ledgertypes"
	"github.com/certen/speculator-chain/pkg/speculator"
)

// AddNext appends block as the next block in the chain (spec.md §4.4's
// add_next), checking guards G1-G8 and, if any fail, leaving the chain
// bit-identical to its pre-call state. Guard violations are aggregated
// into one error so an operator sees every failing check at once, in
// the style of pkg/consensus.VerifyValidatorBlockInvariants, without
// changing the all-or-nothing outcome.
func (c *Chain) AddNext(block *Block) error {
	if violations := c.checkGuards(block); len(violations) > 0 {
		if c.logger != nil {
			c.logger.LogGuardViolation(block.Header.Height, violations)
		}
		if c.metrics != nil {
			c.metrics.BlocksRejected.Inc()
		}
		return fmt.Errorf("chain: block rejected (%d guard violations):\n- %s", len(violations), strings.Join(violations, "\n- "))
	}

	spec, reconciler, err := c.reconcile(block.Transactions)
	if err != nil {
		if c.metrics != nil {
			c.metrics.BlocksRejected.Inc()
		}
		return fmt.Errorf("chain: reconcile block %d: %w", block.Header.Height, err)
	}
	tree, err := reconciler.Commit(spec)
	if err != nil {
		if c.metrics != nil {
			c.metrics.BlocksRejected.Inc()
		}
		return fmt.Errorf("chain: reconcile block %d: %w", block.Header.Height, err)
	}
	finalizeRoot := c.store.CurrentStorageRoot()
	if tree != nil {
		finalizeRoot = tree.Root()
	}
	if !finalizeRoot.Equal(block.Header.FinalizeRoot) {
		if c.metrics != nil {
			c.metrics.BlocksRejected.Inc()
		}
		return fmt.Errorf("chain: block %d finalize root does not match recomputed reconciliation", block.Header.Height)
	}

	if err := c.applyFinalize(spec, reconciler, tree); err != nil {
		return fmt.Errorf("chain: apply finalize for block %d: %w", block.Header.Height, err)
	}

	records := block.Records()
	if err := c.chainStore.PutHeight(block.Header.Height, block.PreviousHash, block.Header, records); err != nil {
		return err
	}
	if err := c.chainStore.AppendBlockHash(block.Hash()); err != nil {
		return err
	}
	if err := c.chainStore.SetLatest(block.Header.Height, block.Hash()); err != nil {
		return err
	}
	if err := c.blockTree.Append(block.Hash()); err != nil {
		return err
	}

	c.latestHeight = block.Header.Height
	c.latestHash = block.Hash()
	c.latestRoot = finalizeRoot
	c.blocks[block.Header.Height] = block
	if c.metrics != nil {
		c.metrics.BlocksAdded.Inc()
	}
	return nil
}

func (c *Chain) checkGuards(block *Block) []string {
	var violations []string
	add := func(format string, args ...any) {
		violations = append(violations, fmt.Sprintf(format, args...))
	}

	height := block.Header.Height
	// G1: height is latest+1, except the original source's own quirk of
	// skipping this check entirely while the chain sits at height 0
	// (genesis only).
	if c.latestHeight != 0 && c.latestHeight+1 != height {
		add("G1: height %d is not latest+1 (%d)", height, c.latestHeight+1)
	}

	// G2: height not already present.
	if exists, err := c.ContainsHeight(height); err != nil {
		add("G2: %v", err)
	} else if exists && height != 0 {
		add("G2: height %d already exists", height)
	}

	// G3: previous hash must equal current hash.
	if !block.PreviousHash.Equal(c.latestHash) {
		add("G3: previous hash does not match current hash")
	}

	// G4: block hash must not already exist.
	if exists, err := c.ContainsBlockHash(block.Hash()); err != nil {
		add("G4: %v", err)
	} else if exists {
		add("G4: block hash already exists")
	}

	// G5: timestamp must be strictly after the current block's timestamp.
	if latest, err := c.GetBlockHeader(c.latestHeight); err != nil {
		add("G5: %v", err)
	} else if block.Header.Timestamp <= latest.Timestamp {
		add("G5: timestamp %d is not after current timestamp %d", block.Header.Timestamp, latest.Timestamp)
	}

	seenTx := make(map[string]bool)
	for _, tx := range block.Transactions {
		bodyKey := string(ledgertypes.TransactionBytes(tx))
		if exists, err := c.ContainsTransaction(tx); err != nil {
			add("G6: %v", err)
		} else if exists || seenTx[bodyKey] {
			add("G6: duplicate transaction %s", tx.ID())
		}
		seenTx[bodyKey] = true
	}
	seenSN := make(map[string]bool)
	seenCommit := make(map[string]bool)
	for _, tx := range block.Transactions {
		for _, sn := range ledgertypes.AllSerialNumbers(tx) {
			if exists, err := c.ContainsSerialNumber(sn); err != nil {
				add("G7: %v", err)
			} else if exists || seenSN[sn.String()] {
				add("G7: duplicate serial number %s", sn)
			}
			seenSN[sn.String()] = true
		}
		for _, cm := range ledgertypes.AllCommitments(tx) {
			if exists, err := c.ContainsCommitment(cm); err != nil {
				add("G8: %v", err)
			} else if exists || seenCommit[cm.String()] {
				add("G8: duplicate commitment %s", cm)
			}
			seenCommit[cm.String()] = true
		}
	}

	return violations
}

// reconcile re-runs speculation over block's transactions against the
// Chain's current KV Store state, accepting only what the block already
// committed to including. AddNext rejects the block outright (above) if
// any transaction in it was a duplicate or violated a chain-level guard,
// so every transaction here is expected to speculate successfully; a
// transaction that still fails indicates the block's proposer diverged
// from this node's KV state.
func (c *Chain) reconcile(txs []ledgertypes.Transaction) (*speculator.Speculator, *speculator.Reconciler, error) {
	spec := speculator.New(c.store)
	spec.ProgramLookup = c.programs.Lookup
	c.instrument(spec)

	results, err := spec.SpeculateTransactions(txs)
	if err != nil {
		return nil, nil, fmt.Errorf("re-speculation guard failure: %w", err)
	}
	for _, r := range results {
		if !r.Accepted {
			return nil, nil, fmt.Errorf("transaction %s failed re-speculation: %w", r.TxID, r.Err)
		}
	}
	return spec, speculator.NewReconciler(), nil
}
