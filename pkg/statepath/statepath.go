// Copyright 2025 Certen Protocol
//
// Package statepath implements the State-Path Builder (spec.md §4.5):
// given a record commitment, it walks the Chain's blocks, transactions,
// and transitions to produce a full bottom-up inclusion proof
// terminating at the latest state root.
package statepath

import (
	"fmt"

	"github.com/certen/speculator-chain/pkg/chain"
	"github.com/certen/speculator-chain/pkg/field"
	"github.com/certen/speculator-chain/pkg/ledgertypes"
	"github.com/certen/speculator-chain/pkg/merkle"
)

const headerDomain = "header"

// StatePath bundles the bottom-up proof spec.md §4.5 describes,
// together with the chain-tip context needed to verify it against.
type StatePath struct {
	Commitment field.Field

	TransitionLeaf field.Field
	TransitionPath *merkle.InclusionProof

	TransactionLeaf field.Field
	TransactionPath *merkle.InclusionProof

	TransactionsPath *merkle.InclusionProof

	HeaderLeaf field.Field
	HeaderPath *merkle.InclusionProof

	BlockPath *merkle.InclusionProof

	StateRoot         field.Field
	LatestHash        field.Field
	PreviousBlockHash field.Field
}

// Builder produces StatePaths for commitments already accepted into c.
type Builder struct {
	chain *chain.Chain
}

// New builds a Builder over c.
func New(c *chain.Chain) *Builder {
	return &Builder{chain: c}
}

// Build produces a StatePath proving that commitment was included in a
// transition of a transaction in a block whose hash sits in the block
// tree under the latest state root (spec.md §4.5).
func (b *Builder) Build(commitment field.Field) (*StatePath, error) {
	match, err := b.locate(commitment)
	if err != nil {
		return nil, err
	}

	transitionLeaves := make([]field.Field, len(match.transition.Commitments()))
	targetTransitionIndex := -1
	for i, c := range match.transition.Commitments() {
		transitionLeaves[i] = match.transition.ToLeaf(c, false)
		if c.Equal(commitment) {
			targetTransitionIndex = i
		}
	}
	transitionPath, err := buildProof("transition", transitionLeaves, targetTransitionIndex)
	if err != nil {
		return nil, fmt.Errorf("statepath: transition_path: %w", err)
	}

	transitions := match.execution.Transitions()
	transactionLeaves := make([]field.Field, len(transitions))
	for i, t := range transitions {
		transactionLeaves[i] = t.ID()
	}
	transactionPath, err := buildProof("transaction", transactionLeaves, match.transitionIndex)
	if err != nil {
		return nil, fmt.Errorf("statepath: transaction_path: %w", err)
	}

	txs := match.block.Transactions
	transactionsLeaves := make([]field.Field, len(txs))
	for i, tx := range txs {
		transactionsLeaves[i] = field.HashBytes("transaction-leaf", ledgertypes.TransactionBytes(tx))
	}
	transactionsPath, err := buildProof("transactions", transactionsLeaves, match.transactionIndex)
	if err != nil {
		return nil, fmt.Errorf("statepath: transactions_path: %w", err)
	}

	headerLeaves := match.block.Header.Leaves()
	headerPath, err := buildProof(headerDomain, headerLeaves, 1)
	if err != nil {
		return nil, fmt.Errorf("statepath: header_path: %w", err)
	}

	blockPath, err := b.chain.BlockProof(match.height)
	if err != nil {
		return nil, fmt.Errorf("statepath: block_path: %w", err)
	}

	latestHeight := b.chain.LatestHeight()
	previousHash, err := b.chain.GetPreviousBlockHash(latestHeight)
	if err != nil {
		previousHash = field.Zero()
	}

	return &StatePath{
		Commitment: commitment,

		TransitionLeaf: match.transition.ToLeaf(commitment, false),
		TransitionPath: transitionPath,

		TransactionLeaf: match.transition.ID(),
		TransactionPath: transactionPath,

		TransactionsPath: transactionsPath,

		HeaderLeaf: headerLeaves[1],
		HeaderPath: headerPath,

		BlockPath: blockPath,

		StateRoot:         b.chain.LatestStateRoot(),
		LatestHash:        b.chain.LatestHash(),
		PreviousBlockHash: previousHash,
	}, nil
}

// PortableReceipts renders every level of p as a self-contained
// merkle.Receipt, in root-distance order (transition, transaction,
// transactions, header, block), so an external verifier that never
// linked this module can recheck the whole path by hex-decoding and
// re-hashing.
func (p *StatePath) PortableReceipts() []*merkle.Receipt {
	return []*merkle.Receipt{
		merkle.NewReceipt("transition", p.TransitionPath),
		merkle.NewReceipt("transaction", p.TransactionPath),
		merkle.NewReceipt("transactions", p.TransactionsPath),
		merkle.NewReceipt(headerDomain, p.HeaderPath),
		merkle.NewReceipt("block-tree", p.BlockPath),
	}
}

// buildProof wraps merkle.BuildTree+GenerateProof for a one-off leaf
// set, used for the small non-persistent trees (transition, transaction,
// transactions, header) the State-Path Builder walks on demand rather
// than keeping live.
func buildProof(domain string, leaves []field.Field, index int) (*merkle.InclusionProof, error) {
	if index < 0 {
		return nil, merkle.ErrLeafNotFound
	}
	tree, err := merkle.BuildTree(domain, leaves)
	if err != nil {
		return nil, err
	}
	return tree.GenerateProof(index)
}

// match records where, within the chain, a commitment was located.
type match struct {
	height          uint32
	block           *chain.Block
	tx              ledgertypes.Transaction
	execution       ledgertypes.Execution
	transitionIndex int
	transition      ledgertypes.Transition
}

// locate performs spec.md §4.5 steps 1-3: find the unique transaction
// containing commitment, the unique height holding it, and the unique
// transition within it that produced the commitment. Any ambiguity is a
// guard violation (chain.ErrAmbiguousMatch), not a speculation failure.
func (b *Builder) locate(commitment field.Field) (*match, error) {
	var found *match

	for _, height := range b.chain.Heights() {
		block, err := b.chain.GetBlock(height)
		if err != nil {
			return nil, err
		}
		for _, tx := range block.Transactions {
			execTx, ok := tx.(*ledgertypes.ExecuteTransaction)
			if !ok {
				continue
			}
			for ti, transition := range execTx.Execution.Transitions() {
				for _, c := range transition.Commitments() {
					if !c.Equal(commitment) {
						continue
					}
					if found != nil {
						return nil, fmt.Errorf("%w: commitment %s", chain.ErrAmbiguousMatch, commitment)
					}
					found = &match{
						height:          height,
						block:           block,
						tx:              tx,
						execution:       execTx.Execution,
						transitionIndex: ti,
						transition:      transition,
					}
				}
			}
		}
	}

	if found == nil {
		return nil, fmt.Errorf("%w: commitment %s", chain.ErrCommitmentNotFound, commitment)
	}
	return found, nil
}
