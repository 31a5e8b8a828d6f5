// Copyright 2025 Certen Protocol
//
// Package metrics exposes Prometheus instrumentation for the
// Speculator and Chain, wiring the teacher's go.mod dependency on
// github.com/prometheus/client_golang that its own source tree never
// actually imports (see DESIGN.md).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Speculator holds the counters/histograms spec.md §7's logging
// requirement is paired with: operational visibility into how many
// transactions were processed, accepted, and rejected, and how long a
// commit took.
type Speculator struct {
	TransactionsProcessed prometheus.Counter
	TransactionsAccepted  prometheus.Counter
	TransactionsRejected  prometheus.Counter
	CommitDuration        prometheus.Histogram
}

// NewSpeculator registers and returns a Speculator metric set against
// reg. Pass prometheus.NewRegistry() for an isolated registry (tests)
// or prometheus.DefaultRegisterer to expose on the process default
// /metrics endpoint.
func NewSpeculator(reg prometheus.Registerer) *Speculator {
	m := &Speculator{
		TransactionsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speculator_transactions_processed_total",
			Help: "Transactions submitted to Speculator.SpeculateTransaction, accepted or not.",
		}),
		TransactionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speculator_transactions_accepted_total",
			Help: "Transactions that passed speculation and joined the batch's accepted order.",
		}),
		TransactionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speculator_transactions_rejected_total",
			Help: "Transactions rejected during speculation (swallowed, non-fatal).",
		}),
		CommitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "speculator_commit_duration_seconds",
			Help:    "Wall-clock time spent in Reconciler.Commit.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.TransactionsProcessed, m.TransactionsAccepted, m.TransactionsRejected, m.CommitDuration)
	return m
}

// Chain holds block-production counters.
type Chain struct {
	BlocksProposed prometheus.Counter
	BlocksAdded    prometheus.Counter
	BlocksRejected prometheus.Counter
}

// NewChain registers and returns a Chain metric set against reg.
func NewChain(reg prometheus.Registerer) *Chain {
	m := &Chain{
		BlocksProposed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chain_blocks_proposed_total",
			Help: "Blocks built by Chain.ProposeBlock.",
		}),
		BlocksAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chain_blocks_added_total",
			Help: "Blocks successfully appended by Chain.AddNext.",
		}),
		BlocksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chain_blocks_rejected_total",
			Help: "Blocks rejected by Chain.AddNext's guard checks or re-reconciliation.",
		}),
	}
	reg.MustRegister(m.BlocksProposed, m.BlocksAdded, m.BlocksRejected)
	return m
}
