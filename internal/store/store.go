// Package store is the repository seam onto the shared persistent store
// (spec.md §1, out of scope beyond the deposit-transaction and heartbeat
// entities). Production code talks to Postgres via sqlx/lib/pq, the same
// pairing the pack's Stellar disbursement-platform repo uses for its own
// transaction submission store.
package store

import (
	"context"
	"time"

	"github.com/stellar-anchor/depositsd/internal/txn"
)

// Repository is the persistence surface every task depends on. One
// implementation talks to Postgres (see postgres.go); tests use an
// in-memory fake (see fake.go, used across internal/tasks tests).
type Repository interface {
	// RailsCandidates loads deposit/deposit-exchange rows in
	// pending_user_transfer_start/pending_external (spec.md §4.4 step 1).
	RailsCandidates(ctx context.Context) ([]*txn.Transaction, error)
	// PendingFundingCandidates loads rows parked at
	// submission_status=pending_funding (spec.md §4.5, the parallel task).
	PendingFundingCandidates(ctx context.Context) ([]*txn.Transaction, error)
	// PendingTrustCandidates loads rows parked at status=pending_trust
	// (spec.md §4.7).
	PendingTrustCandidates(ctx context.Context) ([]*txn.Transaction, error)
	// UnblockedCandidates loads rows an operator has moved to
	// submission_status=unblocked, or multi-sig rows whose envelope is
	// ready but were never blocked (spec.md §4's Unblocked/signed
	// scavenger; the query is a deliberate disjunction, see DESIGN.md).
	UnblockedCandidates(ctx context.Context) ([]*txn.Transaction, error)
	// RehydrateQueue loads rows with queue=SubmitTransactionQueue and
	// submission_status in {ready, processing}, ordered by ascending
	// queued_at (spec.md §4.3).
	RehydrateQueue(ctx context.Context) ([]*txn.Transaction, error)
	// ReconcileCandidates loads rows that already have a
	// stellar_transaction_id but never reached a terminal status —
	// interrupted-at-confirmation rows to recheck against Horizon on
	// startup (SPEC_FULL.md's watch_transactions-style reconciliation).
	ReconcileCandidates(ctx context.Context) ([]*txn.Transaction, error)

	// Save persists the full current state of tx. Every task calls this
	// after mutating a row's Status/SubmissionStatus/Queue/QueuedAt/etc.
	Save(ctx context.Context, tx *txn.Transaction) error
}

// HeartbeatStore is the singleton heartbeat row's persistence surface
// (spec.md §3.2/§4.1).
type HeartbeatStore interface {
	// AcquireOrRefresh implements the heartbeat acquisition protocol's
	// single read-modify-write step: if the row is absent, insert it and
	// report acquired=true; if present and stale (delta > threshold),
	// refresh it and report acquired=true; otherwise report acquired=false
	// without mutating the row.
	AcquireOrRefresh(ctx context.Context, key string, now time.Time, staleAfter time.Duration) (acquired bool, err error)
	// Refresh unconditionally bumps last_heartbeat; used by the
	// maintenance task once acquired.
	Refresh(ctx context.Context, key string, now time.Time) error
	// Release unconditionally deletes the heartbeat row.
	Release(ctx context.Context, key string) error
}
