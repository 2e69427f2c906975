// Package rails defines the off-chain funds-movement collaborator contract
// (spec.md §6.3).
package rails

import (
	"context"

	"github.com/stellar-anchor/depositsd/internal/txn"
)

// Rails is the anchor's off-chain funds-movement collaborator (bank, card
// processor, etc). It decides whether a candidate deposit has actually
// landed off-chain; the processor never second-guesses that decision.
type Rails interface {
	// PollPendingDeposits is given the candidate rows currently in
	// pending_user_transfer_start/pending_external and returns the subset
	// that have been funded off-chain and are ready to move on-chain.
	PollPendingDeposits(ctx context.Context, candidates []*txn.Transaction) ([]*txn.Transaction, error)
}

// Noop never reports any candidate as funded. It's the wiring default for
// deployments that haven't yet plugged in a real banking/card-rails
// integration; every row parked in pending_user_transfer_start/
// pending_external simply waits.
type Noop struct{}

func (Noop) PollPendingDeposits(context.Context, []*txn.Transaction) ([]*txn.Transaction, error) {
	return nil, nil
}
