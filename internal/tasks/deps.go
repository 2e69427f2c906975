// Package tasks implements the processor's cooperatively scheduled task
// graph (spec.md §2/§4): the rails poller, account checker, trustline
// checker, unblocked/signed scavenger, and submitter, sharing one
// submission queue and one account-lock map.
package tasks

import (
	"time"

	"github.com/stellar-anchor/depositsd/internal/custody"
	"github.com/stellar-anchor/depositsd/internal/deposit"
	"github.com/stellar-anchor/depositsd/internal/horizon"
	"github.com/stellar-anchor/depositsd/internal/lock"
	"github.com/stellar-anchor/depositsd/internal/metrics"
	"github.com/stellar-anchor/depositsd/internal/queue"
	"github.com/stellar-anchor/depositsd/internal/rails"
	"github.com/stellar-anchor/depositsd/internal/store"
)

// Deps is the shared set of collaborators every task is constructed with.
// None of the tasks hold a database/Horizon connection of their own; all of
// them are thin state-machine drivers over these shared seams.
type Deps struct {
	Repo     store.Repository
	Horizon  horizon.Adapter
	Custody  custody.Custody
	Rails    rails.Rails
	Deposit  deposit.Hook
	FeeFunc  deposit.FeeFunc
	Locks    *lock.AccountLocks
	Queue    *queue.Queue
	Notifier Notifier
	Metrics  *metrics.Registry
	Interval time.Duration
}
