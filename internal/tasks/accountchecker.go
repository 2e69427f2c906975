package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/stellar-anchor/depositsd/internal/corelog"
	coreHorizon "github.com/stellar-anchor/depositsd/internal/horizon"
	"github.com/stellar-anchor/depositsd/internal/txn"
)

// AccountChecker probes each ready candidate's destination account and
// decides whether it's safe to enqueue for submission (spec.md §4.5).
type AccountChecker struct {
	deps *Deps
}

func NewAccountChecker(deps *Deps) *AccountChecker {
	return &AccountChecker{deps: deps}
}

func (c *AccountChecker) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *AccountChecker) tick(ctx context.Context) {
	candidates, err := c.deps.Repo.PendingFundingCandidates(ctx)
	if err != nil {
		corelog.Ctx(ctx).WithError(err).Error("account checker: loading pending_funding candidates")
		return
	}
	for _, tx := range candidates {
		evaluateDestinationAccount(ctx, c.deps, tx)
	}
}

// evaluateDestinationAccount implements the decision table shared by the
// rails poller's immediate handoff (§4.4 step 5) and the pending_funding
// parallel task (§4.5's second paragraph).
func evaluateDestinationAccount(ctx context.Context, deps *Deps, tx *txn.Transaction) {
	account, err := deps.Horizon.LoadAccount(ctx, tx.ToAddress)
	switch {
	case errors.Is(err, coreHorizon.ErrAccountNotFound):
		enqueueReady(ctx, deps, tx)
		return
	case errors.Is(err, coreHorizon.ErrConnection):
		return
	case err != nil:
		corelog.Ctx(ctx).WithError(err).WithField("tx_id", tx.ID).Error("account checker: loading destination account")
		return
	}

	if account.HasTrustline(tx.Asset.Code, tx.Asset.Issuer) || deps.Custody.ClaimableBalancesSupported() {
		enqueueReady(ctx, deps, tx)
		return
	}

	tx.Status = txn.StatusPendingTrust
	tx.SubmissionStatus = txn.SubmissionTrust
	if err := deps.Repo.Save(ctx, tx); err != nil {
		corelog.Ctx(ctx).WithError(err).Error("account checker: saving pending_trust transition")
		return
	}
	deps.Notifier.NotifyChange(ctx, tx)
}

// enqueueReady marks tx ready, persists the queue assignment, and pushes it
// onto the in-memory submission queue (spec.md §4.3).
func enqueueReady(ctx context.Context, deps *Deps, tx *txn.Transaction) {
	tx.SubmissionStatus = txn.SubmissionReady
	tx.Queue = txn.SubmitTransactionQueue
	now := time.Now()
	tx.QueuedAt = &now
	if err := deps.Repo.Save(ctx, tx); err != nil {
		corelog.Ctx(ctx).WithError(err).Error("account checker: saving ready transition")
		return
	}
	deps.Queue.Enqueue(tx)
	deps.Metrics.QueueDepth.Set(float64(deps.Queue.Len()))
	deps.Notifier.NotifyChange(ctx, tx)
}
