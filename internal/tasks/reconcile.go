package tasks

import (
	"context"
	"time"

	"github.com/stellar-anchor/depositsd/internal/corelog"
	"github.com/stellar-anchor/depositsd/internal/metrics"
	"github.com/stellar-anchor/depositsd/internal/money"
	"github.com/stellar-anchor/depositsd/internal/txn"
)

// Reconcile runs once at startup, grounded on the reference
// transaction_worker.go's reconcileSubmittedTransaction: rows that already
// carry a stellar_transaction_id but never reached a terminal status were
// interrupted mid-confirmation by a prior crash or restart. Re-check each
// against Horizon rather than leaving it stuck.
func Reconcile(ctx context.Context, deps *Deps) error {
	candidates, err := deps.Repo.ReconcileCandidates(ctx)
	if err != nil {
		return err
	}

	for _, tx := range candidates {
		reconcileOne(ctx, deps, tx)
	}
	return nil
}

func reconcileOne(ctx context.Context, deps *Deps, tx *txn.Transaction) {
	log := corelog.Ctx(ctx).WithField("tx_id", tx.ID)

	record, err := deps.Horizon.TransactionByHash(ctx, tx.StellarTransactionID)
	if err != nil {
		// Horizon may not have indexed it yet, or it's a transient
		// failure; leave the row for the next restart/reconcile pass
		// rather than guessing.
		log.WithError(err).Warn("reconcile: could not fetch prior submission, leaving row as-is")
		return
	}

	if !record.Successful {
		tx.Status = txn.StatusError
		tx.SubmissionStatus = txn.SubmissionFailed
		tx.StatusMessage = record.ResultXdr
		tx.Queue = ""
		tx.QueuedAt = nil
		if err := deps.Repo.Save(ctx, tx); err != nil {
			log.WithError(err).Error("reconcile: saving failed row")
			return
		}
		deps.Notifier.NotifyChange(ctx, tx)
		deps.Metrics.SubmissionsTotal.WithLabelValues(metrics.ResultFailed).Inc()
		return
	}

	tx.PagingToken = record.PagingToken
	if !tx.IsQuoted() {
		tx.AmountOut = money.DeriveAmountOut(tx.AmountIn, tx.AmountFee, tx.Asset.SignificantDecimals)
	}
	tx.Status = txn.StatusCompleted
	tx.SubmissionStatus = txn.SubmissionCompleted
	now := time.Now()
	tx.CompletedAt = &now
	tx.Queue = ""
	tx.QueuedAt = nil
	if err := deps.Repo.Save(ctx, tx); err != nil {
		log.WithError(err).Error("reconcile: saving completed row")
		return
	}
	deps.Notifier.NotifyChange(ctx, tx)
	deps.Metrics.SubmissionsTotal.WithLabelValues(metrics.ResultCompleted).Inc()

	if deps.Deposit != nil {
		if err := deps.Deposit.AfterDeposit(ctx, tx); err != nil {
			log.WithError(err).Warn("reconcile: after_deposit hook failed")
		}
	}
}
