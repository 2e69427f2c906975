package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stellar-anchor/depositsd/internal/corelog"
	"github.com/stellar-anchor/depositsd/internal/custody"
	"github.com/stellar-anchor/depositsd/internal/deposit"
	coreHorizon "github.com/stellar-anchor/depositsd/internal/horizon"
	"github.com/stellar-anchor/depositsd/internal/metrics"
	"github.com/stellar-anchor/depositsd/internal/money"
	"github.com/stellar-anchor/depositsd/internal/txn"
)

// decision is the two submission shapes the Submitter's destination probe
// can resolve to (spec.md §4.8 step 4).
type decision int

const (
	decisionDeposit decision = iota
	decisionCreateAccount
)

// Submitter is the only consumer of the submission queue; it drives each
// dequeued transaction through the retry loop of spec.md §4.8. It is,
// by spec.md §2's own accounting, the largest single piece of this
// processor.
type Submitter struct {
	deps *Deps
}

func NewSubmitter(deps *Deps) *Submitter {
	return &Submitter{deps: deps}
}

// Run dequeues transactions until ctx is canceled, processing one at a time.
// Concurrency across distinct distribution accounts comes from running
// multiple Submitters, not from this loop; spec.md never asks for
// intra-Submitter parallelism.
func (s *Submitter) Run(ctx context.Context) error {
	for {
		tx, err := s.deps.Queue.Dequeue(ctx)
		if err != nil {
			return nil
		}
		s.deps.Metrics.QueueDepth.Set(float64(s.deps.Queue.Len()))
		s.process(ctx, tx)
	}
}

// preflightStatuses are the only statuses legal to enter the retry loop
// with (spec.md §4.8 step 1); anything else is a programming error.
// pending_user is included alongside the spec's literal four: it's the
// status the pending_funding branch of the account checker (§4.5's
// "parallel task") leaves rows in when it marks them ready, and those
// rows still need to reach the Submitter.
var preflightStatuses = map[txn.Status]bool{
	txn.StatusPendingUserTransferStart: true,
	txn.StatusPendingExternal:          true,
	txn.StatusPendingUser:              true,
	txn.StatusPendingAnchor:            true,
	txn.StatusPendingTrust:             true,
}

func (s *Submitter) process(ctx context.Context, tx *txn.Transaction) {
	ctx = corelog.WithTx(ctx, tx.ID, nil)
	log := corelog.Ctx(ctx)

	if !preflightStatuses[tx.Status] {
		log.WithField("status", tx.Status).Error("submitter: illegal starting status, treating as programming error")
		s.fail(ctx, tx, fmt.Sprintf("illegal starting status %q for submission", tx.Status), false)
		return
	}

	if err := txn.Transition(tx, txn.StatusPendingAnchor, txn.SubmissionProcessing); err != nil {
		log.WithError(err).Error("submitter: transitioning to processing")
		s.fail(ctx, tx, err.Error(), false)
		return
	}
	if err := s.deps.Repo.Save(ctx, tx); err != nil {
		log.WithError(err).Error("submitter: saving processing transition")
		return
	}
	s.deps.Notifier.NotifyChange(ctx, tx)

	for {
		action, done := s.attempt(ctx, tx, log)
		if done {
			return
		}
		if action == actionRetry {
			continue
		}
		return
	}
}

type loopAction int

const (
	actionExit loopAction = iota
	actionRetry
)

// attempt runs one pass of steps 3-6 of the retry loop. The bool return
// reports whether the loop is finished (true) regardless of the loopAction,
// which only matters when done is false (always actionRetry in that case).
func (s *Submitter) attempt(ctx context.Context, tx *txn.Transaction, log *corelog.Entry) (loopAction, bool) {
	distributionAccount, err := s.deps.Custody.DistributionAccount(ctx, tx.Asset)
	locked := false
	if err != nil {
		if !errors.Is(err, custody.ErrNotSupported) {
			s.fail(ctx, tx, err.Error(), true)
			return actionExit, true
		}
	} else {
		s.deps.Locks.Source.Lock(distributionAccount)
		locked = true
	}
	if locked {
		defer s.deps.Locks.Source.Unlock(distributionAccount)
	}

	account, err := s.deps.Horizon.LoadAccount(ctx, tx.ToAddress)
	switch {
	case errors.Is(err, coreHorizon.ErrAccountNotFound):
		return s.submitCreateAccount(ctx, tx, log)
	case errors.Is(err, coreHorizon.ErrConnection):
		// Transient; the row is re-enqueued after one task interval rather
		// than retried by spinning here. If ctx ends first, the row stays
		// processing with its queued_at and is rehydrated on restart.
		log.WithError(err).Warn("submitter: destination probe connection error, re-enqueueing after interval")
		go func() {
			select {
			case <-ctx.Done():
			case <-time.After(s.deps.Interval):
				enqueueReady(ctx, s.deps, tx)
			}
		}()
		return actionExit, true
	case err != nil:
		s.fail(ctx, tx, err.Error(), true)
		return actionExit, true
	}

	hasTrustline := account.HasTrustline(tx.Asset.Code, tx.Asset.Issuer)
	if !hasTrustline && !s.deps.Custody.ClaimableBalancesSupported() {
		tx.Status = txn.StatusPendingTrust
		tx.SubmissionStatus = txn.SubmissionTrust
		tx.Queue = ""
		tx.QueuedAt = nil
		if err := s.deps.Repo.Save(ctx, tx); err != nil {
			log.WithError(err).Error("submitter: parking to pending_trust")
		}
		return actionExit, true
	}

	if tx.HasEnvelope() {
		if tx.PendingSignatures {
			log.Warn("submitter: dequeued transaction still awaiting external signatures")
			return actionExit, true
		}
		return s.submitSignedEnvelope(ctx, tx, log)
	}

	requiresMultisig, err := s.deps.Custody.RequiresMultisig(ctx, tx.Asset)
	if err != nil {
		s.fail(ctx, tx, err.Error(), true)
		return actionExit, true
	}
	if requiresMultisig {
		return s.prepareMultisig(ctx, tx, log, hasTrustline)
	}

	hash, err := s.deps.Custody.SubmitDepositTransaction(ctx, tx, hasTrustline)
	if err != nil {
		return s.handleCustodyError(ctx, tx, log, err)
	}
	return s.confirm(ctx, tx, log, hash, decisionDeposit)
}

// submitSignedEnvelope submits an envelope a multisig flow already fully
// signed (spec.md SUPPLEMENTED FEATURES #1): an operator has collected the
// remaining signatures and cleared pending_signatures, so Custody is
// bypassed entirely and the envelope goes straight to Horizon.
func (s *Submitter) submitSignedEnvelope(ctx context.Context, tx *txn.Transaction, log *corelog.Entry) (loopAction, bool) {
	record, err := s.deps.Horizon.SubmitTransaction(ctx, tx.EnvelopeXDR)
	if err != nil {
		s.fail(ctx, tx, err.Error(), true)
		return actionExit, true
	}
	return s.confirm(ctx, tx, log, record.Hash, decisionDeposit)
}

// prepareMultisig handles a distribution account that needs more signing
// weight than Custody can supply alone (spec.md SUPPLEMENTED FEATURES #1):
// Custody builds and partially signs an envelope, the row parks at
// pending_signatures for an external operator tool to finish, and the
// retry loop exits — the Unblocked/signed scavenger re-enqueues the row
// once pending_signatures is cleared.
func (s *Submitter) prepareMultisig(ctx context.Context, tx *txn.Transaction, log *corelog.Entry, hasTrustline bool) (loopAction, bool) {
	envelopeXDR, err := s.deps.Custody.PrepareMultisigEnvelope(ctx, tx, hasTrustline)
	if err != nil {
		if errors.Is(err, custody.ErrNotSupported) {
			s.fail(ctx, tx, fmt.Sprintf("%s distribution account requires multisig but custody backend cannot prepare a multisig envelope", tx.Asset.Code), true)
			return actionExit, true
		}
		return s.handleCustodyError(ctx, tx, log, err)
	}

	tx.EnvelopeXDR = envelopeXDR
	tx.PendingSignatures = true
	tx.SubmissionStatus = txn.SubmissionPendingSignatures
	tx.Queue = ""
	tx.QueuedAt = nil
	if err := s.deps.Repo.Save(ctx, tx); err != nil {
		log.WithError(err).Error("submitter: saving pending-signatures envelope")
		return actionExit, true
	}
	s.deps.Notifier.NotifyChange(ctx, tx)
	return actionExit, true
}

func (s *Submitter) submitCreateAccount(ctx context.Context, tx *txn.Transaction, log *corelog.Entry) (loopAction, bool) {
	hash, err := s.deps.Custody.CreateDestinationAccount(ctx, tx)
	if err != nil {
		return s.handleCustodyError(ctx, tx, log, err)
	}
	return s.confirm(ctx, tx, log, hash, decisionCreateAccount)
}

// handleCustodyError dispatches the three submission-exception kinds of
// spec.md §4.6/§7.1 onto the retry policy of §4.8.
func (s *Submitter) handleCustodyError(ctx context.Context, tx *txn.Transaction, log *corelog.Entry, err error) (loopAction, bool) {
	var pending *custody.Pending
	var blocked *custody.Blocked
	var failed *custody.Failed

	switch {
	case errors.As(err, &pending):
		tx.SubmissionStatus = txn.SubmissionRetryable
		if saveErr := s.deps.Repo.Save(ctx, tx); saveErr != nil {
			log.WithError(saveErr).Error("submitter: saving pending retry")
			return actionExit, true
		}
		s.deps.Metrics.SubmissionsTotal.WithLabelValues(metrics.ResultPending).Inc()
		return actionRetry, false

	case errors.As(err, &blocked):
		tx.SubmissionStatus = txn.SubmissionBlocked
		tx.Queue = ""
		tx.QueuedAt = nil
		if saveErr := s.deps.Repo.Save(ctx, tx); saveErr != nil {
			log.WithError(saveErr).Error("submitter: saving blocked row")
		}
		s.deps.Metrics.SubmissionsTotal.WithLabelValues(metrics.ResultBlocked).Inc()
		return actionExit, true

	case errors.As(err, &failed):
		tx.Status = txn.StatusError
		tx.SubmissionStatus = txn.SubmissionFailed
		tx.Queue = ""
		tx.QueuedAt = nil
		if saveErr := s.deps.Repo.Save(ctx, tx); saveErr != nil {
			log.WithError(saveErr).Error("submitter: saving failed row")
		}
		s.deps.Metrics.SubmissionsTotal.WithLabelValues(metrics.ResultFailed).Inc()
		return actionExit, true

	default:
		s.fail(ctx, tx, fmt.Sprintf("%T: %s", err, err.Error()), true)
		return actionExit, true
	}
}

// confirm implements step 6: fetch the Horizon record and move the row to
// its final state for this attempt.
func (s *Submitter) confirm(ctx context.Context, tx *txn.Transaction, log *corelog.Entry, hash string, d decision) (loopAction, bool) {
	record, err := s.deps.Horizon.TransactionByHash(ctx, hash)
	if err != nil {
		s.fail(ctx, tx, err.Error(), true)
		return actionExit, true
	}

	if !record.Successful {
		s.fail(ctx, tx, record.ResultXdr, true)
		return actionExit, true
	}

	switch d {
	case decisionDeposit:
		tx.PagingToken = record.PagingToken
		tx.StellarTransactionID = record.Hash
		if s.deps.Custody.ClaimableBalancesSupported() {
			if balanceID, err := coreHorizon.ClaimableBalanceID(record); err == nil {
				tx.ClaimableBalanceID = balanceID
			} else if !errors.Is(err, coreHorizon.ErrNoClaimableBalance) {
				log.WithError(err).Warn("submitter: extracting claimable balance id")
			}
		}
		if !tx.IsQuoted() {
			tx.AmountOut = money.DeriveAmountOut(tx.AmountIn, tx.AmountFee, tx.Asset.SignificantDecimals)
		}
		tx.Status = txn.StatusCompleted
		tx.SubmissionStatus = txn.SubmissionCompleted
		now := time.Now()
		tx.CompletedAt = &now
		tx.Queue = ""
		tx.QueuedAt = nil
		if err := s.deps.Repo.Save(ctx, tx); err != nil {
			log.WithError(err).Error("submitter: saving completed row")
			return actionExit, true
		}
		s.deps.Notifier.NotifyChange(ctx, tx)
		s.deps.Metrics.SubmissionsTotal.WithLabelValues(metrics.ResultCompleted).Inc()

		if s.deps.Deposit != nil {
			if err := s.deps.Deposit.AfterDeposit(ctx, tx); err != nil && !errors.Is(err, deposit.ErrNotImplemented) {
				log.WithError(err).Warn("submitter: after_deposit hook failed")
			}
		}
		return actionExit, true

	default: // decisionCreateAccount
		if s.deps.Custody.ClaimableBalancesSupported() {
			enqueueReady(ctx, s.deps, tx)
			s.deps.Metrics.SubmissionsTotal.WithLabelValues(metrics.ResultRequeued).Inc()
			return actionExit, true
		}
		tx.Status = txn.StatusPendingTrust
		tx.SubmissionStatus = txn.SubmissionTrust
		tx.Queue = ""
		tx.QueuedAt = nil
		if err := s.deps.Repo.Save(ctx, tx); err != nil {
			log.WithError(err).Error("submitter: parking created account to pending_trust")
		}
		return actionExit, true
	}
}

// fail is the "any other exception" branch of the retry policy: mark the
// row error/failed, persist, and fire the on-change callback.
func (s *Submitter) fail(ctx context.Context, tx *txn.Transaction, message string, notify bool) {
	tx.Status = txn.StatusError
	tx.SubmissionStatus = txn.SubmissionFailed
	tx.StatusMessage = message
	tx.Queue = ""
	tx.QueuedAt = nil
	if err := s.deps.Repo.Save(ctx, tx); err != nil {
		corelog.Ctx(ctx).WithError(err).Error("submitter: saving error row")
		return
	}
	if notify {
		s.deps.Notifier.NotifyChange(ctx, tx)
	}
	s.deps.Metrics.SubmissionsTotal.WithLabelValues(metrics.ResultFailed).Inc()
}
