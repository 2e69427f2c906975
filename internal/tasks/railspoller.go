package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/stellar-anchor/depositsd/internal/corelog"
	"github.com/stellar-anchor/depositsd/internal/deposit"
	"github.com/stellar-anchor/depositsd/internal/txn"
)

// RailsPoller periodically asks Rails which pending deposits have been
// funded off-chain (spec.md §4.4), validates them, and hands them to the
// account checker or parks them pending external funding.
type RailsPoller struct {
	deps *Deps
}

// NewRailsPoller constructs a RailsPoller sharing deps with the rest of the
// task graph.
func NewRailsPoller(deps *Deps) *RailsPoller {
	return &RailsPoller{deps: deps}
}

// Run loops every Interval until ctx is canceled.
func (p *RailsPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *RailsPoller) tick(ctx context.Context) {
	candidates, err := p.deps.Repo.RailsCandidates(ctx)
	if err != nil {
		corelog.Ctx(ctx).WithError(err).Error("rails poller: loading candidates")
		return
	}
	if len(candidates) == 0 {
		return
	}

	funded, err := p.deps.Rails.PollPendingDeposits(ctx, candidates)
	if err != nil {
		corelog.Ctx(ctx).WithError(err).Error("rails poller: Rails.PollPendingDeposits failed")
		return
	}

	for _, tx := range funded {
		p.processFunded(ctx, tx)
	}
}

// processFunded validates one rails-confirmed row and routes it onward
// (spec.md §4.4 steps 3-5).
func (p *RailsPoller) processFunded(ctx context.Context, tx *txn.Transaction) {
	if !tx.Kind.Supported() {
		p.markError(ctx, tx, "poll_pending_deposits returned an unsupported kind")
		return
	}
	if tx.AmountIn.IsZero() {
		p.markError(ctx, tx, "poll_pending_deposits did not assign amount_in")
		return
	}

	if tx.IsQuoted() {
		if tx.AmountFee.IsZero() || tx.AmountOut.IsZero() {
			p.markError(ctx, tx, "quoted transaction missing amount_fee/amount_out from rails")
			return
		}
	} else if tx.AmountFee.IsZero() {
		fee, err := p.deps.FeeFunc(deposit.FeeParams{
			Amount:    tx.AmountIn,
			Operation: "deposit",
			AssetCode: tx.Asset.Code,
		})
		if err != nil {
			if !errors.Is(err, deposit.ErrInvalidFeeParams) {
				corelog.Ctx(ctx).WithError(err).Warn("fee function error, defaulting to zero fee")
			}
			fee, _ = deposit.ZeroFee(deposit.FeeParams{})
		}
		tx.AmountFee = fee
		if err := p.deps.Repo.Save(ctx, tx); err != nil {
			corelog.Ctx(ctx).WithError(err).Error("rails poller: saving derived fee")
			return
		}
	}

	if !p.deps.Custody.AccountCreationSupported() {
		if err := txn.Transition(tx, txn.StatusPendingUser, txn.SubmissionPending); err != nil {
			p.markError(ctx, tx, err.Error())
			return
		}
		if err := p.deps.Repo.Save(ctx, tx); err != nil {
			corelog.Ctx(ctx).WithError(err).Error("rails poller: saving pending_funding transition")
			return
		}
		p.deps.Notifier.NotifyChange(ctx, tx)
		return
	}

	evaluateDestinationAccount(ctx, p.deps, tx)
}

func (p *RailsPoller) markError(ctx context.Context, tx *txn.Transaction, message string) {
	tx.Status = txn.StatusError
	tx.SubmissionStatus = txn.SubmissionFailed
	tx.StatusMessage = message
	if err := p.deps.Repo.Save(ctx, tx); err != nil {
		corelog.Ctx(ctx).WithError(err).Error("rails poller: saving error row")
		return
	}
	p.deps.Notifier.NotifyChange(ctx, tx)
}
