package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/stellar-anchor/depositsd/internal/corelog"
	coreHorizon "github.com/stellar-anchor/depositsd/internal/horizon"
)

// TrustlineChecker re-polls rows parked at pending_trust, releasing them
// once the destination account establishes the needed trustline (spec.md
// §4.7).
type TrustlineChecker struct {
	deps *Deps
}

func NewTrustlineChecker(deps *Deps) *TrustlineChecker {
	return &TrustlineChecker{deps: deps}
}

func (c *TrustlineChecker) Run(ctx context.Context) error {
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

func (c *TrustlineChecker) tick(ctx context.Context) {
	candidates, err := c.deps.Repo.PendingTrustCandidates(ctx)
	if err != nil {
		corelog.Ctx(ctx).WithError(err).Error("trustline checker: loading candidates")
		return
	}

	for _, tx := range candidates {
		account, err := c.deps.Horizon.LoadAccount(ctx, tx.ToAddress)
		if err != nil {
			if !errors.Is(err, coreHorizon.ErrAccountNotFound) {
				corelog.Ctx(ctx).WithError(err).WithField("tx_id", tx.ID).Warn("trustline checker: loading destination account")
			}
			continue
		}

		if !account.HasTrustline(tx.Asset.Code, tx.Asset.Issuer) {
			continue
		}

		// The prior envelope (built before the trustline existed, e.g. a
		// stale create-account attempt) no longer applies.
		tx.EnvelopeXDR = ""
		tx.StellarTransactionID = ""
		enqueueReady(ctx, c.deps, tx)
	}
}
