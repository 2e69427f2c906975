// Package custody defines the pluggable Custody collaborator contract
// (spec.md §4.6) and a self-custody implementation grounded on
// original_source/polaris/polaris/integrations/custody.py's
// SelfCustodyIntegration.
package custody

import (
	"context"
	"errors"

	"github.com/stellar-anchor/depositsd/internal/txn"
)

// ErrNotSupported is returned by Custody.DistributionAccount when the
// custody backend does not expose a fixed distribution account per asset
// (e.g. it rotates channel accounts internally); the Submitter proceeds
// without acquiring a source lock in that case, trusting Custody to
// serialize on its own.
var ErrNotSupported = errors.New("custody: operation not supported by this backend")

// Pending, Blocked, and Failed are the three submission-exception kinds
// spec.md §4.6/§7.1 names. They replace exceptions-as-control-flow (§9
// design notes) with typed errors the Submitter's retry loop dispatches on
// via errors.As.
type Pending struct{ Reason string }

func (e *Pending) Error() string { return "custody: submission pending: " + e.Reason }

type Blocked struct{ Reason string }

func (e *Blocked) Error() string { return "custody: submission blocked: " + e.Reason }

type Failed struct{ Reason string }

func (e *Failed) Error() string { return "custody: submission failed: " + e.Reason }

// Custody is the collaborator responsible for holding keys and producing
// signed Stellar transactions. The processor never reads a distribution
// account secret key directly; custody is the only place a production
// implementation may.
type Custody interface {
	// DistributionAccount returns the distribution account ID for asset, or
	// ErrNotSupported if this backend doesn't expose one.
	DistributionAccount(ctx context.Context, asset txn.Asset) (string, error)
	// CreateDestinationAccount funds and creates tx's destination account,
	// returning the submitted Stellar transaction hash. May return Pending,
	// Blocked, or Failed.
	CreateDestinationAccount(ctx context.Context, tx *txn.Transaction) (stellarTxHash string, err error)
	// SubmitDepositTransaction submits the deposit payment (or claimable
	// balance) for tx. hasTrustline tells the implementation whether it
	// must fall back to a claimable balance. May return Pending, Blocked,
	// or Failed.
	SubmitDepositTransaction(ctx context.Context, tx *txn.Transaction, hasTrustline bool) (stellarTxHash string, err error)
	// AccountCreationSupported reports whether this backend can create
	// destination accounts at all (spec.md §4.4 step 4).
	AccountCreationSupported() bool
	// ClaimableBalancesSupported reports whether this backend can create
	// claimable balances in lieu of a direct payment.
	ClaimableBalancesSupported() bool

	// RequiresMultisig reports whether asset's distribution account needs
	// more signing weight than this backend can supply on its own before a
	// payment operation will be accepted (SUPPLEMENTED FEATURES #1,
	// grounded on original_source/polaris/polaris/management/commands/
	// process_pending_deposits.py's requires_multisig).
	RequiresMultisig(ctx context.Context, asset txn.Asset) (bool, error)
	// PrepareMultisigEnvelope builds tx's deposit envelope and partially
	// signs it with whatever weight this backend controls, returning the
	// unsigned/partially-signed envelope XDR for an operator tool to
	// complete and submit externally. Returns ErrNotSupported if this
	// backend has no way to participate in a multisig flow at all.
	PrepareMultisigEnvelope(ctx context.Context, tx *txn.Transaction, hasTrustline bool) (envelopeXDR string, err error)
	// ChannelAccountForCreate returns a disposable channel account this
	// backend controls outright, to use as the source of a create-account
	// operation instead of a distribution account that requires multisig
	// (SUPPLEMENTED FEATURES #2). Returns ErrNotSupported if this backend
	// has no such account available.
	ChannelAccountForCreate(ctx context.Context, asset txn.Asset) (string, error)
}
