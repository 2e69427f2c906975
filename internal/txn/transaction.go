// Package txn defines the deposit-transaction entity the processor reads
// and mutates, and the small set of enumerations that make up its lifecycle.
package txn

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind mirrors the `kind` column. The processor only ever acts on Deposit
// and DepositExchange rows; anything else is ignored by every query.
type Kind string

const (
	KindDeposit         Kind = "deposit"
	KindDepositExchange Kind = "deposit-exchange"
)

func (k Kind) Supported() bool {
	return k == KindDeposit || k == KindDepositExchange
}

// Status is the user-visible lifecycle column.
type Status string

const (
	StatusPendingUserTransferStart Status = "pending_user_transfer_start"
	StatusPendingExternal          Status = "pending_external"
	StatusPendingUser              Status = "pending_user"
	StatusPendingAnchor            Status = "pending_anchor"
	StatusPendingTrust             Status = "pending_trust"
	StatusCompleted                Status = "completed"
	StatusError                    Status = "error"
)

// SubmissionStatus is the processor-internal lifecycle column.
type SubmissionStatus string

const (
	SubmissionNone       SubmissionStatus = ""
	SubmissionPending    SubmissionStatus = "pending_funding"
	SubmissionReady      SubmissionStatus = "ready"
	SubmissionProcessing SubmissionStatus = "processing"
	SubmissionRetryable  SubmissionStatus = "pending"
	SubmissionTrust      SubmissionStatus = "pending_trust"
	SubmissionBlocked    SubmissionStatus = "blocked"
	SubmissionUnblocked  SubmissionStatus = "unblocked"
	SubmissionFailed     SubmissionStatus = "failed"
	SubmissionCompleted  SubmissionStatus = "completed"

	// SubmissionPendingSignatures marks a row parked with a partially-signed
	// envelope, waiting on an operator tool to collect the remaining
	// signatures a multisig distribution account requires and clear
	// PendingSignatures (spec.md SUPPLEMENTED FEATURES #1).
	SubmissionPendingSignatures SubmissionStatus = "pending_signatures"
)

// SubmitTransactionQueue is the only named in-memory queue the processor
// drives transactions through.
const SubmitTransactionQueue = "submit_transaction"

// Asset is the issued Stellar asset a deposit mints, immutable once attached
// to a Transaction.
type Asset struct {
	Code                string
	Issuer              string
	SignificantDecimals  int32
	DistributionAccount string
}

// IsNative reports whether this is the network's native XLM asset.
func (a Asset) IsNative() bool {
	return a.Code == "" || a.Code == "native"
}

// Quote is an optional reference to a priced exchange quote. When present,
// AmountOut/AmountFee must already be populated by rails before the
// transaction enters the submission pipeline.
type Quote struct {
	ID string
}

// Transaction is the central entity the processor reads and mutates. Field
// names mirror spec.md §3.1 closely so the grounding is traceable.
type Transaction struct {
	ID   string
	Kind Kind

	Asset Asset
	Quote *Quote

	ToAddress string

	AmountIn  decimal.Decimal
	AmountFee decimal.Decimal
	AmountOut decimal.Decimal

	Status           Status
	SubmissionStatus SubmissionStatus

	PendingSignatures bool
	EnvelopeXDR       string

	ClaimableBalanceSupported bool
	ClaimableBalanceID        string

	StellarTransactionID string
	PagingToken          string

	Queue    string
	QueuedAt *time.Time

	CompletedAt    *time.Time
	StatusMessage  string

	OnChangeCallbackURL string
}

// IsQuoted reports whether this transaction carries a pre-priced quote, in
// which case AmountOut/AmountFee are rails-supplied rather than derived.
func (t *Transaction) IsQuoted() bool {
	return t.Quote != nil
}

// HasEnvelope reports whether a previously built (possibly multi-sig)
// envelope is still attached to the row.
func (t *Transaction) HasEnvelope() bool {
	return t.EnvelopeXDR != ""
}
