// Package deposit defines the optional post-completion hook collaborator
// (spec.md §6.3) and the fee function contract (spec.md §4.4 step 3).
package deposit

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/stellar-anchor/depositsd/internal/txn"
)

// ErrNotImplemented is a legal response from Hook.AfterDeposit: the
// collaborator declined to do anything for this transaction.
var ErrNotImplemented = errors.New("deposit: hook not implemented")

// Hook is the optional post-deposit-completion collaborator. Failures are
// logged and never fatal (spec.md §4.8 step 6).
type Hook interface {
	AfterDeposit(ctx context.Context, tx *txn.Transaction) error
}

// FeeParams carries the inputs a registered fee function needs to price a
// non-quoted deposit missing amount_fee.
type FeeParams struct {
	Amount    decimal.Decimal
	Operation string
	AssetCode string
}

// FeeFunc computes a fee for a non-quoted transaction. ErrInvalidFeeParams
// (or any error) causes the caller to default the fee to zero, per spec.md
// §4.4 step 3.
type FeeFunc func(params FeeParams) (decimal.Decimal, error)

// ErrInvalidFeeParams is returned by a FeeFunc when it cannot price the
// given params; callers treat this the same as any other FeeFunc error.
var ErrInvalidFeeParams = errors.New("deposit: invalid fee parameters")

// ZeroFee is the default FeeFunc used when no registered fee function is
// configured.
func ZeroFee(FeeParams) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

// NoopHook is the wiring default for deployments that haven't registered a
// post-completion hook.
type NoopHook struct{}

func (NoopHook) AfterDeposit(context.Context, *txn.Transaction) error {
	return ErrNotImplemented
}
