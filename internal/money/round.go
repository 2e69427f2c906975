// Package money centralizes the decimal rounding rules the processor
// applies to amount_in/amount_fee/amount_out, grounded on the pack's use of
// github.com/shopspring/decimal for Stellar amount math.
package money

import "github.com/shopspring/decimal"

// RoundToSignificant rounds amount to the asset's significant decimals,
// half-away-from-zero, matching Stellar's own amount precision rules.
func RoundToSignificant(amount decimal.Decimal, significantDecimals int32) decimal.Decimal {
	return amount.Round(significantDecimals)
}

// DeriveAmountOut computes amount_in - amount_fee for a non-quoted
// transaction, rounded to the asset's significant decimals. Quoted
// transactions never call this: their amount_out is rails-supplied.
func DeriveAmountOut(amountIn, amountFee decimal.Decimal, significantDecimals int32) decimal.Decimal {
	return RoundToSignificant(amountIn.Sub(amountFee), significantDecimals)
}
