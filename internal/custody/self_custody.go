package custody

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"

	coreHorizon "github.com/stellar-anchor/depositsd/internal/horizon"
	"github.com/stellar-anchor/depositsd/internal/txn"
)

// AccountStartingBalance is the minimum XLM balance a newly created
// destination account is funded with, mirroring Polaris'
// settings.ACCOUNT_STARTING_BALANCE default.
const AccountStartingBalance = "2.5"

// SelfCustody signs deposit transactions directly with a held distribution
// seed, the simplest of the three strategies spec.md §4.6 names (the other
// two — external signing service, channel-account multisig — are separate
// Custody implementations not needed by every anchor). Grounded on
// original_source/polaris/polaris/integrations/custody.py's
// SelfCustodyIntegration.
type SelfCustody struct {
	Horizon           coreHorizon.Adapter
	DistributionSeeds map[string]string // distribution account ID -> secret seed
	MaxBaseFee        int64
}

var _ Custody = (*SelfCustody)(nil)

func (c *SelfCustody) AccountCreationSupported() bool  { return true }
func (c *SelfCustody) ClaimableBalancesSupported() bool { return true }

func (c *SelfCustody) DistributionAccount(_ context.Context, asset txn.Asset) (string, error) {
	if asset.DistributionAccount == "" {
		return "", fmt.Errorf("asset %s has no configured distribution account", asset.Code)
	}
	return asset.DistributionAccount, nil
}

func (c *SelfCustody) keypairFor(distributionAccount string) (*keypair.Full, error) {
	seed, ok := c.DistributionSeeds[distributionAccount]
	if !ok {
		return nil, &Failed{Reason: fmt.Sprintf("no seed configured for distribution account %s", distributionAccount)}
	}
	kp, err := keypair.ParseFull(seed)
	if err != nil {
		return nil, &Failed{Reason: fmt.Sprintf("invalid seed for %s: %v", distributionAccount, err)}
	}
	return kp, nil
}

// receivingMemo derives a HashMemo from the transaction ID, the same scheme
// custody.py's get_receiving_account_and_memo uses to disambiguate deposits
// credited to a pooled distribution account: the ID's hex digits (dashes
// removed), left-padded with zeros to 64, decoded into the 32-byte hash.
func receivingMemo(transactionID string) (*txnbuild.MemoHash, error) {
	padded := strings.ReplaceAll(transactionID, "-", "")
	if len(padded) < 64 {
		padded = strings.Repeat("0", 64-len(padded)) + padded
	} else if len(padded) > 64 {
		padded = padded[len(padded)-64:]
	}

	raw, err := hex.DecodeString(padded)
	if err != nil {
		return nil, fmt.Errorf("transaction id %q is not hex: %w", transactionID, err)
	}
	var memo txnbuild.MemoHash
	copy(memo[:], raw)
	return &memo, nil
}

// RequiresMultisig reports whether asset's distribution account's master
// key lacks the weight to satisfy a medium-threshold operation (a payment)
// on its own. Grounded on custody.py's requires_multisig:
// "not master_signer or master_signer.weight < thresholds.med_threshold".
func (c *SelfCustody) RequiresMultisig(ctx context.Context, asset txn.Asset) (bool, error) {
	account, err := c.Horizon.LoadAccount(ctx, asset.DistributionAccount)
	if err != nil {
		return false, fmt.Errorf("loading distribution account %s signers: %w", asset.DistributionAccount, err)
	}
	weight := account.MasterSignerWeight()
	return weight == 0 || weight < account.Thresholds.MedThreshold, nil
}

// ChannelAccountForCreate always returns ErrNotSupported: SelfCustody only
// ever holds the distribution account's own seed, never a disposable
// channel account an anchor-specific integration would provision on its
// behalf — consistent with it being "the simplest of the three
// strategies" this package's doc comment already describes.
func (c *SelfCustody) ChannelAccountForCreate(context.Context, txn.Asset) (string, error) {
	return "", ErrNotSupported
}

// PrepareMultisigEnvelope always returns ErrNotSupported for the same
// reason: SelfCustody has no way to partially sign with a subset of the
// weight a multisig distribution account requires.
func (c *SelfCustody) PrepareMultisigEnvelope(context.Context, *txn.Transaction, bool) (string, error) {
	return "", ErrNotSupported
}

func (c *SelfCustody) CreateDestinationAccount(ctx context.Context, tx *txn.Transaction) (string, error) {
	distributionAccount := tx.Asset.DistributionAccount
	sourceAccountID := distributionAccount

	requiresMultisig, err := c.RequiresMultisig(ctx, tx.Asset)
	if err != nil {
		return "", &Failed{Reason: err.Error()}
	}
	if requiresMultisig {
		// A channel account the anchor controls outright can fund and
		// create the destination account without needing the distribution
		// account's full signer set at all.
		channelAccount, chErr := c.ChannelAccountForCreate(ctx, tx.Asset)
		if chErr != nil {
			return "", &Failed{Reason: fmt.Sprintf("distribution account %s requires multisig and no channel account is available: %v", distributionAccount, chErr)}
		}
		sourceAccountID = channelAccount
	}

	kp, err := c.keypairFor(sourceAccountID)
	if err != nil {
		return "", err
	}

	sourceAccount, err := c.Horizon.LoadAccount(ctx, sourceAccountID)
	if err != nil {
		return "", &Failed{Reason: fmt.Sprintf("loading create-account source %s: %v", sourceAccountID, err)}
	}

	destination, err := coreHorizon.BaseAccountID(tx.ToAddress)
	if err != nil {
		return "", &Failed{Reason: err.Error()}
	}

	builtTx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount: &txnbuild.SimpleAccount{
			AccountID: sourceAccount.AccountID,
			Sequence:  sourceAccount.Sequence,
		},
		IncrementSequenceNum: true,
		Operations: []txnbuild.Operation{
			&txnbuild.CreateAccount{
				Destination: destination,
				Amount:      AccountStartingBalance,
			},
		},
		BaseFee: c.MaxBaseFee,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(300),
		},
	})
	if err != nil {
		return "", &Failed{Reason: fmt.Sprintf("building create-account transaction: %v", err)}
	}

	return c.signAndSubmit(ctx, builtTx, kp)
}

func (c *SelfCustody) SubmitDepositTransaction(ctx context.Context, tx *txn.Transaction, hasTrustline bool) (string, error) {
	distributionAccount := tx.Asset.DistributionAccount
	kp, err := c.keypairFor(distributionAccount)
	if err != nil {
		return "", err
	}

	sourceAccount, err := c.Horizon.LoadAccount(ctx, distributionAccount)
	if err != nil {
		return "", &Failed{Reason: fmt.Sprintf("loading distribution account %s: %v", distributionAccount, err)}
	}

	var asset txnbuild.Asset = txnbuild.NativeAsset{}
	if !tx.Asset.IsNative() {
		asset = txnbuild.CreditAsset{Code: tx.Asset.Code, Issuer: tx.Asset.Issuer}
	}

	amount := tx.AmountIn.Sub(tx.AmountFee)
	if tx.IsQuoted() {
		amount = tx.AmountOut
	}

	var op txnbuild.Operation
	if !hasTrustline && tx.ClaimableBalanceSupported {
		destBase, err := coreHorizon.BaseAccountID(tx.ToAddress)
		if err != nil {
			return "", &Failed{Reason: err.Error()}
		}
		op = &txnbuild.CreateClaimableBalance{
			Destinations: []txnbuild.Claimant{
				txnbuild.NewClaimant(destBase, nil),
			},
			Amount: amount.StringFixed(tx.Asset.SignificantDecimals),
			Asset:  asset,
		}
	} else {
		op = &txnbuild.Payment{
			Destination: tx.ToAddress,
			Amount:      amount.StringFixed(tx.Asset.SignificantDecimals),
			Asset:       asset,
		}
	}

	memo, err := receivingMemo(tx.ID)
	if err != nil {
		return "", &Failed{Reason: err.Error()}
	}

	builtTx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount: &txnbuild.SimpleAccount{
			AccountID: sourceAccount.AccountID,
			Sequence:  sourceAccount.Sequence,
		},
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{op},
		BaseFee:               c.MaxBaseFee,
		Memo:                  memo,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(300),
		},
	})
	if err != nil {
		return "", &Failed{Reason: fmt.Sprintf("building deposit transaction: %v", err)}
	}

	return c.signAndSubmit(ctx, builtTx, kp)
}

func (c *SelfCustody) signAndSubmit(ctx context.Context, tx *txnbuild.Transaction, kp *keypair.Full) (string, error) {
	signed, err := tx.Sign(c.Horizon.NetworkPassphrase(), kp)
	if err != nil {
		return "", &Failed{Reason: fmt.Sprintf("signing transaction: %v", err)}
	}

	envelopeXDR, err := signed.Base64()
	if err != nil {
		return "", &Failed{Reason: fmt.Sprintf("encoding envelope: %v", err)}
	}

	resp, err := c.Horizon.SubmitTransaction(ctx, envelopeXDR)
	if err != nil {
		return "", classifySubmitError(err)
	}

	return resp.Hash, nil
}

// classifySubmitError maps a raw Horizon submission error to the three
// submission-exception kinds spec.md §7.1 names. Timeouts and "too many
// requests" are transient-pending; bad sequence/auth errors require
// operator intervention (blocked); everything else is a hard failure.
func classifySubmitError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "tx_too_late"), strings.Contains(msg, "504"), strings.Contains(msg, "429"), strings.Contains(msg, "tx_insufficient_fee"):
		return &Pending{Reason: msg}
	case strings.Contains(msg, "tx_bad_seq"), strings.Contains(msg, "tx_bad_auth"), strings.Contains(msg, "op_bad_auth"):
		return &Blocked{Reason: msg}
	default:
		return &Failed{Reason: msg}
	}
}
