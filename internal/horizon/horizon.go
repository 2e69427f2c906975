// Package horizon adapts github.com/stellar/go's Horizon client to the
// narrow account/trustline/submit surface the processor actually needs,
// grounded on the reference transaction_worker.go and
// transactionsubmission/services/horizon.go files.
package horizon

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
)

// baseAccountCache memoizes the muxed-to-base address decode: it's a pure
// function of the input string, and every task re-derives it on every poll
// for the same handful of destination addresses.
var baseAccountCache, _ = lru.New(4096)

// ErrAccountNotFound is returned by Adapter.LoadAccount when Horizon 404s.
var ErrAccountNotFound = errors.New("horizon: account not found")

// ErrConnection wraps transient Horizon/network failures (5xx, dial
// errors); callers skip-and-retry on the next poll interval per spec §7.1.
var ErrConnection = errors.New("horizon: connection error")

// Account is the subset of horizonclient.AccountDetail the processor needs.
type Account struct {
	AccountID  string
	Sequence   int64
	Balances   []horizon.Balance
	Signers    []horizon.Signer
	Thresholds horizon.AccountThresholds
}

// MasterSignerWeight returns the weight of the account's own master key as
// a signer entry, or 0 if the master key carries no signing weight at all
// (removed as a signer, or weight explicitly zeroed) — indistinguishable
// states for custody's multisig check.
func (a Account) MasterSignerWeight() int32 {
	for _, s := range a.Signers {
		if s.Key == a.AccountID {
			return s.Weight
		}
	}
	return 0
}

// HasTrustline reports whether this account already carries a trustline to
// the given asset code/issuer (native assets are always "trusted").
func (a Account) HasTrustline(code, issuer string) bool {
	if code == "" || code == "native" {
		return true
	}
	for _, b := range a.Balances {
		if b.Asset.Code == code && b.Asset.Issuer == issuer {
			return true
		}
	}
	return false
}

// Adapter is the Horizon surface the processor's tasks depend on. Production
// code gets it from New; tests substitute a fake.
type Adapter interface {
	// LoadAccount fetches the account, unwrapping a multiplexed address to
	// its base account first. Returns ErrAccountNotFound on 404 and
	// ErrConnection on transient network/5xx failures.
	LoadAccount(ctx context.Context, address string) (Account, error)
	// TransactionByHash fetches a previously-submitted transaction's
	// confirmation record.
	TransactionByHash(ctx context.Context, hash string) (horizon.Transaction, error)
	// SubmitTransaction submits a signed envelope and returns Horizon's
	// record of the resulting transaction (its Hash field is the hash).
	SubmitTransaction(ctx context.Context, envelopeXDR string) (horizon.Transaction, error)
	// NetworkPassphrase returns the configured network passphrase.
	NetworkPassphrase() string
}

type client struct {
	hc         *horizonclient.Client
	passphrase string
}

// New builds a production Adapter backed by horizonclient.Client.
func New(horizonURL, networkPassphrase string) Adapter {
	return &client{
		hc:         &horizonclient.Client{HorizonURL: horizonURL},
		passphrase: networkPassphrase,
	}
}

func (c *client) NetworkPassphrase() string { return c.passphrase }

// BaseAccountID unwraps a multiplexed (M...) address down to its base G...
// account, per spec.md §4.5/§4.7: probes and payments use different halves
// of the same address.
func BaseAccountID(address string) (string, error) {
	if cached, ok := baseAccountCache.Get(address); ok {
		return cached.(string), nil
	}

	if !strkey.IsValidMuxedAccountEd25519PublicKey(address) {
		baseAccountCache.Add(address, address)
		return address, nil
	}

	muxed, err := xdr.AddressToMuxedAccount(address)
	if err != nil {
		return "", fmt.Errorf("decoding muxed account %q: %w", address, err)
	}
	base := muxed.ToAccountId().Address()
	baseAccountCache.Add(address, base)
	return base, nil
}

func (c *client) LoadAccount(_ context.Context, address string) (Account, error) {
	baseAccount, err := BaseAccountID(address)
	if err != nil {
		return Account{}, err
	}

	detail, err := c.hc.AccountDetail(horizonclient.AccountRequest{AccountID: baseAccount})
	if err != nil {
		if isNotFound(err) {
			return Account{}, ErrAccountNotFound
		}
		if isConnectionError(err) {
			return Account{}, fmt.Errorf("%w: %v", ErrConnection, err)
		}
		return Account{}, fmt.Errorf("loading account %s: %w", baseAccount, err)
	}

	seq, err := detail.GetSequenceNumber()
	if err != nil {
		return Account{}, fmt.Errorf("reading sequence for %s: %w", baseAccount, err)
	}

	return Account{
		AccountID:  detail.AccountID,
		Sequence:   seq,
		Balances:   detail.Balances,
		Signers:    detail.Signers,
		Thresholds: detail.Thresholds,
	}, nil
}

func (c *client) TransactionByHash(_ context.Context, hash string) (horizon.Transaction, error) {
	tx, err := c.hc.TransactionDetail(hash)
	if err != nil {
		if isConnectionError(err) {
			return horizon.Transaction{}, fmt.Errorf("%w: %v", ErrConnection, err)
		}
		return horizon.Transaction{}, fmt.Errorf("fetching transaction %s: %w", hash, err)
	}
	return tx, nil
}

func (c *client) SubmitTransaction(_ context.Context, envelopeXDR string) (horizon.Transaction, error) {
	genericTx, err := txnbuild.TransactionFromXDR(envelopeXDR)
	if err != nil {
		return horizon.Transaction{}, fmt.Errorf("parsing envelope xdr: %w", err)
	}

	if feeBump, ok := genericTx.FeeBump(); ok {
		resp, err := c.hc.SubmitFeeBumpTransaction(*feeBump)
		if err != nil {
			return horizon.Transaction{}, err
		}
		return resp, nil
	}

	tx, ok := genericTx.Transaction()
	if !ok {
		return horizon.Transaction{}, fmt.Errorf("envelope is neither a transaction nor a fee-bump transaction")
	}
	resp, err := c.hc.SubmitTransaction(*tx)
	if err != nil {
		return horizon.Transaction{}, err
	}
	return resp, nil
}

func isNotFound(err error) bool {
	var hErr *horizonclient.Error
	if errors.As(err, &hErr) {
		return hErr.Problem.Status == 404
	}
	return strings.Contains(err.Error(), "404")
}

func isConnectionError(err error) bool {
	var hErr *horizonclient.Error
	if errors.As(err, &hErr) {
		return hErr.Problem.Status >= 500
	}
	// horizonclient surfaces dial/timeout failures as plain errors, not
	// *horizonclient.Error; net.Error-shaped failures are connection errors.
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr)
}
