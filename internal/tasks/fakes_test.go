package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stellar/go/protocols/horizon"

	coreCustody "github.com/stellar-anchor/depositsd/internal/custody"
	"github.com/stellar-anchor/depositsd/internal/deposit"
	coreHorizon "github.com/stellar-anchor/depositsd/internal/horizon"
	"github.com/stellar-anchor/depositsd/internal/lock"
	"github.com/stellar-anchor/depositsd/internal/metrics"
	"github.com/stellar-anchor/depositsd/internal/queue"
	"github.com/stellar-anchor/depositsd/internal/store"
	"github.com/stellar-anchor/depositsd/internal/txn"
)

// fakeHorizon is a minimal in-memory double for horizon.Adapter.
type fakeHorizon struct {
	accounts     map[string]coreHorizon.Account
	transactions map[string]horizon.Transaction
	passphrase   string

	submitTxHash string
	submitTxErr  error
}

func newFakeHorizon() *fakeHorizon {
	return &fakeHorizon{
		accounts:     make(map[string]coreHorizon.Account),
		transactions: make(map[string]horizon.Transaction),
		passphrase:   "Test SDF Network ; September 2015",
	}
}

var _ coreHorizon.Adapter = (*fakeHorizon)(nil)

func (f *fakeHorizon) LoadAccount(_ context.Context, address string) (coreHorizon.Account, error) {
	acct, ok := f.accounts[address]
	if !ok {
		return coreHorizon.Account{}, coreHorizon.ErrAccountNotFound
	}
	return acct, nil
}

func (f *fakeHorizon) TransactionByHash(_ context.Context, hash string) (horizon.Transaction, error) {
	tx, ok := f.transactions[hash]
	if !ok {
		return horizon.Transaction{}, errors.New("fake horizon: unknown hash")
	}
	return tx, nil
}

func (f *fakeHorizon) SubmitTransaction(_ context.Context, envelopeXDR string) (horizon.Transaction, error) {
	if f.submitTxErr != nil {
		return horizon.Transaction{}, f.submitTxErr
	}
	if f.submitTxHash != "" {
		return horizon.Transaction{Hash: f.submitTxHash}, nil
	}
	return horizon.Transaction{}, errors.New("fake horizon: SubmitTransaction not used by these tests")
}

func (f *fakeHorizon) NetworkPassphrase() string { return f.passphrase }

// fakeCustody is a scriptable double for custody.Custody. submitErrs is
// consumed one error per SubmitDepositTransaction call (nil once
// exhausted), letting tests script a "pending, then succeeds" sequence
// without looping forever against a constant error.
type fakeCustody struct {
	distributionAccount string
	distributionErr      error
	createAccountHash    string
	createAccountErr     error
	submitHash           string
	submitErr            error
	submitErrs           []error
	submitCalls          int
	accountCreation      bool
	claimableBalances    bool

	requiresMultisig     bool
	requiresMultisigErr  error
	channelAccount       string
	channelAccountErr    error
	multisigEnvelope     string
	multisigEnvelopeErr  error
}

var _ coreCustody.Custody = (*fakeCustody)(nil)

func (f *fakeCustody) DistributionAccount(context.Context, txn.Asset) (string, error) {
	return f.distributionAccount, f.distributionErr
}

func (f *fakeCustody) CreateDestinationAccount(context.Context, *txn.Transaction) (string, error) {
	return f.createAccountHash, f.createAccountErr
}

func (f *fakeCustody) SubmitDepositTransaction(context.Context, *txn.Transaction, bool) (string, error) {
	if f.submitCalls < len(f.submitErrs) {
		err := f.submitErrs[f.submitCalls]
		f.submitCalls++
		return f.submitHash, err
	}
	f.submitCalls++
	return f.submitHash, f.submitErr
}

func (f *fakeCustody) AccountCreationSupported() bool { return f.accountCreation }
func (f *fakeCustody) ClaimableBalancesSupported() bool { return f.claimableBalances }

func (f *fakeCustody) RequiresMultisig(context.Context, txn.Asset) (bool, error) {
	return f.requiresMultisig, f.requiresMultisigErr
}

func (f *fakeCustody) ChannelAccountForCreate(context.Context, txn.Asset) (string, error) {
	return f.channelAccount, f.channelAccountErr
}

func (f *fakeCustody) PrepareMultisigEnvelope(context.Context, *txn.Transaction, bool) (string, error) {
	return f.multisigEnvelope, f.multisigEnvelopeErr
}

// fakeRails returns a fixed subset as "funded".
type fakeRails struct {
	funded []*txn.Transaction
	err    error
}

func (f *fakeRails) PollPendingDeposits(context.Context, []*txn.Transaction) ([]*txn.Transaction, error) {
	return f.funded, f.err
}

// fakeNotifier records NotifyChange calls without making any network call.
type fakeNotifier struct {
	calls []*txn.Transaction
}

func (f *fakeNotifier) NotifyChange(_ context.Context, tx *txn.Transaction) {
	f.calls = append(f.calls, tx)
}

// fakeDepositHook records AfterDeposit calls.
type fakeDepositHook struct {
	calls []*txn.Transaction
	err   error
}

func (f *fakeDepositHook) AfterDeposit(_ context.Context, tx *txn.Transaction) error {
	f.calls = append(f.calls, tx)
	return f.err
}

// newTestDeps assembles a Deps wired entirely with fakes/in-memory
// collaborators, suitable for driving any task in this package.
func newTestDeps() (*Deps, *store.Fake, *fakeHorizon, *fakeCustody, *fakeNotifier) {
	repo := store.NewFake()
	h := newFakeHorizon()
	c := &fakeCustody{distributionErr: coreCustody.ErrNotSupported}
	notifier := &fakeNotifier{}

	deps := &Deps{
		Repo:     repo,
		Horizon:  h,
		Custody:  c,
		Rails:    &fakeRails{},
		Deposit:  &fakeDepositHook{},
		FeeFunc:  deposit.ZeroFee,
		Locks:    lock.NewAccountLocks(),
		Queue:    queue.New(),
		Notifier: notifier,
		Metrics:  metrics.New(prometheus.NewRegistry()),
		Interval: 10 * time.Millisecond,
	}
	return deps, repo, h, c, notifier
}

