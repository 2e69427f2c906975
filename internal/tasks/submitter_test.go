package tasks

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/protocols/horizon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreCustody "github.com/stellar-anchor/depositsd/internal/custody"
	coreHorizon "github.com/stellar-anchor/depositsd/internal/horizon"
	"github.com/stellar-anchor/depositsd/internal/txn"
)

func readyTx(id string) *txn.Transaction {
	return &txn.Transaction{
		ID:               id,
		Kind:             txn.KindDeposit,
		Asset:            txn.Asset{Code: "USD", Issuer: "GISS", SignificantDecimals: 2},
		ToAddress:        "GDEST",
		AmountIn:         decimal.NewFromInt(100),
		AmountFee:        decimal.NewFromInt(1),
		Status:           txn.StatusPendingUserTransferStart,
		SubmissionStatus: txn.SubmissionReady,
	}
}

func TestSubmitter_DepositPathCompletes(t *testing.T) {
	deps, repo, h, c, notifier := newTestDeps()
	h.accounts["GDEST"] = coreHorizon.Account{
		AccountID: "GDEST",
		Balances:  []horizon.Balance{{Asset: horizon.Asset{Code: "USD", Issuer: "GISS"}}},
	}
	c.submitHash = "deadbeef"
	h.transactions["deadbeef"] = horizon.Transaction{
		Hash:        "deadbeef",
		PagingToken: "123",
		Successful:  true,
	}

	tx := readyTx("s1")
	repo.Put(tx)

	s := NewSubmitter(deps)
	s.process(context.Background(), tx)

	saved := repo.Transactions["s1"]
	require.NotNil(t, saved)
	assert.Equal(t, txn.StatusCompleted, saved.Status)
	assert.Equal(t, txn.SubmissionCompleted, saved.SubmissionStatus)
	assert.Equal(t, "deadbeef", saved.StellarTransactionID)
	assert.True(t, saved.AmountOut.Equal(decimal.NewFromInt(99)))
	assert.NotEmpty(t, notifier.calls)
}

func TestSubmitter_CreateAccountPathWithoutClaimableParksPendingTrust(t *testing.T) {
	deps, repo, h, c, _ := newTestDeps()
	// no account registered -> not found
	c.createAccountHash = "createhash"
	h.transactions["createhash"] = horizon.Transaction{Hash: "createhash", Successful: true}

	tx := readyTx("s2")
	repo.Put(tx)

	s := NewSubmitter(deps)
	s.process(context.Background(), tx)

	saved := repo.Transactions["s2"]
	require.NotNil(t, saved)
	assert.Equal(t, txn.StatusPendingTrust, saved.Status)
	assert.Equal(t, txn.SubmissionTrust, saved.SubmissionStatus)
}

func TestSubmitter_CreateAccountPathWithClaimableReenqueues(t *testing.T) {
	deps, repo, _, c, _ := newTestDeps()
	c.claimableBalances = true
	c.createAccountHash = "createhash2"
	h := deps.Horizon.(*fakeHorizon)
	h.transactions["createhash2"] = horizon.Transaction{Hash: "createhash2", Successful: true}

	tx := readyTx("s3")
	repo.Put(tx)

	s := NewSubmitter(deps)
	s.process(context.Background(), tx)

	saved := repo.Transactions["s3"]
	require.NotNil(t, saved)
	assert.Equal(t, txn.SubmissionReady, saved.SubmissionStatus)
	assert.Equal(t, 1, deps.Queue.Len())
}

func TestSubmitter_NoTrustlineNoClaimableParksPendingTrustBeforeSubmit(t *testing.T) {
	deps, repo, h, c, _ := newTestDeps()
	c.claimableBalances = false
	h.accounts["GDEST"] = coreHorizon.Account{AccountID: "GDEST"}

	tx := readyTx("s4")
	repo.Put(tx)

	s := NewSubmitter(deps)
	s.process(context.Background(), tx)

	saved := repo.Transactions["s4"]
	require.NotNil(t, saved)
	assert.Equal(t, txn.StatusPendingTrust, saved.Status)
	assert.Equal(t, txn.SubmissionTrust, saved.SubmissionStatus)
}

func TestSubmitter_CustodyBlocked(t *testing.T) {
	deps, repo, h, c, _ := newTestDeps()
	h.accounts["GDEST"] = coreHorizon.Account{
		AccountID: "GDEST",
		Balances:  []horizon.Balance{{Asset: horizon.Asset{Code: "USD", Issuer: "GISS"}}},
	}
	c.submitErr = &coreCustody.Blocked{Reason: "sanctions review"}

	tx := readyTx("s5")
	repo.Put(tx)

	s := NewSubmitter(deps)
	s.process(context.Background(), tx)

	saved := repo.Transactions["s5"]
	require.NotNil(t, saved)
	assert.Equal(t, txn.SubmissionBlocked, saved.SubmissionStatus)
	assert.Empty(t, saved.Queue)
}

func TestSubmitter_CustodyFailed(t *testing.T) {
	deps, repo, h, c, _ := newTestDeps()
	h.accounts["GDEST"] = coreHorizon.Account{
		AccountID: "GDEST",
		Balances:  []horizon.Balance{{Asset: horizon.Asset{Code: "USD", Issuer: "GISS"}}},
	}
	c.submitErr = &coreCustody.Failed{Reason: "invalid destination"}

	tx := readyTx("s6")
	repo.Put(tx)

	s := NewSubmitter(deps)
	s.process(context.Background(), tx)

	saved := repo.Transactions["s6"]
	require.NotNil(t, saved)
	assert.Equal(t, txn.StatusError, saved.Status)
	assert.Equal(t, txn.SubmissionFailed, saved.SubmissionStatus)
}

func TestSubmitter_CustodyPendingRetriesThenSucceeds(t *testing.T) {
	deps, repo, h, c, _ := newTestDeps()
	h.accounts["GDEST"] = coreHorizon.Account{
		AccountID: "GDEST",
		Balances:  []horizon.Balance{{Asset: horizon.Asset{Code: "USD", Issuer: "GISS"}}},
	}

	tx := readyTx("s7")
	repo.Put(tx)

	c.submitHash = "afterretry"
	c.submitErrs = []error{
		&coreCustody.Pending{Reason: "awaiting signatures"},
		&coreCustody.Pending{Reason: "awaiting signatures"},
	}
	// third call (index 2, beyond submitErrs) falls through to submitErr=nil -> succeeds
	h.transactions["afterretry"] = horizon.Transaction{Hash: "afterretry", PagingToken: "1", Successful: true}

	s := NewSubmitter(deps)
	s.process(context.Background(), tx)

	saved := repo.Transactions["s7"]
	require.NotNil(t, saved)
	assert.Equal(t, txn.StatusCompleted, saved.Status)
	assert.Equal(t, 3, c.submitCalls)
}

func TestSubmitter_RequiresMultisigParksPendingSignatures(t *testing.T) {
	deps, repo, h, c, notifier := newTestDeps()
	h.accounts["GDEST"] = coreHorizon.Account{
		AccountID: "GDEST",
		Balances:  []horizon.Balance{{Asset: horizon.Asset{Code: "USD", Issuer: "GISS"}}},
	}
	c.requiresMultisig = true
	c.multisigEnvelope = "AAAA partial envelope"

	tx := readyTx("s9")
	repo.Put(tx)

	s := NewSubmitter(deps)
	s.process(context.Background(), tx)

	saved := repo.Transactions["s9"]
	require.NotNil(t, saved)
	assert.Equal(t, txn.SubmissionPendingSignatures, saved.SubmissionStatus)
	assert.True(t, saved.PendingSignatures)
	assert.Equal(t, "AAAA partial envelope", saved.EnvelopeXDR)
	assert.Empty(t, saved.Queue)
	assert.NotEmpty(t, notifier.calls)
}

func TestSubmitter_SignedEnvelopeSubmitsDirectlyBypassingCustody(t *testing.T) {
	deps, repo, h, c, _ := newTestDeps()
	h.accounts["GDEST"] = coreHorizon.Account{
		AccountID: "GDEST",
		Balances:  []horizon.Balance{{Asset: horizon.Asset{Code: "USD", Issuer: "GISS"}}},
	}
	h.submitTxHash = "signedhash"
	h.transactions["signedhash"] = horizon.Transaction{Hash: "signedhash", PagingToken: "1", Successful: true}
	// An unset submitErr would fail the test if Custody.SubmitDepositTransaction
	// were ever called for an already-signed envelope.
	c.submitErr = &coreCustody.Failed{Reason: "custody should not be consulted for a signed envelope"}

	tx := readyTx("s10")
	tx.EnvelopeXDR = "AAAA fully signed envelope"
	tx.PendingSignatures = false
	repo.Put(tx)

	s := NewSubmitter(deps)
	s.process(context.Background(), tx)

	saved := repo.Transactions["s10"]
	require.NotNil(t, saved)
	assert.Equal(t, txn.StatusCompleted, saved.Status)
	assert.Equal(t, "signedhash", saved.StellarTransactionID)
}

func TestSubmitter_IllegalPreflightStatusFails(t *testing.T) {
	deps, repo, _, _, _ := newTestDeps()
	tx := &txn.Transaction{ID: "s8", Status: txn.StatusCompleted, SubmissionStatus: txn.SubmissionCompleted}
	repo.Put(tx)

	s := NewSubmitter(deps)
	s.process(context.Background(), tx)

	saved := repo.Transactions["s8"]
	require.NotNil(t, saved)
	assert.Equal(t, txn.StatusError, saved.Status)
}
