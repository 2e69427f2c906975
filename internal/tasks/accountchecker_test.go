package tasks

import (
	"context"
	"testing"

	"github.com/stellar/go/protocols/horizon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreHorizon "github.com/stellar-anchor/depositsd/internal/horizon"
	"github.com/stellar-anchor/depositsd/internal/txn"
)

func TestEvaluateDestinationAccount_NotFoundGoesReady(t *testing.T) {
	deps, repo, _, _, _ := newTestDeps()
	tx := &txn.Transaction{ID: "t1", ToAddress: "GABSENT", Asset: txn.Asset{Code: "USD", Issuer: "GISS"}}
	repo.Put(tx)

	evaluateDestinationAccount(context.Background(), deps, tx)

	assert.Equal(t, txn.SubmissionReady, repo.Transactions["t1"].SubmissionStatus)
	assert.Equal(t, 1, deps.Queue.Len())
}

func TestEvaluateDestinationAccount_FoundWithTrustlineGoesReady(t *testing.T) {
	deps, repo, h, _, _ := newTestDeps()
	h.accounts["GPRESENT"] = coreHorizon.Account{
		AccountID: "GPRESENT",
		Balances:  []horizon.Balance{{Asset: horizon.Asset{Code: "USD", Issuer: "GISS"}}},
	}
	tx := &txn.Transaction{ID: "t2", ToAddress: "GPRESENT", Asset: txn.Asset{Code: "USD", Issuer: "GISS"}}
	repo.Put(tx)

	evaluateDestinationAccount(context.Background(), deps, tx)

	assert.Equal(t, txn.SubmissionReady, repo.Transactions["t2"].SubmissionStatus)
}

func TestEvaluateDestinationAccount_FoundNoTrustlineNoClaimableGoesPendingTrust(t *testing.T) {
	deps, repo, h, c, _ := newTestDeps()
	c.claimableBalances = false
	h.accounts["GPRESENT"] = coreHorizon.Account{AccountID: "GPRESENT"}
	tx := &txn.Transaction{ID: "t3", ToAddress: "GPRESENT", Asset: txn.Asset{Code: "USD", Issuer: "GISS"}}
	repo.Put(tx)

	evaluateDestinationAccount(context.Background(), deps, tx)

	saved := repo.Transactions["t3"]
	require.NotNil(t, saved)
	assert.Equal(t, txn.StatusPendingTrust, saved.Status)
	assert.Equal(t, txn.SubmissionTrust, saved.SubmissionStatus)
	assert.Equal(t, 0, deps.Queue.Len())
}

func TestEvaluateDestinationAccount_FoundNoTrustlineButClaimableSupportedGoesReady(t *testing.T) {
	deps, repo, h, c, _ := newTestDeps()
	c.claimableBalances = true
	h.accounts["GPRESENT"] = coreHorizon.Account{AccountID: "GPRESENT"}
	tx := &txn.Transaction{ID: "t4", ToAddress: "GPRESENT", Asset: txn.Asset{Code: "USD", Issuer: "GISS"}}
	repo.Put(tx)

	evaluateDestinationAccount(context.Background(), deps, tx)

	assert.Equal(t, txn.SubmissionReady, repo.Transactions["t4"].SubmissionStatus)
}

func TestAccountChecker_TickProcessesPendingFundingRows(t *testing.T) {
	deps, repo, _, _, _ := newTestDeps()
	tx := &txn.Transaction{
		ID:               "t5",
		Kind:             txn.KindDeposit,
		ToAddress:        "GABSENT2",
		Asset:            txn.Asset{Code: "USD", Issuer: "GISS"},
		Status:           txn.StatusPendingUser,
		SubmissionStatus: txn.SubmissionPending,
	}
	repo.Put(tx)

	checker := NewAccountChecker(deps)
	checker.tick(context.Background())

	assert.Equal(t, txn.SubmissionReady, repo.Transactions["t5"].SubmissionStatus)
}
