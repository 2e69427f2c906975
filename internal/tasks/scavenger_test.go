package tasks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stellar-anchor/depositsd/internal/txn"
)

func TestScavenger_RequeuesUnblockedRow(t *testing.T) {
	deps, repo, _, _, _ := newTestDeps()
	tx := &txn.Transaction{
		ID:               "t1",
		Kind:             txn.KindDeposit,
		Status:           txn.StatusPendingAnchor,
		SubmissionStatus: txn.SubmissionUnblocked,
	}
	repo.Put(tx)

	scavenger := NewScavenger(deps)
	scavenger.tick(context.Background())

	assert.Equal(t, txn.SubmissionReady, repo.Transactions["t1"].SubmissionStatus)
	assert.Equal(t, 1, deps.Queue.Len())
}

func TestScavenger_RequeuesNeverBlockedSignedMultisigRow(t *testing.T) {
	deps, repo, _, _, _ := newTestDeps()
	tx := &txn.Transaction{
		ID:                "t2",
		Kind:              txn.KindDeposit,
		Status:            txn.StatusPendingAnchor,
		SubmissionStatus:  txn.SubmissionRetryable,
		PendingSignatures: false,
		EnvelopeXDR:       "fully-signed-envelope",
	}
	repo.Put(tx)

	scavenger := NewScavenger(deps)
	scavenger.tick(context.Background())

	assert.Equal(t, txn.SubmissionReady, repo.Transactions["t2"].SubmissionStatus)
}

func TestScavenger_IgnoresUnsignedMultisigRow(t *testing.T) {
	deps, repo, _, _, _ := newTestDeps()
	tx := &txn.Transaction{
		ID:                "t3",
		Kind:              txn.KindDeposit,
		Status:            txn.StatusPendingAnchor,
		SubmissionStatus:  txn.SubmissionRetryable,
		PendingSignatures: true,
		EnvelopeXDR:       "partially-signed-envelope",
	}
	repo.Put(tx)

	scavenger := NewScavenger(deps)
	scavenger.tick(context.Background())

	assert.Empty(t, repo.SaveCalls)
}
