package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	testCases := []struct {
		name   string
		from   state
		to     state
		legal  bool
	}{
		{
			name:  "pending_user_transfer_start to ready keeps status",
			from:  state{StatusPendingUserTransferStart, SubmissionNone},
			to:    state{StatusPendingUserTransferStart, SubmissionReady},
			legal: true,
		},
		{
			name:  "ready status stays put until the submitter claims it",
			from:  state{StatusPendingUserTransferStart, SubmissionNone},
			to:    state{StatusPendingAnchor, SubmissionReady},
			legal: false,
		},
		{
			name:  "ready to processing",
			from:  state{StatusPendingAnchor, SubmissionReady},
			to:    state{StatusPendingAnchor, SubmissionProcessing},
			legal: true,
		},
		{
			name:  "pending_user_transfer_start ready to processing",
			from:  state{StatusPendingUserTransferStart, SubmissionReady},
			to:    state{StatusPendingAnchor, SubmissionProcessing},
			legal: true,
		},
		{
			name:  "processing to pending (retry loop)",
			from:  state{StatusPendingAnchor, SubmissionProcessing},
			to:    state{StatusPendingAnchor, SubmissionRetryable},
			legal: true,
		},
		{
			name:  "pending back to processing",
			from:  state{StatusPendingAnchor, SubmissionRetryable},
			to:    state{StatusPendingAnchor, SubmissionProcessing},
			legal: true,
		},
		{
			name:  "pending_trust to ready once trustline appears, status unchanged",
			from:  state{StatusPendingTrust, SubmissionTrust},
			to:    state{StatusPendingTrust, SubmissionReady},
			legal: true,
		},
		{
			name:  "blocked requires unblocked before ready",
			from:  state{StatusPendingAnchor, SubmissionBlocked},
			to:    state{StatusPendingAnchor, SubmissionReady},
			legal: false,
		},
		{
			name:  "unblocked then ready",
			from:  state{StatusPendingAnchor, SubmissionUnblocked},
			to:    state{StatusPendingAnchor, SubmissionReady},
			legal: true,
		},
		{
			name:  "completed is terminal",
			from:  state{StatusCompleted, SubmissionCompleted},
			to:    state{StatusPendingAnchor, SubmissionReady},
			legal: false,
		},
		{
			name:  "error is terminal",
			from:  state{StatusError, SubmissionFailed},
			to:    state{StatusPendingAnchor, SubmissionReady},
			legal: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := CanTransition(tc.from.Status, tc.from.SubmissionStatus, tc.to.Status, tc.to.SubmissionStatus)
			assert.Equal(t, tc.legal, got)
		})
	}
}

func TestTransition(t *testing.T) {
	tx := &Transaction{Status: StatusPendingAnchor, SubmissionStatus: SubmissionReady}

	err := Transition(tx, StatusPendingAnchor, SubmissionProcessing)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingAnchor, tx.Status)
	assert.Equal(t, SubmissionProcessing, tx.SubmissionStatus)

	err = Transition(tx, StatusCompleted, SubmissionCompleted)
	require.NoError(t, err)

	err = Transition(tx, StatusPendingAnchor, SubmissionReady)
	require.Error(t, err)
	var illegal *ErrIllegalTransition
	assert.ErrorAs(t, err, &illegal)
	// the terminal write must not have mutated the row.
	assert.Equal(t, StatusCompleted, tx.Status)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(&Transaction{Status: StatusCompleted}))
	assert.True(t, IsTerminal(&Transaction{Status: StatusError}))
	assert.False(t, IsTerminal(&Transaction{Status: StatusPendingAnchor}))
}
