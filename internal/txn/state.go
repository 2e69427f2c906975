package txn

import "fmt"

// state is the composite (Status, SubmissionStatus) pair the table in
// spec.md §4.9 enumerates.
type state struct {
	Status           Status
	SubmissionStatus SubmissionStatus
}

// transitions is the allowed-transitions DAG from spec.md §4.9: loops only
// at ready ⇄ processing ⇄ pending (retry) and pending_trust → ready.
// "Ready" never jumps status to pending_anchor on its own: the account
// checker, trustline checker, and scavenger only ever flip
// submission_status to ready, leaving status exactly where it found it
// (spec.md §4.3's "mark ready" contract). status only becomes pending_anchor
// at the Submitter's own step 2, which is why every *, ready state below
// transitions to the single {pending_anchor, processing} edge.
var transitions = map[state][]state{
	{StatusPendingUserTransferStart, SubmissionNone}: {
		{StatusPendingUserTransferStart, SubmissionReady},
		{StatusPendingUser, SubmissionPending},
		{StatusPendingTrust, SubmissionTrust},
		{StatusError, SubmissionFailed},
	},
	{StatusPendingExternal, SubmissionNone}: {
		{StatusPendingExternal, SubmissionReady},
		{StatusPendingUser, SubmissionPending},
		{StatusPendingTrust, SubmissionTrust},
		{StatusError, SubmissionFailed},
	},
	{StatusPendingUserTransferStart, SubmissionReady}: {
		{StatusPendingAnchor, SubmissionProcessing},
	},
	{StatusPendingExternal, SubmissionReady}: {
		{StatusPendingAnchor, SubmissionProcessing},
	},
	{StatusPendingUser, SubmissionPending}: {
		{StatusPendingUser, SubmissionReady},
		{StatusPendingTrust, SubmissionTrust},
	},
	{StatusPendingUser, SubmissionReady}: {
		{StatusPendingAnchor, SubmissionProcessing},
	},
	{StatusPendingTrust, SubmissionTrust}: {
		{StatusPendingTrust, SubmissionReady},
	},
	{StatusPendingTrust, SubmissionReady}: {
		{StatusPendingAnchor, SubmissionProcessing},
	},
	{StatusPendingAnchor, SubmissionReady}: {
		{StatusPendingAnchor, SubmissionProcessing},
	},
	{StatusPendingAnchor, SubmissionProcessing}: {
		{StatusPendingAnchor, SubmissionRetryable},
		{StatusPendingAnchor, SubmissionBlocked},
		{StatusPendingAnchor, SubmissionPendingSignatures},
		{StatusPendingTrust, SubmissionTrust},
		{StatusPendingAnchor, SubmissionReady},
		{StatusError, SubmissionFailed},
		{StatusCompleted, SubmissionCompleted},
	},
	{StatusPendingAnchor, SubmissionRetryable}: {
		{StatusPendingAnchor, SubmissionProcessing},
	},
	{StatusPendingAnchor, SubmissionBlocked}: {
		{StatusPendingAnchor, SubmissionUnblocked},
	},
	{StatusPendingAnchor, SubmissionUnblocked}: {
		{StatusPendingAnchor, SubmissionReady},
	},
	// An operator tool collects the remaining signatures externally and
	// clears PendingSignatures; the Unblocked/signed scavenger's second
	// query leg (store.Repository.UnblockedCandidates) then marks the row
	// ready the same way it does for an operator-unblocked row.
	{StatusPendingAnchor, SubmissionPendingSignatures}: {
		{StatusPendingAnchor, SubmissionReady},
	},
}

// CanTransition reports whether moving a row from (fromStatus,
// fromSubmission) to (toStatus, toSubmission) is a legal edge in the state
// machine's DAG.
func CanTransition(fromStatus Status, fromSubmission SubmissionStatus, toStatus Status, toSubmission SubmissionStatus) bool {
	from := state{fromStatus, fromSubmission}
	to := state{toStatus, toSubmission}
	if from == to {
		return true
	}
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// ErrIllegalTransition is returned by Transition when an edge isn't present
// in the DAG; spec.md treats this as a programming error, terminal for the
// row under processing.
type ErrIllegalTransition struct {
	From, To state
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal transition from %+v to %+v", e.From, e.To)
}

// Transition mutates t's Status/SubmissionStatus in place after validating
// the edge is legal, returning ErrIllegalTransition otherwise. Callers still
// own persistence; Transition only guards the in-memory invariant.
func Transition(t *Transaction, toStatus Status, toSubmission SubmissionStatus) error {
	if !CanTransition(t.Status, t.SubmissionStatus, toStatus, toSubmission) {
		return &ErrIllegalTransition{
			From: state{t.Status, t.SubmissionStatus},
			To:   state{toStatus, toSubmission},
		}
	}
	t.Status = toStatus
	t.SubmissionStatus = toSubmission
	return nil
}

// IsTerminal reports whether the row has reached completed or error, after
// which spec.md invariant #4 forbids any further processor write.
func IsTerminal(t *Transaction) bool {
	return t.Status == StatusCompleted || t.Status == StatusError
}
