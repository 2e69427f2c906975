package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stellar-anchor/depositsd/internal/txn"
)

// Fake is an in-memory Repository + HeartbeatStore used throughout
// internal/tasks tests, grounded on the pack's hand-written-interface-mock
// convention (storeMocks, sigMocks, preconditionsMocks) rather than a
// generated mocking framework.
type Fake struct {
	mu           sync.Mutex
	Transactions map[string]*txn.Transaction
	Heartbeat    *heartbeatRow
	SaveCalls    []string
}

var (
	_ Repository     = (*Fake)(nil)
	_ HeartbeatStore = (*Fake)(nil)
)

// NewFake constructs an empty fake store.
func NewFake() *Fake {
	return &Fake{Transactions: make(map[string]*txn.Transaction)}
}

// Put seeds tx into the fake store.
func (f *Fake) Put(t *txn.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Transactions[t.ID] = t
}

func (f *Fake) filter(pred func(*txn.Transaction) bool) []*txn.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*txn.Transaction
	for _, t := range f.Transactions {
		if pred(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *Fake) RailsCandidates(_ context.Context) ([]*txn.Transaction, error) {
	return f.filter(func(t *txn.Transaction) bool {
		return t.Kind.Supported() && (t.Status == txn.StatusPendingUserTransferStart || t.Status == txn.StatusPendingExternal)
	}), nil
}

func (f *Fake) PendingFundingCandidates(_ context.Context) ([]*txn.Transaction, error) {
	return f.filter(func(t *txn.Transaction) bool {
		return t.Kind.Supported() && t.SubmissionStatus == txn.SubmissionPending
	}), nil
}

func (f *Fake) PendingTrustCandidates(_ context.Context) ([]*txn.Transaction, error) {
	return f.filter(func(t *txn.Transaction) bool {
		return t.Kind.Supported() && t.Status == txn.StatusPendingTrust && t.SubmissionStatus == txn.SubmissionTrust
	}), nil
}

func (f *Fake) UnblockedCandidates(_ context.Context) ([]*txn.Transaction, error) {
	return f.filter(func(t *txn.Transaction) bool {
		if !t.Kind.Supported() || t.Status != txn.StatusPendingAnchor {
			return false
		}
		if t.SubmissionStatus == txn.SubmissionUnblocked {
			return true
		}
		return !t.PendingSignatures && t.HasEnvelope() && t.SubmissionStatus != txn.SubmissionCompleted
	}), nil
}

func (f *Fake) RehydrateQueue(_ context.Context) ([]*txn.Transaction, error) {
	rows := f.filter(func(t *txn.Transaction) bool {
		return t.Kind.Supported() && t.Queue == txn.SubmitTransactionQueue &&
			(t.SubmissionStatus == txn.SubmissionReady || t.SubmissionStatus == txn.SubmissionProcessing) &&
			t.QueuedAt != nil
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].QueuedAt.Before(*rows[j].QueuedAt) })
	return rows, nil
}

func (f *Fake) ReconcileCandidates(_ context.Context) ([]*txn.Transaction, error) {
	return f.filter(func(t *txn.Transaction) bool {
		return t.Kind.Supported() && t.StellarTransactionID != "" && !txn.IsTerminal(t)
	}), nil
}

func (f *Fake) Save(_ context.Context, t *txn.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.Transactions[t.ID] = &cp
	f.SaveCalls = append(f.SaveCalls, t.ID)
	return nil
}

func (f *Fake) AcquireOrRefresh(_ context.Context, _ string, now time.Time, staleAfter time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Heartbeat == nil {
		f.Heartbeat = &heartbeatRow{LastHeartbeat: now}
		return true, nil
	}
	if now.Sub(f.Heartbeat.LastHeartbeat) <= staleAfter {
		return false, nil
	}
	f.Heartbeat.LastHeartbeat = now
	return true, nil
}

func (f *Fake) Refresh(_ context.Context, _ string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Heartbeat == nil {
		f.Heartbeat = &heartbeatRow{}
	}
	f.Heartbeat.LastHeartbeat = now
	return nil
}

func (f *Fake) Release(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Heartbeat = nil
	return nil
}
