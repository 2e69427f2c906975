// Package heartbeat implements the singleton-instance lock (spec.md §4.1):
// blocking acquisition at startup, periodic maintenance, and unconditional
// release on graceful shutdown.
package heartbeat

import (
	"context"
	"fmt"
	"time"

	"github.com/stellar-anchor/depositsd/internal/corelog"
	"github.com/stellar-anchor/depositsd/internal/store"
)

// Key is the single heartbeat row's identifier; the processor is a
// singleton per deployment so one well-known key suffices.
const Key = "pending_deposits_processor"

// DefaultInterval is the compile-time heartbeat interval (spec.md §6.2):
// not operator-configurable.
const DefaultInterval = 5 * time.Second

// minFloor is the 30s floor from spec.md §4.1 step 3.
const minFloor = 30 * time.Second

// staleAfter returns the threshold beyond which a previous instance's
// heartbeat is considered dead: max(5 × interval, 30s).
func staleAfter(interval time.Duration) time.Duration {
	if floor := 5 * interval; floor > minFloor {
		return floor
	}
	return minFloor
}

// Lock drives the acquire/maintain/release lifecycle over a
// store.HeartbeatStore.
type Lock struct {
	store    store.HeartbeatStore
	interval time.Duration
	now      func() time.Time
}

// New constructs a Lock with the compile-time default interval.
func New(s store.HeartbeatStore) *Lock {
	return &Lock{store: s, interval: DefaultInterval, now: time.Now}
}

// Acquire blocks until the heartbeat row is claimed, retrying every
// interval seconds (spec.md §4.1 steps 1-4). It returns only ctx.Err() if
// ctx is canceled while waiting — that's not a fatal initialization
// failure, it blocks (spec.md §6.1).
func (l *Lock) Acquire(ctx context.Context) error {
	threshold := staleAfter(l.interval)
	for {
		acquired, err := l.store.AcquireOrRefresh(ctx, Key, l.now(), threshold)
		if err != nil {
			return fmt.Errorf("acquiring heartbeat: %w", err)
		}
		if acquired {
			corelog.Ctx(ctx).Info("heartbeat lock acquired")
			return nil
		}

		corelog.Ctx(ctx).Debug("heartbeat lock held by another instance, waiting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.interval):
		}
	}
}

// Maintain refreshes the heartbeat every interval seconds until ctx is
// canceled. Run this as its own task once Acquire succeeds.
func (l *Lock) Maintain(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := l.store.Refresh(ctx, Key, l.now()); err != nil {
				corelog.Ctx(ctx).WithError(err).Warn("failed to refresh heartbeat")
			}
		}
	}
}

// Release unconditionally deletes the heartbeat row (spec.md §4.1
// Release, §4.10 step 1). It uses the ctx it is given; since this runs
// during shutdown, callers pass a fresh context (lifecycle passes
// context.Background()) rather than the already-canceled task context.
func (l *Lock) Release(ctx context.Context) error {
	return l.store.Release(ctx, Key)
}
