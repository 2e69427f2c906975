package tasks

import (
	"context"
	"time"

	"github.com/stellar-anchor/depositsd/internal/corelog"
)

// Scavenger re-enqueues rows an operator has unblocked, or multi-sig rows
// whose envelope collected enough signatures without ever being blocked
// (spec.md §4's Unblocked/signed scavenger, resolved as an explicit
// two-leg disjunction in store.Repository.UnblockedCandidates; see
// DESIGN.md).
type Scavenger struct {
	deps *Deps
}

func NewScavenger(deps *Deps) *Scavenger {
	return &Scavenger{deps: deps}
}

func (s *Scavenger) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scavenger) tick(ctx context.Context) {
	candidates, err := s.deps.Repo.UnblockedCandidates(ctx)
	if err != nil {
		corelog.Ctx(ctx).WithError(err).Error("scavenger: loading unblocked candidates")
		return
	}

	for _, tx := range candidates {
		enqueueReady(ctx, s.deps, tx)
	}
}
