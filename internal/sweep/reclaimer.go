package sweep

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ticket-admission/internal/clock"
	"github.com/iliyamo/ticket-admission/internal/model"
)

// ReclaimerStore flags expired offers as reclaimed. ClaimExpiredOffers
// must select and flag in one transaction and return only offers it
// flagged itself, with the seats held by unpaid payment groups.
type ReclaimerStore interface {
	ClaimExpiredOffers(ctx context.Context, now time.Time) ([]model.ReclaimedOffer, error)
}

// Recoverer credits capacity back to a pool.
type Recoverer interface {
	Recover(ctx context.Context, counts map[uint64]int) (bool, error)
}

// Reclaimer returns the capacity of expired, unpaid offers to the
// recycled pool.
type Reclaimer struct {
	store ReclaimerStore
	pool  Recoverer
	clock clock.Clock
	log   *zap.Logger
}

// NewReclaimer returns a Reclaimer crediting p. A nil clock means real time.
func NewReclaimer(st ReclaimerStore, p Recoverer, clk clock.Clock, logger *zap.Logger) *Reclaimer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Reclaimer{store: st, pool: p, clock: clk, log: logger}
}

// Name identifies the reclaimer in logs.
func (r *Reclaimer) Name() string { return "reclaimer" }

// Run performs one pass. Offers are flagged before the pool is
// credited; a flagged offer is never returned again, so repeated runs
// cannot credit the same seats twice.
func (r *Reclaimer) Run(ctx context.Context) error {
	claimed, err := r.store.ClaimExpiredOffers(ctx, r.clock.Now())
	if err != nil {
		return fmt.Errorf("claim expired offers: %w", err)
	}
	if len(claimed) == 0 {
		return nil
	}
	counts := make(map[uint64]int)
	for _, c := range claimed {
		if c.Seats > 0 {
			counts[c.TierID] += c.Seats
		}
	}
	if len(counts) > 0 {
		ok, err := r.pool.Recover(ctx, counts)
		if err != nil {
			return fmt.Errorf("recover capacity: %w", err)
		}
		if !ok {
			r.log.Warn("recover was partial", zap.Any("counts", counts))
		}
	}
	r.log.Info("offers reclaimed", zap.Int("offers", len(claimed)), zap.Any("seats_by_tier", counts))
	return nil
}
