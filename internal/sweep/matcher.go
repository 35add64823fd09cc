package sweep

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ticket-admission/internal/clock"
	"github.com/iliyamo/ticket-admission/internal/model"
	"github.com/iliyamo/ticket-admission/internal/notify"
)

// MatcherStore is what the matcher reads and writes.
type MatcherStore interface {
	notify.OfferStore
	WaitingList(ctx context.Context) ([]model.WaitingRow, error)
	GetTier(ctx context.Context, id uint64) (model.Tier, error)
	GetFixture(ctx context.Context, id uint64) (model.Fixture, error)
	CreateOffer(ctx context.Context, groupID, tierID uint64, issuedAt, expiresAt time.Time) (model.Offer, error)
}

// RecycledPool is the capacity the matcher draws from.
type RecycledPool interface {
	Reserve(ctx context.Context, tierID uint64, count int) (bool, error)
	Recover(ctx context.Context, counts map[uint64]int) (bool, error)
}

// Matcher walks the waiting list oldest group first and offers each
// group its best-ranked tier that the recycled pool can cover.
type Matcher struct {
	store    MatcherStore
	pool     RecycledPool
	gateway  notify.Gateway
	clock    clock.Clock
	validity time.Duration
	log      *zap.Logger
}

// NewMatcher returns a Matcher issuing offers valid for validity.
func NewMatcher(st MatcherStore, p RecycledPool, gw notify.Gateway, clk clock.Clock, validity time.Duration, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Matcher{store: st, pool: p, gateway: gw, clock: clk, validity: validity, log: logger}
}

// Name identifies the matcher in logs.
func (m *Matcher) Name() string { return "matcher" }

// Run performs one pass. Any failure other than short capacity ends the
// pass so that a later group is never served ahead of one whose attempt
// errored; offers already written stay.
func (m *Matcher) Run(ctx context.Context) error {
	rows, err := m.store.WaitingList(ctx)
	if err != nil {
		return fmt.Errorf("waiting list: %w", err)
	}
	var lastOffered uint64
	offered := 0
	for _, row := range rows {
		if row.GroupID == lastOffered {
			continue
		}
		ok, err := m.pool.Reserve(ctx, row.TierID, row.AttendeeCount)
		if err != nil {
			return fmt.Errorf("reserve tier %d: %w", row.TierID, err)
		}
		if !ok {
			continue
		}
		if err := m.offer(ctx, row); err != nil {
			return err
		}
		lastOffered = row.GroupID
		offered++
	}
	if offered > 0 {
		m.log.Info("offers issued", zap.Int("count", offered))
	}
	return nil
}

func (m *Matcher) offer(ctx context.Context, row model.WaitingRow) error {
	tier, err := m.store.GetTier(ctx, row.TierID)
	if err != nil {
		m.giveBack(ctx, row)
		return fmt.Errorf("load tier %d: %w", row.TierID, err)
	}
	fixture, err := m.store.GetFixture(ctx, tier.FixtureID)
	if err != nil {
		m.giveBack(ctx, row)
		return fmt.Errorf("load fixture %d: %w", tier.FixtureID, err)
	}
	now := m.clock.Now()
	offer, err := m.store.CreateOffer(ctx, row.GroupID, row.TierID, now, now.Add(m.validity))
	if err != nil {
		m.giveBack(ctx, row)
		return fmt.Errorf("create offer for group %d: %w", row.GroupID, err)
	}
	m.log.Info("offer issued",
		zap.Uint64("offer_id", offer.ID),
		zap.Uint64("group_id", row.GroupID),
		zap.Uint64("tier_id", row.TierID),
		zap.Int("rank", row.Rank),
		zap.Time("expires_at", offer.ExpiresAt))
	if err := notify.NotifyOffer(ctx, m.gateway, m.store, offer, fixture); err != nil {
		return fmt.Errorf("notify offer %d: %w", offer.ID, err)
	}
	return nil
}

// giveBack returns a reservation whose offer could not be written.
func (m *Matcher) giveBack(ctx context.Context, row model.WaitingRow) {
	if _, err := m.pool.Recover(context.WithoutCancel(ctx), map[uint64]int{row.TierID: row.AttendeeCount}); err != nil {
		m.log.Error("return reservation", zap.Uint64("tier_id", row.TierID), zap.Int("seats", row.AttendeeCount), zap.Error(err))
	}
}
