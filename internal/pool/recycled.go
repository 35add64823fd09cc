package pool

import (
	"context"

	"go.uber.org/zap"
)

// RecycledPool holds capacity returned by reclaimed offers. It starts
// empty and is drained by the waiting-list matcher.
type RecycledPool struct {
	*Pool
}

// NewRecycled returns a recycled ledger with a zero counter for every
// tier id.
func NewRecycled(tierIDs []uint64, queueSize int, log *zap.Logger) *RecycledPool {
	seed := make(map[uint64]int, len(tierIDs))
	for _, id := range tierIDs {
		seed[id] = 0
	}
	return &RecycledPool{Pool: newPool("recycled", seed, queueSize, log)}
}

// Recover credits each listed tier. It returns false when any tier id is
// unknown; the known tiers are still credited, so a false result is a
// report, not a rollback.
func (p *RecycledPool) Recover(ctx context.Context, counts map[uint64]int) (bool, error) {
	ok := true
	var unknown []uint64
	err := p.do(ctx, func(c map[uint64]int) {
		for id, n := range counts {
			remaining, known := c[id]
			if !known {
				ok = false
				unknown = append(unknown, id)
				continue
			}
			if n > 0 {
				c[id] = remaining + n
			}
		}
	})
	if err != nil {
		return false, err
	}
	if !ok {
		p.log.Warn("recover skipped unknown tiers", zap.Uint64s("tiers", unknown))
	}
	return ok, nil
}

// PeekAll returns every tier whose recycled counter is above zero.
func (p *RecycledPool) PeekAll(ctx context.Context) (map[uint64]int, error) {
	out := make(map[uint64]int)
	err := p.do(ctx, func(c map[uint64]int) {
		for id, n := range c {
			if n > 0 {
				out[id] = n
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
