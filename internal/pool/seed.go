package pool

import "github.com/iliyamo/ticket-admission/internal/model"

// DirectSeed computes the direct pool's starting counters: each tier's
// capacity less the seats committed elsewhere, floored at zero. Pass a
// nil committed map to seed from capacity alone.
func DirectSeed(tiers []model.Tier, committed map[uint64]int) map[uint64]int {
	seed := make(map[uint64]int, len(tiers))
	for _, t := range tiers {
		n := t.Capacity - committed[t.ID]
		if n < 0 {
			n = 0
		}
		seed[t.ID] = n
	}
	return seed
}

// TierIDs lists the ids of tiers in order.
func TierIDs(tiers []model.Tier) []uint64 {
	ids := make([]uint64, 0, len(tiers))
	for _, t := range tiers {
		ids = append(ids, t.ID)
	}
	return ids
}
