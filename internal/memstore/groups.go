package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/iliyamo/ticket-admission/internal/admission"
	"github.com/iliyamo/ticket-admission/internal/model"
)

func (s *Store) CreateGroup(_ context.Context, leaderID, fixtureID uint64, createdAt time.Time) (model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateGroup"); err != nil {
		return model.Group{}, err
	}
	g := model.Group{
		ID:        s.next("groups"),
		LeaderID:  leaderID,
		FixtureID: fixtureID,
		Status:    model.GroupWaiting,
		CreatedAt: createdAt.UTC(),
	}
	s.groups[g.ID] = g
	return g, nil
}

func (s *Store) GetGroup(_ context.Context, id uint64) (model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return model.Group{}, admission.ErrGroupNotFound
	}
	return g, nil
}

func (s *Store) ListGroupsForUser(_ context.Context, userID uint64) ([]model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	member := make(map[uint64]bool)
	for _, pg := range s.paymentGroups {
		if pg.PayeeID == userID {
			member[pg.GroupID] = true
			continue
		}
		for _, a := range pg.Attendees {
			if a == userID {
				member[pg.GroupID] = true
				break
			}
		}
	}
	var out []model.Group
	for _, g := range s.groups {
		if g.LeaderID == userID || member[g.ID] {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) ReplaceTierRanks(_ context.Context, groupID uint64, ranks map[uint64]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("ReplaceTierRanks"); err != nil {
		return err
	}
	g, ok := s.groups[groupID]
	if !ok {
		return admission.ErrGroupNotFound
	}
	if g.Status != model.GroupWaiting {
		return admission.ErrNotWaiting
	}
	if len(ranks) == 0 {
		return admission.ErrNoPreferences
	}
	for id := range ranks {
		if _, ok := s.tiers[id]; !ok {
			return admission.ErrTierNotFound
		}
	}
	replaced := make(map[uint64]int, len(ranks))
	for id, r := range ranks {
		replaced[id] = r
	}
	s.ranks[groupID] = replaced
	return nil
}

func (s *Store) DeleteGroup(_ context.Context, groupID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("DeleteGroup"); err != nil {
		return err
	}
	if _, ok := s.groups[groupID]; !ok {
		return admission.ErrGroupNotFound
	}
	if _, ok := s.offerByGroup[groupID]; ok {
		return admission.ErrOfferExists
	}
	for id, pg := range s.paymentGroups {
		if pg.GroupID == groupID {
			delete(s.paymentGroups, id)
		}
	}
	delete(s.ranks, groupID)
	delete(s.groups, groupID)
	return nil
}

func (s *Store) ListTierRanks(_ context.Context, groupID uint64) ([]model.TierRank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tierRanksLocked(groupID), nil
}

func (s *Store) tierRanksLocked(groupID uint64) []model.TierRank {
	out := make([]model.TierRank, 0, len(s.ranks[groupID]))
	for tierID, r := range s.ranks[groupID] {
		out = append(out, model.TierRank{GroupID: groupID, TierID: tierID, Rank: r})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].TierID < out[j].TierID
	})
	return out
}

func (s *Store) CreatePaymentGroups(_ context.Context, groupID uint64, payees map[uint64][]uint64) ([]model.PaymentGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreatePaymentGroups"); err != nil {
		return nil, err
	}
	g, ok := s.groups[groupID]
	if !ok {
		return nil, admission.ErrGroupNotFound
	}
	if g.Status != model.GroupWaiting {
		return nil, admission.ErrNotWaiting
	}
	ids := make([]uint64, 0, len(payees))
	for payee, attendees := range payees {
		if len(attendees) == 0 {
			return nil, admission.ErrEmptyAttendees
		}
		ids = append(ids, payee)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]model.PaymentGroup, 0, len(ids))
	for _, payee := range ids {
		pg := model.PaymentGroup{
			ID:        s.next("payment_groups"),
			GroupID:   groupID,
			PayeeID:   payee,
			Attendees: append([]uint64(nil), payees[payee]...),
		}
		s.paymentGroups[pg.ID] = pg
		out = append(out, pg)
	}
	return out, nil
}

func (s *Store) ListPaymentGroups(_ context.Context, groupID uint64) ([]model.PaymentGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("ListPaymentGroups"); err != nil {
		return nil, err
	}
	return s.paymentGroupsLocked(groupID), nil
}

func (s *Store) paymentGroupsLocked(groupID uint64) []model.PaymentGroup {
	var out []model.PaymentGroup
	for _, pg := range s.paymentGroups {
		if pg.GroupID == groupID {
			pg.Attendees = append([]uint64(nil), pg.Attendees...)
			out = append(out, pg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) attendeeCountLocked(groupID uint64) int {
	n := 0
	for _, pg := range s.paymentGroups {
		if pg.GroupID == groupID {
			n += len(pg.Attendees)
		}
	}
	return n
}

func (s *Store) QueuedAttendees(_ context.Context, fixtureID uint64, userIDs []uint64) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[uint64]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}
	active := make(map[uint64]bool)
	for _, g := range s.groups {
		if g.FixtureID != fixtureID {
			continue
		}
		if g.Status == model.GroupWaiting {
			active[g.ID] = len(s.ranks[g.ID]) > 0
			continue
		}
		if oid, ok := s.offerByGroup[g.ID]; ok && !s.offers[oid].IsReclaimed {
			active[g.ID] = true
		}
	}
	seen := make(map[uint64]bool)
	var out []uint64
	for _, pg := range s.paymentGroups {
		if !active[pg.GroupID] {
			continue
		}
		for _, a := range pg.Attendees {
			if want[a] && !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
