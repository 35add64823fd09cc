package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/iliyamo/ticket-admission/internal/model"
)

// WaitingList returns the ranked tier rows of every waiting group,
// oldest group first and best rank first within a group.
func (s *Store) WaitingList(_ context.Context) ([]model.WaitingRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("WaitingList"); err != nil {
		return nil, err
	}
	var rows []model.WaitingRow
	for _, g := range s.groups {
		if g.Status != model.GroupWaiting {
			continue
		}
		if _, offered := s.offerByGroup[g.ID]; offered {
			continue
		}
		count := s.attendeeCountLocked(g.ID)
		for _, r := range s.tierRanksLocked(g.ID) {
			rows = append(rows, model.WaitingRow{
				GroupID:       g.ID,
				GroupCreated:  g.CreatedAt,
				AttendeeCount: count,
				TierID:        r.TierID,
				Rank:          r.Rank,
			})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.GroupCreated.Equal(b.GroupCreated) {
			return a.GroupCreated.Before(b.GroupCreated)
		}
		if a.GroupID != b.GroupID {
			return a.GroupID < b.GroupID
		}
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		return a.TierID < b.TierID
	})
	return rows, nil
}

// ClaimExpiredOffers flags every unreclaimed offer whose expiry is before
// now and returns the seats of its unpaid payment groups.
func (s *Store) ClaimExpiredOffers(_ context.Context, now time.Time) ([]model.ReclaimedOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("ClaimExpiredOffers"); err != nil {
		return nil, err
	}
	var out []model.ReclaimedOffer
	for id, o := range s.offers {
		if o.IsReclaimed || !o.Expired(now) {
			continue
		}
		seats := 0
		for _, pg := range s.paymentGroupsLocked(o.GroupID) {
			if _, paid := s.txnByPG[pg.ID]; !paid {
				seats += len(pg.Attendees)
			}
		}
		o.IsReclaimed = true
		s.offers[id] = o
		out = append(out, model.ReclaimedOffer{OfferID: id, TierID: o.TierID, Seats: seats})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OfferID < out[j].OfferID })
	return out, nil
}

// UnnotifiedTickets lists tickets whose notification has not been sent.
func (s *Store) UnnotifiedTickets(_ context.Context) ([]model.TicketNotice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("UnnotifiedTickets"); err != nil {
		return nil, err
	}
	var out []model.TicketNotice
	for _, t := range s.tickets {
		if t.NotificationSentAt != nil {
			continue
		}
		u := s.users[t.AttendeeID]
		tier := s.tiers[s.offers[s.txns[t.TransactionID].OfferID].TierID]
		f := s.fixtures[tier.FixtureID]
		out = append(out, model.TicketNotice{
			TicketID:    t.ID,
			Forename:    u.Forename,
			PhoneNumber: u.PhoneNumber,
			TierName:    tier.Name,
			SeriesName:  f.SeriesName,
			Venue:       f.Venue,
			StartsAt:    f.StartsAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketID < out[j].TicketID })
	return out, nil
}

// MarkTicketNotified stamps a ticket once; later calls leave the first
// stamp in place.
func (s *Store) MarkTicketNotified(_ context.Context, ticketID uint64, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("MarkTicketNotified"); err != nil {
		return err
	}
	t, ok := s.tickets[ticketID]
	if !ok || t.NotificationSentAt != nil {
		return nil
	}
	at := sentAt.UTC()
	t.NotificationSentAt = &at
	s.tickets[ticketID] = t
	return nil
}

// CommittedSeats returns, per tier, the seats held outside the direct
// pool: every attendee of an unreclaimed offer plus every ticket issued
// under a reclaimed one.
func (s *Store) CommittedSeats(_ context.Context) (map[uint64]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint64]int)
	for _, o := range s.offers {
		if !o.IsReclaimed {
			out[o.TierID] += s.attendeeCountLocked(o.GroupID)
		}
	}
	for _, t := range s.tickets {
		o := s.offers[s.txns[t.TransactionID].OfferID]
		if o.IsReclaimed {
			out[o.TierID]++
		}
	}
	return out, nil
}
