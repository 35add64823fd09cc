package memstore

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/iliyamo/ticket-admission/internal/admission"
	"github.com/iliyamo/ticket-admission/internal/model"
)

func (s *Store) CreateOffer(_ context.Context, groupID, tierID uint64, issuedAt, expiresAt time.Time) (model.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateOffer"); err != nil {
		return model.Offer{}, err
	}
	g, ok := s.groups[groupID]
	if !ok {
		return model.Offer{}, admission.ErrGroupNotFound
	}
	if _, ok := s.offerByGroup[groupID]; ok {
		return model.Offer{}, admission.ErrOfferExists
	}
	if _, ok := s.tiers[tierID]; !ok {
		return model.Offer{}, admission.ErrTierNotFound
	}
	o := model.Offer{
		ID:        s.next("offers"),
		GroupID:   groupID,
		TierID:    tierID,
		IssuedAt:  issuedAt.UTC(),
		ExpiresAt: expiresAt.UTC(),
	}
	s.offers[o.ID] = o
	s.offerByGroup[groupID] = o.ID
	g.Status = model.GroupOffered
	s.groups[groupID] = g
	return o, nil
}

func (s *Store) GetOfferByGroup(_ context.Context, groupID uint64) (model.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oid, ok := s.offerByGroup[groupID]
	if !ok {
		return model.Offer{}, admission.ErrNoOffer
	}
	return s.offers[oid], nil
}

func (s *Store) RecordOfferNotification(_ context.Context, n model.OfferNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("RecordOfferNotification"); err != nil {
		return err
	}
	s.notifications = append(s.notifications, n)
	return nil
}

// OfferNotifications returns every recorded offer notification in
// insertion order.
func (s *Store) OfferNotifications() []model.OfferNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.OfferNotification(nil), s.notifications...)
}

func (s *Store) Pay(_ context.Context, in admission.PaymentInput) (model.Transaction, []model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("Pay"); err != nil {
		return model.Transaction{}, nil, err
	}
	if len(in.TicketCodes) != len(in.Attendees) {
		return model.Transaction{}, nil, errors.New("memstore: one ticket code per attendee required")
	}
	o, ok := s.offers[in.OfferID]
	if !ok {
		return model.Transaction{}, nil, admission.ErrNoOffer
	}
	pg, ok := s.paymentGroups[in.PaymentGroupID]
	if !ok || pg.GroupID != o.GroupID {
		return model.Transaction{}, nil, admission.ErrNotPayee
	}
	if o.IsReclaimed || o.Expired(in.Now) {
		return model.Transaction{}, nil, admission.ErrOfferExpired
	}
	if _, ok := s.txnByPG[in.PaymentGroupID]; ok {
		return model.Transaction{}, nil, admission.ErrAlreadyPaid
	}
	txn := model.Transaction{
		ID:             s.next("transactions"),
		OfferID:        o.ID,
		PaymentGroupID: in.PaymentGroupID,
		Amount:         in.Amount,
		CreatedAt:      in.Now.UTC(),
	}
	s.txns[txn.ID] = txn
	s.txnByPG[in.PaymentGroupID] = txn.ID

	tickets := make([]model.Ticket, 0, len(in.Attendees))
	for i, attendee := range in.Attendees {
		t := model.Ticket{
			ID:            s.next("tickets"),
			TransactionID: txn.ID,
			AttendeeID:    attendee,
			Code:          in.TicketCodes[i],
		}
		s.tickets[t.ID] = t
		tickets = append(tickets, t)
	}
	return txn, tickets, nil
}

func (s *Store) TransactionsByGroup(_ context.Context, groupID uint64) (map[uint64]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint64]model.Transaction)
	for pgID, txnID := range s.txnByPG {
		if s.paymentGroups[pgID].GroupID == groupID {
			out[pgID] = s.txns[txnID]
		}
	}
	return out, nil
}

// Tickets returns every ticket ordered by id.
func (s *Store) Tickets() []model.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
