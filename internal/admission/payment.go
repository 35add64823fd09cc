package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/ticket-admission/internal/model"
	"github.com/iliyamo/ticket-admission/internal/queue"
)

// Receipt is the outcome of a successful payment.
type Receipt struct {
	Transaction model.Transaction `json:"transaction"`
	Tickets     []model.Ticket    `json:"tickets"`
}

// Pay settles the PaymentGroup that userID pays for in groupID.
func (s *Service) Pay(ctx context.Context, userID, groupID uint64) (Receipt, error) {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return Receipt{}, err
	}
	pgs, err := s.store.ListPaymentGroups(ctx, groupID)
	if err != nil {
		return Receipt{}, fmt.Errorf("list payment groups: %w", err)
	}
	var pg *model.PaymentGroup
	for i := range pgs {
		if pgs[i].PayeeID == userID {
			pg = &pgs[i]
			break
		}
	}
	if pg == nil {
		return Receipt{}, ErrNotPayee
	}
	offer, err := s.store.GetOfferByGroup(ctx, groupID)
	if err != nil {
		return Receipt{}, err
	}
	return s.PayOffer(ctx, *pg, offer)
}

// PayOffer creates the Transaction for pg and one Ticket per attendee.
// The expiry check uses the clock at call time; the store repeats it
// under its row lock so a reclaim racing the payment cannot both win.
func (s *Service) PayOffer(ctx context.Context, pg model.PaymentGroup, offer model.Offer) (Receipt, error) {
	if pg.GroupID != offer.GroupID {
		return Receipt{}, ErrNoOffer
	}
	if len(pg.Attendees) == 0 {
		return Receipt{}, ErrEmptyAttendees
	}
	now := s.clock.Now()
	if offer.IsReclaimed || offer.Expired(now) {
		return Receipt{}, ErrOfferExpired
	}
	tier, err := s.store.GetTier(ctx, offer.TierID)
	if err != nil {
		return Receipt{}, fmt.Errorf("load tier: %w", err)
	}

	codes := make([]string, len(pg.Attendees))
	for i := range codes {
		codes[i] = uuid.NewString()
	}
	in := PaymentInput{
		OfferID:        offer.ID,
		PaymentGroupID: pg.ID,
		Attendees:      pg.Attendees,
		TicketCodes:    codes,
		Amount:         tier.Price.Mul(decimal.NewFromInt(int64(len(pg.Attendees)))),
		Now:            now,
	}
	txn, tickets, err := s.store.Pay(ctx, in)
	if err != nil {
		return Receipt{}, err
	}
	s.log.Info("payment completed",
		zap.Uint64("transaction_id", txn.ID),
		zap.Uint64("payment_group_id", pg.ID),
		zap.Int("tickets", len(tickets)))

	if s.events != nil {
		ev := queue.TransactionCompletedEvent{
			TransactionID:  txn.ID,
			OfferID:        offer.ID,
			GroupID:        offer.GroupID,
			PaymentGroupID: pg.ID,
			PayeeID:        pg.PayeeID,
			TierID:         tier.ID,
			FixtureID:      tier.FixtureID,
			Attendees:      pg.Attendees,
			TicketCodes:    codes,
			Amount:         txn.Amount.StringFixed(2),
			CompletedAt:    txn.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := s.events.PublishTransactionCompleted(ctx, ev); err != nil {
			s.log.Warn("publish transaction event", zap.Uint64("transaction_id", txn.ID), zap.Error(err))
		}
	}
	return Receipt{Transaction: txn, Tickets: tickets}, nil
}
