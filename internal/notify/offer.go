package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/ticket-admission/internal/model"
)

// OfferStore is the slice of the store needed to tell payees about an
// offer.
type OfferStore interface {
	ListPaymentGroups(ctx context.Context, groupID uint64) ([]model.PaymentGroup, error)
	GetUsers(ctx context.Context, ids []uint64) (map[uint64]model.User, error)
	RecordOfferNotification(ctx context.Context, n model.OfferNotification) error
}

// NotifyOffer sends the offer message to the payee of every PaymentGroup
// of the offer's group and records each accepted send. It stops at the
// first failure; payees notified before it stay recorded.
func NotifyOffer(ctx context.Context, gw Gateway, st OfferStore, offer model.Offer, fixture model.Fixture) error {
	pgs, err := st.ListPaymentGroups(ctx, offer.GroupID)
	if err != nil {
		return fmt.Errorf("list payment groups: %w", err)
	}
	ids := make([]uint64, 0, len(pgs))
	for _, pg := range pgs {
		ids = append(ids, pg.PayeeID)
	}
	users, err := st.GetUsers(ctx, ids)
	if err != nil {
		return fmt.Errorf("load payees: %w", err)
	}
	for _, pg := range pgs {
		u, ok := users[pg.PayeeID]
		if !ok {
			return fmt.Errorf("payee %d not found", pg.PayeeID)
		}
		var sentAt time.Time
		if sentAt, err = gw.Send(ctx, u.PhoneNumber, OfferMessage(u, fixture, offer)); err != nil {
			return fmt.Errorf("send offer %d to user %d: %w", offer.ID, u.ID, err)
		}
		n := model.OfferNotification{OfferID: offer.ID, UserID: u.ID, SentAt: sentAt}
		if err := st.RecordOfferNotification(ctx, n); err != nil {
			return fmt.Errorf("record offer notification: %w", err)
		}
	}
	return nil
}
