package sweep

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ticket-admission/internal/model"
	"github.com/iliyamo/ticket-admission/internal/notify"
)

// NotifierStore lists tickets awaiting notification and stamps them.
type NotifierStore interface {
	UnnotifiedTickets(ctx context.Context) ([]model.TicketNotice, error)
	MarkTicketNotified(ctx context.Context, ticketID uint64, sentAt time.Time) error
}

// Notifier tells attendees their tickets exist. A ticket is stamped only
// after the gateway accepts its message; failed sends are retried on the
// next run.
type Notifier struct {
	store   NotifierStore
	gateway notify.Gateway
	log     *zap.Logger
}

// NewNotifier returns a Notifier sending through gw.
func NewNotifier(st NotifierStore, gw notify.Gateway, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{store: st, gateway: gw, log: logger}
}

// Name identifies the notifier in logs.
func (n *Notifier) Name() string { return "notifier" }

// Run performs one pass over unnotified tickets.
func (n *Notifier) Run(ctx context.Context) error {
	notices, err := n.store.UnnotifiedTickets(ctx)
	if err != nil {
		return fmt.Errorf("unnotified tickets: %w", err)
	}
	sent, failed := 0, 0
	for _, t := range notices {
		sentAt, err := n.gateway.Send(ctx, t.PhoneNumber, notify.TicketMessage(t))
		if err != nil {
			failed++
			n.log.Warn("ticket notification failed", zap.Uint64("ticket_id", t.TicketID), zap.Error(err))
			continue
		}
		if err := n.store.MarkTicketNotified(ctx, t.TicketID, sentAt); err != nil {
			return fmt.Errorf("mark ticket %d notified: %w", t.TicketID, err)
		}
		sent++
	}
	if sent > 0 || failed > 0 {
		n.log.Info("ticket notifications", zap.Int("sent", sent), zap.Int("failed", failed))
	}
	return nil
}
