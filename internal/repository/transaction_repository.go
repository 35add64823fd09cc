package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/ticket-admission/internal/admission"
	"github.com/iliyamo/ticket-admission/internal/model"
)

// TransactionRepo owns transactions and tickets.
type TransactionRepo struct{ db *sql.DB }

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

// Pay settles one payment group. The offer row is locked for the
// duration so the reclaimer cannot flag it halfway through; the unique
// key on transactions.payment_group_id backs up the existence check.
func (r *TransactionRepo) Pay(ctx context.Context, in admission.PaymentInput) (model.Transaction, []model.Ticket, error) {
	if len(in.TicketCodes) != len(in.Attendees) {
		return model.Transaction{}, nil, errors.New("repository: one ticket code per attendee required")
	}
	var txn model.Transaction
	var tickets []model.Ticket
	err := withTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		var groupID uint64
		var expiresAt time.Time
		var reclaimed bool
		err := tx.QueryRowContext(ctx,
			`SELECT group_id, expires_at, is_reclaimed FROM offers WHERE id = ? FOR UPDATE`, in.OfferID).
			Scan(&groupID, &expiresAt, &reclaimed)
		if errors.Is(err, sql.ErrNoRows) {
			return admission.ErrNoOffer
		}
		if err != nil {
			return err
		}

		var pgGroup uint64
		err = tx.QueryRowContext(ctx,
			`SELECT group_id FROM payment_groups WHERE id = ?`, in.PaymentGroupID).Scan(&pgGroup)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && pgGroup != groupID) {
			return admission.ErrNotPayee
		}
		if err != nil {
			return err
		}
		if reclaimed || expiresAt.Before(in.Now) {
			return admission.ErrOfferExpired
		}

		var existing uint64
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM transactions WHERE payment_group_id = ?`, in.PaymentGroupID).Scan(&existing)
		if err == nil {
			return admission.ErrAlreadyPaid
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		now := in.Now.UTC()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (offer_id, payment_group_id, amount, created_at) VALUES (?, ?, ?, ?)`,
			in.OfferID, in.PaymentGroupID, in.Amount.StringFixed(2), now)
		if err != nil {
			if isDuplicate(err) {
				return admission.ErrAlreadyPaid
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		txn = model.Transaction{
			ID:             uint64(id),
			OfferID:        in.OfferID,
			PaymentGroupID: in.PaymentGroupID,
			Amount:         in.Amount,
			CreatedAt:      now,
		}

		values := make([]string, 0, len(in.Attendees))
		args := make([]interface{}, 0, len(in.Attendees)*3)
		for i, a := range in.Attendees {
			values = append(values, "(?, ?, ?)")
			args = append(args, txn.ID, a, in.TicketCodes[i])
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO tickets (transaction_id, attendee_id, code) VALUES "+strings.Join(values, ","),
			args...); err != nil {
			return err
		}

		tickets, err = ticketsByTransaction(ctx, tx, txn.ID)
		return err
	})
	if err != nil {
		return model.Transaction{}, nil, err
	}
	return txn, tickets, nil
}

func ticketsByTransaction(ctx context.Context, tx *sql.Tx, txnID uint64) ([]model.Ticket, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, transaction_id, attendee_id, code, notification_sent_at FROM tickets WHERE transaction_id = ? ORDER BY id`,
		txnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Ticket
	for rows.Next() {
		var t model.Ticket
		var sent sql.NullTime
		if err := rows.Scan(&t.ID, &t.TransactionID, &t.AttendeeID, &t.Code, &sent); err != nil {
			return nil, err
		}
		if sent.Valid {
			at := sent.Time
			t.NotificationSentAt = &at
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TransactionsByGroup maps payment group id to its transaction for every
// paid payment group of a group.
func (r *TransactionRepo) TransactionsByGroup(ctx context.Context, groupID uint64) (map[uint64]model.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.offer_id, t.payment_group_id, t.amount, t.created_at
		  FROM transactions t
		  JOIN payment_groups pg ON pg.id = t.payment_group_id
		 WHERE pg.group_id = ?`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uint64]model.Transaction)
	for rows.Next() {
		var t model.Transaction
		if err := rows.Scan(&t.ID, &t.OfferID, &t.PaymentGroupID, &t.Amount, &t.CreatedAt); err != nil {
			return nil, err
		}
		out[t.PaymentGroupID] = t
	}
	return out, rows.Err()
}

// UnnotifiedTickets lists tickets not yet announced to their attendee,
// with the details the message needs.
func (r *TransactionRepo) UnnotifiedTickets(ctx context.Context) ([]model.TicketNotice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tk.id, u.forename, u.phone_number, ti.name, f.series_name, f.venue, f.starts_at
		  FROM tickets tk
		  JOIN users u ON u.id = tk.attendee_id
		  JOIN transactions tr ON tr.id = tk.transaction_id
		  JOIN offers o ON o.id = tr.offer_id
		  JOIN tiers ti ON ti.id = o.tier_id
		  JOIN fixtures f ON f.id = ti.fixture_id
		 WHERE tk.notification_sent_at IS NULL
		 ORDER BY tk.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TicketNotice
	for rows.Next() {
		var n model.TicketNotice
		if err := rows.Scan(&n.TicketID, &n.Forename, &n.PhoneNumber, &n.TierName,
			&n.SeriesName, &n.Venue, &n.StartsAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkTicketNotified stamps a ticket. An already stamped ticket keeps its
// first timestamp.
func (r *TransactionRepo) MarkTicketNotified(ctx context.Context, ticketID uint64, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tickets SET notification_sent_at = ? WHERE id = ? AND notification_sent_at IS NULL`,
		sentAt.UTC(), ticketID)
	return err
}
