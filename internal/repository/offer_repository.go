package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/ticket-admission/internal/admission"
	"github.com/iliyamo/ticket-admission/internal/model"
)

// OfferRepo owns offers and offer_notifications.
type OfferRepo struct{ db *sql.DB }

func NewOfferRepo(db *sql.DB) *OfferRepo { return &OfferRepo{db: db} }

const offerColumns = `id, group_id, tier_id, issued_at, expires_at, is_reclaimed`

func scanOffer(s interface{ Scan(...interface{}) error }) (model.Offer, error) {
	var o model.Offer
	err := s.Scan(&o.ID, &o.GroupID, &o.TierID, &o.IssuedAt, &o.ExpiresAt, &o.IsReclaimed)
	return o, err
}

// CreateOffer locks the group row, inserts the offer and flips the group
// to OFFERED in one transaction. The unique key on offers.group_id turns
// a second offer into ErrOfferExists.
func (r *OfferRepo) CreateOffer(ctx context.Context, groupID, tierID uint64, issuedAt, expiresAt time.Time) (model.Offer, error) {
	var o model.Offer
	err := withTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM ticket_groups WHERE id = ? FOR UPDATE`, groupID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return admission.ErrGroupNotFound
		}
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO offers (group_id, tier_id, issued_at, expires_at, is_reclaimed) VALUES (?, ?, ?, ?, FALSE)`,
			groupID, tierID, issuedAt.UTC(), expiresAt.UTC())
		if err != nil {
			switch {
			case isDuplicate(err):
				return admission.ErrOfferExists
			case isMissingParent(err):
				return admission.ErrTierNotFound
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE ticket_groups SET status = ? WHERE id = ?`, string(model.GroupOffered), groupID); err != nil {
			return err
		}
		o, err = scanOffer(tx.QueryRowContext(ctx, "SELECT "+offerColumns+" FROM offers WHERE id = ?", id))
		return err
	})
	if err != nil {
		return model.Offer{}, err
	}
	return o, nil
}

// GetOfferByGroup fetches the single offer of a group.
func (r *OfferRepo) GetOfferByGroup(ctx context.Context, groupID uint64) (model.Offer, error) {
	o, err := scanOffer(r.db.QueryRowContext(ctx,
		"SELECT "+offerColumns+" FROM offers WHERE group_id = ?", groupID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Offer{}, admission.ErrNoOffer
	}
	return o, err
}

// RecordOfferNotification appends one accepted offer message.
func (r *OfferRepo) RecordOfferNotification(ctx context.Context, n model.OfferNotification) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO offer_notifications (offer_id, user_id, sent_at) VALUES (?, ?, ?)`,
		n.OfferID, n.UserID, n.SentAt.UTC())
	return err
}

// ClaimExpiredOffers flags every unreclaimed offer that expired before
// now and returns, per offer, the attendees of its unpaid payment
// groups. The offer rows stay locked until commit so a concurrent Pay
// either lands first and is excluded, or sees the flag and is rejected.
func (r *OfferRepo) ClaimExpiredOffers(ctx context.Context, now time.Time) ([]model.ReclaimedOffer, error) {
	var out []model.ReclaimedOffer
	err := withTx(ctx, r.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, tier_id FROM offers
			 WHERE is_reclaimed = FALSE AND expires_at < ?
			 ORDER BY id
			 FOR UPDATE`, now.UTC())
		if err != nil {
			return err
		}
		var ids []uint64
		index := make(map[uint64]int)
		for rows.Next() {
			var ro model.ReclaimedOffer
			if err := rows.Scan(&ro.OfferID, &ro.TierID); err != nil {
				rows.Close()
				return err
			}
			index[ro.OfferID] = len(out)
			out = append(out, ro)
			ids = append(ids, ro.OfferID)
		}
		err = rows.Err()
		rows.Close()
		if err != nil || len(ids) == 0 {
			return err
		}

		seats, err := tx.QueryContext(ctx, `
			SELECT o.id, COUNT(pga.user_id)
			  FROM offers o
			  JOIN payment_groups pg ON pg.group_id = o.group_id
			  JOIN payment_group_attendees pga ON pga.payment_group_id = pg.id
			  LEFT JOIN transactions t ON t.payment_group_id = pg.id
			 WHERE o.id IN `+inClause(len(ids))+` AND t.id IS NULL
			 GROUP BY o.id`, uint64Args(ids)...)
		if err != nil {
			return err
		}
		for seats.Next() {
			var id uint64
			var n int
			if err := seats.Scan(&id, &n); err != nil {
				seats.Close()
				return err
			}
			out[index[id]].Seats = n
		}
		err = seats.Err()
		seats.Close()
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE offers SET is_reclaimed = TRUE WHERE id IN "+inClause(len(ids)), uint64Args(ids)...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
