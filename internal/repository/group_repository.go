package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/ticket-admission/internal/admission"
	"github.com/iliyamo/ticket-admission/internal/model"
)

// GroupRepo owns ticket_groups, group_tiers, payment_groups and
// payment_group_attendees. The group table is called ticket_groups
// because GROUPS is reserved in MySQL 8.
type GroupRepo struct{ db *sql.DB }

func NewGroupRepo(db *sql.DB) *GroupRepo { return &GroupRepo{db: db} }

const groupColumns = `g.id, g.leader_id, g.fixture_id, g.status, g.created_at`

func scanGroup(s interface{ Scan(...interface{}) error }) (model.Group, error) {
	var g model.Group
	var status string
	if err := s.Scan(&g.ID, &g.LeaderID, &g.FixtureID, &status, &g.CreatedAt); err != nil {
		return model.Group{}, err
	}
	g.Status = model.GroupStatus(status)
	return g, nil
}

// CreateGroup inserts a WAITING group and reads it back so the caller
// sees the stored timestamp precision.
func (r *GroupRepo) CreateGroup(ctx context.Context, leaderID, fixtureID uint64, createdAt time.Time) (model.Group, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO ticket_groups (leader_id, fixture_id, status, created_at) VALUES (?, ?, ?, ?)`,
		leaderID, fixtureID, string(model.GroupWaiting), createdAt.UTC())
	if err != nil {
		if isMissingParent(err) {
			return model.Group{}, admission.ErrFixtureNotFound
		}
		return model.Group{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Group{}, err
	}
	return r.GetGroup(ctx, uint64(id))
}

// GetGroup fetches one group by id.
func (r *GroupRepo) GetGroup(ctx context.Context, id uint64) (model.Group, error) {
	g, err := scanGroup(r.db.QueryRowContext(ctx,
		"SELECT "+groupColumns+" FROM ticket_groups g WHERE g.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Group{}, admission.ErrGroupNotFound
	}
	return g, err
}

// ListGroupsForUser returns every group the user leads, pays for or
// attends, newest first.
func (r *GroupRepo) ListGroupsForUser(ctx context.Context, userID uint64) ([]model.Group, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+groupColumns+`
		  FROM ticket_groups g
		 WHERE g.leader_id = ?
		    OR EXISTS (SELECT 1 FROM payment_groups pg
		                LEFT JOIN payment_group_attendees pga ON pga.payment_group_id = pg.id
		               WHERE pg.group_id = g.id AND (pg.payee_id = ? OR pga.user_id = ?))
		 ORDER BY g.created_at DESC, g.id DESC`, userID, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ReplaceTierRanks swaps a group's preferences. The group row is locked
// first so the swap cannot interleave with an offer being written.
func (r *GroupRepo) ReplaceTierRanks(ctx context.Context, groupID uint64, ranks map[uint64]int) error {
	if len(ranks) == 0 {
		return admission.ErrNoPreferences
	}
	tierIDs := make([]uint64, 0, len(ranks))
	for id := range ranks {
		tierIDs = append(tierIDs, id)
	}
	sort.Slice(tierIDs, func(i, j int) bool { return tierIDs[i] < tierIDs[j] })

	return withTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM ticket_groups WHERE id = ? FOR UPDATE`, groupID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return admission.ErrGroupNotFound
		}
		if err != nil {
			return err
		}
		if model.GroupStatus(status) != model.GroupWaiting {
			return admission.ErrNotWaiting
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM group_tiers WHERE group_id = ?`, groupID); err != nil {
			return err
		}
		values := make([]string, 0, len(tierIDs))
		args := make([]interface{}, 0, len(tierIDs)*3)
		for _, id := range tierIDs {
			values = append(values, "(?, ?, ?)")
			args = append(args, groupID, id, ranks[id])
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO group_tiers (group_id, tier_id, tier_rank) VALUES "+strings.Join(values, ","), args...)
		if isMissingParent(err) {
			return admission.ErrTierNotFound
		}
		return err
	})
}

// ListTierRanks returns a group's preferences, best rank first.
func (r *GroupRepo) ListTierRanks(ctx context.Context, groupID uint64) ([]model.TierRank, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT group_id, tier_id, tier_rank FROM group_tiers WHERE group_id = ? ORDER BY tier_rank, tier_id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TierRank
	for rows.Next() {
		var tr model.TierRank
		if err := rows.Scan(&tr.GroupID, &tr.TierID, &tr.Rank); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// CreatePaymentGroups inserts one payment group per payee, lowest payee
// id first, together with its attendee rows. The group row is locked so
// an offer cannot be written while payment groups are being added.
func (r *GroupRepo) CreatePaymentGroups(ctx context.Context, groupID uint64, payees map[uint64][]uint64) ([]model.PaymentGroup, error) {
	ids := make([]uint64, 0, len(payees))
	for payee, attendees := range payees {
		if len(attendees) == 0 {
			return nil, admission.ErrEmptyAttendees
		}
		ids = append(ids, payee)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]model.PaymentGroup, 0, len(ids))
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
		if model.GroupStatus(status) != model.GroupWaiting {
			return admission.ErrNotWaiting
		}
		for _, payee := range ids {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO payment_groups (group_id, payee_id) VALUES (?, ?)`, groupID, payee)
			if err != nil {
				if isMissingParent(err) {
					return admission.ErrGroupNotFound
				}
				return err
			}
			pgID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			attendees := payees[payee]
			values := make([]string, 0, len(attendees))
			args := make([]interface{}, 0, len(attendees)*2)
			for _, a := range attendees {
				values = append(values, "(?, ?)")
				args = append(args, pgID, a)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO payment_group_attendees (payment_group_id, user_id) VALUES "+strings.Join(values, ","),
				args...); err != nil {
				if isMissingParent(err) {
					return admission.ErrUnknownUser
				}
				return err
			}
			out = append(out, model.PaymentGroup{
				ID:        uint64(pgID),
				GroupID:   groupID,
				PayeeID:   payee,
				Attendees: append([]uint64(nil), attendees...),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteGroup removes a group that has no offer. Ranks and payment
// groups go with it through ON DELETE CASCADE.
func (r *GroupRepo) DeleteGroup(ctx context.Context, groupID uint64) error {
	return withTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		var id uint64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM ticket_groups WHERE id = ? FOR UPDATE`, groupID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return admission.ErrGroupNotFound
		}
		if err != nil {
			return err
		}
		var offerID uint64
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM offers WHERE group_id = ?`, groupID).Scan(&offerID)
		if err == nil {
			return admission.ErrOfferExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM ticket_groups WHERE id = ?`, groupID)
		return err
	})
}

// ListPaymentGroups returns a group's payment groups ordered by id, each
// with its attendees.
func (r *GroupRepo) ListPaymentGroups(ctx context.Context, groupID uint64) ([]model.PaymentGroup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT pg.id, pg.group_id, pg.payee_id, pga.user_id
		  FROM payment_groups pg
		  JOIN payment_group_attendees pga ON pga.payment_group_id = pg.id
		 WHERE pg.group_id = ?
		 ORDER BY pg.id, pga.user_id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PaymentGroup
	for rows.Next() {
		var pg model.PaymentGroup
		var attendee uint64
		if err := rows.Scan(&pg.ID, &pg.GroupID, &pg.PayeeID, &attendee); err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && out[n-1].ID == pg.ID {
			out[n-1].Attendees = append(out[n-1].Attendees, attendee)
			continue
		}
		pg.Attendees = []uint64{attendee}
		out = append(out, pg)
	}
	return out, rows.Err()
}

// QueuedAttendees returns which of userIDs already attend a group for
// fixtureID that is waiting on at least one tier or holds an unreclaimed
// offer.
func (r *GroupRepo) QueuedAttendees(ctx context.Context, fixtureID uint64, userIDs []uint64) ([]uint64, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	args := append([]interface{}{fixtureID, string(model.GroupWaiting)}, uint64Args(userIDs)...)
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT pga.user_id
		  FROM payment_group_attendees pga
		  JOIN payment_groups pg ON pg.id = pga.payment_group_id
		  JOIN ticket_groups g ON g.id = pg.group_id
		  LEFT JOIN offers o ON o.group_id = g.id
		 WHERE g.fixture_id = ?
		   AND ((g.status = ? AND EXISTS (SELECT 1 FROM group_tiers gt WHERE gt.group_id = g.id))
		        OR (o.id IS NOT NULL AND o.is_reclaimed = FALSE))
		   AND pga.user_id IN `+inClause(len(userIDs))+`
		 ORDER BY pga.user_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// WaitingList returns the ranked tier rows of every waiting group with no
// offer, oldest group first and best rank first within a group.
func (r *GroupRepo) WaitingList(ctx context.Context) ([]model.WaitingRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT g.id, g.created_at,
		       (SELECT COUNT(*) FROM payment_groups pg
		          JOIN payment_group_attendees pga ON pga.payment_group_id = pg.id
		         WHERE pg.group_id = g.id) AS attendees,
		       gt.tier_id, gt.tier_rank
		  FROM ticket_groups g
		  JOIN group_tiers gt ON gt.group_id = g.id
		  LEFT JOIN offers o ON o.group_id = g.id
		 WHERE g.status = ? AND o.id IS NULL
		 ORDER BY g.created_at, g.id, gt.tier_rank, gt.tier_id`, string(model.GroupWaiting))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.WaitingRow
	for rows.Next() {
		var w model.WaitingRow
		if err := rows.Scan(&w.GroupID, &w.GroupCreated, &w.AttendeeCount, &w.TierID, &w.Rank); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
