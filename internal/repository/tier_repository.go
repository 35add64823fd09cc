package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/ticket-admission/internal/admission"
	"github.com/iliyamo/ticket-admission/internal/model"
)

// TierRepo reads fixtures and their tiers. Both are static once a
// fixture goes on sale.
type TierRepo struct{ db *sql.DB }

func NewTierRepo(db *sql.DB) *TierRepo { return &TierRepo{db: db} }

// GetFixture fetches a fixture by id.
func (r *TierRepo) GetFixture(ctx context.Context, id uint64) (model.Fixture, error) {
	var f model.Fixture
	err := r.db.QueryRowContext(ctx,
		`SELECT id, series_name, venue, starts_at FROM fixtures WHERE id = ?`, id).
		Scan(&f.ID, &f.SeriesName, &f.Venue, &f.StartsAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Fixture{}, admission.ErrFixtureNotFound
	}
	return f, err
}

const tierColumns = `id, fixture_id, name, price, capacity`

func scanTier(s interface{ Scan(...interface{}) error }) (model.Tier, error) {
	var t model.Tier
	err := s.Scan(&t.ID, &t.FixtureID, &t.Name, &t.Price, &t.Capacity)
	return t, err
}

// GetTier fetches a tier by id.
func (r *TierRepo) GetTier(ctx context.Context, id uint64) (model.Tier, error) {
	t, err := scanTier(r.db.QueryRowContext(ctx, "SELECT "+tierColumns+" FROM tiers WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Tier{}, admission.ErrTierNotFound
	}
	return t, err
}

// ListTiers returns every tier ordered by id. It seeds the pools at
// startup.
func (r *TierRepo) ListTiers(ctx context.Context) ([]model.Tier, error) {
	return r.listTiers(ctx, "SELECT "+tierColumns+" FROM tiers ORDER BY id")
}

// ListTiersByFixture returns the tiers of one fixture ordered by id.
func (r *TierRepo) ListTiersByFixture(ctx context.Context, fixtureID uint64) ([]model.Tier, error) {
	return r.listTiers(ctx, "SELECT "+tierColumns+" FROM tiers WHERE fixture_id = ? ORDER BY id", fixtureID)
}

func (r *TierRepo) listTiers(ctx context.Context, q string, args ...interface{}) ([]model.Tier, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Tier
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CommittedSeats returns, per tier, the seats held outside the direct
// pool: every attendee of an unreclaimed offer plus every ticket issued
// under a reclaimed one. It is used to reconcile the direct pool on
// restart.
func (r *TierRepo) CommittedSeats(ctx context.Context) (map[uint64]int, error) {
	out := make(map[uint64]int)
	queries := []string{
		`SELECT o.tier_id, COUNT(*)
		   FROM offers o
		   JOIN payment_groups pg ON pg.group_id = o.group_id
		   JOIN payment_group_attendees pga ON pga.payment_group_id = pg.id
		  WHERE o.is_reclaimed = FALSE
		  GROUP BY o.tier_id`,
		`SELECT o.tier_id, COUNT(*)
		   FROM tickets tk
		   JOIN transactions tr ON tr.id = tk.transaction_id
		   JOIN offers o ON o.id = tr.offer_id
		  WHERE o.is_reclaimed = TRUE
		  GROUP BY o.tier_id`,
	}
	for _, q := range queries {
		rows, err := r.db.QueryContext(ctx, q)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var tierID uint64
			var n int
			if err := rows.Scan(&tierID, &n); err != nil {
				rows.Close()
				return nil, err
			}
			out[tierID] += n
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
