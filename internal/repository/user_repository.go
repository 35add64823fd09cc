package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/ticket-admission/internal/admission"
	"github.com/iliyamo/ticket-admission/internal/model"
)

// UserRepo reads the users table. Users are registered by another
// service; this one only looks them up.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, forename, surname, phone_number, created_at`

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", id).
		Scan(&u.ID, &u.Forename, &u.Surname, &u.PhoneNumber, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, admission.ErrUnknownUser
	}
	return u, err
}

// GetUsers fetches the listed users keyed by id. Missing ids are simply
// absent from the result.
func (r *UserRepo) GetUsers(ctx context.Context, ids []uint64) (map[uint64]model.User, error) {
	out := make(map[uint64]model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id IN "+inClause(len(ids)), uint64Args(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Forename, &u.Surname, &u.PhoneNumber, &u.CreatedAt); err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}
