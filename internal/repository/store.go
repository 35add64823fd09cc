package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/ticket-admission/internal/admission"
	"github.com/iliyamo/ticket-admission/internal/sweep"
)

// Store bundles the per-table repos into one record store.
type Store struct {
	*UserRepo
	*TierRepo
	*GroupRepo
	*OfferRepo
	*TransactionRepo
	db *sql.DB
}

var (
	_ admission.Store      = (*Store)(nil)
	_ sweep.MatcherStore   = (*Store)(nil)
	_ sweep.ReclaimerStore = (*Store)(nil)
	_ sweep.NotifierStore  = (*Store)(nil)
)

// NewStore binds every repo to db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		UserRepo:        NewUserRepo(db),
		TierRepo:        NewTierRepo(db),
		GroupRepo:       NewGroupRepo(db),
		OfferRepo:       NewOfferRepo(db),
		TransactionRepo: NewTransactionRepo(db),
		db:              db,
	}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// withTx runs fn inside a transaction, committing when fn returns nil.
func withTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
