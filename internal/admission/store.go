package admission

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/ticket-admission/internal/model"
)

// PaymentInput is everything a Store needs to settle one PaymentGroup.
type PaymentInput struct {
	OfferID        uint64
	PaymentGroupID uint64
	Attendees      []uint64
	TicketCodes    []string // one per attendee, same order
	Amount         decimal.Decimal
	Now            time.Time
}

// Store is the persistent record store behind the admission engine. All
// methods return the package's sentinel errors for lookups and rejected
// writes so every implementation behaves the same to callers.
type Store interface {
	GetUser(ctx context.Context, id uint64) (model.User, error)
	GetUsers(ctx context.Context, ids []uint64) (map[uint64]model.User, error)
	GetFixture(ctx context.Context, id uint64) (model.Fixture, error)
	GetTier(ctx context.Context, id uint64) (model.Tier, error)
	ListTiers(ctx context.Context) ([]model.Tier, error)
	ListTiersByFixture(ctx context.Context, fixtureID uint64) ([]model.Tier, error)

	// CreateGroup inserts a WAITING group with no preferences.
	CreateGroup(ctx context.Context, leaderID, fixtureID uint64, createdAt time.Time) (model.Group, error)
	GetGroup(ctx context.Context, id uint64) (model.Group, error)
	// ListGroupsForUser returns groups the user leads, pays for or
	// attends, newest first.
	ListGroupsForUser(ctx context.Context, userID uint64) ([]model.Group, error)
	// ReplaceTierRanks swaps the whole preference list in one
	// transaction. It returns ErrNotWaiting once the group is offered.
	ReplaceTierRanks(ctx context.Context, groupID uint64, ranks map[uint64]int) error
	// DeleteGroup removes a group that never received an offer, with its
	// ranks and payment groups. It returns ErrOfferExists otherwise.
	DeleteGroup(ctx context.Context, groupID uint64) error
	ListTierRanks(ctx context.Context, groupID uint64) ([]model.TierRank, error)
	// CreatePaymentGroups inserts one PaymentGroup per payee with its
	// attendee rows, in one transaction. It returns ErrNotWaiting once
	// the group is offered.
	CreatePaymentGroups(ctx context.Context, groupID uint64, payees map[uint64][]uint64) ([]model.PaymentGroup, error)
	ListPaymentGroups(ctx context.Context, groupID uint64) ([]model.PaymentGroup, error)
	// QueuedAttendees returns which of userIDs already attend a group for
	// the fixture that is waiting on at least one tier or holds an
	// unreclaimed offer.
	QueuedAttendees(ctx context.Context, fixtureID uint64, userIDs []uint64) ([]uint64, error)

	// CreateOffer writes the group's offer and flips the group to
	// OFFERED. It returns ErrOfferExists when the group has one already.
	CreateOffer(ctx context.Context, groupID, tierID uint64, issuedAt, expiresAt time.Time) (model.Offer, error)
	GetOfferByGroup(ctx context.Context, groupID uint64) (model.Offer, error)
	RecordOfferNotification(ctx context.Context, n model.OfferNotification) error

	// Pay creates the Transaction and its Tickets atomically. It rejects
	// reclaimed or expired offers with ErrOfferExpired and a second
	// payment with ErrAlreadyPaid.
	Pay(ctx context.Context, in PaymentInput) (model.Transaction, []model.Ticket, error)
	// TransactionsByGroup maps payment group id to its Transaction.
	TransactionsByGroup(ctx context.Context, groupID uint64) (map[uint64]model.Transaction, error)
}
