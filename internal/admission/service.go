// Package admission is the buyer-facing half of the ticket engine: it
// turns ticket requests into groups, tries the direct pool, records
// ranked tier preferences for the waiting list and settles payments
// against offers.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ticket-admission/internal/clock"
	"github.com/iliyamo/ticket-admission/internal/model"
	"github.com/iliyamo/ticket-admission/internal/notify"
	"github.com/iliyamo/ticket-admission/internal/queue"
)

// DefaultOfferValidity is how long a group has to pay once offered.
const DefaultOfferValidity = 10 * time.Minute

// DirectPool is the immediate-reservation ledger.
type DirectPool interface {
	Reserve(ctx context.Context, tierID uint64, count int) (bool, error)
	Release(ctx context.Context, tierID uint64, count int) error
}

// EventPublisher receives domain events after they are committed.
type EventPublisher interface {
	PublishTransactionCompleted(ctx context.Context, ev queue.TransactionCompletedEvent) error
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	OfferValidity time.Duration
	Clock         clock.Clock
	Gateway       notify.Gateway
	Events        EventPublisher
	Logger        *zap.Logger
}

// Service runs the group, payment group, offer and payment lifecycle.
type Service struct {
	store    Store
	direct   DirectPool
	validity time.Duration
	clock    clock.Clock
	gateway  notify.Gateway
	events   EventPublisher
	log      *zap.Logger
}

// NewService wires a Service. store and direct must be non-nil.
func NewService(store Store, direct DirectPool, opts Options) *Service {
	if store == nil || direct == nil {
		panic("nil dependency passed to admission.NewService")
	}
	s := &Service{
		store:    store,
		direct:   direct,
		validity: opts.OfferValidity,
		clock:    opts.Clock,
		gateway:  opts.Gateway,
		events:   opts.Events,
		log:      opts.Logger,
	}
	if s.validity <= 0 {
		s.validity = DefaultOfferValidity
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.gateway == nil {
		s.gateway = notify.NewLogGateway(s.log)
	}
	return s
}

// TicketRequest asks for one tier for a set of attendees. Guests are
// attendees whose tickets the leader pays for.
type TicketRequest struct {
	LeaderID  uint64
	TierID    uint64
	Attendees []uint64
	Guests    []uint64
}

// RequestOutcome reports what RequestTickets did. Offer is nil when the
// direct pool could not serve the request and the group is waiting.
type RequestOutcome struct {
	Group         model.Group
	PaymentGroups []model.PaymentGroup
	Offer         *model.Offer
}

// SplitPayments assigns attendees to payees: the leader pays for every
// guest and for themself when attending, every other attendee pays for
// themself. attendees and guests must already be de-duplicated.
func SplitPayments(leaderID uint64, attendees, guests []uint64) map[uint64][]uint64 {
	out := make(map[uint64][]uint64)
	paidByLeader := make(map[uint64]bool, len(guests)+1)
	for _, g := range guests {
		paidByLeader[g] = true
	}
	for _, a := range attendees {
		if a == leaderID {
			paidByLeader[a] = true
		}
	}
	for _, a := range attendees {
		if paidByLeader[a] {
			out[leaderID] = append(out[leaderID], a)
			continue
		}
		out[a] = []uint64{a}
	}
	return out
}

func dedupe(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// RequestTickets creates a group for the request and tries the direct
// pool. On success the group is offered straight away and its payees are
// told; otherwise the requested tier becomes the group's only preference
// and the group waits for recycled capacity.
func (s *Service) RequestTickets(ctx context.Context, req TicketRequest) (RequestOutcome, error) {
	attendees := dedupe(req.Attendees)
	guests := dedupe(req.Guests)
	if len(attendees) == 0 {
		return RequestOutcome{}, ErrEmptyAttendees
	}
	attending := make(map[uint64]bool, len(attendees))
	for _, a := range attendees {
		attending[a] = true
	}
	for _, g := range guests {
		if !attending[g] {
			return RequestOutcome{}, ErrGuestNotAttendee
		}
	}

	tier, err := s.store.GetTier(ctx, req.TierID)
	if err != nil {
		return RequestOutcome{}, err
	}
	fixture, err := s.store.GetFixture(ctx, tier.FixtureID)
	if err != nil {
		return RequestOutcome{}, fmt.Errorf("load fixture: %w", err)
	}
	everyone := dedupe(append([]uint64{req.LeaderID}, attendees...))
	users, err := s.store.GetUsers(ctx, everyone)
	if err != nil {
		return RequestOutcome{}, fmt.Errorf("load users: %w", err)
	}
	if len(users) != len(everyone) {
		return RequestOutcome{}, ErrUnknownUser
	}
	queued, err := s.store.QueuedAttendees(ctx, fixture.ID, attendees)
	if err != nil {
		return RequestOutcome{}, fmt.Errorf("check queued attendees: %w", err)
	}
	if len(queued) > 0 {
		return RequestOutcome{}, ErrAlreadyQueued
	}

	group, err := s.store.CreateGroup(ctx, req.LeaderID, fixture.ID, s.clock.Now())
	if err != nil {
		return RequestOutcome{}, fmt.Errorf("create group: %w", err)
	}
	pgs, err := s.store.CreatePaymentGroups(ctx, group.ID, SplitPayments(req.LeaderID, attendees, guests))
	if err != nil {
		s.abandon(ctx, group.ID)
		return RequestOutcome{}, fmt.Errorf("create payment groups: %w", err)
	}
	out := RequestOutcome{Group: group, PaymentGroups: pgs}

	ok, err := s.direct.Reserve(ctx, tier.ID, len(attendees))
	if err != nil {
		s.abandon(ctx, group.ID)
		return RequestOutcome{}, fmt.Errorf("reserve direct capacity: %w", err)
	}
	if !ok {
		if err := s.store.ReplaceTierRanks(ctx, group.ID, map[uint64]int{tier.ID: 1}); err != nil {
			s.abandon(ctx, group.ID)
			return RequestOutcome{}, fmt.Errorf("queue group: %w", err)
		}
		s.log.Info("group queued", zap.Uint64("group_id", group.ID), zap.Uint64("tier_id", tier.ID), zap.Int("attendees", len(attendees)))
		return out, nil
	}

	now := s.clock.Now()
	offer, err := s.store.CreateOffer(ctx, group.ID, tier.ID, now, now.Add(s.validity))
	if err != nil {
		if relErr := s.direct.Release(context.WithoutCancel(ctx), tier.ID, len(attendees)); relErr != nil {
			s.log.Error("release direct capacity", zap.Uint64("tier_id", tier.ID), zap.Error(relErr))
		}
		s.abandon(ctx, group.ID)
		return RequestOutcome{}, fmt.Errorf("create offer: %w", err)
	}
	out.Group.Status = model.GroupOffered
	out.Offer = &offer
	s.log.Info("direct offer issued", zap.Uint64("group_id", group.ID), zap.Uint64("offer_id", offer.ID), zap.Uint64("tier_id", tier.ID))

	if err := notify.NotifyOffer(ctx, s.gateway, s.store, offer, fixture); err != nil {
		s.log.Warn("offer notification failed", zap.Uint64("offer_id", offer.ID), zap.Error(err))
	}
	return out, nil
}

// abandon deletes a group whose request failed before it was offered or
// queued. Failures are logged; a leftover group without tiers or an
// offer blocks no one.
func (s *Service) abandon(ctx context.Context, groupID uint64) {
	if err := s.store.DeleteGroup(context.WithoutCancel(ctx), groupID); err != nil {
		s.log.Error("delete abandoned group", zap.Uint64("group_id", groupID), zap.Error(err))
	}
}

// CreateGroup inserts an empty WAITING group for leaderID.
func (s *Service) CreateGroup(ctx context.Context, leaderID, fixtureID uint64) (model.Group, error) {
	if _, err := s.store.GetUser(ctx, leaderID); err != nil {
		return model.Group{}, err
	}
	if _, err := s.store.GetFixture(ctx, fixtureID); err != nil {
		return model.Group{}, err
	}
	return s.store.CreateGroup(ctx, leaderID, fixtureID, s.clock.Now())
}

// SetTierPreferences replaces the group's ranked tiers. Only the leader
// may do so and only while the group is waiting.
func (s *Service) SetTierPreferences(ctx context.Context, leaderID, groupID uint64, ranks map[uint64]int) error {
	if len(ranks) == 0 {
		return ErrNoPreferences
	}
	for _, r := range ranks {
		if r < 1 {
			return ErrInvalidRank
		}
	}
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.LeaderID != leaderID {
		return ErrForbidden
	}
	if group.Status != model.GroupWaiting {
		return ErrNotWaiting
	}
	tiers, err := s.store.ListTiersByFixture(ctx, group.FixtureID)
	if err != nil {
		return fmt.Errorf("list tiers: %w", err)
	}
	valid := make(map[uint64]bool, len(tiers))
	for _, t := range tiers {
		valid[t.ID] = true
	}
	for id := range ranks {
		if !valid[id] {
			return ErrTierNotFound
		}
	}
	return s.store.ReplaceTierRanks(ctx, groupID, ranks)
}

// CreatePaymentGroups adds one PaymentGroup per payee under groupID. The
// group must still be waiting: an offer reserves seats for the attendees
// it was made to, and no more.
func (s *Service) CreatePaymentGroups(ctx context.Context, groupID uint64, payees map[uint64][]uint64) ([]model.PaymentGroup, error) {
	if len(payees) == 0 {
		return nil, ErrEmptyAttendees
	}
	for _, attendees := range payees {
		if len(attendees) == 0 {
			return nil, ErrEmptyAttendees
		}
	}
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.Status != model.GroupWaiting {
		return nil, ErrNotWaiting
	}
	return s.store.CreatePaymentGroups(ctx, groupID, payees)
}

// IsNotFound reports whether err is one of the lookup failures.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrGroupNotFound) || errors.Is(err, ErrTierNotFound) ||
		errors.Is(err, ErrFixtureNotFound) || errors.Is(err, ErrUnknownUser) ||
		errors.Is(err, ErrNoOffer)
}
