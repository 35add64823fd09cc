package admission

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/ticket-admission/internal/model"
)

// PaymentGroupView is a PaymentGroup with its derived status.
type PaymentGroupView struct {
	model.PaymentGroup
	Status      model.PaymentGroupStatus `json:"status"`
	Transaction *model.Transaction       `json:"transaction,omitempty"`
}

// GroupView is the read model of a Group.
type GroupView struct {
	model.Group
	Tiers         []model.TierRank   `json:"tiers"`
	Offer         *model.Offer       `json:"offer,omitempty"`
	PaymentGroups []PaymentGroupView `json:"payment_groups"`
}

// GetGroup returns the group's read model. Only the leader may view it.
func (s *Service) GetGroup(ctx context.Context, userID, groupID uint64) (GroupView, error) {
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return GroupView{}, err
	}
	if g.LeaderID != userID {
		return GroupView{}, ErrForbidden
	}
	return s.view(ctx, g)
}

// ListGroups returns every group userID leads, pays for or attends.
func (s *Service) ListGroups(ctx context.Context, userID uint64) ([]GroupView, error) {
	groups, err := s.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	out := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		v, err := s.view(ctx, g)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) view(ctx context.Context, g model.Group) (GroupView, error) {
	v := GroupView{Group: g}
	ranks, err := s.store.ListTierRanks(ctx, g.ID)
	if err != nil {
		return GroupView{}, fmt.Errorf("list tier ranks: %w", err)
	}
	v.Tiers = ranks

	offer, err := s.store.GetOfferByGroup(ctx, g.ID)
	switch {
	case err == nil:
		v.Offer = &offer
	case errors.Is(err, ErrNoOffer):
	default:
		return GroupView{}, fmt.Errorf("load offer: %w", err)
	}

	pgs, err := s.store.ListPaymentGroups(ctx, g.ID)
	if err != nil {
		return GroupView{}, fmt.Errorf("list payment groups: %w", err)
	}
	txns, err := s.store.TransactionsByGroup(ctx, g.ID)
	if err != nil {
		return GroupView{}, fmt.Errorf("list transactions: %w", err)
	}
	now := s.clock.Now()
	v.PaymentGroups = make([]PaymentGroupView, 0, len(pgs))
	for _, pg := range pgs {
		pv := PaymentGroupView{PaymentGroup: pg}
		if t, ok := txns[pg.ID]; ok {
			pv.Transaction = &t
		}
		pv.Status = model.DerivePaymentGroupStatus(pv.Transaction != nil, v.Offer, now)
		v.PaymentGroups = append(v.PaymentGroups, pv)
	}
	return v, nil
}
