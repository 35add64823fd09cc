package model

import "time"

// GroupStatus is the matching state of a Group.
type GroupStatus string

const (
	// GroupWaiting groups are eligible for the waiting-list matcher.
	GroupWaiting GroupStatus = "WAITING"
	// GroupOffered groups hold an Offer and are never matched again.
	GroupOffered GroupStatus = "OFFERED"
)

// Group is one buyer's request for tickets to a fixture. A leader
// creates it; its PaymentGroups split the cost among payees.
type Group struct {
	ID        uint64      `json:"id"`         // groups.id
	LeaderID  uint64      `json:"leader_id"`  // groups.leader_id
	FixtureID uint64      `json:"fixture_id"` // groups.fixture_id
	Status    GroupStatus `json:"status"`     // groups.status
	CreatedAt time.Time   `json:"created_at"` // groups.created_at
}

// TierRank is one ranked tier preference of a Group. Rank 1 is the most
// preferred; ranks need not be contiguous.
type TierRank struct {
	GroupID uint64 `json:"group_id"`
	TierID  uint64 `json:"tier_id"`
	Rank    int    `json:"rank"`
}
