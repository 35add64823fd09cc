package model

import "time"

// WaitingRow is one ranked tier preference of a waiting Group, joined
// with the Group's total attendee count. Rows are ordered by group
// creation time, then group id, then rank.
type WaitingRow struct {
	GroupID       uint64
	GroupCreated  time.Time
	AttendeeCount int
	TierID        uint64
	Rank          int
}

// ReclaimedOffer is an expired Offer that has just been flagged as
// reclaimed, with the number of seats to credit back to its tier.
type ReclaimedOffer struct {
	OfferID uint64
	TierID  uint64
	Seats   int
}

// TicketNotice carries everything needed to tell an attendee about an
// issued Ticket.
type TicketNotice struct {
	TicketID    uint64
	Forename    string
	PhoneNumber string
	TierName    string
	SeriesName  string
	Venue       string
	StartsAt    time.Time
}
