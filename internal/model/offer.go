package model

import "time"

// Offer is a time-boxed grant of reserved capacity to a Group. There is
// at most one per Group and every PaymentGroup of the Group shares it.
//
// Fields:
//  ID          – primary key identifier.
//  GroupID     – group the capacity was reserved for (unique).
//  TierID      – tier the capacity was reserved in.
//  IssuedAt    – when the offer was written.
//  ExpiresAt   – IssuedAt plus the validity window.
//  IsReclaimed – set once by the reclaimer after expiry.
type Offer struct {
	ID          uint64    `json:"id"`           // offers.id
	GroupID     uint64    `json:"group_id"`     // offers.group_id
	TierID      uint64    `json:"tier_id"`      // offers.tier_id
	IssuedAt    time.Time `json:"issued_at"`    // offers.issued_at
	ExpiresAt   time.Time `json:"expires_at"`   // offers.expires_at
	IsReclaimed bool      `json:"is_reclaimed"` // offers.is_reclaimed
}

// Expired reports whether the offer's expiry lies strictly before now.
func (o Offer) Expired(now time.Time) bool {
	return o.ExpiresAt.Before(now)
}

// OfferNotification records that a payee was told about an Offer.
type OfferNotification struct {
	OfferID uint64    `json:"offer_id"`
	UserID  uint64    `json:"user_id"`
	SentAt  time.Time `json:"sent_at"`
}
