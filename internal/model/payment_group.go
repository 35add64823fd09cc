package model

import "time"

// PaymentGroupStatus is derived from the records around a PaymentGroup
// and is never persisted.
type PaymentGroupStatus string

const (
	PaymentGroupInherit  PaymentGroupStatus = "INHERIT"
	PaymentGroupExpired  PaymentGroupStatus = "EXPIRED"
	PaymentGroupComplete PaymentGroupStatus = "COMPLETE"
)

// PaymentGroup is the subset of a Group's attendees that one payee pays
// for. A payee who attends lists themself among the attendees.
type PaymentGroup struct {
	ID        uint64   `json:"id"`        // payment_groups.id
	GroupID   uint64   `json:"group_id"`  // payment_groups.group_id
	PayeeID   uint64   `json:"payee_id"`  // payment_groups.payee_id
	Attendees []uint64 `json:"attendees"` // payment_group_attendees.user_id
}

// DerivePaymentGroupStatus computes the status of a PaymentGroup:
// COMPLETE when it has a Transaction, otherwise EXPIRED when the
// Group's Offer has expired at now, otherwise INHERIT. offer is nil
// while the Group is still waiting.
func DerivePaymentGroupStatus(paid bool, offer *Offer, now time.Time) PaymentGroupStatus {
	if paid {
		return PaymentGroupComplete
	}
	if offer != nil && offer.Expired(now) {
		return PaymentGroupExpired
	}
	return PaymentGroupInherit
}
