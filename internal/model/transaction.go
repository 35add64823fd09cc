package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction records a PaymentGroup paying against its Group's Offer.
// payment_group_id is unique, so a PaymentGroup pays at most once.
type Transaction struct {
	ID             uint64          `json:"id"`               // transactions.id
	OfferID        uint64          `json:"offer_id"`         // transactions.offer_id
	PaymentGroupID uint64          `json:"payment_group_id"` // transactions.payment_group_id
	Amount         decimal.Decimal `json:"amount"`           // transactions.amount
	CreatedAt      time.Time       `json:"created_at"`       // transactions.created_at
}

// Ticket is one admission credential for one attendee of a Transaction.
// NotificationSentAt stays nil until the ticket notifier gets an
// accepted send from the gateway.
type Ticket struct {
	ID                 uint64     `json:"id"`                   // tickets.id
	TransactionID      uint64     `json:"transaction_id"`       // tickets.transaction_id
	AttendeeID         uint64     `json:"attendee_id"`          // tickets.attendee_id
	Code               string     `json:"code"`                 // tickets.code
	NotificationSentAt *time.Time `json:"notification_sent_at"` // tickets.notification_sent_at (nullable)
}
