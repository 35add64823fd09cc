// Package queue defines message payloads exchanged over the message broker
// and the background consumer that drains outbound SMS.
package queue

import "time"

// Queue names. Both are declared durable.
const (
	SMSOutboundQueue          = "sms.outbound"
	TransactionCompletedQueue = "transaction.completed"
)

// SMSMessage is one outbound text message accepted by the notification
// gateway. Delivery to the SMS provider happens downstream of the queue.
type SMSMessage struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	To        string    `json:"to"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// TransactionCompletedEvent is published after a payee pays for an offer.
// It carries enough for downstream consumers (receipts, analytics) to act
// without querying the primary database.
type TransactionCompletedEvent struct {
	TransactionID  uint64   `json:"transaction_id"`
	OfferID        uint64   `json:"offer_id"`
	GroupID        uint64   `json:"group_id"`
	PaymentGroupID uint64   `json:"payment_group_id"`
	PayeeID        uint64   `json:"payee_id"`
	TierID         uint64   `json:"tier_id"`
	FixtureID      uint64   `json:"fixture_id"`
	Attendees      []uint64 `json:"attendees"`
	TicketCodes    []string `json:"ticket_codes"`
	Amount         string   `json:"amount"`
	CompletedAt    string   `json:"completed_at"`
}
