package model

import "time"

// User represents a buyer record as stored in the `users` table.
// Registration and credentials live outside this service; the engine
// only needs a name for message bodies and a phone number to reach the
// user.
//
// Fields:
//  ID          – primary key identifier of the user.
//  Forename    – given name used in notifications.
//  Surname     – family name.
//  PhoneNumber – E.164 contact handed to the notification gateway.
//  CreatedAt   – timestamp of creation.
type User struct {
	ID          uint64    `json:"id"`           // users.id
	Forename    string    `json:"forename"`     // users.forename
	Surname     string    `json:"surname"`      // users.surname
	PhoneNumber string    `json:"phone_number"` // users.phone_number
	CreatedAt   time.Time `json:"created_at"`   // users.created_at
}
