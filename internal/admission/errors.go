package admission

import "errors"

// Lookup failures. Stores return these so callers can map them to 404s.
var (
	ErrGroupNotFound   = errors.New("group not found")
	ErrTierNotFound    = errors.New("tier not found")
	ErrFixtureNotFound = errors.New("fixture not found")
	ErrUnknownUser     = errors.New("one or more users do not exist")
	ErrNoOffer         = errors.New("no offer has been made to the group")
)

// Rejected requests. Each leaves the store untouched.
var (
	ErrNoPreferences    = errors.New("at least one tier must be selected")
	ErrInvalidRank      = errors.New("tier ranks must be positive")
	ErrEmptyAttendees   = errors.New("every payment group needs at least one attendee")
	ErrGuestNotAttendee = errors.New("guests must also be attendees")
	ErrAlreadyQueued    = errors.New("one or more group members are already waiting to see this event")
	ErrNotWaiting       = errors.New("group is no longer waiting")
	ErrNotPayee         = errors.New("you are not a payee in this group")
	ErrOfferExpired     = errors.New("offer has expired")
	ErrAlreadyPaid      = errors.New("payment group has already paid")
	ErrOfferExists      = errors.New("group already has an offer")
	ErrForbidden        = errors.New("forbidden")
)
