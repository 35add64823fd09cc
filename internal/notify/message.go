package notify

import (
	"fmt"
	"time"

	"github.com/iliyamo/ticket-admission/internal/model"
)

// FormatDatetime renders t in the house style, e.g. "28th February 2017
// at 07:03pm". Times are rendered in UTC.
func FormatDatetime(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%d%s %s", t.Day(), ordinalSuffix(t.Day()), t.Format("January 2006 at 03:04pm"))
}

func ordinalSuffix(day int) string {
	if day >= 11 && day <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}

// OfferMessage is the text sent to each payee when their group's offer
// is issued.
func OfferMessage(u model.User, f model.Fixture, o model.Offer) string {
	return fmt.Sprintf("Congratulations %s! Your group has reached the front of the waiting list for %s on %s at %s. "+
		"You have until %s to complete your transaction.",
		u.Forename, f.SeriesName, FormatDatetime(f.StartsAt), f.Venue, FormatDatetime(o.ExpiresAt))
}

// TicketMessage is the text sent to an attendee once their ticket exists.
func TicketMessage(n model.TicketNotice) string {
	return fmt.Sprintf("Congratulations %s! You're going to see %s on %s. Your ticket is available in the Equaliser app.",
		n.Forename, n.SeriesName, FormatDatetime(n.StartsAt))
}
