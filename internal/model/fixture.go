package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fixture is a single scheduled event (one match, one concert night).
//
// Fields:
//  ID         – primary key identifier.
//  SeriesName – human name of the series, e.g. "Spring Tour".
//  Venue      – venue name used in notifications.
//  StartsAt   – start time in UTC.
type Fixture struct {
	ID         uint64    `json:"id"`          // fixtures.id
	SeriesName string    `json:"series_name"` // fixtures.series_name
	Venue      string    `json:"venue"`       // fixtures.venue
	StartsAt   time.Time `json:"starts_at"`   // fixtures.starts_at
}

// Tier is a priced category of ticket within one fixture. Capacity is a
// ceiling and is never mutated; only the pool counters derived from it
// change.
type Tier struct {
	ID        uint64          `json:"id"`         // tiers.id
	FixtureID uint64          `json:"fixture_id"` // tiers.fixture_id
	Name      string          `json:"name"`       // tiers.name
	Price     decimal.Decimal `json:"price"`      // tiers.price
	Capacity  int             `json:"capacity"`   // tiers.capacity
}
