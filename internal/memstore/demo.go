package memstore

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/ticket-admission/internal/model"
)

// SeedDemo loads one fixture with three tiers and a handful of users so
// the in-memory mode has something to sell.
func SeedDemo(s *Store, now time.Time) {
	f := s.AddFixture(model.Fixture{
		SeriesName: "Equaliser Cup Final",
		Venue:      "Riverside Stadium",
		StartsAt:   now.Add(14 * 24 * time.Hour).Truncate(time.Hour),
	})
	for _, t := range []struct {
		name     string
		price    string
		capacity int
	}{
		{"Lower Tier", "45.00", 40},
		{"Upper Tier", "30.00", 120},
		{"Family Stand", "18.50", 60},
	} {
		s.AddTier(model.Tier{FixtureID: f.ID, Name: t.name, Price: decimal.RequireFromString(t.price), Capacity: t.capacity})
	}
	for i, name := range [][2]string{{"Alex", "Morgan"}, {"Sam", "Kerr"}, {"Lucy", "Bronze"}, {"Ella", "Toone"}} {
		s.AddUser(model.User{
			Forename:    name[0],
			Surname:     name[1],
			PhoneNumber: "+4477009000" + string(rune('1'+i)),
			CreatedAt:   now,
		})
	}
}
