// Package memstore is an in-memory record store with the same behaviour
// as the MySQL repository. One mutex guards every table, which gives each
// method the atomicity a database transaction would.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/ticket-admission/internal/admission"
	"github.com/iliyamo/ticket-admission/internal/model"
)

// Store holds every table in maps keyed by primary key.
type Store struct {
	mu sync.Mutex

	seq map[string]uint64

	users         map[uint64]model.User
	fixtures      map[uint64]model.Fixture
	tiers         map[uint64]model.Tier
	groups        map[uint64]model.Group
	ranks         map[uint64]map[uint64]int // group -> tier -> rank
	paymentGroups map[uint64]model.PaymentGroup
	offers        map[uint64]model.Offer
	offerByGroup  map[uint64]uint64
	notifications []model.OfferNotification
	txns          map[uint64]model.Transaction
	txnByPG       map[uint64]uint64
	tickets       map[uint64]model.Ticket

	failures map[string]error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		seq:           make(map[string]uint64),
		users:         make(map[uint64]model.User),
		fixtures:      make(map[uint64]model.Fixture),
		tiers:         make(map[uint64]model.Tier),
		groups:        make(map[uint64]model.Group),
		ranks:         make(map[uint64]map[uint64]int),
		paymentGroups: make(map[uint64]model.PaymentGroup),
		offers:        make(map[uint64]model.Offer),
		offerByGroup:  make(map[uint64]uint64),
		txns:          make(map[uint64]model.Transaction),
		txnByPG:       make(map[uint64]uint64),
		tickets:       make(map[uint64]model.Ticket),
		failures:      make(map[string]error),
	}
}

var _ admission.Store = (*Store)(nil)

func (s *Store) next(table string) uint64 {
	s.seq[table]++
	return s.seq[table]
}

// FailNext makes the next call of the named method return err. It lets
// tests simulate an unavailable database.
func (s *Store) FailNext(method string, err error) {
	s.mu.Lock()
	s.failures[method] = err
	s.mu.Unlock()
}

// injected must be called with mu held.
func (s *Store) injected(method string) error {
	if err, ok := s.failures[method]; ok {
		delete(s.failures, method)
		return err
	}
	return nil
}

// AddUser inserts u, assigning an id when u.ID is zero.
func (s *Store) AddUser(u model.User) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.next("users")
	} else if u.ID > s.seq["users"] {
		s.seq["users"] = u.ID
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = u
	return u
}

// AddFixture inserts f, assigning an id when f.ID is zero.
func (s *Store) AddFixture(f model.Fixture) model.Fixture {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == 0 {
		f.ID = s.next("fixtures")
	} else if f.ID > s.seq["fixtures"] {
		s.seq["fixtures"] = f.ID
	}
	s.fixtures[f.ID] = f
	return f
}

// AddTier inserts t, assigning an id when t.ID is zero.
func (s *Store) AddTier(t model.Tier) model.Tier {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.next("tiers")
	} else if t.ID > s.seq["tiers"] {
		s.seq["tiers"] = t.ID
	}
	s.tiers[t.ID] = t
	return t
}

func (s *Store) GetUser(_ context.Context, id uint64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, admission.ErrUnknownUser
	}
	return u, nil
}

func (s *Store) GetUsers(_ context.Context, ids []uint64) (map[uint64]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint64]model.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (s *Store) GetFixture(_ context.Context, id uint64) (model.Fixture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fixtures[id]
	if !ok {
		return model.Fixture{}, admission.ErrFixtureNotFound
	}
	return f, nil
}

func (s *Store) GetTier(_ context.Context, id uint64) (model.Tier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("GetTier"); err != nil {
		return model.Tier{}, err
	}
	t, ok := s.tiers[id]
	if !ok {
		return model.Tier{}, admission.ErrTierNotFound
	}
	return t, nil
}

func (s *Store) ListTiers(_ context.Context) ([]model.Tier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Tier, 0, len(s.tiers))
	for _, t := range s.tiers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListTiersByFixture(ctx context.Context, fixtureID uint64) ([]model.Tier, error) {
	all, _ := s.ListTiers(ctx)
	out := all[:0]
	for _, t := range all {
		if t.FixtureID == fixtureID {
			out = append(out, t)
		}
	}
	return out, nil
}
