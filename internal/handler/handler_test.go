package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/ticket-admission/internal/admission"
	"github.com/iliyamo/ticket-admission/internal/clock"
	"github.com/iliyamo/ticket-admission/internal/config"
	"github.com/iliyamo/ticket-admission/internal/handler"
	"github.com/iliyamo/ticket-admission/internal/memstore"
	"github.com/iliyamo/ticket-admission/internal/model"
	"github.com/iliyamo/ticket-admission/internal/notify"
	"github.com/iliyamo/ticket-admission/internal/pool"
	"github.com/iliyamo/ticket-admission/internal/router"
	"github.com/iliyamo/ticket-admission/internal/utils"
)

const secret = "handler-secret"

type server struct {
	e     *echo.Echo
	st    *memstore.Store
	tier  model.Tier
	users []model.User
}

func newServer(t *testing.T, capacity int, demo bool) *server {
	t.Helper()
	st := memstore.New()
	f := st.AddFixture(model.Fixture{SeriesName: "Summer Series", Venue: "Field", StartsAt: time.Date(2026, 7, 1, 19, 0, 0, 0, time.UTC)})
	tier := st.AddTier(model.Tier{FixtureID: f.ID, Name: "Standing", Price: decimal.RequireFromString("12.50"), Capacity: capacity})
	var users []model.User
	for _, name := range []string{"Ada", "Bo", "Cy"} {
		users = append(users, st.AddUser(model.User{Forename: name, PhoneNumber: "+1" + name}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	tiers, _ := st.ListTiers(ctx)
	direct := pool.NewDirect(pool.DirectSeed(tiers, nil), 8, zap.NewNop())
	recycled := pool.NewRecycled(pool.TierIDs(tiers), 8, zap.NewNop())
	go direct.Run(ctx)
	go recycled.Run(ctx)

	svc := admission.NewService(st, direct, admission.Options{
		Clock:   clock.Fake(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)),
		Gateway: notify.NewLogGateway(zap.NewNop()),
		Logger:  zap.NewNop(),
	})
	e := echo.New()
	router.Register(e, router.Deps{
		Groups:       handler.NewGroupHandler(svc, zap.NewNop()),
		Availability: handler.NewAvailabilityHandler(st, direct, recycled, zap.NewNop()),
		JWTSecret:    secret,
		RateLimit:    config.RateLimitConfig{Enabled: true},
		Cache:        config.CacheConfig{Enabled: true},
		Demo:         demo,
	})
	return &server{e: e, st: st, tier: tier, users: users}
}

func (s *server) do(t *testing.T, method, path string, as uint64, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if as != 0 {
		tok, err := utils.NewAccessToken(secret, as, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body, err)
	}
}

func TestHealth(t *testing.T) {
	s := newServer(t, 10, false)
	rec := s.do(t, http.MethodGet, "/healthz", 0, "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("%d %q", rec.Code, rec.Body)
	}
}

func TestFixtureTiers(t *testing.T) {
	s := newServer(t, 10, false)
	rec := s.do(t, http.MethodGet, "/v1/fixtures/1/tiers", 0, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("%d %s", rec.Code, rec.Body)
	}
	var out struct {
		Items []handler.TierItem `json:"items"`
	}
	decode(t, rec, &out)
	if len(out.Items) != 1 || out.Items[0].Available != 10 || !out.Items[0].Price.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("items = %+v", out.Items)
	}

	if rec := s.do(t, http.MethodGet, "/v1/fixtures/9/tiers", 0, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown fixture: %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/v1/fixtures/x/tiers", 0, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", rec.Code)
	}
}

func TestGroupsRequireToken(t *testing.T) {
	s := newServer(t, 10, false)
	if rec := s.do(t, http.MethodGet, "/v1/groups", 0, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("%d", rec.Code)
	}
}

func TestRequestPayAndView(t *testing.T) {
	s := newServer(t, 10, false)
	ada, bo := s.users[0].ID, s.users[1].ID

	rec := s.do(t, http.MethodPost, "/v1/groups", ada, `{"tier_id":1,"attendees":[1,2],"guests":[2]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	var created struct {
		Group model.Group  `json:"group"`
		Offer *model.Offer `json:"offer"`
	}
	decode(t, rec, &created)
	if created.Offer == nil || created.Group.Status != model.GroupOffered {
		t.Fatalf("created = %+v", created)
	}

	avail := s.do(t, http.MethodGet, "/v1/tiers/1/availability", 0, "")
	if avail.Code != http.StatusOK || !strings.Contains(avail.Body.String(), `"direct":8`) {
		t.Fatalf("availability: %d %s", avail.Code, avail.Body)
	}

	if rec := s.do(t, http.MethodGet, "/v1/groups/1", bo, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("non-leader view: %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/v1/groups/1/pay", bo, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("non-payee pay: %d %s", rec.Code, rec.Body)
	}

	rec = s.do(t, http.MethodPost, "/v1/groups/1/pay", ada, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("pay: %d %s", rec.Code, rec.Body)
	}
	var receipt admission.Receipt
	decode(t, rec, &receipt)
	if len(receipt.Tickets) != 2 || !receipt.Transaction.Amount.Equal(decimal.RequireFromString("25")) {
		t.Fatalf("receipt = %+v", receipt)
	}
	if rec := s.do(t, http.MethodPost, "/v1/groups/1/pay", ada, ""); rec.Code != http.StatusConflict {
		t.Fatalf("second pay: %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/v1/groups/1", ada, "")
	var view admission.GroupView
	decode(t, rec, &view)
	if len(view.PaymentGroups) != 1 || view.PaymentGroups[0].Status != model.PaymentGroupComplete {
		t.Fatalf("view = %+v", view)
	}

	rec = s.do(t, http.MethodGet, "/v1/groups", bo, "")
	var list struct {
		Items []admission.GroupView `json:"items"`
	}
	decode(t, rec, &list)
	if len(list.Items) != 1 || list.Items[0].ID != 1 {
		t.Fatalf("attendee list = %+v", list.Items)
	}
}

func TestWaitingGroupPreferences(t *testing.T) {
	s := newServer(t, 1, false)
	ada, bo := s.users[0].ID, s.users[1].ID

	rec := s.do(t, http.MethodPost, "/v1/groups", ada, `{"tier_id":1,"attendees":[1,2]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	if rec := s.do(t, http.MethodPost, "/v1/groups", bo, `{"tier_id":1,"attendees":[2]}`); rec.Code != http.StatusConflict {
		t.Fatalf("already queued: %d %s", rec.Code, rec.Body)
	}

	cases := []struct {
		name string
		as   uint64
		body string
		want int
	}{
		{"replace", ada, `{"tiers":[{"tier_id":1,"rank":2}]}`, http.StatusNoContent},
		{"empty", ada, `{"tiers":[]}`, http.StatusBadRequest},
		{"duplicate", ada, `{"tiers":[{"tier_id":1,"rank":1},{"tier_id":1,"rank":2}]}`, http.StatusBadRequest},
		{"bad rank", ada, `{"tiers":[{"tier_id":1,"rank":0}]}`, http.StatusBadRequest},
		{"unknown tier", ada, `{"tiers":[{"tier_id":7,"rank":1}]}`, http.StatusNotFound},
		{"not leader", bo, `{"tiers":[{"tier_id":1,"rank":1}]}`, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPut, "/v1/groups/1/tiers", tc.as, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("%d %s, want %d", rec.Code, rec.Body, tc.want)
			}
		})
	}

	if rec := s.do(t, http.MethodPost, "/v1/groups/1/pay", ada, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("pay without offer: %d %s", rec.Code, rec.Body)
	}
}

func TestRequestValidation(t *testing.T) {
	s := newServer(t, 10, false)
	cases := []struct {
		name string
		body string
		want int
	}{
		{"no tier", `{"attendees":[1]}`, http.StatusBadRequest},
		{"no attendees", `{"tier_id":1}`, http.StatusBadRequest},
		{"guest not attendee", `{"tier_id":1,"attendees":[1],"guests":[2]}`, http.StatusBadRequest},
		{"unknown user", `{"tier_id":1,"attendees":[1,99]}`, http.StatusNotFound},
		{"unknown tier", `{"tier_id":5,"attendees":[1]}`, http.StatusNotFound},
		{"malformed", `{"tier_id":`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/v1/groups", s.users[0].ID, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("%d %s, want %d", rec.Code, rec.Body, tc.want)
			}
		})
	}
}

func TestDemoRecover(t *testing.T) {
	s := newServer(t, 10, true)
	rec := s.do(t, http.MethodPost, "/v1/demo/tiers/1/recycled/3", 0, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"recycled":3`) {
		t.Fatalf("recover: %d %s", rec.Code, rec.Body)
	}
	rec = s.do(t, http.MethodGet, "/v1/recycled", 0, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `{"tier_id":1,"available":3}`) {
		t.Fatalf("recycled: %d %s", rec.Code, rec.Body)
	}
	if rec := s.do(t, http.MethodPost, "/v1/demo/tiers/8/recycled/3", 0, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown tier: %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/v1/demo/tiers/1/recycled/0", 0, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("zero quantity: %d", rec.Code)
	}
}

func TestDemoRouteAbsentInProd(t *testing.T) {
	s := newServer(t, 10, false)
	rec := s.do(t, http.MethodPost, "/v1/demo/tiers/1/recycled/3", 0, "")
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("demo route served in prod: %d", rec.Code)
	}
}
