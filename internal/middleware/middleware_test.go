package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-admission/internal/config"
	"github.com/iliyamo/ticket-admission/internal/utils"
)

const secret = "test-secret"

func whoami(c echo.Context) error {
	id, ok := UserID(c)
	if !ok {
		return c.NoContent(http.StatusTeapot)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id})
}

func serve(t *testing.T, authz string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.GET("/me", whoami, JWTAuth(secret))
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if authz != "" {
		req.Header.Set(echo.HeaderAuthorization, authz)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	good, err := utils.NewAccessToken(secret, 42, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := utils.NewAccessToken(secret, 42, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	forged, err := utils.NewAccessToken("other", 42, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name  string
		authz string
		want  int
	}{
		{"valid", "Bearer " + good.Token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"expired", "Bearer " + expired.Token, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + forged.Token, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(t, tc.authz)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.want, rec.Body)
			}
		})
	}

	if body := serve(t, "Bearer "+good.Token).Body.String(); body != "{\"id\":42}\n" {
		t.Fatalf("body = %q", body)
	}
}

func TestPassThroughWithoutRedis(t *testing.T) {
	e := echo.New()
	rl := NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil)
	cache := NewRedisCache(config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}}, nil)
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, rl, cache)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		if rec.Code != http.StatusOK || rec.Header().Get("X-Cache") != "" {
			t.Fatalf("request %d: %d %v", i, rec.Code, rec.Header())
		}
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/recycled", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/recycled")

	cases := map[string]string{
		"ip":            "rl:ip:10.0.0.1",
		"user":          "rl:user:anon",
		"ip_user_route": "rl:ip:10.0.0.1:user:anon:route:GET /v1/recycled",
	}
	for strategy, want := range cases {
		got := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c)
		if got != want {
			t.Errorf("%s: got %q, want %q", strategy, got, want)
		}
	}

	c.Set(ContextUserID, uint64(7))
	if got := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user"}, c); got != "rl:user:7" {
		t.Errorf("got %q", got)
	}
}

func TestCacheKeyIgnoresHost(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "cache"}
	a := e.NewContext(httptest.NewRequest(http.MethodGet, "http://a/v1/fixtures/1/tiers?x=1", nil), nil)
	b := e.NewContext(httptest.NewRequest(http.MethodGet, "http://b/v1/fixtures/1/tiers?x=1", nil), nil)
	d := e.NewContext(httptest.NewRequest(http.MethodGet, "http://a/v1/fixtures/2/tiers?x=1", nil), nil)
	if cacheKeyFrom(cfg, a) != cacheKeyFrom(cfg, b) {
		t.Fatal("same path and query must share a key")
	}
	if cacheKeyFrom(cfg, a) == cacheKeyFrom(cfg, d) {
		t.Fatal("different fixtures must not share a key")
	}
}

func TestDecodePayloadRejectsTruncated(t *testing.T) {
	bs, err := encodePayload(http.StatusOK, http.Header{"Content-Type": {"application/json"}}, []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, _, ok := decodePayload(bs[:10]); ok {
		t.Fatal("truncated payload decoded")
	}
	status, hdr, body, ok := decodePayload(bs)
	if !ok || status != http.StatusOK || hdr.Get("Content-Type") != "application/json" || string(body) != "{}" {
		t.Fatalf("decoded %d %v %q %v", status, hdr, body, ok)
	}
}
