// Package router registers the HTTP routes and their middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/ticket-admission/internal/config"
	"github.com/iliyamo/ticket-admission/internal/handler"
	"github.com/iliyamo/ticket-admission/internal/middleware"
)

// Deps carries everything the routes need. Redis may be nil, in which
// case rate limiting and caching are skipped.
type Deps struct {
	Groups       *handler.GroupHandler
	Availability *handler.AvailabilityHandler
	JWTSecret    string
	RateLimit    config.RateLimitConfig
	Cache        config.CacheConfig
	Redis        *redis.Client
	// Demo routes the operator top-up endpoint. Never set in production.
	Demo bool
}

// RegisterRoutes registers the health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterPublic registers the unauthenticated availability endpoints.
// Only the tier listing is cached; its available counts may be up to
// CACHE_TTL old.
func RegisterPublic(e *echo.Echo, d Deps) {
	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis)
	cache := middleware.NewRedisCache(d.Cache, d.Redis)

	g := e.Group("/v1", limit)
	g.GET("/fixtures/:id/tiers", d.Availability.FixtureTiers, cache)
	g.GET("/tiers/:id/availability", d.Availability.TierAvailability)
	g.GET("/recycled", d.Availability.Recycled)

	if d.Demo {
		e.POST("/v1/demo/tiers/:id/recycled/:quantity", d.Availability.DemoRecover)
	}
}

// RegisterGroups registers the authenticated buyer routes.
func RegisterGroups(e *echo.Echo, d Deps) {
	g := e.Group("/v1/groups", middleware.JWTAuth(d.JWTSecret), middleware.NewTokenBucket(d.RateLimit, d.Redis))
	g.POST("", d.Groups.Create)
	g.GET("", d.Groups.List)
	g.GET("/:id", d.Groups.Get)
	g.PUT("/:id/tiers", d.Groups.SetTiers)
	g.POST("/:id/pay", d.Groups.Pay)
}

// Register wires every route group.
func Register(e *echo.Echo, d Deps) {
	RegisterRoutes(e)
	RegisterPublic(e, d)
	RegisterGroups(e, d)
}
