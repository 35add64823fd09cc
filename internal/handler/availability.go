package handler

import (
	"context"
	"net/http"
	"sort"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/ticket-admission/internal/model"
)

// Catalog is the read side of fixtures and tiers.
type Catalog interface {
	GetFixture(ctx context.Context, id uint64) (model.Fixture, error)
	GetTier(ctx context.Context, id uint64) (model.Tier, error)
	ListTiersByFixture(ctx context.Context, fixtureID uint64) ([]model.Tier, error)
}

// DirectReader reads the direct pool.
type DirectReader interface {
	Peek(ctx context.Context, tierID uint64) (int, error)
	PeekMany(ctx context.Context, tierIDs []uint64) (map[uint64]int, error)
}

// RecycledLedger reads and tops up the recycled pool.
type RecycledLedger interface {
	Peek(ctx context.Context, tierID uint64) (int, error)
	PeekAll(ctx context.Context) (map[uint64]int, error)
	Recover(ctx context.Context, counts map[uint64]int) (bool, error)
}

// AvailabilityHandler serves the public capacity endpoints.
type AvailabilityHandler struct {
	Catalog      Catalog
	Direct       DirectReader
	RecycledPool RecycledLedger
	Log          *zap.Logger
}

// NewAvailabilityHandler panics if any dependency is nil.
func NewAvailabilityHandler(catalog Catalog, direct DirectReader, recycled RecycledLedger, log *zap.Logger) *AvailabilityHandler {
	if catalog == nil || direct == nil || recycled == nil {
		panic("nil dependency passed to NewAvailabilityHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AvailabilityHandler{Catalog: catalog, Direct: direct, RecycledPool: recycled, Log: log}
}

// TierItem is one tier with its direct availability.
type TierItem struct {
	ID        uint64          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Capacity  int             `json:"capacity"`
	Available int             `json:"available"`
}

// FixtureTiers handles GET /v1/fixtures/:id/tiers.
func (h *AvailabilityHandler) FixtureTiers(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid fixture id")
	}
	ctx := c.Request().Context()
	f, err := h.Catalog.GetFixture(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	tiers, err := h.Catalog.ListTiersByFixture(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	ids := make([]uint64, len(tiers))
	for i, t := range tiers {
		ids[i] = t.ID
	}
	avail, err := h.Direct.PeekMany(ctx, ids)
	if err != nil {
		return fail(c, h.Log, err)
	}
	items := make([]TierItem, 0, len(tiers))
	for _, t := range tiers {
		items = append(items, TierItem{ID: t.ID, Name: t.Name, Price: t.Price, Capacity: t.Capacity, Available: avail[t.ID]})
	}
	return c.JSON(http.StatusOK, echo.Map{"fixture": f, "items": items})
}

// TierAvailability handles GET /v1/tiers/:id/availability.
func (h *AvailabilityHandler) TierAvailability(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid tier id")
	}
	ctx := c.Request().Context()
	if _, err := h.Catalog.GetTier(ctx, id); err != nil {
		return fail(c, h.Log, err)
	}
	direct, err := h.Direct.Peek(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	recycled, err := h.RecycledPool.Peek(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tier_id": id, "direct": direct, "recycled": recycled})
}

type recycledItem struct {
	TierID    uint64 `json:"tier_id"`
	Available int    `json:"available"`
}

// Recycled handles GET /v1/recycled: every tier with recycled capacity.
func (h *AvailabilityHandler) Recycled(c echo.Context) error {
	all, err := h.RecycledPool.PeekAll(c.Request().Context())
	if err != nil {
		return fail(c, h.Log, err)
	}
	items := make([]recycledItem, 0, len(all))
	for id, n := range all {
		items = append(items, recycledItem{TierID: id, Available: n})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].TierID < items[j].TierID })
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// DemoRecover handles POST /v1/demo/tiers/:id/recycled/:quantity. It is
// only routed outside production.
func (h *AvailabilityHandler) DemoRecover(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid tier id")
	}
	qty, err := strconv.Atoi(c.Param("quantity"))
	if err != nil || qty < 1 {
		return badRequest(c, "quantity must be a positive integer")
	}
	ctx := c.Request().Context()
	known, err := h.RecycledPool.Recover(ctx, map[uint64]int{id: qty})
	if err != nil {
		return fail(c, h.Log, err)
	}
	if !known {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tier not found"})
	}
	n, err := h.RecycledPool.Peek(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	h.Log.Info("recycled pool topped up", zap.Uint64("tier", id), zap.Int("quantity", qty))
	return c.JSON(http.StatusOK, echo.Map{"tier_id": id, "recycled": n})
}
