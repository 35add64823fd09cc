package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ticket-admission/internal/admission"
)

// GroupHandler serves the buyer lifecycle. Every route sits behind
// JWTAuth.
type GroupHandler struct {
	Service *admission.Service
	Log     *zap.Logger
}

// NewGroupHandler panics on a nil service.
func NewGroupHandler(svc *admission.Service, log *zap.Logger) *GroupHandler {
	if svc == nil {
		panic("nil service passed to NewGroupHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &GroupHandler{Service: svc, Log: log}
}

type createGroupRequest struct {
	TierID    uint64   `json:"tier_id"`
	Attendees []uint64 `json:"attendees"`
	Guests    []uint64 `json:"guests"`
}

// Create handles POST /v1/groups. It answers 201 when the direct pool
// covered the request and an offer was made, 202 when the group joined
// the waiting list.
func (h *GroupHandler) Create(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body createGroupRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.TierID == 0 {
		return badRequest(c, "tier_id is required")
	}
	out, err := h.Service.RequestTickets(c.Request().Context(), admission.TicketRequest{
		LeaderID:  userID,
		TierID:    body.TierID,
		Attendees: body.Attendees,
		Guests:    body.Guests,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	status := http.StatusAccepted
	if out.Offer != nil {
		status = http.StatusCreated
	}
	return c.JSON(status, echo.Map{
		"group":          out.Group,
		"payment_groups": out.PaymentGroups,
		"offer":          out.Offer,
	})
}

// List handles GET /v1/groups: groups the caller leads, pays for or
// attends.
func (h *GroupHandler) List(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	views, err := h.Service.ListGroups(c.Request().Context(), userID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if views == nil {
		views = []admission.GroupView{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": views})
}

// Get handles GET /v1/groups/:id for the group's leader.
func (h *GroupHandler) Get(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	groupID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid group id")
	}
	view, err := h.Service.GetGroup(c.Request().Context(), userID, groupID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, view)
}

type tierPreference struct {
	TierID uint64 `json:"tier_id"`
	Rank   int    `json:"rank"`
}

// SetTiers handles PUT /v1/groups/:id/tiers and replaces the whole
// ranked preference list.
func (h *GroupHandler) SetTiers(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	groupID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid group id")
	}
	var body struct {
		Tiers []tierPreference `json:"tiers"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	ranks := make(map[uint64]int, len(body.Tiers))
	for _, p := range body.Tiers {
		if _, dup := ranks[p.TierID]; dup {
			return badRequest(c, "each tier may appear only once")
		}
		ranks[p.TierID] = p.Rank
	}
	if err := h.Service.SetTierPreferences(c.Request().Context(), userID, groupID, ranks); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Pay handles POST /v1/groups/:id/pay for the caller's payment group.
func (h *GroupHandler) Pay(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	groupID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid group id")
	}
	receipt, err := h.Service.Pay(c.Request().Context(), userID, groupID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, receipt)
}
