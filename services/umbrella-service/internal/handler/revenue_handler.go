package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/suteetoe/umbrella/services/umbrella-service/internal/engine"
)

type revenueEventRequest struct {
	ProjectID      string          `json:"project_id"`
	RevenueEventID string          `json:"revenue_event_id"`
	Revenue        decimal.Decimal `json:"revenue"`
	ProjectOwnerID string          `json:"project_owner_id"`
}

// CalculateShares computes the shares owed for a revenue event
func (h *Handler) CalculateShares(c echo.Context) error {
	var req revenueEventRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request", err)
	}

	shares, err := h.engine.CalculateShares(c.Request().Context(), engine.RevenueEvent{
		ProjectID:      req.ProjectID,
		RevenueEventID: req.RevenueEventID,
		Revenue:        req.Revenue,
		ProjectOwnerID: req.ProjectOwnerID,
	})
	if err != nil {
		return fail(c, "Failed to calculate shares", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"shares": shares, "count": len(shares)})
}

// ListShares lists every share of a relationship
func (h *Handler) ListShares(c echo.Context) error {
	shares, err := h.engine.Shares.ListShares(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, "Failed to list shares", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"shares": shares, "count": len(shares)})
}

// GetShare returns one share
func (h *Handler) GetShare(c echo.Context) error {
	share, err := h.engine.Shares.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, "Share not found", err)
	}
	return c.JSON(http.StatusOK, share)
}

// MarkSharePaid settles a calculated share
func (h *Handler) MarkSharePaid(c echo.Context) error {
	var req struct {
		PaymentMethod string `json:"payment_method"`
		TransactionID string `json:"transaction_id"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request", err)
	}

	share, err := h.engine.MarkSharePaid(c.Request().Context(), c.Param("id"), engine.SettlementInput{
		PaymentMethod: req.PaymentMethod,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		return fail(c, "Failed to mark share paid", err)
	}
	return c.JSON(http.StatusOK, share)
}
