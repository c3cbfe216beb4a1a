package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/suteetoe/umbrella/gomicro/logger"
	"github.com/suteetoe/umbrella/services/umbrella-service/internal/engine"
	"github.com/suteetoe/umbrella/services/umbrella-service/internal/model"
	"go.uber.org/zap"
)

type createRelationshipRequest struct {
	ReferrerID       string          `json:"referrer_id"`
	ReferredID       string          `json:"referred_id"`
	ShareRate        decimal.Decimal `json:"share_rate"`
	RelationshipType string          `json:"relationship_type"`
}

// CreateRelationship registers a referrer/referred pairing. The referrer
// defaults to the authenticated user.
func (h *Handler) CreateRelationship(c echo.Context) error {
	claims, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}

	var req createRelationshipRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request", err)
	}
	if req.ReferrerID == "" {
		req.ReferrerID = claims.UserID
	}

	rel, err := h.engine.CreateRelationship(c.Request().Context(), engine.CreateRelationshipInput{
		ReferrerID:       req.ReferrerID,
		ReferredID:       req.ReferredID,
		ShareRate:        req.ShareRate,
		RelationshipType: req.RelationshipType,
	})
	if err != nil {
		return fail(c, "Failed to create relationship", err)
	}

	logger.FromEcho(c).Info("Relationship created",
		zap.String("umbrella_id", rel.ID),
		zap.String("requested_by", claims.UserID))
	return c.JSON(http.StatusCreated, rel)
}

// ListRelationships lists the relationships of ?user_id (default: caller) filtered by ?role
func (h *Handler) ListRelationships(c echo.Context) error {
	claims, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}

	userID := c.QueryParam("user_id")
	if userID == "" {
		userID = claims.UserID
	}
	role, err := engine.ParseRole(c.QueryParam("role"))
	if err != nil {
		return fail(c, "Invalid role filter", err)
	}

	rels, err := h.engine.ListRelationships(c.Request().Context(), userID, role)
	if err != nil {
		return fail(c, "Failed to list relationships", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"relationships": rels, "count": len(rels)})
}

// GetRelationship returns one relationship
func (h *Handler) GetRelationship(c echo.Context) error {
	rel, err := h.engine.Registry.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, "Relationship not found", err)
	}
	return c.JSON(http.StatusOK, rel)
}

type updateRelationshipRequest struct {
	Notes             *string `json:"notes"`
	TerminationReason *string `json:"termination_reason"`
}

// UpdateRelationship edits relationship metadata
func (h *Handler) UpdateRelationship(c echo.Context) error {
	var req updateRelationshipRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request", err)
	}

	rel, err := h.engine.Registry.Update(c.Request().Context(), c.Param("id"), engine.RelationshipPatch{
		Notes:             req.Notes,
		TerminationReason: req.TerminationReason,
	})
	if err != nil {
		return fail(c, "Failed to update relationship", err)
	}
	return c.JSON(http.StatusOK, rel)
}

// TerminateRelationship ends a relationship
func (h *Handler) TerminateRelationship(c echo.Context) error {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request", err)
	}

	rel, err := h.engine.Registry.Terminate(c.Request().Context(), c.Param("id"), req.Reason)
	if err != nil {
		return fail(c, "Failed to terminate relationship", err)
	}
	return c.JSON(http.StatusOK, rel)
}

type transitionRequest struct {
	Target   string                 `json:"target"`
	Action   string                 `json:"action"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Transition applies one state machine step
func (h *Handler) Transition(c echo.Context) error {
	claims, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}

	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request", err)
	}
	target, err := model.ParseRelationshipStatus(req.Target)
	if err != nil {
		return badRequest(c, err.Error(), err)
	}
	action, err := model.ParseAction(req.Action)
	if err != nil {
		return badRequest(c, err.Error(), err)
	}
	if req.Metadata == nil {
		req.Metadata = map[string]interface{}{}
	}
	req.Metadata["actorId"] = claims.UserID

	res, err := h.engine.Transition(c.Request().Context(), c.Param("id"), target, action, req.Metadata)
	if err != nil {
		return fail(c, "Transition rejected", err)
	}
	return c.JSON(http.StatusOK, res)
}

// GetInstance returns the lifecycle history of a relationship
func (h *Handler) GetInstance(c echo.Context) error {
	inst, err := h.engine.Machine.Instance(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, "Failed to load instance", err)
	}
	return c.JSON(http.StatusOK, inst)
}
