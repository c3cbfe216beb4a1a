package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/umbrella/gomicro/logger"
	"github.com/suteetoe/umbrella/services/umbrella-service/internal/engine"
	"go.uber.org/zap"
)

// GenerateAgreement creates the DRAFT agreement of a pending relationship
func (h *Handler) GenerateAgreement(c echo.Context) error {
	doc, err := h.engine.GenerateAgreement(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, "Failed to generate agreement", err)
	}
	return c.JSON(http.StatusCreated, doc)
}

// GetCurrentAgreement returns the relationship's newest live agreement
func (h *Handler) GetCurrentAgreement(c echo.Context) error {
	doc, err := h.engine.Agreements.CurrentDocument(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, "Agreement not found", err)
	}
	return c.JSON(http.StatusOK, doc)
}

// GetAgreement returns one agreement with its signatures
func (h *Handler) GetAgreement(c echo.Context) error {
	doc, err := h.engine.Agreements.Document(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, "Agreement not found", err)
	}
	return c.JSON(http.StatusOK, doc)
}

// SignAgreement records the authenticated user's signature
func (h *Handler) SignAgreement(c echo.Context) error {
	claims, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}

	res, err := h.engine.SignAgreement(c.Request().Context(), c.Param("id"), claims.UserID, engine.ClientMeta{
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		return fail(c, "Failed to sign agreement", err)
	}

	logger.FromEcho(c).Info("Agreement signed",
		zap.String("document_id", res.Document.ID),
		zap.String("signer_id", claims.UserID),
		zap.Bool("activated", res.Activated))
	return c.JSON(http.StatusCreated, res)
}
