package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/umbrella/gomicro/jwtutil"
	"github.com/suteetoe/umbrella/gomicro/logger"
	"github.com/suteetoe/umbrella/gomicro/middleware"
	"github.com/suteetoe/umbrella/services/umbrella-service/internal/engine"
	"go.uber.org/zap"
)

// Handler serves the umbrella engine over HTTP
type Handler struct {
	engine *engine.Engine
}

// New creates a handler for e
func New(e *engine.Engine) *Handler {
	return &Handler{engine: e}
}

// Register mounts the engine routes on g; g must carry JWTAuthMiddleware
func (h *Handler) Register(g *echo.Group) {
	g.POST("/umbrellas", h.CreateRelationship)
	g.GET("/umbrellas", h.ListRelationships)
	g.GET("/umbrellas/:id", h.GetRelationship)
	g.PATCH("/umbrellas/:id", h.UpdateRelationship)
	g.POST("/umbrellas/:id/terminate", h.TerminateRelationship)
	g.POST("/umbrellas/:id/transitions", h.Transition)
	g.GET("/umbrellas/:id/instance", h.GetInstance)
	g.POST("/umbrellas/:id/agreement", h.GenerateAgreement)
	g.GET("/umbrellas/:id/agreement", h.GetCurrentAgreement)
	g.GET("/umbrellas/:id/shares", h.ListShares)

	g.GET("/agreements/:id", h.GetAgreement)
	g.POST("/agreements/:id/signatures", h.SignAgreement)

	g.POST("/revenue-events", h.CalculateShares)
	g.GET("/shares/:id", h.GetShare)
	g.POST("/shares/:id/pay", h.MarkSharePaid)

	g.GET("/analytics/:userId", h.GetRollup)
	g.POST("/analytics/:userId/recompute", h.RecomputeRollup)
}

// caller returns the user set by JWTAuthMiddleware
func caller(c echo.Context) (*jwtutil.UserClaims, bool) {
	claims, ok := middleware.Claims(c)
	if !ok || claims.UserID == "" {
		logger.FromEcho(c).Error("Failed to get user claims from context")
		return nil, false
	}
	return claims, true
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
}

func statusOf(err error) int {
	switch engine.Code(err) {
	case engine.CodeValidation:
		return http.StatusBadRequest
	case engine.CodeNotFound:
		return http.StatusNotFound
	case engine.CodeConflict, engine.CodeAlreadySettled:
		return http.StatusConflict
	case engine.CodeInvalidTransition:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// fail maps an engine error to a JSON error response
func fail(c echo.Context, msg string, err error) error {
	log := logger.FromEcho(c)
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Error(msg, zap.Error(err))
		return c.JSON(status, echo.Map{"error": "internal server error"})
	}

	log.Warn(msg, zap.Error(err), zap.String("code", string(engine.Code(err))))
	body := echo.Map{"error": err.Error(), "code": engine.Code(err)}
	var e *engine.Error
	if errors.As(err, &e) && e.Message != "" {
		body["error"] = e.Message
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string, err error) error {
	logger.FromEcho(c).Warn(msg, zap.Error(err))
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}
