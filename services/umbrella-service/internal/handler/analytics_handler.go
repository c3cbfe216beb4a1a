package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/umbrella/services/umbrella-service/internal/model"
)

func periodParam(c echo.Context) (model.Period, error) {
	p := c.QueryParam("period")
	if p == "" {
		return model.PeriodMonthly, nil
	}
	return model.ParsePeriod(p)
}

// GetRollup returns the user's rollup for the current ?period window (default monthly)
func (h *Handler) GetRollup(c echo.Context) error {
	period, err := periodParam(c)
	if err != nil {
		return badRequest(c, err.Error(), err)
	}

	rollup, err := h.engine.GetRollup(c.Request().Context(), c.Param("userId"), period)
	if err != nil {
		return fail(c, "Failed to load rollup", err)
	}
	return c.JSON(http.StatusOK, rollup)
}

// RecomputeRollup rebuilds the user's rollup for the current window
func (h *Handler) RecomputeRollup(c echo.Context) error {
	period, err := periodParam(c)
	if err != nil {
		return badRequest(c, err.Error(), err)
	}

	rollup, err := h.engine.Analytics.Recompute(c.Request().Context(), c.Param("userId"), period)
	if err != nil {
		return fail(c, "Failed to recompute rollup", err)
	}
	return c.JSON(http.StatusOK, rollup)
}
