package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/umbrella/gomicro/logger"
	"go.uber.org/zap"
)

// Health reports whether the service can reach its database
func Health(ping func() error) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := ping(); err != nil {
			logger.FromEcho(c).Error("Health check failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	}
}
