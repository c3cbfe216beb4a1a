package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFromContextFallsBackToGlobal(t *testing.T) {
	assert.Equal(t, GetLogger(), FromContext(context.Background()))

	l := zap.NewExample()
	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
}

func TestNewDevelopmentAndProduction(t *testing.T) {
	dev, err := New(&LogConfig{Level: "debug", Environment: "development", ServiceName: "umbrella"})
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zap.DebugLevel))

	prod, err := New(&LogConfig{Level: "warn", Environment: "production", ServiceName: "umbrella"})
	require.NoError(t, err)
	assert.False(t, prod.Core().Enabled(zap.InfoLevel))
}

func TestMiddlewareStoresRequestLogger(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-1")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var fromEcho, fromCtx *zap.Logger
	h := Middleware()(func(c echo.Context) error {
		fromEcho = FromEcho(c)
		fromCtx = FromContext(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	})

	require.NoError(t, h(c))
	assert.NotNil(t, fromEcho)
	assert.Same(t, fromEcho, fromCtx)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
