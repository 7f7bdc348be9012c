// handlers_health.go - Liveness endpoint
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandler reports service liveness.
type HealthHandler struct {
	version string
	ping    func() error
}

// NewHealthHandler creates a health handler. ping checks the metadata
// database; a nil ping skips the check.
func NewHealthHandler(version string, ping func() error) *HealthHandler {
	return &HealthHandler{version: version, ping: ping}
}

// HandleHealth returns service health.
// GET /api/health
func (h *HealthHandler) HandleHealth(c echo.Context) error {
	database := "ok"
	code := http.StatusOK
	if h.ping != nil {
		if err := h.ping(); err != nil {
			database = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	return c.JSON(code, map[string]string{
		"status":   "ok",
		"version":  h.version,
		"database": database,
	})
}
