// handlers_status.go - Processing status endpoint
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/csv-transformer/backend/internal/models"
	"github.com/csv-transformer/backend/internal/status"
)

// StatusHandler reports the live processing state of a file.
type StatusHandler struct {
	store status.Store
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(store status.Store) *StatusHandler {
	return &StatusHandler{store: store}
}

// statusResponse is the wire form of a status record.
type statusResponse struct {
	Status    models.UploadStatus `json:"status"`
	Progress  int                 `json:"progress"`
	UpdatedAt *time.Time          `json:"updatedAt,omitempty"`
}

// HandleStatus returns the current status and progress of a file. Ids the
// status store has never seen report Unknown rather than an error.
// GET /api/files/:id/status
func (h *StatusHandler) HandleStatus(c echo.Context) error {
	rec, ok, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return NewInternalError("reading file status", err)
	}
	if !ok {
		return c.JSON(http.StatusOK, statusResponse{Status: models.StatusUnknown})
	}

	updatedAt := rec.UpdatedAt
	return c.JSON(http.StatusOK, statusResponse{
		Status:    rec.Status,
		Progress:  rec.Progress,
		UpdatedAt: &updatedAt,
	})
}
