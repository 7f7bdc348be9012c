// handlers_preview.go - Paginated preview endpoints
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	defaultPage     = 1
	defaultPageSize = 100
)

// PreviewHandler serves paginated row previews.
type PreviewHandler struct {
	preview Previewer
}

// NewPreviewHandler creates a preview handler.
func NewPreviewHandler(preview Previewer) *PreviewHandler {
	return &PreviewHandler{preview: preview}
}

// HandlePreview returns one JSON page of a file's parsed rows.
// GET /api/files/:id/preview?page=1&page_size=100
func (h *PreviewHandler) HandlePreview(c echo.Context) error {
	page, pageSize, err := paginationParams(c)
	if err != nil {
		return err
	}

	result, err := h.preview.Page(c.Param("id"), page, pageSize)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// HandlePreviewMsgpack returns the cached msgpack encoding of a page
// verbatim, for clients that consume the binary form directly.
// GET /api/files/:id/preview/msgpack?page=1&page_size=100
func (h *PreviewHandler) HandlePreviewMsgpack(c echo.Context) error {
	page, pageSize, err := paginationParams(c)
	if err != nil {
		return err
	}

	payload, err := h.preview.PagePayload(c.Param("id"), page, pageSize)
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "application/msgpack", payload)
}

func paginationParams(c echo.Context) (page int, pageSize int, err error) {
	page, err = queryInt(c, "page", defaultPage)
	if err != nil || page < 1 {
		return 0, 0, NewValidationError("page must be a positive integer")
	}

	pageSize, err = queryInt(c, "page_size", defaultPageSize)
	if err != nil || pageSize < 1 {
		return 0, 0, NewValidationError("page_size must be a positive integer")
	}
	return page, pageSize, nil
}

func queryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
