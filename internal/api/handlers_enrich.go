// handlers_enrich.go - Enrichment endpoint
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/csv-transformer/backend/internal/enrich"
)

// EnrichHandler triggers file enrichment against an external lookup API.
type EnrichHandler struct {
	engine Enricher
	log    *logrus.Entry
}

// NewEnrichHandler creates an enrich handler.
func NewEnrichHandler(engine Enricher, log *logrus.Entry) *EnrichHandler {
	return &EnrichHandler{engine: engine, log: log}
}

// HandleEnrich joins the file's rows with records fetched from the given
// endpoint and returns the newly created enriched file.
// POST /api/files/:id/enrich
func (h *EnrichHandler) HandleEnrich(c echo.Context) error {
	in := enrich.Input{}
	if err := c.Bind(&in); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	switch {
	case in.APIEndpoint == "":
		return NewValidationError("apiEndpoint is required")
	case in.FileKey == "":
		return NewValidationError("fileKey is required")
	case in.APIKey == "":
		return NewValidationError("apiKey is required")
	case in.EnrichedFileName == "":
		return NewValidationError("enrichedFileName is required")
	}

	rec, err := h.engine.EnrichFile(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toFileResponse(rec))
}
