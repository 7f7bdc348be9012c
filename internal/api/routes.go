// routes.go - Route registration and handler wiring
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/csv-transformer/backend/internal/config"
	"github.com/csv-transformer/backend/internal/status"
)

// Dependencies carries everything the handlers need.
type Dependencies struct {
	Repo    FileRepository
	Blobs   BlobStore
	Content ContentStore
	Ingest  Ingestor
	Preview Previewer
	Enrich  Enricher
	Status  status.Store
	Rules   config.UploadRules
	Version string
	Ping    func() error
	Log     *logrus.Entry
}

// Handlers groups the endpoint handlers.
type Handlers struct {
	Files   *FilesHandler
	Preview *PreviewHandler
	Enrich  *EnrichHandler
	Status  *StatusHandler
	Health  *HealthHandler
}

// NewHandlers constructs all handlers from the dependency set.
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		Files:   NewFilesHandler(deps.Repo, deps.Blobs, deps.Content, deps.Ingest, deps.Rules, deps.Log),
		Preview: NewPreviewHandler(deps.Preview),
		Enrich:  NewEnrichHandler(deps.Enrich, deps.Log),
		Status:  NewStatusHandler(deps.Status),
		Health:  NewHealthHandler(deps.Version, deps.Ping),
	}
}

// RegisterRoutes attaches all API routes to the Echo instance.
func RegisterRoutes(e *echo.Echo, h *Handlers) {
	api := e.Group("/api")

	api.GET("/health", h.Health.HandleHealth)

	files := api.Group("/files")
	files.POST("", h.Files.HandleUpload)
	files.GET("", h.Files.HandleList)
	files.GET("/:id", h.Files.HandleGet)
	files.DELETE("/:id", h.Files.HandleDelete)
	files.GET("/:id/download", h.Files.HandleDownload)
	files.GET("/:id/status", h.Status.HandleStatus)
	files.GET("/:id/preview", h.Preview.HandlePreview)
	files.GET("/:id/preview/msgpack", h.Preview.HandlePreviewMsgpack)
	files.POST("/:id/enrich", h.Enrich.HandleEnrich)
}
