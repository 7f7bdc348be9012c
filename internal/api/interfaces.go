// interfaces.go - Collaborator contracts consumed by the HTTP handlers
package api

import (
	"context"
	"io"

	"github.com/csv-transformer/backend/internal/enrich"
	"github.com/csv-transformer/backend/internal/models"
)

// FileRepository is the slice of the metadata repository the handlers use.
type FileRepository interface {
	Create(rec *models.FileRecord) error
	GetByID(id string) (*models.FileRecord, error)
	List() ([]*models.FileRecord, error)
	ExistsByName(name string) (bool, error)
	Delete(id string) error
}

// BlobStore stores raw uploaded bytes keyed by file id.
type BlobStore interface {
	Save(id string, r io.Reader) (int64, error)
	Delete(id string) error
	Path(id string) (string, error)
}

// ContentStore removes materialized row sets.
type ContentStore interface {
	Delete(fileID string) error
}

// Ingestor schedules background parsing of an uploaded file.
type Ingestor interface {
	Enqueue(fileID string) bool
}

// Previewer serves paginated slices of a file's rows.
type Previewer interface {
	Page(fileID string, page, pageSize int) (*models.PreviewPage, error)
	PagePayload(fileID string, page, pageSize int) ([]byte, error)
}

// Enricher joins a file with external lookup data into a new file.
type Enricher interface {
	EnrichFile(ctx context.Context, fileID string, in enrich.Input) (*models.FileRecord, error)
}
