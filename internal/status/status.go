// Package status tracks live processing state per file id.
//
// The store is a shared key-value table with last-write-wins semantics:
// concurrent writers for the same id may interleave, and only the most
// recent value is meaningful. It is not an audit log.
package status

import (
	"context"
	"time"

	"github.com/csv-transformer/backend/internal/models"
)

// Record is the live processing state for one file id.
type Record struct {
	Status    models.UploadStatus `json:"status"`
	Progress  int                 `json:"progress"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// Store reads and writes processing status records. A record may be
// absent, stale, or overwritten; it is not transactionally tied to the
// file metadata.
type Store interface {
	// Get returns the record for fileID, reporting false when the store
	// has never seen the id.
	Get(ctx context.Context, fileID string) (Record, bool, error)

	// Set replaces the full record for fileID.
	Set(ctx context.Context, fileID string, st models.UploadStatus, progress int) error
}
