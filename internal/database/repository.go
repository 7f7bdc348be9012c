package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/csv-transformer/backend/internal/models"
)

// ErrNotFound is returned when a FileRecord id does not exist.
var ErrNotFound = errors.New("file record not found")

// Repository provides FileRecord persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository wraps a GORM handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a record, assigning an id and upload time when unset.
func (r *Repository) Create(rec *models.FileRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now()
	}
	if rec.Status == "" {
		rec.Status = models.StatusPending
	}
	if err := r.db.Create(rec).Error; err != nil {
		return fmt.Errorf("creating file record: %w", err)
	}
	return nil
}

// GetByID returns the record for id or ErrNotFound.
func (r *Repository) GetByID(id string) (*models.FileRecord, error) {
	rec := &models.FileRecord{}
	err := r.db.First(rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading file record %s: %w", id, err)
	}
	return rec, nil
}

// List returns all records, newest upload first.
func (r *Repository) List() ([]*models.FileRecord, error) {
	var recs []*models.FileRecord
	if err := r.db.Order("uploaded_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing file records: %w", err)
	}
	return recs, nil
}

// ExistsByName reports whether any record carries the given original name.
func (r *Repository) ExistsByName(name string) (bool, error) {
	var count int64
	err := r.db.Model(&models.FileRecord{}).Where("original_name = ?", name).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking name %q: %w", name, err)
	}
	return count > 0, nil
}

// SetStatus updates only the status column.
func (r *Repository) SetStatus(id string, st models.UploadStatus) error {
	tx := r.db.Model(&models.FileRecord{}).Where("id = ?", id).Update("status", st)
	if tx.Error != nil {
		return fmt.Errorf("updating status for %s: %w", id, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Complete records the parsed schema and marks the file Completed.
func (r *Repository) Complete(id string, columns []string) error {
	tx := r.db.Model(&models.FileRecord{}).Where("id = ?", id).
		Updates(models.FileRecord{Columns: columns, Status: models.StatusCompleted})
	if tx.Error != nil {
		return fmt.Errorf("completing file record %s: %w", id, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSizeBytes updates the stored byte size, used after an enriched
// file's content is materialized.
func (r *Repository) SetSizeBytes(id string, size int64) error {
	tx := r.db.Model(&models.FileRecord{}).Where("id = ?", id).Update("size_bytes", size)
	if tx.Error != nil {
		return fmt.Errorf("updating size for %s: %w", id, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a record. Children enriched from it keep existing but
// lose their parent reference (set-null, never cascade).
func (r *Repository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.FileRecord{}).Where("parent_id = ?", id).
			Update("parent_id", nil).Error
		if err != nil {
			return fmt.Errorf("clearing parent links for %s: %w", id, err)
		}

		res := tx.Delete(&models.FileRecord{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("deleting file record %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
