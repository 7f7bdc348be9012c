package models

import (
	"fmt"
	"time"
)

// UploadStatus is the processing lifecycle state of a file.
type UploadStatus string

const (
	StatusPending    UploadStatus = "Pending"
	StatusProcessing UploadStatus = "Processing"
	StatusCompleted  UploadStatus = "Completed"
	StatusFailed     UploadStatus = "Failed"

	// StatusUnknown is reported for status queries on ids the status store
	// has never seen. It is never persisted.
	StatusUnknown UploadStatus = "Unknown"
)

// Row is one record of tabular data, keyed by column name.
type Row = map[string]any

// FileRecord describes one uploaded or enriched tabular dataset.
// Enriched records carry a weak reference to the file they were derived
// from; deleting the parent nulls the reference instead of cascading.
type FileRecord struct {
	ID           string       `json:"id" gorm:"primaryKey;size:36"`
	OriginalName string       `json:"originalName" gorm:"uniqueIndex;size:255"`
	SizeBytes    int64        `json:"sizeBytes"`
	UploadedAt   time.Time    `json:"uploadedAt"`
	Columns      []string     `json:"columns" gorm:"serializer:json"`
	Status       UploadStatus `json:"status" gorm:"size:10"`
	IsEnriched   bool         `json:"isEnriched"`
	ParentID     *string      `json:"parentId" gorm:"index;size:36"`
}

// SizeFormatted renders SizeBytes as a human-readable string.
func (f *FileRecord) SizeFormatted() string {
	size := float64(f.SizeBytes)
	for _, unit := range []string{"B", "KB", "MB"} {
		if size < 1024 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.1f GB", size)
}
