// handlers_files.go - Upload, listing, deletion and download endpoints
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/csv-transformer/backend/internal/config"
	"github.com/csv-transformer/backend/internal/database"
	"github.com/csv-transformer/backend/internal/models"
	"github.com/csv-transformer/backend/internal/storage"
)

// FilesHandler handles file lifecycle endpoints.
type FilesHandler struct {
	repo    FileRepository
	blobs   BlobStore
	content ContentStore
	ingest  Ingestor
	rules   config.UploadRules
	log     *logrus.Entry
}

// NewFilesHandler creates a files handler.
func NewFilesHandler(repo FileRepository, blobs BlobStore, content ContentStore, ingest Ingestor, rules config.UploadRules, log *logrus.Entry) *FilesHandler {
	return &FilesHandler{
		repo:    repo,
		blobs:   blobs,
		content: content,
		ingest:  ingest,
		rules:   rules,
		log:     log,
	}
}

// fileResponse is a FileRecord plus derived presentation fields.
type fileResponse struct {
	*models.FileRecord
	SizeFormatted string `json:"sizeFormatted"`
}

func toFileResponse(rec *models.FileRecord) fileResponse {
	return fileResponse{
		FileRecord:    rec,
		SizeFormatted: rec.SizeFormatted(),
	}
}

// HandleUpload accepts a multipart CSV upload, persists it and schedules
// background ingestion.
// POST /api/files
func (h *FilesHandler) HandleUpload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("missing file field in multipart form", err)
	}

	if err := h.rules.Validate(fileHeader.Filename, fileHeader.Size); err != nil {
		return NewValidationError(err.Error())
	}

	exists, err := h.repo.ExistsByName(fileHeader.Filename)
	if err != nil {
		return NewInternalError("checking file name", err)
	}
	if exists {
		return NewConflictError("a file with this name already exists")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return NewInternalError("opening uploaded file", err)
	}
	defer src.Close()

	rec := &models.FileRecord{
		ID:           uuid.New().String(),
		OriginalName: fileHeader.Filename,
		UploadedAt:   time.Now().UTC(),
		Status:       models.StatusPending,
	}

	size, err := h.blobs.Save(rec.ID, src)
	if err != nil {
		return NewInternalError("storing uploaded file", err)
	}
	rec.SizeBytes = size

	if err := h.repo.Create(rec); err != nil {
		if cleanupErr := h.blobs.Delete(rec.ID); cleanupErr != nil {
			h.log.WithError(cleanupErr).WithField("file_id", rec.ID).Warn("removing orphaned upload")
		}
		return NewInternalError("recording uploaded file", err)
	}

	h.ingest.Enqueue(rec.ID)

	h.log.WithFields(logrus.Fields{
		"file_id": rec.ID,
		"name":    rec.OriginalName,
		"size":    rec.SizeBytes,
	}).Info("file uploaded")

	return c.JSON(http.StatusCreated, toFileResponse(rec))
}

// HandleList returns every file record, newest upload first.
// GET /api/files
func (h *FilesHandler) HandleList(c echo.Context) error {
	records, err := h.repo.List()
	if err != nil {
		return NewInternalError("listing files", err)
	}

	responses := make([]fileResponse, 0, len(records))
	for _, rec := range records {
		responses = append(responses, toFileResponse(rec))
	}
	return c.JSON(http.StatusOK, responses)
}

// HandleGet returns a single file record.
// GET /api/files/:id
func (h *FilesHandler) HandleGet(c echo.Context) error {
	rec, err := h.repo.GetByID(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toFileResponse(rec))
}

// HandleDelete removes a file's record, bytes and parsed rows. Enriched
// children survive with their parent reference nulled.
// DELETE /api/files/:id
func (h *FilesHandler) HandleDelete(c echo.Context) error {
	id := c.Param("id")
	if _, err := h.repo.GetByID(id); err != nil {
		return err
	}

	if err := h.blobs.Delete(id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return NewInternalError("removing file bytes", err)
	}
	if err := h.content.Delete(id); err != nil {
		return NewInternalError("removing file content", err)
	}
	if err := h.repo.Delete(id); err != nil && !errors.Is(err, database.ErrNotFound) {
		return NewInternalError("removing file record", err)
	}

	h.log.WithField("file_id", id).Info("file deleted")
	return c.NoContent(http.StatusNoContent)
}

// HandleDownload streams the file's original CSV bytes as an attachment.
// GET /api/files/:id/download
func (h *FilesHandler) HandleDownload(c echo.Context) error {
	rec, err := h.repo.GetByID(c.Param("id"))
	if err != nil {
		return err
	}

	path, err := h.blobs.Path(rec.ID)
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	return c.Attachment(path, rec.OriginalName)
}
