// Package preview serves stable, bounded slices of a file's rows with
// pagination metadata, caching computed pages for a TTL window.
package preview

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/csv-transformer/backend/internal/models"
)

// DefaultTTL matches the production cache window.
const DefaultTTL = 15 * time.Minute

// FileGetter loads file metadata.
type FileGetter interface {
	GetByID(id string) (*models.FileRecord, error)
}

// RowSource reads stored row sets.
type RowSource interface {
	RowCount(fileID string) (int, error)
	Rows(fileID string, offset, limit int) ([]models.Row, error)
}

// Service computes paginated previews and caches the encoded pages.
type Service struct {
	repo  FileGetter
	rows  RowSource
	cache *pageCache
	log   *logrus.Entry

	// computations counts cache-miss page builds; tests use it to verify
	// that repeated identical requests hit the cache.
	computations atomic.Int64
}

// NewService wires a preview service with the given cache TTL.
func NewService(repo FileGetter, rows RowSource, ttl time.Duration, log *logrus.Entry) *Service {
	return &Service{
		repo:  repo,
		rows:  rows,
		cache: newPageCache(ttl),
		log:   log,
	}
}

// Page returns one page of a file's rows. page and pageSize are
// 1-indexed and must be >= 1; out-of-range pages yield an empty or
// partial row slice, never an error.
func (s *Service) Page(fileID string, page, pageSize int) (*models.PreviewPage, error) {
	payload, err := s.PagePayload(fileID, page, pageSize)
	if err != nil {
		return nil, err
	}

	result := &models.PreviewPage{}
	if err := msgpack.Unmarshal(payload, result); err != nil {
		return nil, fmt.Errorf("decoding cached page: %w", err)
	}
	return result, nil
}

// PagePayload returns the msgpack-encoded page. Cache hits return the
// previously stored bytes verbatim.
func (s *Service) PagePayload(fileID string, page, pageSize int) ([]byte, error) {
	key := fmt.Sprintf("file_%s_%d_%d", fileID, page, pageSize)
	if payload, ok := s.cache.get(key); ok {
		return payload, nil
	}

	result, err := s.build(fileID, page, pageSize)
	if err != nil {
		return nil, err
	}

	payload, err := msgpack.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encoding page: %w", err)
	}

	s.cache.set(key, payload)
	s.computations.Add(1)
	return payload, nil
}

func (s *Service) build(fileID string, page, pageSize int) (*models.PreviewPage, error) {
	rec, err := s.repo.GetByID(fileID)
	if err != nil {
		return nil, err
	}

	rowCount, err := s.rows.RowCount(fileID)
	if err != nil {
		return nil, err
	}

	start := (page - 1) * pageSize
	rows, err := s.rows.Rows(fileID, start, pageSize)
	if err != nil {
		return nil, err
	}

	return &models.PreviewPage{
		Columns:     rec.Columns,
		Rows:        rows,
		RowCount:    rowCount,
		CurrentPage: page,
		PageSize:    pageSize,
		TotalPages:  (rowCount + pageSize - 1) / pageSize,
	}, nil
}

// Computations reports how many pages were built from storage rather
// than served from cache.
func (s *Service) Computations() int64 {
	return s.computations.Load()
}

// PurgeExpired drops expired cache entries; wired to the background
// janitor ticker.
func (s *Service) PurgeExpired() {
	before := s.cache.len()
	s.cache.purgeExpired()
	if dropped := before - s.cache.len(); dropped > 0 {
		s.log.WithField("dropped", dropped).Debug("purged expired preview pages")
	}
}
