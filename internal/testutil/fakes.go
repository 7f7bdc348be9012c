// Package testutil provides in-memory fakes of the storage, content,
// metadata and status collaborators for handler and pipeline tests.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/csv-transformer/backend/internal/database"
	"github.com/csv-transformer/backend/internal/models"
	"github.com/csv-transformer/backend/internal/status"
	"github.com/csv-transformer/backend/internal/storage"
)

// FakeRepo is an in-memory file metadata repository. Error fields, when
// set, are returned by the corresponding method instead of touching state.
type FakeRepo struct {
	mu      sync.Mutex
	records map[string]*models.FileRecord

	GetErr      error
	CreateErr   error
	CompleteErr error
	DeleteErr   error
}

// NewFakeRepo creates an empty repository.
func NewFakeRepo() *FakeRepo {
	return &FakeRepo{records: make(map[string]*models.FileRecord)}
}

// Put inserts a record directly, bypassing Create's defaulting. Test setup
// helper.
func (r *FakeRepo) Put(rec *models.FileRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *rec
	r.records[rec.ID] = &clone
}

func (r *FakeRepo) Create(rec *models.FileRecord) error {
	if r.CreateErr != nil {
		return r.CreateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = models.StatusPending
	}
	clone := *rec
	r.records[rec.ID] = &clone
	return nil
}

func (r *FakeRepo) GetByID(id string) (*models.FileRecord, error) {
	if r.GetErr != nil {
		return nil, r.GetErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", database.ErrNotFound, id)
	}
	clone := *rec
	return &clone, nil
}

func (r *FakeRepo) List() ([]*models.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.FileRecord, 0, len(r.records))
	for _, rec := range r.records {
		clone := *rec
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	return out, nil
}

func (r *FakeRepo) ExistsByName(name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.OriginalName == name {
			return true, nil
		}
	}
	return false, nil
}

func (r *FakeRepo) SetStatus(id string, st models.UploadStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", database.ErrNotFound, id)
	}
	rec.Status = st
	return nil
}

func (r *FakeRepo) Complete(id string, columns []string) error {
	if r.CompleteErr != nil {
		return r.CompleteErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", database.ErrNotFound, id)
	}
	rec.Columns = columns
	rec.Status = models.StatusCompleted
	return nil
}

func (r *FakeRepo) SetSizeBytes(id string, size int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", database.ErrNotFound, id)
	}
	rec.SizeBytes = size
	return nil
}

func (r *FakeRepo) Delete(id string) error {
	if r.DeleteErr != nil {
		return r.DeleteErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return fmt.Errorf("%w: %s", database.ErrNotFound, id)
	}
	delete(r.records, id)
	return nil
}

// FakeBlobs stores blobs in memory. OpenErr, when set, makes every Open
// fail; OpenCalls counts attempts either way.
type FakeBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte

	OpenErr   error
	SaveErr   error
	OpenCalls int
}

// NewFakeBlobs creates an empty blob store.
func NewFakeBlobs() *FakeBlobs {
	return &FakeBlobs{blobs: make(map[string][]byte)}
}

func (b *FakeBlobs) Save(id string, r io.Reader) (int64, error) {
	if b.SaveErr != nil {
		return 0, b.SaveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[id] = data
	return int64(len(data)), nil
}

func (b *FakeBlobs) Open(id string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.OpenCalls++
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	data, ok := b.blobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *FakeBlobs) Delete(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, id)
	return nil
}

func (b *FakeBlobs) Path(id string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.blobs[id]; !ok {
		return "", fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return "/fake/" + id, nil
}

// Bytes returns the stored blob, nil when absent.
func (b *FakeBlobs) Bytes(id string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blobs[id]
}

// FakeContent stores parsed row sets in memory.
type FakeContent struct {
	mu   sync.Mutex
	rows map[string][]models.Row

	PutErr error
}

// NewFakeContent creates an empty content store.
func NewFakeContent() *FakeContent {
	return &FakeContent{rows: make(map[string][]models.Row)}
}

func (c *FakeContent) Put(fileID string, rows []models.Row) error {
	if c.PutErr != nil {
		return c.PutErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[fileID] = rows
	return nil
}

func (c *FakeContent) RowCount(fileID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rows[fileID]), nil
}

func (c *FakeContent) Rows(fileID string, offset, limit int) ([]models.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows := c.rows[fileID]
	if offset >= len(rows) {
		return []models.Row{}, nil
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end], nil
}

func (c *FakeContent) AllRows(fileID string) ([]models.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows[fileID], nil
}

func (c *FakeContent) Delete(fileID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rows, fileID)
	return nil
}

// StatusWrite is one recorded status store mutation.
type StatusWrite struct {
	FileID   string
	Status   models.UploadStatus
	Progress int
}

// RecordingStatus implements status.Store and keeps every write in order.
type RecordingStatus struct {
	mu      sync.Mutex
	writes  []StatusWrite
	current map[string]status.Record
}

// NewRecordingStatus creates an empty recording store.
func NewRecordingStatus() *RecordingStatus {
	return &RecordingStatus{current: make(map[string]status.Record)}
}

func (s *RecordingStatus) Set(_ context.Context, fileID string, st models.UploadStatus, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes = append(s.writes, StatusWrite{FileID: fileID, Status: st, Progress: progress})
	s.current[fileID] = status.Record{Status: st, Progress: progress, UpdatedAt: time.Now().UTC()}
	return nil
}

func (s *RecordingStatus) Get(_ context.Context, fileID string) (status.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.current[fileID]
	return rec, ok, nil
}

// Writes returns a copy of the recorded mutations in order.
func (s *RecordingStatus) Writes() []StatusWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StatusWrite(nil), s.writes...)
}

// FakeFetcher returns canned lookup records or an error.
type FakeFetcher struct {
	Records []map[string]any
	Err     error
}

func (f *FakeFetcher) Fetch(_ context.Context, _ string) ([]map[string]any, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Records, nil
}
