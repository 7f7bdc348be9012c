package status

import (
	"context"
	"sync"
	"time"

	"github.com/csv-transformer/backend/internal/models"
)

// MemoryStore is a process-local Store. It is the default when no Redis
// host is configured, and the implementation used by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record

	// now is overridable in tests.
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory status store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, fileID string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[fileID]
	return rec, ok, nil
}

// Set implements Store. The previous record for fileID is replaced
// wholesale.
func (s *MemoryStore) Set(_ context.Context, fileID string, st models.UploadStatus, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[fileID] = Record{
		Status:    st,
		Progress:  progress,
		UpdatedAt: s.now(),
	}
	return nil
}
