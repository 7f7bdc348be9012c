package preview

import (
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csv-transformer/backend/internal/database"
	"github.com/csv-transformer/backend/internal/models"
	"github.com/csv-transformer/backend/internal/testutil"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

func newFixture(t *testing.T, rowCount int) (*Service, *testutil.FakeRepo, *testutil.FakeContent) {
	t.Helper()

	repo := testutil.NewFakeRepo()
	repo.Put(&models.FileRecord{
		ID:           "f1",
		OriginalName: "f1.csv",
		Status:       models.StatusCompleted,
		Columns:      []string{"id", "name"},
	})

	rows := make([]models.Row, 0, rowCount)
	for i := 0; i < rowCount; i++ {
		rows = append(rows, models.Row{"id": fmt.Sprint(i), "name": fmt.Sprintf("row-%d", i)})
	}
	content := testutil.NewFakeContent()
	require.NoError(t, content.Put("f1", rows))

	return NewService(repo, content, DefaultTTL, testLogger()), repo, content
}

func TestService_Page_Pagination(t *testing.T) {
	svc, _, _ := newFixture(t, 250)

	tests := []struct {
		name       string
		page       int
		wantRows   int
		wantFirst  string
		totalPages int
	}{
		{"first page full", 1, 100, "0", 3},
		{"middle page full", 2, 100, "100", 3},
		{"last page partial", 3, 50, "200", 3},
		{"past the end", 4, 0, "", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.Page("f1", tt.page, 100)
			require.NoError(t, err)

			assert.Equal(t, []string{"id", "name"}, page.Columns)
			assert.Equal(t, 250, page.RowCount)
			assert.Equal(t, tt.page, page.CurrentPage)
			assert.Equal(t, 100, page.PageSize)
			assert.Equal(t, tt.totalPages, page.TotalPages)
			require.Len(t, page.Rows, tt.wantRows)
			if tt.wantRows > 0 {
				assert.Equal(t, tt.wantFirst, page.Rows[0]["id"])
			}
		})
	}
}

func TestService_Page_TotalPagesRoundsUp(t *testing.T) {
	svc, _, _ := newFixture(t, 101)

	page, err := svc.Page("f1", 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalPages)
}

func TestService_PagePayload_CachesIdenticalRequests(t *testing.T) {
	svc, _, _ := newFixture(t, 10)

	first, err := svc.PagePayload("f1", 1, 5)
	require.NoError(t, err)
	second, err := svc.PagePayload("f1", 1, 5)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), svc.Computations())

	// A different page size is a different cache entry.
	_, err = svc.PagePayload("f1", 1, 6)
	require.NoError(t, err)
	assert.Equal(t, int64(2), svc.Computations())
}

func TestService_PagePayload_ExpiresAfterTTL(t *testing.T) {
	svc, _, _ := newFixture(t, 10)

	current := time.Now()
	svc.cache.now = func() time.Time { return current }

	_, err := svc.PagePayload("f1", 1, 5)
	require.NoError(t, err)
	require.Equal(t, int64(1), svc.Computations())

	// Just inside the window: still a hit.
	current = current.Add(DefaultTTL - time.Second)
	_, err = svc.PagePayload("f1", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), svc.Computations())

	// Past the window: recomputed.
	current = current.Add(2 * time.Second)
	_, err = svc.PagePayload("f1", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), svc.Computations())
}

func TestService_PurgeExpired(t *testing.T) {
	svc, _, _ := newFixture(t, 10)

	current := time.Now()
	svc.cache.now = func() time.Time { return current }

	_, err := svc.PagePayload("f1", 1, 5)
	require.NoError(t, err)
	_, err = svc.PagePayload("f1", 2, 5)
	require.NoError(t, err)
	require.Equal(t, 2, svc.cache.len())

	current = current.Add(DefaultTTL + time.Second)
	svc.PurgeExpired()
	assert.Equal(t, 0, svc.cache.len())
}

func TestService_Page_UnknownFile(t *testing.T) {
	svc, _, _ := newFixture(t, 10)

	_, err := svc.Page("ghost", 1, 100)
	assert.ErrorIs(t, err, database.ErrNotFound)
}
