package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/csv-transformer/backend/internal/config"
	"github.com/csv-transformer/backend/internal/enrich"
	"github.com/csv-transformer/backend/internal/models"
	"github.com/csv-transformer/backend/internal/preview"
	"github.com/csv-transformer/backend/internal/storage"
	"github.com/csv-transformer/backend/internal/testutil"
)

type stubIngestor struct {
	enqueued []string
}

func (s *stubIngestor) Enqueue(fileID string) bool {
	s.enqueued = append(s.enqueued, fileID)
	return true
}

type apiFixture struct {
	e        *echo.Echo
	repo     *testutil.FakeRepo
	content  *testutil.FakeContent
	blobs    *storage.LocalStore
	statuses *testutil.RecordingStatus
	ingestor *stubIngestor
	fetcher  *testutil.FakeFetcher
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	entry := logrus.NewEntry(log)

	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	f := &apiFixture{
		repo:     testutil.NewFakeRepo(),
		content:  testutil.NewFakeContent(),
		blobs:    blobs,
		statuses: testutil.NewRecordingStatus(),
		ingestor: &stubIngestor{},
		fetcher:  &testutil.FakeFetcher{},
	}

	previewSvc := preview.NewService(f.repo, f.content, preview.DefaultTTL, entry)
	enricher := enrich.NewEngine(f.repo, f.content, f.blobs, f.fetcher, entry)

	f.e = echo.New()
	f.e.HTTPErrorHandler = ErrorHandler
	RegisterRoutes(f.e, NewHandlers(Dependencies{
		Repo:    f.repo,
		Blobs:   f.blobs,
		Content: f.content,
		Ingest:  f.ingestor,
		Preview: previewSvc,
		Enrich:  enricher,
		Status:  f.statuses,
		Rules:   config.DefaultUploadRules(),
		Version: "test",
		Log:     entry,
	}))
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func multipartUpload(t *testing.T, filename, content string) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()

	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func TestHandleUpload(t *testing.T) {
	f := newAPIFixture(t)
	body, contentType := multipartUpload(t, "orders.csv", "id,qty\n1,5\n")

	rec := f.do(t, http.MethodPost, "/api/files", body, contentType)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		ID            string `json:"id"`
		OriginalName  string `json:"originalName"`
		SizeBytes     int64  `json:"sizeBytes"`
		Status        string `json:"status"`
		SizeFormatted string `json:"sizeFormatted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "orders.csv", resp.OriginalName)
	assert.Equal(t, int64(11), resp.SizeBytes)
	assert.Equal(t, string(models.StatusPending), resp.Status)
	assert.Equal(t, "11.0 B", resp.SizeFormatted)

	// Processing was scheduled and the bytes were stored.
	assert.Equal(t, []string{resp.ID}, f.ingestor.enqueued)
	blob, err := f.blobs.Open(resp.ID)
	require.NoError(t, err)
	defer blob.Close()
	data, err := io.ReadAll(blob)
	require.NoError(t, err)
	assert.Equal(t, "id,qty\n1,5\n", string(data))
}

func TestHandleUpload_Validation(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		wantCode int
	}{
		{"wrong extension", "orders.txt", "id\n1\n", http.StatusBadRequest},
		{"empty file", "orders.csv", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t)
			body, contentType := multipartUpload(t, tt.filename, tt.content)

			rec := f.do(t, http.MethodPost, "/api/files", body, contentType)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
			assert.Empty(t, f.ingestor.enqueued)
		})
	}
}

func TestHandleUpload_MissingFileField(t *testing.T) {
	f := newAPIFixture(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("other", "value"))
	require.NoError(t, w.Close())

	rec := f.do(t, http.MethodPost, "/api/files", &buf, w.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUpload_DuplicateName(t *testing.T) {
	f := newAPIFixture(t)
	f.repo.Put(&models.FileRecord{ID: "existing", OriginalName: "orders.csv"})

	body, contentType := multipartUpload(t, "orders.csv", "id\n1\n")
	rec := f.do(t, http.MethodPost, "/api/files", body, contentType)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", decodeError(t, rec).Code)
}

func TestHandleList(t *testing.T) {
	f := newAPIFixture(t)
	f.repo.Put(&models.FileRecord{ID: "a", OriginalName: "a.csv", Status: models.StatusCompleted})
	f.repo.Put(&models.FileRecord{ID: "b", OriginalName: "b.csv", Status: models.StatusPending})

	rec := f.do(t, http.MethodGet, "/api/files", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
}

func TestHandleGet(t *testing.T) {
	f := newAPIFixture(t)
	f.repo.Put(&models.FileRecord{
		ID:           "f1",
		OriginalName: "orders.csv",
		Status:       models.StatusCompleted,
		Columns:      []string{"id", "qty"},
	})

	rec := f.do(t, http.MethodGet, "/api/files/f1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "orders.csv", resp["originalName"])
	assert.Equal(t, []any{"id", "qty"}, resp["columns"])
}

func TestHandleGet_NotFound(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/files/ghost", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)
}

func TestHandleDelete(t *testing.T) {
	f := newAPIFixture(t)
	f.repo.Put(&models.FileRecord{ID: "f1", OriginalName: "orders.csv"})
	_, err := f.blobs.Save("f1", strings.NewReader("id\n1\n"))
	require.NoError(t, err)
	require.NoError(t, f.content.Put("f1", []models.Row{{"id": "1"}}))

	rec := f.do(t, http.MethodDelete, "/api/files/f1", nil, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err = f.repo.GetByID("f1")
	assert.Error(t, err)
	_, err = f.blobs.Open("f1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	count, err := f.content.RowCount("f1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestHandleDelete_NotFound(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodDelete, "/api/files/ghost", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDownload(t *testing.T) {
	f := newAPIFixture(t)
	f.repo.Put(&models.FileRecord{ID: "f1", OriginalName: "orders.csv"})
	_, err := f.blobs.Save("f1", strings.NewReader("id,qty\n1,5\n"))
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/files/f1/download", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "id,qty\n1,5\n", rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "orders.csv")
}

func TestHandleDownload_MissingBlob(t *testing.T) {
	f := newAPIFixture(t)
	f.repo.Put(&models.FileRecord{ID: "f1", OriginalName: "orders.csv"})

	rec := f.do(t, http.MethodGet, "/api/files/f1/download", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleStatus(t *testing.T) {
	f := newAPIFixture(t)
	require.NoError(t, f.statuses.Set(context.Background(), "f1", models.StatusProcessing, 40))

	rec := f.do(t, http.MethodGet, "/api/files/f1/status", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(models.StatusProcessing), resp["status"])
	assert.Equal(t, float64(40), resp["progress"])
	assert.NotEmpty(t, resp["updatedAt"])
}

func TestHandleStatus_UnknownID(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/files/ghost/status", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(models.StatusUnknown), resp["status"])
	assert.Equal(t, float64(0), resp["progress"])
	assert.NotContains(t, resp, "updatedAt")
}

func seedPreviewFile(t *testing.T, f *apiFixture, rows int) {
	t.Helper()

	f.repo.Put(&models.FileRecord{
		ID:           "f1",
		OriginalName: "orders.csv",
		Status:       models.StatusCompleted,
		Columns:      []string{"id"},
	})
	set := make([]models.Row, 0, rows)
	for i := 0; i < rows; i++ {
		set = append(set, models.Row{"id": fmt.Sprint(i)})
	}
	require.NoError(t, f.content.Put("f1", set))
}

func TestHandlePreview(t *testing.T) {
	f := newAPIFixture(t)
	seedPreviewFile(t, f, 250)

	rec := f.do(t, http.MethodGet, "/api/files/f1/preview?page=3&page_size=100", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.PreviewPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 250, resp.RowCount)
	assert.Equal(t, 3, resp.CurrentPage)
	assert.Equal(t, 3, resp.TotalPages)
	assert.Len(t, resp.Rows, 50)
}

func TestHandlePreview_Defaults(t *testing.T) {
	f := newAPIFixture(t)
	seedPreviewFile(t, f, 10)

	rec := f.do(t, http.MethodGet, "/api/files/f1/preview", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.PreviewPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.CurrentPage)
	assert.Equal(t, 100, resp.PageSize)
}

func TestHandlePreview_InvalidParams(t *testing.T) {
	f := newAPIFixture(t)
	seedPreviewFile(t, f, 10)

	tests := []string{
		"/api/files/f1/preview?page=0",
		"/api/files/f1/preview?page=abc",
		"/api/files/f1/preview?page_size=0",
		"/api/files/f1/preview?page_size=-5",
	}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, path, nil, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandlePreview_UnknownFile(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/files/ghost/preview", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePreviewMsgpack(t *testing.T) {
	f := newAPIFixture(t)
	seedPreviewFile(t, f, 5)

	rec := f.do(t, http.MethodGet, "/api/files/f1/preview/msgpack?page=1&page_size=3", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))

	var page models.PreviewPage
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 5, page.RowCount)
	assert.Len(t, page.Rows, 3)

	// Repeated identical requests serve the identical cached payload.
	again := f.do(t, http.MethodGet, "/api/files/f1/preview/msgpack?page=1&page_size=3", nil, "")
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, rec.Body.Bytes(), again.Body.Bytes())
}

func TestHandleEnrich(t *testing.T) {
	f := newAPIFixture(t)
	f.repo.Put(&models.FileRecord{
		ID:           "f1",
		OriginalName: "orders.csv",
		Status:       models.StatusCompleted,
		Columns:      []string{"id", "qty"},
	})
	require.NoError(t, f.content.Put("f1", []models.Row{{"id": "1", "qty": "5"}}))
	f.fetcher.Records = []map[string]any{{"id": 1.0, "name": "bolt"}}

	body := `{"apiEndpoint":"http://lookup.example","fileKey":"id","apiKey":"id","enrichedFileName":"orders_enriched.csv"}`
	rec := f.do(t, http.MethodPost, "/api/files/f1/enrich", strings.NewReader(body), echo.MIMEApplicationJSON)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "orders_enriched.csv", resp["originalName"])
	assert.Equal(t, true, resp["isEnriched"])
	assert.Equal(t, "f1", resp["parentId"])
	assert.Equal(t, []any{"id", "qty", "name"}, resp["columns"])
}

func TestHandleEnrich_MissingFields(t *testing.T) {
	f := newAPIFixture(t)

	body := `{"apiEndpoint":"http://lookup.example"}`
	rec := f.do(t, http.MethodPost, "/api/files/f1/enrich", strings.NewReader(body), echo.MIMEApplicationJSON)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
}

func TestHandleEnrich_PreconditionFailure(t *testing.T) {
	f := newAPIFixture(t)
	f.repo.Put(&models.FileRecord{
		ID:           "f1",
		OriginalName: "orders.csv",
		Status:       models.StatusCompleted,
		Columns:      []string{"id"},
	})

	body := `{"apiEndpoint":"http://lookup.example","fileKey":"missing","apiKey":"id","enrichedFileName":"x.csv"}`
	rec := f.do(t, http.MethodPost, "/api/files/f1/enrich", strings.NewReader(body), echo.MIMEApplicationJSON)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PRECONDITION_FAILED", decodeError(t, rec).Code)
}

func TestHandleEnrich_ExternalDataFailure(t *testing.T) {
	f := newAPIFixture(t)
	f.repo.Put(&models.FileRecord{
		ID:           "f1",
		OriginalName: "orders.csv",
		Status:       models.StatusCompleted,
		Columns:      []string{"id"},
	})
	require.NoError(t, f.content.Put("f1", []models.Row{{"id": "1"}}))
	f.fetcher.Err = &enrich.ExternalDataError{Reason: "API response data is empty"}

	body := `{"apiEndpoint":"http://lookup.example","fileKey":"id","apiKey":"id","enrichedFileName":"x.csv"}`
	rec := f.do(t, http.MethodPost, "/api/files/f1/enrich", strings.NewReader(body), echo.MIMEApplicationJSON)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "EXTERNAL_DATA_ERROR", decodeError(t, rec).Code)
}

func TestHandleHealth(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "test", resp["version"])
}
