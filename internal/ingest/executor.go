// Package ingest drives the asynchronous parsing lifecycle of uploaded
// files: bounded retries, progress reporting, and terminal status writes.
package ingest

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/csv-transformer/backend/internal/database"
	"github.com/csv-transformer/backend/internal/models"
	"github.com/csv-transformer/backend/internal/parser"
	"github.com/csv-transformer/backend/internal/status"
	"github.com/csv-transformer/backend/internal/storage"
)

// Policy bounds the retry behavior of the executor.
type Policy struct {
	// MaxAttempts is the total number of processing attempts per file,
	// the first attempt included.
	MaxAttempts int

	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration

	// ProgressEvery is the row interval between status-store progress
	// writes.
	ProgressEvery int
}

// DefaultPolicy matches the production retry budget: three attempts with
// a fixed 60-second delay, progress reported every 1000 rows.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		RetryDelay:    60 * time.Second,
		ProgressEvery: 1000,
	}
}

// FileRepository is the slice of the metadata repository the executor
// needs.
type FileRepository interface {
	GetByID(id string) (*models.FileRecord, error)
	SetStatus(id string, st models.UploadStatus) error
	Complete(id string, columns []string) error
}

// ContentWriter stores a file's parsed rows.
type ContentWriter interface {
	Put(fileID string, rows []models.Row) error
}

// BlobOpener reads a file's raw bytes.
type BlobOpener interface {
	Open(id string) (io.ReadCloser, error)
}

// Executor owns the asynchronous lifecycle of parsing one file. All
// collaborators are injected at construction; there is no runtime
// registry lookup.
type Executor struct {
	repo    FileRepository
	content ContentWriter
	blobs   BlobOpener
	status  status.Store
	policy  Policy
	log     *logrus.Entry

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

// NewExecutor wires an executor with its collaborators.
func NewExecutor(repo FileRepository, content ContentWriter, blobs BlobOpener, st status.Store, policy Policy, log *logrus.Entry) *Executor {
	return &Executor{
		repo:     repo,
		content:  content,
		blobs:    blobs,
		status:   st,
		policy:   policy,
		log:      log,
		inFlight: make(map[string]struct{}),
	}
}

// Enqueue schedules processing of fileID on a background goroutine and
// returns immediately. Only one in-flight run per file id is allowed;
// a second concurrent enqueue is rejected.
func (e *Executor) Enqueue(fileID string) bool {
	e.mu.Lock()
	if _, busy := e.inFlight[fileID]; busy {
		e.mu.Unlock()
		e.log.WithField("file_id", fileID).Warn("processing already in flight, enqueue rejected")
		return false
	}
	e.inFlight[fileID] = struct{}{}
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.inFlight, fileID)
			e.mu.Unlock()
		}()
		e.run(fileID)
	}()
	return true
}

// Wait blocks until all in-flight runs finish. Used on shutdown and in
// tests.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// run drives the attempt loop. No error escapes: NotFound ends the task
// silently, anything else is retried up to the policy budget and then
// recorded as a terminal failure.
func (e *Executor) run(fileID string) {
	ctx := context.Background()
	log := e.log.WithField("file_id", fileID)

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		err := e.attempt(ctx, fileID)
		if err == nil {
			log.WithField("attempt", attempt).Info("file processed")
			return
		}

		if errors.Is(err, database.ErrNotFound) || errors.Is(err, storage.ErrNotFound) {
			// The file vanished; there is nothing left to mutate.
			log.WithError(err).Warn("file disappeared during processing")
			return
		}

		log.WithError(err).WithField("attempt", attempt).Error("processing failed")

		if setErr := e.repo.SetStatus(fileID, models.StatusFailed); setErr != nil {
			log.WithError(setErr).Warn("marking file record failed")
		}
		if setErr := e.status.Set(ctx, fileID, models.StatusFailed, 0); setErr != nil {
			log.WithError(setErr).Warn("writing failed status")
		}

		if attempt < e.policy.MaxAttempts {
			time.Sleep(e.policy.RetryDelay)
			continue
		}

		if setErr := e.status.Set(ctx, fileID, models.StatusFailed, 0); setErr != nil {
			log.WithError(setErr).Warn("writing terminal failed status")
		}
		log.Error("retry budget exhausted, file failed permanently")
	}
}

// attempt performs one full parse of the file. Progress writes are best
// effort: the ratio of rows consumed to declared byte size is an
// approximation, useful only as a monotonic signal.
func (e *Executor) attempt(ctx context.Context, fileID string) error {
	rec, err := e.repo.GetByID(fileID)
	if err != nil {
		return err
	}

	if err := e.status.Set(ctx, fileID, models.StatusProcessing, 0); err != nil {
		e.log.WithError(err).WithField("file_id", fileID).Warn("writing processing status")
	}

	blob, err := e.blobs.Open(fileID)
	if err != nil {
		return err
	}
	defer blob.Close()

	reader, err := parser.NewRowReader(blob)
	if err != nil {
		return err
	}

	var rows []models.Row
	for {
		row, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		rows = append(rows, row)

		if e.policy.ProgressEvery > 0 && len(rows)%e.policy.ProgressEvery == 0 {
			e.reportProgress(ctx, fileID, len(rows), rec.SizeBytes)
		}
	}

	if err := e.content.Put(fileID, rows); err != nil {
		return err
	}
	if err := e.repo.Complete(fileID, reader.Columns()); err != nil {
		return err
	}
	if err := e.status.Set(ctx, fileID, models.StatusCompleted, 100); err != nil {
		e.log.WithError(err).WithField("file_id", fileID).Warn("writing completed status")
	}
	return nil
}

func (e *Executor) reportProgress(ctx context.Context, fileID string, rowsConsumed int, sizeBytes int64) {
	if sizeBytes <= 0 {
		return
	}
	progress := int(int64(rowsConsumed) * 100 / sizeBytes)
	if progress > 100 {
		progress = 100
	}
	if err := e.status.Set(ctx, fileID, models.StatusProcessing, progress); err != nil {
		e.log.WithError(err).WithField("file_id", fileID).Warn("writing progress")
	}
}
