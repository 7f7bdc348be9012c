// Package enrich widens a completed file's rows with columns fetched
// from an external lookup source, joined on a shared key.
package enrich

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/csv-transformer/backend/internal/models"
	"github.com/csv-transformer/backend/internal/parser"
)

// flattenSeparator joins nested lookup keys, e.g. "specs.weight" becomes
// "specs_weight".
const flattenSeparator = "_"

// Input carries the parameters of one enrichment request.
type Input struct {
	APIEndpoint      string `json:"apiEndpoint"`
	FileKey          string `json:"fileKey"`
	APIKey           string `json:"apiKey"`
	EnrichedFileName string `json:"enrichedFileName"`
}

// FileRepository is the slice of the metadata repository the engine needs.
type FileRepository interface {
	GetByID(id string) (*models.FileRecord, error)
	ExistsByName(name string) (bool, error)
	Create(rec *models.FileRecord) error
	SetSizeBytes(id string, size int64) error
	Delete(id string) error
}

// ContentStore reads and writes materialized row sets.
type ContentStore interface {
	AllRows(fileID string) ([]models.Row, error)
	Put(fileID string, rows []models.Row) error
	Delete(fileID string) error
}

// BlobStore materializes and removes raw CSV bytes.
type BlobStore interface {
	Save(id string, r io.Reader) (int64, error)
	Delete(id string) error
}

// Fetcher retrieves lookup records from an endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string) ([]map[string]any, error)
}

// Engine performs the enrichment merge. It runs synchronously within the
// triggering request; the only blocking external call is the lookup fetch.
type Engine struct {
	repo    FileRepository
	content ContentStore
	blobs   BlobStore
	lookup  Fetcher
	log     *logrus.Entry
}

// NewEngine wires an engine with its collaborators.
func NewEngine(repo FileRepository, content ContentStore, blobs BlobStore, lookup Fetcher, log *logrus.Entry) *Engine {
	return &Engine{
		repo:    repo,
		content: content,
		blobs:   blobs,
		lookup:  lookup,
		log:     log,
	}
}

// EnrichFile produces a new, wider file from the source file and the
// external lookup. The merged rows and schema are computed entirely in
// memory first; if anything fails after the enriched FileRecord was
// created, the record is deleted again so no caller ever observes an
// enriched file without content.
func (e *Engine) EnrichFile(ctx context.Context, fileID string, in Input) (*models.FileRecord, error) {
	src, err := e.repo.GetByID(fileID)
	if err != nil {
		return nil, err
	}

	if err := e.checkPreconditions(src, in); err != nil {
		return nil, err
	}

	records, err := e.lookup.Fetch(ctx, in.APIEndpoint)
	if err != nil {
		return nil, err
	}
	if _, ok := records[0][in.APIKey]; !ok {
		return nil, &ExternalDataError{
			Reason: fmt.Sprintf("API response data must contain the key %q", in.APIKey),
		}
	}

	flattened := make([]map[string]any, len(records))
	for i, rec := range records {
		flattened[i] = Flatten(rec, flattenSeparator)
	}

	table, err := buildLookupTable(flattened, in.APIKey)
	if err != nil {
		return nil, err
	}

	apiColumns := collectAPIColumns(flattened, in.APIKey, in.FileKey, src.Columns)
	allColumns := unionColumns(src.Columns, apiColumns)

	srcRows, err := e.content.AllRows(fileID)
	if err != nil {
		return nil, err
	}

	merged := mergeRows(srcRows, src.Columns, apiColumns, allColumns, in.FileKey, table)

	csvBytes, err := parser.Encode(allColumns, merged)
	if err != nil {
		return nil, err
	}

	enriched := &models.FileRecord{
		OriginalName: in.EnrichedFileName,
		SizeBytes:    0,
		Status:       models.StatusCompleted,
		IsEnriched:   true,
		ParentID:     &src.ID,
		Columns:      allColumns,
	}
	if err := e.repo.Create(enriched); err != nil {
		return nil, err
	}

	if err := e.materialize(enriched, csvBytes, merged); err != nil {
		e.compensate(enriched.ID)
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"source_id":   src.ID,
		"enriched_id": enriched.ID,
		"rows":        len(merged),
		"columns":     len(allColumns),
	}).Info("file enriched")

	return enriched, nil
}

func (e *Engine) checkPreconditions(src *models.FileRecord, in Input) error {
	if !strings.HasSuffix(in.EnrichedFileName, ".csv") {
		return &PreconditionError{Reason: "file name must end with .csv"}
	}

	exists, err := e.repo.ExistsByName(in.EnrichedFileName)
	if err != nil {
		return err
	}
	if exists {
		return &PreconditionError{Reason: "a file with this name already exists"}
	}

	if len(src.Columns) == 0 {
		return &PreconditionError{Reason: "file has no parsed columns"}
	}
	if !slices.Contains(src.Columns, in.FileKey) {
		return &PreconditionError{
			Reason: fmt.Sprintf("column %q not found in file columns", in.FileKey),
		}
	}
	return nil
}

// materialize writes the enriched file's bytes and rows. Runs after the
// FileRecord exists, so every failure path must be compensated.
func (e *Engine) materialize(rec *models.FileRecord, csvBytes []byte, rows []models.Row) error {
	size, err := e.blobs.Save(rec.ID, bytes.NewReader(csvBytes))
	if err != nil {
		return err
	}
	if err := e.repo.SetSizeBytes(rec.ID, size); err != nil {
		return err
	}
	rec.SizeBytes = size

	return e.content.Put(rec.ID, rows)
}

// compensate removes the partially created enriched file. Cleanup
// failures are logged, never surfaced, so the caller always sees the
// original error.
func (e *Engine) compensate(id string) {
	log := e.log.WithField("enriched_id", id)
	if err := e.blobs.Delete(id); err != nil {
		log.WithError(err).Warn("removing enriched file bytes")
	}
	if err := e.content.Delete(id); err != nil {
		log.WithError(err).Warn("removing enriched file content")
	}
	if err := e.repo.Delete(id); err != nil {
		log.WithError(err).Warn("removing enriched file record")
	}
}

// buildLookupTable indexes flattened records by the string form of their
// key field. Later records win on key collision.
func buildLookupTable(records []map[string]any, apiKey string) (map[string]map[string]any, error) {
	table := make(map[string]map[string]any, len(records))
	for _, rec := range records {
		v, ok := rec[apiKey]
		if !ok {
			return nil, &ExternalDataError{
				Reason: fmt.Sprintf("lookup record missing the key %q", apiKey),
			}
		}
		table[parser.FormatValue(v)] = rec
	}
	return table, nil
}

// collectAPIColumns gathers every distinct flattened key across the
// lookup records, trimmed of surrounding whitespace. The key column
// itself is skipped when the join column already exists in the source
// schema, so the union never carries a duplicate join key.
func collectAPIColumns(records []map[string]any, apiKey, fileKey string, fileColumns []string) []string {
	skipKey := slices.Contains(fileColumns, fileKey)

	seen := make(map[string]struct{})
	for _, rec := range records {
		for key := range rec {
			if key == apiKey && skipKey {
				continue
			}
			trimmed := strings.TrimSpace(key)
			if trimmed == "" {
				continue
			}
			seen[trimmed] = struct{}{}
		}
	}

	columns := make([]string, 0, len(seen))
	for col := range seen {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}

// unionColumns appends the lookup columns that are not already part of
// the source schema. Source column order is preserved.
func unionColumns(fileColumns, apiColumns []string) []string {
	all := make([]string, len(fileColumns), len(fileColumns)+len(apiColumns))
	copy(all, fileColumns)
	for _, col := range apiColumns {
		if !slices.Contains(fileColumns, col) {
			all = append(all, col)
		}
	}
	return all
}

// mergeRows builds the widened row set. Every output row starts with all
// unioned columns set to nil, source values are copied over, and on a
// key match the lookup values overlay the row. Rows without a match keep
// their nils; no row is dropped.
func mergeRows(srcRows []models.Row, fileColumns, apiColumns, allColumns []string, fileKey string, table map[string]map[string]any) []models.Row {
	merged := make([]models.Row, 0, len(srcRows))
	for _, src := range srcRows {
		row := make(models.Row, len(allColumns))
		for _, col := range allColumns {
			row[col] = nil
		}
		for _, col := range fileColumns {
			row[col] = src[col]
		}

		key := parser.FormatValue(src[fileKey])
		if match, ok := table[key]; ok {
			for _, col := range apiColumns {
				if v, ok := match[col]; ok {
					row[col] = v
				}
			}
		}
		merged = append(merged, row)
	}
	return merged
}
