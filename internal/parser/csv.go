// Package parser decodes and encodes comma-delimited tabular files.
package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/csv-transformer/backend/internal/models"
)

// ErrMissingHeader is returned when the input has no header row.
var ErrMissingHeader = errors.New("csv input has no header row")

// RowReader lazily decodes a UTF-8 CSV stream into ordered row mappings.
// The header row is consumed on construction; rows are produced one at a
// time by Next in a single pass. A RowReader is not restartable.
type RowReader struct {
	r       *csv.Reader
	columns []string
}

// NewRowReader reads the header row and prepares the reader for row
// iteration. Structural problems (missing header, malformed quoting)
// surface as errors.
func NewRowReader(r io.Reader) (*RowReader, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingHeader
		}
		return nil, fmt.Errorf("reading header row: %w", err)
	}

	columns := make([]string, len(header))
	copy(columns, header)

	return &RowReader{r: cr, columns: columns}, nil
}

// Columns returns the header row, order preserved.
func (r *RowReader) Columns() []string {
	return r.columns
}

// Next returns the next row keyed by column name, or io.EOF when the
// input is exhausted. Rows with a field count differing from the header
// are structurally invalid and returned as errors.
func (r *RowReader) Next() (models.Row, error) {
	record, err := r.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading row: %w", err)
	}

	row := make(models.Row, len(r.columns))
	for i, col := range r.columns {
		row[col] = record[i]
	}
	return row, nil
}

// ReadAll drains the reader into a slice, preserving row order.
func (r *RowReader) ReadAll() ([]models.Row, error) {
	var rows []models.Row
	for {
		row, err := r.Next()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

// Encode renders columns and rows back into CSV bytes. Missing and nil
// values become empty cells.
func Encode(columns []string, rows []models.Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = FormatValue(row[col])
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("writing row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing csv: %w", err)
	}
	return buf.Bytes(), nil
}

// FormatValue renders a cell value for CSV output or key matching.
// Floats use the shortest representation that round-trips, so 20.50
// normalizes to 20.5.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
