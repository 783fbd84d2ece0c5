// Package table holds the headline table: CSV rows keyed by a stable row
// index, plus the prediction columns successive runs add to it.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/ppiankov/headcheck/internal/model"
)

// ErrColumnNotFound is returned when a named column is absent
var ErrColumnNotFound = errors.New("column not found")

// indexHeaders are the header names recognized as a leading index column.
// Files we write use an empty header; some tools relabel it on reload.
var indexHeaders = []string{"", "Unnamed: 0"}

// Table is an in-memory CSV table with a row index
type Table struct {
	columns []string
	index   []int
	rows    [][]string
	byIndex map[int]int // row index -> row position
}

// New creates an empty table with the given data columns
func New(columns ...string) *Table {
	return &Table{
		columns: slices.Clone(columns),
		byIndex: make(map[int]int),
	}
}

// Load reads a CSV file. A leading index column (empty header or
// "Unnamed: 0") supplies the row index; otherwise rows are indexed by position.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer func() { _ = f.Close() }()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// Read parses CSV from r (see Load). Bare quotes inside unquoted fields and a
// UTF-8 byte order mark on the header are accepted.
func Read(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("parse csv: missing header row")
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	hasIndex := len(header) > 0 && slices.Contains(indexHeaders, strings.TrimSpace(header[0]))

	start := 0
	if hasIndex {
		start = 1
	}

	t := New(header[start:]...)
	for pos, rec := range records[1:] {
		idx := pos
		if hasIndex {
			idx, err = strconv.Atoi(strings.TrimSpace(rec[0]))
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid index %q", pos+1, rec[0])
			}
		}
		if err := t.AppendRow(idx, rec[start:]); err != nil {
			return nil, fmt.Errorf("row %d: %w", pos+1, err)
		}
	}

	return t, nil
}

// AppendRow adds a row with the given index
func (t *Table) AppendRow(idx int, values []string) error {
	if _, dup := t.byIndex[idx]; dup {
		return fmt.Errorf("duplicate row index %d", idx)
	}
	if len(values) != len(t.columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.columns))
	}

	t.byIndex[idx] = len(t.rows)
	t.index = append(t.index, idx)
	t.rows = append(t.rows, slices.Clone(values))
	return nil
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Columns returns the data column names (index excluded)
func (t *Table) Columns() []string {
	return slices.Clone(t.columns)
}

// Indices returns the row indices in row order
func (t *Table) Indices() []int {
	return slices.Clone(t.index)
}

// HasColumn reports whether name is a data column
func (t *Table) HasColumn(name string) bool {
	return t.col(name) >= 0
}

// Value returns the cell at row index idx in column name
func (t *Table) Value(idx int, name string) (string, error) {
	c := t.col(name)
	if c < 0 {
		return "", fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	pos, ok := t.byIndex[idx]
	if !ok {
		return "", fmt.Errorf("row index %d not in table", idx)
	}
	return t.rows[pos][c], nil
}

// Float parses the cell at (idx, name). ok is false for an empty cell.
func (t *Table) Float(idx int, name string) (value float64, ok bool, err error) {
	raw, err := t.Value(idx, name)
	if err != nil {
		return 0, false, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, nil
	}
	value, err = strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("column %s row %d: %w", name, idx, err)
	}
	return value, true, nil
}

// NonEmpty returns the indices of rows whose cell in column name is set
func (t *Table) NonEmpty(name string) ([]int, error) {
	c := t.col(name)
	if c < 0 {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}

	var out []int
	for pos, row := range t.rows {
		if strings.TrimSpace(row[c]) != "" {
			out = append(out, t.index[pos])
		}
	}
	return out, nil
}

// SetColumn adds column name, or replaces it in place when it already exists.
// Rows absent from values get an empty cell.
func (t *Table) SetColumn(name string, values map[int]string) {
	c := t.col(name)
	if c < 0 {
		t.columns = append(t.columns, name)
		for pos := range t.rows {
			t.rows[pos] = append(t.rows[pos], "")
		}
		c = len(t.columns) - 1
	}

	for pos, idx := range t.index {
		t.rows[pos][c] = values[idx]
	}
}

// MergeColumns copies the named columns from src into t, aligned by row
// index. Existing columns of t are preserved; same-named columns are
// replaced. Rows of src with no counterpart in t are ignored.
func (t *Table) MergeColumns(src *Table, names ...string) error {
	for _, name := range names {
		c := src.col(name)
		if c < 0 {
			return fmt.Errorf("%w: %s", ErrColumnNotFound, name)
		}

		values := make(map[int]string, src.Len())
		for pos, idx := range src.index {
			values[idx] = src.rows[pos][c]
		}
		t.SetColumn(name, values)
	}
	return nil
}

// Clone returns a deep copy
func (t *Table) Clone() *Table {
	out := New(t.columns...)
	for pos, idx := range t.index {
		_ = out.AppendRow(idx, t.rows[pos])
	}
	return out
}

// Headlines extracts headline records using the given text and ground-truth
// columns. truthCol may be empty or absent, leaving Real nil.
func (t *Table) Headlines(textCol, truthCol string) ([]model.Headline, error) {
	tc := t.col(textCol)
	if tc < 0 {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, textCol)
	}
	rc := -1
	if truthCol != "" {
		rc = t.col(truthCol)
	}

	out := make([]model.Headline, 0, len(t.rows))
	for pos, row := range t.rows {
		h := model.Headline{Index: t.index[pos], Text: row[tc]}
		if rc >= 0 {
			if v, err := strconv.ParseFloat(strings.TrimSpace(row[rc]), 64); err == nil {
				truth := int(v)
				h.Real = &truth
			}
		}
		out = append(out, h)
	}
	return out, nil
}

// Write encodes the table as CSV with a leading, unnamed index column
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := append([]string{""}, t.columns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for pos, row := range t.rows {
		rec := append([]string{strconv.Itoa(t.index[pos])}, row...)
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", t.index[pos], err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Save writes the table to path, creating parent directories
func (t *Table) Save(path string) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create table file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close table file: %w", closeErr)
		}
	}()

	return t.Write(f)
}

func (t *Table) col(name string) int {
	return slices.Index(t.columns, name)
}

// FormatFloat renders a float so that parsing it back yields the same value
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
