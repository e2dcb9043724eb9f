package featureio

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// maxFileSize bounds feature files read by Load.
const maxFileSize = 64 * 1024 * 1024 // 64MB

var (
	// ErrEmptyTable reports a file with no feature columns.
	ErrEmptyTable = errors.New("feature table has no columns")
	// ErrRaggedTable reports columns of different lengths.
	ErrRaggedTable = errors.New("feature columns have different lengths")
)

// Table holds aligned feature columns, one Series per name.
type Table struct {
	Names   []string
	Columns []Series
}

// Frames returns the number of frames, or 0 for an empty table.
func (t *Table) Frames() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0])
}

// Column returns the series for name.
func (t *Table) Column(name string) (Series, bool) {
	for i, n := range t.Names {
		if n == name {
			return t.Columns[i], true
		}
	}
	return nil, false
}

// Select returns a table restricted to names, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	out := &Table{}
	for _, n := range names {
		col, ok := t.Column(n)
		if !ok {
			return nil, fmt.Errorf("unknown feature %q", n)
		}
		out.Names = append(out.Names, n)
		out.Columns = append(out.Columns, col)
	}
	return out, nil
}

func (t *Table) validate() error {
	if len(t.Names) == 0 {
		return ErrEmptyTable
	}
	seen := make(map[string]bool, len(t.Names))
	for i, n := range t.Names {
		if n == "" {
			return fmt.Errorf("feature %d has an empty name", i)
		}
		if seen[n] {
			return fmt.Errorf("duplicate feature %q", n)
		}
		seen[n] = true
		if len(t.Columns[i]) != len(t.Columns[0]) {
			return fmt.Errorf("%w: %q has %d frames, %q has %d", ErrRaggedTable,
				n, len(t.Columns[i]), t.Names[0], len(t.Columns[0]))
		}
	}
	return nil
}

// ReadCSV parses a header row of feature names followed by one row of
// values per frame.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyTable
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	t := &Table{Names: make([]string, len(header)), Columns: make([]Series, len(header))}
	for i, h := range header {
		t.Names[i] = strings.TrimSpace(h)
	}

	for row := 1; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// csv.ErrFieldCount covers ragged rows.
			return nil, fmt.Errorf("read csv row %d: %w", row, err)
		}
		for i, cell := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("csv row %d column %q: %w", row, t.Names[i], err)
			}
			t.Columns[i] = append(t.Columns[i], v)
		}
	}

	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// WriteCSV writes t in the format ReadCSV accepts.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names); err != nil {
		return err
	}
	rec := make([]string, len(t.Columns))
	for f := 0; f < t.Frames(); f++ {
		for i, col := range t.Columns {
			rec[i] = strconv.FormatFloat(col[f], 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// jsonTable is the on-disk JSON layout. Order fixes the column order;
// without it columns are sorted by name.
type jsonTable struct {
	Order    []string             `json:"order,omitempty"`
	Features map[string][]float64 `json:"features"`
}

// ReadJSON parses {"order": [...], "features": {"name": [values...]}}.
func ReadJSON(r io.Reader) (*Table, error) {
	var jt jsonTable
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&jt); err != nil {
		return nil, fmt.Errorf("decode feature json: %w", err)
	}

	names := jt.Order
	if len(names) == 0 {
		for n := range jt.Features {
			names = append(names, n)
		}
		sort.Strings(names)
	} else if len(names) != len(jt.Features) {
		return nil, fmt.Errorf("order lists %d features, file has %d", len(names), len(jt.Features))
	}

	t := &Table{}
	for _, n := range names {
		col, ok := jt.Features[n]
		if !ok {
			return nil, fmt.Errorf("order names unknown feature %q", n)
		}
		t.Names = append(t.Names, n)
		t.Columns = append(t.Columns, Series(col))
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load reads a feature table from a .csv or .json file.
func Load(path string) (*Table, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".csv" && ext != ".json" {
		return nil, fmt.Errorf("feature file must have .csv or .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat feature file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("feature file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature file: %w", err)
	}
	defer f.Close()

	if ext == ".csv" {
		return ReadCSV(f)
	}
	return ReadJSON(f)
}
