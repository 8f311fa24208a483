// Package survey holds numeric survey tables (one row per participant) and
// the derivations and descriptive statistics run over them.
package survey

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Options controls CSV parsing.
type Options struct {
	// MaxRows limits rows read; 0 means unlimited.
	MaxRows int
	// Delimiter for CSV. If 0, sniffed from the file name (.tsv is tab, else comma).
	Delimiter rune
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune
}

// Table is a column-major table of float columns. Missing or non-numeric
// cells are NaN.
type Table struct {
	Name    string
	columns []string
	data    [][]float64
	index   map[string]int
	rows    int
}

// NewTable returns an empty table with the given row count.
func NewTable(name string, rows int) *Table {
	return &Table{Name: name, index: map[string]int{}, rows: rows}
}

// Rows returns the number of rows.
func (t *Table) Rows() int { return t.rows }

// Columns returns the column names in order.
func (t *Table) Columns() []string { return append([]string(nil), t.columns...) }

// Has reports whether the column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the named column. The slice is shared with the table.
func (t *Table) Column(name string) ([]float64, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("column %q not found in %s", name, t.Name)
	}
	return t.data[i], nil
}

// AddColumn appends or replaces a column. Its length must match Rows.
func (t *Table) AddColumn(name string, vals []float64) error {
	if len(vals) != t.rows {
		return fmt.Errorf("column %q has %d values, table has %d rows", name, len(vals), t.rows)
	}
	if i, ok := t.index[name]; ok {
		t.data[i] = vals
		return nil
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, name)
	t.data = append(t.data, vals)
	return nil
}

// Rename renames columns present in the mapping; absent names are ignored.
func (t *Table) Rename(mapping map[string]string) error {
	for from, to := range mapping {
		i, ok := t.index[from]
		if !ok || from == to {
			continue
		}
		if _, clash := t.index[to]; clash {
			return fmt.Errorf("rename %q: column %q already exists", from, to)
		}
		delete(t.index, from)
		t.index[to] = i
		t.columns[i] = to
	}
	return nil
}

// Select returns the named columns aligned by row.
func (t *Table) Select(names ...string) ([][]float64, error) {
	out := make([][]float64, len(names))
	for i, n := range names {
		c, err := t.Column(n)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// CompleteCases returns copies of the named columns keeping only rows where
// every value is finite.
func (t *Table) CompleteCases(names ...string) ([][]float64, error) {
	cols, err := t.Select(names...)
	if err != nil {
		return nil, err
	}
	return CompleteCases(cols...), nil
}

// CompleteCases keeps the rows where every column is finite. Columns must
// share a length; shorter columns truncate the result.
func CompleteCases(cols ...[]float64) [][]float64 {
	if len(cols) == 0 {
		return nil
	}
	n := len(cols[0])
	for _, c := range cols[1:] {
		if len(c) < n {
			n = len(c)
		}
	}
	out := make([][]float64, len(cols))
	for j := range out {
		out[j] = make([]float64, 0, n)
	}
	for i := 0; i < n; i++ {
		ok := true
		for _, c := range cols {
			if math.IsNaN(c[i]) || math.IsInf(c[i], 0) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		for j, c := range cols {
			out[j] = append(out[j], c[i])
		}
	}
	return out
}

// ReadCSV loads a CSV file with a header row.
func ReadCSV(path string, opt Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(path)
	}
	opt.Delimiter = delim
	t, err := readCSV(f, opt)
	if err != nil {
		return nil, err
	}
	t.Name = filepath.Base(path)
	return t, nil
}

func readCSV(rd io.Reader, opt Options) (*Table, error) {
	r := csv.NewReader(rd)
	r.ReuseRecord = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	if opt.Delimiter != 0 {
		r.Comma = opt.Delimiter
	}

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return NewTable("", 0), nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	names := make([]string, len(header))
	seen := map[string]bool{}
	for i, h := range header {
		n := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if n == "" {
			n = fmt.Sprintf("col%d", i+1)
		}
		if seen[n] {
			return nil, fmt.Errorf("duplicate column %q", n)
		}
		seen[n] = true
		names[i] = n
	}

	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = math.MaxInt
	}
	cols := make([][]float64, len(names))
	rows := 0
	for rows < maxRows {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", rows+1, err)
		}
		for i := range cols {
			v := math.NaN()
			if i < len(rec) {
				if f, ok := parseNumeric(rec[i], opt); ok {
					v = f
				}
			}
			cols[i] = append(cols[i], v)
		}
		rows++
	}

	t := NewTable("", rows)
	for i, n := range names {
		if cols[i] == nil {
			cols[i] = []float64{}
		}
		if err := t.AddColumn(n, cols[i]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// missingCell is written for NaN so a row of missing values never becomes a
// blank line, which csv readers skip.
const missingCell = "NA"

// WriteCSV writes the table with a header row. NaN cells are written as NA.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(t.columns))
	for i := 0; i < t.rows; i++ {
		for j := range t.columns {
			if v := t.data[j][i]; math.IsNaN(v) {
				rec[j] = missingCell
			} else {
				rec[j] = FormatValue(v)
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the table to path.
func (t *Table) WriteCSVFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// FormatValue renders a cell; NaN becomes the empty string.
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Merge left-joins right onto left by key. Rows of left without a match get
// NaN in right's columns; for duplicate keys in right the first row wins.
func Merge(left, right *Table, key string) (*Table, error) {
	lk, err := left.Column(key)
	if err != nil {
		return nil, err
	}
	rk, err := right.Column(key)
	if err != nil {
		return nil, err
	}
	pos := make(map[float64]int, len(rk))
	for i, k := range rk {
		if math.IsNaN(k) {
			continue
		}
		if _, dup := pos[k]; !dup {
			pos[k] = i
		}
	}

	out := NewTable(left.Name, left.rows)
	for i, n := range left.columns {
		if err := out.AddColumn(n, append([]float64(nil), left.data[i]...)); err != nil {
			return nil, err
		}
	}
	for j, n := range right.columns {
		if n == key {
			continue
		}
		if out.Has(n) {
			return nil, fmt.Errorf("column %q present in both %s and %s", n, left.Name, right.Name)
		}
		col := make([]float64, left.rows)
		for i, k := range lk {
			if r, ok := pos[k]; ok {
				col[i] = right.data[j][r]
			} else {
				col[i] = math.NaN()
			}
		}
		if err := out.AddColumn(n, col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func sniffDelimiter(path string) rune {
	name := strings.ToLower(path)
	if strings.HasSuffix(name, ".tsv") {
		return '\t'
	}
	return ','
}

var missingTokens = map[string]bool{"": true, "na": true, "nan": true, "null": true, ".": true}

func parseNumeric(s string, opt Options) (float64, bool) {
	raw := strings.TrimSpace(strings.ReplaceAll(s, "\u00A0", " "))
	if missingTokens[strings.ToLower(raw)] {
		return 0, false
	}
	dec := opt.DecimalSeparator
	thou := opt.ThousandsSeparator
	if dec == 0 {
		cpos := strings.LastIndex(raw, ",")
		dpos := strings.LastIndex(raw, ".")
		switch {
		case cpos >= 0 && dpos >= 0:
			if cpos > dpos {
				dec, thou = ',', '.'
			} else {
				dec, thou = '.', ','
			}
		case cpos >= 0:
			dec = ','
		default:
			dec = '.'
		}
	}
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
