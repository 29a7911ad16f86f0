// Package table defines the canonical columnar table shared by every league
// and dataset. All fetch methods ultimately produce one of these.
package table

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Context columns injected by normalization, never trusted from payloads.
const (
	ColLeague      = "LEAGUE"
	ColCompetition = "COMPETITION"
	ColSeason      = "SEASON"
)

// Row is a single record keyed by canonical column name. Missing and null
// cells are both represented as a nil value.
type Row map[string]any

// Table is an ordered set of columns plus rows. Row uniqueness on the
// dataset's key columns is enforced by the normalizer, not here.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// New creates an empty table with the given column order.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Append adds a row. Cells for columns the row does not mention stay nil.
func (t *Table) Append(r Row) {
	t.Rows = append(t.Rows, r)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// HasColumn reports whether the table declares the column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Select returns a copy of the table restricted to the given columns,
// preserving their requested order. Unknown columns fail.
func (t *Table) Select(columns []string) (*Table, error) {
	for _, c := range columns {
		if !t.HasColumn(c) {
			return nil, eris.Errorf("table: unknown column %q", c)
		}
	}
	out := New(columns...)
	for _, r := range t.Rows {
		nr := make(Row, len(columns))
		for _, c := range columns {
			nr[c] = r[c]
		}
		out.Append(nr)
	}
	return out, nil
}

// Head returns a copy limited to the first n rows. n <= 0 means no limit.
func (t *Table) Head(n int) *Table {
	if n <= 0 || n >= len(t.Rows) {
		return t
	}
	return &Table{Columns: t.Columns, Rows: t.Rows[:n]}
}

// KeyTuple renders the row's values for the given key columns as one
// deterministic string, used for uniqueness checks and merge addressing.
func KeyTuple(r Row, keys []string) string {
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(CellString(r[k]))
	}
	return b.String()
}

// NullCount returns how many of the table's columns are nil in the row.
func (t *Table) NullCount(r Row) int {
	n := 0
	for _, c := range t.Columns {
		if r[c] == nil {
			n++
		}
	}
	return n
}

// SortByKeys orders rows by their key tuple so identical logical tables
// serialize identically regardless of upstream ordering.
func (t *Table) SortByKeys(keys []string) {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		return KeyTuple(t.Rows[i], keys) < KeyTuple(t.Rows[j], keys)
	})
}

// CellString renders a cell value for key comparison and display.
func CellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Marshal encodes the table for durable storage.
func (t *Table) Marshal() ([]byte, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return nil, eris.Wrap(err, "table: marshal")
	}
	return b, nil
}

// Unmarshal decodes a table produced by Marshal.
func Unmarshal(data []byte) (*Table, error) {
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "table: unmarshal")
	}
	return &t, nil
}
