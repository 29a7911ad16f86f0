// Package normalize maps raw per-method payloads into the canonical table
// shape a dataset declares. Upstreams disagree about field names, number
// formatting and duplicate rows; everything downstream of this package sees
// one shape per dataset regardless of which method produced the payload.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/hooplens/courtsource/internal/table"
)

// Type declares the coercion applied to one canonical column.
type Type string

const (
	TypeString Type = "string"
	TypeInt    Type = "int"
	TypeFloat  Type = "float"
	TypeDate   Type = "date"
	TypeBool   Type = "bool"
)

// Derived declares a ratio column computed from two canonical columns. The
// ratio is only computed when the denominator is positive; otherwise the
// cell stays null rather than pretending 0/0 means anything.
type Derived struct {
	Column      string
	Numerator   string
	Denominator string
}

// Schema describes how one source's payload maps onto a dataset's canonical
// table. One schema per dataset is usually enough; sources with exotic field
// names get their own rename entries.
type Schema struct {
	Dataset string
	// Columns is the canonical column order, context columns excluded.
	Columns []string
	// Keys are the dataset's unique-row key columns.
	Keys []string
	// Rename maps source field names (matched case-insensitively) to
	// canonical columns. Source fields already matching a canonical column
	// name need no entry.
	Rename map[string]string
	// Types declares coercion per canonical column; unlisted columns pass
	// through untouched.
	Types map[string]Type
	// Derived columns are computed after coercion.
	Derived []Derived
	// Required lists columns that must be populated beyond the keys.
	Required []string
}

// Context carries the request-scoped constants injected into every row.
// They are never trusted from the payload.
type Context struct {
	League      string
	Competition string
	Season      string
}

// SchemaMismatchError reports a payload that cannot fill the dataset's
// required columns. The orchestrator treats it as fatal for the producing
// method and advances the chain.
type SchemaMismatchError struct {
	Dataset string
	Column  string
	Reason  string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("normalize: %s column %s: %s", e.Dataset, e.Column, e.Reason)
}

// dateLayouts are tried in order when coercing textual dates. Upstream sites
// are wildly inconsistent here.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"02.01.2006",
	"Jan 2, 2006",
}

// nullTokens are textual cells that mean "no value" upstream.
var nullTokens = map[string]bool{
	"": true, "-": true, "--": true, "n/a": true, "na": true, "null": true,
}

// Build converts raw rows into the dataset's canonical table: rename,
// coerce, inject context, compute derived columns, enforce key presence,
// merge duplicate key tuples and sort. The result is deterministic for a
// given input regardless of upstream row order.
func Build(raw []map[string]any, schema Schema, ctx Context) (*table.Table, error) {
	if len(schema.Keys) == 0 {
		return nil, &SchemaMismatchError{Dataset: schema.Dataset, Column: "(keys)", Reason: "schema declares no key columns"}
	}

	columns := make([]string, 0, len(schema.Columns)+3)
	columns = append(columns, table.ColLeague, table.ColCompetition, table.ColSeason)
	for _, c := range schema.Columns {
		if c == table.ColLeague || c == table.ColCompetition || c == table.ColSeason {
			continue
		}
		columns = append(columns, c)
	}
	out := table.New(columns...)

	rename := foldedRename(schema)
	keySet := make(map[string]bool, len(schema.Keys))
	for _, k := range schema.Keys {
		keySet[k] = true
	}

	for _, src := range raw {
		row := make(table.Row, len(columns))

		for field, v := range src {
			canon, ok := rename[strings.ToUpper(strings.TrimSpace(field))]
			if !ok {
				continue
			}
			cell, err := coerce(v, schema.Types[canon])
			if err != nil {
				if keySet[canon] {
					return nil, &SchemaMismatchError{
						Dataset: schema.Dataset,
						Column:  canon,
						Reason:  err.Error(),
					}
				}
				cell = nil
			}
			if s, isStr := cell.(string); isStr && keySet[canon] {
				cell = foldText(s)
			}
			row[canon] = cell
		}

		row[table.ColLeague] = ctx.League
		row[table.ColCompetition] = ctx.Competition
		row[table.ColSeason] = ctx.Season

		for _, d := range schema.Derived {
			row[d.Column] = ratio(row[d.Numerator], row[d.Denominator])
		}

		for _, k := range schema.Keys {
			if row[k] == nil {
				return nil, &SchemaMismatchError{
					Dataset: schema.Dataset,
					Column:  k,
					Reason:  "key column missing from payload",
				}
			}
		}
		for _, r := range schema.Required {
			if row[r] == nil {
				return nil, &SchemaMismatchError{
					Dataset: schema.Dataset,
					Column:  r,
					Reason:  "required column missing from payload",
				}
			}
		}

		out.Append(row)
	}

	mergeDuplicates(out, schema.Keys)
	out.SortByKeys(schema.Keys)
	return out, nil
}

// foldedRename builds the case-folded source-field lookup: canonical columns
// map to themselves, explicit renames layered on top.
func foldedRename(schema Schema) map[string]string {
	m := make(map[string]string, len(schema.Columns)+len(schema.Rename))
	for _, c := range schema.Columns {
		m[strings.ToUpper(c)] = c
	}
	for from, to := range schema.Rename {
		m[strings.ToUpper(strings.TrimSpace(from))] = to
	}
	return m
}

// foldText applies NFKC normalization and whitespace collapse so diacritic
// and spacing variants of the same name produce one key tuple.
func foldText(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

func coerce(v any, t Type) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		if nullTokens[strings.ToLower(strings.TrimSpace(s))] {
			return nil, nil
		}
	}

	switch t {
	case TypeInt:
		return coerceInt(v)
	case TypeFloat:
		return coerceFloat(v)
	case TypeDate:
		return coerceDate(v)
	case TypeBool:
		return coerceBool(v)
	case TypeString:
		return table.CellString(v), nil
	default:
		return v, nil
	}
}

func coerceInt(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		if x != float64(int64(x)) {
			return nil, fmt.Errorf("%v is not an integer", x)
		}
		return int64(x), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", x)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to integer", v)
	}
}

func coerceFloat(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case string:
		// European decimal commas show up in federation exports.
		s := strings.ReplaceAll(strings.TrimSpace(x), ",", ".")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", x)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to number", v)
	}
}

func coerceDate(v any) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
		return nil, fmt.Errorf("%q matches no known date layout", x)
	default:
		return nil, fmt.Errorf("cannot coerce %T to date", v)
	}
}

func coerceBool(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", x)
		}
		return b, nil
	case float64:
		return x != 0, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to boolean", v)
	}
}

// ratio computes num/den as float64 when the denominator is positive. A zero
// or missing denominator yields null: a 0-for-0 shooting line has no
// percentage.
func ratio(num, den any) any {
	n, ok1 := asFloat(num)
	d, ok2 := asFloat(den)
	if !ok1 || !ok2 || d <= 0 {
		return nil
	}
	return n / d
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

// mergeDuplicates collapses rows sharing a key tuple, keeping the one with
// fewer null cells. Upstream pagination routinely re-serves boundary rows.
func mergeDuplicates(t *table.Table, keys []string) {
	if len(t.Rows) < 2 {
		return
	}
	best := make(map[string]int, len(t.Rows))
	order := make([]string, 0, len(t.Rows))
	for i, r := range t.Rows {
		k := table.KeyTuple(r, keys)
		prev, seen := best[k]
		if !seen {
			best[k] = i
			order = append(order, k)
			continue
		}
		if t.NullCount(r) < t.NullCount(t.Rows[prev]) {
			best[k] = i
		}
	}
	if len(order) == len(t.Rows) {
		return
	}
	merged := make([]table.Row, 0, len(order))
	for _, k := range order {
		merged = append(merged, t.Rows[best[k]])
	}
	t.Rows = merged
}
