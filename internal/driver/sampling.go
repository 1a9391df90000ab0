package driver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/faucetdb/syncer/internal/catalogmodel"
)

// urlPattern mirrors the detector used elsewhere in the corpus for
// classifying free-text columns as URL-shaped.
var urlPattern = regexp.MustCompile(`^https?://[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// PercentURLsFromRows consumes a single-column *sql.Rows of nullable strings
// and returns the fraction of non-blank values that look like a URL. Dialect
// drivers build the SELECT (with their own quoting) and hand the resulting
// rows here so the matching logic isn't duplicated five times.
func PercentURLsFromRows(rows *sql.Rows) (float64, error) {
	defer rows.Close()

	var total, matching int
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return 0, fmt.Errorf("scan sampled value: %w", err)
		}
		if !v.Valid || strings.TrimSpace(v.String) == "" {
			continue
		}
		total++
		if urlPattern.MatchString(v.String) {
			matching++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	return float64(matching) / float64(total), nil
}

// AvgLengthFromRows consumes a single-column *sql.Rows of nullable strings
// and returns the average length, in runes, of the non-null values.
func AvgLengthFromRows(rows *sql.Rows) (int, error) {
	defer rows.Close()

	var total, count int
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return 0, fmt.Errorf("scan sampled value: %w", err)
		}
		if !v.Valid {
			continue
		}
		total += len([]rune(v.String))
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	return total / count, nil
}

// StringSeq adapts a single-column *sql.Rows of nullable strings into a
// LazySeq[*string], the shape FieldValuesLazySeq must return.
type StringSeq struct {
	rows *sql.Rows
	done bool
}

// NewStringSeq wraps rows as a LazySeq[*string]. Ownership of rows passes to
// the returned sequence; callers must not use rows directly afterward.
func NewStringSeq(rows *sql.Rows) *StringSeq {
	return &StringSeq{rows: rows}
}

// Next implements LazySeq[*string].
func (s *StringSeq) Next() (*string, bool) {
	if s.done {
		return nil, false
	}
	if !s.rows.Next() {
		s.done = true
		return nil, false
	}
	var v sql.NullString
	if err := s.rows.Scan(&v); err != nil {
		s.done = true
		return nil, false
	}
	if !v.Valid {
		return nil, true
	}
	val := v.String
	return &val, true
}

// Close implements LazySeq[*string].
func (s *StringSeq) Close() error {
	s.done = true
	return s.rows.Close()
}

// MetadataRowSeq adapts a two-column (keypath, value) *sql.Rows into a
// LazySeq[MetadataRow], used by TableRowsSeq when interpreting
// _metabase_metadata.
type MetadataRowSeq struct {
	rows *sql.Rows
	done bool
}

// NewMetadataRowSeq wraps rows, which must select exactly two text columns
// in (keypath, value) order, as a LazySeq[MetadataRow].
func NewMetadataRowSeq(rows *sql.Rows) *MetadataRowSeq {
	return &MetadataRowSeq{rows: rows}
}

// Next implements LazySeq[MetadataRow].
func (s *MetadataRowSeq) Next() (MetadataRow, bool) {
	if s.done {
		return MetadataRow{}, false
	}
	if !s.rows.Next() {
		s.done = true
		return MetadataRow{}, false
	}
	var keypath, value sql.NullString
	if err := s.rows.Scan(&keypath, &value); err != nil {
		s.done = true
		return MetadataRow{}, false
	}
	return MetadataRow{Keypath: keypath.String, Value: value.String}, true
}

// Close implements LazySeq[MetadataRow].
func (s *MetadataRowSeq) Close() error {
	s.done = true
	return s.rows.Close()
}

// SampleJSONColumnTypes runs query, which must select exactly one JSON/text
// column holding JSON-object values, and infers a BaseType per key observed
// across the sampled rows. A key whose sampled values disagree on type
// falls back to UnknownField. Shared by every dialect whose nested-field
// support is "sample the column and look at what's inside it".
func SampleJSONColumnTypes(ctx context.Context, db *sql.DB, query string) (map[string]catalogmodel.BaseType, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sample json column: %w", err)
	}
	defer rows.Close()

	result := make(map[string]catalogmodel.BaseType)
	seen := make(map[string]bool)
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan json sample: %w", err)
		}
		if !raw.Valid {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw.String), &obj); err != nil {
			continue // not a JSON object; skip this row
		}
		for k, v := range obj {
			bt := jsonValueBaseType(v)
			if prior, ok := result[k]; ok && seen[k] && prior != bt {
				result[k] = catalogmodel.UnknownField
				continue
			}
			result[k] = bt
			seen[k] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func jsonValueBaseType(v any) catalogmodel.BaseType {
	switch t := v.(type) {
	case bool:
		return catalogmodel.BooleanField
	case float64:
		if t == float64(int64(t)) {
			return catalogmodel.IntegerField
		}
		return catalogmodel.FloatField
	case string:
		return catalogmodel.CharField
	case map[string]any:
		return catalogmodel.DictionaryField
	default:
		return catalogmodel.UnknownField
	}
}
