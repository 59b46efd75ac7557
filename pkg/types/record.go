package types

import (
	"fmt"
	"time"
)

// RawRow is one warehouse query-history row as delivered by an extractor:
// a loose field-name to value mapping in the warehouse's own shape. The
// normalizer is the only component that interprets it.
//
// Canonical keys (extractors map their dialect onto these):
//
//	query_id       string
//	query_text     string (required)
//	start_time     time.Time or a parseable timestamp string (required)
//	end_time       time.Time or string
//	user_name      string
//	statement_type string
//	bytes_scanned  int64 or float64
//	tables         []string of dotted table identifiers, if known upstream
type RawRow map[string]any

// timestampLayouts are the accepted textual timestamp forms, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// QueryText returns the raw SQL text, or "" when absent.
func (r RawRow) QueryText() string {
	s, _ := r["query_text"].(string)
	return s
}

// QueryID returns the extractor-supplied query identifier, or "" when absent.
func (r RawRow) QueryID() string {
	s, _ := r["query_id"].(string)
	return s
}

// StartTime parses the row's execution timestamp.
func (r RawRow) StartTime() (time.Time, error) {
	switch v := r["start_time"].(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, v); err == nil {
				return ts.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unparsable timestamp %q", v)
	case nil:
		return time.Time{}, fmt.Errorf("missing start_time")
	default:
		return time.Time{}, fmt.Errorf("unsupported start_time type %T", v)
	}
}

// BytesScanned returns the scan cost when the warehouse reported one.
func (r RawRow) BytesScanned() int64 {
	switch v := r["bytes_scanned"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// Tables returns the extractor-supplied table identifiers, if any.
func (r RawRow) Tables() []string {
	switch v := r["tables"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// QueryRecord is one normalized query-history observation for one table.
// A query touching N tables normalizes to N records, one per table, so that
// access counts attribute to every referenced table. Immutable once built.
type QueryRecord struct {
	Ref          TableRef  `json:"table"`
	Timestamp    time.Time `json:"timestamp"`
	RawSQL       string    `json:"-"`
	QueryID      string    `json:"query_id,omitempty"`
	BytesScanned int64     `json:"bytes_scanned,omitempty"`
	SelectStar   bool      `json:"select_star"`
}
