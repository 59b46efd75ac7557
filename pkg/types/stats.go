package types

import (
	"fmt"
	"time"
)

// Granularity is the time resolution used to bucket access counts.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// Valid reports whether the granularity is one of the supported resolutions.
func (g Granularity) Valid() bool {
	switch g {
	case GranularityDay, GranularityWeek, GranularityMonth:
		return true
	}
	return false
}

// BucketKey truncates ts to the granularity and encodes it as a canonical,
// sortable string: "2006-01-02" for days, "2006-W05" (ISO week) for weeks,
// "2006-01" for months. Locale-independent so aggregation is deterministic
// across platforms.
func (g Granularity) BucketKey(ts time.Time) string {
	ts = ts.UTC()
	switch g {
	case GranularityWeek:
		year, week := ts.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case GranularityMonth:
		return ts.Format("2006-01")
	default:
		return ts.Format("2006-01-02")
	}
}

// CountsField is the JSON field name carrying the bucket map for this
// granularity in a serialized PatternSummary.
func (g Granularity) CountsField() string {
	switch g {
	case GranularityWeek:
		return "weekly_counts"
	case GranularityMonth:
		return "monthly_counts"
	default:
		return "daily_counts"
	}
}

// TableAccessStats accumulates access counts for one table over one analysis
// run. It is owned exclusively by that run; the fold is order-independent
// because buckets are keyed, not positional.
type TableAccessStats struct {
	Ref               TableRef
	TotalQueries      int64
	SelectStarQueries int64
	Buckets           map[string]int64
}

// NewTableAccessStats returns empty stats for the given table.
func NewTableAccessStats(ref TableRef) *TableAccessStats {
	return &TableAccessStats{Ref: ref, Buckets: make(map[string]int64)}
}

// Observe folds one normalized record into the stats. The record must
// reference the same table.
func (s *TableAccessStats) Observe(rec QueryRecord, g Granularity) {
	s.TotalQueries++
	if rec.SelectStar {
		s.SelectStarQueries++
	}
	s.Buckets[g.BucketKey(rec.Timestamp)]++
}

// Merge combines another partial stats value into s by summing counters.
// The operation is commutative and associative, so per-shard partials can
// merge in any order.
func (s *TableAccessStats) Merge(other *TableAccessStats) {
	if other == nil {
		return
	}
	s.TotalQueries += other.TotalQueries
	s.SelectStarQueries += other.SelectStarQueries
	for k, v := range other.Buckets {
		s.Buckets[k] += v
	}
}

// BucketSum returns the sum of all bucket counts. Equals TotalQueries for
// any stats produced by Observe.
func (s *TableAccessStats) BucketSum() int64 {
	var sum int64
	for _, v := range s.Buckets {
		sum += v
	}
	return sum
}
