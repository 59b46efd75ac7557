package types

import (
	"testing"
	"time"
)

func TestGranularityBucketKey(t *testing.T) {
	ts := time.Date(2026, 1, 28, 15, 4, 5, 0, time.UTC)

	tests := []struct {
		g    Granularity
		want string
	}{
		{GranularityDay, "2026-01-28"},
		{GranularityWeek, "2026-W05"},
		{GranularityMonth, "2026-01"},
	}
	for _, tt := range tests {
		if got := tt.g.BucketKey(ts); got != tt.want {
			t.Errorf("BucketKey(%s) = %q, want %q", tt.g, got, tt.want)
		}
	}
}

func TestGranularityBucketKeyISOWeekYear(t *testing.T) {
	// Jan 1 2027 is a Friday; ISO week assigns it to 2026-W53.
	ts := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := GranularityWeek.BucketKey(ts); got != "2026-W53" {
		t.Errorf("BucketKey = %q, want 2026-W53", got)
	}
}

func TestGranularityCountsField(t *testing.T) {
	tests := []struct {
		g    Granularity
		want string
	}{
		{GranularityDay, "daily_counts"},
		{GranularityWeek, "weekly_counts"},
		{GranularityMonth, "monthly_counts"},
	}
	for _, tt := range tests {
		if got := tt.g.CountsField(); got != tt.want {
			t.Errorf("CountsField(%s) = %q, want %q", tt.g, got, tt.want)
		}
	}
}

func TestTableAccessStatsObserve(t *testing.T) {
	ref := TableRef{Schema: "sales", Table: "orders"}
	stats := NewTableAccessStats(ref)

	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	stats.Observe(QueryRecord{Ref: ref, Timestamp: base}, GranularityWeek)
	stats.Observe(QueryRecord{Ref: ref, Timestamp: base.Add(time.Hour), SelectStar: true}, GranularityWeek)
	stats.Observe(QueryRecord{Ref: ref, Timestamp: base.AddDate(0, 0, 7)}, GranularityWeek)

	if stats.TotalQueries != 3 {
		t.Errorf("TotalQueries = %d, want 3", stats.TotalQueries)
	}
	if stats.SelectStarQueries != 1 {
		t.Errorf("SelectStarQueries = %d, want 1", stats.SelectStarQueries)
	}
	if len(stats.Buckets) != 2 {
		t.Errorf("bucket count = %d, want 2", len(stats.Buckets))
	}
	if stats.BucketSum() != stats.TotalQueries {
		t.Errorf("BucketSum() = %d, want %d", stats.BucketSum(), stats.TotalQueries)
	}
}

func TestTableAccessStatsMergeCommutative(t *testing.T) {
	ref := TableRef{Table: "orders"}
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	build := func(offsets ...int) *TableAccessStats {
		s := NewTableAccessStats(ref)
		for _, d := range offsets {
			s.Observe(QueryRecord{Ref: ref, Timestamp: base.AddDate(0, 0, d)}, GranularityWeek)
		}
		return s
	}

	ab := build(0, 1)
	ab.Merge(build(7, 8, 14))
	ba := build(7, 8, 14)
	ba.Merge(build(0, 1))

	if ab.TotalQueries != ba.TotalQueries {
		t.Fatalf("totals differ: %d vs %d", ab.TotalQueries, ba.TotalQueries)
	}
	if len(ab.Buckets) != len(ba.Buckets) {
		t.Fatalf("bucket counts differ: %d vs %d", len(ab.Buckets), len(ba.Buckets))
	}
	for k, v := range ab.Buckets {
		if ba.Buckets[k] != v {
			t.Errorf("bucket %q differs: %d vs %d", k, v, ba.Buckets[k])
		}
	}
}
