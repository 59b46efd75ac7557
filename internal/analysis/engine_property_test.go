package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/querypulse/querypulse/pkg/types"
)

// queryPool is a fixed set of statements the generators draw from. Indexed
// draws keep generated inputs valid while still exercising joins, stars,
// ranges, and malformed rows.
var queryPool = []string{
	"SELECT id FROM sales.orders WHERE customer_id = 5",
	"SELECT id FROM sales.orders WHERE customer_id > 100",
	"SELECT id FROM sales.orders WHERE status = 'open' AND region = 'EU'",
	"SELECT * FROM sales.orders",
	"SELECT o.id FROM sales.orders o JOIN sales.customers c ON o.customer_id = c.id WHERE o.region = 'EU'",
	"SELECT country FROM sales.customers WHERE country IN ('DE', 'FR')",
	"SELECT 1 FROM information_schema.tables",
}

func poolRows(indices []int) []types.RawRow {
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	rows := make([]types.RawRow, len(indices))
	for i, idx := range indices {
		rows[i] = types.RawRow{
			"query_text": queryPool[idx%len(queryPool)],
			"start_time": base.Add(time.Duration(i) * 7 * time.Hour),
		}
	}
	return rows
}

func marshalSummaries(summaries []types.PatternSummary) []byte {
	data, _ := json.Marshal(summaries)
	return data
}

// The merged result must not depend on how the input is sharded: any shard
// count produces the same summaries and the same report counters.
func TestProperty_ShardCountInvariance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("summaries are identical for any shard count", prop.ForAll(
		func(indices []int, shards int) bool {
			rows := poolRows(indices)
			window := testWindow

			serial := NewEngine(Options{MinHitCount: 1, Shards: 1})
			sharded := NewEngine(Options{MinHitCount: 1, Shards: shards})

			a, ra, err := serial.Analyze(context.Background(), rows, testCatalog, window)
			if err != nil {
				return false
			}
			b, rb, err := sharded.Analyze(context.Background(), rows, testCatalog, window)
			if err != nil {
				return false
			}
			if ra.RowsSeen != rb.RowsSeen || ra.SkippedRows != rb.SkippedRows ||
				ra.DroppedHits != rb.DroppedHits || ra.Tables != rb.Tables {
				return false
			}
			return bytes.Equal(marshalSummaries(a), marshalSummaries(b))
		},
		gen.SliceOf(gen.IntRange(0, len(queryPool)-1)),
		gen.IntRange(2, 8),
	))

	properties.TestingRun(t)
}

// Aggregation is a fold over keyed counters, so reordering the input rows
// must not change any summary.
func TestProperty_InputOrderInvariance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("reversed input yields identical summaries", prop.ForAll(
		func(indices []int) bool {
			rows := poolRows(indices)
			reversed := make([]types.RawRow, len(rows))
			for i, r := range rows {
				reversed[len(rows)-1-i] = r
			}

			engine := NewEngine(Options{MinHitCount: 1})
			a, _, err := engine.Analyze(context.Background(), rows, testCatalog, testWindow)
			if err != nil {
				return false
			}
			b, _, err := engine.Analyze(context.Background(), reversed, testCatalog, testWindow)
			if err != nil {
				return false
			}
			return bytes.Equal(marshalSummaries(a), marshalSummaries(b))
		},
		gen.SliceOf(gen.IntRange(0, len(queryPool)-1)),
	))

	properties.TestingRun(t)
}

// Every bucket map must account for exactly the queries observed on its
// table, whatever mix of statements produced them.
func TestProperty_BucketsSumToTotals(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("bucket counts sum to total_queries per table", prop.ForAll(
		func(indices []int) bool {
			engine := NewEngine(Options{Granularity: types.GranularityDay})
			summaries, _, err := engine.Analyze(context.Background(), poolRows(indices), testCatalog, testWindow)
			if err != nil {
				return false
			}
			for _, s := range summaries {
				if s.Stats.BucketSum() != s.Stats.TotalQueries {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(queryPool)-1)),
	))

	properties.TestingRun(t)
}

// Raising the hit threshold can only remove candidates, never add or
// reorder the survivors.
func TestProperty_ThresholdMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("candidates at threshold n+1 are a prefix-preserving subset", prop.ForAll(
		func(indices []int, threshold int64) bool {
			rows := poolRows(indices)
			loose := NewEngine(Options{MinHitCount: threshold})
			strict := NewEngine(Options{MinHitCount: threshold + 1})

			a, _, err := loose.Analyze(context.Background(), rows, testCatalog, testWindow)
			if err != nil {
				return false
			}
			b, _, err := strict.Analyze(context.Background(), rows, testCatalog, testWindow)
			if err != nil {
				return false
			}
			for i, sb := range b {
				sa := a[i]
				if len(sb.Candidates) > len(sa.Candidates) {
					return false
				}
				// The strict list is the loose list with the tail trimmed.
				for j, c := range sb.Candidates {
					if c.Column != sa.Candidates[j].Column || c.HitCount < threshold+1 {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(queryPool)-1)),
		gen.Int64Range(1, 4),
	))

	properties.TestingRun(t)
}
