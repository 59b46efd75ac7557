package analysis

import (
	"context"
	"testing"
	"time"

	qperrors "github.com/querypulse/querypulse/internal/errors"
	"github.com/querypulse/querypulse/pkg/types"
)

var testCatalog = types.NewColumnCatalog([]types.TableMetadata{
	{
		Ref: types.TableRef{Schema: "sales", Table: "orders"},
		Columns: []types.ColumnMeta{
			{Name: "id", Type: "INT64"},
			{Name: "customer_id", Type: "INT64"},
			{Name: "status", Type: "STRING"},
			{Name: "region", Type: "STRING"},
		},
	},
	{
		Ref: types.TableRef{Schema: "sales", Table: "customers"},
		Columns: []types.ColumnMeta{
			{Name: "id", Type: "INT64"},
			{Name: "country", Type: "STRING"},
		},
	},
})

var testWindow = types.Window{
	Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
}

func historyRow(id, sql string, ts time.Time) types.RawRow {
	return types.RawRow{
		"query_id":   id,
		"query_text": sql,
		"start_time": ts,
	}
}

func findSummary(t *testing.T, summaries []types.PatternSummary, table string) types.PatternSummary {
	t.Helper()
	for _, s := range summaries {
		if s.Ref.Table == table {
			return s
		}
	}
	t.Fatalf("no summary for %s in %+v", table, summaries)
	return types.PatternSummary{}
}

// Three filtered reads of the same table: the repeated filter column clears
// the hit threshold, a column seen once does not.
func TestAnalyzeRepeatedPredicate(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	rows := []types.RawRow{
		historyRow("q1", "SELECT id FROM sales.orders WHERE customer_id = 5", ts),
		historyRow("q2", "SELECT id FROM sales.orders WHERE customer_id = 7 AND status = 'open'", ts),
		historyRow("q3", "SELECT id FROM sales.orders WHERE customer_id > 100", ts.Add(time.Hour)),
	}

	engine := NewEngine(Options{Granularity: types.GranularityDay, MinHitCount: 2})
	summaries, report, err := engine.Analyze(context.Background(), rows, testCatalog, testWindow)
	if err != nil {
		t.Fatal(err)
	}
	if report.RowsSeen != 3 || report.SkippedRows != 0 {
		t.Errorf("report = %+v", report)
	}

	s := findSummary(t, summaries, "orders")
	if s.Stats.TotalQueries != 3 {
		t.Errorf("TotalQueries = %d, want 3", s.Stats.TotalQueries)
	}
	if len(s.Candidates) != 1 {
		t.Fatalf("candidates = %+v, want customer_id only", s.Candidates)
	}
	c := s.Candidates[0]
	if c.Column != "customer_id" || c.HitCount != 3 {
		t.Errorf("candidate = %+v, want customer_id with 3 hits", c)
	}
	// Equality and range both observed, so diversity lifts the score
	// above the raw hit count.
	if c.Score <= float64(c.HitCount) {
		t.Errorf("Score = %v, want > %d for two operator kinds", c.Score, c.HitCount)
	}
}

// A bare SELECT * counts as access and as a select-star query but yields no
// candidates.
func TestAnalyzeSelectStar(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	rows := []types.RawRow{
		historyRow("q1", "SELECT * FROM sales.orders", ts),
	}

	engine := NewEngine(Options{Granularity: types.GranularityWeek})
	summaries, _, err := engine.Analyze(context.Background(), rows, testCatalog, testWindow)
	if err != nil {
		t.Fatal(err)
	}

	s := findSummary(t, summaries, "orders")
	if s.Stats.TotalQueries != 1 || s.Stats.SelectStarQueries != 1 {
		t.Errorf("stats = %+v, want one star query", s.Stats)
	}
	if len(s.Candidates) != 0 {
		t.Errorf("candidates = %+v, want none", s.Candidates)
	}
}

// A join counts access for every referenced table, but the qualified
// predicate lands only on the table it names.
func TestAnalyzeJoinAttribution(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	sql := "SELECT o.id FROM sales.orders o JOIN sales.customers c ON o.customer_id = c.id WHERE o.region = 'EU'"
	rows := []types.RawRow{historyRow("q1", sql, ts)}

	engine := NewEngine(Options{Granularity: types.GranularityWeek, MinHitCount: 1})
	summaries, report, err := engine.Analyze(context.Background(), rows, testCatalog, testWindow)
	if err != nil {
		t.Fatal(err)
	}
	if report.Tables != 2 {
		t.Fatalf("Tables = %d, want 2", report.Tables)
	}

	orders := findSummary(t, summaries, "orders")
	customers := findSummary(t, summaries, "customers")
	if orders.Stats.TotalQueries != 1 || customers.Stats.TotalQueries != 1 {
		t.Errorf("access counts: orders=%d customers=%d, want 1 each",
			orders.Stats.TotalQueries, customers.Stats.TotalQueries)
	}
	if len(orders.Candidates) != 1 || orders.Candidates[0].Column != "region" {
		t.Errorf("orders candidates = %+v, want region", orders.Candidates)
	}
	if len(customers.Candidates) != 0 {
		t.Errorf("customers candidates = %+v, want none", customers.Candidates)
	}
}

// When the warehouse supplies resolved table paths they are fuller than the
// SQL text's identifiers; qualified predicates must still land on the right
// table instead of being dropped.
func TestAnalyzeJoinWithResolvedPaths(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	sql := "SELECT o.id FROM sales.orders o JOIN sales.customers c ON o.customer_id = c.id WHERE o.region = 'EU'"
	row := historyRow("q1", sql, ts)
	row["tables"] = []string{"proj.sales.orders", "proj.sales.customers"}

	catalog := types.NewColumnCatalog([]types.TableMetadata{
		{
			Ref: types.TableRef{Database: "proj", Schema: "sales", Table: "orders"},
			Columns: []types.ColumnMeta{
				{Name: "id", Type: "INT64"},
				{Name: "customer_id", Type: "INT64"},
				{Name: "region", Type: "STRING"},
			},
		},
		{
			Ref: types.TableRef{Database: "proj", Schema: "sales", Table: "customers"},
			Columns: []types.ColumnMeta{
				{Name: "id", Type: "INT64"},
				{Name: "country", Type: "STRING"},
			},
		},
	})

	engine := NewEngine(Options{Granularity: types.GranularityWeek, MinHitCount: 1})
	summaries, report, err := engine.Analyze(context.Background(), []types.RawRow{row}, catalog, testWindow)
	if err != nil {
		t.Fatal(err)
	}
	if report.DroppedHits != 0 {
		t.Fatalf("DroppedHits = %d, want 0", report.DroppedHits)
	}

	orders := findSummary(t, summaries, "orders")
	if orders.Ref.Database != "proj" {
		t.Errorf("Ref = %+v, want the resolved proj.sales.orders path", orders.Ref)
	}
	if len(orders.Candidates) != 1 || orders.Candidates[0].Column != "region" {
		t.Errorf("orders candidates = %+v, want region", orders.Candidates)
	}
	customers := findSummary(t, summaries, "customers")
	if len(customers.Candidates) != 0 {
		t.Errorf("customers candidates = %+v, want none", customers.Candidates)
	}
}

// Malformed rows are skipped and counted, never fatal, and never distort the
// surviving tables' totals.
func TestAnalyzeSkipsMalformedRows(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	rows := []types.RawRow{
		historyRow("q1", "SELECT id FROM sales.orders WHERE customer_id = 5", ts),
		{"query_id": "q2", "query_text": "SELECT 1 FROM sales.orders", "start_time": "garbage"},
		historyRow("q3", "SELECT id FROM sales.orders WHERE customer_id = 6", ts),
	}

	engine := NewEngine(Options{Granularity: types.GranularityWeek})
	summaries, report, err := engine.Analyze(context.Background(), rows, testCatalog, testWindow)
	if err != nil {
		t.Fatal(err)
	}
	if report.RowsSeen != 3 || report.SkippedRows != 1 {
		t.Errorf("report = %+v, want 1 of 3 rows skipped", report)
	}

	s := findSummary(t, summaries, "orders")
	if s.Stats.TotalQueries != 2 {
		t.Errorf("TotalQueries = %d, want 2", s.Stats.TotalQueries)
	}
}

// Predicates on columns absent from the schema are dropped and counted.
func TestAnalyzeDropsUnknownColumns(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	rows := []types.RawRow{
		historyRow("q1", "SELECT id FROM sales.orders WHERE typo_column = 5", ts),
	}

	engine := NewEngine(Options{MinHitCount: 1})
	summaries, report, err := engine.Analyze(context.Background(), rows, testCatalog, testWindow)
	if err != nil {
		t.Fatal(err)
	}
	if report.DroppedHits != 1 {
		t.Errorf("DroppedHits = %d, want 1", report.DroppedHits)
	}
	s := findSummary(t, summaries, "orders")
	if len(s.Candidates) != 0 {
		t.Errorf("candidates = %+v, want none", s.Candidates)
	}
}

func TestAnalyzeTable(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	rows := []types.RawRow{
		historyRow("q1", "SELECT id FROM sales.orders WHERE customer_id = 5", ts),
	}
	engine := NewEngine(Options{})

	s, _, err := engine.AnalyzeTable(context.Background(), rows, testCatalog, testWindow,
		types.TableRef{Schema: "sales", Table: "orders"})
	if err != nil {
		t.Fatal(err)
	}
	if s.Ref.Table != "orders" {
		t.Errorf("summary = %+v", s)
	}

	_, _, err = engine.AnalyzeTable(context.Background(), rows, testCatalog, testWindow,
		types.TableRef{Schema: "sales", Table: "never_queried"})
	if qperrors.GetCode(err) != qperrors.CodeIncompleteData {
		t.Errorf("code = %v, want INCOMPLETE_DATA", qperrors.GetCode(err))
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rows := []types.RawRow{
		historyRow("q1", "SELECT id FROM sales.orders", time.Now().UTC()),
	}
	engine := NewEngine(Options{})
	_, _, err := engine.Analyze(ctx, rows, testCatalog, testWindow)
	if qperrors.GetCode(err) != qperrors.CodeAnalysisFailed {
		t.Errorf("code = %v, want ANALYSIS_FAILED", qperrors.GetCode(err))
	}
}
