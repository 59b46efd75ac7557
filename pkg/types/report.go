package types

// TableFailure records one table whose summary could not be built. Other
// tables in the same run are unaffected.
type TableFailure struct {
	Table string `json:"table"`
	Error string `json:"error"`
}

// RunReport carries per-run diagnostics: rows skipped by the normalizer,
// predicate hits dropped by schema validation, and per-table failures.
// A run never fails atomically; the report says what succeeded.
type RunReport struct {
	RowsSeen    int            `json:"rows_seen"`
	SkippedRows int            `json:"skipped_rows"`
	DroppedHits int            `json:"dropped_hits"`
	Tables      int            `json:"tables"`
	Failures    []TableFailure `json:"failures,omitempty"`
}

// Merge folds another report's counters into r; used when per-shard
// normalization runs in parallel.
func (r *RunReport) Merge(other *RunReport) {
	if other == nil {
		return
	}
	r.RowsSeen += other.RowsSeen
	r.SkippedRows += other.SkippedRows
	r.DroppedHits += other.DroppedHits
	r.Failures = append(r.Failures, other.Failures...)
}
