package types

import (
	"encoding/json"
	"time"
)

// ColumnCandidate is one ranked partition/cluster key candidate for a table.
type ColumnCandidate struct {
	Column    string         `json:"column"`
	Score     float64        `json:"score"`
	HitCount  int64          `json:"hit_count"`
	Operators []OperatorKind `json:"-"`
}

// Window is the inclusive date range considered by one analysis run.
type Window struct {
	Start time.Time `json:"start_date"`
	End   time.Time `json:"end_date"`
}

// MarshalJSON renders the window as bare dates; bucket keys already carry
// the intra-day resolution.
func (w Window) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start string `json:"start_date"`
		End   string `json:"end_date"`
	}{w.Start.UTC().Format("2006-01-02"), w.End.UTC().Format("2006-01-02")})
}

// UnmarshalJSON accepts the bare-date form produced by MarshalJSON.
func (w *Window) UnmarshalJSON(data []byte) error {
	var raw struct {
		Start string `json:"start_date"`
		End   string `json:"end_date"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var err error
	if w.Start, err = time.Parse("2006-01-02", raw.Start); err != nil {
		return err
	}
	w.End, err = time.Parse("2006-01-02", raw.End)
	return err
}

// PatternSummary is the engine's terminal artifact: one table's access stats
// and ranked candidate columns over an analysis window. Owned by the caller
// once returned; never mutated afterwards.
type PatternSummary struct {
	Ref         TableRef
	Stats       *TableAccessStats
	Candidates  []ColumnCandidate
	Window      Window
	Granularity Granularity
}

// summaryJSON is the persisted/HTTP wire form. The bucket field name varies
// with granularity (daily_counts / weekly_counts / monthly_counts).
type summaryJSON struct {
	Table             string            `json:"table"`
	TotalQueries      int64             `json:"total_queries"`
	SelectStarQueries int64             `json:"select_star_queries"`
	Candidates        []ColumnCandidate `json:"partition_candidates"`
	Window            Window            `json:"analysis_window"`
	Granularity       Granularity       `json:"granularity"`
}

// MarshalJSON emits the documented wire form. Map keys are sorted by
// encoding/json, so identical summaries serialize byte-identically.
func (s PatternSummary) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(summaryJSON{
		Table:             s.Ref.String(),
		TotalQueries:      s.Stats.TotalQueries,
		SelectStarQueries: s.Stats.SelectStarQueries,
		Candidates:        s.Candidates,
		Window:            s.Window,
		Granularity:       s.Granularity,
	})
	if err != nil {
		return nil, err
	}
	// Splice the granularity-named bucket field into the object.
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(base, &obj); err != nil {
		return nil, err
	}
	buckets, err := json.Marshal(s.Stats.Buckets)
	if err != nil {
		return nil, err
	}
	obj[s.Granularity.CountsField()] = buckets
	return json.Marshal(obj)
}

// UnmarshalJSON restores a summary from its wire form.
func (s *PatternSummary) UnmarshalJSON(data []byte) error {
	var base summaryJSON
	if err := json.Unmarshal(data, &base); err != nil {
		return err
	}
	s.Ref = ParseTableRef(base.Table)
	s.Candidates = base.Candidates
	s.Window = base.Window
	s.Granularity = base.Granularity
	if !s.Granularity.Valid() {
		s.Granularity = GranularityWeek
	}
	s.Stats = NewTableAccessStats(s.Ref)
	s.Stats.TotalQueries = base.TotalQueries
	s.Stats.SelectStarQueries = base.SelectStarQueries
	var wrap map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrap); err != nil {
		return err
	}
	if raw, ok := wrap[s.Granularity.CountsField()]; ok {
		if err := json.Unmarshal(raw, &s.Stats.Buckets); err != nil {
			return err
		}
	}
	return nil
}
