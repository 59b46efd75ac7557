// Package normalize turns raw warehouse history rows into QueryRecords.
//
// One row becomes zero or more records: one per user table the statement
// reads. System-schema references are filtered out, select-star detection is
// applied per table, and structurally unusable rows are rejected with a
// MALFORMED_RECORD error so callers can count and skip them.
package normalize

import (
	"strings"

	qperrors "github.com/querypulse/querypulse/internal/errors"
	"github.com/querypulse/querypulse/internal/predicate"
	"github.com/querypulse/querypulse/pkg/types"
)

// Result is the normalized view of a single history row.
type Result struct {
	// Records holds one entry per referenced user table.
	Records []types.QueryRecord

	// Refs are the normalized table references, in Records order.
	Refs []types.TableRef

	// Scan is the statement scan the refs came from, retained so predicate
	// hits can be attributed through the same alias map.
	Scan predicate.StatementScan
}

// Normalizer validates and reshapes raw rows. The zero value is usable.
type Normalizer struct{}

func New() *Normalizer {
	return &Normalizer{}
}

// Normalize validates one raw row and expands it into per-table records.
//
// A row with no query text, or a timestamp that cannot be parsed, returns a
// MALFORMED_RECORD error. A well-formed row that references only system
// tables returns an empty Result and no error.
func (n *Normalizer) Normalize(row types.RawRow) (Result, error) {
	sql := strings.TrimSpace(row.QueryText())
	if sql == "" {
		return Result{}, qperrors.NewMalformedRecordError("empty query text", nil)
	}
	ts, err := row.StartTime()
	if err != nil {
		return Result{}, qperrors.NewMalformedRecordError("bad start_time", err)
	}

	scan := predicate.Scan(sql)

	// Prefer table identifiers the warehouse resolved itself; they carry
	// full database.schema.table paths the SQL text may omit.
	names := row.Tables()
	if len(names) == 0 {
		names = scan.Tables
	}

	res := Result{Scan: scan}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		ref := types.ParseTableRef(name)
		if ref.Table == "" || ref.IsSystem() {
			continue
		}
		if seen[ref.Key()] {
			continue
		}
		seen[ref.Key()] = true

		res.Refs = append(res.Refs, ref)
		res.Records = append(res.Records, types.QueryRecord{
			Ref:          ref,
			Timestamp:    ts,
			RawSQL:       sql,
			QueryID:      row.QueryID(),
			BytesScanned: row.BytesScanned(),
			SelectStar:   starApplies(scan, ref),
		})
	}
	return res, nil
}

// starApplies reports whether a select-star item in the statement covers ref.
// An unqualified star covers every referenced table; a qualified star covers
// only the table its qualifier resolves to.
func starApplies(scan predicate.StatementScan, ref types.TableRef) bool {
	if !scan.HasStar {
		return false
	}
	if len(scan.StarQualifiers) == 0 {
		return true
	}
	table := strings.ToLower(ref.Table)
	full := strings.ToLower(ref.String())
	for _, q := range scan.StarQualifiers {
		target := q
		if mapped, ok := scan.Aliases[q]; ok && mapped != "" {
			target = strings.ToLower(mapped)
		}
		if target == table || target == full || strings.HasSuffix(target, "."+table) {
			return true
		}
	}
	return false
}
