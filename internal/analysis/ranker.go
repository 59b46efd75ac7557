package analysis

import (
	"sort"

	"github.com/querypulse/querypulse/pkg/types"
)

// DefaultMinHitCount is the threshold below which a column does not qualify
// as a candidate. A single predicate over a whole window is noise, not a
// pattern.
const DefaultMinHitCount = 2

// operatorDiversityWeight boosts columns filtered with several distinct
// operator kinds. Equality plus range on the same column is a stronger
// partitioning signal than the same count of equality hits alone.
const operatorDiversityWeight = 0.1

// Ranker turns per-column predicate accumulators into an ordered candidate
// list.
type Ranker struct {
	// MinHitCount excludes columns observed fewer times than this.
	MinHitCount int64
}

func NewRanker(minHitCount int64) *Ranker {
	if minHitCount <= 0 {
		minHitCount = DefaultMinHitCount
	}
	return &Ranker{MinHitCount: minHitCount}
}

// Rank scores and orders one table's column accumulators. Ties break on
// hit count, then column name, so equal inputs always produce the same
// ordering regardless of map iteration.
func (r *Ranker) Rank(cols map[string]*columnAccum) []types.ColumnCandidate {
	out := make([]types.ColumnCandidate, 0, len(cols))
	for name, acc := range cols {
		if acc.hits < r.MinHitCount {
			continue
		}
		ops := make([]types.OperatorKind, 0, len(acc.operators))
		for op := range acc.operators {
			ops = append(ops, op)
		}
		sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })

		out = append(out, types.ColumnCandidate{
			Column:    name,
			Score:     score(acc.hits, len(ops)),
			HitCount:  acc.hits,
			Operators: ops,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].HitCount != out[j].HitCount {
			return out[i].HitCount > out[j].HitCount
		}
		return out[i].Column < out[j].Column
	})
	return out
}

// score weights raw hit volume by operator diversity.
func score(hits int64, distinctOps int) float64 {
	if distinctOps < 1 {
		distinctOps = 1
	}
	return float64(hits) * (1 + operatorDiversityWeight*float64(distinctOps-1))
}
