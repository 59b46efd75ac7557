// Package recommend defines the boundary to an external recommendation
// backend. Summaries crossing this boundary are expected to be anonymized
// already; implementations only ever see tokens.
package recommend

import (
	"context"
	"fmt"

	"github.com/querypulse/querypulse/pkg/types"
)

// Recommender turns one pattern summary into human-readable advice.
type Recommender interface {
	Recommend(ctx context.Context, summary types.PatternSummary) (string, error)
}

// Static produces rule-based advice locally, with no external calls. It is
// the default backend.
type Static struct{}

func NewStatic() *Static {
	return &Static{}
}

// Recommend renders a short report from the summary's own numbers.
func (s *Static) Recommend(ctx context.Context, summary types.PatternSummary) (string, error) {
	if summary.Stats == nil || summary.Stats.TotalQueries == 0 {
		return "", fmt.Errorf("summary for %s has no observations", summary.Ref)
	}

	out := fmt.Sprintf("Table %s was read by %d queries in the analysis window.\n",
		summary.Ref, summary.Stats.TotalQueries)
	if summary.Stats.SelectStarQueries > 0 {
		pct := 100 * float64(summary.Stats.SelectStarQueries) / float64(summary.Stats.TotalQueries)
		out += fmt.Sprintf("%d queries (%.0f%%) select every column; projecting only needed columns would cut scan cost.\n",
			summary.Stats.SelectStarQueries, pct)
	}
	if len(summary.Candidates) == 0 {
		out += "No recurring filter columns were observed; no partitioning change is suggested.\n"
		return out, nil
	}
	top := summary.Candidates[0]
	out += fmt.Sprintf("The most frequent filter column is %q (%d hits); consider partitioning or clustering on it.\n",
		top.Column, top.HitCount)
	return out, nil
}
