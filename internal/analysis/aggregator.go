// Package analysis implements the pattern-extraction engine: it folds
// normalized query records into per-table access statistics, accumulates
// predicate hits per column, ranks partition-key candidates, and assembles
// the terminal PatternSummary artifacts.
package analysis

import (
	"sort"

	"github.com/querypulse/querypulse/pkg/types"
)

// columnAccum tracks one column's predicate activity within a run.
type columnAccum struct {
	hits      int64
	operators map[types.OperatorKind]bool
}

// Partial holds one shard's aggregation state. Shards never share a Partial;
// results combine through Merge, which is commutative and associative, so the
// final state is independent of shard count and input order.
type Partial struct {
	Stats  map[string]*types.TableAccessStats
	Hits   map[string]map[string]*columnAccum
	Report types.RunReport
}

func NewPartial() *Partial {
	return &Partial{
		Stats: make(map[string]*types.TableAccessStats),
		Hits:  make(map[string]map[string]*columnAccum),
	}
}

// ObserveRecord folds one normalized record into the shard's table stats.
func (p *Partial) ObserveRecord(rec types.QueryRecord, g types.Granularity) {
	key := rec.Ref.Key()
	stats, ok := p.Stats[key]
	if !ok {
		stats = types.NewTableAccessStats(rec.Ref)
		p.Stats[key] = stats
	}
	stats.Observe(rec, g)
}

// ObserveHit folds one resolved predicate hit into the shard's column
// accumulators.
func (p *Partial) ObserveHit(hit types.PredicateHit) {
	key := hit.Ref.Key()
	cols, ok := p.Hits[key]
	if !ok {
		cols = make(map[string]*columnAccum)
		p.Hits[key] = cols
	}
	acc, ok := cols[hit.Column]
	if !ok {
		acc = &columnAccum{operators: make(map[types.OperatorKind]bool)}
		cols[hit.Column] = acc
	}
	acc.hits++
	acc.operators[hit.Operator] = true
}

// Merge combines another shard's partial state into p.
func (p *Partial) Merge(other *Partial) {
	if other == nil {
		return
	}
	for key, stats := range other.Stats {
		if mine, ok := p.Stats[key]; ok {
			mine.Merge(stats)
		} else {
			p.Stats[key] = stats
		}
	}
	for key, cols := range other.Hits {
		mine, ok := p.Hits[key]
		if !ok {
			p.Hits[key] = cols
			continue
		}
		for col, acc := range cols {
			existing, ok := mine[col]
			if !ok {
				mine[col] = acc
				continue
			}
			existing.hits += acc.hits
			for op := range acc.operators {
				existing.operators[op] = true
			}
		}
	}
	p.Report.Merge(&other.Report)
}

// TableKeys returns the table keys seen by this partial, sorted so that
// downstream iteration is deterministic.
func (p *Partial) TableKeys() []string {
	keys := make([]string, 0, len(p.Stats))
	for k := range p.Stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
