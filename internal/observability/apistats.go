// Package observability tracks in-process service statistics: per-route
// request counters and the outcome of the most recent refresh cycle. The
// trackers are O(1) per event and safe for concurrent use.
package observability

import (
	"sort"
	"sync"
	"time"

	"github.com/querypulse/querypulse/pkg/types"
)

// RouteStats holds request counters for one API route. Durations stay as
// time.Duration internally; the wire form in routeSnapshot carries integer
// milliseconds instead.
type RouteStats struct {
	Route        string        `json:"route"`
	Count        int64         `json:"count"`
	Errors       int64         `json:"errors"`
	TotalElapsed time.Duration `json:"-"`
	MaxElapsed   time.Duration `json:"-"`
	LastStatus   int           `json:"last_status"`
	LastSeen     time.Time     `json:"last_seen"`
}

// RefreshOutcome records how the last refresh cycle went.
type RefreshOutcome struct {
	FinishedAt time.Time       `json:"finished_at"`
	ElapsedMS  int64           `json:"elapsed_ms"`
	Report     types.RunReport `json:"report"`
	Error      string          `json:"error,omitempty"`
}

// APIStats is the process-wide statistics tracker.
type APIStats struct {
	mu          sync.RWMutex
	routes      map[string]*RouteStats
	lastRefresh *RefreshOutcome
	started     time.Time
}

func NewAPIStats() *APIStats {
	return &APIStats{
		routes:  make(map[string]*RouteStats),
		started: time.Now().UTC(),
	}
}

// RecordRequest folds one served request into the route's counters.
// Statuses of 500 and above count as errors; client errors do not.
func (s *APIStats) RecordRequest(route string, status int, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.routes[route]
	if !ok {
		rs = &RouteStats{Route: route}
		s.routes[route] = rs
	}
	rs.Count++
	if status >= 500 {
		rs.Errors++
	}
	rs.TotalElapsed += elapsed
	if elapsed > rs.MaxElapsed {
		rs.MaxElapsed = elapsed
	}
	rs.LastStatus = status
	rs.LastSeen = time.Now().UTC()
}

// RecordRefresh stores the outcome of one refresh cycle, replacing the
// previous one.
func (s *APIStats) RecordRefresh(report *types.RunReport, elapsed time.Duration, err error) {
	outcome := &RefreshOutcome{
		FinishedAt: time.Now().UTC(),
		ElapsedMS:  elapsed.Milliseconds(),
	}
	if report != nil {
		outcome.Report = *report
	}
	if err != nil {
		outcome.Error = err.Error()
	}

	s.mu.Lock()
	s.lastRefresh = outcome
	s.mu.Unlock()
}

// routeSnapshot is RouteStats plus the derived wire fields, durations as
// integer milliseconds.
type routeSnapshot struct {
	RouteStats
	MaxElapsedMS  int64 `json:"max_elapsed_ms"`
	MeanElapsedMS int64 `json:"mean_elapsed_ms"`
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	UptimeMS    int64           `json:"uptime_ms"`
	Routes      []routeSnapshot `json:"routes"`
	LastRefresh *RefreshOutcome `json:"last_refresh,omitempty"`
}

// Snapshot copies the current counters. Routes are ordered by request count
// descending, then by route name.
func (s *APIStats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	routes := make([]routeSnapshot, 0, len(s.routes))
	for _, rs := range s.routes {
		snap := routeSnapshot{
			RouteStats:   *rs,
			MaxElapsedMS: rs.MaxElapsed.Milliseconds(),
		}
		if rs.Count > 0 {
			snap.MeanElapsedMS = (rs.TotalElapsed / time.Duration(rs.Count)).Milliseconds()
		}
		routes = append(routes, snap)
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Count != routes[j].Count {
			return routes[i].Count > routes[j].Count
		}
		return routes[i].Route < routes[j].Route
	})

	out := Snapshot{
		UptimeMS: time.Since(s.started).Milliseconds(),
		Routes:   routes,
	}
	if s.lastRefresh != nil {
		copied := *s.lastRefresh
		out.LastRefresh = &copied
	}
	return out
}
