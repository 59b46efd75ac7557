package http

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/querypulse/querypulse/internal/anonymize"
	"github.com/querypulse/querypulse/internal/observability"
	"github.com/querypulse/querypulse/internal/recommend"
	"github.com/querypulse/querypulse/internal/refresh"
	"github.com/querypulse/querypulse/internal/store"
)

// RouterDeps are the collaborators the API routes need. Anonymizer may be
// nil when anonymization is disabled; Refresher may be nil in serve-only
// mode.
type RouterDeps struct {
	Store       store.Store
	Anonymizer  *anonymize.Anonymizer
	Refresher   *refresh.Service
	Recommender recommend.Recommender
	Stats       *observability.APIStats
	Logger      *zap.Logger
}

// NewRouter builds the API mux with the default middleware chain applied.
func NewRouter(deps RouterDeps) http.Handler {
	if deps.Recommender == nil {
		deps.Recommender = recommend.NewStatic()
	}
	if deps.Stats == nil {
		deps.Stats = observability.NewAPIStats()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.Handle("/v1/healthz", &HealthHandler{})
	mux.Handle("/v1/tables", NewTablesHandler(deps.Store))
	mux.Handle("/v1/patterns", NewPatternsHandler(deps.Store, deps.Anonymizer))
	mux.Handle("/v1/refresh", NewRefreshHandler(deps.Refresher, deps.Stats))
	mux.Handle("/v1/recommend", NewRecommendHandler(deps.Store, deps.Anonymizer, deps.Recommender))
	mux.Handle("/v1/stats", NewStatsHandler(deps.Stats))

	return DefaultMiddleware(deps.Logger, deps.Stats)(mux)
}
