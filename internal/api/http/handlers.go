package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/querypulse/querypulse/internal/anonymize"
	qperrors "github.com/querypulse/querypulse/internal/errors"
	"github.com/querypulse/querypulse/internal/observability"
	"github.com/querypulse/querypulse/internal/recommend"
	"github.com/querypulse/querypulse/internal/refresh"
	"github.com/querypulse/querypulse/internal/store"
	"github.com/querypulse/querypulse/pkg/types"
)

// statusFor maps an error to an HTTP status through its error code.
func statusFor(err error) int {
	switch qperrors.GetCode(err) {
	case qperrors.CodeIncompleteData:
		return http.StatusNotFound
	case qperrors.CodeInvalidRequest:
		return http.StatusBadRequest
	case qperrors.CodeConnectionFailed, qperrors.CodeHistoryQuery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeErrorFor(w http.ResponseWriter, err error, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:     err.Error(),
		Code:      qperrors.GetCode(err),
		RequestID: requestID,
	})
}

// HealthHandler handles GET /v1/healthz.
type HealthHandler struct{}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// TablesHandler handles GET /v1/tables requests.
type TablesHandler struct {
	store store.Store
}

func NewTablesHandler(st store.Store) *TablesHandler {
	return &TablesHandler{store: st}
}

// tableInfo is the wire form of one catalog entry.
type tableInfo struct {
	Table     string `json:"table"`
	Columns   int    `json:"columns"`
	RowCount  int64  `json:"row_count,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Platform  string `json:"platform,omitempty"`
}

func (h *TablesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	tables, err := h.store.LoadTables(r.Context())
	if err != nil {
		writeErrorFor(w, err, requestID)
		return
	}

	out := make([]tableInfo, 0, len(tables))
	for _, t := range tables {
		out = append(out, tableInfo{
			Table:     t.Ref.String(),
			Columns:   len(t.Columns),
			RowCount:  t.RowCount,
			SizeBytes: t.SizeBytes,
			Platform:  t.Platform,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": out})
}

// PatternsHandler handles GET /v1/patterns requests, for all tables or a
// single ?table= selection.
type PatternsHandler struct {
	store store.Store
	anon  *anonymize.Anonymizer
}

func NewPatternsHandler(st store.Store, anon *anonymize.Anonymizer) *PatternsHandler {
	return &PatternsHandler{store: st, anon: anon}
}

func (h *PatternsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	if table := r.URL.Query().Get("table"); table != "" {
		summary, err := h.store.Summary(r.Context(), types.ParseTableRef(table))
		if err != nil {
			writeErrorFor(w, err, requestID)
			return
		}
		writeJSON(w, http.StatusOK, h.anonymized(summary))
		return
	}

	summaries, err := h.store.Summaries(r.Context())
	if err != nil {
		writeErrorFor(w, err, requestID)
		return
	}
	out := make([]types.PatternSummary, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, h.anonymized(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"patterns": out})
}

// anonymized tokenizes identifiers when an anonymizer is configured.
func (h *PatternsHandler) anonymized(s types.PatternSummary) types.PatternSummary {
	if h.anon == nil {
		return s
	}
	return anonymizeSummary(h.anon, s)
}

func anonymizeSummary(anon *anonymize.Anonymizer, s types.PatternSummary) types.PatternSummary {
	out := s
	out.Ref = types.ParseTableRef(anon.TableToken(s.Ref.String()))
	out.Candidates = make([]types.ColumnCandidate, len(s.Candidates))
	for i, c := range s.Candidates {
		c.Column = anon.Token(anonymize.KindColumn, c.Column)
		out.Candidates[i] = c
	}
	return out
}

// RefreshHandler handles POST /v1/refresh requests.
type RefreshHandler struct {
	refresher *refresh.Service
	stats     *observability.APIStats
}

func NewRefreshHandler(svc *refresh.Service, stats *observability.APIStats) *RefreshHandler {
	return &RefreshHandler{refresher: svc, stats: stats}
}

// ServeHTTP runs one refresh cycle synchronously and returns its report.
// Per-table failures ride inside the report with status 200; only a run
// that produced nothing at all maps to an error status.
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}
	if h.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh is not available in this mode", requestID)
		return
	}

	started := time.Now()
	report, err := h.refresher.RunOnce(r.Context())
	if h.stats != nil {
		h.stats.RecordRefresh(report, time.Since(started), err)
	}
	if err != nil {
		writeErrorFor(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// StatsHandler handles GET /v1/stats requests with a snapshot of the
// process counters.
type StatsHandler struct {
	stats *observability.APIStats
}

func NewStatsHandler(stats *observability.APIStats) *StatsHandler {
	return &StatsHandler{stats: stats}
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}
	writeJSON(w, http.StatusOK, h.stats.Snapshot())
}

// RecommendRequest names the table to advise on.
type RecommendRequest struct {
	Table string `json:"table"`
}

// RecommendResponse carries the advice text with identifiers restored.
type RecommendResponse struct {
	Table          string `json:"table"`
	Recommendation string `json:"recommendation"`
	RequestID      string `json:"request_id"`
}

// RecommendHandler handles POST /v1/recommend requests. The stored summary
// is anonymized before it reaches the recommender and the response text has
// the original identifiers restored, so the backend never sees real names.
type RecommendHandler struct {
	store       store.Store
	anon        *anonymize.Anonymizer
	recommender recommend.Recommender
}

func NewRecommendHandler(st store.Store, anon *anonymize.Anonymizer, rec recommend.Recommender) *RecommendHandler {
	return &RecommendHandler{store: st, anon: anon, recommender: rec}
}

func (h *RecommendHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	var req RecommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}
	if req.Table == "" {
		writeError(w, http.StatusBadRequest, "table is required", requestID)
		return
	}

	summary, err := h.store.Summary(r.Context(), types.ParseTableRef(req.Table))
	if err != nil {
		writeErrorFor(w, err, requestID)
		return
	}

	anon := h.anon
	if anon == nil {
		anon = anonymize.New()
	}
	text, err := h.recommender.Recommend(r.Context(), anonymizeSummary(anon, summary))
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("recommendation failed: %v", err), requestID)
		return
	}

	writeJSON(w, http.StatusOK, RecommendResponse{
		Table:          req.Table,
		Recommendation: anon.Restore(text),
		RequestID:      requestID,
	})
}
