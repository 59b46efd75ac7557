package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/querypulse/querypulse/internal/anonymize"
	qperrors "github.com/querypulse/querypulse/internal/errors"
	"github.com/querypulse/querypulse/pkg/types"
)

// fakeStore serves canned data so handler tests need no database.
type fakeStore struct {
	tables    []types.TableMetadata
	summaries map[string]types.PatternSummary
	err       error
}

func (f *fakeStore) SaveHistory(ctx context.Context, rows []types.RawRow) error { return f.err }

func (f *fakeStore) LoadHistory(ctx context.Context, start, end time.Time) ([]types.RawRow, error) {
	return nil, f.err
}

func (f *fakeStore) SaveTables(ctx context.Context, tables []types.TableMetadata) error {
	return f.err
}

func (f *fakeStore) LoadTables(ctx context.Context) ([]types.TableMetadata, error) {
	return f.tables, f.err
}

func (f *fakeStore) SaveSummaries(ctx context.Context, summaries []types.PatternSummary, generatedAt time.Time) error {
	return f.err
}

func (f *fakeStore) Summaries(ctx context.Context) ([]types.PatternSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]types.PatternSummary, 0, len(f.summaries))
	for _, s := range f.summaries {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) Summary(ctx context.Context, ref types.TableRef) (types.PatternSummary, error) {
	if f.err != nil {
		return types.PatternSummary{}, f.err
	}
	s, ok := f.summaries[ref.Key()]
	if !ok {
		return types.PatternSummary{}, qperrors.NewIncompleteDataError(ref.String())
	}
	return s, nil
}

func (f *fakeStore) Close() error { return nil }

func fixtureSummary(table string) types.PatternSummary {
	ref := types.ParseTableRef(table)
	stats := types.NewTableAccessStats(ref)
	stats.TotalQueries = 5
	stats.SelectStarQueries = 1
	stats.Buckets["2026-W05"] = 5
	return types.PatternSummary{
		Ref:   ref,
		Stats: stats,
		Candidates: []types.ColumnCandidate{
			{Column: "customer_id", Score: 3.3, HitCount: 3},
		},
		Window: types.Window{
			Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		},
		Granularity: types.GranularityWeek,
	}
}

func testRouter(st *fakeStore, anon *anonymize.Anonymizer) http.Handler {
	return NewRouter(RouterDeps{
		Store:      st,
		Anonymizer: anon,
		Logger:     zap.NewNop(),
	})
}

func TestHealthEndpoint(t *testing.T) {
	router := testRouter(&fakeStore{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestTablesEndpoint(t *testing.T) {
	st := &fakeStore{tables: []types.TableMetadata{
		{
			Ref:      types.TableRef{Schema: "sales", Table: "orders"},
			Columns:  []types.ColumnMeta{{Name: "id"}, {Name: "region"}},
			RowCount: 42,
			Platform: "bigquery",
		},
	}}
	router := testRouter(st, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/tables", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tables []tableInfo `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Tables, 1)
	assert.Equal(t, "sales.orders", body.Tables[0].Table)
	assert.Equal(t, 2, body.Tables[0].Columns)
	assert.Equal(t, int64(42), body.Tables[0].RowCount)
}

func TestPatternsSingleTable(t *testing.T) {
	st := &fakeStore{summaries: map[string]types.PatternSummary{
		"sales.orders": fixtureSummary("sales.orders"),
	}}
	router := testRouter(st, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/patterns?table=sales.orders", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "weekly_counts")
	assert.Contains(t, body, "partition_candidates")

	var table string
	require.NoError(t, json.Unmarshal(body["table"], &table))
	assert.Equal(t, "sales.orders", table)
}

func TestPatternsUnknownTable(t *testing.T) {
	router := testRouter(&fakeStore{summaries: map[string]types.PatternSummary{}}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/patterns?table=sales.missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, qperrors.CodeIncompleteData, body.Code)
	assert.NotEmpty(t, body.RequestID)
}

func TestPatternsAnonymized(t *testing.T) {
	st := &fakeStore{summaries: map[string]types.PatternSummary{
		"sales.orders": fixtureSummary("sales.orders"),
	}}
	router := testRouter(st, anonymize.New())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/patterns?table=sales.orders", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.NotContains(t, body, "orders")
	assert.NotContains(t, body, "customer_id")
	assert.Contains(t, body, "__COL_")
}

func TestPatternsMethodNotAllowed(t *testing.T) {
	router := testRouter(&fakeStore{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/patterns", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRefreshUnavailable(t *testing.T) {
	router := testRouter(&fakeStore{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/refresh", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecommendRestoresIdentifiers(t *testing.T) {
	st := &fakeStore{summaries: map[string]types.PatternSummary{
		"sales.orders": fixtureSummary("sales.orders"),
	}}
	router := testRouter(st, anonymize.New())

	req := httptest.NewRequest(http.MethodPost, "/v1/recommend",
		strings.NewReader(`{"table":"sales.orders"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body RecommendResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "sales.orders", body.Table)
	// The static recommender works on tokens; Restore maps them back.
	assert.NotContains(t, body.Recommendation, "__COL_")
	assert.NotContains(t, body.Recommendation, "__TBL_")
}

func TestRecommendBadRequest(t *testing.T) {
	router := testRouter(&fakeStore{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/recommend",
		strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	router := testRouter(&fakeStore{}, nil)

	// Serve a request first so the counters have something to show.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Routes []struct {
			Route string `json:"route"`
			Count int64  `json:"count"`
		} `json:"routes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Routes)
	assert.Equal(t, "/v1/healthz", body.Routes[0].Route)
	assert.Equal(t, int64(1), body.Routes[0].Count)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{qperrors.NewIncompleteDataError("t"), http.StatusNotFound},
		{qperrors.New(qperrors.ErrCategoryAPI, qperrors.CodeInvalidRequest, "bad"), http.StatusBadRequest},
		{qperrors.New(qperrors.ErrCategoryExtract, qperrors.CodeConnectionFailed, "down"), http.StatusBadGateway},
		{qperrors.New(qperrors.ErrCategoryStorage, qperrors.CodeWriteFailed, "disk"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err))
	}
}
