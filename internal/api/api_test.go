package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlabs/driftroute/internal/backend"
	"github.com/driftlabs/driftroute/internal/config"
	"github.com/driftlabs/driftroute/internal/engine"
	"github.com/driftlabs/driftroute/internal/metrics"
	"github.com/driftlabs/driftroute/pkg/types"
)

type staticBackend struct {
	desc     types.BackendDescriptor
	response types.GenerateResult
}

func (s *staticBackend) Descriptor() types.BackendDescriptor { return s.desc }

func (s *staticBackend) Generate(ctx context.Context, text string) (types.GenerateResult, error) {
	return s.response, nil
}

func (s *staticBackend) Ping(ctx context.Context) error { return nil }

func newTestRouter(t *testing.T) *Router {
	t.Helper()

	registry := backend.NewRegistryFromBackends(
		&staticBackend{
			desc: types.BackendDescriptor{
				ID: "embedded-rules", Kind: types.KindEmbedded, MaxResponseTime: 50 * time.Millisecond,
			},
			response: types.GenerateResult{Text: "embedded", Confidence: 0.3},
		},
		&staticBackend{
			desc: types.BackendDescriptor{
				ID: "local-llm", Kind: types.KindLocal, MaxResponseTime: 100 * time.Millisecond,
			},
			response: types.GenerateResult{Text: "local", Confidence: 0.7},
		},
		&staticBackend{
			desc: types.BackendDescriptor{
				ID: "external-api", Kind: types.KindExternal, MaxResponseTime: 100 * time.Millisecond,
			},
			response: types.GenerateResult{Text: "external", Confidence: 0.9},
		},
	)

	cfg := config.Default()
	cfg.Checkpoint.Interval = 0

	collector := metrics.NewCollector(nil)
	eng, err := engine.New(cfg, registry, nil, nil, collector, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		eng.Shutdown(context.Background())
	})

	return NewRouter(eng, collector, 0, nil)
}

func TestRouteEndpoint(t *testing.T) {
	router := newTestRouter(t)

	body, _ := json.Marshal(RouteRequest{Text: "What time is the standup?"})
	req := httptest.NewRequest(http.MethodPost, "/v1/route", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.Engine().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var decision types.RoutingDecision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decision))
	assert.NotEmpty(t, decision.ID)
	assert.NotEmpty(t, decision.Response)
	assert.NotEmpty(t, decision.Reasoning)
}

func TestRouteEndpointRejectsEmptyText(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/route", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouteEndpointPassesHints(t *testing.T) {
	router := newTestRouter(t)

	body, _ := json.Marshal(RouteRequest{
		Text:  "What time is the standup?",
		Hints: map[string]any{types.HintOfflineOnly: true},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/route", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.Engine().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var decision types.RoutingDecision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decision))
	assert.NotContains(t, decision.Attempted, "external-api")
}

func TestStatsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	body, _ := json.Marshal(RouteRequest{Text: "ping?"})
	req := httptest.NewRequest(http.MethodPost, "/v1/route", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.Engine().ServeHTTP(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	router.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var stats engine.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalRequests)
}

func TestBackendsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/backends", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "local-llm")
	assert.Contains(t, w.Body.String(), "embedded-rules")
}

func TestRecommendationsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/recommendations?category=question&complexity=simple", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "question|simple")
}

func TestHealthzEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	body, _ := json.Marshal(RouteRequest{Text: "ping?"})
	req := httptest.NewRequest(http.MethodPost, "/v1/route", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.Engine().ServeHTTP(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	router.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "driftroute_requests_total")
}
