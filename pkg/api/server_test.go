package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperdex/pkg/app/core/engine"
	"github.com/uhyunpark/hyperdex/pkg/app/dex"
)

type stubBackend struct {
	status dex.ChainStatus
	stats  engine.Stats
}

func (b stubBackend) ChainStatus() dex.ChainStatus { return b.status }
func (b stubBackend) GetStats() engine.Stats       { return b.stats }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "hyperdex_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(3)
	return NewServer(stubBackend{
		status: dex.ChainStatus{Enabled: true, Height: 12, Pending: 4},
		stats:  engine.Stats{PairCount: 1, TradeCount: 9},
	}, reg, nil, []string{"http://localhost:3000"})
}

func get(t *testing.T, s *Server, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(t), "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestChainStatusAndStats(t *testing.T) {
	s := newTestServer(t)

	rec := get(t, s, "/api/v1/chain/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status dex.ChainStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, dex.ChainStatus{Enabled: true, Height: 12, Pending: 4}, status)

	rec = get(t, s, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats engine.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, 9, stats.TradeCount)
}

func TestMetricsExposition(t *testing.T) {
	rec := get(t, newTestServer(t), "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "hyperdex_test_total 3"))
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)
	rec := get(t, s, "/health", map[string]string{"Origin": "http://localhost:3000"})
	require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = get(t, s, "/health", map[string]string{"Origin": "http://evil.example"})
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	rec := get(t, newTestServer(t), "/api/v1/orders", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
