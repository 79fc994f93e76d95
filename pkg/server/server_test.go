package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/expertgraph/pkg/config"
	"github.com/soundprediction/expertgraph/pkg/driver"
	"github.com/soundprediction/expertgraph/pkg/types"
)

type stubBackend struct{}

func (s *stubBackend) Query(ctx context.Context, query string) (*types.RetrievalResponse, error) {
	return &types.RetrievalResponse{Query: query}, nil
}

func (s *stubBackend) BatchQuery(ctx context.Context, queries []string) []types.QueryResult {
	return make([]types.QueryResult, len(queries))
}

func (s *stubBackend) Stats(ctx context.Context) (*driver.GraphStats, error) {
	return &driver.GraphStats{NodeCount: 5, EdgeCount: 4}, nil
}

func testServer() *Server {
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "localhost", Port: 8080, Mode: "test"},
	}
	s := New(cfg, &stubBackend{}, nil)
	s.Setup()
	return s
}

func TestSetupBuildsServer(t *testing.T) {
	s := testServer()
	require.NotNil(t, s.router)
	require.NotNil(t, s.server)
	assert.Equal(t, "localhost:8080", s.server.Addr)
}

func TestHealthzEndpoint(t *testing.T) {
	s := testServer()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestReadyzEndpoint(t *testing.T) {
	s := testServer()

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ready")
}

func TestCORSPreflight(t *testing.T) {
	s := testServer()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/query", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
