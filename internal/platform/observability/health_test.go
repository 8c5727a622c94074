package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("store down")

func serve(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	return rec
}

func TestServer_Endpoints(t *testing.T) {
	logger := zerolog.Nop()
	ready := true

	s := NewServer(0, func(context.Context) error {
		if !ready {
			return errStoreDown
		}

		return nil
	}, func(context.Context) (int, error) { return 3, nil }, &logger)

	assert.Equal(t, http.StatusOK, serve(t, s, http.MethodGet, "/healthz").Code)
	assert.Equal(t, http.StatusOK, serve(t, s, http.MethodGet, "/readyz").Code)

	ready = false
	rec := serve(t, s, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "store down")

	rec = serve(t, s, http.MethodPost, "/check")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","posts":3}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, serve(t, s, http.MethodGet, "/metrics").Code)
}

func TestServer_CheckFailureAndAbsent(t *testing.T) {
	logger := zerolog.Nop()

	failing := NewServer(0, nil, func(context.Context) (int, error) { return 0, errStoreDown }, &logger)
	assert.Equal(t, http.StatusBadGateway, serve(t, failing, http.MethodGet, "/check").Code)

	absent := NewServer(0, nil, nil, &logger)
	assert.Equal(t, http.StatusNotFound, serve(t, absent, http.MethodGet, "/check").Code)
}
