package api

import (
	"compress/gzip"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whale-scanner/internal/chains"
)

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	var seenInContext string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenInContext = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	id := w.Header().Get("X-Request-ID")
	require.NotEmpty(t, id)
	_, err := uuid.Parse(id)
	assert.NoError(t, err, "generated ids are UUIDs")
	assert.Equal(t, id, seenInContext, "handlers see the same id the caller gets")
}

func TestRequestIDMiddleware_HonorsInbound(t *testing.T) {
	var seenInContext string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenInContext = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "caller-supplied-id")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "caller-supplied-id", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "caller-supplied-id", seenInContext)
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("something went wrong")
	}))

	req := httptest.NewRequest("GET", "/api/v1/whales", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "INTERNAL_ERROR", response.Error.Code)
}

func TestCORSMiddleware(t *testing.T) {
	called := false
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest("GET", "/api/v1/chains", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.True(t, called)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "GET")
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	called := false
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest("OPTIONS", "/api/v1/chains", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, called, "preflight stops at the middleware")
}

func TestCompressionMiddleware(t *testing.T) {
	server := createTestServer(nil, nil, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	reader, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	defer reader.Close()

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(reader).Decode(&response))
	assert.Equal(t, "healthy", response["status"])
}

func TestCompressionMiddleware_SkippedWithoutAcceptEncoding(t *testing.T) {
	server := createTestServer(nil, nil, nil)

	w := doRequest(t, server, "GET", "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
}

func TestRateLimitMiddleware(t *testing.T) {
	config := testServerConfig()
	config.RequestsPerMinute = 60
	config.Burst = 1
	server := NewServer(config, &mockAggregator{}, &mockSummarizer{}, &fakeClientFactory{client: &fakeDataClient{}}, chains.DefaultRegistry())

	first := doRequest(t, server, "GET", "/health")
	require.Equal(t, http.StatusOK, first.Code)

	second := doRequest(t, server, "GET", "/health")
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(second.Body).Decode(&response))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", response.Error.Code)
}

func TestRateLimiter_ReusesLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(60, 10)

	a := rl.getLimiter("10.0.0.1")
	b := rl.getLimiter("10.0.0.1")
	c := rl.getLimiter("10.0.0.2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{name: "remote addr with port", remoteAddr: "10.0.0.1:9999", want: "10.0.0.1"},
		{name: "forwarded single", remoteAddr: "10.0.0.1:9999", forwarded: "203.0.113.7", want: "203.0.113.7"},
		{name: "forwarded chain keeps first", remoteAddr: "10.0.0.1:9999", forwarded: "203.0.113.7, 10.0.0.2", want: "203.0.113.7"},
		{name: "remote addr without port", remoteAddr: "10.0.0.1", want: "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/health", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}
