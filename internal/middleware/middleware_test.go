package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLogger(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantLevel string
	}{
		{name: "ok", status: http.StatusOK, body: "hello", wantLevel: "INFO"},
		{name: "client error", status: http.StatusNotFound, body: "nope", wantLevel: "WARN"},
		{name: "server error", status: http.StatusInternalServerError, body: "", wantLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			h := chimiddleware.RequestID(Logger(logger)(inner))

			req := httptest.NewRequest(http.MethodGet, "/recipe/7", nil)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, "request completed", entry["msg"])
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, "GET", entry["method"])
			assert.Equal(t, "/recipe/7", entry["path"])
			assert.EqualValues(t, tt.status, entry["status"])
			assert.EqualValues(t, len(tt.body), entry["bytes"])
			assert.NotEmpty(t, entry["request_id"])
		})
	}
}

func TestLogger_ImplicitOK(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("no explicit header"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.EqualValues(t, http.StatusOK, entry["status"])
}

func TestRateLimiter_Allow(t *testing.T) {
	l := NewRateLimiter(1, 3, discardLogger())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "burst request %d", i+1)
	}
	assert.False(t, l.Allow("10.0.0.1"), "bucket should be empty")
	assert.True(t, l.Allow("10.0.0.2"), "other clients have their own bucket")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.1"), "one token refilled after a second")
	assert.False(t, l.Allow("10.0.0.1"))
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	l := NewRateLimiter(1, 1, discardLogger())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("10.0.0.1")
	now = now.Add(idleLimiterTTL + time.Minute)
	l.Allow("10.0.0.2")

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.visitors, "10.0.0.1")
	assert.Contains(t, l.visitors, "10.0.0.2")
}

func TestRateLimiter_Middleware(t *testing.T) {
	l := NewRateLimiter(0.5, 2, discardLogger())
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusNoContent, send("192.0.2.1:1111").Code)
	assert.Equal(t, http.StatusNoContent, send("192.0.2.1:2222").Code, "port does not matter")

	limited := send("192.0.2.1:3333")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "2", limited.Header().Get("Retry-After"))

	// chi's RealIP leaves a bare address in RemoteAddr.
	assert.Equal(t, http.StatusNoContent, send("198.51.100.9").Code)
}
