package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/recipebox/internal/repository"
	"github.com/sakif/recipebox/internal/storage"
)

// Health report values.
const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"

	s3Connected     = "connected"
	s3NotConfigured = "not configured"
	s3Error         = "error"

	healthTimeout = 3 * time.Second
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	S3        string `json:"s3"`
	Storage   string `json:"storage"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// HealthHandler reports database and storage reachability.
type HealthHandler struct {
	db      repository.Pinger
	store   storage.Store // nil when image storage is disabled
	version string
	logger  *slog.Logger
	now     func() time.Time
}

// NewHealthHandler creates a HealthHandler. store may be nil.
func NewHealthHandler(db repository.Pinger, store storage.Store, version string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, store: store, version: version, logger: logger, now: time.Now}
}

// HandleHealth pings the database and, when S3 is the backend, the bucket.
//
// HTTP: GET /health
// Response: 200 when the database answers, 503 otherwise. S3 problems are
// reported in the body but do not make the app unhealthy.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    statusHealthy,
		Database:  "connected",
		S3:        s3NotConfigured,
		Storage:   "none",
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Version:   h.version,
	}
	status := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("health: database ping failed", slog.String("error", err.Error()))
		resp.Status = statusUnhealthy
		resp.Database = "disconnected"
		status = http.StatusServiceUnavailable
	}

	if h.store != nil {
		resp.Storage = h.store.Name()
		if _, ok := h.store.(*storage.S3); ok {
			resp.S3 = s3Connected
			if err := h.store.Ping(ctx); err != nil {
				h.logger.Warn("health: s3 ping failed", slog.String("error", err.Error()))
				resp.S3 = s3Error
			}
		}
	}

	writeJSON(w, status, resp)
}
