package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/recipebox/internal/service"
	"github.com/sakif/recipebox/internal/spoonacular"
)

// APIHandler serves the JSON endpoints.
type APIHandler struct {
	importer *service.ImportService
	logger   *slog.Logger
}

// NewAPIHandler creates an APIHandler.
func NewAPIHandler(importer *service.ImportService, logger *slog.Logger) *APIHandler {
	return &APIHandler{importer: importer, logger: logger}
}

// SearchResponse is the body of GET /api/search.
type SearchResponse struct {
	Query   string                `json:"query"`
	Results []spoonacular.Summary `json:"results"`
}

// HandleSearch runs an external search and returns the results with their
// images already copied into storage.
//
// HTTP: GET /api/search?q=pasta
// Response: 200 {"query": "pasta", "results": [...]}
//
// Provider failures give an empty result list, not an error status.
func (h *APIHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	results := h.importer.SearchExternalWithImages(r.Context(), query)

	h.logger.Debug("api search",
		slog.String("query", query),
		slog.Int("results", len(results)),
	)
	writeJSON(w, http.StatusOK, SearchResponse{Query: query, Results: results})
}
