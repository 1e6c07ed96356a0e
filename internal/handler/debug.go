package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/recipebox/internal/service"
)

const (
	// probeTimeout bounds each HEAD request on the diagnostics page.
	probeTimeout = 5 * time.Second
	// probeConcurrency caps in-flight HEAD requests.
	probeConcurrency = 8
)

// DebugHandler serves the image diagnostics page. It is only routed when
// debug routes are enabled.
type DebugHandler struct {
	recipes     *service.RecipeService
	client      *http.Client
	storageName string
	view        *Renderer
	logger      *slog.Logger
}

// NewDebugHandler creates a DebugHandler. client may be nil.
func NewDebugHandler(recipes *service.RecipeService, client *http.Client, storageName string, view *Renderer, logger *slog.Logger) *DebugHandler {
	if client == nil {
		client = &http.Client{Timeout: probeTimeout}
	}
	return &DebugHandler{
		recipes:     recipes,
		client:      client,
		storageName: storageName,
		view:        view,
		logger:      logger,
	}
}

// imageProbe is one row of the diagnostics table.
type imageProbe struct {
	ID     int64
	Title  string
	URL    string
	OK     bool
	Result string
}

// HandleImages lists every recipe image reference with the result of a
// HEAD request against it. Relative references are resolved against the
// request host.
//
// HTTP: GET /debug/images
func (h *DebugHandler) HandleImages(w http.ResponseWriter, r *http.Request) {
	recipes, err := h.recipes.ListWithImages(r.Context())
	if err != nil {
		h.logger.Error("debug images: listing recipes", slog.String("error", err.Error()))
		h.view.render(w, r, http.StatusOK, pageDebugImages, "Image diagnostics",
			map[string]any{"Storage": h.storageName, "Rows": []imageProbe{}},
			Flash{FlashError, userMessage(err, msgDatabaseError)})
		return
	}

	base := requestOrigin(r)
	rows := make([]imageProbe, len(recipes))
	var g errgroup.Group
	g.SetLimit(probeConcurrency)
	for i := range recipes {
		rows[i] = imageProbe{ID: recipes[i].ID, Title: recipes[i].Title, URL: recipes[i].Image()}
		g.Go(func() error {
			rows[i].OK, rows[i].Result = h.probe(r.Context(), base, rows[i].URL)
			return nil
		})
	}
	_ = g.Wait() // probes record failures in their row

	h.view.render(w, r, http.StatusOK, pageDebugImages, "Image diagnostics",
		map[string]any{"Storage": h.storageName, "Rows": rows})
}

// probe sends a HEAD request and describes the outcome.
func (h *DebugHandler) probe(ctx context.Context, base *url.URL, ref string) (bool, string) {
	target, err := base.Parse(ref)
	if err != nil {
		return false, "invalid URL: " + err.Error()
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target.String(), nil)
	if err != nil {
		return false, "invalid URL: " + err.Error()
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return false, "error: " + err.Error()
	}
	resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	result := strconv.Itoa(resp.StatusCode) + " " + http.StatusText(resp.StatusCode)
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		result += " (" + ct + ")"
	}
	return ok, result
}

// requestOrigin is scheme://host of the incoming request.
func requestOrigin(r *http.Request) *url.URL {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return &url.URL{Scheme: scheme, Host: r.Host, Path: "/"}
}
