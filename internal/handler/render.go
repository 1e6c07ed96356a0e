// Package handler contains the HTTP handlers: HTML pages, the login flow,
// and the JSON endpoints.
//
// Handlers parse the request, call one service, and then set a flash and
// redirect, or render a template. They hold no business rules.
package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/recipebox/internal/auth"
	"github.com/sakif/recipebox/internal/textclean"
)

// Page templates. Each file defines "content" and is rendered inside
// base.html.
const (
	pageHome            = "home.html"
	pageSearch          = "search.html"
	pageRecipeDetail    = "recipe_detail.html"
	pageAPIRecipeDetail = "api_recipe_detail.html"
	pageLogin           = "login.html"
	pageSignup          = "signup.html"
	pageCreateRecipe    = "create_recipe.html"
	pageEditRecipe      = "edit_recipe.html"
	pageDebugImages     = "debug_images.html"
)

var pages = []string{
	pageHome, pageSearch, pageRecipeDetail, pageAPIRecipeDetail,
	pageLogin, pageSignup, pageCreateRecipe, pageEditRecipe, pageDebugImages,
}

const msgDatabaseError = "Database connection error"

var funcs = template.FuncMap{
	"lines":    splitLines,
	"truncate": truncate,
}

// Renderer holds the parsed page templates. Templates are parsed once at
// startup; a broken template fails New rather than the first request.
type Renderer struct {
	pages         map[string]*template.Template
	githubEnabled bool
	logger        *slog.Logger
}

// NewRenderer parses base.html plus every page template from fsys.
func NewRenderer(fsys fs.FS, githubEnabled bool, logger *slog.Logger) (*Renderer, error) {
	base, err := template.New("base.html").Funcs(funcs).ParseFS(fsys, "base.html")
	if err != nil {
		return nil, fmt.Errorf("handler: parsing base template: %w", err)
	}

	parsed := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("handler: cloning base for %s: %w", page, err)
		}
		if _, err := clone.ParseFS(fsys, page); err != nil {
			return nil, fmt.Errorf("handler: parsing %s: %w", page, err)
		}
		parsed[page] = clone
	}

	return &Renderer{pages: parsed, githubEnabled: githubEnabled, logger: logger}, nil
}

// pageData is what every template sees. Data holds the page's own values.
type pageData struct {
	Title         string
	User          *auth.Session
	Flashes       []Flash
	GitHubEnabled bool
	Data          any
}

// render writes page with status. Queued flashes are shown and cleared;
// extra flashes are shown on this page only.
func (v *Renderer) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any, extra ...Flash) {
	tmpl, ok := v.pages[page]
	if !ok {
		v.logger.Error("unknown template", slog.String("page", page))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	pd := pageData{
		Title:         title,
		Flashes:       append(popFlashes(w, r), extra...),
		GitHubEnabled: v.githubEnabled,
		Data:          data,
	}
	if sess, ok := auth.SessionFromContext(r.Context()); ok {
		pd.User = &sess
	}

	// Render into a buffer so a template error can still send a clean 500.
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", pd); err != nil {
		v.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// splitLines returns the non-blank lines of s, trimmed.
func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if cut := textclean.Truncate(s, n); cut != s {
		return strings.TrimSpace(cut) + "…"
	}
	return s
}
