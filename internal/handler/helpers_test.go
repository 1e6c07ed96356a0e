package handler_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/recipebox/internal/auth"
	"github.com/sakif/recipebox/internal/handler"
	"github.com/sakif/recipebox/internal/model"
	"github.com/sakif/recipebox/internal/repository/sqlstore"
	"github.com/sakif/recipebox/internal/service"
	"github.com/sakif/recipebox/internal/spoonacular"
	"github.com/sakif/recipebox/internal/storage"
	"github.com/sakif/recipebox/web"
)

// =========================================================================
// TEST APP
// =========================================================================
//
// Handlers run against the real services, an in-memory SQLite database,
// a temp-dir image store and a fake Spoonacular provider. Requests go
// through a chi router so {id} parameters and the session middleware
// behave as in production.

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testApp struct {
	router   http.Handler
	db       *sqlstore.DB
	store    *storage.Disk
	provider *fakeProvider
	tokens   *auth.TokenService
	auth     *service.AuthService
	recipes  *service.RecipeService
	github   *fakeGitHub
}

type appOptions struct {
	noStorage bool
}

func newTestApp(t *testing.T, opts ...func(*appOptions)) *testApp {
	t.Helper()
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := newTestLogger()
	db, err := sqlstore.Open(context.Background(), sqlstore.Config{Dialect: sqlstore.SQLite, DSN: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	disk, err := storage.NewDisk(t.TempDir())
	require.NoError(t, err)

	var store storage.Store = disk
	if o.noStorage {
		store = nil
	}

	tokens, err := auth.NewTokenService("test-secret-at-least-16", time.Hour)
	require.NoError(t, err)

	provider := newFakeProvider()
	images := service.NewImageService(store, &http.Client{Timeout: 2 * time.Second}, logger)
	recipes := service.NewRecipeService(db, logger)
	importer := service.NewImportService(db, provider, images, logger)
	authService := service.NewAuthService(db, tokens, auth.NewPasswordServiceForTest(4), logger)
	gh := &fakeGitHub{}

	view, err := handler.NewRenderer(web.Templates(), true, logger)
	require.NoError(t, err)

	pages := handler.NewPageHandler(recipes, importer, images, view, logger)
	authHandler := handler.NewAuthHandler(authService, tokens, gh, view, false, logger)
	api := handler.NewAPIHandler(importer, logger)

	r := chi.NewRouter()
	r.Use(auth.LoadSession(tokens))
	r.Get("/", pages.HandleHome)
	r.Get("/search", pages.HandleSearch)
	r.Get("/recipe/{id}", pages.HandleRecipeDetail)
	r.Get("/api_recipe/{id}", pages.HandleAPIRecipeDetail)
	r.Get("/api/search", api.HandleSearch)
	r.Get("/login", authHandler.HandleLoginForm)
	r.Post("/login", authHandler.HandleLogin)
	r.Get("/signup", authHandler.HandleSignupForm)
	r.Post("/signup", authHandler.HandleSignup)
	r.Get("/logout", authHandler.HandleLogout)
	r.Get("/auth/github/login", authHandler.HandleGitHubLogin)
	r.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(handler.RequireLogin))
		r.Post("/save_api_recipe/{id}", pages.HandleSaveAPIRecipe)
		r.Get("/create_recipe", pages.HandleCreateForm)
		r.Post("/create_recipe", pages.HandleCreate)
		r.Get("/edit_recipe/{id}", pages.HandleEditForm)
		r.Post("/edit_recipe/{id}", pages.HandleEdit)
	})

	return &testApp{
		router:   r,
		db:       db,
		store:    disk,
		provider: provider,
		tokens:   tokens,
		auth:     authService,
		recipes:  recipes,
		github:   gh,
	}
}

// do sends req through the router.
func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

// follow GETs the redirect target of rr, carrying over the cookies it set
// plus extra, and returns the rendered page.
func (a *testApp) follow(t *testing.T, rr *httptest.ResponseRecorder, extra ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	loc := rr.Header().Get("Location")
	require.NotEmpty(t, loc, "response is not a redirect")

	req := httptest.NewRequest(http.MethodGet, loc, nil)
	for _, c := range rr.Result().Cookies() {
		if c.MaxAge >= 0 && c.Value != "" {
			req.AddCookie(c)
		}
	}
	for _, c := range extra {
		req.AddCookie(c)
	}
	return a.do(req)
}

// signup creates an account and returns its session cookie.
func (a *testApp) signup(t *testing.T, email string) (*model.User, *http.Cookie) {
	t.Helper()
	user, err := a.auth.Signup(context.Background(), service.SignupInput{
		Email: email, Password: "secret123", ConfirmPassword: "secret123",
	})
	require.NoError(t, err)
	token, err := a.tokens.Issue(auth.Session{UserID: user.ID, Email: user.Email})
	require.NoError(t, err)
	return user, &http.Cookie{Name: auth.SessionCookieName, Value: token}
}

// createRecipe stores a recipe owned by userID directly.
func (a *testApp) createRecipe(t *testing.T, userID int64, title string) *model.Recipe {
	t.Helper()
	recipe, err := a.recipes.Create(context.Background(), userID, service.RecipeInput{
		Title:       title,
		Description: "A test recipe",
		Ingredients: "• 1 cup water",
		Steps:       "1. Boil.",
	}, "")
	require.NoError(t, err)
	return recipe
}

// withSession adds the session cookie to req and returns it.
func withSession(req *http.Request, session *http.Cookie) *http.Request {
	if session != nil {
		req.AddCookie(session)
	}
	return req
}

// flashes decodes the flash cookie set on rr.
func flashes(t *testing.T, rr *httptest.ResponseRecorder) []handler.Flash {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name != "flash" || c.Value == "" {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(c.Value)
		require.NoError(t, err)
		var out []handler.Flash
		require.NoError(t, json.Unmarshal(raw, &out))
		return out
	}
	return nil
}

// formRequest builds an urlencoded POST.
func formRequest(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// multipartRequest builds a multipart POST; file is attached as "image"
// when filename is not empty.
func multipartRequest(t *testing.T, target string, fields map[string]string, filename string, file []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 80, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// =========================================================================
// FAKES
// =========================================================================

// fakeProvider implements service.RecipeProvider from in-memory maps.
type fakeProvider struct {
	mu        sync.Mutex
	recipes   map[int64]*spoonacular.Recipe
	results   []spoonacular.Summary
	searchErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{recipes: make(map[int64]*spoonacular.Recipe)}
}

func (f *fakeProvider) add(r *spoonacular.Recipe) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recipes[r.ID] = r
}

func (f *fakeProvider) Search(_ context.Context, _ string, _ int) (*spoonacular.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	out := make([]spoonacular.Summary, len(f.results))
	copy(out, f.results)
	return &spoonacular.SearchResponse{Results: out, Number: len(out), TotalResults: len(out)}, nil
}

func (f *fakeProvider) Recipe(_ context.Context, id int64) (*spoonacular.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recipes[id]
	if !ok {
		return nil, spoonacular.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

// tomatoSoup is the canonical provider recipe used across tests.
func tomatoSoup() *spoonacular.Recipe {
	return &spoonacular.Recipe{
		ID:      5001,
		Title:   "Tomato Soup",
		Summary: "A <b>simple</b> soup &amp; bread.",
		ExtendedIngredients: []spoonacular.Ingredient{
			{Amount: 2, Unit: "cups", Name: "tomatoes"},
			{Amount: 1, Unit: "", Name: "onion"},
		},
		AnalyzedInstructions: []spoonacular.InstructionGroup{{
			Steps: []spoonacular.Step{
				{Number: 1, Step: "Chop."},
				{Number: 2, Step: "Simmer."},
				{Number: 3, Step: "Blend."},
			},
		}},
	}
}

// fakeGitHub implements handler.GitHub.
type fakeGitHub struct {
	user *auth.GitHubUser
	err  error
	code string
}

func (f *fakeGitHub) AuthURL(state string) string {
	return "https://github.example/login/oauth/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeGitHub) Exchange(_ context.Context, code string) (*auth.GitHubUser, error) {
	f.code = code
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}
