// Package server wires the handlers, services and middleware into one
// chi router and runs the HTTP server.
//
// This is the composition root: New receives the already-opened database,
// image store and external clients from main and builds everything else.
//
//	sqlstore.DB ─┬→ RecipeService ─→ PageHandler
//	             ├→ ImportService ─→ PageHandler, APIHandler
//	             └→ AuthService   ─→ AuthHandler
//	storage.Store → ImageService  ─→ PageHandler, ImportService
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/recipebox/internal/auth"
	"github.com/sakif/recipebox/internal/config"
	"github.com/sakif/recipebox/internal/handler"
	"github.com/sakif/recipebox/internal/middleware"
	"github.com/sakif/recipebox/internal/repository/sqlstore"
	"github.com/sakif/recipebox/internal/service"
	"github.com/sakif/recipebox/internal/storage"
	"github.com/sakif/recipebox/web"
)

const (
	shutdownTimeout = 30 * time.Second
	// writeTimeout covers a multipart upload plus the image pipeline and
	// storage upload.
	writeTimeout = 60 * time.Second
)

// Deps are the resources main opens before building the server.
type Deps struct {
	DB *sqlstore.DB
	// Store is nil when image storage is disabled.
	Store storage.Store
	// Provider is nil when no Spoonacular key is configured.
	Provider service.RecipeProvider
	// GitHub is nil when GitHub sign-in is not configured.
	GitHub handler.GitHub
	// HTTPClient downloads remote images; nil uses a client with the
	// image download timeout.
	HTTPClient *http.Client
	Version    string
}

// Server holds the router and its configuration.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger
}

// New builds the services, handlers and routes.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.DB == nil {
		return nil, errors.New("server: database is required")
	}

	tokens, err := auth.NewTokenService(cfg.Server.SecretKey, cfg.SessionTTL())
	if err != nil {
		return nil, fmt.Errorf("server: creating token service: %w", err)
	}

	view, err := handler.NewRenderer(web.Templates(), deps.GitHub != nil, logger)
	if err != nil {
		return nil, fmt.Errorf("server: loading templates: %w", err)
	}

	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: service.DownloadTimeout}
	}

	images := service.NewImageService(deps.Store, client, logger)
	recipes := service.NewRecipeService(deps.DB, logger)
	importer := service.NewImportService(deps.DB, deps.Provider, images, logger)
	authService := service.NewAuthService(deps.DB, tokens, auth.NewPasswordService(), logger)

	secure := strings.HasPrefix(cfg.Server.BaseURL, "https://")
	pages := handler.NewPageHandler(recipes, importer, images, view, logger)
	authHandler := handler.NewAuthHandler(authService, tokens, deps.GitHub, view, secure, logger)
	api := handler.NewAPIHandler(importer, logger)
	health := handler.NewHealthHandler(deps.DB, deps.Store, deps.Version, logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, logger)

	s := &Server{router: chi.NewRouter(), cfg: cfg, logger: logger}
	r := s.router

	// Order matters: the request id must exist before Logger reads it, and
	// RealIP must run before anything keys on the client address.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(auth.LoadSession(tokens))

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(web.Static())))
	if disk, ok := deps.Store.(*storage.Disk); ok {
		r.Handle(storage.DiskURLPrefix+"/*",
			http.StripPrefix(storage.DiskURLPrefix+"/", http.FileServer(http.Dir(disk.Dir()))))
	}

	r.Get("/", pages.HandleHome)
	r.Get("/search", pages.HandleSearch)
	r.Get("/recipe/{id}", pages.HandleRecipeDetail)
	r.Get("/api_recipe/{id}", pages.HandleAPIRecipeDetail)
	r.Get("/api/search", api.HandleSearch)
	r.Get("/health", health.HandleHealth)

	r.Get("/login", authHandler.HandleLoginForm)
	r.Get("/signup", authHandler.HandleSignupForm)
	r.Get("/logout", authHandler.HandleLogout)
	r.With(limiter.Middleware).Post("/login", authHandler.HandleLogin)
	r.With(limiter.Middleware).Post("/signup", authHandler.HandleSignup)

	if deps.GitHub != nil {
		r.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		r.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(handler.RequireLogin))
		r.Post("/save_api_recipe/{id}", pages.HandleSaveAPIRecipe)
		r.Get("/create_recipe", pages.HandleCreateForm)
		r.Post("/create_recipe", pages.HandleCreate)
		r.Get("/edit_recipe/{id}", pages.HandleEditForm)
		r.Post("/edit_recipe/{id}", pages.HandleEdit)
	})

	if cfg.Server.DebugRoutes {
		storageName := "none"
		if deps.Store != nil {
			storageName = deps.Store.Name()
		}
		debug := handler.NewDebugHandler(recipes, nil, storageName, view, logger)
		r.Get("/debug/images", debug.HandleImages)
		logger.Warn("debug routes enabled", slog.String("path", "/debug/images"))
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully, giving
// in-flight requests shutdownTimeout to finish.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.cfg.Server.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listening: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	}
}
