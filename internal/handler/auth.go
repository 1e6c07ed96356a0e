package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/recipebox/internal/apperror"
	"github.com/sakif/recipebox/internal/auth"
	"github.com/sakif/recipebox/internal/service"
)

const oauthStateCookie = "oauth_state"

// Flash texts for the login flow.
const (
	msgLoginError      = "Login error occurred"
	msgRegistered      = "Registration successful! Please log in."
	msgRegisterError   = "Registration error occurred"
	msgLoggedOut       = "You have been logged out"
	msgGitHubFailed    = "GitHub sign-in failed"
	msgGitHubNoEmail   = "Your GitHub account has no verified email address"
	msgGitHubDenied    = "GitHub sign-in was cancelled"
	msgGitHubBadState  = "GitHub sign-in expired, please try again"
	welcomeFlashFormat = "Welcome back, %s! 🎉"
)

// GitHub is the OAuth provider used by the GitHub sign-in routes.
// *auth.GitHubProvider satisfies it.
type GitHub interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// AuthHandler serves signup, login, logout and GitHub sign-in.
//
//   - HandleLogin / HandleSignup      → password accounts
//   - HandleGitHubLogin / ...Callback → OAuth; nil github disables them
//   - HandleLogout                    → clears the session cookie
type AuthHandler struct {
	auth   *service.AuthService
	tokens *auth.TokenService
	github GitHub
	view   *Renderer
	secure bool
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. secure marks the session cookie
// HTTPS-only.
func NewAuthHandler(
	authService *service.AuthService,
	tokens *auth.TokenService,
	github GitHub,
	view *Renderer,
	secure bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:   authService,
		tokens: tokens,
		github: github,
		view:   view,
		secure: secure,
		logger: logger,
	}
}

// HandleLoginForm shows the login page.
//
// HTTP: GET /login
func (h *AuthHandler) HandleLoginForm(w http.ResponseWriter, r *http.Request) {
	h.view.render(w, r, http.StatusOK, pageLogin, "Log in", map[string]any{"Email": ""})
}

// HandleLogin checks the credentials and starts a session.
//
// HTTP: POST /login (form: email, password)
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	result, err := h.auth.Login(r.Context(), email, r.FormValue("password"))
	if err != nil {
		status := http.StatusOK
		if errors.Is(err, apperror.ErrValidation) {
			status = http.StatusUnauthorized
		} else {
			h.logger.Error("login failed", slog.String("error", err.Error()))
		}
		h.view.render(w, r, status, pageLogin, "Log in", map[string]any{"Email": email},
			Flash{FlashError, userMessage(err, msgLoginError)})
		return
	}

	h.startSession(w, r, result)
}

// HandleSignupForm shows the registration page.
//
// HTTP: GET /signup
func (h *AuthHandler) HandleSignupForm(w http.ResponseWriter, r *http.Request) {
	h.view.render(w, r, http.StatusOK, pageSignup, "Sign up", map[string]any{"Email": ""})
}

// HandleSignup registers an account and sends the user to the login page.
//
// HTTP: POST /signup (form: email, password, confirm_password)
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	in := service.SignupInput{
		Email:           r.FormValue("email"),
		Password:        r.FormValue("password"),
		ConfirmPassword: r.FormValue("confirm_password"),
	}

	if _, err := h.auth.Signup(r.Context(), in); err != nil {
		status := http.StatusOK
		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
		default:
			h.logger.Error("signup failed", slog.String("error", err.Error()))
		}
		h.view.render(w, r, status, pageSignup, "Sign up", map[string]any{"Email": in.Email},
			Flash{FlashError, userMessage(err, msgRegisterError)})
		return
	}

	redirectWithFlash(w, r, "/login", FlashSuccess, msgRegistered)
}

// HandleLogout ends the session.
//
// HTTP: GET /logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w)
	redirectWithFlash(w, r, "/", FlashInfo, msgLoggedOut)
}

// HandleGitHubLogin redirects the browser to GitHub's authorization page.
// The random state is kept in a short-lived cookie and checked on callback.
//
// HTTP: GET /auth/github/login
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		http.NotFound(w, r)
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes GitHub sign-in.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Check the state against the cookie (single use)
//  2. Exchange the code for the GitHub profile and verified email
//  3. Find or create the local account by email
//  4. Set the session cookie and redirect home
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		http.NotFound(w, r)
		return
	}

	query := r.URL.Query()
	stateCookie, err := r.Cookie(oauthStateCookie)
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/", MaxAge: -1})
	if err != nil || stateCookie.Value == "" || query.Get("state") != stateCookie.Value {
		h.logger.Warn("github callback: state mismatch")
		redirectWithFlash(w, r, "/login", FlashError, msgGitHubBadState)
		return
	}

	if errParam := query.Get("error"); errParam != "" {
		h.logger.Info("github callback: authorization denied", slog.String("error", errParam))
		redirectWithFlash(w, r, "/login", FlashInfo, msgGitHubDenied)
		return
	}

	code := query.Get("code")
	if code == "" {
		redirectWithFlash(w, r, "/login", FlashError, msgGitHubFailed)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		msg := msgGitHubFailed
		if errors.Is(err, auth.ErrNoVerifiedEmail) {
			msg = msgGitHubNoEmail
		}
		redirectWithFlash(w, r, "/login", FlashError, msg)
		return
	}

	result, err := h.auth.LoginGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("github callback: login failed",
			slog.Int64("githubID", ghUser.ID),
			slog.String("error", err.Error()),
		)
		redirectWithFlash(w, r, "/login", FlashError, userMessage(err, msgGitHubFailed))
		return
	}

	h.startSession(w, r, result)
}

// startSession sets the session cookie, queues the welcome flash and
// redirects home.
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, result *service.AuthResult) {
	auth.SetSessionCookie(w, h.tokens, result.Token, h.secure)
	h.logger.Info("user logged in", slog.Int64("userID", result.User.ID))
	redirectWithFlash(w, r, "/", FlashSuccess, fmt.Sprintf(welcomeFlashFormat, result.DisplayName))
}
