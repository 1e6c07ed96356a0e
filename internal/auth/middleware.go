package auth

import (
	"context"
	"net/http"
)

// SessionCookieName is the HttpOnly cookie that carries the session JWT.
const SessionCookieName = "session"

// contextKey is unexported so no other package can read or shadow the
// session stored in a request context.
type contextKey string

const sessionKey contextKey = "session"

// WithSession returns a copy of ctx carrying sess.
func WithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFromContext returns the logged-in user's session, or false when the
// request is anonymous.
//
//	sess, ok := auth.SessionFromContext(r.Context())
//	if !ok {
//	    // anonymous user
//	}
func SessionFromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(sessionKey).(Session)
	return sess, ok && sess.UserID > 0
}

// LoadSession reads the session cookie on every request and, when it holds
// a valid token, stores the Session in the request context. Requests with a
// missing, expired or tampered cookie continue anonymously.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func LoadSession(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err == nil && cookie.Value != "" {
				if sess, err := tokens.Parse(cookie.Value); err == nil {
					r = r.WithContext(WithSession(r.Context(), sess))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession stops anonymous requests. deny writes the response for
// them; HTML pages redirect to /login with a flash.
//
// It must run after LoadSession.
func RequireSession(deny http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := SessionFromContext(r.Context()); !ok {
				deny(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SetSessionCookie stores token in the session cookie for the token
// service's TTL.
//
// HttpOnly keeps the token away from JavaScript. SameSite=Lax stops the
// browser sending it on cross-site POSTs. secure should be true when the
// site is served over HTTPS.
func SetSessionCookie(w http.ResponseWriter, tokens *TokenService, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie tells the browser to delete the session cookie.
// The token itself stays valid until it expires.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
