// Package auth issues and checks login sessions.
//
// SESSION FLOW:
//  1. POST /login (or the GitHub callback) verifies the user
//  2. The server signs a JWT holding the user id and email and stores it
//     in the HttpOnly "session" cookie
//  3. LoadSession middleware validates the cookie on every request and puts
//     the Session in the request context
//  4. RequireSession guards pages that need a logged-in user
//
// JWT STRUCTURE:
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"42","email":"cook@example.com","exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, SECRET_KEY)
//
// Nothing is stored server-side. Logging out deletes the cookie; a stolen
// token stays valid until it expires.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "recipebox"

// DefaultSessionTTL applies when NewTokenService gets a zero ttl.
const DefaultSessionTTL = 7 * 24 * time.Hour

var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// Session identifies the logged-in user.
type Session struct {
	UserID int64
	Email  string
}

// TokenService signs and verifies session tokens with one HMAC secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL is how long issued tokens stay valid. The session cookie uses the
// same lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// claims is the JWT payload. The user id goes in "sub" as a decimal string,
// which is what the registered claim expects.
type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Issue signs a token for the session.
func (s *TokenService) Issue(sess Session) (string, error) {
	if sess.UserID <= 0 {
		return "", errors.New("auth: session has no user id")
	}
	now := s.now()

	c := claims{
		Email: sess.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(sess.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns its session.
//
// Only HS256 is accepted. Pinning the method stops a token signed with
// "none" (or with the secret used as an RSA public key) from validating.
func (s *TokenService) Parse(tokenStr string) (Session, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, ErrTokenExpired
		}
		return Session{}, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Session{}, ErrTokenInvalid
	}

	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Session{}, fmt.Errorf("%w: bad subject %q", ErrTokenInvalid, c.Subject)
	}

	return Session{UserID: id, Email: c.Email}, nil
}
