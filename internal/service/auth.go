package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sakif/recipebox/internal/apperror"
	"github.com/sakif/recipebox/internal/auth"
	"github.com/sakif/recipebox/internal/model"
	"github.com/sakif/recipebox/internal/repository"
)

// User-facing auth messages.
const (
	MsgPasswordsDoNotMatch = "Passwords do not match"
	MsgEmailRegistered     = "Email already registered"
	MsgInvalidCredentials  = "Invalid email or password"
)

// AuthService handles signup, password login and GitHub login.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// It never sets cookies; the handler does that with the returned token.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult is what a successful login returns: the user, the signed
// session token, and the name used in the welcome flash.
type AuthResult struct {
	User        *model.User
	Token       string
	DisplayName string
}

// SignupInput is the registration form.
type SignupInput struct {
	Email           string
	Password        string
	ConfirmPassword string
}

// Signup registers a new account.
//
// Errors:
//   - ErrValidation: missing fields, bad email, mismatched or too long password
//   - ErrConflict: the email is already registered
//   - ErrUnavailable: the database is unreachable
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*model.User, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, apperror.ValidationFailed("email", "Email and password are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperror.ValidationFailed("email", "Please enter a valid email address")
	}
	if in.Password != in.ConfirmPassword {
		return nil, apperror.ValidationFailed("confirm_password", MsgPasswordsDoNotMatch)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperror.ValidationFailed("password", "Password must be 72 bytes or fewer")
		}
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{Email: email, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ConflictMessage(MsgEmailRegistered)
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered", slog.Int64("userID", user.ID))
	return user, nil
}

// Login checks an email and password and issues a session token.
//
// An unknown email and a wrong password both return the same
// ErrValidation error ("Invalid email or password") and take the same time.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)

	user, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		_ = s.passwords.VerifyMissing(password)
		return nil, apperror.ValidationFailed("email", MsgInvalidCredentials)
	case err != nil:
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("login failed", slog.Int64("userID", user.ID))
			return nil, apperror.ValidationFailed("password", MsgInvalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: verifying password for user %d: %w", user.ID, err)
	}

	return s.issue(user)
}

// LoginGitHub logs in the account whose email matches the GitHub primary
// email, creating it on first login. New accounts get an unusable password
// hash.
func (s *AuthService) LoginGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil || gh.Email == "" {
		return nil, apperror.ValidationFailed("email", "Your GitHub account has no verified email")
	}
	email := normalizeEmail(gh.Email)

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		user, err = s.createGitHubUser(ctx, email)
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: GitHub login (githubID=%d): %w", gh.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.Int64("userID", user.ID),
		slog.String("login", gh.Login),
	)
	return s.issue(user)
}

func (s *AuthService) createGitHubUser(ctx context.Context, email string) (*model.User, error) {
	hash, err := s.passwords.UnusableHash()
	if err != nil {
		return nil, err
	}

	user := &model.User{Email: email, PasswordHash: hash}
	err = s.users.CreateUser(ctx, user)
	if errors.Is(err, apperror.ErrConflict) {
		// Lost a race with a concurrent first login for the same email.
		return s.users.GetUserByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered via GitHub", slog.Int64("userID", user.ID))
	return user, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(auth.Session{UserID: user.ID, Email: user.Email})
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %d: %w", user.ID, err)
	}
	return &AuthResult{
		User:        user,
		Token:       token,
		DisplayName: DisplayName(user.Email),
	}, nil
}

// DisplayName turns an email into a greeting name: the local part,
// title-cased. "JANE@example.com" → "Jane".
func DisplayName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return cases.Title(language.English).String(local)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
