package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"quizdesk/internal/db"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoToken            = errors.New("no refresh token provided")
	ErrUnknownToken       = errors.New("unknown refresh token")
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

type Service struct {
	db         *sql.DB
	tokens     *TokenService
	bcryptCost int
}

type ServiceConfig struct {
	Tokens     *TokenService
	BcryptCost int
}

type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func NewService(dbConn *sql.DB, cfg ServiceConfig) *Service {
	if cfg.BcryptCost < bcrypt.MinCost {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		db:         dbConn,
		tokens:     cfg.Tokens,
		bcryptCost: cfg.BcryptCost,
	}
}

// Register creates a USER account. It does not log the user in.
func (s *Service) Register(ctx context.Context, name, email, password string) (*User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return nil, ErrInvalidInput
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidInput
	}

	var existingID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM users WHERE email = $1
	`, email).Scan(&existingID)
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check existing email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{Name: name, Email: email, Role: RoleUser}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id
	`, name, email, string(hash), RoleUser).Scan(&u.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return u, nil
}

// Login verifies credentials, issues an access+refresh pair and persists the
// refresh token. The returned time is the refresh token expiry for the cookie.
func (s *Service) Login(ctx context.Context, email, password string) (*User, *TokenPair, time.Time, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, nil, time.Time{}, ErrInvalidInput
	}

	var u User
	var passwordHash string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, role, password_hash
		FROM users
		WHERE email = $1
	`, email).Scan(&u.ID, &u.Name, &u.Email, &u.Role, &passwordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, time.Time{}, ErrUserNotFound
		}
		return nil, nil, time.Time{}, fmt.Errorf("query user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return nil, nil, time.Time{}, ErrInvalidCredentials
	}

	accessToken, err := s.tokens.IssueAccess(u.ID, u.Role)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, expiresAt, err := s.tokens.IssueRefresh(u.ID)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("issue refresh token: %w", err)
	}

	// Multiple live refresh tokens per user are allowed (multi-device).
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, refreshToken, u.ID, expiresAt)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return &u, &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, expiresAt, nil
}

// Refresh exchanges a persisted refresh token for a new access token. The
// refresh token itself is not rotated; it stays valid until logout or expiry.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return "", ErrNoToken
	}

	var userID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM refresh_tokens WHERE token = $1
	`, refreshToken).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrUnknownToken
		}
		return "", fmt.Errorf("lookup refresh token: %w", err)
	}

	if _, err := s.tokens.VerifyRefresh(refreshToken); err != nil {
		// The stored record is dead weight once verification fails.
		_, _ = s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token = $1`, refreshToken)
		return "", ErrInvalidToken
	}

	// Read the live user so a role change takes effect on the next access token.
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return "", err
	}

	accessToken, err := s.tokens.IssueAccess(user.ID, user.Role)
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}
	return accessToken, nil
}

// Logout deletes the persisted refresh token. Unknown or empty tokens are not
// an error; logout is idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token = $1`, refreshToken); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// Profile reads the user fresh from storage, never from token claims.
func (s *Service) Profile(ctx context.Context, userID int64) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, role
		FROM users
		WHERE id = $1
	`, userID).Scan(&u.ID, &u.Name, &u.Email, &u.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return &u, nil
}

func (s *Service) VerifyAccess(token string) (*AccessClaims, error) {
	return s.tokens.VerifyAccess(token)
}
