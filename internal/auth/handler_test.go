package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeAuthService struct {
	registerFn     func(ctx context.Context, name, email, password string) (*User, error)
	loginFn        func(ctx context.Context, email, password string) (*User, *TokenPair, time.Time, error)
	refreshFn      func(ctx context.Context, refreshToken string) (string, error)
	logoutFn       func(ctx context.Context, refreshToken string) error
	profileFn      func(ctx context.Context, userID int64) (*User, error)
	verifyAccessFn func(token string) (*AccessClaims, error)
}

func (f *fakeAuthService) Register(ctx context.Context, name, email, password string) (*User, error) {
	return f.registerFn(ctx, name, email, password)
}
func (f *fakeAuthService) Login(ctx context.Context, email, password string) (*User, *TokenPair, time.Time, error) {
	return f.loginFn(ctx, email, password)
}
func (f *fakeAuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	return f.refreshFn(ctx, refreshToken)
}
func (f *fakeAuthService) Logout(ctx context.Context, refreshToken string) error {
	return f.logoutFn(ctx, refreshToken)
}
func (f *fakeAuthService) Profile(ctx context.Context, userID int64) (*User, error) {
	return f.profileFn(ctx, userID)
}
func (f *fakeAuthService) VerifyAccess(token string) (*AccessClaims, error) {
	return f.verifyAccessFn(token)
}

func jsonRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	return httptest.NewRequest(method, target, &buf)
}

func TestRegisterCreated(t *testing.T) {
	svc := &fakeAuthService{
		registerFn: func(ctx context.Context, name, email, password string) (*User, error) {
			return &User{ID: 1, Name: name, Email: email, Role: RoleUser}, nil
		},
	}
	h := NewHandler(svc, false)

	rec := httptest.NewRecorder()
	h.Register(rec, jsonRequest(t, http.MethodPost, "/api/v1/auth/register", registerRequest{
		Name: "Ada", Email: "ada@example.test", Password: "secret123",
	}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := &fakeAuthService{
		registerFn: func(ctx context.Context, name, email, password string) (*User, error) {
			return nil, ErrEmailTaken
		},
	}
	h := NewHandler(svc, false)

	rec := httptest.NewRecorder()
	h.Register(rec, jsonRequest(t, http.MethodPost, "/api/v1/auth/register", registerRequest{
		Name: "Ada", Email: "ada@example.test", Password: "secret123",
	}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestLoginUnknownEmailVsWrongPassword(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantMessage string
	}{
		{"unknown email", ErrUserNotFound, "register first"},
		{"wrong password", ErrInvalidCredentials, "invalid credentials"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeAuthService{
				loginFn: func(ctx context.Context, email, password string) (*User, *TokenPair, time.Time, error) {
					return nil, nil, time.Time{}, tc.err
				},
			}
			h := NewHandler(svc, false)

			rec := httptest.NewRecorder()
			h.Login(rec, jsonRequest(t, http.MethodPost, "/api/v1/auth/login", loginRequest{
				Email: "ada@example.test", Password: "whatever",
			}))

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tc.wantMessage) {
				t.Fatalf("body %q missing %q", rec.Body.String(), tc.wantMessage)
			}
		})
	}
}

func TestLoginSetsRefreshCookie(t *testing.T) {
	expiresAt := time.Now().Add(7 * 24 * time.Hour)
	svc := &fakeAuthService{
		loginFn: func(ctx context.Context, email, password string) (*User, *TokenPair, time.Time, error) {
			return &User{ID: 1, Email: email, Role: RoleUser},
				&TokenPair{AccessToken: "access", RefreshToken: "refresh"},
				expiresAt, nil
		},
	}
	h := NewHandler(svc, true)

	rec := httptest.NewRecorder()
	h.Login(rec, jsonRequest(t, http.MethodPost, "/api/v1/auth/login", loginRequest{
		Email: "ada@example.test", Password: "secret123",
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == refreshCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("refresh cookie not set")
	}
	if cookie.Value != "refresh" || !cookie.HttpOnly || !cookie.Secure {
		t.Fatalf("cookie = %+v, want http-only secure refresh token", cookie)
	}
	if !strings.Contains(rec.Body.String(), `"access_token":"access"`) {
		t.Fatalf("access token missing from body: %s", rec.Body.String())
	}
}

func TestRefreshStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"no token", ErrNoToken, http.StatusUnauthorized},
		{"unknown token", ErrUnknownToken, http.StatusForbidden},
		{"expired token", ErrInvalidToken, http.StatusForbidden},
		{"deleted user", ErrUserNotFound, http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeAuthService{
				refreshFn: func(ctx context.Context, refreshToken string) (string, error) {
					return "", tc.err
				},
			}
			h := NewHandler(svc, false)

			rec := httptest.NewRecorder()
			h.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil))

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestRefreshReturnsNewAccessToken(t *testing.T) {
	svc := &fakeAuthService{
		refreshFn: func(ctx context.Context, refreshToken string) (string, error) {
			if refreshToken != "stored_refresh" {
				t.Fatalf("refresh token = %q", refreshToken)
			}
			return "new_access", nil
		},
	}
	h := NewHandler(svc, false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "stored_refresh"})
	rec := httptest.NewRecorder()
	h.Refresh(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"access_token":"new_access"`) {
		t.Fatalf("body missing new access token: %s", rec.Body.String())
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	svc := &fakeAuthService{
		logoutFn: func(ctx context.Context, refreshToken string) error { return nil },
	}
	h := NewHandler(svc, false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "stored_refresh"})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == refreshCookieName && c.MaxAge < 0 && c.Value == "" {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("refresh cookie not cleared")
	}
}

func TestMeSetsNoCacheHeaders(t *testing.T) {
	svc := &fakeAuthService{
		profileFn: func(ctx context.Context, userID int64) (*User, error) {
			return &User{ID: userID, Name: "Ada", Email: "ada@example.test", Role: RoleUser}, nil
		},
	}
	h := NewHandler(svc, false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req = req.WithContext(ContextWithClaims(req.Context(), &AccessClaims{UserID: 5, Role: RoleUser}))
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Fatalf("Cache-Control = %q", cc)
	}
}

func TestRequireAuthRejectsMissingBearer(t *testing.T) {
	svc := &fakeAuthService{
		verifyAccessFn: func(token string) (*AccessClaims, error) {
			if token == "" {
				return nil, ErrInvalidToken
			}
			return &AccessClaims{UserID: 1, Role: RoleUser}, nil
		},
	}
	h := NewHandler(svc, false)

	next := h.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no header: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer sometoken")
	rec = httptest.NewRecorder()
	next.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid bearer: status = %d, want 200", rec.Code)
	}
}

func TestRequireRoles(t *testing.T) {
	h := NewHandler(&fakeAuthService{}, false)
	next := h.RequireRoles(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/quiz", nil)
	req = req.WithContext(ContextWithClaims(req.Context(), &AccessClaims{UserID: 1, Role: RoleUser}))
	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("player role: status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/quiz", nil)
	req = req.WithContext(ContextWithClaims(req.Context(), &AccessClaims{UserID: 1, Role: RoleAdmin}))
	rec = httptest.NewRecorder()
	next.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin role: status = %d, want 200", rec.Code)
	}
}
