package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/marianozunino/cloudshare/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	ensured map[string]string
	err     error
}

func (f *fakeUsers) EnsureUser(_ context.Context, uid, email string) error {
	if f.err != nil {
		return f.err
	}
	f.ensured[uid] = email
	return nil
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "test response")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	headers := rec.Header()
	assert.Equal(t, "*", headers.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, DELETE, OPTIONS", headers.Get("Access-Control-Allow-Methods"))
	assert.Contains(t, headers.Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Equal(t, "max-age=63072000; includeSubDomains; preload", headers.Get("Strict-Transport-Security"))
	assert.Equal(t, "deny", headers.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", headers.Get("X-Content-Type-Options"))
	assert.Equal(t, "default-src 'none'; frame-ancestors 'none'", headers.Get("Content-Security-Policy"))
	assert.Equal(t, "no-referrer", headers.Get("Referrer-Policy"))
	assert.Empty(t, headers.Get("Server"))
}

func TestSecurityHeadersWithErrorResponse(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/error", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	})

	req := httptest.NewRequest(http.MethodGet, "/error", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func newAuthServer(verifier *identity.Verifier, users UserEnsurer) *echo.Echo {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		return c.JSON(http.StatusOK, CurrentUser(c))
	}, Authenticate(verifier, users))
	return e
}

func TestAuthenticate(t *testing.T) {
	verifier := identity.NewVerifier("secret")
	users := &fakeUsers{ensured: map[string]string{}}
	e := newAuthServer(verifier, users)

	token, err := verifier.IssueToken(identity.Session{UID: "u1", Email: "a@example.com", EmailVerified: true}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"uid":"u1"`)
	assert.Equal(t, "a@example.com", users.ensured["u1"])
}

func TestAuthenticateRejects(t *testing.T) {
	verifier := identity.NewVerifier("secret")

	unverified, err := verifier.IssueToken(identity.Session{UID: "u1", Email: "a@example.com"}, time.Hour)
	require.NoError(t, err)
	registering, err := verifier.IssueToken(identity.Session{UID: "u2", Registering: true}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		users  *fakeUsers
		want   int
	}{
		{"no header", "", &fakeUsers{ensured: map[string]string{}}, http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", &fakeUsers{ensured: map[string]string{}}, http.StatusUnauthorized},
		{"bad token", "Bearer nope", &fakeUsers{ensured: map[string]string{}}, http.StatusUnauthorized},
		{"unverified email", "Bearer " + unverified, &fakeUsers{ensured: map[string]string{}}, http.StatusForbidden},
		{"registering passes", "Bearer " + registering, &fakeUsers{ensured: map[string]string{}}, http.StatusOK},
		{"store failure", "Bearer " + registering, &fakeUsers{err: errors.New("locked")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newAuthServer(verifier, tt.users)
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAdminOnly(t *testing.T) {
	handler := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

	e := echo.New()
	e.POST("/admin", handler, AdminOnly("s3cret"))
	e.POST("/disabled", handler, AdminOnly(""))

	send := func(path, token string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		if token != "" {
			req.Header.Set("X-Admin-Token", token)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, send("/admin", "s3cret"))
	assert.Equal(t, http.StatusUnauthorized, send("/admin", "guess"))
	assert.Equal(t, http.StatusUnauthorized, send("/admin", ""))
	assert.Equal(t, http.StatusNotFound, send("/disabled", "anything"))
}

func TestRequestMetricsPassesThrough(t *testing.T) {
	e := echo.New()
	e.Use(RequestMetrics())
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/fail", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
