package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mentormatch/server/internal/config"
	"mentormatch/server/internal/model"
)

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer abc":  "abc",
		"Bearer  abc": "abc",
		"Basic abc":   "",
		"abc":         "",
		"":            "",
	}
	for header, want := range cases {
		if got := bearerToken(header); got != want {
			t.Fatalf("bearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestExtractTokenCookieWinsOverHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	r.AddCookie(&http.Cookie{Name: authCookieName, Value: "cookie-token"})

	if got := extractToken(r); got != "cookie-token" {
		t.Fatalf("expected cookie to take precedence, got %q", got)
	}
}

func TestExtractTokenFallsBackToHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer header-token")

	if got := extractToken(r); got != "header-token" {
		t.Fatalf("expected header fallback, got %q", got)
	}

	empty := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := extractToken(empty); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}

func TestRoleAllowed(t *testing.T) {
	if !roleAllowed(model.RoleMentor, []model.Role{model.RoleMentor, model.RoleMentee}) {
		t.Fatalf("expected mentor to be allowed")
	}
	if roleAllowed(model.RoleMentee, []model.Role{model.RoleMentor}) {
		t.Fatalf("expected mentee to be rejected")
	}
	if roleAllowed("", nil) {
		t.Fatalf("expected empty role to be rejected")
	}
}

func TestAuthCookieAttributes(t *testing.T) {
	prod := &Server{cfg: config.Config{Environment: "production", TokenTTL: 7 * 24 * time.Hour}}
	rec := httptest.NewRecorder()
	prod.setAuthCookie(rec, "token-value")

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	cookie := cookies[0]
	if cookie.Name != authCookieName || cookie.Value != "token-value" {
		t.Fatalf("unexpected cookie %s=%s", cookie.Name, cookie.Value)
	}
	if !cookie.HttpOnly {
		t.Fatalf("cookie must be httpOnly")
	}
	// SameSite=None without Secure is rejected by browsers.
	if cookie.SameSite != http.SameSiteNoneMode || !cookie.Secure {
		t.Fatalf("production cookie must pair SameSite=None with Secure")
	}

	dev := &Server{cfg: config.Config{Environment: "development", TokenTTL: 7 * 24 * time.Hour}}
	rec = httptest.NewRecorder()
	dev.setAuthCookie(rec, "token-value")
	cookie = rec.Result().Cookies()[0]
	if cookie.SameSite != http.SameSiteLaxMode || cookie.Secure {
		t.Fatalf("development cookie must be SameSite=Lax without Secure")
	}
}

func TestClearAuthCookie(t *testing.T) {
	s := &Server{cfg: config.Config{Environment: "development"}}
	rec := httptest.NewRecorder()
	s.clearAuthCookie(rec)

	cookie := rec.Result().Cookies()[0]
	if cookie.Value != "" || cookie.MaxAge >= 0 {
		t.Fatalf("logout must overwrite the cookie with an expired empty value")
	}
	if !cookie.HttpOnly {
		t.Fatalf("cleared cookie must stay httpOnly")
	}
}
