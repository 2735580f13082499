package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/pasta/config"
)

func newLoginRequest(password, clientIP string) *http.Request {
	req := jsonRequest("POST", "/api/auth/login", gin.H{"password": password})
	if clientIP != "" {
		req.Header.Set("X-Forwarded-For", clientIP)
	}
	return req
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAuthHandler_LoginSuccess(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.Production = true })

	w := s.do(newLoginRequest(testPassword, "203.0.113.1"))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	cookie := findCookie(w, CookieName)
	if cookie == nil {
		t.Fatal("Expected session cookie")
	}
	if !cookie.HttpOnly || !cookie.Secure || cookie.SameSite != http.SameSiteStrictMode {
		t.Errorf("Unexpected cookie attributes: %+v", cookie)
	}
	if cookie.Path != "/" || cookie.MaxAge != 7*24*60*60 {
		t.Errorf("Expected Path=/ and Max-Age of 7 days, got %q %d", cookie.Path, cookie.MaxAge)
	}
	if !s.tokens.Verify(cookie.Value) {
		t.Errorf("Expected a verifiable token in the cookie")
	}

	// The cookie authorizes writes.
	req := jsonRequest("POST", "/api/files", gin.H{"filename": "a.txt", "content": "x"})
	req.AddCookie(cookie)
	if w := s.do(req); w.Code != http.StatusCreated {
		t.Errorf("Expected 201 with login cookie, got %d", w.Code)
	}
}

func TestAuthHandler_CookieNotSecureOutsideProduction(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(newLoginRequest(testPassword, ""))
	cookie := findCookie(w, CookieName)
	if cookie == nil || cookie.Secure {
		t.Errorf("Expected a non-secure cookie, got %+v", cookie)
	}
}

func TestAuthHandler_InvalidPassword(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(newLoginRequest("wrong", "203.0.113.1"))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Invalid password") {
		t.Errorf("Expected Invalid password, got %s", w.Body.String())
	}
	if findCookie(w, CookieName) != nil {
		t.Error("No cookie may be set on a failed login")
	}
}

func TestAuthHandler_Throttle(t *testing.T) {
	s := newTestServer(t, nil)

	for i := 0; i < 3; i++ {
		if w := s.do(newLoginRequest("wrong", "198.51.100.7")); w.Code != http.StatusUnauthorized {
			t.Fatalf("Attempt %d: expected 401, got %d", i+1, w.Code)
		}
	}

	// Fourth attempt is rejected even with the right password.
	w := s.do(newLoginRequest(testPassword, "198.51.100.7"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Too many login attempts. Try again in a minute.") {
		t.Errorf("Unexpected throttle body: %s", w.Body.String())
	}

	// Another client is unaffected.
	if w := s.do(newLoginRequest(testPassword, "198.51.100.8")); w.Code != http.StatusOK {
		t.Errorf("Expected other client to log in, got %d", w.Code)
	}
}

func TestAuthHandler_Misconfigured(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.AuthPassword = "" })

	w := s.do(newLoginRequest("anything", ""))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Server misconfigured") {
		t.Errorf("Expected Server misconfigured, got %s", w.Body.String())
	}
}

func TestAuthHandler_LogoutAndStatus(t *testing.T) {
	s := newTestServer(t, nil)

	status := func(req *http.Request) string {
		w := s.do(req)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200 from status, got %d", w.Code)
		}
		return strings.TrimSpace(w.Body.String())
	}

	if got := status(httptest.NewRequest("GET", "/api/auth/status", nil)); got != `{"authenticated":false}` {
		t.Errorf("Expected anonymous status, got %s", got)
	}
	if got := status(s.authed(t, httptest.NewRequest("GET", "/api/auth/status", nil))); got != `{"authenticated":true}` {
		t.Errorf("Expected authenticated status, got %s", got)
	}

	w := s.do(s.authed(t, httptest.NewRequest("POST", "/api/auth/logout", nil)))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	cookie := findCookie(w, CookieName)
	if cookie == nil || cookie.Value != "" || cookie.MaxAge >= 0 {
		t.Errorf("Expected a clearing cookie, got %+v", cookie)
	}
}
