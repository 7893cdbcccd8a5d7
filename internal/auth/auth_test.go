package auth

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newEnv(t *testing.T) *Authenv {
	t.Helper()
	env, err := NewAuthenv("secret", "", "ASA2026", time.Hour)
	if err != nil {
		t.Fatalf("NewAuthenv: %v", err)
	}
	return env
}

func login(env *Authenv, key string) *httptest.ResponseRecorder {
	body := bytes.NewBufferString(`{"access_key":"` + key + `"}`)
	rec := httptest.NewRecorder()
	env.AuthHandler(rec, httptest.NewRequest(http.MethodPost, "/api/login", body))
	return rec
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	return nil
}

func protected() (http.Handler, *string) {
	var seen string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = SessionID(r.Context())
	})
	return h, &seen
}

func TestNewAuthenv(t *testing.T) {
	if _, err := NewAuthenv("", "", "k", time.Hour); err == nil {
		t.Error("expected error without token key")
	}
	if _, err := NewAuthenv("s", "", "", time.Hour); !errors.Is(err, ErrNoAccessKey) {
		t.Errorf("expected ErrNoAccessKey, got %v", err)
	}
	if _, err := NewAuthenv("s", "plain-not-a-hash", "", time.Hour); err == nil {
		t.Error("expected error for a non-bcrypt hash")
	}
	hash, _ := HashPassword("k")
	if _, err := NewAuthenv("s", hash, "", time.Hour); err != nil {
		t.Errorf("hash config rejected: %v", err)
	}
}

func TestLoginAndMiddleware(t *testing.T) {
	env := newEnv(t)

	rec := login(env, "ASA2026")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	cookie := sessionCookie(rec)
	if cookie == nil || !cookie.HttpOnly {
		t.Fatalf("expected http-only session cookie, got %+v", cookie)
	}

	next, seen := protected()
	req := httptest.NewRequest(http.MethodPost, "/api/user/tools/predict/calc", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	env.AuthMiddleware(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || *seen == "" {
		t.Fatalf("expected authorised request with session id, got %d %q", rec.Code, *seen)
	}
}

func TestLoginRejects(t *testing.T) {
	env := newEnv(t)
	if rec := login(env, "wrong"); rec.Code != http.StatusUnauthorized || sessionCookie(rec) != nil {
		t.Fatalf("wrong key: got %d", rec.Code)
	}
	if rec := login(env, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty key: got %d", rec.Code)
	}
	rec := httptest.NewRecorder()
	env.AuthHandler(rec, httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewBufferString("{")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: got %d", rec.Code)
	}
}

func TestMiddlewareRejects(t *testing.T) {
	env := newEnv(t)
	next, _ := protected()

	sign := func(key []byte, exp time.Time) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			ID:        "sid",
			ExpiresAt: jwt.NewNumericDate(exp),
		})
		s, _ := tok.SignedString(key)
		return s
	}
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		ID:        "sid",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := map[string]string{
		"no cookie": "",
		"garbage":   "not-a-jwt",
		"wrong key": sign([]byte("other"), time.Now().Add(time.Hour)),
		"expired":   sign(env.JWTkey, time.Now().Add(-time.Hour)),
		"alg none":  none,
	}
	for name, value := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/user/feedback", nil)
		if value != "" {
			req.AddCookie(&http.Cookie{Name: cookieName, Value: value})
		}
		rec := httptest.NewRecorder()
		env.AuthMiddleware(next).ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", name, rec.Code)
		}
	}
}

func TestLogout(t *testing.T) {
	env := newEnv(t)
	rec := httptest.NewRecorder()
	env.LogoutHandler(rec, httptest.NewRequest(http.MethodPost, "/api/logout", nil))
	c := sessionCookie(rec)
	if rec.Code != http.StatusNoContent || c == nil || c.MaxAge >= 0 {
		t.Fatalf("expected expired cookie, got %d %+v", rec.Code, c)
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := NewIPRateLimiter(0, 2)
	h := limiter.LimitMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/login", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/login", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other client should not share the bucket, got %d", rec.Code)
	}
}
