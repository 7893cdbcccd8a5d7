package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"SmartMix/internal/logging"
)

const cookieName = "session_token"

type contextKey string

const sessionKey contextKey = "session"

var ErrNoAccessKey = errors.New("auth: no access key configured")

// Authenv verifies the shared access key and issues session cookies.
type Authenv struct {
	JWTkey  []byte
	KeyHash []byte
	TTL     time.Duration
	// Secure marks the cookie HTTPS-only.
	Secure bool
}

// NewAuthenv takes either a bcrypt hash of the access key or the plain key,
// which is hashed here.
func NewAuthenv(tokenKey, accessKeyHash, accessKey string, ttl time.Duration) (*Authenv, error) {
	if tokenKey == "" {
		return nil, errors.New("auth: TOKEN_KEY is not set")
	}
	hash := accessKeyHash
	if hash == "" {
		if accessKey == "" {
			return nil, ErrNoAccessKey
		}
		h, err := HashPassword(accessKey)
		if err != nil {
			return nil, err
		}
		hash = h
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, errors.New("auth: ACCESS_KEY_HASH is not a bcrypt hash")
	}
	return &Authenv{JWTkey: []byte(tokenKey), KeyHash: []byte(hash), TTL: ttl}, nil
}

type IPRateLimiter struct {
	ips map[string]*rate.Limiter
	mu  sync.Mutex
	r   rate.Limit
	b   int
}

type Loginrequest struct {
	AccessKey string `json:"access_key"`
}

type claims struct {
	jwt.RegisteredClaims
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		ips: make(map[string]*rate.Limiter),
		r:   r,
		b:   b,
	}
}

func (i *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	limiter, exists := i.ips[ip]
	if !exists {
		limiter = rate.NewLimiter(i.r, i.b)
		i.ips[ip] = limiter
	}
	return limiter
}

// LimitMiddleware rate limits per client IP.
func (i *IPRateLimiter) LimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !i.getLimiter(ip).Allow() {
			http.Error(w, "Too Many Requests. Try again later.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// SessionID returns the session bound to the request by AuthMiddleware.
func SessionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionKey).(string)
	return id, ok
}

func (env *Authenv) parse(tokenString string) (*claims, error) {
	c := &claims{}
	_, err := jwt.ParseWithClaims(tokenString, c, func(*jwt.Token) (interface{}, error) {
		return env.JWTkey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return c, nil
}

// RedirectIfLoggedIn sends users with a live session away from the login page.
func (env *Authenv) RedirectIfLoggedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(cookieName)
		if err == nil {
			if _, err := env.parse(cookie.Value); err == nil {
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (env *Authenv) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(cookieName)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := env.parse(cookie.Value)
		if err != nil || c.ID == "" {
			logging.Debug().Err(err).Msg("rejected session token")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey, c.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (env *Authenv) addCookie(w http.ResponseWriter) error {
	now := time.Now()
	expiration := now.Add(env.TTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiration),
	}})
	tokenString, err := token.SignedString(env.JWTkey)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    tokenString,
		Expires:  expiration,
		Path:     "/",
		HttpOnly: true,
		Secure:   env.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// AuthHandler exchanges the access key for a session cookie.
func (env *Authenv) AuthHandler(w http.ResponseWriter, r *http.Request) {
	var req Loginrequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if req.AccessKey == "" {
		http.Error(w, "Access key required", http.StatusBadRequest)
		return
	}
	if err := bcrypt.CompareHashAndPassword(env.KeyHash, []byte(req.AccessKey)); err != nil {
		logging.Info().Str("remote", r.RemoteAddr).Msg("login rejected")
		http.Error(w, "Invalid access key", http.StatusUnauthorized)
		return
	}
	if err := env.addCookie(w); err != nil {
		logging.Error().Err(err).Msg("sign session token")
		http.Error(w, "Session error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Authentication successful"))
}

// LogoutHandler expires the session cookie.
func (env *Authenv) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   env.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
