package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andrebq/doorman/credentials"
	"github.com/andrebq/doorman/gate"
	"github.com/andrebq/doorman/internal/logutil"
	"github.com/andrebq/doorman/internal/storeerr"
	"github.com/andrebq/doorman/passwd"
	"github.com/andrebq/doorman/throttle"
	"github.com/julienschmidt/httprouter"
)

const (
	maxFormBytes = 16 << 10
	// seconds a client should wait before retrying after a store outage
	unavailableRetryAfter = 5
)

type (
	SecurityRealm struct {
		gate           *gate.Gate
		insecureCookie bool
		trustProxy     bool
		allowRegister  bool
		strictTLS      bool
		upstream       http.Handler
	}

	Option func(*SecurityRealm)

	sessionInfo struct {
		Username string `json:"username"`
	}
)

// InsecureCookie allows cookies without the Secure attribute on requests
// that did not arrive over TLS. Requests over TLS, or forwarded as https by
// a trusted proxy, always get Secure cookies.
func InsecureCookie(allow bool) Option {
	return func(s *SecurityRealm) { s.insecureCookie = allow }
}

// TrustProxy uses the first X-Forwarded-For entry to identify clients.
func TrustProxy(trust bool) Option {
	return func(s *SecurityRealm) { s.trustProxy = trust }
}

func AllowRegister(allow bool) Option {
	return func(s *SecurityRealm) { s.allowRegister = allow }
}

// StrictTransport adds the Strict-Transport-Security header, only use it
// when the server is reachable exclusively over TLS.
func StrictTransport(enable bool) Option {
	return func(s *SecurityRealm) { s.strictTLS = enable }
}

// Upstream serves every path not handled by the realm with h, for
// authenticated requests only.
func Upstream(h http.Handler) Option {
	return func(s *SecurityRealm) { s.upstream = h }
}

func NewRealm(g *gate.Gate, opts ...Option) *SecurityRealm {
	s := &SecurityRealm{gate: g, allowRegister: true}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes returns the login, logout and registration endpoints together with
// the protected resources.
func (s *SecurityRealm) Routes() http.Handler {
	router := httprouter.New()
	router.HandlerFunc("GET", "/", s.hello)
	router.HandlerFunc("POST", "/login", s.login)
	router.Handler("GET", "/protected", s.Protect(http.HandlerFunc(s.protected)))
	router.Handler("GET", "/session", s.Protect(http.HandlerFunc(s.session)))
	router.HandlerFunc("GET", "/logout", s.logout)
	router.HandlerFunc("POST", "/logout", s.logout)
	if s.allowRegister {
		router.HandlerFunc("POST", "/register", s.register)
	}
	if s.upstream != nil {
		router.NotFound = s.Protect(s.upstream)
	}
	return SecureHeaders(router, s.strictTLS)
}

// Protect only calls sensitive for authenticated requests, the principal
// is available through gate.PrincipalFrom.
func (s *SecurityRealm) Protect(sensitive http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok, err := s.gate.Authenticate(r.Context(), s.cookieValue(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !ok {
			http.Error(w, "Unauthorized. Please log in first.", http.StatusUnauthorized)
			return
		}
		sensitive.ServeHTTP(w, r.WithContext(gate.WithPrincipal(r.Context(), p)))
	})
}

func (s *SecurityRealm) hello(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "Hello")
}

func (s *SecurityRealm) login(w http.ResponseWriter, r *http.Request) {
	username, password, ok := readCredentials(w, r)
	if !ok {
		return
	}
	defer password.Zero()
	issued, err := s.gate.Login(r.Context(), username, password, s.clientID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.SetCookie(w, s.cookie(r, issued.Name, issued.Value, issued.Expires))
	http.Redirect(w, r, "/protected", http.StatusSeeOther)
}

func (s *SecurityRealm) protected(w http.ResponseWriter, r *http.Request) {
	p, _ := gate.PrincipalFrom(r.Context())
	writeText(w, http.StatusOK, fmt.Sprintf("Hello %v, you are authenticated!", p.Username))
}

func (s *SecurityRealm) session(w http.ResponseWriter, r *http.Request) {
	p, _ := gate.PrincipalFrom(r.Context())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(sessionInfo{Username: p.Username})
}

func (s *SecurityRealm) logout(w http.ResponseWriter, r *http.Request) {
	err := s.gate.Logout(r.Context(), s.cookieValue(r))
	if err != nil {
		logutil.GetOrDefault(r.Context()).Error().Err(err).Msg("Unable to release session during logout")
	}
	expired := s.cookie(r, s.gate.CookieName(), "", time.Unix(0, 0))
	expired.MaxAge = -1
	http.SetCookie(w, expired)
	writeText(w, http.StatusOK, "Logout successful!")
}

func (s *SecurityRealm) register(w http.ResponseWriter, r *http.Request) {
	username, password, ok := readCredentials(w, r)
	if !ok {
		return
	}
	defer password.Zero()
	_, err := s.gate.Register(r.Context(), username, password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeText(w, http.StatusCreated, "User registered successfully!")
}

func (s *SecurityRealm) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var limited throttle.RateLimited
	var invalid credentials.InvalidInput
	switch {
	case errors.Is(err, gate.ErrInvalidCredentials):
		writeText(w, http.StatusUnauthorized, "Invalid username or password.")
	case errors.As(err, &limited):
		w.Header().Set("Retry-After", retryAfter(limited.RetryAfter))
		writeText(w, http.StatusTooManyRequests, "Too many login attempts. Please try again later.")
	case errors.Is(err, credentials.ErrDuplicate):
		writeText(w, http.StatusBadRequest, "Username already exists.")
	case errors.As(err, &invalid):
		writeText(w, http.StatusBadRequest, fmt.Sprintf("Invalid %v: %v.", invalid.Field, invalid.Reason))
	case errors.Is(err, storeerr.Unavailable{}):
		logutil.GetOrDefault(r.Context()).Error().Err(err).Msg("Backing store unavailable")
		w.Header().Set("Retry-After", strconv.Itoa(unavailableRetryAfter))
		writeText(w, http.StatusServiceUnavailable, "Service unavailable. Please try again later.")
	default:
		logutil.GetOrDefault(r.Context()).Error().Err(err).Msg("Unexpected error")
		writeText(w, http.StatusInternalServerError, "Server error. Please try again later.")
	}
}

func (s *SecurityRealm) cookie(r *http.Request, name, value string, expires time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   !s.insecureCookie || s.confidential(r),
		SameSite: http.SameSiteLaxMode,
	}
	if !expires.IsZero() {
		c.Expires = expires
		if maxAge := int(time.Until(expires).Seconds()); maxAge > 0 {
			c.MaxAge = maxAge
		}
	}
	return c
}

func (s *SecurityRealm) cookieValue(r *http.Request) string {
	c, err := r.Cookie(s.gate.CookieName())
	if err != nil {
		return ""
	}
	return c.Value
}

func (s *SecurityRealm) confidential(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if !s.trustProxy {
		return false
	}
	proto, _, _ := strings.Cut(r.Header.Get("X-Forwarded-Proto"), ",")
	return strings.EqualFold(strings.TrimSpace(proto), "https")
}

func (s *SecurityRealm) clientID(r *http.Request) string {
	if s.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func readCredentials(w http.ResponseWriter, r *http.Request) (string, passwd.PlainText, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		writeText(w, http.StatusBadRequest, "Invalid form.")
		return "", nil, false
	}
	return r.PostForm.Get("username"), passwd.PlainText(r.PostForm.Get("password")), true
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(msg))
}

func retryAfter(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
