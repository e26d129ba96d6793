// Package upstream forwards authenticated requests to the service doorman
// protects.
package upstream

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/andrebq/doorman/gate"
	"github.com/andrebq/doorman/internal/logutil"
)

const (
	UserHeader = "X-Doorman-User"
)

// Handler proxies requests to target. It must be wrapped by a middleware
// that stores the principal in the request context, requests without one
// are rejected. The username is sent in UserHeader, any value sent by the
// client for that header is dropped.
func Handler(target *url.URL) http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logutil.GetOrDefault(r.Context()).Error().Err(err).Str("upstream", target.Host).Msg("Upstream request failed")
		http.Error(w, "Upstream unavailable.", http.StatusBadGateway)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := gate.PrincipalFrom(r.Context())
		if !ok {
			http.Error(w, "Unauthorized. Please log in first.", http.StatusUnauthorized)
			return
		}
		r = r.Clone(r.Context())
		r.Header.Set(UserHeader, p.Username)
		proxy.ServeHTTP(w, r)
	})
}
