package httpapi

import (
	"crypto/subtle"
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
)

// Middleware bundles the outer HTTP layers around the API routes.
type Middleware struct {
	// APIKey is the pre-shared key expected in X-API-Key. Empty disables
	// authentication.
	APIKey string

	// CORSOrigins lists allowed origins. Empty allows every origin.
	CORSOrigins []string

	// Gzip enables response compression for clients that accept it.
	Gzip bool
}

// Wrap layers the middleware around next. Authentication sits innermost so
// CORS preflights never require a key; compression sits outermost.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	h := next

	if m.APIKey != "" {
		h = requireAPIKey(h, m.APIKey)
	}

	h = cors.New(cors.Options{
		AllowedOrigins: m.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"X-API-Key", "Content-Type"},
	}).Handler(h)

	if m.Gzip {
		h = gzhttp.GzipHandler(h)
	}

	return h
}

// requireAPIKey rejects requests whose X-API-Key header does not match key.
func requireAPIKey(next http.Handler, key string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
