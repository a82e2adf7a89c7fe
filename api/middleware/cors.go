package middleware

import (
	"net/http"
	"strings"

	"github.com/bloodbank/bloodbank-backend/pkg/config"
	"github.com/go-chi/cors"
)

// CORS allows browser clients from the configured origins. A "*" entry opens
// the API to any origin, in which case credentials are never allowed.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	origins := make([]string, 0, len(cfg.AllowedOrigins))
	wildcard := false
	for _, o := range cfg.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		wildcard = wildcard || o == "*"
		origins = append(origins, o)
	}

	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader, "Retry-After"},
		// browsers reject credentialed responses with a wildcard origin
		AllowCredentials: cfg.AllowCredentials && !wildcard,
		MaxAge:           int(cfg.MaxAge.Seconds()),
	})
}
