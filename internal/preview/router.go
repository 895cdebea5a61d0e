// Package preview serves the generated blog over HTTP using chi.
package preview

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter serves the output directory under baseURL. A non-empty token
// requires "Authorization: Bearer <token>" on blog requests; health checks
// stay open.
func NewRouter(outputDir, baseURL, token string) chi.Router {
	base := "/" + strings.Trim(baseURL, "/")
	if base == "/" {
		base = ""
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	files := http.StripPrefix(base, http.FileServer(http.Dir(outputDir)))
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(token))
		if base != "" {
			r.Get("/", func(w http.ResponseWriter, req *http.Request) {
				http.Redirect(w, req, base+"/", http.StatusFound)
			})
			r.Get(base, func(w http.ResponseWriter, req *http.Request) {
				http.Redirect(w, req, base+"/", http.StatusMovedPermanently)
			})
		}
		r.Get(base+"/*", files.ServeHTTP)
	})
	return r
}

// AuthMiddleware validates a Bearer token. An empty token disables the check.
func AuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}
