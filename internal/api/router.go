package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lobby/internal/config"
	"lobby/internal/state"
)

// Server wraps a chi.Mux serving root-level paths (no /api/v1 prefix),
// with CORS following an allow-any/echo rule, and one coarse ambient
// throttle per route group layered over the scoped (scope, principal)
// limiter each handler applies itself.
//
// Grounded in lobby/internal/api/router.go's NewServer/ServeHTTP/Shutdown
// shape and middleware composition order (logger, Recoverer, CORS).
type Server struct {
	router *chi.Mux
}

// NewServer builds the full route table over s.
func NewServer(cfg *config.Config, s *state.State) *Server {
	ipResolver := NewClientIPResolver()
	h := NewHandlers(s, cfg.RobloxServerKey, ipResolver)

	r := chi.NewRouter()
	r.Use(slogRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.AllowedOrigins))

	r.Get("/", h.Banner)
	r.Post("/presence", h.PostPresence)
	r.Get("/presence/{u}", h.GetPresence)

	r.Route("/session", func(r chi.Router) {
		r.Use(ambientThrottle(120, time.Minute, ipResolver))
		r.Post("/create", h.PostSessionCreate)
		r.Post("/verify", h.PostSessionVerify)
	})

	r.With(ambientThrottle(120, time.Minute, ipResolver)).Get("/events/{u}", h.GetEvents)

	r.Route("/radio", func(r chi.Router) {
		r.Use(ambientThrottle(300, time.Minute, ipResolver))
		r.Post("/join", h.PostRadioJoin)
		r.Post("/mute", h.PostRadioMute)
		r.Post("/mute/server", h.PostRadioMuteServer)
		r.Get("/sync/{u}", h.GetRadioSync)
		r.Get("/poll/{u}", h.GetRadioPoll)
		r.Post("/state", h.PostRadioState)
		r.Get("/active", h.GetRadioActive)
	})

	return &Server{router: r}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// corsMiddleware allows any origin when allowedOrigins is empty, otherwise
// echoes the request's Origin only when it matches an entry in the
// allowlist. Replaces lobby/internal/api/router.go's wildcard-only
// corsMiddleware, which never needed an allowlist mode.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case len(allowed) == 0:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "":
				if _, ok := allowed[origin]; ok {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, x-roblox-key, x-radio-token")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if strings.HasPrefix(r.URL.Path, "/events/") {
			return // SSE connections stay open for minutes; skip per-request noise.
		}
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr,
		)
	})
}
