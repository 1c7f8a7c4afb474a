package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if g.metrics != nil {
		r.Use(metricsMiddleware(g.metrics))
	}
	r.Use(cors.New(cors.Options{
		AllowedOrigins: g.config.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
	}).Handler)

	// Public: no auth required.
	r.Get("/health", g.handleHealth())
	if g.metrics != nil {
		r.Handle("/metrics", g.metrics.Handler())
	}

	// Webhooks authenticate per source.
	r.Post("/webhooks/{source}", g.dispatcher.ServeHTTP)

	r.Group(func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.logger))
		}
		r.Get("/status", g.handleStatus())
		r.Route(g.config.Prefix, func(r chi.Router) {
			r.Use(g.requireControl)
			r.Use(g.limitBody)

			r.Post("/access", g.handleAccess())
			r.Post("/guild", g.handleGuild())
			r.Post("/role", g.handleRole())
			r.Get("/info/{platformGuildId}", g.handleInfo())
			r.Post("/resolveUser", g.handleResolveUser())
			r.Post("/isMember", g.handleIsMember())
			r.Get("/isIn/{groupId}", g.handleIsIn())
			r.Get("/user/{platformUserId}", g.handleUser())
			r.Get("/decisions", g.handleDecisions())
			r.Get("/{groupId}", g.handleGroupName())
		})
	})

	return r
}

// requireControl answers 503 until the membership service is available.
func (g *Gateway) requireControl(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.control == nil {
			writeErrors(w, http.StatusServiceUnavailable, errorItem{Msg: "service unavailable"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes)
		next.ServeHTTP(w, r)
	})
}
