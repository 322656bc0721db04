// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dvpro/voxgate/internal/api/handlers"
	"github.com/dvpro/voxgate/internal/api/middleware"
	"github.com/dvpro/voxgate/internal/auth"
	"github.com/dvpro/voxgate/internal/config"
	"github.com/dvpro/voxgate/internal/database"
	"github.com/dvpro/voxgate/internal/metrics"
	"github.com/dvpro/voxgate/internal/models"
	"github.com/dvpro/voxgate/internal/proxy"
	"github.com/dvpro/voxgate/internal/quota"
	"github.com/dvpro/voxgate/internal/services"
)

// Dependencies holds everything the router needs
type Dependencies struct {
	Config          *config.AppConfig
	DB              *database.DB
	AuthService     *auth.Service
	LicenseStore    *models.LicenseStore
	QuotaEngine     *quota.Engine
	ActivityTracker *services.ActivityTracker
	MetricsManager  *metrics.Manager
	Version         string
}

// NewRouter creates and configures the main application router
func NewRouter(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.HTTPLogger)
	r.Use(middleware.CORS)

	authHandler := handlers.NewAuthHandler(deps.AuthService, deps.LicenseStore)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Version)
	proxyHandler := proxy.NewHandler(deps.Config.Config.Providers, deps.MetricsManager)
	rateLimiter := middleware.NewRateLimiter(deps.Config.Config.RateLimitPerMinute)

	r.Get("/health", healthHandler.Health)

	if deps.MetricsManager != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
			deps.MetricsManager.GetRegistry(),
			promhttp.HandlerOpts{},
		))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireToken(deps.AuthService, deps.MetricsManager))

			r.Get("/usage", authHandler.Usage)

			// Forwarded provider calls: rate limit, flag unusual
			// activity, burn quota, then hand off to the proxy.
			r.Route("/providers/{provider}", func(r chi.Router) {
				r.Use(rateLimiter.Handler)
				r.Use(trackActivity(deps.ActivityTracker))
				r.Use(middleware.ConsumeQuota(deps.QuotaEngine, deps.MetricsManager))
				r.HandleFunc("/*", proxyHandler.ServeHTTP)
			})
		})
	})

	return r
}

// trackActivity records the caller's IP against the license in the
// background. Tracking never blocks or fails the request.
func trackActivity(tracker *services.ActivityTracker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tracker != nil {
				if lic := middleware.LicenseFromContext(r.Context()); lic != nil {
					key, ip := lic.Key, r.RemoteAddr
					go func() {
						ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
						defer cancel()
						suspicious, reason, err := tracker.Track(ctx, key, ip)
						if err != nil {
							log.Error().Err(err).Msg("Failed to track license activity")
						} else if suspicious {
							log.Warn().Str("reason", reason).Msg("License flagged as suspicious")
						}
					}()
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
