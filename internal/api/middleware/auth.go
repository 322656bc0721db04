// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/render"
	"github.com/rs/zerolog/log"

	"github.com/dvpro/voxgate/internal/api/apierr"
	"github.com/dvpro/voxgate/internal/auth"
	"github.com/dvpro/voxgate/internal/metrics"
	"github.com/dvpro/voxgate/internal/models"
	"github.com/dvpro/voxgate/internal/quota"
)

type contextKey string

const (
	sessionContextKey contextKey = "session"
	licenseContextKey contextKey = "license"
)

// BearerToken extracts the token from an Authorization header,
// returning "" when the header is absent or malformed.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireToken resolves the bearer token to a session and a
// re-validated license, rejecting with a structured denial otherwise.
// The license status and expiry are checked per call, never cached
// from login time.
func RequireToken(authService *auth.Service, m *metrics.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				render.Render(w, r, apierr.ErrInvalidRequest("Missing or malformed Authorization header"))
				return
			}

			session, lic, err := authService.Authorize(r.Context(), token)
			if err != nil {
				resp := apierr.FromError(err)
				if resp.HTTPStatusCode == http.StatusInternalServerError {
					log.Error().Err(err).Msg("Token authorization failed")
				} else {
					log.Debug().Str("code", resp.AppCode).Msg("Request denied")
				}
				m.RecordDenial(resp.AppCode)
				render.Render(w, r, resp)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, session)
			ctx = context.WithValue(ctx, licenseContextKey, lic)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ConsumeQuota spends one usage unit for the authenticated license
// before the request reaches the provider. Denials short-circuit; the
// provider call is never attempted.
func ConsumeQuota(engine *quota.Engine, m *metrics.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lic := LicenseFromContext(r.Context())
			if lic == nil {
				render.Render(w, r, apierr.ErrInternal(nil))
				return
			}

			remaining, err := engine.CheckAndConsume(r.Context(), lic)
			if err != nil {
				resp := apierr.FromError(err)
				if resp.HTTPStatusCode == http.StatusInternalServerError {
					log.Error().Err(err).Str("licenseKey", lic.Key).Msg("Quota check failed")
				}
				m.RecordDenial(resp.AppCode)
				render.Render(w, r, resp)
				return
			}

			if remaining >= 0 {
				w.Header().Set("X-Quota-Remaining", strconv.Itoa(remaining))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionFromContext retrieves the authenticated session from the
// request context.
func SessionFromContext(ctx context.Context) *models.Session {
	if session, ok := ctx.Value(sessionContextKey).(*models.Session); ok {
		return session
	}
	return nil
}

// LicenseFromContext retrieves the re-validated license from the
// request context.
func LicenseFromContext(ctx context.Context) *models.License {
	if lic, ok := ctx.Value(licenseContextKey).(*models.License); ok {
		return lic
	}
	return nil
}
