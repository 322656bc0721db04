// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package proxy forwards authenticated, quota-checked requests to the
// configured upstream providers, swapping the caller's bearer token
// for the provider credential that matches the license tier.
package proxy

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dvpro/voxgate/internal/api/apierr"
	"github.com/dvpro/voxgate/internal/api/middleware"
	"github.com/dvpro/voxgate/internal/domain"
	"github.com/dvpro/voxgate/internal/metrics"
)

// Handler manages reverse proxy requests to upstream providers
type Handler struct {
	providers  map[string]domain.ProviderConfig
	metrics    *metrics.Manager
	bufferPool *BufferPool
	proxy      *httputil.ReverseProxy
}

// NewHandler creates a new proxy handler for the configured providers
func NewHandler(providers map[string]domain.ProviderConfig, metricsManager *metrics.Manager) *Handler {
	bufferPool := NewBufferPool()

	h := &Handler{
		providers:  providers,
		metrics:    metricsManager,
		bufferPool: bufferPool,
	}

	h.proxy = &httputil.ReverseProxy{
		Rewrite:        h.rewriteRequest,
		BufferPool:     bufferPool,
		ModifyResponse: h.modifyResponse,
		ErrorHandler:   h.errorHandler,
	}

	return h
}

// ServeHTTP handles the reverse proxy request
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if _, ok := h.providers[provider]; !ok {
		log.Debug().Str("provider", provider).Msg("Request for unknown provider")
		render.Render(w, r, apierr.ErrUnknownProvider)
		return
	}
	h.proxy.ServeHTTP(w, r)
}

// rewriteRequest retargets the outbound request at the provider's base
// URL and replaces the caller's credentials with the gateway's own.
func (h *Handler) rewriteRequest(pr *httputil.ProxyRequest) {
	provider := chi.URLParam(pr.In, "provider")
	cfg, ok := h.providers[provider]
	if !ok {
		// ServeHTTP already rejected unknown providers
		return
	}

	lic := middleware.LicenseFromContext(pr.In.Context())
	if lic == nil {
		log.Error().Str("provider", provider).Msg("Missing license in proxy request context")
		return
	}

	targetURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		log.Error().Err(err).Str("provider", provider).Str("baseUrl", cfg.BaseURL).Msg("Failed to parse provider base URL")
		return
	}

	originalPath := pr.In.URL.Path
	strippedPath := h.stripGatewayPrefix(originalPath, provider)

	requestID := uuid.NewString()

	log.Debug().
		Str("provider", provider).
		Str("tier", string(lic.Tier)).
		Str("requestId", requestID).
		Str("originalPath", originalPath).
		Str("strippedPath", strippedPath).
		Str("targetHost", targetURL.Host).
		Msg("Rewriting proxy request")

	pr.SetURL(targetURL)

	pr.Out.URL.Path = joinPath(targetURL.Path, strippedPath)
	pr.Out.URL.RawPath = ""

	// Preserve query parameters
	pr.Out.URL.RawQuery = pr.In.URL.RawQuery

	pr.Out.Host = targetURL.Host

	// The client's bearer token must never reach the provider. The
	// provider sees only the gateway's own credential for the tier.
	pr.Out.Header.Del("Authorization")
	if key := cfg.APIKeys.ForTier(string(lic.Tier)); key != "" {
		pr.Out.Header.Set("Authorization", "Bearer "+key)
	}

	pr.Out.Header.Set("X-Request-ID", requestID)
	pr.Out.Header.Set("X-Forwarded-For", pr.In.RemoteAddr)
}

// stripGatewayPrefix removes the gateway route prefix from the URL path
func (h *Handler) stripGatewayPrefix(path, provider string) string {
	prefix := "/api/v1/providers/" + provider
	if after, found := strings.CutPrefix(path, prefix); found {
		if after == "" {
			return "/"
		}
		return after
	}
	return path
}

// joinPath joins the provider base path with the request path without
// doubling slashes.
func joinPath(base, rest string) string {
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}
	return base + rest
}

// modifyResponse records the upstream status code for metrics
func (h *Handler) modifyResponse(resp *http.Response) error {
	provider := chi.URLParam(resp.Request, "provider")
	h.metrics.RecordProxyRequest(provider, strconv.Itoa(resp.StatusCode))
	return nil
}

// errorHandler handles proxy errors
func (h *Handler) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	provider := chi.URLParam(r, "provider")

	log.Error().
		Err(err).
		Str("provider", provider).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("Proxy request failed")

	h.metrics.RecordProxyRequest(provider, "502")

	// Return a generic error to avoid leaking internal details
	render.Render(w, r, apierr.ErrProvider)
}
