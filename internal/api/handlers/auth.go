// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
	"github.com/rs/zerolog/log"

	"github.com/dvpro/voxgate/internal/api/apierr"
	"github.com/dvpro/voxgate/internal/api/middleware"
	"github.com/dvpro/voxgate/internal/auth"
	"github.com/dvpro/voxgate/internal/models"
)

type AuthHandler struct {
	authService *auth.Service
	licenses    *models.LicenseStore
}

func NewAuthHandler(authService *auth.Service, licenses *models.LicenseStore) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		licenses:    licenses,
	}
}

// LoginRequest represents a login request
type LoginRequest struct {
	LicenseKey string `json:"license_key"`
	MachineID  string `json:"machine_id"`
}

// LoginResponse is returned on a successful login
type LoginResponse struct {
	Token     string            `json:"token"`
	ExpiresAt string            `json:"expires_at"`
	Tier      models.Tier       `json:"tier"`
	DaysLeft  int               `json:"days_left"`
	Usage     *models.UsageInfo `json:"usage,omitempty"`
}

// Login exchanges a license key and machine ID for a session token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Render(w, r, apierr.ErrInvalidRequest("Invalid request body"))
		return
	}

	if req.LicenseKey == "" {
		render.Render(w, r, apierr.ErrInvalidRequest("license_key is required"))
		return
	}

	token, session, lic, err := h.authService.Login(r.Context(), req.LicenseKey, req.MachineID)
	if err != nil {
		resp := apierr.FromError(err)
		if resp.HTTPStatusCode == http.StatusInternalServerError {
			log.Error().Err(err).Msg("Login failed")
		} else {
			log.Info().Str("code", resp.AppCode).Msg("Login denied")
		}
		render.Render(w, r, resp)
		return
	}

	usage, err := h.licenses.UsageInfo(r.Context(), lic.Key)
	if err != nil {
		// The login itself succeeded; the quota summary is best-effort.
		log.Warn().Err(err).Msg("Failed to load usage info for login response")
		usage = nil
	}

	log.Info().
		Str("tier", string(lic.Tier)).
		Time("sessionExpiresAt", session.ExpiresAt).
		Msg("License logged in")

	RespondJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: session.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"),
		Tier:      lic.Tier,
		DaysLeft:  lic.DaysLeft(session.CreatedAt),
		Usage:     usage,
	})
}

// Logout revokes the presented token. It always reports success so a
// client can treat itself as logged out regardless of token state.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if token != "" {
		if err := h.authService.Logout(r.Context(), token); err != nil {
			log.Error().Err(err).Msg("Failed to revoke session")
		}
	}

	RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Usage reports the caller's quota state without consuming any of it
func (h *AuthHandler) Usage(w http.ResponseWriter, r *http.Request) {
	lic := middleware.LicenseFromContext(r.Context())
	if lic == nil {
		render.Render(w, r, apierr.ErrInternal(nil))
		return
	}

	info, err := h.licenses.UsageInfo(r.Context(), lic.Key)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load usage info")
		render.Render(w, r, apierr.FromError(err))
		return
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"tier":       info.Tier,
		"limit":      info.Limit,
		"used":       info.Used,
		"remaining":  info.Remaining,
		"resets_at":  info.PeriodResetsAt.UTC().Format("2006-01-02"),
		"expires_at": lic.ExpiryDate.UTC().Format("2006-01-02"),
	})
}
