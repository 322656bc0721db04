// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package apierr defines the structured denial envelope returned for
// every rejected request: an HTTP status, a machine-readable code and
// a human-readable message.
package apierr

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/dvpro/voxgate/internal/auth"
	"github.com/dvpro/voxgate/internal/models"
)

// ErrResponse implements the render.Renderer interface for API errors
type ErrResponse struct {
	Err            error  `json:"-"`
	HTTPStatusCode int    `json:"-"`
	StatusText     string `json:"status"`
	AppCode        string `json:"code,omitempty"`
	ErrorText      string `json:"error,omitempty"`
}

// Render implements the render.Renderer interface
func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

// Error codes for license, session and gateway rejections
const (
	CodeLicenseNotFound  = "LICENSE_NOT_FOUND"
	CodeLicenseInactive  = "LICENSE_INACTIVE"
	CodeLicenseSuspended = "LICENSE_SUSPENDED"
	CodeLicenseExpired   = "LICENSE_EXPIRED"
	CodeMachineMismatch  = "MACHINE_MISMATCH"
	CodeTokenNotFound    = "TOKEN_NOT_FOUND"
	CodeTokenExpired     = "TOKEN_EXPIRED"
	CodeTokenRevoked     = "TOKEN_REVOKED"
	CodeQuotaExceeded    = "QUOTA_EXCEEDED"
	CodeProviderError    = "PROVIDER_ERROR"
	CodeProviderUnknown  = "PROVIDER_NOT_FOUND"
	CodeRateLimited      = "RATE_LIMITED"
)

var denials = map[error]*ErrResponse{
	models.ErrLicenseNotFound: {
		HTTPStatusCode: http.StatusUnauthorized,
		StatusText:     "License not found",
		AppCode:        CodeLicenseNotFound,
		ErrorText:      "The provided license key was not found",
	},
	models.ErrLicenseInactive: {
		HTTPStatusCode: http.StatusForbidden,
		StatusText:     "License inactive",
		AppCode:        CodeLicenseInactive,
		ErrorText:      "This license is not active",
	},
	models.ErrLicenseSuspended: {
		HTTPStatusCode: http.StatusForbidden,
		StatusText:     "License suspended",
		AppCode:        CodeLicenseSuspended,
		ErrorText:      "This license has been suspended",
	},
	models.ErrLicenseExpired: {
		HTTPStatusCode: http.StatusForbidden,
		StatusText:     "License expired",
		AppCode:        CodeLicenseExpired,
		ErrorText:      "This license has expired. Please renew to continue",
	},
	models.ErrMachineMismatch: {
		HTTPStatusCode: http.StatusForbidden,
		StatusText:     "Machine mismatch",
		AppCode:        CodeMachineMismatch,
		ErrorText:      "This license is already activated on a different machine",
	},
	models.ErrQuotaExceeded: {
		HTTPStatusCode: http.StatusForbidden,
		StatusText:     "Quota exceeded",
		AppCode:        CodeQuotaExceeded,
		ErrorText:      "Monthly quota reached for this license tier",
	},
	auth.ErrTokenNotFound: {
		HTTPStatusCode: http.StatusUnauthorized,
		StatusText:     "Invalid token",
		AppCode:        CodeTokenNotFound,
		ErrorText:      "The provided token is not recognized",
	},
	auth.ErrTokenExpired: {
		HTTPStatusCode: http.StatusUnauthorized,
		StatusText:     "Token expired",
		AppCode:        CodeTokenExpired,
		ErrorText:      "The session has expired. Please log in again",
	},
	auth.ErrTokenRevoked: {
		HTTPStatusCode: http.StatusUnauthorized,
		StatusText:     "Token revoked",
		AppCode:        CodeTokenRevoked,
		ErrorText:      "The session has been logged out. Please log in again",
	},
}

// FromError maps a license, session or quota error to its structured
// denial. Unrecognized errors are treated as storage-layer faults and
// become a 500.
func FromError(err error) *ErrResponse {
	for sentinel, resp := range denials {
		if errors.Is(err, sentinel) {
			return resp
		}
	}
	return ErrInternal(err)
}

// ErrRateLimited is returned when a license exceeds the per-minute
// request rate.
var ErrRateLimited = &ErrResponse{
	HTTPStatusCode: http.StatusTooManyRequests,
	StatusText:     "Too many requests",
	AppCode:        CodeRateLimited,
	ErrorText:      "Request rate limit exceeded. Please slow down",
}

// ErrProvider is the passthrough failure for a forwarded call. It is
// not a license fault and is surfaced distinctly so clients do not
// mistake it for an auth problem.
var ErrProvider = &ErrResponse{
	HTTPStatusCode: http.StatusBadGateway,
	StatusText:     "Provider error",
	AppCode:        CodeProviderError,
	ErrorText:      "The upstream provider could not be reached",
}

// ErrUnknownProvider is returned when the requested provider is not
// configured on this gateway.
var ErrUnknownProvider = &ErrResponse{
	HTTPStatusCode: http.StatusNotFound,
	StatusText:     "Unknown provider",
	AppCode:        CodeProviderUnknown,
	ErrorText:      "No such provider is configured",
}

// ErrInvalidRequest creates a bad request error
func ErrInvalidRequest(message string) *ErrResponse {
	return &ErrResponse{
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     "Invalid request",
		ErrorText:      message,
	}
}

// ErrInternal creates an internal server error
func ErrInternal(err error) *ErrResponse {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusInternalServerError,
		StatusText:     "Internal server error",
		ErrorText:      "An unexpected error occurred. Please try again later",
	}
}
