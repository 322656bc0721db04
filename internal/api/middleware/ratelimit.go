// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"net/http"
	"sync"

	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"github.com/dvpro/voxgate/internal/api/apierr"
)

// RateLimiter throttles requests per license key. Quota is the
// month-scale accounting; this guards the server from bursts within
// it. Must run after RequireToken.
type RateLimiter struct {
	perMinute int
	limiters  sync.Map // license key -> *rate.Limiter
}

func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{perMinute: perMinute}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	if v, ok := rl.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(rate.Limit(float64(rl.perMinute)/60.0), rl.perMinute)
	v, _ := rl.limiters.LoadOrStore(key, limiter)
	return v.(*rate.Limiter)
}

// Handler rejects requests above the per-minute rate with a 429.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.perMinute <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		lic := LicenseFromContext(r.Context())
		if lic == nil {
			render.Render(w, r, apierr.ErrInternal(nil))
			return
		}

		if !rl.limiterFor(lic.Key).Allow() {
			render.Render(w, r, apierr.ErrRateLimited)
			return
		}

		next.ServeHTTP(w, r)
	})
}
