// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog/log"

	"github.com/dvpro/voxgate/internal/models"
)

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token has expired")
	ErrTokenRevoked  = errors.New("token has been revoked")
)

// DefaultSessionTTL is the fixed validity window of a bearer token,
// set at issuance and never refreshed by use.
const DefaultSessionTTL = 7 * 24 * time.Hour

const negativeCacheTTL = 30 * time.Second

// Service issues, validates and revokes bearer tokens tied to a
// license and machine.
type Service struct {
	licenses *models.LicenseStore
	sessions *models.SessionStore
	ttl      time.Duration

	// negCache remembers token hashes that resolved to nothing, so
	// repeated garbage tokens don't hit the database. Safe because a
	// token unknown to the store can never become valid later.
	negCache *ristretto.Cache

	timeNow func() time.Time
}

func NewService(licenses *models.LicenseStore, sessions *models.SessionStore, ttl time.Duration) (*Service, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 20, // 1MB
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token cache: %w", err)
	}

	return &Service{
		licenses: licenses,
		sessions: sessions,
		ttl:      ttl,
		negCache: cache,
		timeNow:  time.Now,
	}, nil
}

// Login validates the license key and machine binding, then mints a
// fresh session token. Machine binding is recorded on the first login
// that presents a machine ID.
func (s *Service) Login(ctx context.Context, licenseKey, machineID string) (string, *models.Session, *models.License, error) {
	lic, err := s.licenses.Validate(ctx, licenseKey, machineID)
	if err != nil {
		return "", nil, nil, err
	}

	token, session, err := s.sessions.Create(ctx, licenseKey, machineID, s.ttl)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := s.licenses.Touch(ctx, licenseKey); err != nil {
		// Side effect only, never fails the login.
		log.Warn().Err(err).Str("licenseKey", maskKey(licenseKey)).Msg("Failed to update last used timestamp")
	}

	return token, session, lic, nil
}

// Authorize resolves a bearer token to its session and re-validates
// the underlying license, catching expiry or suspension that occurred
// after login. The license state is never cached from login time.
func (s *Service) Authorize(ctx context.Context, token string) (*models.Session, *models.License, error) {
	cacheKey := models.HashToken(token)
	if _, found := s.negCache.Get(cacheKey); found {
		return nil, nil, ErrTokenNotFound
	}

	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			s.negCache.SetWithTTL(cacheKey, struct{}{}, 1, negativeCacheTTL)
			return nil, nil, ErrTokenNotFound
		}
		return nil, nil, err
	}

	if session.Revoked {
		return nil, nil, ErrTokenRevoked
	}
	if !s.timeNow().Before(session.ExpiresAt) {
		return nil, nil, ErrTokenExpired
	}

	lic, err := s.licenses.Validate(ctx, session.LicenseKey, session.MachineID)
	if err != nil {
		return nil, nil, err
	}

	return session, lic, nil
}

// Logout revokes the session. Idempotent: revoking an unknown or
// already-revoked token succeeds, so a client can always consider
// itself logged out.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// PurgeExpiredSessions removes stale session rows. Optional hygiene;
// correctness never depends on it.
func (s *Service) PurgeExpiredSessions(ctx context.Context) {
	n, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to purge expired sessions")
		return
	}
	if n > 0 {
		log.Debug().Int64("count", n).Msg("Purged expired sessions")
	}
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:8] + "***"
}
