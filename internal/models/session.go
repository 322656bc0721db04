// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is a server-side record for a bearer token issued at login.
// Only the SHA256 hash of the token is stored.
type Session struct {
	ID         int       `json:"id"`
	TokenHash  string    `json:"-"`
	LicenseKey string    `json:"licenseKey"`
	MachineID  string    `json:"machineId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Revoked    bool      `json:"revoked"`
}

// Active reports whether the session itself is usable at now. The
// underlying license is re-checked separately per call.
func (s *Session) Active(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// GenerateToken mints an opaque random bearer token.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken creates a SHA256 hash of the token for storage.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

type SessionStore struct {
	db      *sql.DB
	timeNow func() time.Time
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{
		db:      db,
		timeNow: time.Now,
	}
}

// Create mints a fresh token and stores a session with a fixed
// validity window. Returns the raw token (shown to the client once)
// and the stored session.
func (s *SessionStore) Create(ctx context.Context, licenseKey, machineID string, ttl time.Duration) (string, *Session, error) {
	rawToken, err := GenerateToken()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}

	now := s.timeNow()
	query := `
		INSERT INTO sessions (token_hash, license_key, machine_id, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id, token_hash, license_key, machine_id, created_at, expires_at, revoked
	`

	session, err := scanSession(s.db.QueryRowContext(ctx, query,
		HashToken(rawToken), licenseKey, machineID, now, now.Add(ttl)).Scan)
	if err != nil {
		return "", nil, err
	}

	return rawToken, session, nil
}

// GetByToken resolves a raw bearer token to its session record.
func (s *SessionStore) GetByToken(ctx context.Context, rawToken string) (*Session, error) {
	query := `
		SELECT id, token_hash, license_key, machine_id, created_at, expires_at, revoked
		FROM sessions
		WHERE token_hash = ?
	`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, HashToken(rawToken)).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Revoke flags a session as logged out. Revoking an unknown or
// already-revoked token is a no-op, not an error.
func (s *SessionStore) Revoke(ctx context.Context, rawToken string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET revoked = 1 WHERE token_hash = ?`, HashToken(rawToken))
	return err
}

// DeleteExpired removes sessions past their expiry. Storage hygiene
// only; expiry is enforced lazily at authorization time.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`, s.timeNow())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanSession(scan func(...any) error) (*Session, error) {
	session := &Session{}
	var machineID sql.NullString
	err := scan(
		&session.ID,
		&session.TokenHash,
		&session.LicenseKey,
		&machineID,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.Revoked,
	)
	if err != nil {
		return nil, err
	}
	session.MachineID = machineID.String
	return session, nil
}
