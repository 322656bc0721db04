// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessionStore(t *testing.T) (*SessionStore, *LicenseStore) {
	t.Helper()
	db := newTestDB(t)
	return NewSessionStore(db), NewLicenseStore(db)
}

func testLicenseKey(t *testing.T, licenses *LicenseStore) string {
	t.Helper()
	generated, err := licenses.Generate(context.Background(), TierBasic, 30, 1, "")
	require.NoError(t, err)
	return generated[0].Key
}

func TestSessionCreateAndGet(t *testing.T) {
	ctx := context.Background()
	sessions, licenses := newTestSessionStore(t)
	key := testLicenseKey(t, licenses)

	token, created, err := sessions.Create(ctx, key, "machine-a", 7*24*time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NotEqual(t, token, created.TokenHash, "raw token must not be stored")

	got, err := sessions.GetByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, key, got.LicenseKey)
	assert.Equal(t, "machine-a", got.MachineID)
	assert.False(t, got.Revoked)
	assert.WithinDuration(t, created.ExpiresAt, created.CreatedAt.Add(7*24*time.Hour), time.Second)
}

func TestSessionUnknownToken(t *testing.T) {
	sessions, _ := newTestSessionStore(t)

	_, err := sessions.GetByToken(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionRevokeIdempotent(t *testing.T) {
	ctx := context.Background()
	sessions, licenses := newTestSessionStore(t)
	key := testLicenseKey(t, licenses)

	token, _, err := sessions.Create(ctx, key, "", time.Hour)
	require.NoError(t, err)

	require.NoError(t, sessions.Revoke(ctx, token))

	got, err := sessions.GetByToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, got.Revoked)

	// Revoking again, or revoking garbage, is not an error
	assert.NoError(t, sessions.Revoke(ctx, token))
	assert.NoError(t, sessions.Revoke(ctx, "never-issued"))
}

func TestSessionActive(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	session := &Session{ExpiresAt: now.Add(time.Hour)}

	assert.True(t, session.Active(now))
	assert.False(t, session.Active(now.Add(2*time.Hour)))

	session.Revoked = true
	assert.False(t, session.Active(now))
}

func TestDeleteExpiredSessions(t *testing.T) {
	ctx := context.Background()
	sessions, licenses := newTestSessionStore(t)
	key := testLicenseKey(t, licenses)

	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	sessions.timeNow = func() time.Time { return start }

	staleToken, _, err := sessions.Create(ctx, key, "", time.Hour)
	require.NoError(t, err)
	freshToken, _, err := sessions.Create(ctx, key, "", 30*24*time.Hour)
	require.NoError(t, err)

	sessions.timeNow = func() time.Time { return start.Add(48 * time.Hour) }

	deleted, err := sessions.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = sessions.GetByToken(ctx, staleToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = sessions.GetByToken(ctx, freshToken)
	assert.NoError(t, err)
}

func TestHashTokenStable(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)

	assert.Equal(t, HashToken(token), HashToken(token))
	assert.Len(t, HashToken(token), 64)

	other, err := GenerateToken()
	require.NoError(t, err)
	assert.NotEqual(t, HashToken(token), HashToken(other))
}
