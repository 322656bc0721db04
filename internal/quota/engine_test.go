// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package quota

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvpro/voxgate/internal/database"
	"github.com/dvpro/voxgate/internal/models"
)

func newTestEngine(t *testing.T) (*Engine, *models.LicenseStore) {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	licenses := models.NewLicenseStore(db.Conn())
	return NewEngine(licenses), licenses
}

func TestCheckAndConsume(t *testing.T) {
	ctx := context.Background()
	engine, licenses := newTestEngine(t)

	generated, err := licenses.Generate(ctx, models.TierBasic, 30, 1, "")
	require.NoError(t, err)
	lic := generated[0]

	remaining, err := engine.CheckAndConsume(ctx, lic)
	require.NoError(t, err)
	assert.Equal(t, 99, remaining)

	remaining, err = engine.CheckAndConsume(ctx, lic)
	require.NoError(t, err)
	assert.Equal(t, 98, remaining)
}

func TestCheckAndConsumeDeniesOverLimit(t *testing.T) {
	ctx := context.Background()
	engine, licenses := newTestEngine(t)

	generated, err := licenses.Generate(ctx, models.TierBasic, 30, 1, "")
	require.NoError(t, err)
	lic := generated[0]

	for i := 0; i < 100; i++ {
		_, err := engine.CheckAndConsume(ctx, lic)
		require.NoError(t, err)
	}

	_, err = engine.CheckAndConsume(ctx, lic)
	assert.ErrorIs(t, err, models.ErrQuotaExceeded)
}

func TestCheckAndConsumeUnlimited(t *testing.T) {
	ctx := context.Background()
	engine, licenses := newTestEngine(t)

	generated, err := licenses.Generate(ctx, models.TierVIP, 30, 1, "")
	require.NoError(t, err)

	remaining, err := engine.CheckAndConsume(ctx, generated[0])
	require.NoError(t, err)
	assert.Equal(t, -1, remaining)
}
