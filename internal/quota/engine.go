// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package quota enforces tier-based monthly usage limits with a
// rolling 30-day reset.
package quota

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dvpro/voxgate/internal/models"
)

// Engine wraps the license store's atomic usage accounting. The
// check-then-increment runs as a single unit under the license's key
// lock, so concurrent calls from one license can never overshoot the
// limit.
type Engine struct {
	licenses *models.LicenseStore
}

func NewEngine(licenses *models.LicenseStore) *Engine {
	return &Engine{licenses: licenses}
}

// CheckAndConsume spends one usage unit for the license. VIP tier is
// never denied but its counter is still tracked. Returns remaining
// units in the current period, -1 for unlimited.
func (e *Engine) CheckAndConsume(ctx context.Context, lic *models.License) (int, error) {
	remaining, err := e.licenses.ConsumeUsage(ctx, lic.Key)
	if err != nil {
		return 0, err
	}

	log.Debug().
		Str("tier", string(lic.Tier)).
		Int("remaining", remaining).
		Msg("Usage unit consumed")

	return remaining, nil
}
