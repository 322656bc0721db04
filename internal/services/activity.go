// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package services holds cross-cutting business services built on top
// of the stores.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dvpro/voxgate/internal/models"
)

// Abuse heuristics: more than this many calls in one day, or IP
// changes inside a 24h window, flag the license for review.
const (
	maxDailyCalls    = 50
	maxIPChanges24h  = 5
	ipChangeWindowHr = 24
)

// ActivityTracker records per-license IP and daily-usage activity and
// flags suspicious patterns. Advisory only: a flag never blocks a
// request, it surfaces in the admin listing.
type ActivityTracker struct {
	db       *sql.DB
	keyLocks models.KeyedMutex
	timeNow  func() time.Time
}

func NewActivityTracker(db *sql.DB) *ActivityTracker {
	return &ActivityTracker{
		db:      db,
		timeNow: time.Now,
	}
}

// SuspiciousLicense is an admin-facing view of a flagged license.
type SuspiciousLicense struct {
	Key          string     `json:"licenseKey"`
	Tier         string     `json:"tier"`
	Status       string     `json:"status"`
	LastIP       string     `json:"lastIp"`
	IPChanges    int        `json:"ipChanges"`
	DailyUsage   int        `json:"dailyUsage"`
	LastIPChange *time.Time `json:"lastIpChange,omitempty"`
}

// Track records a request from ip against the license and returns
// whether the activity is suspicious and why.
func (t *ActivityTracker) Track(ctx context.Context, licenseKey, ip string) (bool, string, error) {
	unlock := t.keyLocks.Lock(licenseKey)
	defer unlock()

	var lastIP sql.NullString
	var ipChanges, dailyUsage int
	var lastIPChange, dailyUsageDate sql.NullTime
	err := t.db.QueryRowContext(ctx, `
		SELECT last_ip, ip_changes, last_ip_change, daily_usage, daily_usage_date
		FROM licenses
		WHERE license_key = ?
	`, licenseKey).Scan(&lastIP, &ipChanges, &lastIPChange, &dailyUsage, &dailyUsageDate)
	if errors.Is(err, sql.ErrNoRows) {
		return false, "", models.ErrLicenseNotFound
	}
	if err != nil {
		return false, "", err
	}

	now := t.timeNow()
	suspicious := false
	reason := ""

	// New day resets the daily counter.
	if !dailyUsageDate.Valid || dailyUsageDate.Time.UTC().Truncate(24*time.Hour).Before(now.UTC().Truncate(24*time.Hour)) {
		dailyUsage = 0
	}
	dailyUsage++
	dailyUsageDate = sql.NullTime{Time: now, Valid: true}

	if dailyUsage > maxDailyCalls {
		suspicious = true
		reason = fmt.Sprintf("%d calls in one day", dailyUsage)
	}

	switch {
	case lastIP.Valid && lastIP.String != ip:
		// Count changes only inside the rolling 24h window.
		if lastIPChange.Valid && now.Sub(lastIPChange.Time) < ipChangeWindowHr*time.Hour {
			ipChanges++
			if ipChanges > maxIPChanges24h {
				suspicious = true
				reason = fmt.Sprintf("IP changed %d times in 24 hours", ipChanges)
			}
		} else {
			ipChanges = 1
		}
		lastIP.String = ip
		lastIPChange = sql.NullTime{Time: now, Valid: true}
	case !lastIP.Valid:
		lastIP = sql.NullString{String: ip, Valid: true}
		lastIPChange = sql.NullTime{Time: now, Valid: true}
		ipChanges = 0
	}

	_, err = t.db.ExecContext(ctx, `
		UPDATE licenses
		SET last_ip = ?, ip_changes = ?, last_ip_change = ?,
		    daily_usage = ?, daily_usage_date = ?,
		    is_suspicious = CASE WHEN ? THEN 1 ELSE is_suspicious END
		WHERE license_key = ?
	`, lastIP, ipChanges, lastIPChange, dailyUsage, dailyUsageDate, suspicious, licenseKey)
	if err != nil {
		return false, "", err
	}

	if suspicious {
		log.Warn().
			Str("licenseKey", licenseKey).
			Str("ip", ip).
			Str("reason", reason).
			Msg("Suspicious license activity")
	}

	return suspicious, reason, nil
}

// ListSuspicious returns all licenses carrying the suspicious flag,
// most active first.
func (t *ActivityTracker) ListSuspicious(ctx context.Context) ([]*SuspiciousLicense, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT license_key, tier, status, COALESCE(last_ip, ''), ip_changes, daily_usage, last_ip_change
		FROM licenses
		WHERE is_suspicious = 1
		ORDER BY daily_usage DESC, ip_changes DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*SuspiciousLicense
	for rows.Next() {
		item := &SuspiciousLicense{}
		var lastIPChange sql.NullTime
		if err := rows.Scan(&item.Key, &item.Tier, &item.Status, &item.LastIP,
			&item.IPChanges, &item.DailyUsage, &lastIPChange); err != nil {
			return nil, err
		}
		if lastIPChange.Valid {
			item.LastIPChange = &lastIPChange.Time
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// ClearFlag resets the suspicious flag and its counters.
func (t *ActivityTracker) ClearFlag(ctx context.Context, licenseKey string) error {
	result, err := t.db.ExecContext(ctx, `
		UPDATE licenses
		SET is_suspicious = 0, ip_changes = 0, daily_usage = 0
		WHERE license_key = ?
	`, licenseKey)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrLicenseNotFound
	}
	return nil
}
