// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrLicenseNotFound  = errors.New("license not found")
	ErrLicenseInactive  = errors.New("license is inactive")
	ErrLicenseSuspended = errors.New("license is suspended")
	ErrLicenseExpired   = errors.New("license has expired")
	ErrMachineMismatch  = errors.New("license is bound to a different machine")
	ErrQuotaExceeded    = errors.New("monthly quota exceeded")
)

// Tier determines quota and priority of a license.
type Tier string

const (
	TierBasic Tier = "basic"
	TierPro   Tier = "pro"
	TierVIP   Tier = "vip"
)

// MonthlyLimit returns the number of calls allowed per 30-day period.
// A negative value means unlimited.
func (t Tier) MonthlyLimit() int {
	switch t {
	case TierBasic:
		return 100
	case TierPro:
		return 500
	case TierVIP:
		return -1
	default:
		return 100
	}
}

func (t Tier) Valid() bool {
	switch t {
	case TierBasic, TierPro, TierVIP:
		return true
	}
	return false
}

// License status constants
const (
	LicenseStatusActive    = "active"
	LicenseStatusInactive  = "inactive"
	LicenseStatusSuspended = "suspended"
)

func ValidLicenseStatus(status string) bool {
	switch status {
	case LicenseStatusActive, LicenseStatusInactive, LicenseStatusSuspended:
		return true
	}
	return false
}

// quotaPeriodDays is the length of the rolling usage window.
const quotaPeriodDays = 30

const keyPrefix = "DVPRO"

// License represents a purchased usage grant in the database.
type License struct {
	ID               int        `json:"id"`
	Key              string     `json:"licenseKey"`
	Tier             Tier       `json:"tier"`
	Status           string     `json:"status"`
	ExpiryDate       time.Time  `json:"expiryDate"`
	MachineID        *string    `json:"machineId,omitempty"`
	UsageCount       int        `json:"usageCount"`
	UsagePeriodStart time.Time  `json:"usagePeriodStart"`
	Notes            string     `json:"notes,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	LastUsedAt       *time.Time `json:"lastUsedAt,omitempty"`
}

// DaysLeft returns whole days until expiry, negative once expired.
func (l *License) DaysLeft(now time.Time) int {
	return int(dateOnly(l.ExpiryDate).Sub(dateOnly(now)).Hours() / 24)
}

// Expired reports whether the license is past its expiry date. The
// expiry day itself is still usable.
func (l *License) Expired(now time.Time) bool {
	return dateOnly(now).After(dateOnly(l.ExpiryDate))
}

// UsageInfo is a computed, non-mutating view of a license's quota state.
type UsageInfo struct {
	Tier           Tier      `json:"tier"`
	Limit          int       `json:"limit"`
	Used           int       `json:"used"`
	Remaining      int       `json:"remaining"`
	PeriodResetsAt time.Time `json:"periodResetsAt"`
}

// GenerateLicenseKey produces a key of the form DVPRO-XXXX-XXXX-XXXX
// from a cryptographically strong random source.
func GenerateLicenseKey() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	groups := make([]string, 3)
	for i := range groups {
		groups[i] = strings.ToUpper(hex.EncodeToString(buf[i*2 : i*2+2]))
	}
	return keyPrefix + "-" + strings.Join(groups, "-"), nil
}

type LicenseStore struct {
	db       *sql.DB
	keyLocks KeyedMutex
	timeNow  func() time.Time
}

func NewLicenseStore(db *sql.DB) *LicenseStore {
	return &LicenseStore{
		db:      db,
		timeNow: time.Now,
	}
}

const licenseColumns = `id, license_key, tier, status, expiry_date, machine_id,
	usage_count, usage_period_start, notes, created_at, last_used_at`

func (s *LicenseStore) scanRow(scan func(...any) error) (*License, error) {
	lic := &License{}
	var machineID sql.NullString
	var lastUsedAt sql.NullTime
	err := scan(
		&lic.ID,
		&lic.Key,
		&lic.Tier,
		&lic.Status,
		&lic.ExpiryDate,
		&machineID,
		&lic.UsageCount,
		&lic.UsagePeriodStart,
		&lic.Notes,
		&lic.CreatedAt,
		&lastUsedAt,
	)
	if err != nil {
		return nil, err
	}
	if machineID.Valid && machineID.String != "" {
		lic.MachineID = &machineID.String
	}
	if lastUsedAt.Valid {
		lic.LastUsedAt = &lastUsedAt.Time
	}
	return lic, nil
}

// Get retrieves a license by key.
func (s *LicenseStore) Get(ctx context.Context, key string) (*License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE license_key = ?`
	lic, err := s.scanRow(s.db.QueryRowContext(ctx, query, key).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLicenseNotFound
	}
	if err != nil {
		return nil, err
	}
	return lic, nil
}

// Validate checks key existence, status, expiry and machine binding.
// An empty machineID means "no binding constraint"; a present one is
// bound on first use and immutable afterwards. Returns the license on
// success.
func (s *LicenseStore) Validate(ctx context.Context, key, machineID string) (*License, error) {
	unlock := s.keyLocks.Lock(key)
	defer unlock()

	lic, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	switch lic.Status {
	case LicenseStatusActive:
	case LicenseStatusInactive:
		return nil, ErrLicenseInactive
	case LicenseStatusSuspended:
		return nil, ErrLicenseSuspended
	default:
		return nil, fmt.Errorf("license %s has unknown status %q", maskKey(key), lic.Status)
	}

	if lic.Expired(s.timeNow()) {
		return nil, ErrLicenseExpired
	}

	if machineID != "" {
		if lic.MachineID != nil && *lic.MachineID != machineID {
			return nil, ErrMachineMismatch
		}
		if lic.MachineID == nil {
			now := s.timeNow()
			_, err := s.db.ExecContext(ctx,
				`UPDATE licenses SET machine_id = ?, last_used_at = ? WHERE license_key = ?`,
				machineID, now, key)
			if err != nil {
				return nil, fmt.Errorf("failed to bind machine: %w", err)
			}
			lic.MachineID = &machineID
			lic.LastUsedAt = &now
		}
	}

	return lic, nil
}

// Touch updates last_used_at. Side effect only; callers log but never
// fail a request on its error.
func (s *LicenseStore) Touch(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE licenses SET last_used_at = ? WHERE license_key = ?`, s.timeNow(), key)
	return err
}

// Extend moves the expiry date forward by days from its current value,
// not from today.
func (s *LicenseStore) Extend(ctx context.Context, key string, days int) (*License, error) {
	unlock := s.keyLocks.Lock(key)
	defer unlock()

	lic, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	newExpiry := dateOnly(lic.ExpiryDate).AddDate(0, 0, days)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE licenses SET expiry_date = ? WHERE license_key = ?`, newExpiry, key); err != nil {
		return nil, fmt.Errorf("failed to extend license: %w", err)
	}

	lic.ExpiryDate = newExpiry
	return lic, nil
}

// SetStatus performs an administrative status transition. Any
// transition among the known statuses is legal.
func (s *LicenseStore) SetStatus(ctx context.Context, key, status string) error {
	if !ValidLicenseStatus(status) {
		return fmt.Errorf("invalid license status %q", status)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE licenses SET status = ? WHERE license_key = ?`, status, key)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrLicenseNotFound
	}
	return nil
}

// ResetMachine clears the machine binding so the license can be
// activated on a new installation. Administrative action.
func (s *LicenseStore) ResetMachine(ctx context.Context, key string) error {
	unlock := s.keyLocks.Lock(key)
	defer unlock()

	result, err := s.db.ExecContext(ctx,
		`UPDATE licenses SET machine_id = NULL WHERE license_key = ?`, key)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrLicenseNotFound
	}
	return nil
}

// Generate creates count new active licenses valid for days from today.
func (s *LicenseStore) Generate(ctx context.Context, tier Tier, days, count int, notes string) ([]*License, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("invalid tier %q", tier)
	}
	if days <= 0 {
		return nil, fmt.Errorf("validity days must be positive, got %d", days)
	}
	if count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", count)
	}

	now := s.timeNow()
	today := dateOnly(now)
	expiry := today.AddDate(0, 0, days)

	licenses := make([]*License, 0, count)
	for i := 0; i < count; i++ {
		lic, err := s.insertLicense(ctx, tier, expiry, today, now, notes)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, lic)
	}
	return licenses, nil
}

func (s *LicenseStore) insertLicense(ctx context.Context, tier Tier, expiry, periodStart, now time.Time, notes string) (*License, error) {
	// Collisions are negligible with a random key, but retry a few
	// times on the UNIQUE constraint anyway.
	for attempt := 0; attempt < 5; attempt++ {
		key, err := GenerateLicenseKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate license key: %w", err)
		}

		query := `
			INSERT INTO licenses (license_key, tier, status, expiry_date, usage_count, usage_period_start, notes, created_at)
			VALUES (?, ?, ?, ?, 0, ?, ?, ?)
			RETURNING ` + licenseColumns

		lic, err := s.scanRow(s.db.QueryRowContext(ctx, query,
			key, tier, LicenseStatusActive, expiry, periodStart, notes, now).Scan)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				continue
			}
			return nil, err
		}
		return lic, nil
	}
	return nil, errors.New("failed to generate a unique license key")
}

// List returns licenses, newest first, optionally filtered by status.
func (s *LicenseStore) List(ctx context.Context, status string) ([]*License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses`
	var args []any
	if status != "" {
		if !ValidLicenseStatus(status) {
			return nil, fmt.Errorf("invalid license status %q", status)
		}
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var licenses []*License
	for rows.Next() {
		lic, err := s.scanRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, lic)
	}
	return licenses, rows.Err()
}

// ConsumeUsage atomically applies the period reset, checks the tier
// limit and increments the usage counter. Returns remaining units for
// the period (-1 for unlimited tiers) or ErrQuotaExceeded without
// incrementing.
func (s *LicenseStore) ConsumeUsage(ctx context.Context, key string) (int, error) {
	unlock := s.keyLocks.Lock(key)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var tier Tier
	var usage int
	var periodStart time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT tier, usage_count, usage_period_start FROM licenses WHERE license_key = ?`, key).
		Scan(&tier, &usage, &periodStart)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrLicenseNotFound
	}
	if err != nil {
		return 0, err
	}

	today := dateOnly(s.timeNow())
	if !today.Before(dateOnly(periodStart).AddDate(0, 0, quotaPeriodDays)) {
		usage = 0
		periodStart = today
	}

	limit := tier.MonthlyLimit()
	if limit >= 0 && usage >= limit {
		return 0, ErrQuotaExceeded
	}

	usage++
	if _, err := tx.ExecContext(ctx,
		`UPDATE licenses SET usage_count = ?, usage_period_start = ? WHERE license_key = ?`,
		usage, periodStart, key); err != nil {
		return 0, fmt.Errorf("failed to update usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit usage: %w", err)
	}

	if limit < 0 {
		return -1, nil
	}
	return limit - usage, nil
}

// UsageInfo reports the quota state a caller would observe, applying
// the period reset virtually without persisting it.
func (s *LicenseStore) UsageInfo(ctx context.Context, key string) (*UsageInfo, error) {
	lic, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	info := &UsageInfo{
		Tier:  lic.Tier,
		Limit: lic.Tier.MonthlyLimit(),
		Used:  lic.UsageCount,
	}

	today := dateOnly(s.timeNow())
	resetAt := dateOnly(lic.UsagePeriodStart).AddDate(0, 0, quotaPeriodDays)
	if !today.Before(resetAt) {
		info.Used = 0
		resetAt = today.AddDate(0, 0, quotaPeriodDays)
	}
	info.PeriodResetsAt = resetAt

	if info.Limit < 0 {
		info.Remaining = -1
	} else {
		info.Remaining = info.Limit - info.Used
	}
	return info, nil
}

// LicenseStat is an aggregate row for the metrics collector.
type LicenseStat struct {
	Status     string
	Tier       Tier
	Count      int
	UsageTotal int
}

// Stats aggregates license counts and usage by status and tier.
func (s *LicenseStore) Stats(ctx context.Context) ([]LicenseStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, tier, COUNT(*), COALESCE(SUM(usage_count), 0)
		FROM licenses
		GROUP BY status, tier
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []LicenseStat
	for rows.Next() {
		var stat LicenseStat
		if err := rows.Scan(&stat.Status, &stat.Tier, &stat.Count, &stat.UsageTotal); err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

func dateOnly(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// maskKey masks a license key for logging (shows first 8 chars + ***)
func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:8] + "***"
}
