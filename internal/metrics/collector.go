// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/dvpro/voxgate/internal/models"
)

// LicenseCollector exposes license inventory and usage gauges scraped
// from the store on demand.
type LicenseCollector struct {
	licenses *models.LicenseStore

	licensesDesc   *prometheus.Desc
	usageTotalDesc *prometheus.Desc
}

func NewLicenseCollector(licenses *models.LicenseStore) *LicenseCollector {
	return &LicenseCollector{
		licenses: licenses,

		licensesDesc: prometheus.NewDesc(
			"voxgate_licenses",
			"Number of licenses by status and tier",
			[]string{"status", "tier"},
			nil,
		),
		usageTotalDesc: prometheus.NewDesc(
			"voxgate_license_usage_total",
			"Sum of current-period usage counters by status and tier",
			[]string{"status", "tier"},
			nil,
		),
	}
}

func (c *LicenseCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.licensesDesc
	ch <- c.usageTotalDesc
}

func (c *LicenseCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := c.licenses.Stats(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to collect license stats")
		return
	}

	for _, stat := range stats {
		ch <- prometheus.MustNewConstMetric(
			c.licensesDesc, prometheus.GaugeValue,
			float64(stat.Count), stat.Status, string(stat.Tier),
		)
		ch <- prometheus.MustNewConstMetric(
			c.usageTotalDesc, prometheus.GaugeValue,
			float64(stat.UsageTotal), stat.Status, string(stat.Tier),
		)
	}
}
