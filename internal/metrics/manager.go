// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/dvpro/voxgate/internal/models"
)

type Manager struct {
	registry         *prometheus.Registry
	licenseCollector *LicenseCollector

	proxyRequests *prometheus.CounterVec
	denials       *prometheus.CounterVec
}

func NewManager(licenses *models.LicenseStore) *Manager {
	registry := prometheus.NewRegistry()

	licenseCollector := NewLicenseCollector(licenses)
	registry.MustRegister(licenseCollector)

	proxyRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "voxgate_proxy_requests_total",
		Help: "Forwarded provider requests by provider and status code",
	}, []string{"provider", "code"})
	registry.MustRegister(proxyRequests)

	denials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "voxgate_denials_total",
		Help: "Rejected requests by denial code",
	}, []string{"code"})
	registry.MustRegister(denials)

	log.Info().Msg("Metrics manager initialized with license collector")

	return &Manager{
		registry:         registry,
		licenseCollector: licenseCollector,
		proxyRequests:    proxyRequests,
		denials:          denials,
	}
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}

// RecordProxyRequest counts a forwarded provider call. Nil-safe so
// callers work without a metrics manager.
func (m *Manager) RecordProxyRequest(provider, code string) {
	if m == nil {
		return
	}
	m.proxyRequests.WithLabelValues(provider, code).Inc()
}

// RecordDenial counts a rejected request by its denial code.
func (m *Manager) RecordDenial(code string) {
	if m == nil {
		return
	}
	m.denials.WithLabelValues(code).Inc()
}
