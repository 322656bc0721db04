// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config represents the application configuration
type Config struct {
	Host               string                    `toml:"host" mapstructure:"host"`
	Port               int                       `toml:"port" mapstructure:"port"`
	BaseURL            string                    `toml:"baseUrl" mapstructure:"baseUrl"`
	LogLevel           string                    `toml:"logLevel" mapstructure:"logLevel"`
	LogPath            string                    `toml:"logPath" mapstructure:"logPath"`
	DataDir            string                    `toml:"dataDir" mapstructure:"dataDir"`
	SessionTTLDays     int                       `toml:"sessionTtlDays" mapstructure:"sessionTtlDays"`
	RateLimitPerMinute int                       `toml:"rateLimitPerMinute" mapstructure:"rateLimitPerMinute"`
	HTTPTimeouts       HTTPTimeouts              `toml:"httpTimeouts" mapstructure:"httpTimeouts"`
	Providers          map[string]ProviderConfig `toml:"providers" mapstructure:"providers"`
}

// HTTPTimeouts represents HTTP server timeout configuration
type HTTPTimeouts struct {
	ReadTimeout  int `toml:"readTimeout" mapstructure:"readTimeout"`   // seconds
	WriteTimeout int `toml:"writeTimeout" mapstructure:"writeTimeout"` // seconds
	IdleTimeout  int `toml:"idleTimeout" mapstructure:"idleTimeout"`   // seconds
}

// ProviderConfig describes one upstream speech/translation service.
// Request and response bodies are opaque to voxgate; only the base URL
// and the server-side credentials are known here.
type ProviderConfig struct {
	BaseURL string   `toml:"baseUrl" mapstructure:"baseUrl"`
	APIKeys TierKeys `toml:"apiKeys" mapstructure:"apiKeys"`
}

// TierKeys holds per-tier provider credentials. Pro and VIP fall back
// to the basic key when unset.
type TierKeys struct {
	Basic string `toml:"basic" mapstructure:"basic"`
	Pro   string `toml:"pro" mapstructure:"pro"`
	VIP   string `toml:"vip" mapstructure:"vip"`
}

// ForTier returns the credential to use for the given license tier.
func (k TierKeys) ForTier(tier string) string {
	switch tier {
	case "pro":
		if k.Pro != "" {
			return k.Pro
		}
	case "vip":
		if k.VIP != "" {
			return k.VIP
		}
	}
	return k.Basic
}
