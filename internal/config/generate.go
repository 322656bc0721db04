// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const defaultConfigTemplate = `# voxgate configuration

# Address to bind the HTTP server to
host = "0.0.0.0"

# Port to listen on
port = 8000

# Optional base URL when serving behind a reverse proxy, e.g. "/voxgate/"
baseUrl = ""

# Log level: TRACE, DEBUG, INFO, WARN, ERROR
logLevel = "INFO"

# Optional log file path (default is stderr)
logPath = ""

# Directory for the database (default is next to this file)
dataDir = ""

# Bearer token validity in days
sessionTtlDays = 7

# Per-license request rate limit
rateLimitPerMinute = 60

# Upstream providers. Credentials stay server-side; clients never see
# them. Pro/VIP keys fall back to the basic key when unset.
#
# [providers.stt]
# baseUrl = "https://api.groq.com/openai/v1"
#   [providers.stt.apiKeys]
#   basic = ""
#   pro = ""
#   vip = ""
#
# [providers.translate]
# baseUrl = "https://translate.example.com"
#   [providers.translate.apiKeys]
#   basic = ""
`

// WriteDefaultConfig creates a default configuration file at path,
// creating parent directories as needed.
func WriteDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigTemplate), 0644)
}
