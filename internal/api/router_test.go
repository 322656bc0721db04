// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvpro/voxgate/internal/auth"
	"github.com/dvpro/voxgate/internal/config"
	"github.com/dvpro/voxgate/internal/database"
	"github.com/dvpro/voxgate/internal/domain"
	"github.com/dvpro/voxgate/internal/metrics"
	"github.com/dvpro/voxgate/internal/models"
	"github.com/dvpro/voxgate/internal/quota"
	"github.com/dvpro/voxgate/internal/services"
)

type testEnv struct {
	router   http.Handler
	licenses *models.LicenseStore
}

// upstreamCall is what the fake provider observed for one request.
type upstreamCall struct {
	Path          string
	Query         string
	Authorization string
}

func newTestEnv(t *testing.T, providerURL string) *testEnv {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	licenses := models.NewLicenseStore(db.Conn())
	sessions := models.NewSessionStore(db.Conn())

	authService, err := auth.NewService(licenses, sessions, 0)
	require.NoError(t, err)

	cfg := &config.AppConfig{
		Config: &domain.Config{
			Providers: map[string]domain.ProviderConfig{
				"tts": {
					BaseURL: providerURL,
					APIKeys: domain.TierKeys{
						Basic: "basic-upstream-key",
						Pro:   "pro-upstream-key",
					},
				},
			},
		},
	}

	deps := &Dependencies{
		Config:          cfg,
		DB:              db,
		AuthService:     authService,
		LicenseStore:    licenses,
		QuotaEngine:     quota.NewEngine(licenses),
		ActivityTracker: services.NewActivityTracker(db.Conn()),
		MetricsManager:  metrics.NewManager(licenses),
		Version:         "test",
	}

	return &testEnv{
		router:   NewRouter(deps),
		licenses: licenses,
	}
}

func newFakeProvider(t *testing.T, calls *[]upstreamCall) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls = append(*calls, upstreamCall{
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			Authorization: r.Header.Get("Authorization"),
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"audio":"ok"}`))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func (env *testEnv) generateLicense(t *testing.T, tier models.Tier) string {
	t.Helper()
	generated, err := env.licenses.Generate(context.Background(), tier, 30, 1, "")
	require.NoError(t, err)
	return generated[0].Key
}

func (env *testEnv) login(t *testing.T, licenseKey, machineID string) string {
	t.Helper()

	body, _ := json.Marshal(map[string]string{
		"license_key": licenseKey,
		"machine_id":  machineID,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, "login failed: %s", w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	return resp.Token
}

func (env *testEnv) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0")

	w := env.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0")
	key := env.generateLicense(t, models.TierPro)

	body, _ := json.Marshal(map[string]string{"license_key": key, "machine_id": "m1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token    string `json:"token"`
		Tier     string `json:"tier"`
		DaysLeft int    `json:"days_left"`
		Usage    struct {
			Limit     int `json:"limit"`
			Remaining int `json:"remaining"`
		} `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "pro", resp.Tier)
	assert.Equal(t, 30, resp.DaysLeft)
	assert.Equal(t, 500, resp.Usage.Limit)
	assert.Equal(t, 500, resp.Usage.Remaining)
}

func TestLoginUnknownKey(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0")

	body, _ := json.Marshal(map[string]string{"license_key": "DVPRO-0000-0000-0000"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "LICENSE_NOT_FOUND")
}

func TestUsageEndpoint(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0")
	key := env.generateLicense(t, models.TierBasic)
	token := env.login(t, key, "m1")

	w := env.do(http.MethodGet, "/api/v1/usage", token)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Tier      string `json:"tier"`
		Limit     int    `json:"limit"`
		Used      int    `json:"used"`
		Remaining int    `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "basic", resp.Tier)
	assert.Equal(t, 100, resp.Limit)
	assert.Equal(t, 0, resp.Used)
	assert.Equal(t, 100, resp.Remaining)
}

func TestUsageRequiresToken(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0")

	w := env.do(http.MethodGet, "/api/v1/usage", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/v1/usage", "never-issued")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_NOT_FOUND")
}

func TestProviderPassthrough(t *testing.T) {
	var calls []upstreamCall
	upstream := newFakeProvider(t, &calls)

	env := newTestEnv(t, upstream.URL)
	key := env.generateLicense(t, models.TierBasic)
	token := env.login(t, key, "m1")

	w := env.do(http.MethodGet, "/api/v1/providers/tts/v1/speak?voice=anna", token)
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	assert.JSONEq(t, `{"audio":"ok"}`, w.Body.String())
	assert.Equal(t, "99", w.Header().Get("X-Quota-Remaining"))

	require.Len(t, calls, 1)
	assert.Equal(t, "/v1/speak", calls[0].Path)
	assert.Equal(t, "voice=anna", calls[0].Query)
	assert.Equal(t, "Bearer basic-upstream-key", calls[0].Authorization,
		"the client token must be swapped for the tier credential")
}

func TestProviderTierCredential(t *testing.T) {
	var calls []upstreamCall
	upstream := newFakeProvider(t, &calls)

	env := newTestEnv(t, upstream.URL)
	key := env.generateLicense(t, models.TierPro)
	token := env.login(t, key, "m1")

	w := env.do(http.MethodGet, "/api/v1/providers/tts/v1/speak", token)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, calls, 1)
	assert.Equal(t, "Bearer pro-upstream-key", calls[0].Authorization)
}

func TestProviderUnknown(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0")
	key := env.generateLicense(t, models.TierBasic)
	token := env.login(t, key, "")

	w := env.do(http.MethodGet, "/api/v1/providers/nope/v1/speak", token)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "PROVIDER_NOT_FOUND")
}

func TestProviderUnreachable(t *testing.T) {
	// A provider that is configured but not listening
	env := newTestEnv(t, "http://127.0.0.1:1")
	key := env.generateLicense(t, models.TierBasic)
	token := env.login(t, key, "")

	w := env.do(http.MethodGet, "/api/v1/providers/tts/v1/speak", token)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "PROVIDER_ERROR")
}

func TestProviderQuotaEnforced(t *testing.T) {
	var calls []upstreamCall
	upstream := newFakeProvider(t, &calls)

	env := newTestEnv(t, upstream.URL)
	key := env.generateLicense(t, models.TierBasic)
	token := env.login(t, key, "m1")

	// Burn the whole basic quota directly in the store
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		_, err := env.licenses.ConsumeUsage(ctx, key)
		require.NoError(t, err)
	}

	w := env.do(http.MethodGet, "/api/v1/providers/tts/v1/speak", token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "QUOTA_EXCEEDED")
	assert.Empty(t, calls, "a denied request must never reach the provider")
}

func TestLogoutEndsSession(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0")
	key := env.generateLicense(t, models.TierBasic)
	token := env.login(t, key, "m1")

	w := env.do(http.MethodPost, "/api/v1/auth/logout", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "success")

	w = env.do(http.MethodGet, "/api/v1/usage", token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_REVOKED")

	// Logout stays successful for an already-dead token
	w = env.do(http.MethodPost, "/api/v1/auth/logout", token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSuspendedLicenseDeniedMidSession(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0")
	key := env.generateLicense(t, models.TierBasic)
	token := env.login(t, key, "m1")

	require.NoError(t, env.licenses.SetStatus(context.Background(), key, models.LicenseStatusSuspended))

	w := env.do(http.MethodGet, "/api/v1/usage", token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "LICENSE_SUSPENDED")
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0")
	env.generateLicense(t, models.TierBasic)

	w := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "voxgate_licenses")
}
