/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/netpresence/pkg/keenetic"
	"github.com/carverauto/netpresence/pkg/logger"
	"github.com/carverauto/netpresence/pkg/models"
)

func testConfig(t *testing.T) *models.ServiceConfig {
	t.Helper()

	cfg := &models.ServiceConfig{
		Router: models.RouterConfig{Address: "127.0.0.1:1", Login: "admin", Password: "secret"},
		Session: models.SessionConfig{
			Path: filepath.Join(t.TempDir(), "cookies.json"),
		},
		Schedule: models.ScheduleConfig{Interval: models.Duration(time.Hour)},
		Store:    models.StoreConfig{Driver: models.StoreDriverMemory},
		API:      models.APIConfig{ListenAddr: "127.0.0.1:0", APIKey: "k"},
	}

	require.NoError(t, cfg.Validate())

	return cfg
}

func TestServiceStartStop(t *testing.T) {
	cfg := testConfig(t)

	svc, err := newService(context.Background(), cfg, logger.NewTestLogger())
	require.NoError(t, err)
	require.NotNil(t, svc.api)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, svc.Start(ctx))
	require.NoError(t, svc.Stop(ctx))
	assert.Nil(t, svc.store)
}

func TestServiceWiresTestNotification(t *testing.T) {
	cfg := testConfig(t)

	svc, err := newService(context.Background(), cfg, logger.NewTestLogger())
	require.NoError(t, err)

	defer func() { require.NoError(t, svc.Stop(context.Background())) }()

	req := httptest.NewRequest(http.MethodPost, "/api/notify/test", http.NoBody)
	req.Header.Set("X-API-Key", "k")

	rr := httptest.NewRecorder()
	svc.api.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.TestNotifyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Len(t, resp.Events, 2)
	assert.Zero(t, resp.Failed)
}

func TestServiceWithoutAPI(t *testing.T) {
	cfg := testConfig(t)
	cfg.API.Disabled = true

	svc, err := newService(context.Background(), cfg, logger.NewTestLogger())
	require.NoError(t, err)
	assert.Nil(t, svc.api)

	require.NoError(t, svc.Stop(context.Background()))
}

func TestServiceRejectsBadWebhook(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notify.Webhooks = []string{"ftp://example.com/hook"}

	_, err := newService(context.Background(), cfg, logger.NewTestLogger())
	require.Error(t, err)
}

func TestNewSessionStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")

	store, err := newSessionStore(context.Background(), &models.SessionConfig{Backend: models.SessionBackendFile, Path: path}, nil)
	require.NoError(t, err)

	fileStore, ok := store.(*keenetic.FileSessionStore)
	require.True(t, ok)
	assert.Equal(t, path, fileStore.Path())

	_, err = newSessionStore(context.Background(), &models.SessionConfig{Backend: models.SessionBackendNATS}, nil)
	require.ErrorIs(t, err, errNATSSessionNoConn)
}

func TestNewDispatcherRecipients(t *testing.T) {
	cfg := &models.NotifyConfig{Webhooks: []string{"https://hooks.example.com/presence"}}

	dispatcher, hub, err := newDispatcher(cfg, nil, logger.NewTestLogger())
	require.NoError(t, err)
	require.NotNil(t, hub)
	assert.ElementsMatch(t, []string{"webhook:hooks.example.com", "websocket"}, dispatcher.Recipients())
}

func TestNotifyTimeout(t *testing.T) {
	assert.Equal(t, 10*time.Second, notifyTimeout(&models.NotifyConfig{}))
	assert.Equal(t, 3*time.Second, notifyTimeout(&models.NotifyConfig{Timeout: models.Duration(3 * time.Second)}))
}

func TestRunMissingConfig(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "")

	err := Run(context.Background(), Options{ConfigPath: filepath.Join(t.TempDir(), "missing.json")})
	require.ErrorIs(t, err, errFailedToLoadConfig)
}
