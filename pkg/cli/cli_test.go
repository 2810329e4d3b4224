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

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/carverauto/netpresence/pkg/keenetic"
	"github.com/carverauto/netpresence/pkg/models"
)

func TestParseFlags(t *testing.T) {
	t.Setenv(envAPIURL, "")
	t.Setenv(envAPIKey, "env-key")

	tests := []struct {
		name    string
		args    []string
		wantErr error
		check   func(t *testing.T, cfg *CmdConfig)
	}{
		{name: "no command", args: nil, wantErr: errMissingCommand},
		{name: "unknown command", args: []string{"frobnicate"}, wantErr: errUnknownCommand},
		{name: "test-notify extra args", args: []string{"test-notify", "now"}, wantErr: errUnexpectedInput},
		{
			name: "test-notify",
			args: []string{"test-notify", "-api", "http://router-box:8090"},
			check: func(t *testing.T, cfg *CmdConfig) {
				t.Helper()
				assert.Equal(t, cmdTestNotify, cfg.SubCmd)
				assert.Equal(t, "http://router-box:8090", cfg.APIURL)
				assert.Equal(t, "env-key", cfg.APIKey)
			},
		},
		{
			name: "help",
			args: []string{"--help"},
			check: func(t *testing.T, cfg *CmdConfig) {
				t.Helper()
				assert.True(t, cfg.Help)
			},
		},
		{
			name: "digest",
			args: []string{"digest", "-non-interactive", "-login", "admin", "-realm", "NDMS", "-challenge", "abc", "pw"},
			check: func(t *testing.T, cfg *CmdConfig) {
				t.Helper()
				assert.True(t, cfg.NonInteractive)
				assert.Equal(t, "admin", cfg.Login)
				assert.Equal(t, []string{"pw"}, cfg.Args)
			},
		},
		{
			name: "devices defaults",
			args: []string{"devices", "-all"},
			check: func(t *testing.T, cfg *CmdConfig) {
				t.Helper()
				assert.True(t, cfg.All)
				assert.Equal(t, defaultAPIURL, cfg.APIURL)
				assert.Equal(t, "env-key", cfg.APIKey)
				assert.Equal(t, defaultTimeout, cfg.Timeout)
			},
		},
		{
			name: "history",
			args: []string{"history", "-mac", "aa:bb", "-limit", "3", "-api", "http://nas:8090"},
			check: func(t *testing.T, cfg *CmdConfig) {
				t.Helper()
				assert.Equal(t, "aa:bb", cfg.MAC)
				assert.Equal(t, 3, cfg.Limit)
				assert.Equal(t, "http://nas:8090", cfg.APIURL)
			},
		},
		{name: "history bad limit", args: []string{"history", "-limit", "0"}, wantErr: errInvalidLimit},
		{name: "scan stray args", args: []string{"scan", "now"}, wantErr: errUnexpectedInput},
		{
			name: "hash-key",
			args: []string{"hash-key", "-cost", "5", "secret"},
			check: func(t *testing.T, cfg *CmdConfig) {
				t.Helper()
				assert.Equal(t, 5, cfg.Cost)
				assert.Equal(t, []string{"secret"}, cfg.Args)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseFlags(tt.args)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestRunDigestNonInteractive(t *testing.T) {
	cfg := &CmdConfig{SubCmd: cmdDigest, NonInteractive: true, Login: "admin", Realm: "NDMS", Challenge: "abc123"}

	var out bytes.Buffer

	require.NoError(t, RunDigest(cfg, strings.NewReader("pw\n"), &out))
	assert.Equal(t, keenetic.ComputeDigest("admin", "NDMS", "pw", "abc123")+"\n", out.String())

	cfg.Challenge = ""
	require.ErrorIs(t, RunDigest(cfg, strings.NewReader(""), &out), errDigestFields)
}

func TestRunHashKey(t *testing.T) {
	var out bytes.Buffer

	cfg := &CmdConfig{SubCmd: cmdHashKey, Cost: minCost}
	require.NoError(t, Run(context.Background(), cfg, strings.NewReader("my-api-key\n"), &out))

	hash := strings.TrimSpace(out.String())
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("my-api-key")))

	require.ErrorIs(t, RunHashKey(cfg, strings.NewReader(""), &out), errEmptyKey)

	_, err := generateBcrypt("key", maxCost+1)
	require.ErrorIs(t, err, errInvalidCost)
}

func TestDigestModelFlow(t *testing.T) {
	var copied string

	m := newDigestModel(&CmdConfig{Login: "admin", Realm: "NDMS"}, true, func(s string) error {
		copied = s
		return nil
	})

	// login and realm are prefilled; move to the password field
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, fieldPassword, m.focused)

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("pw")})
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, fieldChallenge, m.focused)

	// computing without a challenge reports the missing field
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.ErrorIs(t, m.err, errDigestFields)

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("abc123")})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	require.Equal(t, focusedDone, m.focused)
	require.NoError(t, m.err)
	assert.Equal(t, keenetic.ComputeDigest("admin", "NDMS", "pw", "abc123"), m.digest)
	assert.Contains(t, m.View(), m.digest)

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	assert.Equal(t, m.digest, copied)
	assert.Equal(t, "Digest copied to clipboard!", m.copyMessage)

	// enter starts over with a fresh challenge
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, fieldChallenge, m.focused)
	assert.Empty(t, m.digest)
	assert.Equal(t, "pw", m.inputs[fieldPassword].Value())
}

func TestDigestModelQuit(t *testing.T) {
	m := newDigestModel(&CmdConfig{}, false, nil)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestDigestModelCopyFailure(t *testing.T) {
	m := newDigestModel(&CmdConfig{Login: "a", Realm: "r", Challenge: "c"}, true, func(string) error {
		return errors.New("no clipboard")
	})
	m.focused = fieldChallenge

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})

	assert.Equal(t, "Failed to copy to clipboard", m.copyMessage)
}

func newAPIStub(t *testing.T) *httptest.Server {
	t.Helper()

	now := time.Date(2025, 5, 10, 8, 0, 0, 0, time.UTC)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/devices", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]models.DeviceView{{
			Device: models.Device{MAC: "aa:bb:cc:dd:ee:01", Name: "phone", IP: "10.0.0.2", IsOnline: true, LastSeen: now},
			Dwell:  "1м 30с",
		}})
	})
	mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "aa:bb:cc:dd:ee:01", r.URL.Query().Get("mac"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))

		_ = json.NewEncoder(w).Encode([]*models.PresenceEvent{{
			ID: 1, ClientMAC: "aa:bb:cc:dd:ee:01", Type: models.EventConnected,
			Details: "New device detected", Timestamp: now,
		}})
	})
	mux.HandleFunc("/api/scan", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(models.ScanResponse{
			Status: models.CycleStatus{CycleID: "cycle-1", Error: "router transport error"},
		})
	})

	mux.HandleFunc("/api/notify/test", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		_ = json.NewEncoder(w).Encode(models.TestNotifyResponse{
			Events: []*models.PresenceEvent{
				{ClientMAC: "00:11:22:33:44:55", Type: models.EventConnected, Details: "Back online. Offline for 1ч 5м", Timestamp: now},
				{ClientMAC: "00:11:22:33:44:55", Type: models.EventDisconnected, Details: "Online for 5ч 30м", Timestamp: now},
			},
			Delivered: 2,
			Failed:    1,
		})
	})

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "k" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(models.ErrorResponse{Message: "Unauthorized", Status: http.StatusUnauthorized})

			return
		}

		mux.ServeHTTP(w, r)
	}))
}

func TestAPICommands(t *testing.T) {
	srv := newAPIStub(t)
	defer srv.Close()

	ctx := context.Background()

	var out bytes.Buffer

	err := Run(ctx, &CmdConfig{SubCmd: cmdDevices, APIURL: srv.URL, APIKey: "k"}, nil, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "phone")
	assert.Contains(t, out.String(), "1м 30с")
	assert.Contains(t, out.String(), "online")

	out.Reset()

	err = Run(ctx, &CmdConfig{SubCmd: cmdHistory, APIURL: srv.URL, APIKey: "k", MAC: "aa:bb:cc:dd:ee:01", Limit: 5}, nil, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "New device detected")
	assert.Contains(t, out.String(), "CONNECTED")

	out.Reset()

	err = Run(ctx, &CmdConfig{SubCmd: cmdScan, APIURL: srv.URL, APIKey: "k"}, nil, &out)
	require.ErrorIs(t, err, errAPIRequest)
	assert.Contains(t, out.String(), "cycle-1")
	assert.Contains(t, out.String(), "router transport error")

	out.Reset()

	err = Run(ctx, &CmdConfig{SubCmd: cmdTestNotify, APIURL: srv.URL, APIKey: "k"}, nil, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "2 delivered, 1 failed")
	assert.Contains(t, out.String(), "Online for 5ч 30м")
}

func TestAPIClientUnauthorized(t *testing.T) {
	srv := newAPIStub(t)
	defer srv.Close()

	client, err := NewAPIClient(srv.URL+"/", "wrong", time.Second)
	require.NoError(t, err)

	_, err = client.Devices(context.Background(), false)
	require.ErrorIs(t, err, errAPIRequest)
	assert.Contains(t, err.Error(), "401 Unauthorized")

	_, err = NewAPIClient(" ", "", 0)
	require.ErrorIs(t, err, errAPIURLRequired)
}

func TestRenderEmpty(t *testing.T) {
	assert.Contains(t, renderDevices(nil), "No devices.")
	assert.Contains(t, renderEvents(nil), "No events.")
}
