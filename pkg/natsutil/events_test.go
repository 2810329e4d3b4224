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

package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/netpresence/pkg/keenetic"
	"github.com/carverauto/netpresence/pkg/logger"
	"github.com/carverauto/netpresence/pkg/models"
)

var errTestFixture = errors.New("fixture error")

func runJetStreamServer(t *testing.T) *server.Server {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}

	srv, err := server.NewServer(opts)
	require.NoError(t, err)

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}

	require.Eventually(t, func() bool {
		return srv.JetStreamEnabled()
	}, 5*time.Second, 50*time.Millisecond, "embedded NATS server not ready for JetStream")

	t.Cleanup(srv.Shutdown)

	return srv
}

func connectJetStream(t *testing.T) (*nats.Conn, jetstream.JetStream) {
	t.Helper()

	srv := runJetStreamServer(t)

	nc, err := Connect(&models.NATSConfig{URL: srv.ClientURL()}, logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := NewJetStream(nc, "")
	require.NoError(t, err)

	return nc, js
}

func TestEnsureSubjectList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		subjects []string
		subject  string
		want     []string
	}{
		{
			name:    "adds subject when list empty",
			subject: "events.presence.*",
			want:    []string{"events.presence.*"},
		},
		{
			name:     "keeps list when wildcard matches",
			subjects: []string{"events.*.*"},
			subject:  "events.presence.*",
			want:     []string{"events.*.*"},
		},
		{
			name:     "keeps list when greater wildcard matches",
			subjects: []string{"events.>"},
			subject:  "events.presence.*",
			want:     []string{"events.>"},
		},
		{
			name:     "appends when unmatched",
			subjects: []string{"logs.syslog.*"},
			subject:  "events.presence.*",
			want:     []string{"logs.syslog.*", "events.presence.*"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			result := ensureSubjectList(append([]string(nil), tc.subjects...), tc.subject)
			assert.Equal(t, tc.want, result)
		})
	}
}

func TestMatchesSubject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		pattern  string
		subject  string
		expected bool
	}{
		{"exact match", "events.presence.connected", "events.presence.connected", true},
		{"single wildcard", "events.*.connected", "events.presence.connected", true},
		{"greater wildcard", "events.>", "events.presence.connected", true},
		{"greater wildcard needs a token", "events.presence.>", "events.presence", false},
		{"no match length", "events.*", "events.presence.connected", false},
		{"no match tokens", "logs.syslog.*", "events.presence.connected", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, matchesSubject(tc.pattern, tc.subject))
		})
	}
}

func TestIsStreamMissingErr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"jetstream no stream response", jetstream.ErrNoStreamResponse, true},
		{"jetstream stream not found", jetstream.ErrStreamNotFound, true},
		{"nats stream not found", nats.ErrStreamNotFound, true},
		{"nats no responders", nats.ErrNoResponders, true},
		{"other error", errTestFixture, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, isStreamMissingErr(tc.err))
		})
	}
}

func TestNewPresenceCloudEvent(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	ce := NewPresenceCloudEvent(&models.PresenceEvent{
		ID:        7,
		ClientMAC: "aa:bb:cc:dd:ee:01",
		Type:      models.EventDisconnected,
		Details:   "Online for 5с",
		Timestamp: ts,
		Device:    &models.Device{MAC: "aa:bb:cc:dd:ee:01", IP: "10.0.0.2"},
	})

	assert.Equal(t, "1.0", ce.SpecVersion)
	assert.Equal(t, "aa:bb:cc:dd:ee:01-7", ce.ID)
	assert.Equal(t, "com.carverauto.netpresence.device.disconnected", ce.Type)
	assert.Equal(t, "events.presence.disconnected", ce.Subject)
	require.NotNil(t, ce.Time)
	assert.Equal(t, ts, *ce.Time)

	data, ok := ce.Data.(models.PresenceEventData)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2", data.IP)

	anonymous := NewPresenceCloudEvent(&models.PresenceEvent{Type: models.EventConnected})
	assert.NotEmpty(t, anonymous.ID)
}

func TestEventPublisher_PublishesToStream(t *testing.T) {
	_, js := connectJetStream(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	publisher, err := CreateEventPublisher(ctx, js, &models.NATSConfig{Stream: "presence"}, logger.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, "nats", publisher.Name())

	err = publisher.Notify(ctx, &models.PresenceEvent{
		ID:        1,
		ClientMAC: "aa:bb:cc:dd:ee:01",
		Type:      models.EventConnected,
		Details:   "New device detected",
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)

	stream, err := js.Stream(ctx, "presence")
	require.NoError(t, err)

	msg, err := stream.GetLastMsgForSubject(ctx, "events.presence.connected")
	require.NoError(t, err)

	var ce models.CloudEvent
	require.NoError(t, json.Unmarshal(msg.Data, &ce))
	assert.Equal(t, "com.carverauto.netpresence.device.connected", ce.Type)
	assert.Equal(t, "aa:bb:cc:dd:ee:01-1", ce.ID)
}

func TestCreateEventPublisher_ExtendsExistingStream(t *testing.T) {
	_, js := connectJetStream(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{Name: "shared", Subjects: []string{"logs.>"}})
	require.NoError(t, err)

	_, err = CreateEventPublisher(ctx, js, &models.NATSConfig{Stream: "shared"}, logger.NewTestLogger())
	require.NoError(t, err)

	stream, err := js.Stream(ctx, "shared")
	require.NoError(t, err)

	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"logs.>", "events.presence.*"}, info.Config.Subjects)
}

func TestKVSessionStore(t *testing.T) {
	_, js := connectJetStream(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := NewKVSessionStore(ctx, js, "netpresence-sessions", "")
	require.NoError(t, err)

	_, err = store.Load(ctx)
	require.ErrorIs(t, err, keenetic.ErrNoSession)

	require.NoError(t, store.Save(ctx, keenetic.Session{"sid": "abc"}))

	session, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, keenetic.Session{"sid": "abc"}, session)

	require.NoError(t, store.Save(ctx, keenetic.Session{}))

	_, err = store.Load(ctx)
	require.ErrorIs(t, err, keenetic.ErrNoSession)
}

func TestTLSConfig_RequiresMaterial(t *testing.T) {
	_, err := TLSConfig(&models.NATSConfig{URL: "nats://localhost:4222"})
	require.ErrorIs(t, err, ErrTLSNotConfigured)

	_, err = TLSConfig(&models.NATSConfig{
		CertDir: t.TempDir(),
		TLS:     &models.TLSConfig{CertFile: "missing.crt", KeyFile: "missing.key", CAFile: "ca.crt"},
	})
	require.Error(t, err)
}
