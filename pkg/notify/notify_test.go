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

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/netpresence/pkg/logger"
	"github.com/carverauto/netpresence/pkg/models"
)

var errRecipientDown = errors.New("recipient down")

func testEvents() []*models.PresenceEvent {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	return []*models.PresenceEvent{
		{ID: 1, ClientMAC: "aa:bb:cc:dd:ee:01", Type: models.EventConnected, Details: "New device detected", Timestamp: ts},
		{ID: 2, ClientMAC: "aa:bb:cc:dd:ee:02", Type: models.EventUpdated, Details: "IP: a -> b", Timestamp: ts},
		{ID: 3, ClientMAC: "aa:bb:cc:dd:ee:03", Type: models.EventDisconnected, Details: "Online for 5с", Timestamp: ts},
	}
}

// recordingNotifier keeps every delivered event.
type recordingNotifier struct {
	name string

	mu     sync.Mutex
	events []*models.PresenceEvent
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Notify(_ context.Context, event *models.PresenceEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)

	return nil
}

func (r *recordingNotifier) received() []*models.PresenceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*models.PresenceEvent(nil), r.events...)
}

func TestDispatcher_SkipsUpdatesByDefault(t *testing.T) {
	rec := &recordingNotifier{name: "rec"}
	d := NewDispatcher(&models.NotifyConfig{}, logger.NewTestLogger(), rec)

	report := d.Dispatch(context.Background(), testEvents())

	assert.Equal(t, 2, report.Delivered)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Failed)

	got := rec.received()
	require.Len(t, got, 2)
	assert.Equal(t, models.EventConnected, got[0].Type)
	assert.Equal(t, models.EventDisconnected, got[1].Type)
}

func TestDispatcher_IncludeUpdates(t *testing.T) {
	rec := &recordingNotifier{name: "rec"}
	d := NewDispatcher(&models.NotifyConfig{IncludeUpdates: true}, logger.NewTestLogger(), rec)

	report := d.Dispatch(context.Background(), testEvents())

	assert.Equal(t, 3, report.Delivered)
	assert.Zero(t, report.Skipped)
	assert.Len(t, rec.received(), 3)
}

func TestDispatcher_FailureIsIsolated(t *testing.T) {
	ctrl := gomock.NewController(t)

	failing := NewMockNotifier(ctrl)
	failing.EXPECT().Name().Return("broken").AnyTimes()
	failing.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errRecipientDown).Times(2)

	panicking := NewMockNotifier(ctrl)
	panicking.EXPECT().Name().Return("panicky").AnyTimes()
	panicking.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, *models.PresenceEvent) error {
			panic("boom")
		}).Times(2)

	rec := &recordingNotifier{name: "rec"}

	d := NewDispatcher(&models.NotifyConfig{}, logger.NewTestLogger(), failing, panicking)
	d.Register(rec)

	assert.Equal(t, []string{"broken", "panicky", "rec"}, d.Recipients())

	report := d.Dispatch(context.Background(), testEvents())

	assert.Equal(t, 2, report.Delivered)
	assert.Equal(t, 4, report.Failed)
	assert.Equal(t, map[string]int{"broken": 2, "panicky": 2}, report.Failures)
	assert.Len(t, rec.received(), 2)
}

func TestDispatcher_NoRecipients(t *testing.T) {
	d := NewDispatcher(&models.NotifyConfig{}, logger.NewTestLogger())

	report := d.Dispatch(context.Background(), testEvents())
	assert.Zero(t, report.Delivered)
	assert.Equal(t, 1, report.Skipped)
}

func TestDispatcher_AppliesDeliveryTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)

	slow := NewMockNotifier(ctrl)
	slow.EXPECT().Name().Return("slow").AnyTimes()
	slow.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ *models.PresenceEvent) error {
			<-ctx.Done()
			return ctx.Err()
		})

	d := NewDispatcher(&models.NotifyConfig{Timeout: models.Duration(20 * time.Millisecond)}, logger.NewTestLogger(), slow)

	report := d.Dispatch(context.Background(), testEvents()[:1])
	assert.Equal(t, 1, report.Failed)
}

func TestWebhookNotifier_PostsCloudEvent(t *testing.T) {
	var (
		mu      sync.Mutex
		payload map[string]interface{}
		ctype   string
		agent   string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mu.Lock()
		defer mu.Unlock()

		ctype = r.Header.Get("Content-Type")
		agent = r.Header.Get("User-Agent")
		_ = json.Unmarshal(body, &payload)

		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(srv.URL+"/hook", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(n.Name(), "webhook:127.0.0.1"))

	require.NoError(t, n.Notify(context.Background(), testEvents()[0]))

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, "application/cloudevents+json", ctype)
	assert.True(t, strings.HasPrefix(agent, "netpresence/"))
	assert.Equal(t, "com.carverauto.netpresence.device.connected", payload["type"])
	assert.Equal(t, "1.0", payload["specversion"])

	data, ok := payload["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", data["mac"])
}

func TestWebhookNotifier_Non2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(srv.URL, srv.Client())
	require.NoError(t, err)

	err = n.Notify(context.Background(), testEvents()[0])
	require.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookNotifier_TransportError(t *testing.T) {
	ctrl := gomock.NewController(t)

	client := NewMockHTTPClient(ctrl)
	client.EXPECT().Do(gomock.Any()).Return(nil, errRecipientDown)

	n, err := NewWebhookNotifier("https://hooks.example.com/presence", client)
	require.NoError(t, err)

	err = n.Notify(context.Background(), testEvents()[0])
	require.ErrorIs(t, err, ErrDeliveryFailed)
	require.ErrorIs(t, err, errRecipientDown)
}

func TestNewWebhookNotifiers(t *testing.T) {
	notifiers, err := NewWebhookNotifiers(&models.NotifyConfig{
		Webhooks: []string{"https://a.example.com/x", "http://b.example.com/y"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, notifiers, 2)
	assert.Equal(t, "webhook:b.example.com", notifiers[1].Name())

	_, err = NewWebhookNotifiers(&models.NotifyConfig{Webhooks: []string{"ftp://nope"}}, nil)
	require.ErrorIs(t, err, errInvalidWebhookURL)

	_, err = NewWebhookNotifier("", nil)
	require.ErrorIs(t, err, errWebhookURLRequired)
}
