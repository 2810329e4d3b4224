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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/carverauto/netpresence/pkg/models"
	"github.com/carverauto/netpresence/pkg/natsutil"
	"github.com/carverauto/netpresence/pkg/version"
)

const cloudEventsContentType = "application/cloudevents+json"

// WebhookNotifier POSTs each event as a structured CloudEvent to one URL.
type WebhookNotifier struct {
	url    string
	name   string
	client HTTPClient
}

// NewWebhookNotifier validates rawURL and returns a notifier for it. A nil
// client falls back to http.DefaultClient.
func NewWebhookNotifier(rawURL string, client HTTPClient) (*WebhookNotifier, error) {
	if rawURL == "" {
		return nil, errWebhookURLRequired
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", errInvalidWebhookURL, rawURL)
	}

	if client == nil {
		client = http.DefaultClient
	}

	return &WebhookNotifier{
		url:    rawURL,
		name:   "webhook:" + u.Host,
		client: client,
	}, nil
}

// NewWebhookNotifiers builds one notifier per configured URL.
func NewWebhookNotifiers(cfg *models.NotifyConfig, client HTTPClient) ([]Notifier, error) {
	notifiers := make([]Notifier, 0, len(cfg.Webhooks))

	for _, raw := range cfg.Webhooks {
		n, err := NewWebhookNotifier(raw, client)
		if err != nil {
			return nil, err
		}

		notifiers = append(notifiers, n)
	}

	return notifiers, nil
}

// Name implements Notifier.
func (w *WebhookNotifier) Name() string {
	return w.name
}

// Notify implements Notifier. Any non-2xx answer is a delivery failure.
func (w *WebhookNotifier) Notify(ctx context.Context, event *models.PresenceEvent) error {
	body, err := json.Marshal(natsutil.NewPresenceCloudEvent(event))
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", cloudEventsContentType)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDeliveryFailed, w.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %s answered %d", ErrDeliveryFailed, w.name, resp.StatusCode)
	}

	return nil
}
