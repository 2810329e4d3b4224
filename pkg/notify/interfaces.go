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

// Package notify fans presence events out to notification recipients.
package notify

import (
	"context"
	"errors"
	"net/http"

	"github.com/carverauto/netpresence/pkg/models"
)

//go:generate mockgen -destination=mock_notify.go -package=notify github.com/carverauto/netpresence/pkg/notify Notifier,HTTPClient

var (
	// ErrDeliveryFailed wraps a recipient rejecting an event.
	ErrDeliveryFailed = errors.New("notification delivery failed")

	errWebhookURLRequired = errors.New("webhook url is required")
	errInvalidWebhookURL  = errors.New("invalid webhook url")
)

// Notifier is one notification recipient.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, event *models.PresenceEvent) error
}

// HTTPClient defines the interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
