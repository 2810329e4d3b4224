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

package api

import (
	"context"
	"time"

	"github.com/carverauto/netpresence/pkg/models"
	"github.com/carverauto/netpresence/pkg/notify"
)

// DeviceReader is the read side of the Device Store and Event Log.
type DeviceReader interface {
	ListOnlineDevices(ctx context.Context) ([]*models.Device, error)
	ListDevices(ctx context.Context) ([]*models.Device, error)
	RecentEvents(ctx context.Context, limit int, mac string) ([]*models.PresenceEvent, error)
}

// Scanner runs manual poll cycles and reports the latest one.
type Scanner interface {
	RunOnce(ctx context.Context) (*models.ScanResponse, error)
	Status() models.CycleStatus
}

// EventDispatcher delivers events to the notification recipients.
type EventDispatcher interface {
	Dispatch(ctx context.Context, events []*models.PresenceEvent) notify.DispatchReport
}

// StatusResponse is returned by /api/status.
type StatusResponse struct {
	Cycle         models.CycleStatus `json:"cycle"`
	OnlineDevices int                `json:"online_devices"`
	StreamClients int                `json:"stream_clients"`
	Time          time.Time          `json:"time"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StreamMessage is a message sent over the websocket stream.
type StreamMessage struct {
	Type      string                `json:"type"` // "hello", "event"
	Event     *models.PresenceEvent `json:"event,omitempty"`
	Error     string                `json:"error,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}
