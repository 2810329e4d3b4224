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

package presence

import (
	"context"
	"time"

	"github.com/carverauto/netpresence/pkg/models"
)

//go:generate mockgen -destination=mock_presence.go -package=presence github.com/carverauto/netpresence/pkg/presence Store,Tx

// DefaultHistoryLimit is used by RecentEvents when limit <= 0.
const DefaultHistoryLimit = models.DefaultHistoryLimit

// Tx is the set of operations available inside one atomic unit of work.
type Tx interface {
	// GetDevice returns ErrDeviceNotFound for an unknown MAC.
	GetDevice(ctx context.Context, mac string) (*models.Device, error)
	CreateDevice(ctx context.Context, device *models.Device) error
	// UpdateDevice overwrites every field of the device keyed by device.MAC.
	UpdateDevice(ctx context.Context, device *models.Device) error
	// AppendEvent inserts the event and assigns its ID.
	AppendEvent(ctx context.Context, event *models.PresenceEvent) error
}

// Store is the Device Store and Event Log. Operations called on the Store
// itself commit immediately.
type Store interface {
	Tx

	// ListOnlineDevices returns devices flagged online, most recent status change first.
	ListOnlineDevices(ctx context.Context) ([]*models.Device, error)
	// ListDevices returns every known device, most recently seen first.
	ListDevices(ctx context.Context) ([]*models.Device, error)
	// RecentEvents returns the newest events first, optionally for one MAC.
	// Each event carries the current state of its device.
	RecentEvents(ctx context.Context, limit int, mac string) ([]*models.PresenceEvent, error)
	// WithTx runs fn atomically. Returning an error rolls everything back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Pruner is implemented by stores that can enforce event retention.
type Pruner interface {
	PruneEvents(ctx context.Context, olderThan time.Time) (int64, error)
}
