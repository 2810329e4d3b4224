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

package monitor

//go:generate mockgen -destination=mock_monitor.go -package=monitor github.com/carverauto/netpresence/pkg/monitor Clock,Ticker,Router,Reconciler,EventDispatcher

import (
	"context"
	"time"

	"github.com/carverauto/netpresence/pkg/models"
	"github.com/carverauto/netpresence/pkg/notify"
)

// Clock abstracts time-related operations.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker abstracts the ticker behavior.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// Router is the authenticated snapshot source.
type Router interface {
	Authenticate(ctx context.Context) error
	FetchSnapshot(ctx context.Context) ([]models.ClientRecord, error)
}

// Reconciler applies a snapshot to the Device Store.
type Reconciler interface {
	Reconcile(ctx context.Context, snapshot []models.ClientRecord, now time.Time) (*models.ReconcileResult, error)
}

// EventDispatcher delivers a cycle's events to notification recipients.
type EventDispatcher interface {
	Dispatch(ctx context.Context, events []*models.PresenceEvent) notify.DispatchReport
}
