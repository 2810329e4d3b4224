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
	"sync"
	"time"

	"github.com/carverauto/netpresence/pkg/logger"
	"github.com/carverauto/netpresence/pkg/models"
)

// DefaultTimeout bounds a single delivery when notify.timeout is unset.
const DefaultTimeout = 10 * time.Second

// DispatchReport counts deliveries for one Dispatch call. A delivery is one
// event to one recipient.
type DispatchReport struct {
	Delivered int            `json:"delivered"`
	Failed    int            `json:"failed"`
	Skipped   int            `json:"skipped"`
	Failures  map[string]int `json:"failures,omitempty"`
}

// Dispatcher delivers events to every registered Notifier.
type Dispatcher struct {
	mu             sync.RWMutex
	notifiers      []Notifier
	includeUpdates bool
	timeout        time.Duration
	logger         logger.Logger
}

// NewDispatcher builds a Dispatcher from cfg. UPDATED events are only
// delivered when cfg.IncludeUpdates is set.
func NewDispatcher(cfg *models.NotifyConfig, log logger.Logger, notifiers ...Notifier) *Dispatcher {
	timeout := time.Duration(cfg.Timeout)
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Dispatcher{
		notifiers:      notifiers,
		includeUpdates: cfg.IncludeUpdates,
		timeout:        timeout,
		logger:         log,
	}
}

// Register adds a recipient.
func (d *Dispatcher) Register(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.notifiers = append(d.notifiers, n)
}

// Recipients returns the registered recipient names.
func (d *Dispatcher) Recipients() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		names = append(names, n.Name())
	}

	return names
}

// Dispatch delivers events to all recipients concurrently. Each recipient
// receives events in order; its failures are logged and counted and never
// affect other recipients.
func (d *Dispatcher) Dispatch(ctx context.Context, events []*models.PresenceEvent) DispatchReport {
	report := DispatchReport{}

	deliverable := make([]*models.PresenceEvent, 0, len(events))

	for _, event := range events {
		if event.Type == models.EventUpdated && !d.includeUpdates {
			report.Skipped++
			continue
		}

		deliverable = append(deliverable, event)
	}

	d.mu.RLock()
	notifiers := append([]Notifier(nil), d.notifiers...)
	d.mu.RUnlock()

	if len(deliverable) == 0 || len(notifiers) == 0 {
		return report
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, n := range notifiers {
		wg.Add(1)

		go func(n Notifier) {
			defer wg.Done()

			delivered, failed := d.deliver(ctx, n, deliverable)

			mu.Lock()
			defer mu.Unlock()

			report.Delivered += delivered
			report.Failed += failed

			if failed > 0 {
				if report.Failures == nil {
					report.Failures = make(map[string]int)
				}

				report.Failures[n.Name()] += failed
			}
		}(n)
	}

	wg.Wait()

	return report
}

func (d *Dispatcher) deliver(ctx context.Context, n Notifier, events []*models.PresenceEvent) (delivered, failed int) {
	for _, event := range events {
		if err := d.notifyOne(ctx, n, event); err != nil {
			failed++

			d.logger.Error().
				Err(err).
				Str("recipient", n.Name()).
				Str("mac", event.ClientMAC).
				Str("type", string(event.Type)).
				Msg("Failed to deliver presence event")

			continue
		}

		delivered++
	}

	return delivered, failed
}

func (d *Dispatcher) notifyOne(ctx context.Context, n Notifier, event *models.PresenceEvent) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Str("recipient", n.Name()).Msg("Notifier panicked")
			err = ErrDeliveryFailed
		}
	}()

	return n.Notify(ctx, event)
}
