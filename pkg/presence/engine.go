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

// Package presence reconciles router client snapshots against the Device Store
// and records CONNECTED, DISCONNECTED and UPDATED transitions in the Event Log.
package presence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/netpresence/pkg/logger"
	"github.com/carverauto/netpresence/pkg/models"
)

const (
	detailsNewDevice = "New device detected"
	emptyValue       = "none"

	opCreate     = "create"
	opReconnect  = "reconnect"
	opUpdate     = "update"
	opDisconnect = "disconnect"
)

// Engine applies snapshots to a Store. One Engine serializes its own passes,
// so a manual scan and a scheduled one never interleave.
type Engine struct {
	store   Store
	logger  logger.Logger
	metrics *engineMetrics

	mu sync.Mutex
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithoutMetrics disables the OTel gauges, mostly for tests.
func WithoutMetrics() EngineOption {
	return func(e *Engine) {
		e.metrics = nil
	}
}

// NewEngine builds an Engine over store.
func NewEngine(store Store, log logger.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		store:   store,
		logger:  log,
		metrics: sharedMetrics(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Reconcile advances device state from snapshot and returns the persisted
// transitions in emission order: snapshot members first, then disconnects.
//
// A store failure for one device is logged and reported in Unresolved while
// the pass continues. The returned error is set only when the online set
// cannot be read or ctx is cancelled between devices; the partial result is
// still returned.
func (e *Engine) Reconcile(ctx context.Context, snapshot []models.ClientRecord, now time.Time) (*models.ReconcileResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := &models.ReconcileResult{Events: []*models.PresenceEvent{}}

	// Writes outlive cancellation so a device is never left half updated.
	writeCtx := context.WithoutCancel(ctx)
	seen := make(map[string]struct{}, len(snapshot))

	for i := range snapshot {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("reconciliation interrupted: %w", err)
		}

		record := snapshot[i]
		record.MAC = models.CanonicalMAC(record.MAC)

		if record.MAC == "" {
			result.Discarded++
			continue
		}

		if _, dup := seen[record.MAC]; dup {
			result.Discarded++
			continue
		}

		seen[record.MAC] = struct{}{}
		result.Observed++

		event, err := e.applySighting(writeCtx, &record, now)
		e.collect(result, record.MAC, event, err)
	}

	online, err := e.store.ListOnlineDevices(writeCtx)
	if err != nil {
		e.record(result, now, -1)
		return result, &PersistenceError{Op: "list online devices", Err: err}
	}

	stillOnline := len(online)

	for _, device := range online {
		if _, ok := seen[device.MAC]; ok {
			continue
		}

		if err := ctx.Err(); err != nil {
			e.record(result, now, -1)
			return result, fmt.Errorf("reconciliation interrupted: %w", err)
		}

		event, err := e.applyAbsence(writeCtx, device.MAC, now)
		if event != nil {
			stillOnline--
		}

		e.collect(result, device.MAC, event, err)
	}

	e.record(result, now, stillOnline)

	return result, nil
}

func (e *Engine) collect(result *models.ReconcileResult, mac string, event *models.PresenceEvent, err error) {
	if err != nil {
		var perr *PersistenceError
		op := "reconcile"

		if errors.As(err, &perr) {
			op = perr.Op
		}

		e.logger.Error().
			Err(err).
			Str("mac", mac).
			Str("op", op).
			Msg("Failed to persist device transition")

		result.Unresolved = append(result.Unresolved, models.UnresolvedTransition{
			MAC:   mac,
			Op:    op,
			Error: err.Error(),
		})

		return
	}

	if event == nil {
		return
	}

	e.logger.Info().
		Str("mac", mac).
		Str("type", string(event.Type)).
		Str("details", event.Details).
		Msg("Device transition")

	result.Events = append(result.Events, event)
}

func (e *Engine) record(result *models.ReconcileResult, now time.Time, online int) {
	if e.metrics != nil {
		e.metrics.observe(result, now, online)
	}
}

// applySighting handles one snapshot member inside a single transaction.
func (e *Engine) applySighting(ctx context.Context, record *models.ClientRecord, now time.Time) (*models.PresenceEvent, error) {
	var event *models.PresenceEvent

	op := opUpdate

	err := e.store.WithTx(ctx, func(tx Tx) error {
		existing, err := tx.GetDevice(ctx, record.MAC)

		switch {
		case errors.Is(err, ErrDeviceNotFound):
			op = opCreate
			device := newDevice(record, now)

			if err := tx.CreateDevice(ctx, device); err != nil {
				return err
			}

			event = newEvent(device, models.EventConnected, detailsNewDevice, now)
		case err != nil:
			return err
		case !existing.IsOnline:
			op = opReconnect
			offline := now.Sub(existing.LastStatusChange)

			device := existing.Clone()
			refresh(device, record, now)
			device.IsOnline = true
			device.LastStatusChange = now

			if err := tx.UpdateDevice(ctx, device); err != nil {
				return err
			}

			event = newEvent(device, models.EventConnected, "Back online. Offline for "+FormatElapsed(offline), now)
		default:
			changes := diff(existing, record)

			device := existing.Clone()
			refresh(device, record, now)

			if err := tx.UpdateDevice(ctx, device); err != nil {
				return err
			}

			if len(changes) > 0 {
				event = newEvent(device, models.EventUpdated, strings.Join(changes, ", "), now)
			}
		}

		if event == nil {
			return nil
		}

		return tx.AppendEvent(ctx, event)
	})
	if err != nil {
		return nil, &PersistenceError{MAC: record.MAC, Op: op, Err: err}
	}

	return event, nil
}

// applyAbsence marks an online device offline. The device is re-read inside
// the transaction and skipped when it is no longer online.
func (e *Engine) applyAbsence(ctx context.Context, mac string, now time.Time) (*models.PresenceEvent, error) {
	var event *models.PresenceEvent

	err := e.store.WithTx(ctx, func(tx Tx) error {
		existing, err := tx.GetDevice(ctx, mac)
		if err != nil {
			return err
		}

		if !existing.IsOnline {
			return nil
		}

		online := now.Sub(existing.LastStatusChange)
		if online < 0 {
			online = 0
		}

		device := existing.Clone()
		device.IsOnline = false
		device.LastStatusChange = now
		device.TotalOnlineSeconds += int64(online / time.Second)

		if err := tx.UpdateDevice(ctx, device); err != nil {
			return err
		}

		event = newEvent(device, models.EventDisconnected, "Online for "+FormatElapsed(online), now)

		return tx.AppendEvent(ctx, event)
	})
	if err != nil {
		return nil, &PersistenceError{MAC: mac, Op: opDisconnect, Err: err}
	}

	return event, nil
}

func newDevice(record *models.ClientRecord, now time.Time) *models.Device {
	device := &models.Device{
		MAC:              record.MAC,
		IsOnline:         true,
		FirstSeen:        now,
		LastStatusChange: now,
	}

	refresh(device, record, now)

	return device
}

// refresh overwrites the last-observed attributes and lastSeen.
func refresh(device *models.Device, record *models.ClientRecord, now time.Time) {
	device.IP = record.IP
	device.Name = record.ResolvedName()
	device.Hostname = record.Hostname
	device.Interface = record.Interface
	device.SSID = record.SSID
	device.LastSeen = now
}

// diff lists attribute changes; only a non-empty new value that differs from
// the stored one counts.
func diff(device *models.Device, record *models.ClientRecord) []string {
	var changes []string

	add := func(label, old, next string) {
		if next == "" || next == old {
			return
		}

		if old == "" {
			old = emptyValue
		}

		changes = append(changes, fmt.Sprintf("%s: %s -> %s", label, old, next))
	}

	add("IP", device.IP, record.IP)
	add("Name", device.Name, record.ResolvedName())
	add("Interface", device.Interface, record.Interface)
	add("SSID", device.SSID, record.SSID)

	return changes
}

func newEvent(device *models.Device, typ models.EventType, details string, now time.Time) *models.PresenceEvent {
	return &models.PresenceEvent{
		ClientMAC: device.MAC,
		Type:      typ,
		Details:   details,
		Timestamp: now,
		Device:    device.Clone(),
	}
}
