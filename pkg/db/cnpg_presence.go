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

package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carverauto/netpresence/pkg/models"
	"github.com/carverauto/netpresence/pkg/presence"
)

const cnpgDeviceColumns = `mac, ip, name, hostname, interface, ssid, is_online,
	first_seen, last_seen, last_status_change, total_online_seconds`

const insertDeviceSQL = `
INSERT INTO presence_devices (` + cnpgDeviceColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

const updateDeviceSQL = `
UPDATE presence_devices SET
	ip = $2,
	name = $3,
	hostname = $4,
	interface = $5,
	ssid = $6,
	is_online = $7,
	first_seen = $8,
	last_seen = $9,
	last_status_change = $10,
	total_online_seconds = $11
WHERE mac = $1`

const insertEventSQL = `
INSERT INTO presence_events (client_mac, type, details, timestamp)
VALUES ($1,$2,$3,$4)
RETURNING id`

const recentEventsSQL = `
SELECT e.id, e.client_mac, e.type, e.details, e.timestamp,
	d.mac, d.ip, d.name, d.hostname, d.interface, d.ssid, d.is_online,
	d.first_seen, d.last_seen, d.last_status_change, d.total_online_seconds
FROM presence_events e
LEFT JOIN presence_devices d ON d.mac = e.client_mac
WHERE ($1 = '' OR e.client_mac = $1)
ORDER BY e.timestamp DESC, e.id DESC
LIMIT $2`

// cnpgQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type cnpgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CNPGStore is a Service backed by a CNPG (Postgres) cluster.
type CNPGStore struct {
	pool *pgxpool.Pool
}

var _ Service = (*CNPGStore)(nil)

// NewCNPGStore wraps a migrated pool.
func NewCNPGStore(pool *pgxpool.Pool) *CNPGStore {
	return &CNPGStore{pool: pool}
}

// Close closes the pool.
func (s *CNPGStore) Close() error {
	s.pool.Close()

	return nil
}

// WithTx implements presence.Store. Device reads inside fn take a row lock.
func (s *CNPGStore) WithTx(ctx context.Context, fn func(tx presence.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(cnpgTx{q: tx, lock: true})
	})
}

// GetDevice implements presence.Store.
func (s *CNPGStore) GetDevice(ctx context.Context, mac string) (*models.Device, error) {
	return cnpgTx{q: s.pool}.GetDevice(ctx, mac)
}

// CreateDevice implements presence.Store.
func (s *CNPGStore) CreateDevice(ctx context.Context, device *models.Device) error {
	return cnpgTx{q: s.pool}.CreateDevice(ctx, device)
}

// UpdateDevice implements presence.Store.
func (s *CNPGStore) UpdateDevice(ctx context.Context, device *models.Device) error {
	return cnpgTx{q: s.pool}.UpdateDevice(ctx, device)
}

// AppendEvent implements presence.Store.
func (s *CNPGStore) AppendEvent(ctx context.Context, event *models.PresenceEvent) error {
	return cnpgTx{q: s.pool}.AppendEvent(ctx, event)
}

// ListOnlineDevices implements presence.Store.
func (s *CNPGStore) ListOnlineDevices(ctx context.Context) ([]*models.Device, error) {
	return s.queryDevices(ctx, `SELECT `+cnpgDeviceColumns+` FROM presence_devices
		WHERE is_online
		ORDER BY last_status_change DESC, mac`)
}

// ListDevices implements presence.Store.
func (s *CNPGStore) ListDevices(ctx context.Context) ([]*models.Device, error) {
	return s.queryDevices(ctx, `SELECT `+cnpgDeviceColumns+` FROM presence_devices
		ORDER BY last_seen DESC, mac`)
}

func (s *CNPGStore) queryDevices(ctx context.Context, query string) ([]*models.Device, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: devices: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	var devices []*models.Device

	for rows.Next() {
		device, err := scanCNPGDevice(rows)
		if err != nil {
			return nil, err
		}

		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: devices: %w", ErrFailedToQuery, err)
	}

	return devices, nil
}

// RecentEvents implements presence.Store.
func (s *CNPGStore) RecentEvents(ctx context.Context, limit int, mac string) ([]*models.PresenceEvent, error) {
	if limit <= 0 {
		limit = presence.DefaultHistoryLimit
	}

	rows, err := s.pool.Query(ctx, recentEventsSQL, models.CanonicalMAC(mac), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: events: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	events := make([]*models.PresenceEvent, 0, limit)

	for rows.Next() {
		var (
			event     models.PresenceEvent
			eventType string
			deviceMAC *string
			ip        *string
			name      *string
			hostname  *string
			iface     *string
			ssid      *string
			online    *bool
			first     *time.Time
			last      *time.Time
			changed   *time.Time
			total     *int64
		)

		if err := rows.Scan(
			&event.ID, &event.ClientMAC, &eventType, &event.Details, &event.Timestamp,
			&deviceMAC, &ip, &name, &hostname, &iface, &ssid, &online,
			&first, &last, &changed, &total,
		); err != nil {
			return nil, fmt.Errorf("%w: event: %w", ErrFailedToScan, err)
		}

		event.Type = models.EventType(eventType)
		event.Timestamp = event.Timestamp.UTC()

		if deviceMAC != nil {
			event.Device = &models.Device{
				MAC:                *deviceMAC,
				IP:                 deref(ip),
				Name:               deref(name),
				Hostname:           deref(hostname),
				Interface:          deref(iface),
				SSID:               deref(ssid),
				IsOnline:           deref(online),
				FirstSeen:          deref(first).UTC(),
				LastSeen:           deref(last).UTC(),
				LastStatusChange:   deref(changed).UTC(),
				TotalOnlineSeconds: deref(total),
			}
		}

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: events: %w", ErrFailedToQuery, err)
	}

	return events, nil
}

// PruneEvents implements presence.Pruner.
func (s *CNPGStore) PruneEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM presence_events WHERE timestamp < $1`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}

	return tag.RowsAffected(), nil
}

// cnpgTx runs presence.Tx operations against the pool or a transaction.
type cnpgTx struct {
	q    cnpgQuerier
	lock bool
}

func (t cnpgTx) GetDevice(ctx context.Context, mac string) (*models.Device, error) {
	query := `SELECT ` + cnpgDeviceColumns + ` FROM presence_devices WHERE mac = $1`
	if t.lock {
		query += ` FOR UPDATE`
	}

	device, err := scanCNPGDevice(t.q.QueryRow(ctx, query, mac))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", presence.ErrDeviceNotFound, mac)
	}

	return device, err
}

func (t cnpgTx) CreateDevice(ctx context.Context, device *models.Device) error {
	args, err := buildDeviceArgs(device)
	if err != nil {
		return err
	}

	if _, err := t.q.Exec(ctx, insertDeviceSQL, args...); err != nil {
		return fmt.Errorf("%w: device %s: %w", ErrFailedToInsert, device.MAC, err)
	}

	return nil
}

func (t cnpgTx) UpdateDevice(ctx context.Context, device *models.Device) error {
	args, err := buildDeviceArgs(device)
	if err != nil {
		return err
	}

	tag, err := t.q.Exec(ctx, updateDeviceSQL, args...)
	if err != nil {
		return fmt.Errorf("update device %s: %w", device.MAC, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", presence.ErrDeviceNotFound, device.MAC)
	}

	return nil
}

func (t cnpgTx) AppendEvent(ctx context.Context, event *models.PresenceEvent) error {
	args, err := buildEventArgs(event)
	if err != nil {
		return err
	}

	if err := t.q.QueryRow(ctx, insertEventSQL, args...).Scan(&event.ID); err != nil {
		return fmt.Errorf("%w: event for %s: %w", ErrFailedToInsert, event.ClientMAC, err)
	}

	return nil
}

func scanCNPGDevice(row pgx.Row) (*models.Device, error) {
	var device models.Device

	err := row.Scan(
		&device.MAC, &device.IP, &device.Name, &device.Hostname, &device.Interface, &device.SSID,
		&device.IsOnline, &device.FirstSeen, &device.LastSeen, &device.LastStatusChange,
		&device.TotalOnlineSeconds,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	if err != nil {
		return nil, fmt.Errorf("%w: device: %w", ErrFailedToScan, err)
	}

	device.FirstSeen = device.FirstSeen.UTC()
	device.LastSeen = device.LastSeen.UTC()
	device.LastStatusChange = device.LastStatusChange.UTC()

	return &device, nil
}

// buildDeviceArgs returns the device columns in cnpgDeviceColumns order.
func buildDeviceArgs(device *models.Device) ([]interface{}, error) {
	if device == nil {
		return nil, ErrDeviceNil
	}

	mac := models.CanonicalMAC(device.MAC)
	if mac == "" {
		return nil, ErrDeviceMACRequired
	}

	return []interface{}{
		mac,
		strings.TrimSpace(device.IP),
		device.Name,
		device.Hostname,
		device.Interface,
		device.SSID,
		device.IsOnline,
		device.FirstSeen.UTC(),
		device.LastSeen.UTC(),
		device.LastStatusChange.UTC(),
		device.TotalOnlineSeconds,
	}, nil
}

// buildEventArgs returns client_mac, type, details and timestamp.
func buildEventArgs(event *models.PresenceEvent) ([]interface{}, error) {
	if event == nil {
		return nil, ErrEventNil
	}

	if !event.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrEventTypeInvalid, event.Type)
	}

	mac := models.CanonicalMAC(event.ClientMAC)
	if mac == "" {
		return nil, ErrDeviceMACRequired
	}

	return []interface{}{
		mac,
		string(event.Type),
		event.Details,
		event.Timestamp.UTC(),
	}, nil
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}

	return *v
}
