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
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/carverauto/netpresence/pkg/logger"
	"github.com/carverauto/netpresence/pkg/models"
	"github.com/carverauto/netpresence/pkg/presence"
)

// sqliteMigrations are applied in order; PRAGMA user_version records progress.
var sqliteMigrations = []string{
	`
CREATE TABLE IF NOT EXISTS devices (
  mac                  TEXT PRIMARY KEY,
  ip                   TEXT NOT NULL DEFAULT '',
  name                 TEXT NOT NULL DEFAULT '',
  hostname             TEXT NOT NULL DEFAULT '',
  interface            TEXT NOT NULL DEFAULT '',
  ssid                 TEXT NOT NULL DEFAULT '',
  is_online            INTEGER NOT NULL DEFAULT 0,
  first_seen           INTEGER NOT NULL,
  last_seen            INTEGER NOT NULL,
  last_status_change   INTEGER NOT NULL,
  total_online_seconds INTEGER NOT NULL DEFAULT 0
);
`,
	`
CREATE TABLE IF NOT EXISTS events (
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  client_mac TEXT NOT NULL REFERENCES devices(mac),
  type       TEXT NOT NULL CHECK(type IN ('CONNECTED','DISCONNECTED','UPDATED')),
  details    TEXT NOT NULL DEFAULT '',
  timestamp  INTEGER NOT NULL
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_devices_online
ON devices (is_online, last_status_change DESC);
`,
	`
CREATE INDEX IF NOT EXISTS idx_events_time
ON events (timestamp DESC, id DESC);
`,
	`
CREATE INDEX IF NOT EXISTS idx_events_mac_time
ON events (client_mac, timestamp DESC, id DESC);
`,
}

const sqliteDeviceColumns = `mac, ip, name, hostname, interface, ssid, is_online,
first_seen, last_seen, last_status_change, total_online_seconds`

// SQLiteStore is a Service backed by a local SQLite file.
type SQLiteStore struct {
	db        *sql.DB
	logger    logger.Logger
	closeOnce sync.Once
}

var _ Service = (*SQLiteStore)(nil)

// sqliteQuerier is satisfied by *sql.DB and *sql.Tx.
type sqliteQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
func OpenSQLite(path string, log logger.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("%w: create storage directory: %w", ErrFailedOpenDB, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", filepath.ToSlash(path))

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedOpenDB, err)
	}

	// A single connection serializes writers.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: ping sqlite: %w", ErrFailedOpenDB, err)
	}

	store := &SQLiteStore{db: conn, logger: log}

	if err := store.enableWALMode(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := store.applyMigrations(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("opened sqlite presence store")

	return store, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	var err error

	s.closeOnce.Do(func() {
		err = s.db.Close()
	})

	return err
}

func (s *SQLiteStore) enableWALMode() error {
	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL;").Scan(&mode); err != nil {
		return fmt.Errorf("%w: enable WAL mode: %w", ErrFailedToInit, err)
	}

	if !strings.EqualFold(mode, "wal") {
		return fmt.Errorf("%w: unexpected journal mode %q", ErrFailedToInit, mode)
	}

	return nil
}

func (s *SQLiteStore) applyMigrations() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("%w: read schema version: %w", ErrFailedToInit, err)
	}

	if version >= len(sqliteMigrations) {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin migration: %w", ErrFailedToInit, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	for i := version; i < len(sqliteMigrations); i++ {
		if _, err := tx.Exec(sqliteMigrations[i]); err != nil {
			return fmt.Errorf("%w: apply migration %d: %w", ErrFailedToInit, i+1, err)
		}

		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d;", i+1)); err != nil {
			return fmt.Errorf("%w: set schema version %d: %w", ErrFailedToInit, i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit migration: %w", ErrFailedToInit, err)
	}

	s.logger.Info().
		Int("from", version).
		Int("to", len(sqliteMigrations)).
		Msg("applied sqlite migrations")

	return nil
}

// WithTx implements presence.Store.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx presence.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(sqliteTx{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetDevice implements presence.Store.
func (s *SQLiteStore) GetDevice(ctx context.Context, mac string) (*models.Device, error) {
	return sqliteTx{q: s.db}.GetDevice(ctx, mac)
}

// CreateDevice implements presence.Store.
func (s *SQLiteStore) CreateDevice(ctx context.Context, device *models.Device) error {
	return sqliteTx{q: s.db}.CreateDevice(ctx, device)
}

// UpdateDevice implements presence.Store.
func (s *SQLiteStore) UpdateDevice(ctx context.Context, device *models.Device) error {
	return sqliteTx{q: s.db}.UpdateDevice(ctx, device)
}

// AppendEvent implements presence.Store.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *models.PresenceEvent) error {
	return sqliteTx{q: s.db}.AppendEvent(ctx, event)
}

// ListOnlineDevices implements presence.Store.
func (s *SQLiteStore) ListOnlineDevices(ctx context.Context) ([]*models.Device, error) {
	return s.queryDevices(ctx, `SELECT `+sqliteDeviceColumns+` FROM devices
		WHERE is_online = 1
		ORDER BY last_status_change DESC, mac`)
}

// ListDevices implements presence.Store.
func (s *SQLiteStore) ListDevices(ctx context.Context) ([]*models.Device, error) {
	return s.queryDevices(ctx, `SELECT `+sqliteDeviceColumns+` FROM devices
		ORDER BY last_seen DESC, mac`)
}

func (s *SQLiteStore) queryDevices(ctx context.Context, query string) ([]*models.Device, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: devices: %w", ErrFailedToQuery, err)
	}
	defer func() { _ = rows.Close() }()

	var devices []*models.Device

	for rows.Next() {
		device, err := scanSQLiteDevice(rows)
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
func (s *SQLiteStore) RecentEvents(ctx context.Context, limit int, mac string) ([]*models.PresenceEvent, error) {
	if limit <= 0 {
		limit = presence.DefaultHistoryLimit
	}

	mac = models.CanonicalMAC(mac)

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.client_mac, e.type, e.details, e.timestamp,
		       d.mac, COALESCE(d.ip, ''), COALESCE(d.name, ''), COALESCE(d.hostname, ''),
		       COALESCE(d.interface, ''), COALESCE(d.ssid, ''), COALESCE(d.is_online, 0),
		       COALESCE(d.first_seen, 0), COALESCE(d.last_seen, 0),
		       COALESCE(d.last_status_change, 0), COALESCE(d.total_online_seconds, 0)
		FROM events e
		LEFT JOIN devices d ON d.mac = e.client_mac
		WHERE (? = '' OR e.client_mac = ?)
		ORDER BY e.timestamp DESC, e.id DESC
		LIMIT ?`, mac, mac, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: events: %w", ErrFailedToQuery, err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]*models.PresenceEvent, 0, limit)

	for rows.Next() {
		var (
			event     models.PresenceEvent
			device    models.Device
			ts        int64
			deviceMAC sql.NullString
			online    int64
			first     int64
			last      int64
			changed   int64
		)

		if err := rows.Scan(
			&event.ID, &event.ClientMAC, &event.Type, &event.Details, &ts,
			&deviceMAC, &device.IP, &device.Name, &device.Hostname,
			&device.Interface, &device.SSID, &online,
			&first, &last, &changed, &device.TotalOnlineSeconds,
		); err != nil {
			return nil, fmt.Errorf("%w: event: %w", ErrFailedToScan, err)
		}

		event.Timestamp = fromUnixMilli(ts)

		if deviceMAC.Valid {
			device.MAC = deviceMAC.String
			device.IsOnline = online != 0
			device.FirstSeen = fromUnixMilli(first)
			device.LastSeen = fromUnixMilli(last)
			device.LastStatusChange = fromUnixMilli(changed)
			event.Device = &device
		}

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: events: %w", ErrFailedToQuery, err)
	}

	return events, nil
}

// PruneEvents implements presence.Pruner.
func (s *SQLiteStore) PruneEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE timestamp < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}

	return res.RowsAffected()
}

// sqliteTx runs presence.Tx operations against a connection or transaction.
type sqliteTx struct {
	q sqliteQuerier
}

func (t sqliteTx) GetDevice(ctx context.Context, mac string) (*models.Device, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+sqliteDeviceColumns+` FROM devices WHERE mac = ?`, mac)

	device, err := scanSQLiteDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", presence.ErrDeviceNotFound, mac)
	}

	return device, err
}

func (t sqliteTx) CreateDevice(ctx context.Context, device *models.Device) error {
	args, err := buildSQLiteDeviceArgs(device)
	if err != nil {
		return err
	}

	if _, err := t.q.ExecContext(ctx, `INSERT INTO devices (`+sqliteDeviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
		return fmt.Errorf("%w: device %s: %w", ErrFailedToInsert, device.MAC, err)
	}

	return nil
}

func (t sqliteTx) UpdateDevice(ctx context.Context, device *models.Device) error {
	args, err := buildSQLiteDeviceArgs(device)
	if err != nil {
		return err
	}

	// The MAC moves from the first to the last placeholder.
	args = append(args[1:], args[0])

	res, err := t.q.ExecContext(ctx, `UPDATE devices SET
		ip = ?, name = ?, hostname = ?, interface = ?, ssid = ?, is_online = ?,
		first_seen = ?, last_seen = ?, last_status_change = ?, total_online_seconds = ?
		WHERE mac = ?`, args...)
	if err != nil {
		return fmt.Errorf("update device %s: %w", device.MAC, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", presence.ErrDeviceNotFound, device.MAC)
	}

	return nil
}

func (t sqliteTx) AppendEvent(ctx context.Context, event *models.PresenceEvent) error {
	args, err := buildEventArgs(event)
	if err != nil {
		return err
	}

	args[3] = event.Timestamp.UnixMilli()

	res, err := t.q.ExecContext(ctx, `INSERT INTO events (client_mac, type, details, timestamp)
		VALUES (?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("%w: event for %s: %w", ErrFailedToInsert, event.ClientMAC, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: event id: %w", ErrFailedToInsert, err)
	}

	event.ID = id

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteDevice(row rowScanner) (*models.Device, error) {
	var (
		device  models.Device
		online  int64
		first   int64
		last    int64
		changed int64
	)

	err := row.Scan(
		&device.MAC, &device.IP, &device.Name, &device.Hostname, &device.Interface, &device.SSID,
		&online, &first, &last, &changed, &device.TotalOnlineSeconds,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if err != nil {
		return nil, fmt.Errorf("%w: device: %w", ErrFailedToScan, err)
	}

	device.IsOnline = online != 0
	device.FirstSeen = fromUnixMilli(first)
	device.LastSeen = fromUnixMilli(last)
	device.LastStatusChange = fromUnixMilli(changed)

	return &device, nil
}

func buildSQLiteDeviceArgs(device *models.Device) ([]interface{}, error) {
	args, err := buildDeviceArgs(device)
	if err != nil {
		return nil, err
	}

	online := 0
	if device.IsOnline {
		online = 1
	}

	args[6] = online
	args[7] = device.FirstSeen.UnixMilli()
	args[8] = device.LastSeen.UnixMilli()
	args[9] = device.LastStatusChange.UnixMilli()

	return args, nil
}

func fromUnixMilli(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
