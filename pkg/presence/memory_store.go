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
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/carverauto/netpresence/pkg/models"
)

// MemoryStore is an in-process Store used by the memory driver and tests.
type MemoryStore struct {
	mu      sync.Mutex
	devices map[string]*models.Device
	events  []*models.PresenceEvent
	nextID  int64
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Pruner = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices: make(map[string]*models.Device),
		nextID:  1,
	}
}

// memoryTx stages writes until the surrounding WithTx succeeds.
type memoryTx struct {
	store   *MemoryStore
	devices map[string]*models.Device
	events  []*models.PresenceEvent
	nextID  int64
}

func (t *memoryTx) GetDevice(_ context.Context, mac string) (*models.Device, error) {
	if d, ok := t.devices[mac]; ok {
		return d.Clone(), nil
	}

	if d, ok := t.store.devices[mac]; ok {
		return d.Clone(), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, mac)
}

func (t *memoryTx) CreateDevice(_ context.Context, device *models.Device) error {
	if _, ok := t.store.devices[device.MAC]; ok {
		return fmt.Errorf("device %s already exists", device.MAC)
	}

	if _, ok := t.devices[device.MAC]; ok {
		return fmt.Errorf("device %s already exists", device.MAC)
	}

	t.devices[device.MAC] = device.Clone()

	return nil
}

func (t *memoryTx) UpdateDevice(ctx context.Context, device *models.Device) error {
	if _, err := t.GetDevice(ctx, device.MAC); err != nil {
		return err
	}

	t.devices[device.MAC] = device.Clone()

	return nil
}

func (t *memoryTx) AppendEvent(_ context.Context, event *models.PresenceEvent) error {
	event.ID = t.nextID
	t.nextID++

	stored := *event
	stored.Device = nil
	t.events = append(t.events, &stored)

	return nil
}

func (s *MemoryStore) begin() *memoryTx {
	return &memoryTx{
		store:   s,
		devices: make(map[string]*models.Device),
		nextID:  s.nextID,
	}
}

func (s *MemoryStore) commit(tx *memoryTx) {
	for mac, d := range tx.devices {
		s.devices[mac] = d
	}

	s.events = append(s.events, tx.events...)
	s.nextID = tx.nextID
}

// WithTx implements Store.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.begin()
	if err := fn(tx); err != nil {
		return err
	}

	s.commit(tx)

	return nil
}

// GetDevice implements Store.
func (s *MemoryStore) GetDevice(ctx context.Context, mac string) (*models.Device, error) {
	var device *models.Device

	err := s.WithTx(ctx, func(tx Tx) error {
		var err error
		device, err = tx.GetDevice(ctx, mac)

		return err
	})

	return device, err
}

// CreateDevice implements Store.
func (s *MemoryStore) CreateDevice(ctx context.Context, device *models.Device) error {
	return s.WithTx(ctx, func(tx Tx) error {
		return tx.CreateDevice(ctx, device)
	})
}

// UpdateDevice implements Store.
func (s *MemoryStore) UpdateDevice(ctx context.Context, device *models.Device) error {
	return s.WithTx(ctx, func(tx Tx) error {
		return tx.UpdateDevice(ctx, device)
	})
}

// AppendEvent implements Store.
func (s *MemoryStore) AppendEvent(ctx context.Context, event *models.PresenceEvent) error {
	return s.WithTx(ctx, func(tx Tx) error {
		return tx.AppendEvent(ctx, event)
	})
}

// ListOnlineDevices implements Store.
func (s *MemoryStore) ListOnlineDevices(_ context.Context) ([]*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Device, 0, len(s.devices))

	for _, d := range s.devices {
		if d.IsOnline {
			out = append(out, d.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastStatusChange.Equal(out[j].LastStatusChange) {
			return out[i].MAC < out[j].MAC
		}

		return out[i].LastStatusChange.After(out[j].LastStatusChange)
	})

	return out, nil
}

// ListDevices implements Store.
func (s *MemoryStore) ListDevices(_ context.Context) ([]*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Device, 0, len(s.devices))

	for _, d := range s.devices {
		out = append(out, d.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].MAC < out[j].MAC
		}

		return out[i].LastSeen.After(out[j].LastSeen)
	})

	return out, nil
}

// RecentEvents implements Store.
func (s *MemoryStore) RecentEvents(_ context.Context, limit int, mac string) ([]*models.PresenceEvent, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	mac = models.CanonicalMAC(mac)

	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]*models.PresenceEvent, 0, len(s.events))

	for _, e := range s.events {
		if mac != "" && e.ClientMAC != mac {
			continue
		}

		matched = append(matched, e)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].ID > matched[j].ID
		}

		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*models.PresenceEvent, 0, len(matched))

	for _, e := range matched {
		event := *e
		event.Device = s.devices[e.ClientMAC].Clone()
		out = append(out, &event)
	}

	return out, nil
}

// PruneEvents implements Pruner.
func (s *MemoryStore) PruneEvents(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var pruned int64

	for _, e := range s.events {
		if e.Timestamp.Before(olderThan) {
			pruned++
			continue
		}

		kept = append(kept, e)
	}

	s.events = kept

	return pruned, nil
}
